package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pitabwire/crmflow/internal/catalog"
	"github.com/pitabwire/crmflow/internal/config"
	"github.com/pitabwire/crmflow/model"
)

func newCatalogCommand(configPath *string) *cobra.Command {
	var tuningPath string

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the stage, role and handoff-rule catalog",
	}
	cmd.PersistentFlags().StringVar(&tuningPath, "tuning", "", "Tuning file (defaults to catalog.tuning_file from config)")

	// loadTuning resolves the tuning file from the flag, then the config.
	loadTuning := func(c *catalog.Catalog) (catalog.Tuning, string, error) {
		path := tuningPath
		if path == "" && *configPath != "" {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return catalog.Tuning{}, "", err
			}
			path = cfg.Catalog.TuningFile
		}
		if path == "" {
			return catalog.DefaultTuning(), "", nil
		}
		t, err := catalog.LoadTuning(path, c)
		return t, path, err
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stages",
		Short: "List every stage in pipeline order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := catalog.Default()
			tuning, _, err := loadTuning(c)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStages(c, tuning))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "roles",
		Short: "List roles with their permissions and approving manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderRoles(catalog.Default()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rules",
		Short: "List handoff rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderRules(catalog.Default()))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the built-in catalog and the tuning file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			def := catalog.DefaultDefinition()
			if verrs := catalog.Validate(def); len(verrs) > 0 {
				for _, ve := range verrs {
					fmt.Fprintf(out, "  %s\n", ve.Error())
				}
				return fmt.Errorf("catalog has %d validation errors", len(verrs))
			}
			c, err := catalog.New(def)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "catalog ok: %d stages, %d roles, %d rules\n",
				len(c.Stages()), len(c.Roles()), len(c.Rules()))

			tuning, path, err := loadTuning(c)
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(out, "tuning ok: built-in defaults")
			} else {
				fmt.Fprintf(out, "tuning ok: %s (sha256 %s)\n", path, tuning.Checksum)
			}
			return nil
		},
	})

	return cmd
}

func renderStages(c *catalog.Catalog, tuning catalog.Tuning) string {
	stages := c.Stages()
	rows := make([][]string, 0, len(stages))
	for i, st := range stages {
		next := make([]string, len(st.NextActions))
		for j, n := range st.NextActions {
			next[j] = string(n)
		}
		milestone := ""
		if tuning.IsMilestone(st.ID) {
			milestone = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			strconv.Itoa(st.Phase),
			string(st.ID),
			st.Name,
			string(st.ResponsibleRole),
			strings.Join(next, ", "),
			strconv.Itoa(tuning.EstimateDays(st.ID)),
			milestone,
		})
	}
	return renderTable("Stages",
		[]string{"#", "Phase", "ID", "Name", "Responsible", "Next", "Est. days", "Milestone"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func renderRoles(c *catalog.Catalog) string {
	total := len(c.Stages())
	roles := c.Roles()
	rows := make([][]string, 0, len(roles))
	for _, r := range roles {
		assign := "no"
		if r.Permissions.CanAssign {
			assign = "yes"
		}
		manager := string(c.ManagerOf(r.ID))
		if r.ID == model.RoleAdmin {
			manager = "-"
		}
		rows = append(rows, []string{
			string(r.ID),
			r.Name,
			r.Department,
			stageCount(r.Permissions.CanView, total),
			stageCount(r.Permissions.CanAdvance, total),
			assign,
			manager,
		})
	}
	return renderTable("Roles",
		[]string{"ID", "Name", "Department", "Views", "Advances", "Assign", "Manager"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func renderRules(c *catalog.Catalog) string {
	rules := c.Rules()
	rows := make([][]string, 0, len(rules))
	for _, r := range rules {
		mode := "manual"
		if r.AutoHandoff {
			mode = "auto"
		}
		rows = append(rows, []string{
			string(r.From),
			string(r.To),
			string(r.FromRole),
			string(r.ToRole),
			mode,
			strings.Join(r.RequiredData, ", "),
			r.NotificationTemplate,
		})
	}
	return renderTable("Handoff rules",
		[]string{"From", "To", "From role", "To role", "Mode", "Requires", "Template"},
		rows, nil,
	)
}

func stageCount(set model.StageSet, total int) string {
	if set[model.AllStages] {
		return "all"
	}
	return fmt.Sprintf("%d/%d", len(set), total)
}
