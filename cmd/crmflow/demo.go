package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/crmflow/internal/catalog"
	"github.com/pitabwire/crmflow/internal/config"
	"github.com/pitabwire/crmflow/internal/handoff"
	"github.com/pitabwire/crmflow/internal/observability"
	"github.com/pitabwire/crmflow/internal/workflow"
	"github.com/pitabwire/crmflow/model"
)

func newDemoCommand() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Walk a customer from lead to contract against in-memory stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := zap.NewNop()
			if verbose {
				l, err := observability.NewLogger(config.ObservabilityConfig{LogLevel: "debug"})
				if err != nil {
					return err
				}
				logger = l
			}
			return runDemo(cmd.Context(), cmd.OutOrStdout(), logger)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log engine and handoff events to stderr")
	return cmd
}

type demoStep struct {
	to    model.StageID
	data  map[string]any
	notes string
}

func runDemo(ctx context.Context, out io.Writer, logger *zap.Logger) error {
	engine := workflow.NewEngine(catalog.Default(), workflow.NewMemoryWorkflowStore(),
		workflow.WithLogger(logger))
	manager := handoff.NewManager(engine, handoff.WithLogger(logger))

	staff := []struct {
		id   string
		name string
		role model.RoleID
	}{
		{"maya", "Maya Lindqvist", model.RoleMarketingCoordinator},
		{"sam", "Sam Okafor", model.RoleSalesManager},
		{"riley", "Riley Chen", model.RoleSalesRep},
		{"casey", "Casey Moreau", model.RoleContractAdministrator},
		{"fran", "Fran Ibarra", model.RoleFinanceManager},
	}
	for _, s := range staff {
		if _, err := manager.CreateUser(ctx, s.id, s.name, s.role, s.id+"@example.com", ""); err != nil {
			return err
		}
	}

	wf, err := engine.CreateWorkflow(ctx, "acme-corp", map[string]any{"priority": model.PriorityHigh})
	if err != nil {
		return err
	}
	if err := manager.AssignWorkflow(ctx, wf.ID, "maya"); err != nil {
		return err
	}

	steps := []demoStep{
		{model.StageLeadValidation, map[string]any{"validated_contact": true}, "contact verified"},
		{model.StageLeadScoring, map[string]any{"lead_score": 84}, ""},
		{model.StageSalesAssignment, nil, "qualified lead"},
		{model.StageInitialContact, nil, ""},
		{model.StageNeedsAssessment, nil, "discovery call booked"},
		{model.StageProposalPreparation, nil, ""},
		{model.StageProposalReview, map[string]any{"proposal_amount": 48000}, ""},
		{model.StageProposalPresented, nil, ""},
		{model.StageContractPreparation, map[string]any{"accepted_proposal_id": "prop-118"}, "customer accepted"},
	}

	rows := make([][]string, 0, len(steps))
	for _, step := range steps {
		cur, res, err := manager.AdvanceWorkflow(ctx, wf.ID, step.to, step.data, step.notes)
		if err != nil {
			return fmt.Errorf("advance to %s: %w", step.to, err)
		}
		if res.Status == model.HandoffPendingApproval {
			approver, err := approverFor(ctx, manager, engine.Catalog(), res.Request.ToStage)
			if err != nil {
				return err
			}
			approved, err := manager.ApproveHandoff(ctx, res.Request.ID, approver)
			if err != nil {
				return fmt.Errorf("approve %s: %w", res.Request.ID, err)
			}
			res = approved
			res.Status = "approved by " + approver
			if cur, err = engine.GetWorkflow(ctx, wf.ID); err != nil {
				return err
			}
		}
		rows = append(rows, []string{string(step.to), res.Status, res.FromUser, res.ToUser, cur.AssignedTo})
	}
	fmt.Fprintln(out, renderTable("acme-corp journey",
		[]string{"Stage", "Handoff", "From", "To", "Holder"}, rows, nil))

	// A second customer stalls early with a blocker.
	stalled, err := engine.CreateWorkflow(ctx, "globex", nil)
	if err != nil {
		return err
	}
	if err := manager.AssignWorkflow(ctx, stalled.ID, "maya"); err != nil {
		return err
	}
	if _, err := engine.AddBlocker(ctx, stalled.ID, "contact email bounces", model.SeverityHigh); err != nil {
		return err
	}

	dash, err := engine.GenerateDashboard(ctx)
	if err != nil {
		return err
	}
	stageRows := [][]string{}
	for _, st := range engine.Catalog().Stages() {
		if n := dash.ByStage[st.ID]; n > 0 {
			stageRows = append(stageRows, []string{string(st.ID), strconv.Itoa(n)})
		}
	}
	fmt.Fprintf(out, "Dashboard: %d workflows, %d blocked\n", dash.TotalWorkflows, len(dash.Blocked))
	fmt.Fprintln(out, renderTable("Stage occupancy",
		[]string{"Stage", "Workflows"}, stageRows, []columnAlignment{alignLeft, alignRight}))

	workload, err := manager.GetRoleWorkloadReport(ctx)
	if err != nil {
		return err
	}
	loadRows := [][]string{}
	for _, w := range workload {
		if w.UserCount == 0 {
			continue
		}
		loadRows = append(loadRows, []string{
			w.RoleName,
			strconv.Itoa(w.UserCount),
			strconv.Itoa(w.TotalAssigned),
			strconv.FormatFloat(w.AverageWorkload, 'f', 1, 64),
			strconv.Itoa(w.OverloadedUsers),
		})
	}
	fmt.Fprintln(out, renderTable("Workload",
		[]string{"Role", "Users", "Assigned", "Average", "Overloaded"}, loadRows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight}))

	users, err := manager.ListUsers(ctx)
	if err != nil {
		return err
	}
	userRows := [][]string{}
	for _, u := range users {
		udash, err := manager.GetUserDashboard(ctx, u.ID)
		if err != nil {
			return err
		}
		userRows = append(userRows, []string{
			u.Name,
			strconv.Itoa(udash.Performance.ActiveWorkflows),
			strconv.Itoa(udash.Performance.CompletedWorkflows),
			strconv.Itoa(len(udash.Blocked)),
			strconv.Itoa(len(udash.UnreadNotifications)),
			udash.Performance.AverageCompletionTime.Round(time.Millisecond).String(),
		})
	}
	fmt.Fprintln(out, renderTable("Staff",
		[]string{"User", "Active", "Completed", "Blocked", "Unread", "Avg. completion"}, userRows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight}))
	return nil
}

// approverFor returns the first active user of the role that manages the
// receiving role of stage.
func approverFor(ctx context.Context, m *handoff.Manager, c *catalog.Catalog, stage model.StageID) (string, error) {
	def, err := c.Definition(stage)
	if err != nil {
		return "", err
	}
	toRole := c.ManagerOf(def.ResponsibleRole)
	users, err := m.ListUsers(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if u.Active && u.Role == toRole {
			return u.ID, nil
		}
	}
	return "", model.NewNoAvailableUserError(toRole)
}
