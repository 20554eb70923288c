// Package catalog holds the static stage, role and handoff-rule tables of
// the sales-to-service pipeline, together with the tunable completion
// estimates.
package catalog

import (
	"errors"
	"fmt"
	"slices"

	"github.com/pitabwire/crmflow/model"
)

// Definition is the raw input to New.
type Definition struct {
	Stages   []model.StageDefinition
	Roles    []model.RoleDefinition
	Rules    map[model.Transition]model.HandoffRule
	Managers map[model.RoleID]model.RoleID
	Initial  model.StageID
	Ongoing  model.StageID
}

// DefaultDefinition returns the 30-stage, 15-role pipeline.
func DefaultDefinition() Definition {
	stages := defaultStages()
	managers := make(map[model.RoleID]model.RoleID, len(defaultManagers))
	for k, v := range defaultManagers {
		managers[k] = v
	}
	return Definition{
		Stages:   stages,
		Roles:    defaultRoles(stages),
		Rules:    defaultRules(),
		Managers: managers,
		Initial:  model.StageLeadSubmission,
		Ongoing:  model.StageOngoingService,
	}
}

// Catalog is an immutable, validated lookup over stages, roles and handoff
// rules. It is safe for concurrent use.
type Catalog struct {
	stages     map[model.StageID]model.StageDefinition
	stageOrder []model.StageID
	roles      map[model.RoleID]model.RoleDefinition
	roleOrder  []model.RoleID
	rules      map[model.Transition]model.HandoffRule
	managers   map[model.RoleID]model.RoleID
	initial    model.StageID
	ongoing    model.StageID
}

// New validates def and builds a Catalog from it.
func New(def Definition) (*Catalog, error) {
	if verrs := Validate(def); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, e := range verrs {
			errs[i] = e
		}
		return nil, fmt.Errorf("invalid catalog: %w", errors.Join(errs...))
	}

	c := &Catalog{
		stages:   make(map[model.StageID]model.StageDefinition, len(def.Stages)),
		roles:    make(map[model.RoleID]model.RoleDefinition, len(def.Roles)),
		rules:    make(map[model.Transition]model.HandoffRule, len(def.Rules)),
		managers: make(map[model.RoleID]model.RoleID, len(def.Managers)),
		initial:  def.Initial,
		ongoing:  def.Ongoing,
	}
	for _, st := range def.Stages {
		c.stages[st.ID] = cloneStage(st)
		c.stageOrder = append(c.stageOrder, st.ID)
	}
	for _, r := range def.Roles {
		r.Permissions = r.Permissions.Clone()
		c.roles[r.ID] = r
		c.roleOrder = append(c.roleOrder, r.ID)
	}
	for t, rule := range def.Rules {
		rule.RequiredData = slices.Clone(rule.RequiredData)
		c.rules[t] = rule
	}
	for k, v := range def.Managers {
		c.managers[k] = v
	}
	return c, nil
}

// Default returns the built-in catalog. It panics if the built-in tables are
// inconsistent.
func Default() *Catalog {
	c, err := New(DefaultDefinition())
	if err != nil {
		panic(err)
	}
	return c
}

func cloneStage(st model.StageDefinition) model.StageDefinition {
	st.NextActions = slices.Clone(st.NextActions)
	st.RequiredData = slices.Clone(st.RequiredData)
	return st
}

// Definition returns the stage definition for id.
func (c *Catalog) Definition(id model.StageID) (model.StageDefinition, error) {
	st, ok := c.stages[id]
	if !ok {
		return model.StageDefinition{}, model.NewUnknownStageError(id)
	}
	return cloneStage(st), nil
}

// NextStages returns the legal successors of id.
func (c *Catalog) NextStages(id model.StageID) ([]model.StageID, error) {
	st, ok := c.stages[id]
	if !ok {
		return nil, model.NewUnknownStageError(id)
	}
	return slices.Clone(st.NextActions), nil
}

// PhaseOf returns the phase number of id.
func (c *Catalog) PhaseOf(id model.StageID) (int, error) {
	st, ok := c.stages[id]
	if !ok {
		return 0, model.NewUnknownStageError(id)
	}
	return st.Phase, nil
}

// HasStage reports whether id is defined.
func (c *Catalog) HasStage(id model.StageID) bool {
	_, ok := c.stages[id]
	return ok
}

// InitialStage is where every new workflow starts.
func (c *Catalog) InitialStage() model.StageID { return c.initial }

// OngoingStage is the steady-state stage a completed pipeline rests in.
func (c *Catalog) OngoingStage() model.StageID { return c.ongoing }

// Stages returns every stage definition in catalog order.
func (c *Catalog) Stages() []model.StageDefinition {
	out := make([]model.StageDefinition, 0, len(c.stageOrder))
	for _, id := range c.stageOrder {
		out = append(out, cloneStage(c.stages[id]))
	}
	return out
}

// Summary returns the display metadata of id.
func (c *Catalog) Summary(id model.StageID) (model.StageSummary, error) {
	st, ok := c.stages[id]
	if !ok {
		return model.StageSummary{}, model.NewUnknownStageError(id)
	}
	return model.StageSummary{
		ID:                st.ID,
		Name:              st.Name,
		Description:       st.Description,
		Phase:             st.Phase,
		PhaseName:         model.PhaseNames[st.Phase-1],
		EstimatedDuration: st.EstimatedDuration,
	}, nil
}

// Role returns the role definition for id.
func (c *Catalog) Role(id model.RoleID) (model.RoleDefinition, error) {
	r, ok := c.roles[id]
	if !ok {
		return model.RoleDefinition{}, model.NewUnknownRoleError(id)
	}
	r.Permissions = r.Permissions.Clone()
	return r, nil
}

// PermissionsOf returns a copy of the permission set of id.
func (c *Catalog) PermissionsOf(id model.RoleID) (model.Permissions, error) {
	r, ok := c.roles[id]
	if !ok {
		return model.Permissions{}, model.NewUnknownRoleError(id)
	}
	return r.Permissions.Clone(), nil
}

// RoleSummary returns the display metadata of id.
func (c *Catalog) RoleSummary(id model.RoleID) (model.RoleSummary, error) {
	r, ok := c.roles[id]
	if !ok {
		return model.RoleSummary{}, model.NewUnknownRoleError(id)
	}
	return model.RoleSummary{ID: r.ID, Name: r.Name, Department: r.Department, Dashboard: r.Dashboard}, nil
}

// Roles returns every role definition in catalog order.
func (c *Catalog) Roles() []model.RoleDefinition {
	out := make([]model.RoleDefinition, 0, len(c.roleOrder))
	for _, id := range c.roleOrder {
		r := c.roles[id]
		r.Permissions = r.Permissions.Clone()
		out = append(out, r)
	}
	return out
}

// ManagerOf returns the role that approves manual handoffs into role.
func (c *Catalog) ManagerOf(role model.RoleID) model.RoleID {
	if m, ok := c.managers[role]; ok {
		return m
	}
	return model.RoleAdmin
}

// Rule returns the handoff rule for the from->to transition.
func (c *Catalog) Rule(from, to model.StageID) (model.HandoffRule, bool) {
	r, ok := c.rules[model.Transition{From: from, To: to}]
	if ok {
		r.RequiredData = slices.Clone(r.RequiredData)
	}
	return r, ok
}

// Rules returns every handoff rule ordered by the catalog position of the
// source stage, then of the target stage.
func (c *Catalog) Rules() []RuleEntry {
	pos := make(map[model.StageID]int, len(c.stageOrder))
	for i, id := range c.stageOrder {
		pos[id] = i
	}
	out := make([]RuleEntry, 0, len(c.rules))
	for t, r := range c.rules {
		r.RequiredData = slices.Clone(r.RequiredData)
		out = append(out, RuleEntry{Transition: t, HandoffRule: r})
	}
	slices.SortFunc(out, func(a, b RuleEntry) int {
		if d := pos[a.From] - pos[b.From]; d != 0 {
			return d
		}
		return pos[a.To] - pos[b.To]
	})
	return out
}
