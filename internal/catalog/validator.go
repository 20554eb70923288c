package catalog

import (
	"fmt"

	"github.com/pitabwire/crmflow/model"
)

// VError describes a single validation error in a catalog definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validate checks a catalog definition structurally and referentially and
// returns every problem found.
func Validate(def Definition) []VError {
	var errs []VError

	stageIDs := make(map[model.StageID]model.StageDefinition, len(def.Stages))
	for i, st := range def.Stages {
		p := fmt.Sprintf("stages[%d]", i)
		if st.ID == "" {
			errs = append(errs, VError{Path: p + ".id", Code: "REQUIRED", Message: "id is required"})
			continue
		}
		if st.ID == model.AllStages {
			errs = append(errs, VError{Path: p + ".id", Code: "RESERVED", Message: "\"*\" is reserved for permission wildcards"})
		}
		if _, dup := stageIDs[st.ID]; dup {
			errs = append(errs, VError{Path: p + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("stage %q is defined twice", st.ID)})
		}
		stageIDs[st.ID] = st
		if st.Phase < 1 || st.Phase > model.PhaseCount {
			errs = append(errs, VError{Path: p + ".phase", Code: "OUT_OF_RANGE", Message: fmt.Sprintf("phase %d is outside 1..%d", st.Phase, model.PhaseCount)})
		}
		if st.Name == "" {
			errs = append(errs, VError{Path: p + ".name", Code: "REQUIRED", Message: "name is required"})
		}
	}

	roleIDs := make(map[model.RoleID]bool, len(def.Roles))
	for i, r := range def.Roles {
		p := fmt.Sprintf("roles[%d]", i)
		if r.ID == "" {
			errs = append(errs, VError{Path: p + ".id", Code: "REQUIRED", Message: "id is required"})
			continue
		}
		if roleIDs[r.ID] {
			errs = append(errs, VError{Path: p + ".id", Code: "DUPLICATE", Message: fmt.Sprintf("role %q is defined twice", r.ID)})
		}
		roleIDs[r.ID] = true
		errs = append(errs, validateStageSet(p+".permissions.can_view", r.Permissions.CanView, stageIDs)...)
		errs = append(errs, validateStageSet(p+".permissions.can_edit", r.Permissions.CanEdit, stageIDs)...)
		errs = append(errs, validateStageSet(p+".permissions.can_advance", r.Permissions.CanAdvance, stageIDs)...)
	}

	for i, st := range def.Stages {
		p := fmt.Sprintf("stages[%d]", i)
		for j, next := range st.NextActions {
			if _, ok := stageIDs[next]; !ok {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("%s.next_actions[%d]", p, j),
					Code:    "UNKNOWN_STAGE",
					Message: fmt.Sprintf("next action %q is not a defined stage", next),
				})
			}
		}
		if !roleIDs[st.ResponsibleRole] {
			errs = append(errs, VError{
				Path:    p + ".responsible_role",
				Code:    "UNKNOWN_ROLE",
				Message: fmt.Sprintf("responsible role %q is not defined", st.ResponsibleRole),
			})
		}
	}

	if _, ok := stageIDs[def.Initial]; !ok {
		errs = append(errs, VError{Path: "initial", Code: "UNKNOWN_STAGE", Message: fmt.Sprintf("initial stage %q is not defined", def.Initial)})
	} else {
		reached := reachable(def.Initial, stageIDs)
		for i, st := range def.Stages {
			if st.ID != "" && !reached[st.ID] {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("stages[%d]", i),
					Code:    "UNREACHABLE",
					Message: fmt.Sprintf("stage %q cannot be reached from %q", st.ID, def.Initial),
				})
			}
		}
	}
	if _, ok := stageIDs[def.Ongoing]; !ok {
		errs = append(errs, VError{Path: "ongoing", Code: "UNKNOWN_STAGE", Message: fmt.Sprintf("ongoing stage %q is not defined", def.Ongoing)})
	}

	for t, rule := range def.Rules {
		p := "rules[" + t.String() + "]"
		from, ok := stageIDs[t.From]
		if !ok {
			errs = append(errs, VError{Path: p + ".from", Code: "UNKNOWN_STAGE", Message: fmt.Sprintf("stage %q is not defined", t.From)})
		} else if !from.Allows(t.To) {
			errs = append(errs, VError{Path: p, Code: "NOT_ADJACENT", Message: fmt.Sprintf("%q is not a next action of %q", t.To, t.From)})
		}
		if _, ok := stageIDs[t.To]; !ok {
			errs = append(errs, VError{Path: p + ".to", Code: "UNKNOWN_STAGE", Message: fmt.Sprintf("stage %q is not defined", t.To)})
		}
		if !roleIDs[rule.FromRole] {
			errs = append(errs, VError{Path: p + ".from_role", Code: "UNKNOWN_ROLE", Message: fmt.Sprintf("role %q is not defined", rule.FromRole)})
		}
		if !roleIDs[rule.ToRole] {
			errs = append(errs, VError{Path: p + ".to_role", Code: "UNKNOWN_ROLE", Message: fmt.Sprintf("role %q is not defined", rule.ToRole)})
		}
	}

	for role, manager := range def.Managers {
		if !roleIDs[role] {
			errs = append(errs, VError{Path: "managers[" + string(role) + "]", Code: "UNKNOWN_ROLE", Message: fmt.Sprintf("role %q is not defined", role)})
		}
		if !roleIDs[manager] {
			errs = append(errs, VError{Path: "managers[" + string(role) + "]", Code: "UNKNOWN_ROLE", Message: fmt.Sprintf("manager role %q is not defined", manager)})
		}
	}

	return errs
}

func validateStageSet(path string, set model.StageSet, stages map[model.StageID]model.StageDefinition) []VError {
	var errs []VError
	for id := range set {
		if id == model.AllStages {
			continue
		}
		if _, ok := stages[id]; !ok {
			errs = append(errs, VError{Path: path, Code: "UNKNOWN_STAGE", Message: fmt.Sprintf("stage %q is not defined", id)})
		}
	}
	return errs
}

// reachable walks NextActions breadth-first from start.
func reachable(start model.StageID, stages map[model.StageID]model.StageDefinition) map[model.StageID]bool {
	seen := map[model.StageID]bool{start: true}
	queue := []model.StageID{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range stages[cur].NextActions {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}
