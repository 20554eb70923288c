package catalog

import (
	"strings"
	"testing"

	"github.com/pitabwire/crmflow/model"
)

func smallDefinition() Definition {
	return Definition{
		Stages: []model.StageDefinition{
			{ID: "a", Phase: 1, Name: "A", NextActions: []model.StageID{"b"}, ResponsibleRole: "r"},
			{ID: "b", Phase: 2, Name: "B", NextActions: []model.StageID{"c"}, ResponsibleRole: "r"},
			{ID: "c", Phase: 7, Name: "C", ResponsibleRole: "r"},
		},
		Roles: []model.RoleDefinition{
			{ID: "r", Name: "R", Permissions: model.Permissions{CanView: model.NewStageSet("a", "b", "c")}},
		},
		Rules: map[model.Transition]model.HandoffRule{
			{From: "a", To: "b"}: {FromRole: "r", ToRole: "r", AutoHandoff: true},
		},
		Initial: "a",
		Ongoing: "c",
	}
}

func hasCode(errs []VError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_valid(t *testing.T) {
	if errs := Validate(smallDefinition()); len(errs) != 0 {
		t.Fatalf("Validate() = %v, want no errors", errs)
	}
	if errs := Validate(DefaultDefinition()); len(errs) != 0 {
		t.Fatalf("Validate(default) = %v, want no errors", errs)
	}
}

func TestValidate_undefinedNextAction(t *testing.T) {
	def := smallDefinition()
	def.Stages[2].NextActions = []model.StageID{"zzz"}
	errs := Validate(def)
	if !hasCode(errs, "UNKNOWN_STAGE") {
		t.Errorf("Validate() = %v, want UNKNOWN_STAGE", errs)
	}
}

func TestValidate_unreachable(t *testing.T) {
	def := smallDefinition()
	def.Stages = append(def.Stages, model.StageDefinition{ID: "island", Phase: 3, Name: "Island", ResponsibleRole: "r"})
	errs := Validate(def)
	if !hasCode(errs, "UNREACHABLE") {
		t.Errorf("Validate() = %v, want UNREACHABLE", errs)
	}
}

func TestValidate_ruleNotAdjacent(t *testing.T) {
	def := smallDefinition()
	def.Rules[model.Transition{From: "a", To: "c"}] = model.HandoffRule{FromRole: "r", ToRole: "r"}
	errs := Validate(def)
	if !hasCode(errs, "NOT_ADJACENT") {
		t.Errorf("Validate() = %v, want NOT_ADJACENT", errs)
	}
}

func TestValidate_phaseOutOfRange(t *testing.T) {
	def := smallDefinition()
	def.Stages[1].Phase = 9
	if errs := Validate(def); !hasCode(errs, "OUT_OF_RANGE") {
		t.Errorf("Validate() = %v, want OUT_OF_RANGE", errs)
	}
}

func TestValidate_duplicateAndUnknownRole(t *testing.T) {
	def := smallDefinition()
	def.Stages = append(def.Stages, model.StageDefinition{ID: "a", Phase: 1, Name: "A2", ResponsibleRole: "ghost"})
	errs := Validate(def)
	if !hasCode(errs, "DUPLICATE") {
		t.Errorf("Validate() = %v, want DUPLICATE", errs)
	}
	if !hasCode(errs, "UNKNOWN_ROLE") {
		t.Errorf("Validate() = %v, want UNKNOWN_ROLE", errs)
	}
}

func TestNew_invalidReturnsJoinedError(t *testing.T) {
	def := smallDefinition()
	def.Initial = "missing"
	_, err := New(def)
	if err == nil {
		t.Fatal("New() should fail on an unknown initial stage")
	}
	if !strings.Contains(err.Error(), "initial stage") {
		t.Errorf("New() error = %v", err)
	}
}

func TestNew_copiesInput(t *testing.T) {
	def := smallDefinition()
	c, err := New(def)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	def.Stages[0].NextActions[0] = "c"
	next, _ := c.NextStages("a")
	if next[0] != "b" {
		t.Errorf("catalog shares NextActions with its input: %v", next)
	}
}
