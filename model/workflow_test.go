package model

import (
	"testing"
	"time"
)

func TestWorkflow_EnteredStageAt_latestEntry(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	from := StageNegotiation
	wf := Workflow{
		History: []StageTransition{
			{To: StageProposalPreparation, Timestamp: t0},
			{From: &from, To: StageProposalPreparation, Timestamp: t0.Add(48 * time.Hour)},
		},
	}
	at, ok := wf.EnteredStageAt(StageProposalPreparation)
	if !ok {
		t.Fatal("expected stage to be found")
	}
	if !at.Equal(t0.Add(48 * time.Hour)) {
		t.Errorf("EnteredStageAt = %v, want most recent entry", at)
	}
	if _, ok := wf.EnteredStageAt(StageDelivered); ok {
		t.Error("unexpected entry for delivered")
	}
}

func TestWorkflow_FirstEnteredStageAt_earliestEntry(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	from := StageAccountReview
	wf := Workflow{
		History: []StageTransition{
			{To: StageOngoingService, Timestamp: t0},
			{From: &from, To: StageOngoingService, Timestamp: t0.Add(72 * time.Hour)},
		},
	}
	at, ok := wf.FirstEnteredStageAt(StageOngoingService)
	if !ok || !at.Equal(t0) {
		t.Errorf("FirstEnteredStageAt = %v, %v; want %v", at, ok, t0)
	}
	if _, ok := wf.FirstEnteredStageAt(StageDelivered); ok {
		t.Error("unexpected entry for delivered")
	}
}

func TestWorkflow_OpenBlockers(t *testing.T) {
	wf := Workflow{Blockers: []Blocker{
		{ID: "b1", Resolved: true},
		{ID: "b2"},
	}}
	open := wf.OpenBlockers()
	if len(open) != 1 || open[0].ID != "b2" {
		t.Errorf("OpenBlockers = %+v, want only b2", open)
	}
}

func TestWorkflow_Clone_deep(t *testing.T) {
	from := StageLeadSubmission
	wf := Workflow{
		ID:          "wf-1",
		Data:        map[string]any{"k": "v"},
		History:     []StageTransition{{From: &from, To: StageLeadValidation}},
		NextActions: []StageID{StageLeadScoring},
		Blockers:    []Blocker{{ID: "b1"}},
	}
	c := wf.Clone()
	c.Data["k"] = "changed"
	*c.History[0].From = StageDelivered
	c.NextActions[0] = StageDelivered
	c.Blockers[0].Resolved = true

	if wf.Data["k"] != "v" {
		t.Error("Data shared with clone")
	}
	if *wf.History[0].From != StageLeadSubmission {
		t.Error("History.From shared with clone")
	}
	if wf.NextActions[0] != StageLeadScoring {
		t.Error("NextActions shared with clone")
	}
	if wf.Blockers[0].Resolved {
		t.Error("Blockers shared with clone")
	}
}

func TestUser_RecordCompletion_incrementalMean(t *testing.T) {
	u := User{}
	u.RecordCompletion(2 * time.Hour)
	u.RecordCompletion(4 * time.Hour)
	u.RecordCompletion(6 * time.Hour)

	if u.CompletedWorkflows != 3 {
		t.Errorf("CompletedWorkflows = %d, want 3", u.CompletedWorkflows)
	}
	if u.AverageCompletionTime != 4*time.Hour {
		t.Errorf("AverageCompletionTime = %v, want 4h", u.AverageCompletionTime)
	}
}

func TestUser_AddRemoveWorkflow(t *testing.T) {
	u := User{}
	u.AddWorkflow("wf-1")
	u.AddWorkflow("wf-1")
	u.AddWorkflow("wf-2")
	if len(u.AssignedWorkflows) != 2 {
		t.Fatalf("AssignedWorkflows = %v, want 2 entries", u.AssignedWorkflows)
	}
	if !u.RemoveWorkflow("wf-1") {
		t.Error("RemoveWorkflow(wf-1) = false")
	}
	if u.RemoveWorkflow("wf-1") {
		t.Error("second RemoveWorkflow(wf-1) = true")
	}
	if u.HasWorkflow("wf-1") || !u.HasWorkflow("wf-2") {
		t.Errorf("AssignedWorkflows = %v, want [wf-2]", u.AssignedWorkflows)
	}
}

func TestValidPriority(t *testing.T) {
	for _, p := range []string{PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent} {
		if !ValidPriority(p) {
			t.Errorf("ValidPriority(%q) = false", p)
		}
	}
	if ValidPriority("whenever") {
		t.Error("ValidPriority(whenever) = true")
	}
}
