package model

import "time"

// Workflow priority levels.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ValidPriority reports whether p is a known priority level.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Blocker severity levels.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Workflow is a live pipeline instance for one customer.
type Workflow struct {
	ID                  string            `json:"id"`
	CustomerID          string            `json:"customer_id"`
	CurrentStage        StageID           `json:"current_stage"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
	History             []StageTransition `json:"history"`
	NextActions         []StageID         `json:"next_actions"`
	AssignedTo          string            `json:"assigned_to"`
	AssignedRole        RoleID            `json:"assigned_role"`
	Priority            string            `json:"priority"`
	Data                map[string]any    `json:"data,omitempty"`
	Milestones          []Milestone       `json:"milestones,omitempty"`
	Blockers            []Blocker         `json:"blockers,omitempty"`
	EstimatedCompletion time.Time         `json:"estimated_completion"`
	Version             int               `json:"version"`
}

// StageTransition is one entry of a workflow's stage history. From is nil
// for the creation entry.
type StageTransition struct {
	From      *StageID      `json:"from"`
	To        StageID       `json:"to"`
	Timestamp time.Time     `json:"timestamp"`
	Notes     string        `json:"notes,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Milestone records that a workflow reached a significant stage.
type Milestone struct {
	Name        string    `json:"name"`
	Stage       StageID   `json:"stage"`
	CompletedAt time.Time `json:"completed_at"`
}

// Blocker is an open issue attached to a workflow.
type Blocker struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Severity    string     `json:"severity"`
	Resolved    bool       `json:"resolved"`
	Resolution  string     `json:"resolution,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// EnteredStageAt returns when the workflow most recently entered stage,
// scanning the history from the newest entry.
func (w *Workflow) EnteredStageAt(stage StageID) (time.Time, bool) {
	for i := len(w.History) - 1; i >= 0; i-- {
		if w.History[i].To == stage {
			return w.History[i].Timestamp, true
		}
	}
	return time.Time{}, false
}

// FirstEnteredStageAt returns when the workflow first entered stage,
// scanning the history from the oldest entry.
func (w *Workflow) FirstEnteredStageAt(stage StageID) (time.Time, bool) {
	for _, h := range w.History {
		if h.To == stage {
			return h.Timestamp, true
		}
	}
	return time.Time{}, false
}

// OpenBlockers returns the unresolved blockers.
func (w *Workflow) OpenBlockers() []Blocker {
	var open []Blocker
	for _, b := range w.Blockers {
		if !b.Resolved {
			open = append(open, b)
		}
	}
	return open
}

// HasData reports whether key is present in the workflow data bag.
func (w *Workflow) HasData(key string) bool {
	_, ok := w.Data[key]
	return ok
}

// Clone returns a deep copy of the workflow. Stores hand out clones so
// callers never share slices or maps with stored state.
func (w Workflow) Clone() Workflow {
	out := w
	if w.History != nil {
		out.History = make([]StageTransition, len(w.History))
		for i, h := range w.History {
			if h.From != nil {
				from := *h.From
				h.From = &from
			}
			out.History[i] = h
		}
	}
	if w.NextActions != nil {
		out.NextActions = append([]StageID(nil), w.NextActions...)
	}
	if w.Data != nil {
		out.Data = make(map[string]any, len(w.Data))
		for k, v := range w.Data {
			out.Data[k] = v
		}
	}
	if w.Milestones != nil {
		out.Milestones = append([]Milestone(nil), w.Milestones...)
	}
	if w.Blockers != nil {
		out.Blockers = make([]Blocker, len(w.Blockers))
		for i, b := range w.Blockers {
			if b.ResolvedAt != nil {
				at := *b.ResolvedAt
				b.ResolvedAt = &at
			}
			out.Blockers[i] = b
		}
	}
	return out
}
