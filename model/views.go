package model

import "time"

// StageSummary is the display metadata of a stage.
type StageSummary struct {
	ID                StageID `json:"id"`
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	Phase             int     `json:"phase"`
	PhaseName         string  `json:"phase_name"`
	EstimatedDuration string  `json:"estimated_duration"`
}

// RoleSummary is the display metadata of a role.
type RoleSummary struct {
	ID         RoleID `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Dashboard  string `json:"dashboard"`
}

// NextAction describes a legal successor stage.
type NextAction struct {
	Stage             StageID `json:"stage"`
	Name              string  `json:"name"`
	Description       string  `json:"description"`
	ResponsibleRole   RoleID  `json:"responsible_role"`
	EstimatedDuration string  `json:"estimated_duration"`
}

// ProgressView is the progress of a single workflow.
type ProgressView struct {
	WorkflowID          string       `json:"workflow_id"`
	CustomerID          string       `json:"customer_id"`
	Priority            string       `json:"priority"`
	CurrentStage        StageSummary `json:"current_stage"`
	CompletedPhases     int          `json:"completed_phases"`
	ProgressPercentage  float64      `json:"progress_percentage"`
	Blockers            []Blocker    `json:"blockers"`
	Milestones          []Milestone  `json:"milestones"`
	NextActions         []NextAction `json:"next_actions"`
	AssignedTo          string       `json:"assigned_to"`
	AssignedRole        *RoleSummary `json:"assigned_role,omitempty"`
	EstimatedCompletion time.Time    `json:"estimated_completion"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// UpcomingCompletion is a workflow expected to finish soon.
type UpcomingCompletion struct {
	WorkflowID          string    `json:"workflow_id"`
	CustomerID          string    `json:"customer_id"`
	Stage               StageID   `json:"stage"`
	EstimatedCompletion time.Time `json:"estimated_completion"`
	DaysRemaining       int       `json:"days_remaining"`
}

// Bottleneck is a stage holding a disproportionate share of workflows.
type Bottleneck struct {
	Stage StageID `json:"stage"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
}

// DashboardView aggregates the state of every workflow.
type DashboardView struct {
	TotalWorkflows        int                  `json:"total_workflows"`
	ByStage               map[StageID]int      `json:"by_stage"`
	ByRole                map[RoleID]int       `json:"by_role"`
	Blocked               []string             `json:"blocked"`
	UpcomingCompletions   []UpcomingCompletion `json:"upcoming_completions"`
	AverageCompletionTime time.Duration        `json:"average_completion_time"`
	Bottlenecks           []Bottleneck         `json:"bottlenecks"`
	GeneratedAt           time.Time            `json:"generated_at"`
}

// UserPerformance holds a user's running counters.
type UserPerformance struct {
	ActiveWorkflows       int           `json:"active_workflows"`
	CompletedWorkflows    int           `json:"completed_workflows"`
	AverageCompletionTime time.Duration `json:"average_completion_time"`
}

// UserDashboard is the per-user view of assigned work.
type UserDashboard struct {
	User                User            `json:"user"`
	Workflows           []ProgressView  `json:"workflows"`
	Overdue             []ProgressView  `json:"overdue"`
	Urgent              []ProgressView  `json:"urgent"`
	Blocked             []ProgressView  `json:"blocked"`
	Performance         UserPerformance `json:"performance"`
	UnreadNotifications []Notification  `json:"unread_notifications"`
}

// HandoffQueueEntry is a workflow waiting on a manual handoff.
type HandoffQueueEntry struct {
	WorkflowID  string        `json:"workflow_id"`
	CustomerID  string        `json:"customer_id"`
	FromStage   StageID       `json:"from_stage"`
	ToStage     StageID       `json:"to_stage"`
	FromRole    RoleID        `json:"from_role"`
	ToRole      RoleID        `json:"to_role"`
	Priority    string        `json:"priority"`
	WaitingTime time.Duration `json:"waiting_time"`
}

// RoleWorkload summarises the load carried by one role.
type RoleWorkload struct {
	Role            RoleID  `json:"role"`
	RoleName        string  `json:"role_name"`
	UserCount       int     `json:"user_count"`
	TotalAssigned   int     `json:"total_assigned"`
	AverageWorkload float64 `json:"average_workload"`
	OverloadedUsers int     `json:"overloaded_users"`
}
