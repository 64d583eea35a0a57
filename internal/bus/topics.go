package bus

// Scheduler event topics.
const (
	TopicTaskCompleted = "sched.task_completed"
	TopicTaskFailed    = "sched.task_failed"
	TopicTaskStolen    = "sched.task_stolen"
	TopicPoolDrained   = "sched.pool_drained"
)

// Approval gate topics.
const (
	TopicApprovalDecision = "approval.decision"
)

// Budget topics.
const (
	TopicBudgetOver = "budget.over"
)

// TaskCompletedEvent is published when a pool finishes a task.
type TaskCompletedEvent struct {
	Task       string // task name
	Pool       string // pool name
	DurationMS float64
	Err        string // empty on success
}

// TaskStolenEvent is published when a Background worker steals Interactive work.
type TaskStolenEvent struct {
	Task string
}

// ApprovalDecisionEvent is published for every gate resolution.
type ApprovalDecisionEvent struct {
	Action     string
	Approved   bool
	Remembered bool // decision came from (or was written to) the approval store
}

// BudgetOverEvent is published once when a session crosses its budget.
type BudgetOverEvent struct {
	SessionID string
	Limit     float64
	Spent     float64
}
