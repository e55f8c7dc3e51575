package model

import "time"

// RunStatus represents the lifecycle state of a pipeline stage run.
// Transitions are strictly forward: pending -> running -> completed|failed.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Well-known stage names. Collector stages are derived per provider via
// CollectStage.
const (
	StageResolve = "resolve"
	StageScore   = "score"
	StageSignals = "collect:interest"
)

// CollectStage returns the ledger stage name for one provider's collect run.
func CollectStage(source string) string {
	return "collect:" + source
}

// RunCounts holds the item counters accumulated over a stage run.
type RunCounts struct {
	Found   int `json:"found"`
	New     int `json:"new"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Add accumulates other into c.
func (c *RunCounts) Add(other RunCounts) {
	c.Found += other.Found
	c.New += other.New
	c.Updated += other.Updated
	c.Failed += other.Failed
}

// Run is one tracked execution of a pipeline stage.
type Run struct {
	ID          string     `json:"id"`
	Stage       string     `json:"stage"`
	Status      RunStatus  `json:"status"`
	Counts      RunCounts  `json:"counts"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
