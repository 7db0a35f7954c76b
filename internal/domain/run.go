package domain

import "time"

// RunStatus enumerates the lifecycle of a dispatched generation run.
type RunStatus string

const (
	RunStatusUnknown   RunStatus = ""
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// GenerationRun is the persisted marker that lets observers tell a stalled
// run apart from one that failed server-side.
type GenerationRun struct {
	ResultID       string
	Status         RunStatus
	CandidateCount int
	ErrorMessage   string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// Terminal reports whether no further candidates will be written by this run.
func (r GenerationRun) Terminal() bool {
	return r.Status == RunStatusSucceeded || r.Status == RunStatusFailed
}
