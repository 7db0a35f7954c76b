package domain

import (
	"context"
	"time"
)

// CandidateRepository is the Result Ledger contract.
type CandidateRepository interface {
	Upsert(ctx context.Context, candidate Candidate) (Candidate, error)
	ListByResult(ctx context.Context, resultID string) ([]Candidate, error)
	DeleteByResult(ctx context.Context, resultID string) (int64, error)
}

// RunRepository persists run markers keyed by owning result id.
// Touch and Finish only act on a running marker and return ErrRunNotRunning
// otherwise, so a marker the sweeper already failed stays failed.
type RunRepository interface {
	Start(ctx context.Context, resultID string, candidateCount int) error
	RunToucher
	Finish(ctx context.Context, resultID string, status RunStatus, errMsg string) error
	Get(ctx context.Context, resultID string) (*GenerationRun, error)
	Delete(ctx context.Context, resultID string) error
}

// RunToucher records progress on a running marker.
type RunToucher interface {
	Touch(ctx context.Context, resultID string) error
}

// RunSweeper fails run markers left running by a process that went away.
type RunSweeper interface {
	FailStale(ctx context.Context, before time.Time, message string) (int64, error)
}

// PromptSource resolves the generation prompt and profile context for a result.
type PromptSource interface {
	PromptFor(ctx context.Context, resultID string) (string, error)
	ProfileFor(ctx context.Context, resultID string) (*ProfileMatch, error)
}
