package delivery

import (
	"context"
	"errors"

	"portraitgen/internal/domain"
)

// RepositoryReader reads snapshots straight from the ledger repositories.
// The API uses it to serve snapshots; in-process callers can poll it directly.
type RepositoryReader struct {
	Candidates domain.CandidateRepository
	Runs       domain.RunRepository
}

func (r RepositoryReader) Snapshot(ctx context.Context, resultID string) (Snapshot, error) {
	rows, err := r.Candidates.ListByResult(ctx, resultID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Candidates: rows}
	if r.Runs == nil {
		return snap, nil
	}
	run, err := r.Runs.Get(ctx, resultID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return Snapshot{}, err
	default:
		snap.Run = run
	}
	return snap, nil
}
