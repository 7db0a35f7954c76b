package repo

import (
	"context"
	"fmt"
	"time"

	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
	"portraitgen/internal/sqlinline"
)

// RunRepositoryPG implements domain.RunRepository on PostgreSQL.
type RunRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewRunRepository(sql infra.SQLExecutor) *RunRepositoryPG {
	return &RunRepositoryPG{sql: sql}
}

func (r *RunRepositoryPG) Start(ctx context.Context, resultID string, candidateCount int) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QStartGenerationRun, resultID, candidateCount); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

func (r *RunRepositoryPG) Touch(ctx context.Context, resultID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QTouchGenerationRun, resultID)
	if err != nil {
		return fmt.Errorf("touch run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("touch run %s: %w", resultID, domain.ErrRunNotRunning)
	}
	return nil
}

func (r *RunRepositoryPG) Finish(ctx context.Context, resultID string, status domain.RunStatus, errMsg string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QFinishGenerationRun, resultID, string(status), errMsg)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %s: %w", resultID, domain.ErrRunNotRunning)
	}
	return nil
}

func (r *RunRepositoryPG) Get(ctx context.Context, resultID string) (*domain.GenerationRun, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectGenerationRun, resultID)
	var run domain.GenerationRun
	var status string
	if err := row.Scan(&run.ResultID, &status, &run.CandidateCount, &run.ErrorMessage, &run.StartedAt, &run.UpdatedAt); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	run.Status = domain.RunStatus(status)
	return &run, nil
}

func (r *RunRepositoryPG) Delete(ctx context.Context, resultID string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QDeleteGenerationRun, resultID); err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return nil
}

// FailStale marks every run still running since before as failed.
func (r *RunRepositoryPG) FailStale(ctx context.Context, before time.Time, message string) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QFailStaleGenerationRuns, before, message)
	if err != nil {
		return 0, fmt.Errorf("fail stale runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

var (
	_ domain.RunRepository = (*RunRepositoryPG)(nil)
	_ domain.RunSweeper    = (*RunRepositoryPG)(nil)
)
