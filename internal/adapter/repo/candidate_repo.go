package repo

import (
	"context"
	"fmt"
	"time"

	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
	"portraitgen/internal/sqlinline"
)

// CandidateRepositoryPG implements domain.CandidateRepository on PostgreSQL.
type CandidateRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewCandidateRepository creates a ledger backed by the given executor.
func NewCandidateRepository(sql infra.SQLExecutor) *CandidateRepositoryPG {
	return &CandidateRepositoryPG{sql: sql}
}

// Upsert writes the row for (result, slot); a repeated write replaces the previous one.
func (r *CandidateRepositoryPG) Upsert(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	if c.ArtifactURL == "" {
		return domain.Candidate{}, fmt.Errorf("upsert candidate slot %d: artifact url required", c.SlotIndex)
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertCandidate,
		c.ResultID,
		c.SlotIndex,
		c.ArtifactURL,
		c.PromptText,
		nullableTime(c.CreatedAt),
	)
	var out domain.Candidate
	if err := row.Scan(&out.ID, &out.ResultID, &out.SlotIndex, &out.ArtifactURL, &out.PromptText, &out.IsPrimary, &out.CreatedAt); err != nil {
		return domain.Candidate{}, fmt.Errorf("upsert candidate slot %d: %w", c.SlotIndex, err)
	}
	return out, nil
}

// ListByResult returns the current ledger snapshot ordered by slot.
func (r *CandidateRepositoryPG) ListByResult(ctx context.Context, resultID string) ([]domain.Candidate, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListCandidatesByResult, resultID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		if err := rows.Scan(&c.ID, &c.ResultID, &c.SlotIndex, &c.ArtifactURL, &c.PromptText, &c.IsPrimary, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	return out, nil
}

// DeleteByResult removes every row of the result; used by out-of-band cleanup only.
func (r *CandidateRepositoryPG) DeleteByResult(ctx context.Context, resultID string) (int64, error) {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteCandidatesByResult, resultID)
	if err != nil {
		return 0, fmt.Errorf("delete candidates: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ domain.CandidateRepository = (*CandidateRepositoryPG)(nil)
