package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"portraitgen/internal/domain"
)

type slotKey struct {
	resultID string
	slot     int
}

// MemoryLedger is an in-process Result Ledger and run marker store with the
// same upsert semantics as the PostgreSQL tables.
type MemoryLedger struct {
	mu         sync.RWMutex
	candidates map[slotKey]domain.Candidate
	runs       map[string]domain.GenerationRun
	now        func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		candidates: make(map[slotKey]domain.Candidate),
		runs:       make(map[string]domain.GenerationRun),
		now:        time.Now,
	}
}

// WithClock replaces the clock used for run marker timestamps.
func (m *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
	return m
}

func (m *MemoryLedger) Upsert(ctx context.Context, c domain.Candidate) (domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return domain.Candidate{}, err
	}
	if c.ArtifactURL == "" {
		return domain.Candidate{}, fmt.Errorf("upsert candidate slot %d: artifact url required", c.SlotIndex)
	}
	if c.SlotIndex < 0 || c.SlotIndex >= domain.MaxCandidateCount {
		return domain.Candidate{}, fmt.Errorf("upsert candidate: slot %d out of range", c.SlotIndex)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := slotKey{resultID: c.ResultID, slot: c.SlotIndex}
	if existing, ok := m.candidates[key]; ok {
		c.ID = existing.ID
	} else {
		c.ID = uuid.NewString()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	c.IsPrimary = c.SlotIndex == 0
	m.candidates[key] = c
	return c, nil
}

func (m *MemoryLedger) ListByResult(ctx context.Context, resultID string) ([]domain.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Candidate
	for key, c := range m.candidates {
		if key.resultID == resultID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SlotIndex < out[j].SlotIndex })
	return out, nil
}

func (m *MemoryLedger) DeleteByResult(ctx context.Context, resultID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for key := range m.candidates {
		if key.resultID == resultID {
			delete(m.candidates, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryLedger) Start(ctx context.Context, resultID string, candidateCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.runs[resultID] = domain.GenerationRun{
		ResultID:       resultID,
		Status:         domain.RunStatusRunning,
		CandidateCount: candidateCount,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (m *MemoryLedger) Touch(ctx context.Context, resultID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[resultID]
	if !ok || run.Status != domain.RunStatusRunning {
		return fmt.Errorf("touch run %s: %w", resultID, domain.ErrRunNotRunning)
	}
	run.UpdatedAt = m.now()
	m.runs[resultID] = run
	return nil
}

func (m *MemoryLedger) Finish(ctx context.Context, resultID string, status domain.RunStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[resultID]
	if !ok || run.Status != domain.RunStatusRunning {
		return fmt.Errorf("finish run %s: %w", resultID, domain.ErrRunNotRunning)
	}
	run.Status = status
	run.ErrorMessage = errMsg
	run.UpdatedAt = m.now()
	m.runs[resultID] = run
	return nil
}

func (m *MemoryLedger) Get(ctx context.Context, resultID string) (*domain.GenerationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[resultID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &run, nil
}

func (m *MemoryLedger) Delete(ctx context.Context, resultID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, resultID)
	return nil
}

func (m *MemoryLedger) FailStale(ctx context.Context, before time.Time, message string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	now := m.now()
	for id, run := range m.runs {
		if run.Status != domain.RunStatusRunning || !run.UpdatedAt.Before(before) {
			continue
		}
		run.Status = domain.RunStatusFailed
		run.ErrorMessage = message
		run.UpdatedAt = now
		m.runs[id] = run
		n++
	}
	return n, nil
}

var (
	_ domain.CandidateRepository = (*MemoryLedger)(nil)
	_ domain.RunRepository       = (*MemoryLedger)(nil)
	_ domain.RunSweeper          = (*MemoryLedger)(nil)
)
