package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portraitgen/internal/domain"
)

const testInterval = 10 * time.Millisecond

type fakeLedger struct {
	mu    sync.Mutex
	rows  []domain.Candidate
	run   *domain.GenerationRun
	err   error
	calls int
}

func (f *fakeLedger) Snapshot(ctx context.Context, resultID string) (Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return Snapshot{}, f.err
	}
	return Snapshot{Candidates: append([]domain.Candidate(nil), f.rows...), Run: f.run}, nil
}

func (f *fakeLedger) setRows(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = rows(n)
}

func (f *fakeLedger) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func rows(n int) []domain.Candidate {
	out := make([]domain.Candidate, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Candidate{
			ID:          fmt.Sprintf("c%d", i),
			ResultID:    "r1",
			SlotIndex:   i,
			ArtifactURL: fmt.Sprintf("https://cdn.example.com/portraits/r1/%d.png", i),
			IsPrimary:   i == 0,
		})
	}
	return out
}

// slowFirstReader blocks its first call until release is closed and answers
// that call with an older, smaller snapshot.
type slowFirstReader struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (s *slowFirstReader) Snapshot(ctx context.Context, resultID string) (Snapshot, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()
	if call > 1 {
		return Snapshot{Candidates: rows(2)}, nil
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return Snapshot{Candidates: rows(1)}, nil
}

func (s *slowFirstReader) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stuckReader never answers until its context is cancelled.
type stuckReader struct {
	started  atomic.Int32
	returned atomic.Int32
}

func (s *stuckReader) Snapshot(ctx context.Context, resultID string) (Snapshot, error) {
	s.started.Add(1)
	defer s.returned.Add(1)
	<-ctx.Done()
	return Snapshot{}, ctx.Err()
}

type fakeInliner struct {
	mu   sync.Mutex
	fail map[string]error
}

func (f *fakeInliner) Inline(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[url]; err != nil {
		return "", err
	}
	return "data:image/png;base64," + url, nil
}

type recorder struct {
	mu      sync.Mutex
	updates []Update
}

func (r *recorder) record(u Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
}

func (r *recorder) All() []Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Update(nil), r.updates...)
}

func (r *recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

func newTestPoller(ledger LedgerReader, inliner Inliner) (*Poller, *recorder) {
	rec := &recorder{}
	p := NewPoller("r1", ledger, inliner, Options{Interval: testInterval, OnUpdate: rec.record})
	return p, rec
}

func TestPoller_CompletionCardinality(t *testing.T) {
	for n := 0; n <= 3; n++ {
		t.Run(fmt.Sprintf("%d candidates", n), func(t *testing.T) {
			ledger := &fakeLedger{rows: rows(n)}
			p, rec := newTestPoller(ledger, &fakeInliner{})
			defer p.Close()

			p.SetEnabled(true)
			require.Eventually(t, func() bool { return rec.Len() > 0 }, time.Second, time.Millisecond)

			first := rec.All()[0]
			assert.Len(t, first.Candidates, n)
			assert.Equal(t, n == 3, first.Complete)
			assert.NoError(t, first.Err)
		})
	}
}

func TestPoller_DiscoversRowsAsTheyAppear(t *testing.T) {
	ledger := &fakeLedger{}
	p, rec := newTestPoller(ledger, &fakeInliner{})
	defer p.Close()

	p.SetEnabled(true)
	for n := 1; n <= 3; n++ {
		ledger.setRows(n)
		want := n
		require.Eventually(t, func() bool {
			all := rec.All()
			return len(all) > 0 && len(all[len(all)-1].Candidates) == want
		}, time.Second, time.Millisecond)
	}

	require.Eventually(t, func() bool { return p.Phase() == PhaseCompleted }, time.Second, time.Millisecond)
	last := rec.All()[rec.Len()-1]
	assert.True(t, last.Complete)
	for i, c := range last.Candidates {
		assert.Equal(t, i, c.SlotIndex)
		assert.NotEmpty(t, c.DataURL)
	}
}

func TestPoller_CompletionIsSticky(t *testing.T) {
	ledger := &fakeLedger{rows: rows(3)}
	p, rec := newTestPoller(ledger, &fakeInliner{})
	defer p.Close()

	p.SetEnabled(true)
	require.Eventually(t, func() bool { return p.Phase() == PhaseCompleted }, time.Second, time.Millisecond)

	p.SetEnabled(false)
	calls := ledger.Calls()
	delivered := rec.Len()
	p.SetEnabled(true)
	time.Sleep(5 * testInterval)

	assert.Equal(t, calls, ledger.Calls(), "no fetch after completion")
	assert.Equal(t, delivered, rec.Len())
	assert.Equal(t, PhaseCompleted, p.Phase())
}

func TestPoller_DisableStopsDelivery(t *testing.T) {
	ledger := &fakeLedger{rows: rows(1)}
	p, rec := newTestPoller(ledger, &fakeInliner{})
	defer p.Close()

	assert.Equal(t, PhaseNotStarted, p.Phase())
	p.SetEnabled(true)
	require.Eventually(t, func() bool { return rec.Len() >= 2 }, time.Second, time.Millisecond)

	p.SetEnabled(false)
	delivered := rec.Len()
	time.Sleep(5 * testInterval)
	assert.Equal(t, delivered, rec.Len())
	assert.Equal(t, PhaseInProgress, p.Phase())

	p.SetEnabled(true)
	require.Eventually(t, func() bool { return rec.Len() > delivered }, time.Second, time.Millisecond)
}

func TestPoller_ConversionErrorKeepsPolling(t *testing.T) {
	ledger := &fakeLedger{rows: rows(3)}
	inliner := &fakeInliner{fail: map[string]error{
		"https://cdn.example.com/portraits/r1/1.png": errors.New("connection reset"),
	}}
	p, rec := newTestPoller(ledger, inliner)
	defer p.Close()

	p.SetEnabled(true)
	require.Eventually(t, func() bool { return rec.Len() >= 3 }, time.Second, time.Millisecond)

	for _, u := range rec.All() {
		assert.Error(t, u.Err)
		assert.False(t, u.Complete)
		require.Len(t, u.Candidates, 2)
		assert.Equal(t, 0, u.Candidates[0].SlotIndex)
		assert.Equal(t, 2, u.Candidates[1].SlotIndex)
	}

	inliner.mu.Lock()
	inliner.fail = nil
	inliner.mu.Unlock()
	require.Eventually(t, func() bool { return p.Phase() == PhaseCompleted }, time.Second, time.Millisecond)
}

func TestPoller_FetchErrorIsReported(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("status 503")}
	p, rec := newTestPoller(ledger, &fakeInliner{})
	defer p.Close()

	p.SetEnabled(true)
	require.Eventually(t, func() bool { return rec.Len() >= 2 }, time.Second, time.Millisecond)
	u := rec.All()[0]
	assert.ErrorContains(t, u.Err, "status 503")
	assert.Empty(t, u.Candidates)
}

func TestPoller_StaleTickIsDropped(t *testing.T) {
	reader := &slowFirstReader{release: make(chan struct{})}
	p, rec := newTestPoller(reader, &fakeInliner{})
	defer p.Close()

	p.SetEnabled(true)
	require.Eventually(t, func() bool { return rec.Len() > 0 }, time.Second, time.Millisecond)
	close(reader.release)
	time.Sleep(5 * testInterval)
	require.Greater(t, reader.Calls(), 1)

	for _, u := range rec.All() {
		assert.Len(t, u.Candidates, 2, "the slow first tick must not overwrite a newer snapshot")
	}
}

func TestPoller_PartialLedgerAfterFailedRun(t *testing.T) {
	ledger := &fakeLedger{
		rows: rows(1),
		run:  &domain.GenerationRun{ResultID: "r1", Status: domain.RunStatusFailed, ErrorMessage: "slot 1 generate: malformed response"},
	}
	p, rec := newTestPoller(ledger, &fakeInliner{})
	defer p.Close()

	p.SetEnabled(true)
	require.Eventually(t, func() bool { return rec.Len() > 0 }, time.Second, time.Millisecond)
	u := rec.All()[0]
	assert.Len(t, u.Candidates, 1)
	assert.False(t, u.Complete)
	require.NotNil(t, u.Run)
	assert.Equal(t, domain.RunStatusFailed, u.Run.Status)
}

func TestPoller_CloseWaitsForTicks(t *testing.T) {
	reader := &stuckReader{}
	p, rec := newTestPoller(reader, &fakeInliner{})

	p.SetEnabled(true)
	require.Eventually(t, func() bool { return reader.started.Load() > 0 }, time.Second, time.Millisecond)
	p.Close()
	assert.Equal(t, reader.started.Load(), reader.returned.Load(), "Close returned with ticks still running")
	assert.Zero(t, rec.Len())

	p.SetEnabled(true)
	time.Sleep(3 * testInterval)
	assert.Equal(t, PhaseInProgress, p.Phase())
	assert.Zero(t, rec.Len())
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "not_started", PhaseNotStarted.String())
	assert.Equal(t, "in_progress", PhaseInProgress.String())
	assert.Equal(t, "completed", PhaseCompleted.String())
}
