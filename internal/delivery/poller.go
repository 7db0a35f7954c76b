package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
)

const (
	DefaultInterval = time.Second
	DefaultExpected = domain.SlotCount
)

// Snapshot is one full read of the ledger for an owning result.
type Snapshot struct {
	Candidates []domain.Candidate
	// Run is the server-side run marker, nil when none was recorded.
	Run *domain.GenerationRun
}

// LedgerReader returns the current ledger contents for a result.
type LedgerReader interface {
	Snapshot(ctx context.Context, resultID string) (Snapshot, error)
}

// Inliner converts an artifact URL into an inline data URL.
type Inliner interface {
	Inline(ctx context.Context, url string) (string, error)
}

// Candidate is a ledger row whose artifact has been inlined.
type Candidate struct {
	domain.Candidate
	DataURL string
}

// Update is what one poll tick reports. Candidates is always the full list of
// converted rows, never a diff.
type Update struct {
	ResultID   string
	Candidates []Candidate
	Complete   bool
	// Err carries a fetch or conversion failure; the loop keeps running.
	Err error
	Run *domain.GenerationRun
}

// Phase is the poller's lifecycle. PhaseCompleted is sticky.
type Phase int

const (
	PhaseNotStarted Phase = iota
	PhaseInProgress
	PhaseCompleted
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not_started"
	case PhaseInProgress:
		return "in_progress"
	case PhaseCompleted:
		return "completed"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

type Options struct {
	Interval time.Duration
	Expected int
	// OnUpdate receives every delivered update. It runs with the poller
	// locked and must not call back into the Poller.
	OnUpdate func(Update)
	Logger   *infra.Logger
}

// Poller repeatedly snapshots the ledger for one owning result while enabled.
// Ticks are scheduled on a fixed interval regardless of how long a fetch
// takes; a tick that finishes after a newer one has been delivered is dropped.
type Poller struct {
	resultID string
	reader   LedgerReader
	inliner  Inliner
	interval time.Duration
	expected int
	onUpdate func(Update)
	logger   zerolog.Logger

	mu        sync.Mutex
	phase     Phase
	cancel    context.CancelFunc
	epoch     uint64
	scheduled uint64
	delivered uint64
	closed    bool
	wg        sync.WaitGroup
}

func NewPoller(resultID string, reader LedgerReader, inliner Inliner, opts Options) *Poller {
	p := &Poller{
		resultID: resultID,
		reader:   reader,
		inliner:  inliner,
		interval: opts.Interval,
		expected: opts.Expected,
		onUpdate: opts.OnUpdate,
	}
	if p.interval <= 0 {
		p.interval = DefaultInterval
	}
	if p.expected <= 0 {
		p.expected = DefaultExpected
	}
	if p.onUpdate == nil {
		p.onUpdate = func(Update) {}
	}
	if opts.Logger != nil {
		p.logger = opts.Logger.With().Str("result_id", resultID).Logger()
	} else {
		p.logger = zerolog.New(io.Discard)
	}
	return p
}

func (p *Poller) Phase() Phase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}

// SetEnabled starts or stops polling. Enabling performs an immediate fetch and
// then one per interval; it is a no-op once completion has been observed.
// Disabling takes effect before SetEnabled returns: no update is delivered
// afterwards.
func (p *Poller) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !enabled {
		p.stopLocked()
		return
	}
	if p.closed || p.cancel != nil || p.phase == PhaseCompleted {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.epoch++
	p.phase = PhaseInProgress
	p.wg.Add(1)
	go p.loop(ctx, p.epoch)
}

// Close disables the poller for good and waits for in-flight ticks to return.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) stopLocked() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.epoch++
}

func (p *Poller) loop(ctx context.Context, epoch uint64) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.spawn(ctx, epoch)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.spawn(ctx, epoch)
		}
	}
}

func (p *Poller) spawn(ctx context.Context, epoch uint64) {
	p.mu.Lock()
	if p.epoch != epoch {
		p.mu.Unlock()
		return
	}
	p.scheduled++
	seq := p.scheduled
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		update := p.fetch(ctx)
		if ctx.Err() != nil {
			return
		}
		p.deliver(epoch, seq, update)
	}()
}

func (p *Poller) fetch(ctx context.Context) Update {
	update := Update{ResultID: p.resultID}
	snap, err := p.reader.Snapshot(ctx, p.resultID)
	if err != nil {
		update.Err = fmt.Errorf("fetch ledger: %w", err)
		return update
	}
	update.Run = snap.Run

	var convErrs []error
	for _, c := range snap.Candidates {
		dataURL, err := p.inliner.Inline(ctx, c.ArtifactURL)
		if err != nil {
			convErrs = append(convErrs, fmt.Errorf("slot %d: %w", c.SlotIndex, err))
			continue
		}
		update.Candidates = append(update.Candidates, Candidate{Candidate: c, DataURL: dataURL})
	}
	update.Err = errors.Join(convErrs...)
	update.Complete = len(update.Candidates) >= p.expected
	return update
}

func (p *Poller) deliver(epoch, seq uint64, update Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.epoch != epoch || p.phase == PhaseCompleted || seq <= p.delivered {
		return
	}
	p.delivered = seq
	if update.Err != nil {
		p.logger.Warn().Err(update.Err).Int("candidates", len(update.Candidates)).Msg("delivery: poll tick failed")
	}
	if update.Complete {
		p.phase = PhaseCompleted
		p.stopLocked()
		p.logger.Info().Int("candidates", len(update.Candidates)).Msg("delivery: all candidates discovered")
	}
	p.onUpdate(update)
}
