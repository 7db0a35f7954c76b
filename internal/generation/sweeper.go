package generation

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
)

const (
	DefaultStaleRunAfter = 10 * time.Minute
	DefaultSweepInterval = time.Minute
)

type SweeperOptions struct {
	StaleAfter time.Duration
	Interval   time.Duration
	Now        func() time.Time
	Logger     *infra.Logger
}

// Sweeper fails run markers that have not been touched for StaleAfter, so
// observers stop waiting on a process that died mid-run.
type Sweeper struct {
	runs       domain.RunSweeper
	staleAfter time.Duration
	interval   time.Duration
	now        func() time.Time
	logger     zerolog.Logger
}

func NewSweeper(runs domain.RunSweeper, opts SweeperOptions) *Sweeper {
	s := &Sweeper{runs: runs, staleAfter: opts.StaleAfter, interval: opts.Interval, now: opts.Now}
	if s.staleAfter <= 0 {
		s.staleAfter = DefaultStaleRunAfter
	}
	if s.interval <= 0 {
		s.interval = DefaultSweepInterval
	}
	if s.now == nil {
		s.now = time.Now
	}
	if opts.Logger != nil {
		s.logger = *opts.Logger
	} else {
		s.logger = zerolog.New(io.Discard)
	}
	return s
}

func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.staleAfter)
	n, err := s.runs.FailStale(ctx, cutoff, fmt.Sprintf("generation abandoned: no progress for %s", s.staleAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn().Int64("runs", n).Time("cutoff", cutoff).Msg("sweeper: stale runs marked failed")
	}
	return n, nil
}

// Run sweeps immediately and then on every interval until ctx is done.
// Sweep errors are logged and do not stop the loop.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("sweeper: sweep failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
