package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
)

// Runner executes one generation run to completion.
type Runner interface {
	Run(ctx context.Context, req domain.GenerationRequest) ([]domain.Candidate, error)
}

// Dispatcher starts runs in the background and records their outcome in the
// run marker store. A dispatched run is never cancelled by its caller.
type Dispatcher struct {
	runner  Runner
	runs    domain.RunRepository
	logger  infra.Logger
	metrics *Metrics
	wg      sync.WaitGroup

	// done, when set, is called after every background run; tests use it to
	// observe completion.
	done func(resultID string, candidates []domain.Candidate, err error)
}

func NewDispatcher(runner Runner, runs domain.RunRepository, logger *infra.Logger, metrics *Metrics) *Dispatcher {
	d := &Dispatcher{runner: runner, runs: runs, metrics: metrics}
	if logger != nil {
		d.logger = *logger
	} else {
		d.logger = zerolog.New(io.Discard)
	}
	return d
}

// OnDone registers a completion observer. It must be set before the first Dispatch.
func (d *Dispatcher) OnDone(fn func(resultID string, candidates []domain.Candidate, err error)) {
	d.done = fn
}

// Dispatch validates req, marks the run as running and returns without
// waiting for it. Validation or marker failures are returned synchronously and
// nothing is started.
func (d *Dispatcher) Dispatch(ctx context.Context, req domain.GenerationRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if err := d.runs.Start(ctx, req.ResultID, req.CandidateCount); err != nil {
		return fmt.Errorf("record run start: %w", err)
	}
	d.metrics.runStarted()

	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		candidates, err := d.execute(runCtx, req)
		if d.done != nil {
			d.done(req.ResultID, candidates, err)
		}
	}()

	d.logger.Info().
		Str("result_id", req.ResultID).
		Int("candidate_count", req.CandidateCount).
		Msg("generation: run dispatched")
	return nil
}

// RunNow performs a run in the calling goroutine with the same bookkeeping as
// Dispatch. It backs the single-candidate request shape.
func (d *Dispatcher) RunNow(ctx context.Context, req domain.GenerationRequest) ([]domain.Candidate, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := d.runs.Start(ctx, req.ResultID, req.CandidateCount); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}
	d.metrics.runStarted()
	return d.execute(ctx, req)
}

func (d *Dispatcher) execute(ctx context.Context, req domain.GenerationRequest) (candidates []domain.Candidate, err error) {
	log := d.logger.With().Str("result_id", req.ResultID).Logger()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("generation run panicked: %v", r)
		}
		status, msg := domain.RunStatusSucceeded, ""
		if err != nil {
			status, msg = domain.RunStatusFailed, err.Error()
			log.Error().Err(err).Int("stored", len(candidates)).Msg("generation: run failed")
		} else {
			log.Info().Int("stored", len(candidates)).Msg("generation: run finished")
		}
		d.metrics.runFinished(string(status))
		// The marker write must not depend on the caller still being around.
		ferr := d.runs.Finish(context.WithoutCancel(ctx), req.ResultID, status, msg)
		switch {
		case errors.Is(ferr, domain.ErrRunNotRunning):
			log.Warn().Str("status", string(status)).Msg("generation: run marker already closed, outcome not recorded")
		case ferr != nil:
			log.Error().Err(ferr).Msg("generation: record run outcome failed")
		}
	}()
	return d.runner.Run(ctx, req)
}

// Wait blocks until every dispatched run has finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
