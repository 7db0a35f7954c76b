package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
	"portraitgen/internal/providers/genai"
	"portraitgen/internal/storage"
)

// DefaultInterCallDelay is the pause before every generation call after the first.
const DefaultInterCallDelay = 2 * time.Second

// ImageGenerator is the Generation Client contract.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error)
}

// ArtifactStore uploads bytes under a key and returns a public URL.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte) (string, error)
}

// Options wires an Orchestrator.
type Options struct {
	Prompts        domain.PromptSource
	Generator      ImageGenerator
	Store          ArtifactStore
	Ledger         domain.CandidateRepository
	Retry          RetryPolicy
	InterCallDelay time.Duration
	Sleep          Sleeper
	Now            func() time.Time
	Logger         *infra.Logger
	Metrics        *Metrics

	// Runs, when set, is touched after every stored candidate so the sweeper
	// sees progress. A run whose marker is no longer running stops.
	Runs domain.RunToucher
}

// Orchestrator produces the candidates of one result, one at a time.
type Orchestrator struct {
	prompts        domain.PromptSource
	generator      ImageGenerator
	store          ArtifactStore
	ledger         domain.CandidateRepository
	runs           domain.RunToucher
	retry          RetryPolicy
	interCallDelay time.Duration
	sleep          Sleeper
	now            func() time.Time
	logger         infra.Logger
	metrics        *Metrics
}

// SlotError reports which slot and stage stopped a run.
type SlotError struct {
	Index int
	Stage string
	Err   error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("slot %d %s: %v", e.Index, e.Stage, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }

const (
	StageGenerate = "generate"
	StageUpload   = "upload"
	StagePersist  = "persist"
)

func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		prompts:        opts.Prompts,
		generator:      opts.Generator,
		store:          opts.Store,
		ledger:         opts.Ledger,
		runs:           opts.Runs,
		retry:          opts.Retry,
		interCallDelay: opts.InterCallDelay,
		sleep:          opts.Sleep,
		now:            opts.Now,
		metrics:        opts.Metrics,
	}
	if o.retry.MaxAttempts == 0 && o.retry.BaseDelay == 0 {
		o.retry = DefaultRetryPolicy()
	}
	if o.interCallDelay <= 0 {
		o.interCallDelay = DefaultInterCallDelay
	}
	if o.sleep == nil {
		o.sleep = SleepContext
	}
	if opts.Retry.Sleep == nil {
		o.retry.Sleep = o.sleep
	}
	if o.now == nil {
		o.now = time.Now
	}
	if opts.Logger != nil {
		o.logger = *opts.Logger
	} else {
		o.logger = zerolog.New(io.Discard)
	}
	return o
}

// Run resolves the prompt and then generates, uploads and records each slot in
// order. The first slot that cannot be completed ends the run; rows written
// before it remain in the ledger and are returned alongside the error.
func (o *Orchestrator) Run(ctx context.Context, req domain.GenerationRequest) ([]domain.Candidate, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := o.logger.With().Str("result_id", req.ResultID).Int("candidate_count", req.CandidateCount).Logger()

	prompt, err := o.prompts.PromptFor(ctx, req.ResultID)
	if err != nil {
		log.Error().Err(err).Msg("generation: prompt lookup failed")
		return nil, fmt.Errorf("resolve prompt: %w", err)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("resolve prompt: %w", domain.ErrPromptUnavailable)
	}

	candidates := make([]domain.Candidate, 0, req.CandidateCount)
	for index := 0; index < req.CandidateCount; index++ {
		if index > 0 {
			if err := o.sleep(ctx, o.interCallDelay); err != nil {
				return candidates, err
			}
		}
		candidate, err := o.produce(ctx, req, prompt, index)
		if err != nil {
			log.Error().Err(err).Int("slot_index", index).Int("stored", len(candidates)).Msg("generation: run aborted")
			return candidates, err
		}
		log.Info().Int("slot_index", index).Str("artifact_url", candidate.ArtifactURL).Msg("generation: candidate stored")
		candidates = append(candidates, candidate)
		if err := o.touch(ctx, req.ResultID); err != nil {
			log.Warn().Err(err).Int("slot_index", index).Int("stored", len(candidates)).Msg("generation: run marker closed, stopping")
			return candidates, err
		}
	}
	return candidates, nil
}

func (o *Orchestrator) touch(ctx context.Context, resultID string) error {
	if o.runs == nil {
		return nil
	}
	err := o.runs.Touch(ctx, resultID)
	if err == nil || errors.Is(err, domain.ErrRunNotRunning) {
		return err
	}
	o.logger.Warn().Err(err).Str("result_id", resultID).Msg("generation: run marker touch failed")
	return nil
}

func (o *Orchestrator) produce(ctx context.Context, req domain.GenerationRequest, prompt string, index int) (domain.Candidate, error) {
	var asset *genai.ImageAsset
	policy := o.retry
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		o.metrics.attempt("rate_limited")
		o.logger.Warn().
			Err(err).
			Str("result_id", req.ResultID).
			Int("slot_index", index).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("generation: rate limited, backing off")
	}
	err := policy.Do(ctx, func(ctx context.Context) error {
		out, err := o.generator.GenerateImage(ctx, genai.ImageRequest{
			Prompt:        prompt,
			Reference:     req.ReferencePhoto,
			ReferenceMIME: req.PhotoMIME,
			RequestID:     req.ResultID,
			SlotIndex:     index,
		})
		if err != nil {
			return err
		}
		if out == nil || len(out.Data) == 0 {
			return genai.ErrNoImage
		}
		asset = out
		return nil
	})
	if err != nil {
		var exhausted *RateLimitExhaustedError
		if !errors.As(err, &exhausted) {
			o.metrics.attempt("failed")
		}
		return domain.Candidate{}, &SlotError{Index: index, Stage: StageGenerate, Err: fmt.Errorf("%w: %w", domain.ErrProviderFailure, err)}
	}
	o.metrics.attempt("success")

	createdAt := o.now().UTC()
	key := storage.ArtifactKey(req.ResultID, createdAt, index, asset.Format)
	url, err := o.store.Upload(ctx, key, asset.Data)
	if err != nil {
		return domain.Candidate{}, &SlotError{Index: index, Stage: StageUpload, Err: fmt.Errorf("%w: %w", domain.ErrStorageFailure, err)}
	}

	stored, err := o.ledger.Upsert(ctx, domain.Candidate{
		ResultID:    req.ResultID,
		SlotIndex:   index,
		ArtifactURL: url,
		PromptText:  prompt,
		CreatedAt:   createdAt,
	})
	if err != nil {
		return domain.Candidate{}, &SlotError{Index: index, Stage: StagePersist, Err: err}
	}
	o.metrics.candidateStored()
	return stored, nil
}
