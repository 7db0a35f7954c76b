package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"portraitgen/internal/delivery"
	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
)

var ErrAlreadyStarted = errors.New("session already started")

// ContextLoader fetches the profile match a session personalizes.
type ContextLoader interface {
	LoadProfile(ctx context.Context, resultID string) (*domain.ProfileMatch, error)
}

// Dispatcher triggers a server-side generation run and returns once it has
// been accepted.
type Dispatcher interface {
	Dispatch(ctx context.Context, req domain.GenerationRequest) error
}

type Config struct {
	ResultID       string
	ReferencePhoto []byte
	PhotoMIME      string
	Loader         ContextLoader
	Dispatcher     Dispatcher
	Reader         delivery.LedgerReader
	Inliner        delivery.Inliner
	PollInterval   time.Duration
	Logger         *infra.Logger
}

// Session drives one client-side generation: load the profile, dispatch the
// run, then follow the ledger through the poller until complete or failed.
type Session struct {
	cfg    Config
	poller *delivery.Poller
	logger zerolog.Logger

	mu        sync.Mutex
	state     State
	started   bool
	index     int
	loaded    bool
	listeners map[int]func(State)
	nextSub   int
}

func New(cfg Config) *Session {
	s := &Session{cfg: cfg, state: Idle{}, listeners: make(map[int]func(State))}
	if cfg.Logger != nil {
		s.logger = cfg.Logger.With().Str("result_id", cfg.ResultID).Logger()
	} else {
		s.logger = zerolog.New(io.Discard)
	}
	s.poller = delivery.NewPoller(cfg.ResultID, cfg.Reader, cfg.Inliner, delivery.Options{
		Interval: cfg.PollInterval,
		Expected: domain.SlotCount,
		OnUpdate: s.onUpdate,
		Logger:   cfg.Logger,
	})
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every state change. fn runs with the session
// locked and must not call back into it. The returned func unsubscribes.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Start loads the profile context and, on success, dispatches the run without
// waiting for it. Context failures leave the session in Failed and are not
// returned; only a second Start is an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.setLocked(LoadingContext{})
	s.mu.Unlock()

	profile, err := s.cfg.Loader.LoadProfile(ctx, s.cfg.ResultID)
	if err != nil {
		s.logger.Error().Err(err).Msg("session: profile lookup failed")
		s.fail(fmt.Errorf("load profile: %w", err))
		return nil
	}

	s.mu.Lock()
	if Terminal(s.state) {
		s.mu.Unlock()
		return nil
	}
	s.setLocked(Generating{Context: *profile, Slots: pendingSlots()})
	s.mu.Unlock()

	req := domain.GenerationRequest{
		ResultID:       s.cfg.ResultID,
		ReferencePhoto: s.cfg.ReferencePhoto,
		PhotoMIME:      s.cfg.PhotoMIME,
		CandidateCount: domain.SlotCount,
	}
	go func() {
		if err := s.cfg.Dispatcher.Dispatch(ctx, req); err != nil {
			s.logger.Error().Err(err).Msg("session: dispatch rejected")
			s.fail(fmt.Errorf("dispatch generation: %w", err))
			return
		}
		s.mu.Lock()
		_, generating := s.state.(Generating)
		s.mu.Unlock()
		if generating {
			s.poller.SetEnabled(true)
		}
	}()
	return nil
}

// Close stops polling. The session keeps its last state.
func (s *Session) Close() {
	s.poller.Close()
}

func (s *Session) onUpdate(u delivery.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.state.(Generating)
	if !ok {
		return
	}
	if u.Run != nil && u.Run.Status == domain.RunStatusFailed {
		s.setLocked(Failed{Cause: &RunFailedError{ResultID: s.cfg.ResultID, Message: u.Run.ErrorMessage}})
		go s.poller.SetEnabled(false)
		return
	}

	slots := rebuildSlots(gen.Slots, u.Candidates)
	next := Generating{Context: gen.Context, Slots: slots}
	if u.Complete && next.ReadyCount() > 0 {
		s.setLocked(Complete{Context: gen.Context, Candidates: readyCandidates(slots)})
		return
	}
	s.setLocked(next)
}

func (s *Session) fail(cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if Terminal(s.state) {
		return
	}
	s.setLocked(Failed{Cause: cause})
	go s.poller.SetEnabled(false)
}

func (s *Session) setLocked(next State) {
	s.state = next
	s.clampLocked()
	s.logger.Debug().Str("state", next.Name()).Msg("session: state changed")
	for _, fn := range s.listeners {
		fn(next)
	}
}
