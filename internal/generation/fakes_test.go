package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"portraitgen/internal/domain"
	"portraitgen/internal/providers/genai"
)

// fakeClock advances only when something sleeps on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type generatorCall struct {
	slot  int
	start time.Time
	end   time.Time
}

// scriptedGenerator answers each slot from a per-slot script; the last entry repeats.
type scriptedGenerator struct {
	mu       sync.Mutex
	clock    *fakeClock
	latency  time.Duration
	script   map[int][]error
	calls    []generatorCall
	inflight int
	maxInfl  int
}

func newScriptedGenerator(clock *fakeClock) *scriptedGenerator {
	return &scriptedGenerator{clock: clock, latency: 500 * time.Millisecond, script: make(map[int][]error)}
}

func (g *scriptedGenerator) GenerateImage(ctx context.Context, req genai.ImageRequest) (*genai.ImageAsset, error) {
	g.mu.Lock()
	g.inflight++
	if g.inflight > g.maxInfl {
		g.maxInfl = g.inflight
	}
	start := g.clock.Now()
	steps := g.script[req.SlotIndex]
	n := 0
	for _, c := range g.calls {
		if c.slot == req.SlotIndex {
			n++
		}
	}
	var err error
	if len(steps) > 0 {
		if n < len(steps) {
			err = steps[n]
		} else {
			err = steps[len(steps)-1]
		}
	}
	g.mu.Unlock()

	g.clock.Advance(g.latency)

	g.mu.Lock()
	defer g.mu.Unlock()
	g.inflight--
	g.calls = append(g.calls, generatorCall{slot: req.SlotIndex, start: start, end: g.clock.Now()})
	if err != nil {
		return nil, err
	}
	return &genai.ImageAsset{Data: []byte(fmt.Sprintf("img-%d", req.SlotIndex)), Format: "image/png"}, nil
}

func (g *scriptedGenerator) Calls() []generatorCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generatorCall(nil), g.calls...)
}

type memoryStore struct {
	mu      sync.Mutex
	uploads map[string][]byte
	fail    map[int]error
	count   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{uploads: make(map[string][]byte), fail: make(map[int]error)}
}

func (s *memoryStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.count
	s.count++
	if err := s.fail[idx]; err != nil {
		return "", err
	}
	s.uploads[key] = data
	return "https://cdn.example.com/" + key, nil
}

type failingPrompts struct{ err error }

func (f failingPrompts) PromptFor(ctx context.Context, resultID string) (string, error) {
	return "", f.err
}

func (f failingPrompts) ProfileFor(ctx context.Context, resultID string) (*domain.ProfileMatch, error) {
	return nil, f.err
}

var (
	errRateLimited = &genai.StatusError{StatusCode: 429, Message: "Resource has been exhausted"}
	errTerminal    = errors.New("malformed response")
)
