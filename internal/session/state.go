package session

import (
	"fmt"

	"portraitgen/internal/delivery"
	"portraitgen/internal/domain"
)

type SlotStatus string

const (
	SlotPending SlotStatus = "pending"
	SlotReady   SlotStatus = "ready"
	// SlotError exists for renderers; polling never sets it.
	SlotError SlotStatus = "error"
)

// Slot is one of the fixed candidate positions shown while generating.
type Slot struct {
	Index     int
	Status    SlotStatus
	Candidate *delivery.Candidate
}

// State is the presentation state of a session. The set of variants is closed.
type State interface {
	Name() string
	isState()
}

type Idle struct{}

type LoadingContext struct{}

type Generating struct {
	Context domain.ProfileMatch
	Slots   [domain.SlotCount]Slot
}

type Complete struct {
	Context    domain.ProfileMatch
	Candidates []delivery.Candidate
}

type Failed struct {
	Cause error
}

func (Idle) Name() string           { return "idle" }
func (LoadingContext) Name() string { return "loading_context" }
func (Generating) Name() string     { return "generating" }
func (Complete) Name() string       { return "complete" }
func (Failed) Name() string         { return "error" }

func (Idle) isState()           {}
func (LoadingContext) isState() {}
func (Generating) isState()     {}
func (Complete) isState()       {}
func (Failed) isState()         {}

// Terminal reports whether s can no longer change.
func Terminal(s State) bool {
	switch s.(type) {
	case Complete, Failed:
		return true
	}
	return false
}

// ReadyCount is the number of ready slots.
func (g Generating) ReadyCount() int {
	n := 0
	for _, s := range g.Slots {
		if s.Status == SlotReady {
			n++
		}
	}
	return n
}

func pendingSlots() [domain.SlotCount]Slot {
	var slots [domain.SlotCount]Slot
	for i := range slots {
		slots[i] = Slot{Index: i, Status: SlotPending}
	}
	return slots
}

// rebuildSlots derives the slot view from a full candidate list. A slot that
// was ready in prev stays ready even if this update no longer carries it.
func rebuildSlots(prev [domain.SlotCount]Slot, candidates []delivery.Candidate) [domain.SlotCount]Slot {
	next := pendingSlots()
	for i := range candidates {
		c := candidates[i]
		if c.SlotIndex < 0 || c.SlotIndex >= domain.SlotCount {
			continue
		}
		next[c.SlotIndex] = Slot{Index: c.SlotIndex, Status: SlotReady, Candidate: &c}
	}
	for i, p := range prev {
		if p.Status == SlotReady && next[i].Status != SlotReady {
			next[i] = p
		}
	}
	return next
}

func readyCandidates(slots [domain.SlotCount]Slot) []delivery.Candidate {
	out := make([]delivery.Candidate, 0, len(slots))
	for _, s := range slots {
		if s.Status == SlotReady && s.Candidate != nil {
			out = append(out, *s.Candidate)
		}
	}
	return out
}

// RunFailedError reports a failure recorded by the server for the run.
type RunFailedError struct {
	ResultID string
	Message  string
}

func (e *RunFailedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("generation for %s failed", e.ResultID)
	}
	return fmt.Sprintf("generation for %s failed: %s", e.ResultID, e.Message)
}
