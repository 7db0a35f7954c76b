package session

import "portraitgen/internal/delivery"

func (s *Session) lengthLocked() int {
	switch st := s.state.(type) {
	case Generating:
		return len(st.Slots)
	case Complete:
		return len(st.Candidates)
	}
	return 0
}

func (s *Session) clampLocked() {
	n := s.lengthLocked()
	idx := s.index
	if idx > n-1 {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	s.moveLocked(idx)
}

func (s *Session) moveLocked(idx int) {
	if idx != s.index {
		s.index = idx
		s.loaded = false
	}
}

func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// CurrentCandidate is the candidate under the cursor, nil while its slot is
// still pending or outside Generating and Complete.
func (s *Session) CurrentCandidate() *delivery.Candidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentLocked()
}

func (s *Session) currentLocked() *delivery.Candidate {
	switch st := s.state.(type) {
	case Generating:
		if s.index < len(st.Slots) && st.Slots[s.index].Status == SlotReady {
			return st.Slots[s.index].Candidate
		}
	case Complete:
		if s.index < len(st.Candidates) {
			c := st.Candidates[s.index]
			return &c
		}
	}
	return nil
}

func (s *Session) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index < s.lengthLocked()-1 {
		s.moveLocked(s.index + 1)
	}
}

func (s *Session) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index > 0 {
		s.moveLocked(s.index - 1)
	}
}

func (s *Session) CanGoNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index < s.lengthLocked()-1
}

func (s *Session) CanGoPrevious() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index > 0
}

// MarkLoaded records that the view finished loading the artifact at index.
// Reports for an index that is no longer selected are ignored.
func (s *Session) MarkLoaded(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index == s.index && s.currentLocked() != nil {
		s.loaded = true
	}
}

// ReadyForExport gates download and export of the current candidate.
func (s *Session) ReadyForExport() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded && s.currentLocked() != nil
}
