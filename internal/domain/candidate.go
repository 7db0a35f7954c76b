package domain

import "time"

const (
	// SlotCount is the fixed number of candidate positions in one client session.
	SlotCount = 3
	// MaxCandidateCount bounds how many candidates a single request may ask for.
	MaxCandidateCount = 10
)

// Candidate is one row of the Result Ledger: a generated artifact stored for a slot.
type Candidate struct {
	ID          string
	ResultID    string
	SlotIndex   int
	ArtifactURL string
	PromptText  string
	IsPrimary   bool
	CreatedAt   time.Time
}

// GenerationRequest is the ephemeral input of one orchestrator run.
type GenerationRequest struct {
	ResultID       string
	ReferencePhoto []byte
	PhotoMIME      string
	CandidateCount int
}

// Validate enforces the request bounds without touching any collaborator.
func (r GenerationRequest) Validate() error {
	if r.ResultID == "" {
		return ErrInvalidResultID
	}
	if len(r.ReferencePhoto) == 0 {
		return ErrInvalidPhoto
	}
	if r.CandidateCount < 1 || r.CandidateCount > MaxCandidateCount {
		return ErrInvalidCandidateCount
	}
	return nil
}

// ProfileMatch is the prerequisite context the client loads before generating.
type ProfileMatch struct {
	ResultID  string
	TribeName string
}
