package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"portraitgen/internal/generation"
)

type singleResponse struct {
	ArtifactURL string `json:"artifactUrl"`
	SlotIndex   int    `json:"slotIndex"`
}

type pendingCandidate struct {
	SlotIndex int    `json:"slotIndex"`
	Status    string `json:"status"`
}

type multiResponse struct {
	OwningResultID string             `json:"owningResultId"`
	CandidateCount int                `json:"candidateCount"`
	Candidates     []pendingCandidate `json:"candidates"`
}

// PortraitsGenerate accepts a generation request. A single candidate is
// produced inline for older clients; more than one is dispatched in the
// background and answered with 202 and pending slots.
func (a *App) PortraitsGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&body); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req, err := body.toDomain()
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	if _, err := a.Prompts.PromptFor(r.Context(), req.ResultID); err != nil {
		a.fail(w, r, err, "no generation prompt for result")
		return
	}

	if req.CandidateCount == 1 {
		candidates, err := a.Generator.RunNow(r.Context(), req)
		if err != nil {
			a.fail(w, r, err, "generation failed")
			return
		}
		if len(candidates) == 0 {
			a.fail(w, r, errors.New("run produced no candidate"), "generation failed")
			return
		}
		a.ok(w, http.StatusOK, singleResponse{ArtifactURL: candidates[0].ArtifactURL, SlotIndex: candidates[0].SlotIndex})
		return
	}

	if err := a.Generator.Dispatch(r.Context(), req); err != nil {
		a.fail(w, r, err, "failed to start generation")
		return
	}
	pending := make([]pendingCandidate, req.CandidateCount)
	for i := range pending {
		pending[i] = pendingCandidate{SlotIndex: i, Status: "pending"}
	}
	a.logger(r).Info().
		Str("result_id", req.ResultID).
		Int("candidate_count", req.CandidateCount).
		Msg("portraits: generation accepted")
	a.ok(w, http.StatusAccepted, multiResponse{
		OwningResultID: req.ResultID,
		CandidateCount: req.CandidateCount,
		Candidates:     pending,
	})
}

var _ Generator = (*generation.Dispatcher)(nil)
