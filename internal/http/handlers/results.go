package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"portraitgen/internal/delivery"
	"portraitgen/internal/domain"
)

type candidateRow struct {
	ID             string    `json:"id"`
	OwningResultID string    `json:"owningResultId"`
	ArtifactURL    string    `json:"artifactUrl"`
	PromptText     string    `json:"promptText"`
	SlotIndex      int       `json:"slotIndex"`
	IsPrimarySlot  bool      `json:"isPrimarySlot"`
	CreatedAt      time.Time `json:"createdAt"`
}

type runStatus struct {
	Status         string    `json:"status"`
	CandidateCount int       `json:"candidateCount"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"startedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type snapshotResponse struct {
	OwningResultID string         `json:"owningResultId"`
	Candidates     []candidateRow `json:"candidates"`
	Run            *runStatus     `json:"run,omitempty"`
}

type profileResponse struct {
	OwningResultID string `json:"owningResultId"`
	TribeName      string `json:"tribeName"`
}

func (a *App) resultID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "result_id"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "result_id must be a UUID")
		return "", false
	}
	return id.String(), true
}

// ResultCandidates returns the full ledger snapshot for a result plus the
// run marker when one exists.
func (a *App) ResultCandidates(w http.ResponseWriter, r *http.Request) {
	id, ok := a.resultID(w, r)
	if !ok {
		return
	}
	snap, err := delivery.RepositoryReader{Candidates: a.Ledger, Runs: a.Runs}.Snapshot(r.Context(), id)
	if err != nil {
		a.fail(w, r, err, "failed to load candidates")
		return
	}
	resp := snapshotResponse{OwningResultID: id, Candidates: make([]candidateRow, 0, len(snap.Candidates))}
	for _, c := range snap.Candidates {
		resp.Candidates = append(resp.Candidates, toRow(c))
	}
	if snap.Run != nil {
		resp.Run = &runStatus{
			Status:         string(snap.Run.Status),
			CandidateCount: snap.Run.CandidateCount,
			Error:          snap.Run.ErrorMessage,
			StartedAt:      snap.Run.StartedAt,
			UpdatedAt:      snap.Run.UpdatedAt,
		}
	}
	a.ok(w, http.StatusOK, resp)
}

// ResultCandidatesDelete is the out-of-band cleanup: it removes every row and
// the run marker for the result.
func (a *App) ResultCandidatesDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := a.resultID(w, r)
	if !ok {
		return
	}
	n, err := a.Ledger.DeleteByResult(r.Context(), id)
	if err != nil {
		a.fail(w, r, err, "failed to delete candidates")
		return
	}
	if err := a.Runs.Delete(r.Context(), id); err != nil {
		a.fail(w, r, err, "failed to delete run marker")
		return
	}
	a.logger(r).Info().Str("result_id", id).Int64("deleted", n).Msg("results: candidates deleted")
	a.ok(w, http.StatusOK, map[string]any{"owningResultId": id, "deleted": n})
}

func (a *App) ResultProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := a.resultID(w, r)
	if !ok {
		return
	}
	profile, err := a.Prompts.ProfileFor(r.Context(), id)
	if err != nil {
		a.fail(w, r, err, "profile not found")
		return
	}
	a.ok(w, http.StatusOK, profileResponse{OwningResultID: profile.ResultID, TribeName: profile.TribeName})
}

func toRow(c domain.Candidate) candidateRow {
	return candidateRow{
		ID:             c.ID,
		OwningResultID: c.ResultID,
		ArtifactURL:    c.ArtifactURL,
		PromptText:     c.PromptText,
		SlotIndex:      c.SlotIndex,
		IsPrimarySlot:  c.IsPrimary,
		CreatedAt:      c.CreatedAt,
	}
}
