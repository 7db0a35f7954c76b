package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"portraitgen/internal/domain"
	"portraitgen/internal/infra"
)

// Generator is the slice of the generation dispatcher the handlers need.
type Generator interface {
	Dispatch(ctx context.Context, req domain.GenerationRequest) error
	RunNow(ctx context.Context, req domain.GenerationRequest) ([]domain.Candidate, error)
}

// Pinger reports backing store health; nil means nothing to check.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Config    *infra.Config
	Logger    infra.Logger
	Ledger    domain.CandidateRepository
	Runs      domain.RunRepository
	Prompts   domain.PromptSource
	Generator Generator
	DB        Pinger
	Gatherer  prometheus.Gatherer
}

type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) ok(w http.ResponseWriter, code int, data any) {
	a.json(w, code, envelope{Success: true, Data: data})
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, envelope{Error: &errorBody{Code: code, Message: message}})
}

// fail maps a domain error onto the HTTP error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch {
	case errors.Is(err, domain.ErrInvalidResultID),
		errors.Is(err, domain.ErrInvalidPhoto),
		errors.Is(err, domain.ErrInvalidCandidateCount):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrPromptUnavailable):
		a.error(w, http.StatusNotFound, "not_found", message)
	case errors.Is(err, domain.ErrProviderFailure):
		a.logger(r).Error().Err(err).Msg(message)
		a.error(w, http.StatusBadGateway, "generation_failed", message)
	default:
		a.logger(r).Error().Err(err).Msg(message)
		a.error(w, http.StatusInternalServerError, "internal", message)
	}
}
