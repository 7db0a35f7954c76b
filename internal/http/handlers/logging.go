package handlers

import (
	"net/http"

	"github.com/rs/zerolog"
)

// logger prefers the request-scoped logger installed by the request id middleware.
func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}
