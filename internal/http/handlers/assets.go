package handlers

import (
	"net/http"
	"path/filepath"
	"strings"
)

// Static serves stored artifacts from the storage root. Directory listings
// are refused.
func (a *App) Static(prefix string) http.Handler {
	root := filepath.Clean(a.Config.StoragePath)
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(root)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			a.error(w, http.StatusNotFound, "not_found", "artifact not found")
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		files.ServeHTTP(w, r)
	})
}
