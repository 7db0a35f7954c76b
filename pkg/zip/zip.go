// Package zip bundles generated artifacts into a single archive.
package zip

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

const manifestName = "manifest.json"

type Asset struct {
	Filename  string    `json:"filename"`
	MIME      string    `json:"mime"`
	SlotIndex int       `json:"slotIndex"`
	SourceURL string    `json:"sourceUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Data      []byte    `json:"-"`
}

type manifest struct {
	OwningResultID string  `json:"owningResultId"`
	Assets         []Asset `json:"assets"`
}

// ArchiveAssets writes every asset plus a manifest.json describing them.
// Filenames must be unique.
func ArchiveAssets(resultID string, assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	seen := make(map[string]struct{}, len(assets))
	for _, asset := range assets {
		if asset.Filename == "" || asset.Filename == manifestName {
			return nil, fmt.Errorf("invalid asset filename %q", asset.Filename)
		}
		if _, dup := seen[asset.Filename]; dup {
			return nil, fmt.Errorf("duplicate asset filename %q", asset.Filename)
		}
		seen[asset.Filename] = struct{}{}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: asset.Filename, Method: zip.Store, Modified: asset.CreatedAt})
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", asset.Filename, err)
		}
		if _, err := w.Write(asset.Data); err != nil {
			return nil, fmt.Errorf("write %s: %w", asset.Filename, err)
		}
	}

	w, err := zw.Create(manifestName)
	if err != nil {
		return nil, fmt.Errorf("add manifest: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(manifest{OwningResultID: resultID, Assets: assets}); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}
