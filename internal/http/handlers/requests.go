package handlers

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"portraitgen/internal/domain"
)

const maxRequestBody = 16 << 20

type generateRequest struct {
	OwningResultID string `json:"owningResultId"`
	ReferencePhoto string `json:"referencePhoto"`
	CandidateCount *int   `json:"candidateCount,omitempty"`
}

// toDomain validates the payload and decodes the photo. Errors wrap the
// domain validation sentinels.
func (g generateRequest) toDomain() (domain.GenerationRequest, error) {
	id, err := uuid.Parse(strings.TrimSpace(g.OwningResultID))
	if err != nil {
		return domain.GenerationRequest{}, fmt.Errorf("%w: owningResultId must be a UUID", domain.ErrInvalidResultID)
	}
	count := 1
	if g.CandidateCount != nil {
		count = *g.CandidateCount
	}
	if count < 1 || count > domain.MaxCandidateCount {
		return domain.GenerationRequest{}, fmt.Errorf("%w: candidateCount must be between 1 and %d", domain.ErrInvalidCandidateCount, domain.MaxCandidateCount)
	}
	photo, mime, err := decodePhoto(g.ReferencePhoto)
	if err != nil {
		return domain.GenerationRequest{}, err
	}
	return domain.GenerationRequest{
		ResultID:       id.String(),
		ReferencePhoto: photo,
		PhotoMIME:      mime,
		CandidateCount: count,
	}, nil
}

// decodePhoto accepts raw base64 or a data URL and returns the bytes with
// their MIME type (sniffed when the payload carries none).
func decodePhoto(raw string) ([]byte, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", fmt.Errorf("%w: referencePhoto is required", domain.ErrInvalidPhoto)
	}
	mime := ""
	if strings.HasPrefix(raw, "data:") {
		header, body, ok := strings.Cut(raw, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: referencePhoto data URL must be base64", domain.ErrInvalidPhoto)
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		raw = body
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil || len(data) == 0 {
		return nil, "", fmt.Errorf("%w: referencePhoto is not valid base64", domain.ErrInvalidPhoto)
	}
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("%w: referencePhoto must be an image", domain.ErrInvalidPhoto)
	}
	return data, mime, nil
}
