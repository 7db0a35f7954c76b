// Package apiclient talks to the portrait API on behalf of client sessions.
package apiclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"portraitgen/internal/delivery"
	"portraitgen/internal/domain"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx answer decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api status %d: %s: %s", e.Status, e.Code, e.Message)
}

// Is maps well-known statuses onto domain sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrProviderFailure:
		return e.Status == http.StatusBadGateway
	}
	return false
}

type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a client for baseURL. A nil httpClient gets a 30s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

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
	Error          string    `json:"error"`
	StartedAt      time.Time `json:"startedAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type snapshotData struct {
	OwningResultID string         `json:"owningResultId"`
	Candidates     []candidateRow `json:"candidates"`
	Run            *runStatus     `json:"run"`
}

// GenerateResult is the decoded answer of the generate endpoint. Exactly one
// of ArtifactURL (single candidate) or Pending (multi candidate) is set.
type GenerateResult struct {
	ArtifactURL string
	SlotIndex   int
	Pending     []int
}

// Generate posts a generation request and decodes either response shape.
func (c *Client) Generate(ctx context.Context, req domain.GenerationRequest) (*GenerateResult, error) {
	payload := map[string]any{
		"owningResultId": req.ResultID,
		"referencePhoto": "data:" + photoMIME(req) + ";base64," + base64.StdEncoding.EncodeToString(req.ReferencePhoto),
	}
	if req.CandidateCount > 0 {
		payload["candidateCount"] = req.CandidateCount
	}
	var data struct {
		ArtifactURL string `json:"artifactUrl"`
		SlotIndex   int    `json:"slotIndex"`
		Candidates  []struct {
			SlotIndex int    `json:"slotIndex"`
			Status    string `json:"status"`
		} `json:"candidates"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/portraits/generate", payload, &data); err != nil {
		return nil, err
	}
	out := &GenerateResult{ArtifactURL: data.ArtifactURL, SlotIndex: data.SlotIndex}
	for _, p := range data.Candidates {
		out.Pending = append(out.Pending, p.SlotIndex)
	}
	return out, nil
}

// Dispatch triggers a run and returns once the server has accepted it.
func (c *Client) Dispatch(ctx context.Context, req domain.GenerationRequest) error {
	_, err := c.Generate(ctx, req)
	return err
}

func (c *Client) Snapshot(ctx context.Context, resultID string) (delivery.Snapshot, error) {
	var data snapshotData
	if err := c.do(ctx, http.MethodGet, "/v1/results/"+url.PathEscape(resultID)+"/candidates", nil, &data); err != nil {
		return delivery.Snapshot{}, err
	}
	snap := delivery.Snapshot{Candidates: make([]domain.Candidate, 0, len(data.Candidates))}
	for _, row := range data.Candidates {
		snap.Candidates = append(snap.Candidates, domain.Candidate{
			ID:          row.ID,
			ResultID:    row.OwningResultID,
			SlotIndex:   row.SlotIndex,
			ArtifactURL: row.ArtifactURL,
			PromptText:  row.PromptText,
			IsPrimary:   row.IsPrimarySlot,
			CreatedAt:   row.CreatedAt,
		})
	}
	if data.Run != nil {
		snap.Run = &domain.GenerationRun{
			ResultID:       resultID,
			Status:         domain.RunStatus(data.Run.Status),
			CandidateCount: data.Run.CandidateCount,
			ErrorMessage:   data.Run.Error,
			StartedAt:      data.Run.StartedAt,
			UpdatedAt:      data.Run.UpdatedAt,
		}
	}
	return snap, nil
}

func (c *Client) LoadProfile(ctx context.Context, resultID string) (*domain.ProfileMatch, error) {
	var data struct {
		OwningResultID string `json:"owningResultId"`
		TribeName      string `json:"tribeName"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/results/"+url.PathEscape(resultID)+"/profile", nil, &data); err != nil {
		return nil, err
	}
	return &domain.ProfileMatch{ResultID: data.OwningResultID, TribeName: data.TribeName}, nil
}

// Cleanup deletes every stored candidate for resultID and reports how many went.
func (c *Client) Cleanup(ctx context.Context, resultID string) (int64, error) {
	var data struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/v1/results/"+url.PathEscape(resultID)+"/candidates", nil, &data); err != nil {
		return 0, err
	}
	return data.Deleted, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{Status: resp.StatusCode, Code: "unknown", Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{Status: resp.StatusCode, Code: "unknown", Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s %s: decode data: %w", method, path, err)
	}
	return nil
}

func photoMIME(req domain.GenerationRequest) string {
	if req.PhotoMIME != "" {
		return req.PhotoMIME
	}
	return http.DetectContentType(req.ReferencePhoto)
}
