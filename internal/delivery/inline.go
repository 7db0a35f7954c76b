package delivery

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	defaultInlineTTL     = 30 * time.Minute
	inlineCleanupEvery   = 10 * time.Minute
	defaultMaxInlineSize = 20 << 20
)

// ErrArtifactTooLarge is returned when an artifact exceeds the inline size cap.
var ErrArtifactTooLarge = errors.New("artifact too large to inline")

// DataURLInliner turns artifact URLs into self-contained data URLs so callers
// can draw them without cross-origin restrictions. Converted URLs are cached,
// which keeps a candidate that converted once from failing on a later tick.
type DataURLInliner struct {
	client   *http.Client
	cache    *cache.Cache
	maxBytes int64
}

func NewDataURLInliner(client *http.Client, ttl time.Duration) *DataURLInliner {
	if client == nil {
		client = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = defaultInlineTTL
	}
	return &DataURLInliner{
		client:   client,
		cache:    cache.New(ttl, inlineCleanupEvery),
		maxBytes: defaultMaxInlineSize,
	}
}

func (i *DataURLInliner) Inline(ctx context.Context, url string) (string, error) {
	if strings.HasPrefix(url, "data:") {
		return url, nil
	}
	if v, ok := i.cache.Get(url); ok {
		return v.(string), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("inline %s: %w", url, err)
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("inline %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("inline %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, i.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("inline %s: %w", url, err)
	}
	if int64(len(data)) > i.maxBytes {
		return "", fmt.Errorf("inline %s: %w", url, ErrArtifactTooLarge)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("inline %s: empty body", url)
	}

	out := EncodeDataURL(contentType(resp.Header.Get("Content-Type"), data), data)
	i.cache.Set(url, out, cache.DefaultExpiration)
	return out, nil
}

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func contentType(header string, data []byte) string {
	if header != "" {
		if mt, _, err := mime.ParseMediaType(header); err == nil && strings.HasPrefix(mt, "image/") {
			return mt
		}
	}
	return http.DetectContentType(data)
}

// DecodeDataURL reverses EncodeDataURL.
func DecodeDataURL(s string) (string, []byte, error) {
	header, body, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
	if !ok || !strings.HasPrefix(s, "data:") || !strings.HasSuffix(header, ";base64") {
		return "", nil, errors.New("not a base64 data url")
	}
	data, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return "", nil, fmt.Errorf("decode data url: %w", err)
	}
	return strings.TrimSuffix(header, ";base64"), data, nil
}
