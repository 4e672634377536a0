package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// BridgeBackend forwards images to the internal HTTP bridge service.
// A declining bridge (any non-2xx) skips the image instead of failing:
// the bridge decides what it wants to analyze.
type BridgeBackend struct {
	baseURL string
	tasks   []string
	client  *http.Client
}

// NewBridgeBackend creates the bridge backend
func NewBridgeBackend(baseURL string, tasks []string, client *http.Client) *BridgeBackend {
	return &BridgeBackend{
		baseURL: strings.TrimRight(baseURL, "/"),
		tasks:   tasks,
		client:  client,
	}
}

func (b *BridgeBackend) Tag() string { return "Bridge" }

func (b *BridgeBackend) Analyze(ctx context.Context, image []byte) (string, error) {
	url := fmt.Sprintf("%s/api/vision/1.0/%s", b.baseURL, strings.Join(b.tasks, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("failed to build bridge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("bridge request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read bridge response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("bridge returned %d: %w", resp.StatusCode, ErrSkipped)
	}
	return string(body), nil
}
