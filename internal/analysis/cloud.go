package analysis

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// CloudV1Backend calls the first-generation cloud vision analyze API.
// Calls block on the shared budget before going out.
type CloudV1Backend struct {
	endpoint string
	key      string
	budget   *CallBudget
	client   *http.Client
}

// NewCloudV1Backend creates the first-generation cloud backend
func NewCloudV1Backend(endpoint, key string, budget *CallBudget, client *http.Client) *CloudV1Backend {
	return &CloudV1Backend{
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		budget:   budget,
		client:   client,
	}
}

func (b *CloudV1Backend) Tag() string { return "CloudVision" }

func (b *CloudV1Backend) Analyze(ctx context.Context, image []byte) (string, error) {
	if err := b.budget.Wait(ctx); err != nil {
		return "", err
	}

	url := b.endpoint + "/vision/v3.2/analyze?visualFeatures=Tags,Description,Objects"
	return postImage(ctx, b.client, url, b.key, image)
}

// CloudV2Backend calls the second-generation image analysis API. It
// shares the call budget with the first generation: both count against
// the same subscription.
type CloudV2Backend struct {
	endpoint string
	key      string
	budget   *CallBudget
	client   *http.Client
}

// NewCloudV2Backend creates the second-generation cloud backend
func NewCloudV2Backend(endpoint, key string, budget *CallBudget, client *http.Client) *CloudV2Backend {
	return &CloudV2Backend{
		endpoint: strings.TrimRight(endpoint, "/"),
		key:      key,
		budget:   budget,
		client:   client,
	}
}

func (b *CloudV2Backend) Tag() string { return "CloudVisionV2" }

func (b *CloudV2Backend) Analyze(ctx context.Context, image []byte) (string, error) {
	if err := b.budget.Wait(ctx); err != nil {
		return "", err
	}

	url := b.endpoint + "/computervision/imageanalysis:analyze?api-version=2024-02-01&features=tags,caption,objects"
	return postImage(ctx, b.client, url, b.key, image)
}

// postImage sends the image as an octet-stream and returns the raw
// response body. Non-2xx responses are errors.
func postImage(ctx context.Context, client *http.Client, url, key string, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Ocp-Apim-Subscription-Key", key)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read vision response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("vision request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}
