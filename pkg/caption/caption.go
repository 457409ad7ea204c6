// Package caption provides clients for the captioning sidecar and the
// optional external sink that stores generated captions. Captioning is a
// best-effort side channel: callers log and swallow its failures.
package caption

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// reportTimeout bounds a single sink call.
const reportTimeout = 5 * time.Second

// Generator produces a caption for an image.
type Generator interface {
	Generate(ctx context.Context, image []byte) (string, error)
}

// Client implements Generator against the captioning sidecar's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a captioning client. Pass nil to use http.DefaultClient.
func New(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: baseURL, client: client}
}

type generateResp struct {
	Caption string `json:"caption"`
}

// Generate posts the image to the sidecar and returns the caption text.
func (c *Client) Generate(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/caption", bytes.NewReader(image))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("caption generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("caption generate: status %d", resp.StatusCode)
	}

	var result generateResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("caption generate decode: %w", err)
	}
	return result.Caption, nil
}

// Reporter delivers a generated caption to the external sink.
type Reporter interface {
	Report(ctx context.Context, imageID, text string) error
}

// SinkReporter posts captions to `{baseURL}/caption/{imageID}`.
type SinkReporter struct {
	baseURL string
	client  *http.Client
}

// NewReporter creates a caption sink reporter.
func NewReporter(baseURL string, client *http.Client) *SinkReporter {
	if client == nil {
		client = http.DefaultClient
	}
	return &SinkReporter{baseURL: baseURL, client: client}
}

type reportReq struct {
	ImageID string `json:"image_id"`
	Caption string `json:"caption"`
}

// Report sends the caption, bounded by its own timeout.
func (r *SinkReporter) Report(ctx context.Context, imageID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, reportTimeout)
	defer cancel()

	body, _ := json.Marshal(reportReq{ImageID: imageID, Caption: text})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/caption/"+imageID, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("caption report %s: %w", imageID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("caption report %s: status %d", imageID, resp.StatusCode)
	}
	return nil
}
