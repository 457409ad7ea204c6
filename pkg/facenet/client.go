// Package facenet provides an HTTP client for the face-embedding gateway.
// The gateway detects faces in an image and returns one fixed-dimension
// vector per face; zero faces is a normal outcome, not an error.
package facenet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/piclens/faceindex/pkg/resilience"
)

// Encoder turns image bytes into zero or more face vectors, one per
// detected face, in detection order.
type Encoder interface {
	Encode(ctx context.Context, image []byte) ([][]float32, error)
}

// Client implements Encoder against the embedding gateway's HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates an embedding gateway client. Pass nil to use http.DefaultClient.
func New(baseURL string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{baseURL: baseURL, client: client}
}

type encodeResp struct {
	Faces [][]float64 `json:"faces"`
}

// Encode posts the image to the gateway and returns the detected face
// vectors. An empty slice means no face was found.
func (c *Client) Encode(ctx context.Context, image []byte) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/encode", bytes.NewReader(image))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("facenet encode: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("facenet encode: status %d", resp.StatusCode)
	}

	var result encodeResp
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("facenet encode decode: %w", err)
	}

	out := make([][]float32, len(result.Faces))
	for i, face := range result.Faces {
		vec := make([]float32, len(face))
		for j, v := range face {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// guarded wraps an Encoder with a circuit breaker.
type guarded struct {
	inner   Encoder
	breaker *resilience.Breaker
}

// WithBreaker returns an Encoder whose calls pass through the breaker; an
// open breaker fails fast with resilience.ErrCircuitOpen.
func WithBreaker(e Encoder, b *resilience.Breaker) Encoder {
	return &guarded{inner: e, breaker: b}
}

func (g *guarded) Encode(ctx context.Context, image []byte) ([][]float32, error) {
	var faces [][]float32
	err := g.breaker.Call(ctx, func(ctx context.Context) error {
		var err error
		faces, err = g.inner.Encode(ctx, image)
		return err
	})
	if err != nil {
		return nil, err
	}
	return faces, nil
}
