// Package blobfetch retrieves raw image bytes for arrival records.
// Source paths are either relative to a storage-service base URL, absolute
// http(s) URLs, or s3://bucket/key object references.
package blobfetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"golang.org/x/time/rate"
)

// Fetcher retrieves the bytes behind a source path.
type Fetcher interface {
	Fetch(ctx context.Context, sourcePath string) ([]byte, error)
}

// MaxBlobBytes caps a single fetched image. Anything larger is rejected
// rather than buffered.
const MaxBlobBytes = 32 << 20

// HTTPFetcher fetches over HTTP(S). Relative paths are resolved against
// BaseURL (the storage service). Outbound calls are rate limited.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP creates an HTTP fetcher. The client's Timeout bounds each fetch;
// pass nil for http.DefaultClient.
func NewHTTP(baseURL string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(20), 40),
	}
}

// Fetch downloads the image bytes. Non-2xx responses are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, sourcePath string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := sourcePath
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = f.baseURL + "/" + strings.TrimLeft(sourcePath, "/")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("blobfetch: request %s: %w", sourcePath, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("blobfetch: get %s: %w", sourcePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("blobfetch: get %s: status %d", sourcePath, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxBlobBytes+1))
	if err != nil {
		return nil, fmt.Errorf("blobfetch: read %s: %w", sourcePath, err)
	}
	if len(data) > MaxBlobBytes {
		return nil, fmt.Errorf("blobfetch: %s exceeds %d bytes", sourcePath, MaxBlobBytes)
	}
	return data, nil
}

// S3Client abstracts the S3 API operation used by [S3Fetcher].
// The [s3.Client] type satisfies this interface.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Fetcher fetches s3://bucket/key paths from S3 or any S3-compatible
// object store. The caller configures the client (credentials, region,
// endpoint).
type S3Fetcher struct {
	client S3Client
}

// NewS3 creates an S3-backed fetcher.
func NewS3(client S3Client) *S3Fetcher {
	return &S3Fetcher{client: client}
}

// Fetch downloads the object named by an s3://bucket/key path.
func (f *S3Fetcher) Fetch(ctx context.Context, sourcePath string) ([]byte, error) {
	bucket, key, err := splitS3Path(sourcePath)
	if err != nil {
		return nil, err
	}
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("blobfetch: s3 get %s: %w", sourcePath, os.ErrNotExist)
		}
		return nil, fmt.Errorf("blobfetch: s3 get %s: %w", sourcePath, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxBlobBytes+1))
	if err != nil {
		return nil, fmt.Errorf("blobfetch: s3 read %s: %w", sourcePath, err)
	}
	if len(data) > MaxBlobBytes {
		return nil, fmt.Errorf("blobfetch: %s exceeds %d bytes", sourcePath, MaxBlobBytes)
	}
	return data, nil
}

// isS3NotFound reports whether err is a missing-key error from S3.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func splitS3Path(sourcePath string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(sourcePath, "s3://")
	if !ok {
		return "", "", fmt.Errorf("blobfetch: not an s3 path: %s", sourcePath)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("blobfetch: malformed s3 path: %s", sourcePath)
	}
	return bucket, key, nil
}

// Router dispatches fetches by source-path scheme: s3:// paths go to the S3
// fetcher, everything else to HTTP. S3 is optional; without it s3:// paths
// fail.
type Router struct {
	HTTP Fetcher
	S3   Fetcher
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, sourcePath string) ([]byte, error) {
	if strings.HasPrefix(sourcePath, "s3://") {
		if r.S3 == nil {
			return nil, fmt.Errorf("blobfetch: no s3 fetcher configured for %s", sourcePath)
		}
		return r.S3.Fetch(ctx, sourcePath)
	}
	return r.HTTP.Fetch(ctx, sourcePath)
}
