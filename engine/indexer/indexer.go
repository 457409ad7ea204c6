// Package indexer implements the ingestion worker: it consumes image
// arrival notifications, fetches the bytes, extracts face embeddings, and
// upserts the resulting points into the vector store. All per-record
// failures stop at the record boundary; the consumer always proceeds to the
// next message.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/piclens/faceindex/engine/domain"
	"github.com/piclens/faceindex/engine/facestore"
	"github.com/piclens/faceindex/pkg/caption"
	"github.com/piclens/faceindex/pkg/fn"
	"github.com/piclens/faceindex/pkg/metrics"
)

const (
	// DefaultFetchTimeout bounds one image download.
	DefaultFetchTimeout = 30 * time.Second
)

// Fetcher retrieves the bytes behind an arrival's source path.
type Fetcher interface {
	Fetch(ctx context.Context, sourcePath string) ([]byte, error)
}

// Encoder extracts face vectors from image bytes.
type Encoder interface {
	Encode(ctx context.Context, image []byte) ([][]float32, error)
}

// Upserter stores face records. Satisfied by *facestore.VectorStore.
type Upserter interface {
	Upsert(ctx context.Context, records []facestore.FaceRecord) error
}

// Deps holds the worker's injected collaborators. Captions and Reporter are
// optional; leaving them nil disables captioning entirely.
type Deps struct {
	Fetcher      Fetcher
	Encoder      Encoder
	Store        Upserter
	Captions     caption.Generator
	Reporter     caption.Reporter
	TempDir      string // defaults to os.TempDir()
	FetchTimeout time.Duration
	// StoreRetry bounds upsert retries. Zero value means fn.DefaultRetry.
	StoreRetry fn.RetryOpts
	Logger     *slog.Logger
	Metrics    *metrics.Registry
}

// Worker processes arrival records one at a time.
type Worker struct {
	deps      Deps
	log       *slog.Logger
	retryOpts fn.RetryOpts

	mImages    *metrics.Counter
	mFaces     *metrics.Counter
	mNoFace    *metrics.Counter
	mCaptions  *metrics.Counter
	mSkipped   func(reason string) *metrics.Counter
	mErrors    func(stage string) *metrics.Counter
	mProcessDur *metrics.Histogram
}

// New creates a Worker.
func New(deps Deps) *Worker {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = DefaultFetchTimeout
	}
	if deps.TempDir == "" {
		deps.TempDir = os.TempDir()
	}
	met := deps.Metrics
	if met == nil {
		met = metrics.New()
	}
	retryOpts := deps.StoreRetry
	if retryOpts.MaxAttempts <= 0 {
		retryOpts = fn.DefaultRetry
	}
	return &Worker{
		deps:      deps,
		log:       deps.Logger,
		retryOpts: retryOpts,

		mImages:   met.Counter("faceindex_images_total", "Arrival records fully processed"),
		mFaces:    met.Counter("faceindex_faces_indexed_total", "Face points upserted"),
		mNoFace:   met.Counter("faceindex_images_no_face_total", "Fetched images with zero detected faces"),
		mCaptions: met.Counter("faceindex_captions_reported_total", "Captions delivered to the sink"),
		mSkipped: func(reason string) *metrics.Counter {
			return met.Counter(metrics.WithLabels("faceindex_records_skipped_total", "reason", reason), "Records skipped without index write")
		},
		mErrors: func(stage string) *metrics.Counter {
			return met.Counter(metrics.WithLabels("faceindex_errors_total", "stage", stage), "Per-stage processing errors")
		},
		mProcessDur: met.Histogram("faceindex_process_seconds", "Per-record processing time", nil),
	}
}

// ProcessArrival runs one arrival record through validate → fetch → spool →
// encode → upsert → caption. The returned error reports why the record was
// skipped; the caller decides only logging and acknowledgment with it, never
// retry.
func (w *Worker) ProcessArrival(ctx context.Context, a domain.ImageArrival) error {
	start := time.Now()
	defer w.mProcessDur.Since(start)

	if err := domain.ValidateArrival(a); err != nil {
		w.mSkipped("validation").Inc()
		w.log.Warn("indexer: rejecting arrival", "error", err, "image_id", a.ImageID)
		return err
	}

	spooled, err := w.fetchAndSpool(ctx, a)
	if err != nil {
		w.mErrors("fetch").Inc()
		w.mSkipped("fetch").Inc()
		w.log.Error("indexer: fetch failed", "error", err, "image_id", a.ImageID, "source", a.SourcePath)
		return err
	}
	defer func() {
		if rmErr := os.Remove(spooled.Path); rmErr != nil {
			w.log.Warn("indexer: temp file cleanup", "error", rmErr, "path", spooled.Path)
		}
	}()

	// Store writes are retried; deterministic point ids make a replayed
	// upsert a no-op, so a retry after a half-applied write is safe.
	pipeline := fn.Then(
		fn.TracedStage("indexer.encode", w.encodeStage()),
		fn.RetryStage(w.retryOpts, fn.TracedStage("indexer.store", w.storeStage())),
	)
	result := pipeline(ctx, spooled)
	if result.IsErr() {
		_, pipeErr := result.Unwrap()
		w.mSkipped("pipeline").Inc()
		w.log.Error("indexer: pipeline failed", "error", pipeErr, "image_id", a.ImageID)
		return pipeErr
	}

	faces, _ := result.Unwrap()
	if faces == 0 {
		// Normal outcome, not a failure.
		w.mNoFace.Inc()
		w.log.Info("indexer: no faces found", "image_id", a.ImageID, "source", a.SourcePath)
		return nil
	}

	w.mImages.Inc()
	w.mFaces.Add(int64(faces))
	w.log.Info("indexer: indexed", "image_id", a.ImageID, "faces", faces, "gallery_id", a.GalleryID)

	// Best-effort captioning. A caption failure never undoes or blocks the
	// index write.
	w.captionTap(ctx, spooled)
	return nil
}

// fetchAndSpool downloads the image within the fetch timeout and writes it
// to a per-record temporary file.
func (w *Worker) fetchAndSpool(ctx context.Context, a domain.ImageArrival) (spooledImage, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.deps.FetchTimeout)
	defer cancel()

	data, err := w.deps.Fetcher.Fetch(fetchCtx, a.SourcePath)
	if err != nil {
		return spooledImage{}, fmt.Errorf("indexer: fetch %s: %w", a.SourcePath, err)
	}

	f, err := os.CreateTemp(w.deps.TempDir, "faceindex-*.img")
	if err != nil {
		return spooledImage{}, fmt.Errorf("indexer: spool: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return spooledImage{}, fmt.Errorf("indexer: spool write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return spooledImage{}, fmt.Errorf("indexer: spool close: %w", err)
	}
	return spooledImage{Arrival: a, Path: f.Name()}, nil
}

func (w *Worker) encodeStage() fn.Stage[spooledImage, encodedImage] {
	return func(ctx context.Context, img spooledImage) fn.Result[encodedImage] {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			w.mErrors("encode").Inc()
			return fn.Err[encodedImage](fmt.Errorf("indexer: read spool: %w", err))
		}
		faces, err := w.deps.Encoder.Encode(ctx, data)
		if err != nil {
			w.mErrors("encode").Inc()
			return fn.Err[encodedImage](fmt.Errorf("indexer: encode: %w", err))
		}
		return fn.Ok(encodedImage{spooledImage: img, Faces: faces})
	}
}

// storeStage upserts one batch of face records and yields the face count.
func (w *Worker) storeStage() fn.Stage[encodedImage, int] {
	return func(ctx context.Context, img encodedImage) fn.Result[int] {
		if len(img.Faces) == 0 {
			return fn.Ok(0)
		}
		a := img.Arrival
		records := make([]facestore.FaceRecord, len(img.Faces))
		for i, vec := range img.Faces {
			records[i] = facestore.FaceRecord{
				ID:     PointID(a.ImageID, i),
				Vector: vec,
				Payload: facestore.FacePayload{
					ImageID:   a.ImageID,
					GalleryID: a.GalleryID,
					SourceURL: a.SourcePath,
					FaceIndex: i,
				},
			}
		}
		if err := w.deps.Store.Upsert(ctx, records); err != nil {
			w.mErrors("upsert").Inc()
			return fn.Err[int](fmt.Errorf("indexer: upsert: %w", err))
		}
		return fn.Ok(len(records))
	}
}

// captionTap generates and reports a caption for the spooled image,
// swallowing every failure.
func (w *Worker) captionTap(ctx context.Context, img spooledImage) {
	if w.deps.Captions == nil || w.deps.Reporter == nil {
		return
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		w.log.Warn("indexer: caption read", "error", err, "image_id", img.Arrival.ImageID)
		return
	}
	text, err := w.deps.Captions.Generate(ctx, data)
	if err != nil {
		w.mErrors("caption").Inc()
		w.log.Warn("indexer: caption generate", "error", err, "image_id", img.Arrival.ImageID)
		return
	}
	if err := w.deps.Reporter.Report(ctx, img.Arrival.ImageID, text); err != nil {
		w.mErrors("caption").Inc()
		w.log.Warn("indexer: caption report", "error", err, "image_id", img.Arrival.ImageID)
		return
	}
	w.mCaptions.Inc()
}

// IsSkip reports whether err is a permanent per-record rejection (bad
// record) rather than a transient failure. Skips are safe to acknowledge
// under every delivery policy; redelivering them can never succeed.
func IsSkip(err error) bool {
	var ve *domain.ValidationError
	return errors.As(err, &ve)
}
