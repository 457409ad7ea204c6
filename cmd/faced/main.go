// Package main implements the face index daemon: a single process running
// the arrival consumer and the search API side by side over one shared
// vector store connection.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nats-io/nats.go"

	"github.com/piclens/faceindex/engine/domain"
	"github.com/piclens/faceindex/engine/facestore"
	"github.com/piclens/faceindex/engine/indexer"
	"github.com/piclens/faceindex/engine/search"
	"github.com/piclens/faceindex/pkg/blobfetch"
	"github.com/piclens/faceindex/pkg/caption"
	"github.com/piclens/faceindex/pkg/facenet"
	"github.com/piclens/faceindex/pkg/metrics"
	"github.com/piclens/faceindex/pkg/mid"
	"github.com/piclens/faceindex/pkg/resilience"
)

var met = metrics.New()

var (
	mSearches   = met.Counter("faceindex_search_requests_total", "Search requests served")
	mSearchErrs = func(kind string) *metrics.Counter {
		return met.Counter(metrics.WithLabels("faceindex_search_errors_total", "kind", kind), "Search request failures")
	}
	mSearchDur = met.Histogram("faceindex_search_duration_seconds", "Search request latency", nil)
)

// maxUploadBytes caps the multipart query image size.
const maxUploadBytes = 16 << 20

// Config holds all environment-based configuration.
type Config struct {
	Port           string
	MetricsPort    int
	NATSURL        string
	QdrantURL      string
	Collection     string
	VectorDims     int
	StorageBaseURL string
	FacenetURL     string
	CaptionURL     string
	CaptionSinkURL string
	AckPolicy      string
	SpoolDir       string

	// Optional S3 source support. Leaving the endpoint empty disables s3://
	// source paths.
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

func loadConfig() Config {
	return Config{
		Port:           envOr("PORT", "8080"),
		MetricsPort:    envIntOr("METRICS_PORT", 9090),
		NATSURL:        envOr("NATS_URL", nats.DefaultURL),
		QdrantURL:      envOr("QDRANT_URL", "localhost:6334"),
		Collection:     envOr("QDRANT_COLLECTION", "faces"),
		VectorDims:     envIntOr("VECTOR_DIMS", 128),
		StorageBaseURL: envOr("STORAGE_BASE_URL", "http://localhost:9000"),
		FacenetURL:     envOr("FACENET_URL", "http://localhost:5001"),
		CaptionURL:     envOr("CAPTION_URL", ""),
		CaptionSinkURL: envOr("CAPTION_SINK_URL", ""),
		AckPolicy:      envOr("ACK_POLICY", "always"),
		SpoolDir:       envOr("SPOOL_DIR", ""),
		S3Endpoint:     envOr("S3_ENDPOINT", ""),
		S3Region:       envOr("S3_REGION", "us-east-1"),
		S3AccessKey:    envOr("S3_ACCESS_KEY", ""),
		S3SecretKey:    envOr("S3_SECRET_KEY", ""),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("faced exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	met.ServeAsync(cfg.MetricsPort)

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL, nats.Name("faced"))
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Close()

	// --- Connect to Qdrant ---
	store, err := facestore.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer store.Close()

	if err := store.EnsureCollection(ctx, cfg.VectorDims); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}
	logger.Info("vector store ready", "collection", cfg.Collection, "dims", cfg.VectorDims)

	// --- Face embedding gateway, circuit-broken ---
	encoder := facenet.WithBreaker(
		facenet.New(cfg.FacenetURL, nil),
		resilience.NewBreaker(resilience.DefaultBreakerOpts),
	)

	// --- Source fetcher ---
	fetcher := &blobfetch.Router{HTTP: blobfetch.NewHTTP(cfg.StorageBaseURL, nil)}
	if cfg.S3Endpoint != "" {
		fetcher.S3 = blobfetch.NewS3(newS3Client(cfg))
		logger.Info("s3 sources enabled", "endpoint", cfg.S3Endpoint)
	}

	// --- Optional captioning ---
	var captions caption.Generator
	var reporter caption.Reporter
	if cfg.CaptionURL != "" && cfg.CaptionSinkURL != "" {
		captions = caption.New(cfg.CaptionURL, nil)
		reporter = caption.NewReporter(cfg.CaptionSinkURL, nil)
		logger.Info("captioning enabled", "sink", cfg.CaptionSinkURL)
	}

	// --- Ingestion worker + consumer ---
	worker := indexer.New(indexer.Deps{
		Fetcher:  fetcher,
		Encoder:  encoder,
		Store:    store,
		Captions: captions,
		Reporter: reporter,
		TempDir:  cfg.SpoolDir,
		Logger:   logger,
		Metrics:  met,
	})

	policy := indexer.AckAlways
	if cfg.AckPolicy == "on-success" {
		policy = indexer.AckOnSuccess
	}
	sub, err := indexer.StartConsumer(nc, worker, policy)
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer sub.Drain()
	logger.Info("consumer started", "subject", indexer.ArrivalSubject, "ack_policy", cfg.AckPolicy)

	// --- Search service ---
	searchSvc := search.New(encoder, store, search.DefaultOptions(), logger)

	// --- HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/face/health", handleHealth)
	mux.HandleFunc("POST /api/face/search", handleSearch(searchSvc, logger))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.OTel("faced"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

func newS3Client(cfg Config) *s3.Client {
	return s3.New(s3.Options{
		Region:       cfg.S3Region,
		BaseEndpoint: aws.String(cfg.S3Endpoint),
		UsePathStyle: true,
		Credentials: aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.S3AccessKey,
				SecretAccessKey: cfg.S3SecretKey,
			}, nil
		}),
	})
}

// --- Handlers ---

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// SearchResponse is the JSON response for POST /api/face/search.
type SearchResponse struct {
	Results []domain.SearchHit `json:"results"`
}

func handleSearch(svc *search.Service, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mSearches.Inc()

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		file, _, err := r.FormFile("file")
		if err != nil {
			mSearchErrs("bad_request").Inc()
			http.Error(w, `{"error":"file field is required"}`, http.StatusBadRequest)
			return
		}
		defer file.Close()

		image, err := io.ReadAll(file)
		if err != nil {
			mSearchErrs("bad_request").Inc()
			http.Error(w, `{"error":"failed to read upload"}`, http.StatusBadRequest)
			return
		}

		k := 0
		if raw := r.FormValue("k"); raw != "" {
			k, err = strconv.Atoi(raw)
			if err != nil || k < 0 {
				mSearchErrs("bad_request").Inc()
				http.Error(w, `{"error":"k must be a non-negative integer"}`, http.StatusBadRequest)
				return
			}
		}
		galleryID := r.FormValue("gallery_id")

		hits, err := svc.Search(r.Context(), image, k, galleryID)
		if err != nil {
			writeSearchError(w, err, logger)
			return
		}
		mSearchDur.Since(start)

		if hits == nil {
			hits = []domain.SearchHit{}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(SearchResponse{Results: hits})
	}
}

// writeSearchError maps domain outcomes to status codes. No face in the
// query image is a client-side outcome, an open breaker means the embedding
// gateway is down, everything else is internal.
func writeSearchError(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, domain.ErrNoFace):
		mSearchErrs("no_face").Inc()
		http.Error(w, `{"error":"no face detected in query image"}`, http.StatusNotFound)
	case errors.Is(err, domain.ErrAmbiguousQuery):
		mSearchErrs("ambiguous").Inc()
		http.Error(w, `{"error":"query image contains multiple faces"}`, http.StatusBadRequest)
	case errors.Is(err, resilience.ErrCircuitOpen):
		mSearchErrs("embed_unavailable").Inc()
		http.Error(w, `{"error":"embedding service unavailable"}`, http.StatusServiceUnavailable)
	default:
		mSearchErrs("internal").Inc()
		logger.Error("search failed", "err", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
	}
}
