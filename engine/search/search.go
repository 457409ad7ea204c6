// Package search serves nearest-neighbor face queries over the vector
// store. A single source image often holds several indexed face points, so
// the service overfetches from the index and collapses hits down to one per
// distinct image before answering.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/piclens/faceindex/engine/domain"
	"github.com/piclens/faceindex/engine/facestore"
)

// Encoder extracts face vectors from the query image.
type Encoder interface {
	Encode(ctx context.Context, image []byte) ([][]float32, error)
}

// Searcher is the read side of the vector store. Satisfied by
// *facestore.VectorStore.
type Searcher interface {
	Search(ctx context.Context, vector []float32, limit int, galleryID string) ([]facestore.Hit, error)
}

// Options configures the search behaviour.
type Options struct {
	// TopK is the result count used when a caller asks for k <= 0.
	TopK int
	// OverfetchFactor multiplies the requested k for the raw index query,
	// compensating for multi-face images collapsing during dedup. The cost
	// is bounded: the service never re-queries with a larger factor.
	OverfetchFactor int
	// SearchTimeout bounds the index query.
	SearchTimeout time.Duration
	// UseFirstFace selects the query embedding when the query image holds
	// several faces: true picks the first detected face, false rejects the
	// query as ambiguous.
	UseFirstFace bool
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		TopK:            5,
		OverfetchFactor: 5,
		SearchTimeout:   5 * time.Second,
		UseFirstFace:    true,
	}
}

// Service answers similarity queries. Safe for concurrent use; it holds no
// per-request state.
type Service struct {
	encode Encoder
	index  Searcher
	opts   Options
	logger *slog.Logger
}

// New creates a search Service.
func New(encode Encoder, index Searcher, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if opts.OverfetchFactor <= 0 {
		opts.OverfetchFactor = DefaultOptions().OverfetchFactor
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = DefaultOptions().SearchTimeout
	}
	return &Service{encode: encode, index: index, opts: opts, logger: logger}
}

// Search embeds the query image and returns up to k hits, each for a
// distinct source image, ranked by descending score. A query image with no
// detectable face yields domain.ErrNoFace without touching the index. Fewer
// than k distinct images in the index yields a shorter list, never padding.
func (s *Service) Search(ctx context.Context, image []byte, k int, galleryID string) ([]domain.SearchHit, error) {
	if k <= 0 {
		k = s.opts.TopK
	}

	faces, err := s.encode.Encode(ctx, image)
	if err != nil {
		return nil, fmt.Errorf("search: encode query: %w", err)
	}
	if len(faces) == 0 {
		return nil, domain.ErrNoFace
	}
	if len(faces) > 1 && !s.opts.UseFirstFace {
		return nil, domain.ErrAmbiguousQuery
	}
	query := faces[0]
	if len(query) == 0 {
		return nil, domain.ErrNoEncoding
	}

	searchCtx, cancel := context.WithTimeout(ctx, s.opts.SearchTimeout)
	defer cancel()

	raw, err := s.index.Search(searchCtx, query, k*s.opts.OverfetchFactor, galleryID)
	if err != nil {
		return nil, fmt.Errorf("search: index query: %w", err)
	}

	hits := dedupByImage(raw, k)
	s.logger.Info("search done",
		"gallery_id", galleryID,
		"raw_hits", len(raw),
		"distinct_hits", len(hits),
		"k", k,
	)
	return hits, nil
}

// dedupByImage scans hits in score order, keeping the first (highest
// scoring) hit for each distinct image, until k distinct images are
// accumulated or the list is exhausted.
func dedupByImage(raw []facestore.Hit, k int) []domain.SearchHit {
	out := make([]domain.SearchHit, 0, k)
	seen := make(map[string]bool, k)
	for _, h := range raw {
		if seen[h.Payload.ImageID] {
			continue
		}
		seen[h.Payload.ImageID] = true
		out = append(out, domain.SearchHit{
			Score:     h.Score,
			ImageID:   h.Payload.ImageID,
			SourceURL: h.Payload.SourceURL,
			FaceIndex: h.Payload.FaceIndex,
		})
		if len(out) == k {
			break
		}
	}
	return out
}
