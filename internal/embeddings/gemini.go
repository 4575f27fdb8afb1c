package embeddings

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"teamdigest/internal/core"
	"teamdigest/internal/llm"
)

// BatchEmbedder is the remote call GeminiService relies on; *llm.Client implements it
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Close() error
}

// GeminiOptions tunes a GeminiService
type GeminiOptions struct {
	Dimension int

	// RequestsPerSecond throttles every batch request; zero disables throttling
	RequestsPerSecond float64

	// BatchSize is the most texts sent in one request
	BatchSize int
}

// GeminiService embeds texts with a Gemini embedding model
type GeminiService struct {
	client    BatchEmbedder
	dim       int
	batchSize int
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewGeminiService wraps client
func NewGeminiService(client BatchEmbedder, opts GeminiOptions, logger zerolog.Logger) *GeminiService {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = llm.DefaultBatchSize
	}
	return &GeminiService{
		client:    client,
		dim:       opts.Dimension,
		batchSize: opts.BatchSize,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.With().Str("component", "embeddings").Logger(),
	}
}

// Dimension returns the configured model dimension
func (g *GeminiService) Dimension() int { return g.dim }

// Close releases the underlying client
func (g *GeminiService) Close() error { return g.client.Close() }

// Embed embeds texts and normalizes every row to unit length
func (g *GeminiService) Embed(ctx context.Context, texts []string) (core.Embeddings, error) {
	if len(texts) == 0 {
		return core.Embeddings{}, nil
	}

	raw := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		chunk, err := g.client.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings: %w", err)
		}
		raw = append(raw, chunk...)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: got %d for %d texts", core.ErrEmbeddingCount, len(raw), len(texts))
	}

	out := make(core.Embeddings, len(raw))
	for i, r := range raw {
		if g.dim > 0 && len(r) != g.dim {
			return nil, fmt.Errorf("%w: row %d has %d dims, expected %d", core.ErrDimensionMismatch, i, len(r), g.dim)
		}
		row := make([]float64, len(r))
		for j, x := range r {
			row[j] = float64(x)
		}
		out[i] = Normalize(row)
	}

	g.logger.Debug().Int("texts", len(texts)).Int("dimension", len(out[0])).Msg("Embedded texts")
	return out, nil
}
