// Package embeddings turns message text into unit-length vectors.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"

	"teamdigest/internal/core"
	"teamdigest/internal/llm"
)

// ErrUnknownProvider is returned by New for an unsupported provider name
var ErrUnknownProvider = errors.New("unknown embedding provider")

// Service embeds texts. Implementations return one unit-length row per text,
// all of the same dimension. A Service is owned by its caller and must be closed.
type Service interface {
	Embed(ctx context.Context, texts []string) (core.Embeddings, error)
	Dimension() int
	Close() error
}

// EmbedMessages embeds the text of every message, preserving order
func EmbedMessages(ctx context.Context, svc Service, messages []core.Message) (core.Embeddings, error) {
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Text
	}
	embs, err := svc.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed messages: %w", err)
	}
	if err := embs.Validate(len(messages)); err != nil {
		return nil, err
	}
	return embs, nil
}

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float64) []float64 {
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
	return v
}

// Providers
const (
	ProviderHash   = "hash"
	ProviderGemini = "gemini"
)

// Options selects and configures a Service
type Options struct {
	Provider          string
	Dimension         int
	RequestsPerSecond float64
	Gemini            llm.Config
}

// New builds the Service named by opts.Provider
func New(opts Options, logger zerolog.Logger) (Service, error) {
	switch opts.Provider {
	case ProviderHash, "":
		return NewHashService(opts.Dimension), nil
	case ProviderGemini:
		client, err := llm.NewClient(opts.Gemini, logger)
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings: %w", err)
		}
		dim := opts.Dimension
		if dim <= 0 {
			dim = llm.DefaultEmbeddingDimensions
		}
		return NewGeminiService(client, GeminiOptions{
			Dimension:         dim,
			RequestsPerSecond: opts.RequestsPerSecond,
			BatchSize:         opts.Gemini.BatchSize,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, opts.Provider)
	}
}
