package llm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

const (
	// DefaultModel is the default Gemini model for digest narratives.
	DefaultModel = "gemini-1.5-flash"
	// DefaultEmbeddingModel is the default model for generating embeddings
	DefaultEmbeddingModel = "text-embedding-004"
	// DefaultEmbeddingDimensions is the output dimension of DefaultEmbeddingModel
	DefaultEmbeddingDimensions = 768
	// DefaultBatchSize is the largest batch sent in one embedding request
	DefaultBatchSize = 100
	// DefaultMaxRetries is the number of retries after a failed request
	DefaultMaxRetries = 3
)

// ErrMissingAPIKey is returned when no Gemini API key can be found
var ErrMissingAPIKey = errors.New("gemini API key is required")

// apiKeyEnvVars are checked in order when the config carries no key
var apiKeyEnvVars = []string{"GEMINI_API_KEY", "GOOGLE_GEMINI_API_KEY", "GOOGLE_AI_API_KEY"}

// Config configures the Gemini client
type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	BatchSize      int
	MaxRetries     int
	Backoff        time.Duration // base of the exponential backoff, 1s when zero
}

// Client represents a client for interacting with Gemini.
type Client struct {
	apiKey         string
	modelName      string
	embeddingModel string
	batchSize      int
	maxRetries     int
	backoff        time.Duration
	logger         zerolog.Logger

	mu      sync.Mutex
	gClient *genai.Client
}

// TextGenerationOptions contains options for text generation
type TextGenerationOptions struct {
	MaxTokens   int32   // Maximum number of tokens to generate
	Temperature float32 // Temperature for randomness (0.0 to 1.0)
	Model       string  // Model to use (optional, defaults to client's model)
}

// ResolveAPIKey returns key when set, otherwise the first non-empty Gemini
// environment variable.
func ResolveAPIKey(key string) (string, error) {
	if key != "" {
		return key, nil
	}
	for _, name := range apiKeyEnvVars {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("%w: set GEMINI_API_KEY or ai.gemini.api_key in the config file", ErrMissingAPIKey)
}

// NewClient creates a new Gemini client. The underlying SDK client is created
// lazily on first use.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	apiKey, err := ResolveAPIKey(cfg.APIKey)
	if err != nil {
		return nil, err
	}

	c := &Client{
		apiKey:         apiKey,
		modelName:      cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		batchSize:      cfg.BatchSize,
		maxRetries:     cfg.MaxRetries,
		backoff:        cfg.Backoff,
		logger:         logger.With().Str("component", "llm").Logger(),
	}
	if c.modelName == "" {
		c.modelName = DefaultModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = DefaultEmbeddingModel
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.maxRetries < 0 {
		c.maxRetries = 0
	}
	if c.backoff <= 0 {
		c.backoff = time.Second
	}
	return c, nil
}

// ModelName returns the text generation model
func (c *Client) ModelName() string {
	return c.modelName
}

// getClient returns or creates the genai client
func (c *Client) getClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gClient != nil {
		return c.gClient, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	c.gClient = client
	c.logger.Debug().Msg("Gemini client created")
	return client, nil
}

// Close releases the underlying SDK client
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gClient == nil {
		return nil
	}
	err := c.gClient.Close()
	c.gClient = nil
	if err != nil {
		return fmt.Errorf("failed to close Gemini client: %w", err)
	}
	return nil
}

// GenerateText generates text using the LLM with specified options
func (c *Client) GenerateText(ctx context.Context, prompt string, options TextGenerationOptions) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	client, err := c.getClient(ctx)
	if err != nil {
		return "", err
	}

	modelName := c.modelName
	if options.Model != "" {
		modelName = options.Model
	}
	model := client.GenerativeModel(modelName)
	if options.MaxTokens > 0 {
		model.SetMaxOutputTokens(options.MaxTokens)
	}
	if options.Temperature > 0 {
		model.SetTemperature(options.Temperature)
	}

	var text string
	err = c.withRetry(ctx, "generate_text", func() error {
		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			return fmt.Errorf("failed to generate text: %w", err)
		}
		text, err = responseText(resp)
		return err
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug().
		Str("model", modelName).
		Int("response_length", len(text)).
		Msg("LLM response generated")
	return text, nil
}

// EmbedBatch embeds texts, splitting into batches of at most BatchSize
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	em := client.EmbeddingModel(c.embeddingModel)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		var values [][]float32
		err := c.withRetry(ctx, "embed_batch", func() error {
			batch := em.NewBatch()
			for _, t := range chunk {
				batch.AddContent(genai.Text(t))
			}
			res, err := em.BatchEmbedContents(ctx, batch)
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}
			values = values[:0]
			for _, e := range res.Embeddings {
				if e == nil || len(e.Values) == 0 {
					return fmt.Errorf("empty embedding received")
				}
				values = append(values, e.Values)
			}
			if len(values) != len(chunk) {
				return fmt.Errorf("expected %d embeddings, got %d", len(chunk), len(values))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to process batch %d-%d: %w", start, end, err)
		}
		out = append(out, values...)
	}

	c.logger.Debug().Int("count", len(out)).Msg("Embeddings generated")
	return out, nil
}

// withRetry runs fn with exponential backoff: backoff, 2*backoff, 4*backoff...
func (c *Client) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoff * time.Duration(1<<uint(attempt-1))
			c.logger.Warn().
				Str("op", op).
				Int("attempt", attempt+1).
				Dur("backoff", wait).
				Msg("Retrying Gemini request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		if lastErr = fn(); lastErr == nil {
			return nil
		}
		c.logger.Error().Err(lastErr).Str("op", op).Int("attempt", attempt+1).Msg("Gemini request failed")
	}
	return fmt.Errorf("failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no response candidates from LLM")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content parts in response")
	}

	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("empty response from LLM")
	}
	return sb.String(), nil
}
