package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"teamdigest/internal/core"
)

// ErrUnknownDriver is returned by Open for an unsupported driver
var ErrUnknownDriver = errors.New("unknown vector store driver")

// Store provides semantic search over message embeddings using cosine similarity
type Store interface {
	// Add inserts or replaces documents by ID
	Add(ctx context.Context, docs []Document) error

	// Query returns the documents most similar to the query embedding,
	// ordered by similarity (highest first)
	Query(ctx context.Context, query Query) ([]Result, error)

	// Count returns the number of stored documents
	Count(ctx context.Context) (int, error)

	// Reset removes every document
	Reset(ctx context.Context) error

	Close() error
}

// Indexer is implemented by stores that build an approximate nearest
// neighbor index after bulk inserts
type Indexer interface {
	CreateIndex(ctx context.Context) error
}

// Metadata holds flat string attributes used for equality filtering
type Metadata map[string]string

// Document is one indexed message
type Document struct {
	ID        string
	Text      string
	Embedding []float64
	Metadata  Metadata
}

// Query configures a similarity search
type Query struct {
	// Embedding is the query vector
	Embedding []float64

	// Limit is the maximum number of results to return (default: 10)
	Limit int

	// Where keeps only documents whose metadata has every key with an equal value
	Where Metadata

	// ExcludeIDs filters out specific documents
	ExcludeIDs []string
}

// Result is a matching document and its similarity
type Result struct {
	ID       string
	Text     string
	Metadata Metadata

	// Similarity is the cosine similarity (higher = more similar)
	Similarity float64

	// Distance is the cosine distance, 1 - Similarity
	Distance float64
}

// DefaultLimit is used when Query.Limit is not positive
const DefaultLimit = 10

// Metadata keys written by DocumentsFromMessages
const (
	KeyProjectID  = "project_id"
	KeyAuthorID   = "author_id"
	KeyTimestamp  = "ts"
	KeyIsDecision = "is_decision"
	KeyIsRisk     = "is_risk"
	KeyIsBlocker  = "is_blocker"
)

// DocumentsFromMessages pairs messages with their embeddings
func DocumentsFromMessages(messages []core.Message, embeddings core.Embeddings) ([]Document, error) {
	if err := embeddings.Validate(len(messages)); err != nil {
		return nil, err
	}
	docs := make([]Document, len(messages))
	for i, m := range messages {
		docs[i] = Document{
			ID:        m.ID,
			Text:      m.Text,
			Embedding: embeddings[i],
			Metadata: Metadata{
				KeyProjectID:  m.ProjectID,
				KeyAuthorID:   m.AuthorID,
				KeyTimestamp:  m.Timestamp.Format(time.RFC3339),
				KeyIsDecision: strconv.FormatBool(m.IsDecision),
				KeyIsRisk:     strconv.FormatBool(m.IsRisk),
				KeyIsBlocker:  strconv.FormatBool(m.IsBlocker),
			},
		}
	}
	return docs, nil
}

// Config selects a backend
type Config struct {
	Driver    string // "sqlite" or "postgres"
	DSN       string
	Dimension int // required by postgres for the vector column
}

// Open connects to the configured backend and ensures its schema
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		return NewSQLiteStore(ctx, dsn, logger)
	case "postgres":
		return NewPgVectorStore(ctx, cfg.DSN, cfg.Dimension, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
