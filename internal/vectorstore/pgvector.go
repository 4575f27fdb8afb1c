package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

var _ Indexer = (*PgVectorStore)(nil)

// PgVectorStore implements Store using PostgreSQL with the pgvector extension.
// Ranking uses the cosine distance operator (<=>).
type PgVectorStore struct {
	db        *sql.DB
	dimension int
	log       zerolog.Logger
}

// NewPgVectorStore connects to dsn and ensures the extension and table exist
func NewPgVectorStore(ctx context.Context, dsn string, dimension int, logger zerolog.Logger) (*PgVectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("pgvector store needs a positive dimension, got %d", dimension)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	p := &PgVectorStore{
		db:        db,
		dimension: dimension,
		log:       logger.With().Str("component", "vectorstore").Str("driver", "postgres").Logger(),
	}
	if err := p.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

func (p *PgVectorStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS message_embeddings (
				id        TEXT PRIMARY KEY,
				text      TEXT NOT NULL,
				embedding vector(%d) NOT NULL,
				metadata  JSONB NOT NULL DEFAULT '{}'::jsonb
			)`, p.dimension),
	}
	for _, stmt := range stmts {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}
	return nil
}

// Add inserts or replaces documents
// Uses UPSERT to handle both insert and update cases
func (p *PgVectorStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `
		INSERT INTO message_embeddings (id, text, embedding, metadata)
		VALUES ($1, $2, $3::vector, $4::jsonb)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata
	`
	for _, d := range docs {
		if len(d.Embedding) != p.dimension {
			return fmt.Errorf("document %s has %d dims, store expects %d", d.ID, len(d.Embedding), p.dimension)
		}
		md, err := json.Marshal(metadataOrEmpty(d.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx, query, d.ID, d.Text, formatVector(d.Embedding), string(md)); err != nil {
			return fmt.Errorf("failed to store embedding %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Query finds documents similar to the query embedding
func (p *PgVectorStore) Query(ctx context.Context, query Query) ([]Result, error) {
	if query.Limit <= 0 {
		query.Limit = DefaultLimit
	}

	where, err := json.Marshal(metadataOrEmpty(query.Where))
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}

	// Build exclusion filter
	excludeClause := ""
	args := []interface{}{formatVector(query.Embedding), string(where), query.Limit}
	if len(query.ExcludeIDs) > 0 {
		excludeClause = "AND id <> ALL($4::text[])"
		args = append(args, pq.Array(query.ExcludeIDs))
	}

	sqlQuery := fmt.Sprintf(`
		SELECT
			id,
			text,
			metadata,
			1 - (embedding <=> $1::vector) AS similarity,
			embedding <=> $1::vector AS distance
		FROM message_embeddings
		WHERE metadata @> $2::jsonb
		  %s
		ORDER BY embedding <=> $1::vector, id
		LIMIT $3
	`, excludeClause)

	rows, err := p.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r  Result
			md []byte
		)
		if err := rows.Scan(&r.ID, &r.Text, &md, &r.Similarity, &r.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal(md, &r.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

// CreateIndex creates an HNSW index for fast approximate nearest neighbor search.
// Should be called after bulk inserts.
func (p *PgVectorStore) CreateIndex(ctx context.Context) error {
	// m=16 connections per layer, ef_construction=64 candidate list size
	indexQuery := `
		CREATE INDEX IF NOT EXISTS idx_message_embeddings_hnsw
		ON message_embeddings
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64)
	`
	if _, err := p.db.ExecContext(ctx, indexQuery); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	p.log.Info().Msg("HNSW index ready")
	return nil
}

// Count returns the number of stored documents
func (p *PgVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_embeddings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count embeddings: %w", err)
	}
	return n, nil
}

// Reset removes every document
func (p *PgVectorStore) Reset(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, `TRUNCATE message_embeddings`); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (p *PgVectorStore) Close() error {
	return p.db.Close()
}

// formatVector renders an embedding in pgvector's text format
func formatVector(embedding []float64) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, val := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	}
	sb.WriteByte(']')
	return sb.String()
}
