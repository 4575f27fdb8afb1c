package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS message_embeddings (
	id        TEXT PRIMARY KEY,
	text      TEXT NOT NULL,
	embedding TEXT NOT NULL,
	metadata  TEXT NOT NULL DEFAULT '{}'
)`

// SQLiteStore is a local Store. Similarity is computed by brute force over
// the rows that pass the metadata filter.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore opens dsn with the pure-Go SQLite driver and creates the schema
func NewSQLiteStore(ctx context.Context, dsn string, logger zerolog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		log: logger.With().Str("component", "vectorstore").Str("driver", "sqlite").Logger(),
	}, nil
}

// Add inserts or replaces documents in one transaction
func (s *SQLiteStore) Add(ctx context.Context, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO message_embeddings (id, text, embedding, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			embedding = excluded.embedding,
			metadata = excluded.metadata`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, d := range docs {
		emb, err := json.Marshal(d.Embedding)
		if err != nil {
			return fmt.Errorf("failed to encode embedding for %s: %w", d.ID, err)
		}
		md, err := json.Marshal(metadataOrEmpty(d.Metadata))
		if err != nil {
			return fmt.Errorf("failed to encode metadata for %s: %w", d.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, d.ID, d.Text, string(emb), string(md)); err != nil {
			return fmt.Errorf("failed to store %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	s.log.Debug().Int("documents", len(docs)).Msg("Stored documents")
	return nil
}

// Query ranks stored documents by cosine similarity. Equal similarities are
// ordered by ID.
func (s *SQLiteStore) Query(ctx context.Context, query Query) ([]Result, error) {
	if query.Limit <= 0 {
		query.Limit = DefaultLimit
	}

	var (
		conds []string
		args  []any
	)
	keys := make([]string, 0, len(query.Where))
	for k := range query.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		conds = append(conds, "json_extract(metadata, ?) = ?")
		args = append(args, jsonPath(k), query.Where[k])
	}
	if len(query.ExcludeIDs) > 0 {
		conds = append(conds, "id NOT IN (?"+strings.Repeat(",?", len(query.ExcludeIDs)-1)+")")
		for _, id := range query.ExcludeIDs {
			args = append(args, id)
		}
	}

	sqlQuery := "SELECT id, text, embedding, metadata FROM message_embeddings"
	if len(conds) > 0 {
		sqlQuery += " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var (
			r        Result
			emb, md  string
			stored   []float64
			metadata Metadata
		)
		if err := rows.Scan(&r.ID, &r.Text, &emb, &md); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(emb), &stored); err != nil {
			return nil, fmt.Errorf("failed to decode embedding for %s: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(md), &metadata); err != nil {
			return nil, fmt.Errorf("failed to decode metadata for %s: %w", r.ID, err)
		}
		r.Metadata = metadata
		r.Similarity = cosine(query.Embedding, stored)
		r.Distance = 1 - r.Similarity
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > query.Limit {
		results = results[:query.Limit]
	}
	return results, nil
}

// Count returns the number of stored documents
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM message_embeddings").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

// Reset removes every document
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM message_embeddings"); err != nil {
		return fmt.Errorf("failed to reset store: %w", err)
	}
	return nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func jsonPath(key string) string {
	return `$."` + strings.ReplaceAll(key, `"`, `\"`) + `"`
}

func metadataOrEmpty(md Metadata) Metadata {
	if md == nil {
		return Metadata{}
	}
	return md
}

// cosine is 0 when either vector has zero norm or the lengths differ
func cosine(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
