package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

const pgSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_index (
	name        TEXT PRIMARY KEY,
	model       TEXT NOT NULL,
	dimension   INT  NOT NULL,
	chunk_count INT  NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_chunk (
	document  TEXT   NOT NULL REFERENCES document_index(name) ON DELETE CASCADE,
	idx       INT    NOT NULL,
	page      INT    NOT NULL,
	content   TEXT   NOT NULL,
	embedding vector NOT NULL,
	PRIMARY KEY (document, idx)
);
`

// PgStore keeps every document's chunks in one table. A build replaces the
// document's rows inside a single transaction.
type PgStore struct {
	db    *pgxpool.Pool
	model string
	log   *zap.Logger
}

func NewPgStore(db *pgxpool.Pool, model string, log *zap.Logger) *PgStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &PgStore{db: db, model: model, log: log}
}

// EnsureSchema creates the pgvector extension and the tables if missing.
func (s *PgStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PgStore) Build(ctx context.Context, name string, chunks []rag.Chunk, vectors [][]float32) error {
	dim, err := checkBuild(name, chunks, vectors)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO document_index (name, model, dimension, chunk_count, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE
		SET model = EXCLUDED.model,
			dimension = EXCLUDED.dimension,
			chunk_count = EXCLUDED.chunk_count,
			updated_at = EXCLUDED.updated_at
	`, name, s.model, dim, len(chunks))
	if err != nil {
		return fmt.Errorf("upsert document: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM document_chunk WHERE document = $1`, name); err != nil {
		return fmt.Errorf("delete old chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(`
			INSERT INTO document_chunk (document, idx, page, content, embedding)
			VALUES ($1, $2, $3, $4, $5)
		`, name, c.Index, c.Page, c.Text, pgvector.NewVector(vectors[i]))
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert chunk %d: %w", i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.log.Debug("index written", zap.String("file", name), zap.Int("chunks", len(chunks)))
	return nil
}

func (s *PgStore) Query(ctx context.Context, name string, vector []float32, k int) ([]rag.ScoredChunk, error) {
	if err := rag.ValidateName(name); err != nil {
		return nil, err
	}

	var dim int
	err := s.db.QueryRow(ctx, `SELECT dimension FROM document_index WHERE name = $1`, name).Scan(&dim)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &rag.NotFoundError{File: name}
	}
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	if len(vector) != dim {
		return nil, fmt.Errorf("query vector has %d dims, index %q has %d", len(vector), name, dim)
	}
	if k <= 0 {
		return []rag.ScoredChunk{}, nil
	}

	rows, err := s.db.Query(ctx, `
		SELECT idx, page, content, embedding <-> $2 AS distance
		FROM document_chunk
		WHERE document = $1
		ORDER BY distance, idx
		LIMIT $3
	`, name, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	hits := make([]rag.ScoredChunk, 0, k)
	for rows.Next() {
		var (
			h    rag.ScoredChunk
			dist float64
		)
		if err := rows.Scan(&h.Index, &h.Page, &h.Text, &dist); err != nil {
			return nil, err
		}
		h.Distance = float32(dist * dist)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

var _ rag.IndexStore = (*PgStore)(nil)
