// Package postgres implements the storage contracts on PostgreSQL with the
// pgvector extension. Document and chunk rows live in relational tables
// with a cascading foreign key; vector records live in a pgvector table
// searched with the cosine distance operator. The quota check-and-reserve
// takes a per-owner advisory lock so concurrent submissions serialize on
// the count.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Open connects a pgx pool to the given DSN and verifies the connection.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Migrate creates the schema. dimension fixes the vector column width and
// must match the embedding provider's output.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}

	schema := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id            UUID PRIMARY KEY,
	owner_id      TEXT NOT NULL,
	title         TEXT NOT NULL,
	source_kind   TEXT NOT NULL,
	source_url    TEXT NOT NULL DEFAULT '',
	filename      TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	chunk_count   INT NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	processed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);

CREATE TABLE IF NOT EXISTS chunks (
	id          UUID PRIMARY KEY,
	document_id UUID NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	position    INT NOT NULL,
	content     TEXT NOT NULL,
	token_count INT NOT NULL,
	vector_key  TEXT NOT NULL,
	UNIQUE (document_id, position)
);

CREATE TABLE IF NOT EXISTS vectors (
	key         TEXT PRIMARY KEY,
	embedding   vector(%d) NOT NULL,
	owner_id    TEXT NOT NULL,
	document_id UUID NOT NULL,
	position    INT NOT NULL,
	source_kind TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	content     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_vectors_document ON vectors(document_id);
CREATE INDEX IF NOT EXISTS idx_vectors_owner ON vectors(owner_id);
`, dimension)

	_, err := pool.Exec(ctx, schema)
	return err
}
