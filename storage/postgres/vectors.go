package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/storage"
)

// VectorStore implements storage.VectorStore on a pgvector table.
type VectorStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a VectorStore on the given pool.
func NewVectorStore(pool *pgxpool.Pool) *VectorStore {
	return &VectorStore{
		pool:   pool,
		logger: slog.Default().With("component", "postgres-vectors"),
	}
}

// Upsert inserts or overwrites records by key.
func (v *VectorStore) Upsert(ctx context.Context, records []*core.VectorRecord) error {
	tx, err := v.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, record := range records {
		_, err := tx.Exec(ctx, `
			INSERT INTO vectors (key, embedding, owner_id, document_id, position,
				source_kind, created_at, content)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (key) DO UPDATE SET
				embedding = EXCLUDED.embedding,
				owner_id = EXCLUDED.owner_id,
				position = EXCLUDED.position,
				source_kind = EXCLUDED.source_kind,
				created_at = EXCLUDED.created_at,
				content = EXCLUDED.content`,
			record.Key, pgvector.NewVector(record.Vector), record.Metadata.OwnerID,
			record.Metadata.DocumentID, record.Metadata.Position,
			record.Metadata.SourceKind, record.Metadata.CreatedAt, record.Metadata.Content)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// DeleteByDocument removes every record belonging to the document.
func (v *VectorStore) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := v.pool.Exec(ctx, `DELETE FROM vectors WHERE document_id = $1`, documentID)
	return err
}

// KeysByDocument returns the keys of the document's records.
func (v *VectorStore) KeysByDocument(ctx context.Context, documentID uuid.UUID) ([]string, error) {
	rows, err := v.pool.Query(ctx, `SELECT key FROM vectors WHERE document_id = $1`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Search returns up to limit of the owner's records ranked by cosine
// similarity to the query vector.
func (v *VectorStore) Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]*storage.SearchResult, error) {
	rows, err := v.pool.Query(ctx, `
		SELECT key, owner_id, document_id, position, source_kind, created_at, content,
			1 - (embedding <=> $1) AS score
		FROM vectors
		WHERE owner_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector), ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*storage.SearchResult
	for rows.Next() {
		result := &storage.SearchResult{}
		err := rows.Scan(&result.Key, &result.Metadata.OwnerID, &result.Metadata.DocumentID,
			&result.Metadata.Position, &result.Metadata.SourceKind,
			&result.Metadata.CreatedAt, &result.Metadata.Content, &result.Score)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// Close is a no-op; the shared pool is closed through the DocumentStore.
func (v *VectorStore) Close() error {
	return nil
}
