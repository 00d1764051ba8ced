package badger

import (
	"context"
	"log/slog"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/storage"
)

// VectorStore implements storage.VectorStore on a Backend. Records are
// stored by deterministic key with a document-scoped secondary index so
// cascade deletion never scans the whole keyspace. Search is a linear scan
// with cosine ranking, which is adequate for the per-owner corpus sizes the
// quota allows.
type VectorStore struct {
	backend *Backend
	logger  *slog.Logger
}

var _ storage.VectorStore = (*VectorStore)(nil)

// NewVectorStore creates a VectorStore on the given backend.
func NewVectorStore(backend *Backend) *VectorStore {
	return &VectorStore{
		backend: backend,
		logger:  slog.Default().With("component", "badger-vectors"),
	}
}

// Upsert inserts or overwrites records by key.
func (v *VectorStore) Upsert(ctx context.Context, records []*core.VectorRecord) error {
	return v.backend.Update(func(tx *badger.Txn) error {
		for _, record := range records {
			data, err := storage.MarshalVectorRecord(record)
			if err != nil {
				return err
			}
			if err := tx.Set(makeVectorKey(record.Key), data); err != nil {
				return err
			}
			if err := tx.Set(makeVectorDocKey(record.Metadata.DocumentID, record.Key), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByDocument removes every record belonging to the document.
func (v *VectorStore) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	keys, err := v.KeysByDocument(ctx, documentID)
	if err != nil {
		return err
	}

	return v.backend.Update(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := tx.Delete(makeVectorKey(key)); err != nil {
				return err
			}
			if err := tx.Delete(makeVectorDocKey(documentID, key)); err != nil {
				return err
			}
		}
		return nil
	})
}

// KeysByDocument returns the keys of the document's records.
func (v *VectorStore) KeysByDocument(ctx context.Context, documentID uuid.UUID) ([]string, error) {
	prefix := makeVectorDocPrefix(documentID)
	var keys []string

	err := v.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			keys = append(keys, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Search returns up to limit of the owner's records ranked by cosine
// similarity to the query vector.
func (v *VectorStore) Search(ctx context.Context, ownerID string, vector []float32, limit int) ([]*storage.SearchResult, error) {
	var results []*storage.SearchResult

	err := v.backend.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = append([]byte(vectorPrefix), ':')
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			err := iter.Item().Value(func(val []byte) error {
				record, err := storage.UnmarshalVectorRecord(val)
				if err != nil {
					return err
				}
				if record.Metadata.OwnerID != ownerID || len(record.Vector) == 0 {
					return nil
				}
				results = append(results, &storage.SearchResult{
					Key:      record.Key,
					Score:    cosineSimilarity(vector, record.Vector),
					Metadata: record.Metadata,
				})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *storage.SearchResult) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Close is a no-op; the shared Backend owns the database lifecycle.
func (v *VectorStore) Close() error {
	return nil
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths compare over the shorter span.
func cosineSimilarity(a, b []float32) float32 {
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < minLen; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
