package core

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// VectorKey derives the vector index key for a chunk from its document ID
// and position using BLAKE2b hashing. The derivation is deterministic, so
// re-ingesting a document produces identical keys and vector upserts
// overwrite previous entries instead of duplicating them.
func VectorKey(documentID uuid.UUID, position int) string {
	h, _ := blake2b.New(16, nil) // 128 bits is plenty for key uniqueness
	h.Write(documentID[:])
	var pos [8]byte
	binary.BigEndian.PutUint64(pos[:], uint64(position))
	h.Write(pos[:])
	return hex.EncodeToString(h.Sum(nil))
}
