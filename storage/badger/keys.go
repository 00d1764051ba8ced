package badger

import (
	"encoding/binary"

	"github.com/google/uuid"
)

// Key prefixes for different data types
const (
	documentPrefix   = "doc"
	ownerDocPrefix   = "docown"
	ownerCountPrefix = "owncnt"
	chunkPrefix      = "chu"
	vectorPrefix     = "vec"
	vectorDocPrefix  = "vecdoc"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id uuid.UUID) []byte {
	buf := make([]byte, 0, len(documentPrefix)+1+16)
	buf = append(buf, documentPrefix...)
	buf = append(buf, ':')
	return append(buf, id[:]...)
}

// makeOwnerDocKey generates a composite key for the owner index.
// Format: prefix:ownerID:documentID
func makeOwnerDocKey(ownerID string, id uuid.UUID) []byte {
	buf := make([]byte, 0, len(ownerDocPrefix)+2+len(ownerID)+16)
	buf = append(buf, ownerDocPrefix...)
	buf = append(buf, ':')
	buf = append(buf, ownerID...)
	buf = append(buf, ':')
	return append(buf, id[:]...)
}

// makeOwnerDocPrefix generates the scan prefix for one owner's documents.
func makeOwnerDocPrefix(ownerID string) []byte {
	buf := make([]byte, 0, len(ownerDocPrefix)+2+len(ownerID))
	buf = append(buf, ownerDocPrefix...)
	buf = append(buf, ':')
	buf = append(buf, ownerID...)
	return append(buf, ':')
}

// makeOwnerCountKey generates the key holding one owner's document count.
func makeOwnerCountKey(ownerID string) []byte {
	buf := make([]byte, 0, len(ownerCountPrefix)+1+len(ownerID))
	buf = append(buf, ownerCountPrefix...)
	buf = append(buf, ':')
	return append(buf, ownerID...)
}

// makeChunkKey generates a composite key for a chunk.
// The position is written in BigEndian order so lexicographic iteration
// yields chunks in position order.
func makeChunkKey(documentID uuid.UUID, position int) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+1+16+8)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, ':')
	buf = append(buf, documentID[:]...)
	return binary.BigEndian.AppendUint64(buf, uint64(position))
}

// makeChunkPrefix generates the scan prefix for one document's chunks.
func makeChunkPrefix(documentID uuid.UUID) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+1+16)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, ':')
	return append(buf, documentID[:]...)
}

// makeVectorKey generates a key for a vector record.
func makeVectorKey(key string) []byte {
	buf := make([]byte, 0, len(vectorPrefix)+1+len(key))
	buf = append(buf, vectorPrefix...)
	buf = append(buf, ':')
	return append(buf, key...)
}

// makeVectorDocKey generates a composite key for the vector document index.
// Format: prefix:documentID:vectorKey
func makeVectorDocKey(documentID uuid.UUID, key string) []byte {
	buf := make([]byte, 0, len(vectorDocPrefix)+2+16+len(key))
	buf = append(buf, vectorDocPrefix...)
	buf = append(buf, ':')
	buf = append(buf, documentID[:]...)
	buf = append(buf, ':')
	return append(buf, key...)
}

// makeVectorDocPrefix generates the scan prefix for one document's vector
// index entries.
func makeVectorDocPrefix(documentID uuid.UUID) []byte {
	buf := make([]byte, 0, len(vectorDocPrefix)+2+16)
	buf = append(buf, vectorDocPrefix...)
	buf = append(buf, ':')
	buf = append(buf, documentID[:]...)
	return append(buf, ':')
}
