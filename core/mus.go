package core

import (
	"errors"
	"time"

	"github.com/google/uuid"
	mus "github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the types stored as badger values. Hand-maintained
// over the mus-go primitives; field order is part of the wire format, so
// new fields go at the end.
var (
	// DocumentMUS serializes Document store values.
	DocumentMUS = documentMUS{}
	// ChunkMUS serializes Chunk store values.
	ChunkMUS = chunkMUS{}
	// VectorRecordMUS serializes VectorRecord store values.
	VectorRecordMUS = vectorRecordMUS{}

	uuidMUS   = uuidSer{}
	timeMUS   = timeSer{}
	kindMUS   = sourceKindSer{}
	statusMUS = statusSer{}
	floatsMUS = float32SliceSer{}
	metaMUS   = vectorMetadataSer{}
)

type uuidSer struct{}

func (uuidSer) Marshal(id uuid.UUID, bs []byte) int {
	return copy(bs, id[:])
}

func (uuidSer) Unmarshal(bs []byte) (id uuid.UUID, n int, err error) {
	if len(bs) < len(id) {
		err = mus.ErrTooSmallByteSlice
		return
	}
	n = copy(id[:], bs)
	return
}

func (uuidSer) Size(uuid.UUID) int {
	return 16
}

// timeSer stores Unix microseconds behind a presence flag so the zero
// time survives the round trip.
type timeSer struct{}

func (timeSer) Marshal(t time.Time, bs []byte) (n int) {
	if t.IsZero() {
		return ord.Bool.Marshal(false, bs)
	}
	n = ord.Bool.Marshal(true, bs)
	n += varint.Int64.Marshal(t.UnixMicro(), bs[n:])
	return n
}

func (timeSer) Unmarshal(bs []byte) (t time.Time, n int, err error) {
	set, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !set {
		return
	}
	var (
		micro int64
		n1    int
	)
	micro, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	t = time.UnixMicro(micro).UTC()
	return
}

func (timeSer) Size(t time.Time) int {
	if t.IsZero() {
		return ord.Bool.Size(false)
	}
	return ord.Bool.Size(true) + varint.Int64.Size(t.UnixMicro())
}

type sourceKindSer struct{}

func (sourceKindSer) Marshal(k SourceKind, bs []byte) int {
	return ord.String.Marshal(string(k), bs)
}

func (sourceKindSer) Unmarshal(bs []byte) (SourceKind, int, error) {
	s, n, err := ord.String.Unmarshal(bs)
	return SourceKind(s), n, err
}

func (sourceKindSer) Size(k SourceKind) int {
	return ord.String.Size(string(k))
}

type statusSer struct{}

func (statusSer) Marshal(s Status, bs []byte) int {
	return ord.String.Marshal(string(s), bs)
}

func (statusSer) Unmarshal(bs []byte) (Status, int, error) {
	s, n, err := ord.String.Unmarshal(bs)
	return Status(s), n, err
}

func (statusSer) Size(s Status) int {
	return ord.String.Size(string(s))
}

type float32SliceSer struct{}

func (float32SliceSer) Marshal(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += raw.Float32.Marshal(f, bs[n:])
	}
	return n
}

func (float32SliceSer) Unmarshal(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 {
		err = errors.New("negative vector length")
		return
	}
	if length == 0 {
		return
	}
	if length > (len(bs)-n)/4 {
		err = mus.ErrTooSmallByteSlice
		return
	}
	v = make([]float32, length)
	for i := range v {
		var n1 int
		v[i], n1, err = raw.Float32.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

func (float32SliceSer) Size(v []float32) int {
	return varint.Int.Size(len(v)) + 4*len(v)
}

type documentMUS struct{}

func (documentMUS) Marshal(d Document, bs []byte) (n int) {
	n = uuidMUS.Marshal(d.ID, bs)
	n += ord.String.Marshal(d.OwnerID, bs[n:])
	n += ord.String.Marshal(d.Title, bs[n:])
	n += kindMUS.Marshal(d.SourceKind, bs[n:])
	n += ord.String.Marshal(d.SourceURL, bs[n:])
	n += ord.String.Marshal(d.Filename, bs[n:])
	n += statusMUS.Marshal(d.Status, bs[n:])
	n += varint.Int.Marshal(d.ChunkCount, bs[n:])
	n += ord.String.Marshal(d.ErrorMessage, bs[n:])
	n += timeMUS.Marshal(d.CreatedAt, bs[n:])
	n += timeMUS.Marshal(d.ProcessedAt, bs[n:])
	return n
}

func (documentMUS) Unmarshal(bs []byte) (d Document, n int, err error) {
	var n1 int
	d.ID, n, err = uuidMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	d.OwnerID, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Title, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.SourceKind, n1, err = kindMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.SourceURL, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Filename, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Status, n1, err = statusMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.ErrorMessage, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.CreatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.ProcessedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (documentMUS) Size(d Document) int {
	return uuidMUS.Size(d.ID) +
		ord.String.Size(d.OwnerID) +
		ord.String.Size(d.Title) +
		kindMUS.Size(d.SourceKind) +
		ord.String.Size(d.SourceURL) +
		ord.String.Size(d.Filename) +
		statusMUS.Size(d.Status) +
		varint.Int.Size(d.ChunkCount) +
		ord.String.Size(d.ErrorMessage) +
		timeMUS.Size(d.CreatedAt) +
		timeMUS.Size(d.ProcessedAt)
}

type chunkMUS struct{}

func (chunkMUS) Marshal(c Chunk, bs []byte) (n int) {
	n = uuidMUS.Marshal(c.ID, bs)
	n += uuidMUS.Marshal(c.DocumentID, bs[n:])
	n += varint.Int.Marshal(c.Position, bs[n:])
	n += ord.String.Marshal(c.Content, bs[n:])
	n += varint.Int.Marshal(c.TokenCount, bs[n:])
	n += ord.String.Marshal(c.VectorKey, bs[n:])
	return n
}

func (chunkMUS) Unmarshal(bs []byte) (c Chunk, n int, err error) {
	var n1 int
	c.ID, n, err = uuidMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	c.DocumentID, n1, err = uuidMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Position, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Content, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.TokenCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.VectorKey, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (chunkMUS) Size(c Chunk) int {
	return uuidMUS.Size(c.ID) +
		uuidMUS.Size(c.DocumentID) +
		varint.Int.Size(c.Position) +
		ord.String.Size(c.Content) +
		varint.Int.Size(c.TokenCount) +
		ord.String.Size(c.VectorKey)
}

type vectorMetadataSer struct{}

func (vectorMetadataSer) Marshal(m VectorMetadata, bs []byte) (n int) {
	n = ord.String.Marshal(m.OwnerID, bs)
	n += uuidMUS.Marshal(m.DocumentID, bs[n:])
	n += varint.Int.Marshal(m.Position, bs[n:])
	n += kindMUS.Marshal(m.SourceKind, bs[n:])
	n += timeMUS.Marshal(m.CreatedAt, bs[n:])
	n += ord.String.Marshal(m.Content, bs[n:])
	return n
}

func (vectorMetadataSer) Unmarshal(bs []byte) (m VectorMetadata, n int, err error) {
	var n1 int
	m.OwnerID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	m.DocumentID, n1, err = uuidMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.Position, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.SourceKind, n1, err = kindMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.CreatedAt, n1, err = timeMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	m.Content, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (vectorMetadataSer) Size(m VectorMetadata) int {
	return ord.String.Size(m.OwnerID) +
		uuidMUS.Size(m.DocumentID) +
		varint.Int.Size(m.Position) +
		kindMUS.Size(m.SourceKind) +
		timeMUS.Size(m.CreatedAt) +
		ord.String.Size(m.Content)
}

type vectorRecordMUS struct{}

func (vectorRecordMUS) Marshal(r VectorRecord, bs []byte) (n int) {
	n = ord.String.Marshal(r.Key, bs)
	n += floatsMUS.Marshal(r.Vector, bs[n:])
	n += metaMUS.Marshal(r.Metadata, bs[n:])
	return n
}

func (vectorRecordMUS) Unmarshal(bs []byte) (r VectorRecord, n int, err error) {
	var n1 int
	r.Key, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	r.Vector, n1, err = floatsMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	r.Metadata, n1, err = metaMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (vectorRecordMUS) Size(r VectorRecord) int {
	return ord.String.Size(r.Key) +
		floatsMUS.Size(r.Vector) +
		metaMUS.Size(r.Metadata)
}
