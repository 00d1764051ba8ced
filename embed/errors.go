package embed

import "errors"

var (
	// ErrEmptyBatch is returned when Embed is called with no texts.
	ErrEmptyBatch = errors.New("empty embedding batch")

	// ErrBatchTooLarge is returned when Embed is called with more texts
	// than fit in one provider call.
	ErrBatchTooLarge = errors.New("embedding batch exceeds provider limit")
)
