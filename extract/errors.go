package extract

import "errors"

var (
	// ErrPasswordProtected indicates an encrypted document that cannot be
	// opened without credentials.
	ErrPasswordProtected = errors.New("document is password protected")

	// ErrNoTextContent indicates a document without a text layer, for
	// example a scanned image-only PDF.
	ErrNoTextContent = errors.New("document has no extractable text")

	// ErrNotPDF indicates data that fails PDF structure validation.
	ErrNotPDF = errors.New("data is not a valid PDF document")
)
