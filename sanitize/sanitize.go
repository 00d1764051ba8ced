// Package sanitize normalizes untrusted text before chunking and storage.
// Sanitization is deterministic and idempotent.
package sanitize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultMinLength is the minimum sanitized length accepted for ingestion.
const DefaultMinLength = 100

// Pre-compiled character-class patterns, applied in a fixed order.
var (
	// Null and control characters except tab, newline and carriage return.
	// CR survives until line-ending normalization below.
	controlRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")

	// Zero-width characters and the soft hyphen.
	zeroWidthRe = regexp.MustCompile("[\u200B\u200C\u200D\u2060\uFEFF\u00AD]")

	// Bidirectional override/embedding/isolate controls and direction marks,
	// used in text-direction spoofing.
	bidiRe = regexp.MustCompile("[‪-‮⁦-⁩‎‏]")

	multiSpaceRe   = regexp.MustCompile(" {2,}")
	multiNewlineRe = regexp.MustCompile("\n{3,}")
)

// Sanitize normalizes raw text: Unicode NFC composition, removal of control,
// zero-width and bidi-override characters, line-ending normalization,
// whitespace collapsing, and trimming. Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(raw string) string {
	text := norm.NFC.String(raw)

	text = controlRe.ReplaceAllString(text, "")
	text = zeroWidthRe.ReplaceAllString(text, "")
	text = bidiRe.ReplaceAllString(text, "")

	// Removing a zero-width rune can leave a combining mark directly after
	// a base letter it was separated from; compose once more so a second
	// pass finds nothing left to do.
	text = norm.NFC.String(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// IsEmpty reports whether text sanitizes to nothing.
func IsEmpty(text string) bool {
	return len(Sanitize(text)) == 0
}

// SanitizeAndValidate sanitizes text and checks it against a minimum length.
// Sanitization always happens before the length check. A non-positive
// minLength falls back to DefaultMinLength.
func SanitizeAndValidate(text string, minLength int) (sanitized string, length int, valid bool) {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	sanitized = Sanitize(text)
	length = len([]rune(sanitized))
	return sanitized, length, length >= minLength
}
