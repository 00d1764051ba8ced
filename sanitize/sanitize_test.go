package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeControlCharacters(t *testing.T) {
	assert.Equal(t, "ab", Sanitize("a\x00\x01\x08\x0b\x1f\x7fb"))
	assert.Equal(t, "a\tb", Sanitize("a\tb"), "tab is preserved")
	assert.Equal(t, "a\nb", Sanitize("a\nb"), "newline is preserved")
}

func TestSanitizeZeroWidthCharacters(t *testing.T) {
	assert.Equal(t, "ab", Sanitize("a​b"))
	assert.Equal(t, "ab", Sanitize("a‌‍b"))
	assert.Equal(t, "ab", Sanitize("a\uFEFFb"))
	assert.Equal(t, "ab", Sanitize("a­b"), "soft hyphen removed")
}

func TestSanitizeBidiOverrides(t *testing.T) {
	assert.Equal(t, "abc", Sanitize("a‮b‬c"))
	assert.Equal(t, "abc", Sanitize("a⁦b⁩c"))
	assert.Equal(t, "ab", Sanitize("a‎‏b"))
}

func TestSanitizeLineEndings(t *testing.T) {
	assert.Equal(t, "a\nb", Sanitize("a\r\nb"))
	assert.Equal(t, "a\nb", Sanitize("a\rb"), "lone CR becomes LF")
	assert.Equal(t, "a\n\nb", Sanitize("a\r\n\r\nb"))
}

func TestSanitizeWhitespaceCollapsing(t *testing.T) {
	assert.Equal(t, "a b", Sanitize("a     b"))
	assert.Equal(t, "a\n\nb", Sanitize("a\n\n\n\n\nb"), "3+ newlines collapse to a paragraph break")
	assert.Equal(t, "a\n\nb", Sanitize("a\n\nb"), "paragraph break preserved")
	assert.Equal(t, "abc", Sanitize("  abc \n "), "surrounding whitespace trimmed")
}

func TestSanitizeUnicodeComposition(t *testing.T) {
	// e + combining acute accent composes to é.
	assert.Equal(t, "café", Sanitize("café"))
}

func TestSanitizeCombined(t *testing.T) {
	raw := "\uFEFF  Hello​ ‮world\x00!\r\n\r\n\r\n\r\nNext   paragraph.  "
	assert.Equal(t, "Hello world!\n\nNext paragraph.", Sanitize(raw))
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"plain text",
		"a\x00​‮ b\r\n\r\n\r\nc     d",
		"café\r\nsecond  line­",
		"",
		"   \r\n ​ ",
		// A zero-width joiner between a base letter and a combining mark:
		// stripping it leaves a decomposed pair that must still compose
		// on the same pass.
		"e‍́",
		"cafe‍́ au lait",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "sanitize must be idempotent for %q", in)
	}
}

func TestSanitizeComposesAfterRemoval(t *testing.T) {
	got := Sanitize("e‍́")
	assert.Equal(t, "é", got)
	assert.Len(t, []rune(got), 1, "base letter and combining mark must compose")
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(""))
	assert.True(t, IsEmpty(" \r\n​\x00 "))
	assert.False(t, IsEmpty("x"))
}

func TestSanitizeAndValidate(t *testing.T) {
	short := strings.Repeat("a", 99)
	_, n, ok := SanitizeAndValidate(short, 100)
	assert.Equal(t, 99, n)
	assert.False(t, ok, "99 characters fails the default threshold")

	exact := strings.Repeat("a", 100)
	text, n, ok := SanitizeAndValidate(exact, 100)
	assert.Equal(t, 100, n)
	assert.True(t, ok, "exactly 100 characters passes")
	assert.Equal(t, exact, text)

	// Sanitization happens before the check: padding that sanitizes away
	// does not count toward the minimum.
	padded := strings.Repeat("a", 99) + "​​   "
	_, n, ok = SanitizeAndValidate(padded, 100)
	assert.Equal(t, 99, n)
	assert.False(t, ok)

	// Zero threshold falls back to the default.
	_, _, ok = SanitizeAndValidate(strings.Repeat("b", 100), 0)
	assert.True(t, ok)
}
