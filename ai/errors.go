package ai

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
)

// ErrDimensionMismatch indicates the provider returned a vector whose width
// does not match the configured dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// ErrEmptyResult indicates the provider returned no embeddings for a
// non-empty request.
var ErrEmptyResult = errors.New("provider returned no embeddings")

// OpenAI-compatible clients surface HTTP failures as formatted strings, so
// the status code has to be fished back out of the message.
var statusCodeRe = regexp.MustCompile(`status code:?\s*(\d{3})`)

// IsPermanent reports whether err is a permanent provider failure that will
// not succeed on retry: a client error such as an invalid model name, a
// malformed request, or an authentication failure. Rate limiting (429),
// timeouts (408), and server errors are transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDimensionMismatch) || errors.Is(err, ErrEmptyResult) {
		return true
	}

	m := statusCodeRe.FindStringSubmatch(err.Error())
	if m == nil {
		// Network errors, connection refusals, truncated responses.
		return false
	}
	code, _ := strconv.Atoi(m[1])
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}
