// Copyright 2026 StudyForge
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so the orchestrator can decide between
// surfacing, retrying, and terminal failure without inspecting error text.
type Kind int

const (
	// KindUnknown is the zero value for errors that carry no kind.
	KindUnknown Kind = iota
	// KindValidation is malformed or out-of-bounds input. Surfaced to the
	// caller before any external call is made.
	KindValidation
	// KindQuota means the owner's document quota is exhausted. Surfaced
	// before any external call is made.
	KindQuota
	// KindSecurity is an SSRF block or disallowed remote content. The
	// fetch is never attempted.
	KindSecurity
	// KindExtraction covers password-protected, image-only, and
	// empty-content sources. The document transitions to failed.
	KindExtraction
	// KindExternal is a transient provider or network failure, eligible
	// for retry with backoff.
	KindExternal
	// KindCapacity means the document produced too many chunks.
	KindCapacity
)

// String returns a stable lowercase name for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindQuota:
		return "quota"
	case KindSecurity:
		return "security"
	case KindExtraction:
		return "extraction"
	case KindExternal:
		return "external"
	case KindCapacity:
		return "capacity"
	}
	return "unknown"
}

// Error is a classified pipeline error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E creates a classified error with a formatted message.
func E(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first classified error in err's chain,
// or KindUnknown if none is found.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether err's chain contains a classified error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
