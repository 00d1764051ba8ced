// Package mock provides a test double for ai.Embedder with deterministic
// default behavior and injectable function fields.
package mock
