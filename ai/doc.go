// Package ai defines the embedding provider abstraction used by the
// ingestion pipeline.
//
// The Embedder interface is implemented by ai/openai for OpenAI-compatible
// APIs (OpenAI, Ollama, vLLM, LocalAI) and by ai/mock for tests. Errors
// from providers are classified as permanent or transient via IsPermanent,
// which callers use to decide between failing fast and retrying.
package ai
