package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in
	// one provider call. The returned slice contains embeddings in the same
	// order as the input texts. Returns an error if any embedding fails;
	// partial results are never returned.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
