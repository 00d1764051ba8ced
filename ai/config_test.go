package ai

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "mxbai-embed-large", cfg.EmbeddingModel)
	assert.Equal(t, 1024, cfg.Dimension)
	require.NoError(t, cfg.Validate())
}

func TestNewConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithEmbeddingHost("https://api.openai.com"),
		WithEmbeddingModel("text-embedding-3-small"),
		WithAPIKey("sk-test"),
		WithDimension(1536),
	)

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "https://api.openai.com/v1", cfg.EmbeddingHost)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, 1536, cfg.Dimension)
}

func TestNormalizeAddsV1Suffix(t *testing.T) {
	cases := []struct {
		host string
		want string
	}{
		{"http://localhost:11434", "http://localhost:11434/v1"},
		{"http://localhost:11434/", "http://localhost:11434/v1"},
		{"http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"", ""},
	}
	for _, tc := range cases {
		cfg := &Config{EmbeddingHost: tc.host}
		cfg.Normalize()
		assert.Equal(t, tc.want, cfg.EmbeddingHost, tc.host)
	}
}

func TestValidateRejectsIncompleteConfig(t *testing.T) {
	cases := []struct {
		name string
		mut  func(*Config)
	}{
		{"missing host", func(c *Config) { c.EmbeddingHost = "" }},
		{"missing model", func(c *Config) { c.EmbeddingModel = "" }},
		{"zero dimension", func(c *Config) { c.Dimension = 0 }},
		{"negative dimension", func(c *Config) { c.Dimension = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mut(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad request", fmt.Errorf("API returned unexpected status code: 400 bad request"), true},
		{"unauthorized", fmt.Errorf("status code: 401"), true},
		{"model not found", fmt.Errorf("status code: 404 model missing"), true},
		{"rate limited", fmt.Errorf("status code: 429 too many requests"), false},
		{"request timeout", fmt.Errorf("status code: 408"), false},
		{"server error", fmt.Errorf("status code: 500"), false},
		{"bad gateway", fmt.Errorf("status code: 502"), false},
		{"network", errors.New("dial tcp 127.0.0.1:11434: connection refused"), false},
		{"dimension mismatch", fmt.Errorf("batch 3: %w", ErrDimensionMismatch), true},
		{"empty result", ErrEmptyResult, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsPermanent(tc.err))
		})
	}
}
