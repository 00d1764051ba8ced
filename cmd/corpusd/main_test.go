package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func findStringFlag(t *testing.T, flags []cli.Flag, name string) *cli.StringFlag {
	t.Helper()
	for _, flag := range flags {
		if f, ok := flag.(*cli.StringFlag); ok && f.Name == name {
			return f
		}
	}
	t.Fatalf("string flag %q not found", name)
	return nil
}

func findIntFlag(t *testing.T, flags []cli.Flag, name string) *cli.IntFlag {
	t.Helper()
	for _, flag := range flags {
		if f, ok := flag.(*cli.IntFlag); ok && f.Name == name {
			return f
		}
	}
	t.Fatalf("int flag %q not found", name)
	return nil
}

func TestEmbeddingFlagDefaults(t *testing.T) {
	flags := embeddingFlags()

	t.Run("embedding-host default", func(t *testing.T) {
		f := findStringFlag(t, flags, "embedding-host")
		assert.Equal(t, "http://localhost:11434/v1", f.Value)
	})

	t.Run("embedding-model default", func(t *testing.T) {
		f := findStringFlag(t, flags, "embedding-model")
		assert.Equal(t, "mxbai-embed-large", f.Value)
		assert.False(t, f.Required)
	})

	t.Run("dimension default", func(t *testing.T) {
		f := findIntFlag(t, flags, "dimension")
		assert.Equal(t, 1024, f.Value)
	})

	t.Run("batch-size default", func(t *testing.T) {
		f := findIntFlag(t, flags, "batch-size")
		assert.Equal(t, 16, f.Value)
	})
}

func TestIngestFlagDefaults(t *testing.T) {
	flags := ingestFlags()

	t.Run("owner is required", func(t *testing.T) {
		f := findStringFlag(t, flags, "owner")
		assert.True(t, f.Required)
	})

	t.Run("quota default", func(t *testing.T) {
		f := findIntFlag(t, flags, "quota")
		assert.Equal(t, 50, f.Value)
	})

	t.Run("chunking defaults", func(t *testing.T) {
		assert.Equal(t, 500, findIntFlag(t, flags, "target-tokens").Value)
		assert.Equal(t, 50, findIntFlag(t, flags, "overlap-tokens").Value)
		assert.Equal(t, 50, findIntFlag(t, flags, "max-chunks").Value)
	})
}

func TestJoinFlags(t *testing.T) {
	joined := joinFlags(storeFlags(), embeddingFlags())
	assert.Len(t, joined, len(storeFlags())+len(embeddingFlags()))
}

func TestSetupLogger(t *testing.T) {
	runWithLevel := func(level string) error {
		app := &cli.App{
			Name: "corpusd",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "log-level", Value: "info"},
			},
			Before: setupLogger,
			Action: func(c *cli.Context) error { return nil },
		}
		return app.Run([]string{"corpusd", "--log-level", level})
	}

	t.Run("accepts known levels", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error", "DEBUG", "Info"} {
			assert.NoError(t, runWithLevel(level), "level %q", level)
		}
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		err := runWithLevel("verbose")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})
}

func TestSnippet(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello world", snippet("hello  world", 80))
	})

	t.Run("collapses whitespace", func(t *testing.T) {
		assert.Equal(t, "a b c", snippet("a\n b\t\tc", 80))
	})

	t.Run("truncates long text", func(t *testing.T) {
		long := ""
		for i := 0; i < 50; i++ {
			long += "word "
		}
		got := snippet(long, 40)
		assert.Len(t, []rune(got), 40)
		assert.True(t, len(got) >= 3 && got[len(got)-3:] == "...")
	})
}
