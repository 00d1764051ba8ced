package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyforge/corpus/core"
	"github.com/studyforge/corpus/token"
)

// counter uses the rune-ratio estimate so tests are deterministic and need
// no encoding download: one token per four runes, rounded up.
func counter(t *testing.T) Counter {
	t.Helper()
	return token.NewEstimator(token.WithoutTokenizer())
}

func TestChunkShortTextSinglePiece(t *testing.T) {
	c := New(counter(t))
	text := "A short paragraph that fits into one chunk without any splitting."

	pieces, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, pieces, 1)

	assert.Equal(t, text, pieces[0].Text)
	assert.Empty(t, pieces[0].Overlap)
	assert.Equal(t, 0, pieces[0].Position)
	assert.Equal(t, 0, pieces[0].StartOffset)
	assert.Equal(t, len(text), pieces[0].EndOffset)
}

func TestChunkEmptyText(t *testing.T) {
	c := New(counter(t))

	pieces, err := c.Chunk(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, pieces)
}

func TestChunkPrefersParagraphBoundaries(t *testing.T) {
	// Target of 15 tokens = 60 runes. Two paragraphs of ~50 runes each
	// cannot merge, so the paragraph break must become the cut point.
	para1 := strings.Repeat("aaaa ", 10)
	para2 := strings.Repeat("bbbb ", 10)
	text := strings.TrimSpace(para1) + "\n\n" + strings.TrimSpace(para2)

	c := New(counter(t), WithTargetTokens(15), WithOverlapTokens(0))
	pieces, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Len(t, pieces, 2)

	assert.True(t, strings.HasSuffix(pieces[0].Text, "\n\n"), "separator stays with the left piece")
	assert.True(t, strings.HasPrefix(pieces[1].Text, "bbbb"))
}

func TestChunkReconstruction(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog near the river bank. ")
		if i%5 == 4 {
			sb.WriteString("\n\n")
		}
	}
	text := sb.String()

	c := New(counter(t), WithTargetTokens(40), WithOverlapTokens(8))
	pieces, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(pieces), 2)

	var rebuilt strings.Builder
	for i, p := range pieces {
		assert.Equal(t, i, p.Position)
		body := p.Text[len(p.Overlap):]
		assert.Equal(t, text[p.StartOffset:p.EndOffset], body)
		rebuilt.WriteString(body)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestChunkOverlapIsSuffixOfPrevious(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("one two three four five six seven eight nine ten. ", 12))

	c := New(counter(t), WithTargetTokens(30), WithOverlapTokens(6))
	pieces, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(pieces), 1)

	for i := 1; i < len(pieces); i++ {
		prev := pieces[i-1].Text[len(pieces[i-1].Overlap):]
		require.NotEmpty(t, pieces[i].Overlap)
		assert.True(t, strings.HasSuffix(prev, pieces[i].Overlap))
	}
}

func TestChunkTokenCeiling(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("lorem ipsum dolor sit amet consectetur adipiscing elit sed do. ", 20))

	c := New(counter(t), WithTargetTokens(25), WithOverlapTokens(5))
	pieces, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)

	for _, p := range pieces {
		assert.LessOrEqual(t, p.TokenCount, c.MaxTokens(), "chunk %d over ceiling", p.Position)
	}
}

func TestChunkCapacityExceeded(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word word word word word word word word word word. ", 30))

	c := New(counter(t), WithTargetTokens(10), WithOverlapTokens(0), WithMaxChunks(3))
	_, err := c.Chunk(context.Background(), text)
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindCapacity))
}

func TestChunkHardCutWithoutSeparators(t *testing.T) {
	// A separator-free run longer than the target still splits.
	text := strings.Repeat("x", 600)

	c := New(counter(t), WithTargetTokens(50), WithOverlapTokens(0))
	pieces, err := c.Chunk(context.Background(), text)
	require.NoError(t, err)
	require.Greater(t, len(pieces), 1)

	var rebuilt strings.Builder
	for _, p := range pieces {
		rebuilt.WriteString(p.Text)
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestFindBoundariesSentences(t *testing.T) {
	text := "Dr. Smith arrived. He met J. Doe, e.g. for lunch! Then left? Yes."
	bounds := findBoundaries(text, span{0, len(text)}, levelSentence)

	var cuts []string
	start := 0
	for _, b := range bounds {
		cuts = append(cuts, text[start:b])
		start = b
	}
	cuts = append(cuts, text[start:])

	require.Len(t, cuts, 4)
	assert.Equal(t, "Dr. Smith arrived. ", cuts[0])
	assert.Equal(t, "He met J. Doe, e.g. for lunch! ", cuts[1])
	assert.Equal(t, "Then left? ", cuts[2])
	assert.Equal(t, "Yes.", cuts[3])
}

func TestIsAbbreviation(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"see fig. 3", true},
		{"met Dr. Smith", true},
		{"with J. Doe", true},
		{"e.g. apples", true},
		{"the end. Next", false},
		{"a sentence. More", false},
	}
	for _, tc := range cases {
		dot := strings.IndexByte(tc.text, '.')
		require.GreaterOrEqual(t, dot, 0)
		assert.Equal(t, tc.want, isAbbreviation(tc.text, dot), tc.text)
	}
}

func TestTailByTokens(t *testing.T) {
	c := New(counter(t))
	ctx := context.Background()

	t.Run("whole text fits", func(t *testing.T) {
		assert.Equal(t, "short", c.tailByTokens(ctx, "short", 10))
	})

	t.Run("word aligned suffix", func(t *testing.T) {
		text := strings.TrimSpace(strings.Repeat("alpha beta gamma delta ", 10))
		tail := c.tailByTokens(ctx, text, 5)
		require.NotEmpty(t, tail)
		assert.True(t, strings.HasSuffix(text, tail))
		assert.False(t, strings.HasPrefix(tail, " "))
		assert.LessOrEqual(t, counter(t).Count(ctx, tail), 5)
	})

	t.Run("zero budget", func(t *testing.T) {
		assert.Empty(t, c.tailByTokens(ctx, "anything at all", 0))
	})
}
