package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veriscope/internal/util"
)

func article(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "정부는 %d번째 발표에서 새로운 정책을 공개했으며 관계 부처와 함께 세부 계획을 마련할 예정이라고 밝혔다.  ", i)
	}
	return b.String()
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First one. Second!  Third?\nFourth… 다섯째。 여섯째！ last")
	assert.Equal(t, []string{"First one.", "Second!", "Third?", "Fourth…", "다섯째。", "여섯째！", "last"}, got)

	assert.Equal(t, []string{"v1.2 is out."}, SplitSentences("v1.2 is out."))
	assert.Empty(t, SplitSentences("   "))
}

func TestChunkProperties(t *testing.T) {
	text := article(20)
	c := New()
	chunks := c.Chunk(text)

	require.NotEmpty(t, chunks)
	sents := SplitSentences(text)
	for _, ch := range chunks {
		assert.GreaterOrEqual(t, util.RuneLen(ch), 200)
		assert.Equal(t, util.NormalizeSpace(ch), ch, "chunks are whitespace-collapsed")
		assert.True(t, strings.HasPrefix(ch, sents[0][:len("정부는")]), "chunk starts at a sentence")
		assert.True(t, strings.HasSuffix(ch, "밝혔다."), "chunk ends at a sentence boundary")
	}

	// 20 sentences, window 4, step 3: the tail window at 18 is too short
	assert.Len(t, chunks, 6)
}

func TestChunkFallbackWholeText(t *testing.T) {
	// one long sentence without terminal punctuation
	text := strings.Repeat("가나다라 ", 60)
	chunks := New(WithMinLen(200)).Chunk(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, util.NormalizeSpace(text), chunks[0])
}

func TestChunkShortTextYieldsNothing(t *testing.T) {
	assert.Empty(t, New().Chunk("너무 짧은 문장."))
	assert.Empty(t, New().Chunk(""))
}

func TestChunkAnyLongTextHasChunk(t *testing.T) {
	for n := 1; n < 12; n++ {
		text := article(n)
		if util.RuneLen(util.NormalizeSpace(text)) < 200 {
			continue
		}
		assert.NotEmpty(t, New().Chunk(text), "n=%d", n)
	}
}

func TestChunkOptions(t *testing.T) {
	c := New(WithWindow(2), WithStep(0), WithMinLen(10))
	cfg := c.Config()
	assert.Equal(t, 2, cfg.Window)
	assert.Equal(t, 1, cfg.Step)
	assert.Equal(t, 10, cfg.MinLen)

	chunks := c.Chunk("Alpha sentence here. Beta sentence here. Gamma sentence here.")
	assert.Equal(t, []string{
		"Alpha sentence here. Beta sentence here.",
		"Beta sentence here. Gamma sentence here.",
		"Gamma sentence here.",
	}, chunks)
}

func TestSummarize(t *testing.T) {
	assert.Equal(t, "One. Two. Three.", Summarize("One.  Two. Three. Four.", 3))
	assert.Equal(t, "only text", Summarize("only text", 3))
	assert.Equal(t, "A! B?", Summarize("A! B?", 0))
}
