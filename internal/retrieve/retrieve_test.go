package retrieve

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/index"
	"github.com/ppiankov/veriscope/internal/model"
)

func unitPack(t *testing.T, rows [][]float32, urls ...string) *index.Pack {
	t.Helper()
	recs := make([]model.DocRecord, len(rows))
	for i := range recs {
		recs[i] = model.DocRecord{URL: "https://a.com/article/1", Chunk: "chunk"}
		if i < len(urls) {
			recs[i].URL = urls[i]
		}
	}
	p, err := index.NewPack("test", rows, recs)
	require.NoError(t, err)
	return p
}

func TestTopK(t *testing.T) {
	sims := []float64{0.1, 0.9, 0.5, 0.9}

	hits := TopK(sims, 3)
	require.Len(t, hits, 3)
	assert.Equal(t, 1, hits[0].Index)
	assert.Equal(t, 3, hits[1].Index)
	assert.Equal(t, 2, hits[2].Index)

	assert.Len(t, TopK(sims, 500), 4)
	assert.Empty(t, TopK(sims, 0))
	assert.Empty(t, TopK(nil, 10))
}

func TestAdaptiveFloor(t *testing.T) {
	assert.InDelta(t, 0.175, AdaptiveFloor(40, 0.35), 1e-9)
	assert.InDelta(t, 0.245, AdaptiveFloor(80, 0.35), 1e-9)
	assert.InDelta(t, 0.35, AdaptiveFloor(200, 0.35), 1e-9)
	assert.InDelta(t, 0.15, AdaptiveFloor(10, 0.2), 1e-9)
	assert.InDelta(t, 0.20, AdaptiveFloor(60, 0.2), 1e-9)
}

func TestAboveFloorAndFallback(t *testing.T) {
	hits := []Hit{{Index: 0, Similarity: 0.5}, {Index: 1, Similarity: 0.2}}
	assert.Len(t, AboveFloor(hits, 0.35), 1)
	assert.Empty(t, AboveFloor(hits, 0.9))

	assert.False(t, NeedsFallback(1, 20, model.SourceText))
	assert.True(t, NeedsFallback(0, 20, model.SourceText))
	assert.False(t, NeedsFallback(0, 500, model.SourceURL))
	assert.True(t, NeedsFallback(0, 500, model.SourceImage))
}

func TestSimilaritiesMaxPooled(t *testing.T) {
	p := unitPack(t, [][]float32{{1, 0}, {0, 1}})

	sims, err := Similarities(context.Background(), p, [][]float32{{0.6, 0.8}}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, sims[0], 1e-6)
	assert.InDelta(t, 0.8, sims[1], 1e-6)

	// each row takes its best query chunk
	sims, err = Similarities(context.Background(), p, [][]float32{{1, 0}, {0, 1}}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, sims[0], 1e-6)
	assert.InDelta(t, 1.0, sims[1], 1e-6)
}

func TestSimilaritiesErrors(t *testing.T) {
	p := unitPack(t, [][]float32{{1, 0}})

	_, err := Similarities(context.Background(), p, [][]float32{{1, 0, 0}}, 1)
	assert.Error(t, err)

	_, err = Similarities(context.Background(), nil, [][]float32{{1, 0}}, 1)
	assert.ErrorIs(t, err, model.ErrEmptyCorpus)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Similarities(ctx, p, [][]float32{{1, 0}}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSimilaritiesShardedMatchesSerial(t *testing.T) {
	n := 3*minShardRows + 17
	rows := make([][]float32, n)
	for i := range rows {
		a := float64(i) / float64(n) * math.Pi / 2
		rows[i] = []float32{float32(math.Cos(a)), float32(math.Sin(a))}
	}
	p := unitPack(t, rows)
	q := [][]float32{{0, 1}}

	serial, err := Similarities(context.Background(), p, q, 1)
	require.NoError(t, err)
	sharded, err := Similarities(context.Background(), p, q, 8)
	require.NoError(t, err)

	assert.Equal(t, serial, sharded)
	assert.Greater(t, sharded[n-1], sharded[0])
}

func TestRetrieverSelfSimilarity(t *testing.T) {
	e := embed.NewHashEmbedder(128)
	texts := []string{
		"The central bank raised interest rates by half a point on Tuesday.",
		"Heavy rain flooded several districts of the capital overnight.",
		"The national team won the final after a penalty shootout.",
	}
	vecs, err := embed.EncodeNormalized(context.Background(), e, texts)
	require.NoError(t, err)
	p := unitPack(t, vecs)

	r := NewRetriever(e, 2)
	q, err := r.EmbedQuery(context.Background(), []string{texts[1]})
	require.NoError(t, err)

	hits, sims, err := r.Search(context.Background(), p, q)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Len(t, sims, 3)
	assert.Equal(t, 1, hits[0].Index)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-5)
	assert.GreaterOrEqual(t, hits[0].Similarity, hits[1].Similarity)
}

func TestEmbedQueryErrors(t *testing.T) {
	r := NewRetriever(embed.NewHashEmbedder(16), 10)

	_, err := r.EmbedQuery(context.Background(), nil)
	assert.ErrorIs(t, err, model.ErrInsufficientText)

	// punctuation only embeds to a zero vector
	_, err = r.EmbedQuery(context.Background(), []string{"... !!!"})
	assert.ErrorIs(t, err, model.ErrModelFailure)
}

func TestIsArticleURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.yna.co.kr/view/AKR20240101000100001", true},
		{"https://example.com/news/politics/election-result", true},
		{"https://example.com/2024/05/17/some-story-slug", true},
		{"https://example.com/p/12345678901", true},
		{"https://example.com/privacy", false},
		{"https://example.com/newslist?page=2", false},
		{"https://example.com/tag/economy", false},
		{"https://example.com/about-us", false},
		{"https://example.com/contents/slug", false},
		// host names do not exclude
		{"https://mainichi.jp/articles/20240101/k00", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsArticleURL(tt.url), tt.url)
	}
}

func TestKeywordScore(t *testing.T) {
	assert.Zero(t, KeywordScore("서울시 교통 정책", nil))
	assert.Zero(t, KeywordScore("날씨 소식", []string{"서울시"}))

	// all matched and each keyword sees the other within ten runes
	assert.InDelta(t, 1.3*1.2, KeywordScore("서울시 교통 정책", []string{"서울시", "교통"}), 1e-9)

	// half matched, no context
	assert.InDelta(t, 0.5, KeywordScore("서울시 이야기", []string{"서울시", "지하철"}), 1e-9)

	// four of five matched, far apart
	far := "alpha " + pad(20) + "beta " + pad(20) + "gamma " + pad(20) + "delta"
	assert.InDelta(t, 0.8*1.2, KeywordScore(far, []string{"alpha", "beta", "gamma", "delta", "omega"}), 1e-9)
}

func pad(n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = 'x'
	}
	return string(b) + " "
}

func TestKeywordSearch(t *testing.T) {
	rows := [][]float32{{1, 0}, {0, 1}, {1, 0}, {0.6, 0.8}}
	p := unitPack(t, rows,
		"https://a.com/news/1",
		"https://a.com/privacy",
		"https://a.com/view/3",
		"https://a.com/article/4",
	)
	p.Records[0].Chunk = "서울시 지하철 요금"
	p.Records[1].Chunk = "서울시 지하철 요금 개인정보"
	p.Records[2].Chunk = "전혀 다른 내용"
	p.Records[3].Chunk = "서울시 소식"

	sims := []float64{0.1, 0.2, 0.3, 0.4}
	hits := KeywordSearch(p, []string{"서울시", "지하철", "요금"}, sims, 50)

	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Index)
	assert.Equal(t, 3, hits[1].Index)
	assert.True(t, hits[0].Fallback)
	assert.InDelta(t, 0.1, hits[0].Similarity, 1e-9)
	assert.Greater(t, hits[0].KeywordScore, hits[1].KeywordScore)

	assert.Len(t, KeywordSearch(p, []string{"서울시"}, sims, 1), 1)
	assert.Empty(t, KeywordSearch(p, nil, sims, 50))
}
