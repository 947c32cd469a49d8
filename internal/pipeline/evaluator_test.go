package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/index"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/nli"
	"github.com/ppiankov/veriscope/internal/util"
)

const fareArticle = "서울시는 오늘 지하철 요금을 내년부터 인상한다고 공식 발표했다. " +
	"서울시 교통정책과는 운영 적자 누적으로 요금 조정이 불가피하다고 설명했다. " +
	"인상 폭은 기본요금 기준으로 150원이며 시내버스 요금도 함께 조정된다. " +
	"시민단체는 교통 요금 인상이 서민 부담을 키운다며 반대 입장을 밝혔다. " +
	"서울시는 환승 할인 제도를 그대로 유지해 시민 부담을 줄이겠다고 강조했다. " +
	"요금 인상안은 시의회 의견 청취 절차를 거쳐 다음 달 최종 확정될 예정이다. " +
	"교통 전문가들은 요금 인상과 함께 배차 간격 개선 대책이 필요하다고 지적했다."

const cookingArticle = "Slow roasted vegetables with rosemary make a simple weekend dinner. " +
	"Preheat the oven, toss the carrots and potatoes with olive oil, and bake until golden. " +
	"Serve with crusty bread and a green salad for a complete family meal."

var evalNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

// fixedClassifier returns the same probabilities for every pair
type fixedClassifier struct {
	probs nli.Probs
	calls int
}

func (f *fixedClassifier) Model() string { return "fixed" }

func (f *fixedClassifier) Classify(_ context.Context, pairs []nli.Pair) ([]nli.Probs, error) {
	f.calls++
	out := make([]nli.Probs, len(pairs))
	for i := range pairs {
		out[i] = f.probs
	}
	return out, nil
}

type recordingLog struct {
	results []model.Result
}

func (r *recordingLog) LogEvaluation(_ context.Context, url string, source model.QuerySource, res model.Result) (string, error) {
	r.results = append(r.results, res)
	return fmt.Sprintf("log-%d", len(r.results)), nil
}

func supportive() *fixedClassifier {
	return &fixedClassifier{probs: nli.Probs{Contradiction: 0.05, Neutral: 0.15, Entailment: 0.8}}
}

func testStore(t *testing.T, e embed.Embedder, records ...model.DocRecord) *index.Store {
	t.Helper()
	if len(records) == 0 {
		return index.NewStore(nil, e)
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = util.CleanText(r.Chunk)
	}
	vecs, err := embed.EncodeNormalized(context.Background(), e, texts)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	pack, err := index.NewPack(e.Model(), vecs, records)
	if err != nil {
		t.Fatalf("new pack: %v", err)
	}
	return index.NewStore(pack, e)
}

func record(url, chunk string) model.DocRecord {
	return model.DocRecord{URL: url, Title: "기사", Chunk: chunk, Domain: util.DomainOf(url), FromSeed: true}
}

func newEvaluator(t *testing.T, cfg *config.Config, store *index.Store, e embed.Embedder, clf nli.Classifier) *Evaluator {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
		cfg.Index.Grow = false
	}
	ev, err := NewEvaluator(cfg, Deps{
		Embedder:   e,
		Classifier: clf,
		Index:      store,
		Fetcher:    NewFetcher(FetcherOptions{Timeout: 5 * time.Second, UserAgent: "test-agent"}),
		Clock:      func() time.Time { return evalNow },
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}
	return ev
}

func articleServer(t *testing.T, text string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		var paras strings.Builder
		for _, s := range strings.SplitAfter(text, ". ") {
			fmt.Fprintf(&paras, "<p>%s</p>", s)
		}
		_, _ = fmt.Fprintf(w, `<html><head><title>요금 인상</title></head><body><article>%s</article></body></html>`, paras.String())
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewEvaluator_RequiresServices(t *testing.T) {
	e := embed.NewHashEmbedder(512)
	if _, err := NewEvaluator(nil, Deps{Classifier: supportive(), Index: index.NewStore(nil, e)}); err == nil {
		t.Error("Expected error without embedder")
	}
	if _, err := NewEvaluator(nil, Deps{Embedder: e, Index: index.NewStore(nil, e)}); err == nil {
		t.Error("Expected error without classifier")
	}
	if _, err := NewEvaluator(nil, Deps{Embedder: e, Classifier: supportive()}); err == nil {
		t.Error("Expected error without index")
	}
}

func TestEvaluate_TooShort(t *testing.T) {
	e := embed.NewHashEmbedder(512)
	clf := supportive()
	ev := newEvaluator(t, nil, testStore(t, e, record("https://www.yna.co.kr/view/AKR1", fareArticle)), e, clf)

	res := ev.Evaluate(context.Background(), Query{Text: "지하철 요금 인상"})
	if res.Success || res.Failure == nil {
		t.Fatalf("Expected failure, got %+v", res)
	}
	if res.Failure.Kind != model.KindExtractionFailure {
		t.Errorf("Expected extraction failure, got %s", res.Failure.Kind)
	}
	if clf.calls != 0 {
		t.Errorf("Classifier should not run for rejected input, got %d calls", clf.calls)
	}
}

func TestEvaluate_ImageSourceUsesLowerMinimum(t *testing.T) {
	e := embed.NewHashEmbedder(512)
	ev := newEvaluator(t, nil, testStore(t, e, record("https://www.yna.co.kr/view/AKR1", fareArticle)), e, supportive())

	res := ev.Evaluate(context.Background(), Query{Text: "지하철 요금 인상 발표", Source: model.SourceImage})
	if !res.OK() {
		t.Fatalf("Expected success for short image text, got %+v", res.Failure)
	}
	if res.Report.Query.Source != model.SourceImage {
		t.Errorf("Expected image source, got %s", res.Report.Query.Source)
	}
}

func TestEvaluate_NoEvidence(t *testing.T) {
	e := embed.NewHashEmbedder(1024)
	store := testStore(t, e,
		record("https://food.example.com/recipes/2024/roast", cookingArticle),
		record("https://food.example.com/recipes/2024/salad", cookingArticle+" Dress the salad lightly."),
	)
	ev := newEvaluator(t, nil, store, e, supportive())

	res := ev.Evaluate(context.Background(), Query{Text: fareArticle})
	if !res.OK() {
		t.Fatalf("Expected success, got %+v", res.Failure)
	}
	rep := res.Report
	if !rep.NoEvidence {
		t.Error("Expected NoEvidence")
	}
	if rep.Evidence == nil || len(rep.Evidence) != 0 {
		t.Errorf("Expected empty non-nil evidence, got %v", rep.Evidence)
	}
	if rep.Score.Percent >= 35 {
		t.Errorf("Expected score below 35, got %d", rep.Score.Percent)
	}
	if rep.Score.Level != model.BandVeryLow {
		t.Errorf("Expected very low band, got %s", rep.Score.Level)
	}
}

func TestEvaluate_FindsEvidence(t *testing.T) {
	e := embed.NewHashEmbedder(1024)
	store := testStore(t, e,
		record("https://www.yna.co.kr/view/AKR20261016000100", fareArticle),
		record("https://food.example.com/recipes/2024/roast", cookingArticle),
	)
	ev := newEvaluator(t, nil, store, e, supportive())

	res := ev.Evaluate(context.Background(), Query{Text: fareArticle})
	if !res.OK() {
		t.Fatalf("Expected success, got %+v", res.Failure)
	}
	rep := res.Report
	if rep.NoEvidence || len(rep.Evidence) != 1 {
		t.Fatalf("Expected one evidence item, got %+v", rep.Evidence)
	}
	ev0 := rep.Evidence[0]
	if ev0.URL != "https://www.yna.co.kr/view/AKR20261016000100" {
		t.Errorf("Unexpected evidence URL: %s", ev0.URL)
	}
	if ev0.Rank != 1 || ev0.Support != 0.8 {
		t.Errorf("Unexpected evidence: %+v", ev0)
	}
	if rep.ID == "" || !rep.EvaluatedAt.Equal(evalNow) {
		t.Errorf("Expected id and clock time, got %q %v", rep.ID, rep.EvaluatedAt)
	}
	if rep.Index.Model != "hash-bow" || rep.Index.Rows != 2 {
		t.Errorf("Unexpected index info: %+v", rep.Index)
	}
	if rep.Score.Percent <= 0 {
		t.Errorf("Expected positive score, got %d", rep.Score.Percent)
	}
}

func TestEvaluate_URLExcludesSelfAndAppends(t *testing.T) {
	server := articleServer(t, fareArticle)
	self := server.URL + "/news/1"

	e := embed.NewHashEmbedder(1024)
	store := testStore(t, e,
		record(self, fareArticle),
		record("https://www.yna.co.kr/view/AKR20261016000100", fareArticle),
	)
	cfg := config.Default()
	cfg.Index.Grow = true
	ev := newEvaluator(t, cfg, store, e, supportive())

	res := ev.EvaluateURL(context.Background(), self)
	if !res.OK() {
		t.Fatalf("Expected success, got %+v", res.Failure)
	}
	for _, item := range res.Report.Evidence {
		if item.URL == self {
			t.Errorf("Query article returned as its own evidence")
		}
	}
	if len(res.Report.Evidence) != 1 {
		t.Errorf("Expected one evidence item, got %d", len(res.Report.Evidence))
	}
	if res.Report.Appended {
		t.Error("Already indexed article must not be appended again")
	}
	if res.Report.Query.Title != "요금 인상" {
		t.Errorf("Expected extracted title, got %q", res.Report.Query.Title)
	}
}

func TestEvaluate_URLGrowsIndex(t *testing.T) {
	server := articleServer(t, fareArticle)
	e := embed.NewHashEmbedder(1024)
	store := testStore(t, e, record("https://www.yna.co.kr/view/AKR20261016000100", fareArticle))
	before := store.Snapshot().Rows()

	cfg := config.Default()
	cfg.Index.Grow = true
	ev := newEvaluator(t, cfg, store, e, supportive())

	res := ev.EvaluateURL(context.Background(), server.URL+"/news/2")
	if !res.OK() {
		t.Fatalf("Expected success, got %+v", res.Failure)
	}
	if !res.Report.Appended {
		t.Fatal("Expected article appended to the index")
	}
	after := store.Snapshot()
	if after.Rows() <= before {
		t.Errorf("Expected more rows after append, got %d -> %d", before, after.Rows())
	}
	if !after.HasURL(server.URL + "/news/2") {
		t.Error("Appended URL not found in index")
	}
	if res.Report.Index.Rows != before {
		t.Errorf("Report should describe the snapshot used, got %d rows", res.Report.Index.Rows)
	}
}

func TestEvaluate_FetchFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := embed.NewHashEmbedder(512)
	ev := newEvaluator(t, nil, testStore(t, e, record("https://www.yna.co.kr/view/AKR1", fareArticle)), e, supportive())

	res := ev.EvaluateURL(context.Background(), server.URL+"/missing")
	if res.Success || res.Failure.Kind != model.KindExtractionFailure {
		t.Errorf("Expected extraction failure, got %+v", res)
	}
}

func TestEvaluate_Failures(t *testing.T) {
	e := embed.NewHashEmbedder(512)
	full := testStore(t, e, record("https://www.yna.co.kr/view/AKR1", fareArticle))

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	otherModel := func() *index.Store {
		vecs, _ := embed.EncodeNormalized(context.Background(), e, []string{fareArticle})
		pack, err := index.NewPack("another-model", vecs, []model.DocRecord{record("https://www.yna.co.kr/view/AKR1", fareArticle)})
		if err != nil {
			t.Fatalf("new pack: %v", err)
		}
		return index.NewStore(pack, e)
	}()

	tests := []struct {
		name  string
		ctx   context.Context
		store *index.Store
		query Query
		want  model.ErrorKind
	}{
		{"empty query", context.Background(), full, Query{}, model.KindInvalidInput},
		{"url and text", context.Background(), full, Query{URL: "https://a.kr/1", Text: fareArticle}, model.KindInvalidInput},
		{"bad scheme", context.Background(), full, Query{URL: "ftp://a.kr/1"}, model.KindInvalidInput},
		{"empty corpus", context.Background(), index.NewStore(nil, e), Query{Text: fareArticle}, model.KindEmptyCorpus},
		{"model mismatch", context.Background(), otherModel, Query{Text: fareArticle}, model.KindModelFailure},
		{"canceled", canceled, full, Query{Text: fareArticle}, model.KindCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := newEvaluator(t, nil, tt.store, e, supportive())
			res := ev.Evaluate(tt.ctx, tt.query)
			if res.Success || res.Failure == nil {
				t.Fatalf("Expected failure, got success")
			}
			if res.Failure.Kind != tt.want {
				t.Errorf("Expected %s, got %s (%s)", tt.want, res.Failure.Kind, res.Failure.Message)
			}
		})
	}
}

func TestEvaluate_DropsUnclassifiablePairs(t *testing.T) {
	e := embed.NewHashEmbedder(1024)
	store := testStore(t, e, record("https://www.yna.co.kr/view/AKR20261016000100", fareArticle))
	// probabilities that do not sum to one are rejected by the reranker
	clf := &fixedClassifier{probs: nli.Probs{Contradiction: 0.9, Neutral: 0.9, Entailment: 0.9}}
	ev := newEvaluator(t, nil, store, e, clf)

	res := ev.Evaluate(context.Background(), Query{Text: fareArticle})
	if !res.OK() {
		t.Fatalf("Expected success, got %+v", res.Failure)
	}
	if res.Report.Retrieval.Dropped != 1 || !res.Report.NoEvidence {
		t.Errorf("Expected the only candidate dropped, got %+v", res.Report.Retrieval)
	}
}

func TestEvaluate_LogsWhenEnabled(t *testing.T) {
	e := embed.NewHashEmbedder(512)
	cfg := config.Default()
	cfg.Index.Grow = false
	cfg.Store.LogEvaluations = true
	log := &recordingLog{}

	ev, err := NewEvaluator(cfg, Deps{
		Embedder:   e,
		Classifier: supportive(),
		Index:      testStore(t, e, record("https://www.yna.co.kr/view/AKR1", fareArticle)),
		Log:        log,
	})
	if err != nil {
		t.Fatalf("NewEvaluator: %v", err)
	}

	ev.Evaluate(context.Background(), Query{Text: fareArticle})
	ev.Evaluate(context.Background(), Query{Text: "짧다"})
	if len(log.results) != 2 {
		t.Fatalf("Expected 2 logged results, got %d", len(log.results))
	}
	if !log.results[0].Success || log.results[1].Success {
		t.Errorf("Unexpected logged outcomes: %v, %v", log.results[0].Success, log.results[1].Success)
	}
}

// pairRecorder keeps the pairs it was asked to classify
type pairRecorder struct {
	fixedClassifier
	pairs []nli.Pair
}

func (p *pairRecorder) Classify(ctx context.Context, pairs []nli.Pair) ([]nli.Probs, error) {
	p.pairs = append(p.pairs, pairs...)
	return p.fixedClassifier.Classify(ctx, pairs)
}

const fareArticleZH = "据报道北京市政府今天正式宣布明年起上调地铁票价以弥补运营亏损。 " +
	"据介绍市交通委员会表示票价调整方案已经过多轮专家论证和公开听证。 " +
	"按照新方案下起步价将上调一元并同步调整公交车的换乘优惠政策。 " +
	"不过部分市民代表认为涨价会明显增加通勤人员的日常出行成本负担。 " +
	"对此市政府承诺继续保留老年人和学生群体的免费乘车与半价优惠。 " +
	"据悉调整方案将在下月提交市人大常委会审议后最终确定实施时间。 " +
	"另外交通专家建议在调价的同时缩短高峰时段的列车发车间隔时间。 " +
	"有关部门近期还将公布地铁运营成本明细以回应社会公众的普遍关切。"

func TestEvaluate_IdeographicSentenceBoundaries(t *testing.T) {
	e := embed.NewHashEmbedder(1024)
	store := testStore(t, e, record("https://www.xinhuanet.com/politics/2026-10/16/c_1.htm", fareArticleZH))
	clf := &pairRecorder{fixedClassifier: *supportive()}
	ev := newEvaluator(t, nil, store, e, clf)

	res := ev.Evaluate(context.Background(), Query{Text: fareArticleZH})
	if !res.OK() {
		t.Fatalf("Expected success, got %+v", res.Failure)
	}
	// eight sentences in windows of four, stepping by three
	if res.Report.Query.Chunks != 2 {
		t.Errorf("Expected 2 query chunks, got %d", res.Report.Query.Chunks)
	}
	if len(clf.pairs) == 0 {
		t.Fatal("Expected the indexed article to be classified")
	}
	if got := strings.Count(clf.pairs[0].Hypothesis, "。"); got != 3 {
		t.Errorf("Expected a three sentence hypothesis, got %q", clf.pairs[0].Hypothesis)
	}
}

func TestEvaluate_PatternsSeePercentSigns(t *testing.T) {
	e := embed.NewHashEmbedder(1024)
	store := testStore(t, e, record("https://www.yna.co.kr/view/AKR20261016000100", fareArticle))
	ev := newEvaluator(t, nil, store, e, supportive())

	text := fareArticle + " 코로나 예방 효과가 100% 즉시 나타난다는 주장도 나왔다."
	res := ev.Evaluate(context.Background(), Query{Text: text})
	if !res.OK() {
		t.Fatalf("Expected success, got %+v", res.Failure)
	}
	f := res.Report.Score.Factors
	if f.GlobalPenalty != 0.5 || f.QualityPenalty != 0.8 {
		t.Errorf("Expected the 100%% combos to apply full penalties, got %+v", f)
	}
	found := false
	for _, sig := range res.Report.Score.Signals {
		if sig.Type == model.SignalFakePattern {
			found = true
		}
	}
	if !found {
		t.Error("Expected a fake pattern signal")
	}
}

func TestEvaluate_QueryChunksUseAppendMinimum(t *testing.T) {
	e := embed.NewHashEmbedder(1024)
	store := testStore(t, e, record("https://www.yna.co.kr/view/AKR20261016000100", fareArticle))
	ev := newEvaluator(t, nil, store, e, supportive())

	res := ev.Evaluate(context.Background(), Query{Text: fareArticle})
	if !res.OK() {
		t.Fatalf("Expected success, got %+v", res.Failure)
	}
	// both four-sentence windows are 150-170 characters
	if res.Report.Query.Chunks != 2 {
		t.Errorf("Expected 2 query chunks, got %d", res.Report.Query.Chunks)
	}
}
