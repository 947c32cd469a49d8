package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/veriscope/internal/config"
	"github.com/ppiankov/veriscope/internal/embed"
	"github.com/ppiankov/veriscope/internal/index"
	"github.com/ppiankov/veriscope/internal/model"
	"github.com/ppiankov/veriscope/internal/nli"
	"github.com/ppiankov/veriscope/internal/pipeline"
	"github.com/ppiankov/veriscope/internal/util"
)

const fareArticle = "서울시는 오늘 지하철 요금을 내년부터 인상한다고 공식 발표했다. " +
	"서울시 교통정책과는 운영 적자 누적으로 요금 조정이 불가피하다고 설명했다. " +
	"인상 폭은 기본요금 기준으로 150원이며 시내버스 요금도 함께 조정된다. " +
	"시민단체는 교통 요금 인상이 서민 부담을 키운다며 반대 입장을 밝혔다. " +
	"서울시는 환승 할인 제도를 그대로 유지해 시민 부담을 줄이겠다고 강조했다. " +
	"요금 인상안은 시의회 의견 청취 절차를 거쳐 다음 달 최종 확정될 예정이다. " +
	"교통 전문가들은 요금 인상과 함께 배차 간격 개선 대책이 필요하다고 지적했다."

type supportiveClassifier struct{}

func (supportiveClassifier) Model() string { return "fixed" }

func (supportiveClassifier) Classify(_ context.Context, pairs []nli.Pair) ([]nli.Probs, error) {
	out := make([]nli.Probs, len(pairs))
	for i := range pairs {
		out[i] = nli.Probs{Contradiction: 0.05, Neutral: 0.15, Entailment: 0.8}
	}
	return out, nil
}

func newTestServer(t *testing.T, withCorpus bool) *Server {
	t.Helper()
	e := embed.NewHashEmbedder(1024)

	var pack *index.Pack
	if withCorpus {
		rec := model.DocRecord{
			URL:      "https://www.yna.co.kr/view/AKR20261016000100",
			Title:    "요금 인상",
			Chunk:    fareArticle,
			Domain:   "www.yna.co.kr",
			FromSeed: true,
		}
		vecs, err := embed.EncodeNormalized(context.Background(), e, []string{util.CleanText(fareArticle)})
		require.NoError(t, err)
		pack, err = index.NewPack(e.Model(), vecs, []model.DocRecord{rec})
		require.NoError(t, err)
	}

	cfg := config.Default()
	cfg.Index.Grow = false
	ev, err := pipeline.NewEvaluator(cfg, pipeline.Deps{
		Embedder:   e,
		Classifier: supportiveClassifier{},
		Index:      index.NewStore(pack, e),
		Clock:      func() time.Time { return time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return New(config.ServerConfig{Host: "127.0.0.1", Port: 8088, TimeoutSecs: 30}, ev)
}

func post(t *testing.T, s *Server, body []byte) (*httptest.ResponseRecorder, model.Result) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/evaluate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	var res model.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res), rr.Body.String())
	return rr, res
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["rows"])
}

func TestIndexEndpoint(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/index?top=5", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var stats index.Stats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, "hash-bow", stats.Model)
	assert.Equal(t, 1, stats.Rows)
	assert.Equal(t, 1, stats.SeedRows)
	require.Len(t, stats.TopDomains, 1)
	assert.Equal(t, "www.yna.co.kr", stats.TopDomains[0].Domain)
}

func TestIndexEndpoint_BadTop(t *testing.T) {
	s := newTestServer(t, true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/index?top=many", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEvaluateEndpoint_Text(t *testing.T) {
	s := newTestServer(t, true)
	body, _ := json.Marshal(EvaluateRequest{Text: fareArticle})

	rr, res := post(t, s, body)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.True(t, res.OK())
	assert.Equal(t, model.SourceText, res.Report.Query.Source)
	require.Len(t, res.Report.Evidence, 1)
	assert.Equal(t, "https://www.yna.co.kr/view/AKR20261016000100", res.Report.Evidence[0].URL)
}

func TestEvaluateEndpoint_Failures(t *testing.T) {
	tests := []struct {
		name       string
		corpus     bool
		body       string
		wantStatus int
		wantKind   model.ErrorKind
	}{
		{"invalid json", true, "not json", http.StatusBadRequest, model.KindInvalidInput},
		{"url and text", true, `{"url":"https://a.kr/1","text":"본문"}`, http.StatusBadRequest, model.KindInvalidInput},
		{"unknown source", true, `{"text":"본문","source":"video"}`, http.StatusBadRequest, model.KindInvalidInput},
		{"too short", true, `{"text":"짧은 기사"}`, http.StatusUnprocessableEntity, model.KindExtractionFailure},
		{"empty corpus", false, `{"text":"` + fareArticle + `"}`, http.StatusServiceUnavailable, model.KindEmptyCorpus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.corpus)
			rr, res := post(t, s, []byte(tt.body))
			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.False(t, res.Success)
			require.NotNil(t, res.Failure)
			assert.Equal(t, tt.wantKind, res.Failure.Kind)
		})
	}
}

func TestEvaluateEndpoint_ImageSourceLowersMinimum(t *testing.T) {
	s := newTestServer(t, true)
	body, _ := json.Marshal(EvaluateRequest{Text: "지하철 요금 인상 발표", Source: "image"})

	rr, res := post(t, s, body)
	assert.Equal(t, http.StatusOK, rr.Code)
	require.True(t, res.OK())
	assert.Equal(t, model.SourceImage, res.Report.Query.Source)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusFor(model.Succeeded(&model.Report{})))
	assert.Equal(t, http.StatusBadGateway, statusFor(model.Failed(model.KindModelFailure, "down")))
	assert.Equal(t, http.StatusRequestTimeout, statusFor(model.Failed(model.KindCanceled, "canceled")))
	assert.Equal(t, "127.0.0.1:8088", newTestServer(t, false).Addr())
}
