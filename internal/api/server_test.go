package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knowledge-engine/questionbank/internal/api"
	"github.com/knowledge-engine/questionbank/internal/config"
	"github.com/knowledge-engine/questionbank/internal/engine"
	"github.com/knowledge-engine/questionbank/internal/knowledge"
)

const corpusJSON = `{"questions": [
	{"id": "q1", "stem": "solve 2x+3=7 for x", "type": "calculation", "difficulty": 2, "subject": "math"},
	{"id": "q2", "stem": "solve 3x-1=8 for x", "type": "计算题", "difficulty": 2, "subject": "Math"},
	{"id": "q3", "stem": "name the capital of France", "type": "fill_blank", "difficulty": 1, "subject": "geography"}
]}`

func setupServer(t *testing.T) *api.Server {
	t.Helper()
	cfg := config.Load()
	cfg.Classifier.KnowledgeTablePath = ""
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	eng, err := engine.NewEngine(cfg, logger.WithField("test", "api"), nil)
	require.NoError(t, err)
	return api.NewServer(eng, cfg.Server, logger.WithField("test", "api"))
}

func do(server *api.Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	server.Router.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	server := setupServer(t)
	rr := do(server, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestHandleIndex(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodPost, "/api/v1/index", corpusJSON)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp api.IndexResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Indexed)
	assert.NotEmpty(t, resp.Generation)
}

func TestHandleIndex_Errors(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodPost, "/api/v1/index", `{"questions": []}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(server, http.MethodPost, "/api/v1/index", `not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(server, http.MethodGet, "/api/v1/index", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHandleSimilar(t *testing.T) {
	server := setupServer(t)
	indexed := do(server, http.MethodPost, "/api/v1/index", corpusJSON)
	require.Equal(t, http.StatusOK, indexed.Code)
	var built api.IndexResponse
	require.NoError(t, json.Unmarshal(indexed.Body.Bytes(), &built))

	body := `{"question": {"stem": "solve 5x+2=12 for x", "type": "calculation", "difficulty": 2, "subject": "math"}, "top_k": 2, "threshold": 0.3}`
	rr := do(server, http.MethodPost, "/api/v1/similar", body)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp api.SimilarResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, built.Generation, resp.Generation)
	var got []string
	for _, r := range resp.Results {
		got = append(got, r.Question.ID)
	}
	assert.ElementsMatch(t, []string{"q1", "q2"}, got)

	rr = do(server, http.MethodPost, "/api/v1/similar", `{"id": "q1"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "q2", resp.Results[0].Question.ID)
}

func TestHandleSimilar_Errors(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodPost, "/api/v1/similar", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(server, http.MethodPost, "/api/v1/similar", `{"question": {"stem": "x"}, "top_k": 0}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// unbuilt index answers with an empty list
	rr = do(server, http.MethodPost, "/api/v1/similar", `{"question": {"stem": "x"}}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp api.SimilarResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
	assert.NotNil(t, resp.Results)
}

func TestHandleClassify(t *testing.T) {
	server := setupServer(t)

	rr := do(server, http.MethodPost, "/api/v1/classify", `{"text": "一元一次方程 2x+3=7", "top_k": 3}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp api.ClassifyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, knowledge.RegimeSimple, resp.Regime)
	assert.Equal(t, knowledge.StrategyKeyword, resp.Strategy)
	require.NotEmpty(t, resp.Matches)
	assert.Equal(t, "linear_equation", resp.Matches[0].PointID)

	rr = do(server, http.MethodPost, "/api/v1/classify", `{"text": "2x+3=7", "top_k": -1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleStatus(t *testing.T) {
	server := setupServer(t)
	require.Equal(t, http.StatusOK, do(server, http.MethodPost, "/api/v1/index", corpusJSON).Code)

	rr := do(server, http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp engine.EngineStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Indexed)
	assert.NotEmpty(t, resp.Generation)
	assert.Greater(t, resp.KnowledgePoints, 0)
}
