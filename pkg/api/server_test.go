package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soilsense/soilsense/pkg/advisor"
	"github.com/soilsense/soilsense/pkg/config"
	"github.com/soilsense/soilsense/pkg/models"
	"github.com/soilsense/soilsense/pkg/monitor"
	"github.com/soilsense/soilsense/pkg/retention"
	"github.com/soilsense/soilsense/pkg/store"
	"github.com/soilsense/soilsense/pkg/suggest"
)

type testEnv struct {
	server *Server
	store  *store.SQLStore
	ret    *retention.Manager
	mon    *monitor.Monitor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.Open("sqlite", filepath.Join(t.TempDir(), "api_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.Default()
	mon := monitor.New(cfg.Monitor.MaxEvents, models.ModelRuleBased)
	svc := suggest.New(st, advisor.NewRules(), mon, cfg.Cache, nil)
	ret, err := retention.New(st, mon, cfg.Cleanup.CleanupConfig, nil, models.ModelRuleBased)
	require.NoError(t, err)
	t.Cleanup(ret.Stop)

	return &testEnv{
		server: New(":0", svc, ret, mon, nil),
		store:  st,
		ret:    ret,
		mon:    mon,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func suggestionBody(id string) map[string]any {
	return map[string]any{
		"reading": map[string]any{
			"id":         id,
			"moisture":   15,
			"phosphorus": 2,
			"timestamp":  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		"rodId":     "rod-1",
		"plantType": "Tomato",
	}
}

func TestSuggestionsCachedOnSecondCall(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/suggestions", suggestionBody("r1"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode(t, w)
	assert.Equal(t, false, first["cached"])
	assert.Equal(t, "rod-1", first["rodId"])
	assert.Equal(t, "Tomato", first["plantType"])
	watering := first["suggestions"].(map[string]any)["watering"].(map[string]any)
	assert.Equal(t, "now", watering["recommendation"])

	w = env.do(t, http.MethodPost, "/api/suggestions", suggestionBody("r1"))
	require.Equal(t, http.StatusOK, w.Code)
	second := decode(t, w)
	assert.Equal(t, true, second["cached"])
	assert.Equal(t, first["suggestions"], second["suggestions"])
}

func TestSuggestionsValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/suggestions", map[string]any{"reading": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	req := httptest.NewRequest(http.MethodPost, "/api/suggestions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCleanupStatus(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/suggestions", suggestionBody("r1"))

	w := env.do(t, http.MethodGet, "/api/cache-cleanup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])

	data := body["data"].(map[string]any)
	assert.Equal(t, false, data["isAutoCleanupRunning"])
	assert.Equal(t, 24.0, data["config"].(map[string]any)["suggestionTtlHours"])
	stats := data["cacheStatistics"].(map[string]any)
	assert.Equal(t, 1.0, stats["totalSuggestions"])
}

func TestCleanupActions(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{"action": "start-auto"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.ret.Running())

	w = env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{
		"action": "configure",
		"config": map[string]any{"suggestionTtlHours": 48},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 48.0, env.ret.Config().SuggestionTTLHours)
	assert.True(t, env.ret.Running())

	w = env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{"action": "stop-auto"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, env.ret.Running())

	w = env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{"action": "cleanup"})
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)["data"].(map[string]any)["statistics"].(map[string]any)
	assert.Equal(t, 0.0, stats["totalDeleted"])
}

func TestCleanupRodAction(t *testing.T) {
	env := newTestEnv(t)
	for _, id := range []string{"r1", "r2", "r3"} {
		require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/suggestions", suggestionBody(id)).Code)
	}

	w := env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{"action": "cleanup-rod"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{
		"action":    "cleanup-rod",
		"rodId":     "rod-1",
		"keepCount": 1,
	})
	require.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]any)
	assert.Equal(t, 2.0, data["suggestionsDeleted"])
}

func TestCleanupActionErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Len(t, body["validActions"], 5)

	w = env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{"action": "explode"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unknown action: explode", decode(t, w)["error"])

	w = env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{"action": "configure"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodPost, "/api/cache-cleanup", map[string]any{
		"action": "configure",
		"config": map[string]any{"cleanupIntervalHours": 0},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 6.0, env.ret.Config().CleanupIntervalHours)
}

func TestClearAll(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.store.Insert(context.Background(), models.CacheEntryDraft{
		ReadingID: "old",
		RodID:     "rod-1",
		PlantType: "Tomato",
		Model:     models.ModelRuleBased,
		Payload:   json.RawMessage(`{}`),
		CreatedAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	before := env.ret.Config()

	w := env.do(t, http.MethodDelete, "/api/cache-cleanup", map[string]any{"confirm": "yes"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodDelete, "/api/cache-cleanup", map[string]any{"confirm": ClearAllConfirmation})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "clear-all", body["action"])

	n, err := env.store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, before, env.ret.Config())
}

func TestCacheMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/suggestions", suggestionBody("r1"))
	env.do(t, http.MethodPost, "/api/suggestions", suggestionBody("r1"))

	w := env.do(t, http.MethodGet, "/api/cache-metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	metrics := body["metrics"].(map[string]any)
	assert.Equal(t, 2.0, metrics["totalRequests"])
	assert.Equal(t, 0.5, metrics["hitRate"])
	events := body["recentEvents"].([]any)
	require.Len(t, events, 2)
	assert.Equal(t, "cache_hit", events[0].(map[string]any)["type"])

	w = env.do(t, http.MethodGet, "/api/cache-metrics/rods/rod-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rod := decode(t, w)
	assert.Equal(t, 1.0, rod["hits"])
	assert.Equal(t, 1.0, rod["misses"])

	w = env.do(t, http.MethodGet, "/api/cache-metrics?format=report", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, w.Body.String(), "Cache Hit Rate:   50.0%")

	w = env.do(t, http.MethodDelete, "/api/cache-metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, env.mon.GetMetrics().TotalRequests)
}

func TestPrometheusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/suggestions", suggestionBody("r1"))

	w := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := w.Body.String()
	assert.Contains(t, out, `soilsense_cache_requests_total{result="miss"} 1`)
	assert.Contains(t, out, `soilsense_http_requests_total{method="POST",route="/api/suggestions",status="200"} 1`)
}

func TestListenAndServeShutsDown(t *testing.T) {
	env := newTestEnv(t)
	env.server.listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- env.server.ListenAndServe(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
