// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-triage/internal/archive"
	"github.com/pdiddy/paper-triage/internal/fetch"
	"github.com/pdiddy/paper-triage/internal/pipeline"
	"github.com/pdiddy/paper-triage/internal/report"
	"github.com/pdiddy/paper-triage/internal/scorer"
	"github.com/pdiddy/paper-triage/internal/similarity"
	"github.com/pdiddy/paper-triage/pkg/types"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// --- fakes ---

type staticFetcher struct{ papers []types.Paper }

func (f staticFetcher) Fetch(context.Context, fetch.Request) ([]types.Paper, error) {
	return f.papers, nil
}

type titleScorer struct{ totals map[string]float64 }

func (s titleScorer) Score(_ context.Context, p types.Paper) (types.ScoreRecord, error) {
	return types.ScoreRecord{Relevance: 80, Novelty: 50, Total: s.totals[p.Title]}, nil
}

type echoGenerator struct{}

func (echoGenerator) Generate(_ context.Context, p types.Paper, _ string) (types.Report, error) {
	return types.Report{AISummary: "About " + p.Title, MainConclusion: "It works."}, nil
}

type constEmbedder struct{}

func (constEmbedder) Embed(context.Context, string) ([]float32, error) { return []float32{1, 1, 0}, nil }
func (constEmbedder) ModelName() string                                 { return "const" }
func (constEmbedder) Dimensions() int                                   { return 3 }

// --- harness ---

type testEnv struct {
	store *archive.Store
	files *report.Files
	orch  *pipeline.Orchestrator
	srv   *httptest.Server
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := archive.NewStore(types.ArchiveConfig{Path: filepath.Join(dir, "archive.db")})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	files := report.NewFiles(filepath.Join(dir, "reports"))
	sim := similarity.NewEngine(store, constEmbedder{})
	sc := titleScorer{totals: map[string]float64{"Paper A": 90, "Paper B": 80, "Paper C": 70}}

	orch := pipeline.New(pipeline.Deps{
		Store: store,
		Fetcher: staticFetcher{papers: []types.Paper{
			{ID: "doi:10.1/a", Title: "Paper A", Venue: "Nature"},
			{ID: "doi:10.1/b", Title: "Paper B", Venue: "Nature"},
			{ID: "doi:10.1/c", Title: "Paper C", Venue: "Nature"},
		}},
		NewScorer:    func(types.Settings) scorer.Scorer { return sc },
		NewGenerator: func(string) report.Generator { return echoGenerator{} },
		Similarity:   sim,
		Files:        files,
	}, pipeline.Options{
		Now:      func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) },
		Settings: types.Settings{MaxReports: 1, MinRelevance: 50, Language: "en"},
	})

	srv := httptest.NewServer(New(orch, store, sim, files, types.DefaultSettings()).Routes())
	t.Cleanup(srv.Close)
	return &testEnv{store: store, files: files, orch: orch, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	} else {
		out["_raw"] = string(raw)
	}
	return resp, out
}

func (e *testEnv) runOnce(t *testing.T) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/pipeline/run", `{"force": false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["started"])
	e.orch.Wait()
}

// --- tests ---

func TestHealthz(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestPipelineRunAndStatus(t *testing.T) {
	e := newEnv(t)
	e.runOnce(t)

	resp, body := e.do(t, http.MethodGet, "/api/pipeline/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "done", body["status"])
	assert.Equal(t, "2024-06-01", body["date"])
	assert.NotEmpty(t, body["logs"])

	resp, body = e.do(t, http.MethodPost, "/api/pipeline/run", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["started"])
	assert.Equal(t, "already_run_today", body["reason"])
	assert.Equal(t, "2024-06-01", body["date"])
}

func TestPipelineRun_InvalidJSON(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodPost, "/api/pipeline/run", `{"force":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	errBody := body["error"].(map[string]any)
	assert.Equal(t, "invalid_request", errBody["code"])
}

func TestRuns(t *testing.T) {
	e := newEnv(t)
	e.runOnce(t)

	resp, body := e.do(t, http.MethodGet, "/api/runs", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["_raw"], `"run_date":"2024-06-01"`)

	resp, body = e.do(t, http.MethodGet, "/api/runs/2024-06-01", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["deep_reads"], 1)
	assert.Len(t, body["also_notable"], 2)

	resp, _ = e.do(t, http.MethodGet, "/api/runs/2023-01-01", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(t, http.MethodDelete, "/api/runs/2024-06-01?purge_entries=true", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	deleted := body["deleted"].(map[string]any)
	assert.Equal(t, float64(1), deleted["runs"])
	assert.Equal(t, float64(3), deleted["entries"])

	n, err := e.store.CountEntries(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPromoteEndpoint(t *testing.T) {
	e := newEnv(t)
	e.runOnce(t)

	resp, body := e.do(t, http.MethodPost, "/api/papers/promote", `{"date":"2024-06-01","paper_id":"doi:10.1/b"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["promoted"])

	resp, body = e.do(t, http.MethodPost, "/api/papers/promote", `{"date":"2024-06-01","paper_id":"doi:10.1/b"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["promoted"])

	resp, _ = e.do(t, http.MethodPost, "/api/papers/promote", `{"date":"2024-06-01","paper_id":"doi:10.1/zzz"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/api/papers/promote", `{"date":"2024-06-01"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNetworkAndRelated(t *testing.T) {
	e := newEnv(t)
	e.runOnce(t)
	_, _ = e.do(t, http.MethodPost, "/api/papers/promote", `{"date":"2024-06-01","paper_id":"doi:10.1/b"}`)

	resp, body := e.do(t, http.MethodGet, "/api/network?threshold=0.5", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["nodes"], 2, "summarized only by default")
	edges := body["edges"].([]any)
	require.Len(t, edges, 1)
	assert.Equal(t, 1.0, edges[0].(map[string]any)["similarity"])

	resp, body = e.do(t, http.MethodGet, "/api/network?summarized_only=false&limit=10", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["nodes"], 3)

	for _, bad := range []string{"abc", "NaN", "1.5"} {
		resp, _ = e.do(t, http.MethodGet, "/api/network?threshold="+bad, "")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "threshold %s", bad)
	}

	resp, _ = e.do(t, http.MethodGet, "/api/network?order=random", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = e.do(t, http.MethodGet, "/api/papers/related?id=doi:10.1/a&k=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["related"], 1)

	resp, _ = e.do(t, http.MethodGet, "/api/papers/related", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/papers/related?id=doi:10.1/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportFiles(t *testing.T) {
	e := newEnv(t)
	e.runOnce(t)
	name := report.Filename("doi:10.1/a")

	resp, body := e.do(t, http.MethodGet, "/api/reports", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["_raw"], `{"date":"2024-06-01","files":1}`)

	resp, body = e.do(t, http.MethodGet, "/api/reports/2024-06-01", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	files := body["files"].([]any)
	require.Len(t, files, 1)
	assert.Equal(t, name, files[0].(map[string]any)["name"])

	resp, body = e.do(t, http.MethodGet, "/api/reports/2024-06-01/"+name, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["content"], "paper_id:")
	assert.Contains(t, body["content"], "doi:10.1/a")

	resp, _ = e.do(t, http.MethodPut, "/api/reports/2024-06-01/notes.md", `{"content":"# my notes"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	saved, err := e.files.Read("2024-06-01", "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "# my notes", string(saved))

	resp, _ = e.do(t, http.MethodGet, "/api/reports/2024-06-01/notes.txt", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, http.MethodGet, "/api/reports/2024-06-01/missing.md", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = e.do(t, http.MethodDelete, "/api/reports/2024-06-01/"+name, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "doi:10.1/a", body["paper_id"])

	entry, err := e.store.GetEntry(context.Background(), "doi:10.1/a")
	require.NoError(t, err)
	assert.False(t, entry.Summarized(), "deleting the file clears the stored report")

	resp, _ = e.do(t, http.MethodDelete, "/api/reports/2024-06-01", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/api/reports/2024-06-01", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteReportDate_ClearsStoredReports(t *testing.T) {
	e := newEnv(t)
	e.runOnce(t)

	entry, err := e.store.GetEntry(context.Background(), "doi:10.1/a")
	require.NoError(t, err)
	require.True(t, entry.Summarized())

	resp, body := e.do(t, http.MethodDelete, "/api/reports/2024-06-01", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"doi:10.1/a"}, body["paper_ids"])

	entry, err = e.store.GetEntry(context.Background(), "doi:10.1/a")
	require.NoError(t, err)
	assert.False(t, entry.Summarized())

	resp, body = e.do(t, http.MethodGet, "/api/network", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body["nodes"], "no summarized papers remain")
}

func TestSettingsAndCORSPreflight(t *testing.T) {
	e := newEnv(t)
	resp, body := e.do(t, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "en", body["language"])

	resp, _ = e.do(t, http.MethodOptions, "/api/pipeline/run", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
