package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koral-tools/eltunt-cli/internal/config"
	"github.com/koral-tools/eltunt-cli/internal/model"
	"github.com/koral-tools/eltunt-cli/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg = &config.Config{Diff: config.DiffConfig{SortByName: true}}

	st, err := store.Open(t.Context(), store.Config{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "runs.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(t.Context()))

	srv := httptest.NewServer(newRouter(st))
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func postJSON(t *testing.T, url string, body any, v any) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestServerHealth(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]string
	status := getJSON(t, srv.URL+"/health", &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestServerDiffEndpoint(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()

	cols := []string{model.ColName, model.ColBirthDate}
	oldPath := filepath.Join(dir, "old.xlsx")
	newPath := filepath.Join(dir, "new.xlsx")
	writeSnapshotFile(t, oldPath, cols, []string{"Kovács Anna", "2001-02-03"})
	writeSnapshotFile(t, newPath, cols,
		[]string{"Kovács Anna", "2001-02-03"},
		[]string{"Nagy Éva", "1988-12-01"},
	)

	var body map[string]any
	status := postJSON(t, srv.URL+"/api/v1/diff", map[string]string{
		"old_path": oldPath,
		"new_path": newPath,
	}, &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["added"])
	assert.Equal(t, float64(0), body["removed"])
	assert.Equal(t, float64(0), body["modified"])
}

func TestServerDiffEndpointRejectsMissingPaths(t *testing.T) {
	srv := newTestServer(t)

	status := postJSON(t, srv.URL+"/api/v1/diff", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServerMergeEndpointRecordsRun(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()

	ledgerPath := filepath.Join(dir, "ledger.xlsx")
	incomingPath := filepath.Join(dir, "incoming.xlsx")
	outPath := filepath.Join(dir, "merged.xlsx")

	writeSnapshotFile(t, ledgerPath,
		[]string{model.ColName, model.ColBirthDate, "Eltűnés dátuma 2024-05-01"},
		[]string{"Kovács Anna", "2001-02-03", "2024-04-30"},
	)
	writeSnapshotFile(t, incomingPath,
		[]string{model.ColName, model.ColBirthDate, "Eltűnés dátuma 2024-06-01"},
		[]string{"Kovács Anna", "2001-02-03", "2024-05-30"},
	)

	var body map[string]any
	status := postJSON(t, srv.URL+"/api/v1/merge", map[string]string{
		"ledger_path":   ledgerPath,
		"incoming_path": incomingPath,
		"out_path":      outPath,
		"cycle_date":    "2024-06-01",
	}, &body)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, outPath, body["output_path"])
	require.Contains(t, body, "run_id")

	var runs []store.MergeRun
	status = getJSON(t, srv.URL+"/api/v1/runs/merge", &runs)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, runs, 1)
	assert.Equal(t, "2024-06-01", runs[0].CycleDate)

	var run store.MergeRun
	status = getJSON(t, srv.URL+"/api/v1/runs/merge/"+runs[0].ID, &run)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, runs[0].ID, run.ID)
}

func TestServerCollectEndpoint(t *testing.T) {
	police := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>Nincs találat</p></body></html>`))
	}))
	t.Cleanup(police.Close)

	srv := newTestServer(t)
	cfg.Collector.BaseURL = police.URL
	cfg.Collector.RequestsPerSecond = 1000
	cfg.Collector.Burst = 1000

	outPath := filepath.Join(t.TempDir(), "collected.xlsx")
	var body map[string]any
	status := postJSON(t, srv.URL+"/api/v1/collect", map[string]any{
		"filter":   map[string]string{"name": "Senki"},
		"out_path": outPath,
	}, &body)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, float64(0), body["persons"])
	assert.Equal(t, outPath, body["output_path"])

	var runs []store.CollectRun
	status = getJSON(t, srv.URL+"/api/v1/runs/collect", &runs)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, runs, 1)
	assert.Equal(t, "Senki", runs[0].Filter.Name)
}

func TestServerMergeRunNotFound(t *testing.T) {
	srv := newTestServer(t)

	status := getJSON(t, srv.URL+"/api/v1/runs/merge/nincs-ilyen", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
