package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/panel-cli/internal/config"
	"github.com/sells-group/panel-cli/internal/ingest"
	"github.com/sells-group/panel-cli/internal/linker"
	"github.com/sells-group/panel-cli/internal/store"
)

func setTestConfig(t *testing.T) {
	t.Helper()
	prev := cfg
	cfg = &config.Config{}
	cfg.Link.Priority = []string{"LU", "LC", "LS"}
	cfg.Validation.SampleLimit = 20
	t.Cleanup(func() { cfg = prev })
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })
	return st
}

func newTestLinks(t *testing.T) *linker.Table {
	t.Helper()
	csv := `gvkey,lpermno,linktype,linkdt,linkenddt
001690,14593,LU,1990-01-01,E
`
	table, err := ingest.LoadLinks(strings.NewReader(csv), linker.Options{
		Priority: []string{"LU", "LC", "LS"},
	})
	require.NoError(t, err)
	return table
}

func TestServeHealth(t *testing.T) {
	setTestConfig(t)
	router := newRouter(newTestStore(t), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeValidate(t *testing.T) {
	setTestConfig(t)
	router := newRouter(newTestStore(t), nil)

	csvPath := filepath.Join(t.TempDir(), "panel.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,t,x\nA,2020Q1,1\nA,2020Q2,2\n"), 0o644))

	body := `{
		"name": "panel",
		"source": {"path": ` + jsonString(csvPath) + `},
		"entity_key": "id",
		"time_key": "t",
		"fields": [
			{"name": "id", "kind": "string"},
			{"name": "t", "kind": "period"},
			{"name": "x", "kind": "number"}
		]
	}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var diag struct {
		Balance  string `json:"balance"`
		Entities int    `json:"entities"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diag))
	assert.Equal(t, "balanced", diag.Balance)
	assert.Equal(t, 1, diag.Entities)
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestServeValidate_BadBody(t *testing.T) {
	setTestConfig(t)
	router := newRouter(newTestStore(t), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/validate", strings.NewReader(`{"name":""}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeLinkResolve(t *testing.T) {
	setTestConfig(t)
	router := newRouter(newTestStore(t), newTestLinks(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/links/resolve?id=001690&as_of=2020-06-30", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "14593", resp["target_id"])
}

func TestServeLinkResolve_NotFound(t *testing.T) {
	setTestConfig(t)
	router := newRouter(newTestStore(t), newTestLinks(t))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/links/resolve?id=999999", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeLinkResolve_NoTable(t *testing.T) {
	setTestConfig(t)
	router := newRouter(newTestStore(t), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/links/resolve?id=001690", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServeRuns(t *testing.T) {
	setTestConfig(t)
	st := newTestStore(t)

	_, err := st.CreateRun(context.Background(), store.RunSpec{
		Left: "fundamentals", Right: "prices", Mode: "via-link", Align: "exact",
	})
	require.NoError(t, err)

	router := newRouter(st, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "fundamentals", runs[0].Spec.Left)
}
