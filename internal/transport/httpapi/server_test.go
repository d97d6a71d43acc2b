package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodgate-dl/floodgate/internal/engine"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	mgr, err := engine.NewManager(engine.DefaultSettings(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(mgr.Shutdown)
	return New(mgr, zerolog.Nop())
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestDoDownloadRejectsMissingDest(t *testing.T) {
	s := testServer(t)
	rec := doRequest(s, http.MethodPost, "/api/downloads", map[string]string{"url": "http://example.com/f"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDoDownloadQueuesJob(t *testing.T) {
	s := testServer(t)
	dest := filepath.Join(t.TempDir(), "f.bin")
	rec := doRequest(s, http.MethodPost, "/api/downloads", map[string]string{"url": "http://example.com/f", "dest": dest})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.ID)

	_, err := engine.ParseJobID(resp.ID)
	assert.NoError(t, err)
}

func TestDownloadCommandsReportNotFound(t *testing.T) {
	s := testServer(t)
	id := engine.NewJobID().String()

	for _, path := range []string{
		"/api/downloads/" + id + "/pause",
		"/api/downloads/" + id + "/resume",
		"/api/downloads/" + id + "/cancel",
	} {
		rec := doRequest(s, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}

	rec := doRequest(s, http.MethodGet, "/api/downloads/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDownloadDetailsMalformedID(t *testing.T) {
	s := testServer(t)
	rec := doRequest(s, http.MethodGet, "/api/downloads/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryURL(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
	}))
	defer origin.Close()

	s := testServer(t)
	rec := doRequest(s, http.MethodPost, "/api/query-url", map[string]string{"url": origin.URL + "/file.bin"})
	require.Equal(t, http.StatusOK, rec.Code)

	var out UrlQueryOutput
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, out.AcceptRange)
	require.NotNil(t, out.TotalSize)
	assert.Equal(t, int64(42), *out.TotalSize)
	assert.Empty(t, out.Error)
}

func TestUpdateSettingsPartialPatch(t *testing.T) {
	s := testServer(t)
	rec := doRequest(s, http.MethodPatch, "/api/settings", map[string]any{"concurrency_limit": 7})
	require.Equal(t, http.StatusOK, rec.Code)

	updated := s.manager.Settings()
	assert.Equal(t, 7, updated.ConcurrencyLimit)
	assert.Equal(t, engine.DefaultSettings().DownloadThreads, updated.DownloadThreads)
}

func TestDownloadListEmpty(t *testing.T) {
	s := testServer(t)
	rec := doRequest(s, http.MethodGet, "/api/downloads", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		List []DownloadListItem `json:"list"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Empty(t, out.List)
}
