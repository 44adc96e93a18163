package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ssargent/boarddb/pkg/board"
	"github.com/ssargent/boarddb/pkg/codec"
	"github.com/ssargent/boarddb/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRouter(t *testing.T) http.Handler {
	t.Helper()

	st, err := store.NewPagedStore(store.PagedStoreConfig{DataDir: t.TempDir(), NoSync: true})
	require.NoError(t, err)
	_, err = st.Open()
	require.NoError(t, err)

	svc, err := board.NewService(board.ServiceConfig{
		Store:  st,
		Limits: board.Limits{MaxTitle: 32},
		Clock:  func() uint64 { return 1700000000000000000 },
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	reg := prometheus.NewRegistry()
	return NewServer(svc, NewMetrics(reg), nil).Routes(reg)
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var resp APIResponse
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

// decodeData re-decodes the generic Data field into out.
func decodeData(t *testing.T, resp APIResponse, out interface{}) {
	t.Helper()
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
}

func TestServer_Health(t *testing.T) {
	h := setupTestRouter(t)

	w, resp := doRequest(t, h, "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, map[string]interface{}{"status": "healthy"}, resp.Data)
}

func TestServer_MessageLifecycle(t *testing.T) {
	h := setupTestRouter(t)

	w, resp := doRequest(t, h, "POST", "/api/v1/messages", MessageRequest{Title: "A", Body: "B", AttachmentURL: "C"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "/api/v1/messages/1", w.Header().Get("Location"))

	var created codec.Message
	decodeData(t, resp, &created)
	assert.Equal(t, uint64(1), created.ID)
	assert.Equal(t, "A", created.Title)
	assert.Nil(t, created.UpdatedAt)

	w, resp = doRequest(t, h, "GET", "/api/v1/messages/1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got codec.Message
	decodeData(t, resp, &got)
	assert.Equal(t, created, got)

	w, resp = doRequest(t, h, "PUT", "/api/v1/messages/1", MessageRequest{Title: "A2"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated codec.Message
	decodeData(t, resp, &updated)
	assert.Equal(t, "A2", updated.Title)
	assert.Equal(t, created.CreatedAt, updated.CreatedAt)
	require.NotNil(t, updated.UpdatedAt)

	w, _ = doRequest(t, h, "DELETE", "/api/v1/messages/1", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, resp = doRequest(t, h, "GET", "/api/v1/messages/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "a message with id=1 not found", resp.Error)

	w, resp = doRequest(t, h, "DELETE", "/api/v1/messages/1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, resp.Error, "couldn't delete")
}

func TestServer_Errors(t *testing.T) {
	h := setupTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"bad id", "GET", "/api/v1/messages/abc", nil, http.StatusBadRequest},
		{"negative id", "DELETE", "/api/v1/messages/-1", nil, http.StatusBadRequest},
		{"invalid json", "POST", "/api/v1/messages", "{not json", http.StatusBadRequest},
		{"unknown field", "POST", "/api/v1/messages", `{"title":"x","id":9}`, http.StatusBadRequest},
		{"title over limit", "POST", "/api/v1/messages", MessageRequest{Title: strings.Repeat("t", 33)}, http.StatusBadRequest},
		{"over encoded bound", "POST", "/api/v1/messages", MessageRequest{Body: strings.Repeat("b", codec.MaxEncodedSize)}, http.StatusBadRequest},
		{"update missing", "PUT", "/api/v1/messages/42", MessageRequest{Title: "x"}, http.StatusNotFound},
		{"bad limit", "GET", "/api/v1/messages?limit=0", nil, http.StatusBadRequest},
		{"bad after_id", "GET", "/api/v1/messages?after_id=x", nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := doRequest(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}

	// None of the rejected requests consumed an id.
	w, resp := doRequest(t, h, "POST", "/api/v1/messages", MessageRequest{Title: "first"})
	require.Equal(t, http.StatusCreated, w.Code)
	var msg codec.Message
	decodeData(t, resp, &msg)
	assert.Equal(t, uint64(1), msg.ID)
}

func TestServer_ListPagination(t *testing.T) {
	h := setupTestRouter(t)

	for i := 1; i <= 5; i++ {
		w, _ := doRequest(t, h, "POST", "/api/v1/messages", MessageRequest{Title: fmt.Sprintf("m%d", i)})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w, resp := doRequest(t, h, "GET", "/api/v1/messages?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page ListResponse
	decodeData(t, resp, &page)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, uint64(1), page.Messages[0].ID)
	assert.Equal(t, uint64(2), page.NextAfter)

	w, resp = doRequest(t, h, "GET", "/api/v1/messages?after_id=2&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = ListResponse{}
	decodeData(t, resp, &page)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, uint64(3), page.Messages[0].ID)
	assert.Zero(t, page.NextAfter)
}

func TestServer_StatsAndMetrics(t *testing.T) {
	h := setupTestRouter(t)

	w, _ := doRequest(t, h, "POST", "/api/v1/messages", MessageRequest{Title: "x"})
	require.Equal(t, http.StatusCreated, w.Code)

	w, resp := doRequest(t, h, "GET", "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats store.StoreStats
	decodeData(t, resp, &stats)
	assert.Equal(t, "paged", stats.Backend)
	assert.Equal(t, 1, stats.Keys)
	assert.Equal(t, uint64(1), stats.Counter)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "boarddb_http_requests_total")
	assert.Contains(t, body, `boarddb_store_operations_total{operation="create",status="success"} 1`)
	assert.Contains(t, body, "boarddb_messages_total 1")
}
