package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compose-network/msgstream/server/api/middleware"
	"github.com/compose-network/msgstream/x/stream"
)

type fakeSource struct {
	snaps []stream.Snapshot
}

func (f fakeSource) Snapshots() []stream.Snapshot {
	return f.snaps
}

func newTestServer(src StreamSource) *Server {
	s := NewServer(DefaultConfig(), zerolog.Nop())
	s.Use(middleware.RequestID())
	s.RegisterRoutes(src, "test")
	return s
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	s := newTestServer(fakeSource{})

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestListStreams(t *testing.T) {
	t.Parallel()

	src := fakeSource{snaps: []stream.Snapshot{
		{ID: "a", State: "active", Credit: 3, Ready: true, Encoding: "gzip"},
		{ID: "b", State: "half_closed"},
	}}
	s := newTestServer(src)

	req := httptest.NewRequest(http.MethodGet, "/v1/streams", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int               `json:"count"`
		Streams []stream.Snapshot `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, src.snaps, body.Streams)
}

func TestGetStream(t *testing.T) {
	t.Parallel()

	src := fakeSource{snaps: []stream.Snapshot{
		{ID: "a", State: "active", Encoding: "zstd"},
	}}
	s := newTestServer(src)

	req := httptest.NewRequest(http.MethodGet, "/v1/streams/a", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var snap stream.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "a", snap.ID)
	assert.Equal(t, "zstd", snap.Encoding)
}

func TestGetStream_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestServer(fakeSource{})

	req := httptest.NewRequest(http.MethodGet, "/v1/streams/missing", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var body struct {
		Error struct {
			Code      string `json:"code"`
			RequestID string `json:"request_id"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "stream_not_found", body.Error.Code)
	assert.NotEmpty(t, body.Error.RequestID)
}
