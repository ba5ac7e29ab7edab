package apidash

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMiddleware_TracksStatusAndSize(t *testing.T) {
	var gotStatus int
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	dir := t.TempDir()
	c, err := New(Options{
		APIKey:        "k",
		Endpoint:      upstream.URL,
		FlushInterval: time.Hour,
		StoragePath:   filepath.Join(dir, "events.jsonl"),
	})
	require.NoError(t, err)
	defer c.Shutdown()

	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("hello"))
	}))

	req := httptest.NewRequest(http.MethodPost, "/widgets", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	gotStatus = rr.Code
	require.Equal(t, http.StatusCreated, gotStatus)

	c.mu.Lock()
	require.Equal(t, 1, c.buf.len())
	got := c.buf.events[0]
	c.mu.Unlock()

	require.Equal(t, "POST", got.Method)
	require.Equal(t, "/widgets", got.Path)
	require.Equal(t, http.StatusCreated, got.StatusCode)
	require.Equal(t, int64(5), got.ResponseSize)
}

func TestMiddleware_TracksOnPanic(t *testing.T) {
	dir := t.TempDir()
	c, err := New(Options{
		APIKey:        "k",
		Endpoint:      "https://localhost:1/v1/events",
		FlushInterval: time.Hour,
		StoragePath:   filepath.Join(dir, "events.jsonl"),
	})
	require.NoError(t, err)
	defer c.Shutdown()

	handler := c.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	rr := httptest.NewRecorder()

	require.Panics(t, func() { handler.ServeHTTP(rr, req) })

	c.mu.Lock()
	require.Equal(t, 1, c.buf.len())
	got := c.buf.events[0]
	c.mu.Unlock()

	require.Equal(t, http.StatusInternalServerError, got.StatusCode)
}
