package apidash

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apidash/go-client/internal/mirror"
	"github.com/apidash/go-client/internal/spill"
)

func newTestClient(t *testing.T, server *httptest.Server, tweak func(*Options)) *Client {
	t.Helper()
	dir := t.TempDir()
	opts := Options{
		APIKey:        "test-key",
		Endpoint:      server.URL,
		FlushInterval: time.Hour, // tests drive flushes explicitly
		BatchSize:     DefaultBatchSize,
		StoragePath:   filepath.Join(dir, "events.jsonl"),
	}
	if tweak != nil {
		tweak(&opts)
	}
	c, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(c.Shutdown)
	return c
}

func TestNew_HappyPath(t *testing.T) {
	var body []byte
	var gotHeader http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		gotHeader = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	c.Track(Event{Method: "POST", Path: "/users", StatusCode: 200, ResponseTimeMs: 1})
	c.Flush()

	require.Equal(t, "test-key", gotHeader.Get("x-api-key"))

	var events []Event
	require.NoError(t, json.Unmarshal(body, &events))
	require.Len(t, events, 1)
	require.Equal(t, "POST", events[0].Method)
	require.Equal(t, "/users", events[0].Path)
	require.Equal(t, 200, events[0].StatusCode)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Equal(t, 0, c.buf.len())
}

func TestTrack_Sanitize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	longPath := "/" + strings.Repeat("x", 3000)
	c.Track(Event{Method: "get", Path: longPath, StatusCode: 200, ResponseTimeMs: 10})

	c.mu.Lock()
	require.Equal(t, 1, c.buf.len())
	got := c.buf.events[0]
	c.mu.Unlock()

	require.Equal(t, "GET", got.Method)
	require.Len(t, got.Path, 2048)
	require.NotEmpty(t, got.Timestamp)
}

func TestFlush_Retryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	c.Track(Event{Method: "GET", Path: "/", StatusCode: 200, ResponseTimeMs: 1})
	c.Flush()

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Equal(t, 1, c.buf.len())
	require.Equal(t, 1, c.consecutiveFailures)
	require.True(t, c.backoffUntil.After(time.Now()))
}

func TestFlush_FailureCapSpills(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server, nil)
	c.mu.Lock()
	c.consecutiveFailures = maxConsecutiveFailures - 1
	c.mu.Unlock()

	c.Track(Event{Method: "GET", Path: "/", StatusCode: 200, ResponseTimeMs: 1})
	c.Flush()

	c.mu.Lock()
	bufLen := c.buf.len()
	failures := c.consecutiveFailures
	c.mu.Unlock()
	require.Equal(t, 0, bufLen)
	require.Equal(t, 0, failures)

	raw, err := os.ReadFile(c.opts.StoragePath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 1)

	var rec struct {
		BatchID string  `json:"batch_id"`
		Events  []Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.NotEmpty(t, rec.BatchID)
	require.Len(t, rec.Events, 1)
}

func TestFlush_NonRetryableSpillsAndNotifies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var calls int32
	c := newTestClient(t, server, func(o *Options) {
		o.OnError = func(err error) {
			atomic.AddInt32(&calls, 1)
			require.False(t, IsRetryable(err))
		}
	})

	c.Track(Event{Method: "GET", Path: "/", StatusCode: 200, ResponseTimeMs: 1})
	c.Flush()

	c.mu.Lock()
	bufLen := c.buf.len()
	c.mu.Unlock()
	require.Equal(t, 0, bufLen)
	require.Equal(t, int32(1), atomic.LoadInt32(&calls))

	_, err := os.Stat(c.opts.StoragePath)
	require.NoError(t, err)
}

func TestNew_ReplaysFromDisk(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dir := t.TempDir()
	storagePath := filepath.Join(dir, "events.jsonl")
	line := `[{"method":"GET","path":"/recovered","status_code":200,"response_time_ms":1}]` + "\n"
	require.NoError(t, os.WriteFile(storagePath, []byte(line), 0o600))

	c, err := New(Options{
		APIKey:        "test-key",
		Endpoint:      server.URL,
		FlushInterval: time.Hour,
		StoragePath:   storagePath,
	})
	require.NoError(t, err)
	defer c.Shutdown()

	c.mu.Lock()
	require.Equal(t, 1, c.buf.len())
	require.Equal(t, "/recovered", c.buf.events[0].Path)
	c.mu.Unlock()

	_, err = os.Stat(storagePath + ".recovering")
	require.NoError(t, err)
	_, err = os.Stat(storagePath)
	require.True(t, os.IsNotExist(err))

	c.Flush()

	_, err = os.Stat(storagePath + ".recovering")
	require.True(t, os.IsNotExist(err))
	_, err = os.Stat(storagePath)
	require.True(t, os.IsNotExist(err))
}

func TestNew_RejectsBadEndpoint(t *testing.T) {
	_, err := New(Options{APIKey: "k", Endpoint: "http://169.254.169.254/"})
	require.Error(t, err)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
}

func TestNew_RejectsMissingAPIKey(t *testing.T) {
	_, err := New(Options{Endpoint: "https://example.com/v1/events"})
	require.Error(t, err)
}

func TestNew_RejectsControlCharAPIKey(t *testing.T) {
	_, err := New(Options{APIKey: "bad\x00key", Endpoint: "https://example.com/v1/events"})
	require.Error(t, err)
}

func TestTrack_NeverBlocksWhenBufferFull(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := newTestClient(t, server, func(o *Options) { o.MaxBufferSize = 2 })
	for i := 0; i < 10; i++ {
		c.Track(Event{Method: "GET", Path: "/", StatusCode: 200, ResponseTimeMs: 1})
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	require.LessOrEqual(t, c.buf.len(), 2)
}

type fakeEvaler struct {
	marked map[string]bool
}

func (f *fakeEvaler) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.marked[key] {
		return false, nil
	}
	f.marked[key] = true
	return true, nil
}

func (f *fakeEvaler) Exists(_ context.Context, key string) (bool, error) {
	return f.marked[key], nil
}

func TestReplayFromDisk_SkipsAlreadyDeliveredBatch(t *testing.T) {
	dir := t.TempDir()
	storagePath := filepath.Join(dir, "events.jsonl")

	store := spill.New(storagePath, DefaultMaxStorageBytes)
	require.NoError(t, store.Write("delivered-batch", []any{
		map[string]any{"method": "GET", "path": "/already-sent", "status_code": 200, "response_time_ms": 1},
	}))
	require.NoError(t, store.Write("pending-batch", []any{
		map[string]any{"method": "GET", "path": "/still-pending", "status_code": 200, "response_time_ms": 1},
	}))

	fake := &fakeEvaler{marked: map[string]bool{}}
	m := mirror.NewWithEvaler(fake, time.Hour)
	m.MarkDelivered(context.Background(), "delivered-batch")

	c := &Client{
		opts: Options{
			MaxBufferSize: DefaultMaxBufferSize,
			Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		spillStore: store,
		buf:        newEventBuffer(DefaultMaxBufferSize),
		mirror:     m,
	}

	c.replayFromDisk()

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Equal(t, 1, c.buf.len())
	require.Equal(t, "/still-pending", c.buf.events[0].Path)
}
