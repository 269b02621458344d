package httpsearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noisebot/internal/task"
	logx "noisebot/pkg/logx"
)

type recorder struct {
	mu       sync.Mutex
	requests []string
	waits    []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return nil
}

func newTask(t *testing.T, k *Kind, cfg Config, rec *recorder, opts ...task.Option) *task.Task {
	t.Helper()
	raw, err := json.Marshal(cfg)
	require.NoError(t, err)

	l := logx.New("TASK web", logx.DefaultOptions())
	l.On(func(r logx.Record) {
		if r.Level != logx.LevelDebug || !strings.HasPrefix(r.Message, "GET ") {
			return
		}
		rec.mu.Lock()
		rec.requests = append(rec.requests, r.Message)
		rec.mu.Unlock()
	})

	reg := task.NewRegistry()
	reg.Register(k)
	tk, err := reg.Build("web", "http", raw, append(opts, task.WithLogger(l))...)
	require.NoError(t, err)
	return tk
}

func TestFetchesEveryPage(t *testing.T) {
	t.Parallel()
	var (
		mu   sync.Mutex
		seen []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.URL.RawQuery+"|"+r.UserAgent())
		mu.Unlock()
		_, _ = w.Write([]byte("hello"))
	}))
	defer srv.Close()

	rec := &recorder{}
	tk := newTask(t, New(WithSleep(rec.sleep)), Config{
		URL:        srv.URL + "/search?q={query}&p={page}",
		Pages:      3,
		WaitJitter: 5,
		UserAgent:  "noisebot-test",
	}, rec)

	res := tk.Invoke(context.Background(), "cheap flights & hotels")
	require.Equal(t, task.StatusOK, res.Status)
	assert.Equal(t, 3, res.Counters["pages"])
	assert.Equal(t, 15, res.Counters["bytes"])

	assert.Equal(t, []string{
		"q=cheap+flights+%26+hotels&p=1|noisebot-test",
		"q=cheap+flights+%26+hotels&p=2|noisebot-test",
		"q=cheap+flights+%26+hotels&p=3|noisebot-test",
	}, seen)

	require.Len(t, rec.waits, 2)
	for _, w := range rec.waits {
		assert.GreaterOrEqual(t, w, time.Second)
		assert.LessOrEqual(t, w, 5*time.Second)
	}
	require.Len(t, rec.requests, 3)
	assert.True(t, strings.HasPrefix(rec.requests[0], "GET 200 OK "+srv.URL))
}

func TestNon2xxFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rec := &recorder{}
	tk := newTask(t, New(WithSleep(rec.sleep)), Config{URL: srv.URL + "/?q={query}", Pages: 2}, rec)

	res := tk.Invoke(context.Background(), "q")
	assert.Equal(t, task.StatusFailed, res.Status)
	assert.Zero(t, res.Counters["pages"])
	require.Len(t, rec.requests, 1)
	assert.Contains(t, rec.requests[0], "GET 429 Too Many Requests")
}

func TestTransportErrorFails(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	rec := &recorder{}
	tk := newTask(t, New(WithSleep(rec.sleep)), Config{URL: addr + "/?q={query}"}, rec)
	assert.Equal(t, task.StatusFailed, tk.Invoke(context.Background(), "q").Status)
}

func TestTimeoutAbortsRequest(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	rec := &recorder{}
	tk := newTask(t, New(WithSleep(rec.sleep)), Config{URL: srv.URL + "/?q={query}"}, rec,
		task.WithTimeout(50*time.Millisecond))

	start := time.Now()
	res := tk.Invoke(context.Background(), "q")
	assert.True(t, res.TimedOut)
	assert.Equal(t, task.StatusTimeout, res.Status)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFallsBackToTaskJitter(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	defer srv.Close()

	rec := &recorder{}
	tk := newTask(t, New(WithSleep(rec.sleep)), Config{URL: srv.URL + "/?q={query}", Pages: 4}, rec,
		task.WithJitter(1))

	require.Equal(t, task.StatusOK, tk.Invoke(context.Background(), "q").Status)
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, rec.waits)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, cfg, want string
	}{
		{"missing url", `{}`, "url is required"},
		{"no placeholder", `{"url": "https://example.com/"}`, "{query}"},
		{"bad scheme", `{"url": "ftp://example.com/{query}"}`, "not supported"},
		{"negative pages", `{"url": "https://example.com/?q={query}", "pages": -1}`, ">= 0"},
		{"unknown field", `{"url": "https://example.com/?q={query}", "page": 2}`, "unknown field"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := New().Build("web", json.RawMessage(tt.cfg))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuildDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := parseConfig(json.RawMessage(`{"url": "https://example.com/?q={query}"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Pages)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
}
