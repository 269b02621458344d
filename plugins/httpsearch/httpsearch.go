// Package httpsearch provides the "http" task kind: it fetches a search URL
// for the picked query, optionally paging through results with random pauses
// in between.
package httpsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"noisebot/internal/task"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0"
	// maxBody caps how much of a response is read per page.
	maxBody = 8 << 20
)

type Config struct {
	// URL must contain {query}; it is replaced by the query-escaped input.
	// {page} is replaced by the 1-based page number when present.
	URL   string `json:"url"`
	Pages int    `json:"pages,omitempty"`
	// WaitJitter bounds the pause between pages in seconds. 0 falls back to
	// the task's jitter.
	WaitJitter int               `json:"wait_jitter,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

type Kind struct {
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Kind)

// WithSleep replaces the pause between pages.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(k *Kind) {
		if fn != nil {
			k.sleep = fn
		}
	}
}

func New(opts ...Option) *Kind {
	k := &Kind{sleep: sleepContext}
	for _, o := range opts {
		o(k)
	}
	return k
}

func (k *Kind) Name() string { return "http" }

func (k *Kind) Build(taskName string, raw json.RawMessage) (task.Func, task.SessionFactory, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, nil, err
	}
	f := &fetcher{cfg: cfg, sleep: k.sleep}
	return f.run, newSession, nil
}

func parseConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("http: config: %w", err)
		}
	}
	cfg.URL = strings.TrimSpace(cfg.URL)
	if cfg.URL == "" {
		return Config{}, errors.New("http: url is required")
	}
	if !strings.Contains(cfg.URL, "{query}") {
		return Config{}, errors.New("http: url must contain {query}")
	}
	u, err := url.Parse(strings.NewReplacer("{query}", "q", "{page}", "1").Replace(cfg.URL))
	if err != nil {
		return Config{}, fmt.Errorf("http: url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Config{}, fmt.Errorf("http: url scheme %q not supported", u.Scheme)
	}
	if cfg.Pages < 0 || cfg.WaitJitter < 0 {
		return Config{}, errors.New("http: pages and wait_jitter must be >= 0")
	}
	cfg.Pages = max(cfg.Pages, 1)
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return cfg, nil
}

type fetcher struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

func (f *fetcher) run(ctx context.Context, tc task.Context, sess task.Session) task.Result {
	s, ok := sess.(*session)
	if !ok {
		tc.Log.Error("HTTP task started without a client session.")
		return task.Failed()
	}
	ctx = s.bind(ctx)

	res := task.Result{Counters: map[string]int{"pages": 0, "bytes": 0}}
	wait := f.cfg.WaitJitter
	if wait == 0 {
		wait = tc.Jitter
	}

	for page := 1; page <= f.cfg.Pages; page++ {
		if page > 1 && wait > 0 {
			d := time.Duration(1+rand.Intn(wait)) * time.Second
			tc.Log.Sillyf("Waiting %s before page %d.", d, page)
			if err := f.sleep(ctx, d); err != nil {
				res.Status = task.StatusFailed
				return res
			}
		}
		n, err := f.fetch(ctx, s.client, tc, page)
		if err != nil {
			tc.Log.Errorf("Page %d failed: %v", page, err)
			res.Status = task.StatusFailed
			return res
		}
		res.Counters["pages"]++
		res.Counters["bytes"] += n
	}
	return res
}

func (f *fetcher) fetch(ctx context.Context, c *http.Client, tc task.Context, page int) (int, error) {
	target := strings.NewReplacer(
		"{query}", url.QueryEscape(tc.Input),
		"{page}", strconv.Itoa(page),
	).Replace(f.cfg.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	for k, v := range f.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	tc.Log.Debugf("GET %d %s %s", resp.StatusCode, http.StatusText(resp.StatusCode), target)
	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return int(n), err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return int(n), fmt.Errorf("unexpected status %s", resp.Status)
	}
	return int(n), nil
}

// session owns the HTTP client of one invocation. Closing it aborts any
// request in flight.
type session struct {
	client *http.Client

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func newSession(context.Context) (task.Session, error) {
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.MaxIdleConnsPerHost = 2
	return &session{client: &http.Client{Transport: tr, Timeout: 2 * time.Minute}}, nil
}

func (s *session) bind(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		return ctx
	}
	s.cancel = cancel
	return ctx
}

func (s *session) Close() error {
	s.mu.Lock()
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.client.CloseIdleConnections()
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
