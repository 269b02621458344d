// Package shell provides the "shell" task kind: a POSIX shell script run
// in-process for every invocation, with the picked query in $QUERY.
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"noisebot/internal/task"
)

type Config struct {
	// Script is inline shell source. Exactly one of Script and File is set.
	Script string `json:"script,omitempty"`
	File   string `json:"file,omitempty"`
	// Dir is the working directory. Empty means the current directory.
	Dir string            `json:"dir,omitempty"`
	Env map[string]string `json:"env,omitempty"`
}

type Kind struct{}

func New() *Kind { return &Kind{} }

func (k *Kind) Name() string { return "shell" }

// Build parses the script once; every invocation runs the same AST in a
// fresh interpreter.
func (k *Kind) Build(taskName string, raw json.RawMessage) (task.Func, task.SessionFactory, error) {
	cfg, err := parseConfig(raw)
	if err != nil {
		return nil, nil, err
	}
	src, name := cfg.Script, taskName
	if cfg.File != "" {
		b, err := os.ReadFile(cfg.File)
		if err != nil {
			return nil, nil, fmt.Errorf("shell: %w", err)
		}
		src, name = string(b), filepath.Base(cfg.File)
	}
	prog, err := syntax.NewParser(syntax.Variant(syntax.LangPOSIX)).Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, nil, fmt.Errorf("shell: parse: %w", err)
	}

	r := &runner{prog: prog, dir: cfg.Dir, env: envPairs(cfg.Env)}
	return r.run, newSession, nil
}

func parseConfig(raw json.RawMessage) (Config, error) {
	var cfg Config
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("shell: config: %w", err)
		}
	}
	hasScript, hasFile := strings.TrimSpace(cfg.Script) != "", strings.TrimSpace(cfg.File) != ""
	switch {
	case hasScript && hasFile:
		return Config{}, errors.New("shell: set either script or file, not both")
	case !hasScript && !hasFile:
		return Config{}, errors.New("shell: script or file is required")
	}
	return cfg, nil
}

func envPairs(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

type runner struct {
	prog *syntax.File
	dir  string
	env  []string
}

func (r *runner) run(ctx context.Context, tc task.Context, sess task.Session) task.Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if s, ok := sess.(*session); ok {
		s.bind(cancel)
	}

	stdout := newLineWriter(tc.Log.Verbose)
	stderr := newLineWriter(tc.Log.Warn)
	defer stdout.Flush()
	defer stderr.Flush()

	env := append(os.Environ(), r.env...)
	env = append(env,
		"QUERY="+tc.Input,
		"TASK_NAME="+tc.Name,
		"TASK_ID="+tc.ID,
	)
	opts := []interp.RunnerOption{
		interp.StdIO(strings.NewReader(""), stdout, stderr),
		interp.Env(expand.ListEnviron(env...)),
	}
	if r.dir != "" {
		opts = append(opts, interp.Dir(r.dir))
	}
	sh, err := interp.New(opts...)
	if err != nil {
		tc.Log.Errorf("Shell setup failed: %v", err)
		return task.Failed()
	}

	err = sh.Run(ctx, r.prog)
	stdout.Flush()
	stderr.Flush()
	res := task.Result{Counters: map[string]int{"lines": stdout.Lines()}}

	var status interp.ExitStatus
	switch {
	case err == nil:
		return res
	case errors.As(err, &status):
		res.Status = int(status)
		tc.Log.Errorf("Script exited with status %d.", res.Status)
	default:
		res.Status = task.StatusFailed
		tc.Log.Errorf("Script failed: %v", err)
	}
	return res
}

// session lets the wrapper stop a script that outlived its deadline.
type session struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

func newSession(context.Context) (task.Session, error) { return &session{}, nil }

func (s *session) bind(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		cancel()
		return
	}
	s.cancel = cancel
}

func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	return nil
}
