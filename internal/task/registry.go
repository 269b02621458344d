package task

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind builds task bodies of one type (shell scripts, HTTP searches) from
// their raw per-task config.
type Kind interface {
	Name() string
	Build(taskName string, raw json.RawMessage) (Func, SessionFactory, error)
}

// Registry maps kind names to Kinds.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

func NewRegistry() *Registry {
	return &Registry{kinds: map[string]Kind{}}
}

// Register adds kinds, replacing any previous kind with the same name.
func (r *Registry) Register(kinds ...Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, k := range kinds {
		if k == nil {
			continue
		}
		r.kinds[strings.ToLower(k.Name())] = k
	}
}

func (r *Registry) Lookup(name string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[strings.ToLower(strings.TrimSpace(name))]
	return k, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.kinds))
	for n := range r.kinds {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Build looks up kind and builds a Task named name from raw.
func (r *Registry) Build(name, kind string, raw json.RawMessage, opts ...Option) (*Task, error) {
	k, ok := r.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("task %q: unknown kind %q (known: %s)", name, kind, strings.Join(r.Names(), ", "))
	}
	fn, sess, err := k.Build(name, raw)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", name, err)
	}
	if sess != nil {
		opts = append(opts, WithSession(sess))
	}
	return New(name, fn, opts...)
}
