package config

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	logx "noisebot/pkg/logx"
)

const (
	DefaultJitter      = 30
	DefaultTaskTimeout = 25 * time.Minute
	DefaultLogDir      = "logs"
	DefaultMaxFileSize = 10 * 1024 * 1024
)

var (
	ErrNoTasks      = errors.New("no enabled tasks configured")
	ErrInvalidValue = errors.New("invalid config value")
)

// ApplyDefaults fills zero values in place.
func (c *Config) ApplyDefaults() {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = runtime.NumCPU()
	}
	if c.Jitter == nil {
		j := DefaultJitter
		c.Jitter = &j
	}
	if strings.TrimSpace(c.TaskTimeout) == "" {
		c.TaskTimeout = DefaultTaskTimeout.String()
	}
	if strings.TrimSpace(c.Mode) == "" {
		c.Mode = "batch"
	}
	if strings.TrimSpace(c.Logging.Dir) == "" {
		c.Logging.Dir = DefaultLogDir
	}
	if strings.TrimSpace(c.Logging.ConsoleLevel) == "" {
		c.Logging.ConsoleLevel = logx.LevelInfo.String()
	}
	if strings.TrimSpace(c.Logging.FileLevel) == "" {
		c.Logging.FileLevel = logx.LevelSilly.String()
	}
	if c.Logging.MaxFileSize <= 0 {
		c.Logging.MaxFileSize = DefaultMaxFileSize
	}
	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = "text"
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	bad := func(path, format string, args ...any) {
		errs = append(errs, fmt.Errorf("%s: %w: %s", path, ErrInvalidValue, fmt.Sprintf(format, args...)))
	}

	if c.MaxConcurrency < 0 {
		bad("max_concurrency", "must be >= 0")
	}
	if c.Jitter != nil && *c.Jitter < 0 {
		bad("jitter", "must be >= 0")
	}
	if c.StartRate < 0 {
		bad("start_rate", "must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "", "batch", "sliding", "pool":
	default:
		bad("mode", "%q (want batch or sliding)", c.Mode)
	}
	if _, err := ParseDurationField("task_timeout", c.TaskTimeout); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			bad("timezone", "%q: %v", tz, err)
		}
	}
	for path, lv := range map[string]string{
		"logging.console_level": c.Logging.ConsoleLevel,
		"logging.file_level":    c.Logging.FileLevel,
	} {
		if s := strings.TrimSpace(lv); s != "" && !isLevelName(s) {
			bad(path, "unknown level %q", lv)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "text", "json":
	default:
		bad("logging.format", "%q (want text or json)", c.Logging.Format)
	}

	enabled := 0
	for _, name := range sortedKeys(c.Tasks) {
		t := c.Tasks[name]
		if strings.TrimSpace(name) == "" {
			bad("tasks", "task name must not be empty")
		}
		if strings.ContainsAny(name, `/\`) {
			bad("tasks."+name, "name must not contain path separators")
		}
		if strings.TrimSpace(t.Kind) == "" {
			bad("tasks."+name+".kind", "required")
		}
		if _, err := ParseDurationField("tasks."+name+".timeout", t.Timeout); err != nil {
			errs = append(errs, err)
		}
		if t.IsEnabled() {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, ErrNoTasks)
	}
	return errors.Join(errs...)
}

// JitterMinutes is the configured jitter, or DefaultJitter when unset.
func (c *Config) JitterMinutes() int {
	if c.Jitter == nil {
		return DefaultJitter
	}
	return *c.Jitter
}

// TaskTimeoutFor resolves the timeout of the named task.
func (c *Config) TaskTimeoutFor(name string) time.Duration {
	def, err := ParseDurationOrDefault("task_timeout", c.TaskTimeout, DefaultTaskTimeout)
	if err != nil {
		def = DefaultTaskTimeout
	}
	t, ok := c.Tasks[name]
	if !ok {
		return def
	}
	d, err := ParseDurationOrDefault("tasks."+name+".timeout", t.Timeout, def)
	if err != nil {
		return def
	}
	return d
}

// EnabledTasks returns enabled task names in a stable order.
func (c *Config) EnabledTasks() []string {
	out := make([]string, 0, len(c.Tasks))
	for _, name := range sortedKeys(c.Tasks) {
		if c.Tasks[name].IsEnabled() {
			out = append(out, name)
		}
	}
	return out
}

// isLevelName accepts a canonical level name or a severity 0..5.
func isLevelName(s string) bool {
	s = strings.TrimSpace(s)
	if isDigits(s) {
		n, err := strconv.Atoi(s)
		return err == nil && n >= int(logx.LevelError) && n <= int(logx.LevelSilly)
	}
	return strings.EqualFold(logx.LevelNamed(s).String(), s)
}

func isDigits(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
