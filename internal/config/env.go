package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envNamespace = "NOISEBOT"

// Env holds NOISEBOT_* overrides. Zero values (nil for Jitter) mean "not
// set".
type Env struct {
	Config         string  `envconfig:"CONFIG"`
	Queries        string  `envconfig:"QUERIES"`
	MaxConcurrency int     `envconfig:"MAX_CONCURRENCY"`
	Jitter         *int    `envconfig:"JITTER"`
	TaskTimeout    string  `envconfig:"TASK_TIMEOUT"`
	Mode           string  `envconfig:"MODE"`
	StartRate      float64 `envconfig:"START_RATE"`
	Schedule       string  `envconfig:"SCHEDULE"`
	Timezone       string  `envconfig:"TIMEZONE"`

	LogDir         string `envconfig:"LOG_DIR"`
	LogLevel       string `envconfig:"LOG_LEVEL"`
	LogFileLevel   string `envconfig:"LOG_FILE_LEVEL"`
	LogMaxFileSize int64  `envconfig:"LOG_MAX_FILE_SIZE"`
	LogFormat      string `envconfig:"LOG_FORMAT"`
	NoColor        bool   `envconfig:"NO_COLOR"`
}

// LoadDotenv loads the given .env files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotenv(paths ...string) error {
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadEnv() (*Env, error) {
	var env Env
	if err := envconfig.Process(envNamespace, &env); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	return &env, nil
}

// Apply overlays the set fields onto cfg.
func (e *Env) Apply(cfg *Config) {
	if e == nil || cfg == nil {
		return
	}
	setString(&cfg.Queries, e.Queries)
	setString(&cfg.TaskTimeout, e.TaskTimeout)
	setString(&cfg.Mode, e.Mode)
	setString(&cfg.Schedule, e.Schedule)
	setString(&cfg.Timezone, e.Timezone)
	if e.MaxConcurrency > 0 {
		cfg.MaxConcurrency = e.MaxConcurrency
	}
	if e.Jitter != nil {
		j := *e.Jitter
		cfg.Jitter = &j
	}
	if e.StartRate > 0 {
		cfg.StartRate = e.StartRate
	}

	setString(&cfg.Logging.Dir, e.LogDir)
	setString(&cfg.Logging.ConsoleLevel, e.LogLevel)
	setString(&cfg.Logging.FileLevel, e.LogFileLevel)
	setString(&cfg.Logging.Format, e.LogFormat)
	if e.LogMaxFileSize > 0 {
		cfg.Logging.MaxFileSize = e.LogMaxFileSize
	}
	if e.NoColor {
		off := false
		cfg.Logging.Color = &off
	}
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// DefaultPath returns the per-user config file: the first of ~/.noisebot,
// ~/.noisebot.yaml, ~/.noisebot.yml, ~/.noisebot.json that exists, or
// ~/.noisebot.yaml when none does.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".noisebot")
	for _, p := range []string{base, base + ".yaml", base + ".yml", base + ".json"} {
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p
		}
	}
	return base + ".yaml"
}
