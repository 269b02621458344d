package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"noisebot/internal/task/engine"
)

// DefaultQueriesFile is looked up next to the config file when no queries
// path is configured.
const DefaultQueriesFile = "queries.list"

// LoadInputs reads one input per line. Lines are trimmed (CRLF included) and
// blank lines dropped. An empty result is engine.ErrEmptyInputSet.
func LoadInputs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s: %w", path, engine.ErrEmptyInputSet)
	}
	return out, nil
}

// ResolvePath makes p relative to the directory of configPath unless it is
// already absolute.
func ResolvePath(configPath, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}

// QueriesPath picks the queries file: the flag wins, then the config, then
// DefaultQueriesFile next to the config file.
func QueriesPath(flag, configPath string, cfg *Config) string {
	if s := strings.TrimSpace(flag); s != "" {
		return s
	}
	if cfg != nil && strings.TrimSpace(cfg.Queries) != "" {
		return ResolvePath(configPath, cfg.Queries)
	}
	return ResolvePath(configPath, DefaultQueriesFile)
}
