package config

import (
	"bytes"
	"encoding/json"
)

// Config is the on-disk configuration (JSON or YAML).
//
// Defaults (when fields are omitted/zero):
//   - max_concurrency: number of CPUs
//   - jitter: 30 (minutes)
//   - task_timeout: "25m"
//   - mode: "batch"
//   - logging: dir "logs", console "info", file "silly", max_file_size 10 MiB
type Config struct {
	MaxConcurrency int `json:"max_concurrency,omitempty"`
	// Jitter is the upper bound, in minutes, of the random pause between
	// batches. Nil means DefaultJitter; 0 and 1 mean a fixed minute.
	Jitter *int `json:"jitter,omitempty"`
	// TaskTimeout is a Go duration string (e.g. "25m").
	TaskTimeout string `json:"task_timeout,omitempty"`
	// Mode is "batch" or "sliding".
	Mode string `json:"mode,omitempty"`
	// StartRate paces task starts (starts per second). 0 disables pacing.
	StartRate float64 `json:"start_rate,omitempty"`
	// Schedule is an optional base schedule the jitter is added to.
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
	// Queries is the path of the input list, one query per line. Relative
	// paths resolve against the config file's directory.
	Queries string `json:"queries,omitempty"`

	Logging LoggingConfig            `json:"logging"`
	Tasks   map[string]TaskConfigRaw `json:"tasks"`
}

type LoggingConfig struct {
	Dir          string `json:"dir,omitempty"`
	ConsoleLevel string `json:"console_level,omitempty"`
	FileLevel    string `json:"file_level,omitempty"`
	MaxFileSize  int64  `json:"max_file_size,omitempty"`
	// Format of log files: "text" or "json".
	Format string `json:"format,omitempty"`
	// Color enables ANSI colors on the console. Nil means auto.
	Color *bool `json:"color,omitempty"`
}

type TaskConfigRaw struct {
	Kind string `json:"kind"`
	// Enabled defaults to true when omitted.
	Enabled *bool `json:"enabled,omitempty"`
	// Timeout overrides task_timeout for this task.
	Timeout string          `json:"timeout,omitempty"`
	Config  json.RawMessage `json:"config,omitempty"`
}

func (t TaskConfigRaw) IsEnabled() bool { return t.Enabled == nil || *t.Enabled }

// UnmarshalJSON disallows unknown fields so typos in a task block are caught
// at load time.
func (t *TaskConfigRaw) UnmarshalJSON(b []byte) error {
	type tmp struct {
		Kind    string          `json:"kind"`
		Enabled *bool           `json:"enabled,omitempty"`
		Timeout string          `json:"timeout,omitempty"`
		Config  json.RawMessage `json:"config,omitempty"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var v tmp
	if err := dec.Decode(&v); err != nil {
		return err
	}
	*t = TaskConfigRaw(v)
	return nil
}
