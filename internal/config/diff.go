package config

import (
	"sort"
	"strings"
)

// Change summarises a config reload.
type Change struct {
	// Sections lists changed top-level areas, sorted.
	Sections []string
	// Tasks lists tasks that were added, removed, or changed.
	Tasks []string
}

func (c Change) Empty() bool { return len(c.Sections) == 0 && len(c.Tasks) == 0 }

func (c Change) String() string {
	if c.Empty() {
		return "nothing"
	}
	return strings.Join(c.Sections, ", ")
}

// SummarizeConfigChange compares two configs section by section.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var ch Change
	if oldCfg.MaxConcurrency != newCfg.MaxConcurrency ||
		!strings.EqualFold(oldCfg.Mode, newCfg.Mode) ||
		oldCfg.StartRate != newCfg.StartRate {
		ch.Sections = append(ch.Sections, "engine")
	}
	if oldCfg.JitterMinutes() != newCfg.JitterMinutes() ||
		strings.TrimSpace(oldCfg.Schedule) != strings.TrimSpace(newCfg.Schedule) ||
		strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		ch.Sections = append(ch.Sections, "scheduler")
	}
	if oldCfg.TaskTimeout != newCfg.TaskTimeout {
		ch.Sections = append(ch.Sections, "task_timeout")
	}
	if oldCfg.Queries != newCfg.Queries {
		ch.Sections = append(ch.Sections, "queries")
	}
	if loggingChanged(oldCfg.Logging, newCfg.Logging) {
		ch.Sections = append(ch.Sections, "logging")
	}

	ch.Tasks = diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if len(ch.Tasks) > 0 {
		ch.Sections = append(ch.Sections, "tasks")
	}
	sort.Strings(ch.Sections)
	return ch
}

func loggingChanged(a, b LoggingConfig) bool {
	colorA, colorB := a.Color != nil && *a.Color, b.Color != nil && *b.Color
	return a.Dir != b.Dir ||
		a.ConsoleLevel != b.ConsoleLevel ||
		a.FileLevel != b.FileLevel ||
		a.MaxFileSize != b.MaxFileSize ||
		a.Format != b.Format ||
		(a.Color == nil) != (b.Color == nil) ||
		colorA != colorB
}

func diffTasks(oldM, newM map[string]TaskConfigRaw) []string {
	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, inOld := oldM[name]
		n, inNew := newM[name]
		if inOld != inNew ||
			o.IsEnabled() != n.IsEnabled() ||
			!strings.EqualFold(o.Kind, n.Kind) ||
			o.Timeout != n.Timeout ||
			canonicalHashJSON(o.Config) != canonicalHashJSON(n.Config) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
