package app

import (
	"fmt"
	"io"
	"strings"

	"noisebot/internal/config"
	"noisebot/internal/eventbus"
	"noisebot/internal/task"
	"noisebot/internal/task/engine"
	"noisebot/internal/task/scheduler"
	logx "noisebot/pkg/logx"
)

const (
	appLabel   = "APP"
	appLogFile = "application.log"
)

func taskLabel(name string) string   { return "TASK " + name }
func taskLogFile(name string) string { return name + ".log" }

func mapEngineConfig(cfg *config.Config) engine.Config {
	return engine.Config{
		MaxConcurrency: cfg.MaxConcurrency,
		Mode:           engine.ParseMode(cfg.Mode),
		StartRate:      cfg.StartRate,
	}
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{
		Jitter:   cfg.JitterMinutes(),
		Schedule: cfg.Schedule,
		Timezone: cfg.Timezone,
	}
}

// mapLogConfig resolves the logging section. consoleOverride (the -v flag)
// wins over the config file.
func mapLogConfig(cfgPath string, cfg *config.Config, consoleOverride string, console io.Writer) logx.Config {
	consoleLevel := cfg.Logging.ConsoleLevel
	if s := strings.TrimSpace(consoleOverride); s != "" {
		consoleLevel = s
	}
	return logx.Config{
		Dir:          config.ResolvePath(cfgPath, cfg.Logging.Dir),
		ConsoleLevel: levelText(consoleLevel),
		FileLevel:    levelText(cfg.Logging.FileLevel),
		MaxFileSize:  cfg.Logging.MaxFileSize,
		Format:       logx.ParseFormat(cfg.Logging.Format),
		NoColor:      cfg.Logging.Color != nil && !*cfg.Logging.Color,
		Console:      console,
	}
}

// levelText reads a level name or numeric severity.
func levelText(s string) logx.Level {
	var lv logx.Level
	_ = lv.UnmarshalText([]byte(s))
	return lv
}

// validateKinds rejects enabled tasks whose kind is not registered.
func validateKinds(reg *task.Registry, cfg *config.Config) error {
	for _, name := range cfg.EnabledTasks() {
		kind := cfg.Tasks[name].Kind
		if _, ok := reg.Lookup(kind); !ok {
			return fmt.Errorf("tasks.%s.kind: %w: unknown kind %q (known: %s)",
				name, config.ErrInvalidValue, kind, strings.Join(reg.Names(), ", "))
		}
	}
	return nil
}

// buildTasks builds every enabled task in name order, each with its own
// logger.
func buildTasks(reg *task.Registry, cfg *config.Config, logs *logx.Service, bus eventbus.Bus, log *logx.Logger) ([]engine.Invoker, error) {
	names := cfg.EnabledTasks()
	out := make([]engine.Invoker, 0, len(names))
	for _, name := range names {
		tc := cfg.Tasks[name]
		t, err := reg.Build(name, tc.Kind, tc.Config,
			task.WithLogger(logs.Logger(taskLabel(name), taskLogFile(name), logx.RotateBackup)),
			task.WithBus(bus),
			task.WithTimeout(cfg.TaskTimeoutFor(name)),
			task.WithJitter(cfg.JitterMinutes()),
			task.WithMaxConcurrency(cfg.MaxConcurrency),
		)
		if err != nil {
			return nil, err
		}
		log.Infof("Loaded '%s' task.", name)
		out = append(out, t)
	}
	return out, nil
}
