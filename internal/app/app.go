package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"noisebot/internal/config"
	"noisebot/internal/eventbus"
	"noisebot/internal/runtime/supervisor"
	"noisebot/internal/task"
	"noisebot/internal/task/engine"
	"noisebot/internal/task/scheduler"
	logx "noisebot/pkg/logx"
)

// Options are the command-line inputs of an App.
type Options struct {
	ConfigPath string
	// QueriesPath overrides the config's queries file.
	QueriesPath string
	// ConsoleLevel overrides logging.console_level when non-empty.
	ConsoleLevel string
	// Loop keeps running batches until the context ends.
	Loop bool
	// Notify enables systemd readiness, status and watchdog notifications.
	Notify bool

	Env   *config.Env
	Kinds []task.Kind
	// Console may be nil for stdout.
	Console io.Writer
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  *logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	reg  *task.Registry
	sd   *sdNotifier

	tasks  []engine.Invoker
	inputs []string

	engine *engine.Runner
	driver *scheduler.Driver
}

// NewApp loads the configuration and the queries and builds every enabled
// task. Any error here is a startup error.
func NewApp(opts Options) (*App, error) {
	reg := task.NewRegistry()
	reg.Register(opts.Kinds...)

	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfgm.SetEnv(opts.Env)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateKinds(reg, cfg)
	})
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", opts.ConfigPath, err)
	}

	logs := logx.NewService(mapLogConfig(opts.ConfigPath, cfg, opts.ConsoleLevel, opts.Console))
	log := logs.Logger(appLabel, appLogFile, logx.RotateDelete)
	cfgm.SetLogger(log)
	if s := strings.TrimSpace(opts.ConsoleLevel); s != "" {
		log.Debugf("Log level is %s.", s)
	}
	log.Info("Loading configuration.")
	log.Debugf("Configuration from %s.", opts.ConfigPath)

	fail := func(err error) (*App, error) {
		log.Error(err.Error())
		_ = logs.Close()
		return nil, err
	}

	log.Info("Loading queries.")
	qpath := config.QueriesPath(opts.QueriesPath, opts.ConfigPath, cfg)
	inputs, err := config.LoadInputs(qpath)
	if err != nil {
		return fail(fmt.Errorf("load queries: %w", err))
	}
	log.Debugf("Queries are %q", inputs)

	log.Info("Loading tasks.")
	bus := eventbus.New()
	tasks, err := buildTasks(reg, cfg, logs, bus, log)
	if err != nil {
		return fail(err)
	}

	a := &App{
		opts:   opts,
		cfgm:   cfgm,
		log:    log,
		logs:   logs,
		bus:    bus,
		reg:    reg,
		sd:     newSDNotifier(opts.Notify, log),
		tasks:  tasks,
		inputs: inputs,
	}
	a.engine = engine.New(mapEngineConfig(cfg), log, bus)
	a.driver, err = scheduler.New(mapSchedulerConfig(cfg), a.engine, log,
		scheduler.WithOutput(consoleOrStdout(opts.Console)),
		scheduler.WithAfterBatch(a.sd.status),
	)
	if err != nil {
		return fail(err)
	}
	return a, nil
}

func consoleOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return logx.Stdout()
	}
	return w
}

// Run runs one batch, or batches until ctx ends when looping. The returned
// error is the first fatal error; cancellation is a clean exit.
func (a *App) Run(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	mode := "RunOnce"
	if a.opts.Loop {
		mode = "Loop"
	}
	a.log.Info("Running tasks.")
	a.log.Debugf("Running in %s mode.", mode)

	events, unsub := a.bus.Subscribe(256)
	eventsDone := make(chan struct{})
	go func() {
		defer close(eventsDone)
		a.logEvents(events)
	}()

	a.sup.Go("driver", func(c context.Context) error {
		defer a.sup.Cancel()
		return a.driver.Run(c, a.tasks, a.inputs, a.opts.Loop)
	})
	if a.opts.Loop {
		a.watchConfig()
	}
	a.sup.Go("watchdog", a.sd.watchdog)
	a.sd.ready()

	err := a.sup.Wait(context.Background())
	a.sd.stopping()
	unsub()
	<-eventsDone

	if err != nil && !errors.Is(err, context.Canceled) {
		a.log.Error(err.Error())
	}
	a.log.Debug("Stopped.")
	if cerr := a.logs.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// logEvents turns task lifecycle events into the application log lines. It
// returns once the subscription is closed.
func (a *App) logEvents(events <-chan eventbus.Event) {
	for e := range events {
		ev, ok := e.Data.(task.Event)
		if !ok {
			continue
		}
		switch e.Type {
		case eventbus.TaskBegin:
			a.log.Infof("Running '%s' task.", ev.Name)
		case eventbus.TaskComplete:
			a.log.Infof("'%s' finished.", ev.Name)
		}
	}
}

func (a *App) watchConfig() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch,
		supervisor.WithRestartBackoff(time.Second, 30*time.Second))
}

// applyConfig applies a reloaded config. Engine, scheduler and log settings
// take effect from the next batch; task definitions and the queries file
// are only read at startup.
func (a *App) applyConfig(prev, next *config.Config) {
	ch := config.SummarizeConfigChange(prev, next)
	if ch.Empty() {
		a.log.Debug("Config reloaded without effective changes.")
		return
	}

	lc := mapLogConfig(a.opts.ConfigPath, next, a.opts.ConsoleLevel, nil)
	a.logs.SetConsoleLevel(lc.ConsoleLevel)
	a.logs.SetFileLevel(lc.FileLevel)
	a.logs.SetMaxFileSize(lc.MaxFileSize)

	a.engine.Apply(mapEngineConfig(next))
	if err := a.driver.Apply(mapSchedulerConfig(next)); err != nil {
		a.log.Warnf("Keeping previous schedule: %v", err)
	}

	for _, s := range ch.Sections {
		switch s {
		case "tasks", "task_timeout", "queries":
			a.log.Warnf("Config section '%s' changed; restart to apply it.", s)
		}
	}
	if len(ch.Tasks) > 0 {
		a.log.Debugf("Changed tasks: %s", strings.Join(ch.Tasks, ", "))
	}
	a.log.Infof("Config reloaded (%s).", ch)
}

// Snapshot is a point-in-time view of the runner and the driver.
type Snapshot struct {
	Engine    engine.Snapshot
	Scheduler scheduler.Snapshot
}

func (a *App) Snapshot() Snapshot {
	return Snapshot{Engine: a.engine.Snapshot(), Scheduler: a.driver.Snapshot()}
}
