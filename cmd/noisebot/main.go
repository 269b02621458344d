package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/fatih/color"

	"noisebot/internal/app"
	"noisebot/internal/config"
	"noisebot/internal/task"
	"noisebot/plugins/httpsearch"
	"noisebot/plugins/shell"
)

var (
	cli = kingpin.New("noisebot", "Runs search tasks with random queries to add noise to your traffic.")

	cfgPath     = cli.Flag("config", "A configuration file to use in place of the one in your home directory.").Short('c').String()
	queriesPath = cli.Flag("queries", "A list of search terms to pass to tasks, one per line.").Short('q').String()
	verbose     = cli.Flag("verbose", "Display verbose output. The level defaults to 'verbose' when omitted.").Short('v').String()
	loop        = cli.Flag("loop", "Run in a loop even if the process is not a daemon.").Short('l').Bool()
	daemonize   = cli.Flag("daemonize", "Run as a service: loop forever and notify systemd.").Short('d').Bool()
)

func main() {
	kingpin.MustParse(cli.Parse(normalizeVerbose(os.Args[1:])))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "fatal: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	if err := config.LoadDotenv(".env"); err != nil {
		return err
	}
	env, err := config.LoadEnv()
	if err != nil {
		return err
	}

	path := strings.TrimSpace(*cfgPath)
	if path == "" {
		path = strings.TrimSpace(env.Config)
	}
	if path == "" {
		path = config.DefaultPath()
	}

	a, err := app.NewApp(app.Options{
		ConfigPath:   path,
		QueriesPath:  *queriesPath,
		ConsoleLevel: *verbose,
		Loop:         *loop || *daemonize,
		Notify:       *daemonize,
		Env:          env,
		Kinds: []task.Kind{
			shell.New(),
			httpsearch.New(),
		},
	})
	if err != nil {
		return err
	}
	return a.Run(ctx)
}

// normalizeVerbose lets -v/--verbose be given without a level, in which
// case it means "verbose".
func normalizeVerbose(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a != "-v" && a != "--verbose" {
			out = append(out, a)
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			out = append(out, "--verbose="+args[i+1])
			i++
			continue
		}
		out = append(out, "--verbose=verbose")
	}
	return out
}
