package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/m-tsuru/tenchi-geolocation/internal/config"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	ProgramName string = "tenchi_map"
)

// shutdownTimeout bounds how long queued commands may run after the last
// one is issued.
const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options are the command line flags.
type options struct {
	configDir string
	envFile   string
	logLevel  string
	watch     bool
	args      []string
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := pflag.NewFlagSet(ProgramName, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&o.configDir, "config-dir", "c", ".", "directory holding "+config.FileName)
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before the config")
	fs.StringVarP(&o.logLevel, "log-level", "l", "", "override logLevel (debug, info, warn, error)")
	fs.BoolVarP(&o.watch, "watch", "w", false, "keep the map in sync and read commands from stdin")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags] [command [args...]]\n\nCommands:\n%s\nFlags:\n", ProgramName, commandHelp)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.args = fs.Args()
	if !o.watch && len(o.args) == 0 {
		fs.Usage()
		return o, errors.New("no command given")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	// a missing .env is normal
	_ = godotenv.Load(opts.envFile)

	if err := config.Load(opts.configDir); err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		viper.Set("logLevel", opts.logLevel)
	}
	settings, err := config.Get()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	a, err := newApp(settings, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.close()

	if opts.watch {
		if err := a.watch(ctx, stdin); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("watch stopped", "error", err)
			return 1
		}
		return 0
	}

	if err := a.exec(ctx, opts.args); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	return 0
}
