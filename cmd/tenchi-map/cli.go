package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/m-tsuru/tenchi-geolocation/internal/dispatcher"
	"github.com/m-tsuru/tenchi-geolocation/internal/logging"
)

const commandHelp = `  refresh                  reload team locations onto the map
  publish                  send the current position
  locate [lat,lng]         read the device position, or set it by hand
  whoami                   show the signed-in user and team
  status                   print the status report
  rename-team <name>       rename the signed-in team
  rename-user <name>       rename the signed-in user
  login-url                print the sign-in page
  history [limit]          list recorded snapshots, newest first
  flush-history            write queued history now
`

// exec runs one command to completion and prints its result.
func (a *app) exec(ctx context.Context, args []string) error {
	return a.execLine(ctx, a.stdout, args)
}

func (a *app) execLine(ctx context.Context, out io.Writer, args []string) error {
	if len(args) == 0 {
		return nil
	}
	ctx = logging.AppendCtx(ctx, slog.String("command", args[0]))
	result, err := a.dispatch.Call(ctx, dispatcher.Event{Command: args[0], Args: args[1:]})
	if err != nil {
		return err
	}
	printResult(out, result)
	return nil
}

func printResult(out io.Writer, result any) {
	switch r := result.(type) {
	case nil:
	case string:
		if r == "" {
			return
		}
		fmt.Fprintln(out, strings.TrimRight(r, "\n"))
	case fmt.Stringer:
		fmt.Fprintln(out, r.String())
	default:
		fmt.Fprintf(out, "%+v\n", r)
	}
}

// watch refreshes on the configured interval and runs commands read from
// stdin until ctx is done. The map keeps refreshing after stdin closes.
func (a *app) watch(ctx context.Context, stdin io.Reader) error {
	if err := a.monitor.Start(); err != nil {
		a.logger.Warn("monitor not started", "error", err)
	}

	if _, err := a.dispatch.Dispatch(ctx, dispatcher.Event{Command: "refresh"}); err != nil {
		a.logger.Error("initial refresh failed", "error", err)
	}

	lines := make(chan string)
	go readLines(ctx, stdin, lines)

	ticker := a.clock.NewTicker(a.settings.Watch.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if _, err := a.dispatch.Dispatch(ctx, dispatcher.Event{Command: "refresh"}); err != nil {
				a.logger.Error("scheduled refresh failed", "error", err)
			}
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if err := a.execLine(ctx, a.stdout, strings.Fields(line)); err != nil {
				fmt.Fprintln(a.stdout, "error:", err)
			}
		}
	}
}

func readLines(ctx context.Context, r io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		select {
		case out <- scanner.Text():
		case <-ctx.Done():
			return
		}
	}
}
