package worker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/m-tsuru/tenchi-geolocation/internal/dispatcher"
	"github.com/m-tsuru/tenchi-geolocation/internal/render"
)

// DefaultHistoryLimit is the number of snapshots "history" lists without an
// argument.
const DefaultHistoryLimit = 10

// RegisterHandlers registers the history commands with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register("history", m.handleHistory, dispatcher.Logged())
	d.Register("flush-history", m.handleFlush, dispatcher.Logged())
}

func (m *Manager) handleFlush(_ context.Context, _ dispatcher.Event) (any, error) {
	if err := m.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush history: %w", err)
	}
	return fmt.Sprintf("%d items written", m.Written()), nil
}

func (m *Manager) handleHistory(_ context.Context, e dispatcher.Event) (any, error) {
	limit := DefaultHistoryLimit
	if len(e.Args) > 0 {
		n, err := strconv.Atoi(e.Args[0])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid history limit %q", e.Args[0])
		}
		limit = n
	}

	// pending snapshots are readable once written
	if err := m.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush history: %w", err)
	}

	snapshots, err := m.History(limit)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, s := range snapshots {
		fmt.Fprintf(&b, "%s  %s  teams=%d skipped=%d",
			s.TakenAt.Format(render.TimestampLayout), s.ID, len(s.Records), s.Skipped)
		if s.OwnTeam != "" {
			fmt.Fprintf(&b, " own=%s", s.OwnTeam)
		}
		b.WriteByte('\n')
	}
	return b.String(), nil
}
