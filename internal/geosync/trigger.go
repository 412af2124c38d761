package geosync

import (
	"context"
	"sync/atomic"
)

// Trigger is the refresh control's in-flight flag. A Fire while another is
// running returns immediately without calling run.
type Trigger struct {
	run      func(context.Context) error
	inFlight atomic.Bool
}

// NewTrigger wraps run.
func NewTrigger(run func(context.Context) error) *Trigger {
	return &Trigger{run: run}
}

// Fire runs the wrapped function unless a run is already in flight.
// ran reports whether it was called.
func (t *Trigger) Fire(ctx context.Context) (ran bool, err error) {
	if !t.inFlight.CompareAndSwap(false, true) {
		return false, nil
	}
	defer t.inFlight.Store(false)
	return true, t.run(ctx)
}

// InFlight reports whether a run is in progress.
func (t *Trigger) InFlight() bool {
	return t.inFlight.Load()
}
