package publish

import "time"

// Window mirrors the server's publish schedule: slots every Every minutes
// from midnight, open Slack either side of each slot, compared at minute
// precision in local time. It is advisory; the server decides.
type Window struct {
	Every time.Duration
	Slack time.Duration
}

// DefaultWindow is the schedule the server ships with.
var DefaultWindow = Window{Every: 30 * time.Minute, Slack: 3 * time.Minute}

// Allowed reports whether t falls inside a publish window.
func (w Window) Allowed(t time.Time) bool {
	every := int(w.Every / time.Minute)
	slack := int(w.Slack / time.Minute)
	if every <= 0 {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	// The server checks slots within the same day only, so a slot never
	// opens before midnight.
	for slot := 0; slot < 24*60; slot += every {
		if slot-slack <= m && m <= slot+slack {
			return true
		}
	}
	return false
}

// Next returns the first minute at or after t that is inside a window.
func (w Window) Next(t time.Time) time.Time {
	cur := t.Truncate(time.Minute)
	if w.Allowed(t) {
		return t
	}
	for i := 0; i < 2*24*60; i++ {
		cur = cur.Add(time.Minute)
		if w.Allowed(cur) {
			return cur
		}
	}
	return t
}
