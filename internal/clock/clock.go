// Package clock provides monotonic phase timing for the audit entry's
// per-phase latency breakdown. Standard-library only: time.Since over a
// monotonic time.Time is the entire need and the reference corpus has no
// dedicated timing library for this — pulling one in would add a
// dependency for a single subtraction.
package clock

import "time"

// Phase measures elapsed wall-clock time for one named stage of the
// pipeline (matcher, each action, total).
type Phase struct {
	name  string
	start time.Time
}

// Start begins timing a phase.
func Start(name string) Phase {
	return Phase{name: name, start: time.Now()}
}

// Name returns the phase's name.
func (p Phase) Name() string { return p.name }

// ElapsedMillis returns the elapsed time in milliseconds since Start.
func (p Phase) ElapsedMillis() int64 {
	return time.Since(p.start).Milliseconds()
}

// Elapsed returns the elapsed duration since Start.
func (p Phase) Elapsed() time.Duration {
	return time.Since(p.start)
}
