// Package duration computes active recording time from wall-clock
// timestamps, excluding paused intervals.
package duration

import "time"

// Accountant tracks elapsed active time across an arbitrary sequence of
// pause/resume cycles. Each paused interval is added to the accumulator
// exactly once, when it ends. Not safe for concurrent use; callers serialise
// access (the capture controller holds its own lock).
type Accountant struct {
	startedAt   time.Time
	pausedAt    time.Time
	stoppedAt   time.Time
	pausedAccum time.Duration
	started     bool
	paused      bool
	stopped     bool
}

// Start begins a new accounting window at now, discarding previous state.
func (a *Accountant) Start(now time.Time) {
	*a = Accountant{startedAt: now, started: true}
}

// Pause freezes accounting at now. Returns false if not running.
func (a *Accountant) Pause(now time.Time) bool {
	if !a.started || a.paused || a.stopped {
		return false
	}
	a.pausedAt = now
	a.paused = true
	return true
}

// Resume adds the span since the matching Pause to the paused total.
// Returns false if not paused.
func (a *Accountant) Resume(now time.Time) bool {
	if !a.paused || a.stopped {
		return false
	}
	a.pausedAccum += nonNegative(now.Sub(a.pausedAt))
	a.pausedAt = time.Time{}
	a.paused = false
	return true
}

// Stop closes the window at now. Stopping while paused closes the open pause
// interval first, so the result equals the value frozen at Pause.
func (a *Accountant) Stop(now time.Time) time.Duration {
	if !a.started {
		return 0
	}
	if a.stopped {
		return a.Elapsed(now)
	}
	if a.paused {
		a.Resume(now)
	}
	a.stoppedAt = now
	a.stopped = true
	return a.Elapsed(now)
}

// Reset returns the accountant to its zero state.
func (a *Accountant) Reset() {
	*a = Accountant{}
}

// Elapsed returns now - startedAt - pausedAccum, frozen while paused and
// after Stop.
func (a *Accountant) Elapsed(now time.Time) time.Duration {
	if !a.started {
		return 0
	}
	end := now
	switch {
	case a.stopped:
		end = a.stoppedAt
	case a.paused:
		end = a.pausedAt
	}
	return nonNegative(end.Sub(a.startedAt) - a.pausedAccum)
}

// ElapsedSeconds is Elapsed truncated to whole seconds, the granularity the
// per-second sampler reports.
func (a *Accountant) ElapsedSeconds(now time.Time) int {
	return int(a.Elapsed(now) / time.Second)
}

// PausedTotal returns the accumulated paused time of closed pause intervals.
func (a *Accountant) PausedTotal() time.Duration { return a.pausedAccum }

// StartedAt returns the start of the current window.
func (a *Accountant) StartedAt() time.Time { return a.startedAt }

// Paused reports whether a pause interval is open.
func (a *Accountant) Paused() bool { return a.paused }

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
