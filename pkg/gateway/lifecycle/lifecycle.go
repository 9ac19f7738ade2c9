// Package lifecycle holds process-wide serving state shared by handlers.
package lifecycle

import (
	"sync/atomic"
	"time"
)

// State tracks whether the process is draining and when it started.
type State struct {
	startedAt  time.Time
	drainingAt atomic.Int64
}

func New(now time.Time) *State {
	return &State{startedAt: now}
}

// BeginDrain marks the process as draining. It reports false if draining had
// already begun.
func (s *State) BeginDrain(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.drainingAt.CompareAndSwap(0, now.UnixNano())
}

func (s *State) Draining() bool {
	return s != nil && s.drainingAt.Load() != 0
}

func (s *State) Uptime(now time.Time) time.Duration {
	if s == nil || s.startedAt.IsZero() {
		return 0
	}
	return now.Sub(s.startedAt)
}
