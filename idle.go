package match

import (
	"runtime"
	"time"
)

// IdleStrategy decides how the engine loop waits when the inbound queue is
// empty. Pluggable so tests can run with a no-op strategy.
type IdleStrategy interface {
	Idle()
}

// SleepIdle sleeps for a fixed duration between polls.
type SleepIdle struct {
	Duration time.Duration
}

// Idle implements IdleStrategy.
func (s SleepIdle) Idle() {
	time.Sleep(s.Duration)
}

// YieldIdle yields the processor between polls, trading CPU for latency.
type YieldIdle struct{}

// Idle implements IdleStrategy.
func (YieldIdle) Idle() {
	runtime.Gosched()
}

// NoopIdle never waits. Only suitable for tests and benchmarks.
type NoopIdle struct{}

// Idle implements IdleStrategy.
func (NoopIdle) Idle() {}
