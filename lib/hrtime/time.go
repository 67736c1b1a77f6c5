//go:build !windows
// +build !windows

package hrtime

import (
	"time"

	"github.com/samber/lo"
	"golang.org/x/sys/unix"
)

// CLOCK_MONOTONIC instead of a cycle counter: immune to frequency
// scaling and stable across CPU sockets, at the cost of a vDSO call.

var (
	UnixMonotonicClock Clock = &unixNonSysClockTime{}
	GoMonotonicClock   Clock = &goNonSysClockTime{}

	appStartTime       time.Time
	goMonotonicStartTs int64
)

func init() {
	appStartTime = time.Now()
	goMonotonicStartTs = appStartTime.UnixNano()
}

// MonotonicNanos is the package default source, backed by the unix
// clock.
func MonotonicNanos() int64 {
	return UnixMonotonicClock.MonotonicNanos()
}

func MonotonicElapsed() time.Duration {
	return time.Since(appStartTime)
}

type unixNonSysClockTime struct{}

func (u *unixNonSysClockTime) MonotonicNanos() int64 {
	ts := unix.Timespec{}
	lo.Must0(unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts))
	return ts.Nano()
}

func (u *unixNonSysClockTime) MonotonicElapsed() time.Duration {
	return MonotonicElapsed()
}

// goNonSysClockTime reads through the Go runtime clock. Offsetting by
// the start wall timestamp keeps readings far from zero.
type goNonSysClockTime struct{}

func (g *goNonSysClockTime) MonotonicNanos() int64 {
	return goMonotonicStartTs + time.Since(appStartTime).Nanoseconds()
}

func (g *goNonSysClockTime) MonotonicElapsed() time.Duration {
	return time.Since(appStartTime)
}
