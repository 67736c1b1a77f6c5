//go:build windows
// +build windows

package hrtime

import "time"

var (
	GoMonotonicClock Clock = &goNonSysClockTime{}

	appStartTime       time.Time
	goMonotonicStartTs int64
)

func init() {
	appStartTime = time.Now()
	goMonotonicStartTs = appStartTime.UnixNano()
}

func MonotonicNanos() int64 {
	return GoMonotonicClock.MonotonicNanos()
}

func MonotonicElapsed() time.Duration {
	return time.Since(appStartTime)
}

type goNonSysClockTime struct{}

func (g *goNonSysClockTime) MonotonicNanos() int64 {
	return goMonotonicStartTs + time.Since(appStartTime).Nanoseconds()
}

func (g *goNonSysClockTime) MonotonicElapsed() time.Duration {
	return time.Since(appStartTime)
}
