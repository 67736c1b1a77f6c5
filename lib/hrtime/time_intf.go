package hrtime

import "time"

// Clock is a monotonic time source. Readings from one clock are
// comparable with each other; never mix readings across clocks.
type Clock interface {
	// MonotonicNanos returns a strictly positive, non-decreasing
	// nanosecond reading. Zero is reserved as an out-of-band value
	// for consumers.
	MonotonicNanos() int64
	MonotonicElapsed() time.Duration
}
