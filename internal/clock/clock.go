// ABOUTME: Monotonic high-precision local clock
// ABOUTME: Provides microsecond local time that never goes backwards
package clock

import (
	"log"
	"sync/atomic"
	"time"
)

// resolutionProbeWarnUs is the resolution below which construction logs a
// warning; the system stays functional but sync quality degrades.
const resolutionProbeWarnUs = 100

// Clock provides microsecond-resolution local time guaranteed never to
// decrease, even if the underlying platform timer is observed to go
// backwards (e.g. across a VM suspend/resume).
//
// The core never uses wall-clock time for scheduling decisions; every
// caller that needs "now" for a playback or sync decision goes through
// this type instead of time.Now().
type Clock struct {
	epoch    time.Time // monotonic reference captured at construction
	epochUs  int64     // wall-clock microseconds at epoch
	lastUs   int64     // last value returned by Now, for clamping
}

// New creates a Clock and probes the platform timer's resolution, logging
// a warning if it is coarser than resolutionProbeWarnUs.
func New() *Clock {
	c := &Clock{
		epoch:   time.Now(),
		epochUs: time.Now().UnixMicro(),
	}

	if res := probeResolutionUs(); res > resolutionProbeWarnUs {
		log.Printf("clock: platform timer resolution ~%dus exceeds %dus; sync quality may degrade", res, resolutionProbeWarnUs)
	}

	return c
}

// NowUs returns the current local time in microseconds. It is guaranteed
// non-decreasing across calls from any goroutine.
func (c *Clock) NowUs() int64 {
	elapsed := time.Since(c.epoch)
	candidate := c.epochUs + elapsed.Microseconds()

	for {
		last := atomic.LoadInt64(&c.lastUs)
		if candidate <= last {
			return last
		}
		if atomic.CompareAndSwapInt64(&c.lastUs, last, candidate) {
			return candidate
		}
	}
}

// probeResolutionUs samples back-to-back clock reads to estimate the
// smallest observable time step, in microseconds.
func probeResolutionUs() int64 {
	const samples = 20
	smallest := int64(1 << 62)

	prev := time.Now()
	for i := 0; i < samples; i++ {
		now := time.Now()
		if d := now.Sub(prev).Microseconds(); d > 0 && d < smallest {
			smallest = d
		}
		prev = now
	}

	if smallest == int64(1<<62) {
		return 0
	}
	return smallest
}
