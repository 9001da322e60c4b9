package playback

import (
	"sync/atomic"
	"time"
)

// AudioClock holds the presentation timestamp of the most recent audio
// packet that carried one. The decode goroutine is the only writer; any
// number of goroutines may read it.
type AudioClock struct {
	pts      atomic.Int64
	timeBase Rational
}

// NewAudioClock returns a clock that has not observed any timestamp yet.
func NewAudioClock(timeBase Rational) *AudioClock {
	c := &AudioClock{timeBase: timeBase}
	c.pts.Store(NoPTS)
	return c
}

// Observe records pts unless it is NoPTS. It reports whether the clock moved.
func (c *AudioClock) Observe(pts int64) bool {
	if pts == NoPTS {
		return false
	}
	c.pts.Store(pts)
	return true
}

// PTS returns the last observed timestamp in stream ticks, or NoPTS.
func (c *AudioClock) PTS() int64 { return c.pts.Load() }

// Valid reports whether a timestamp has been observed.
func (c *AudioClock) Valid() bool { return c.pts.Load() != NoPTS }

// TimeBase returns the time base of the audio stream.
func (c *AudioClock) TimeBase() Rational { return c.timeBase }

// Time returns the clock as a duration since stream start. It is zero
// before the first timestamp is observed.
func (c *AudioClock) Time() time.Duration {
	return c.timeBase.Duration(c.pts.Load())
}

// Reset forgets the observed timestamp.
func (c *AudioClock) Reset() { c.pts.Store(NoPTS) }
