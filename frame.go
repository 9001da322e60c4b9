// Core frame types produced by the decode pipeline.
package playback

import (
	"math"
	"sync"
	"time"
)

// NoPTS marks an undefined presentation or decode timestamp.
// It has the same value as FFmpeg's AV_NOPTS_VALUE.
const NoPTS int64 = math.MinInt64

// PixelFormat represents video pixel formats.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatI420                // YUV 4:2:0 planar (Y + U + V)
	PixelFormatNV12                // YUV 4:2:0 semi-planar (Y + interleaved UV)
	PixelFormatRGBA32              // Packed RGBA, 4 bytes per pixel
	PixelFormatBGRA32              // Packed BGRA, 4 bytes per pixel
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatI420:
		return "I420"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatBGRA32:
		return "BGRA32"
	default:
		return "Unknown"
	}
}

// ParsePixelFormat maps a configuration name to a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, bool) {
	switch s {
	case "i420", "I420", "yuv420p":
		return PixelFormatI420, true
	case "nv12", "NV12":
		return PixelFormatNV12, true
	case "rgba", "RGBA", "RGBA32":
		return PixelFormatRGBA32, true
	case "bgra", "BGRA", "BGRA32":
		return PixelFormatBGRA32, true
	}
	return PixelFormatUnknown, false
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3
	case PixelFormatNV12:
		return 2
	case PixelFormatRGBA32, PixelFormatBGRA32:
		return 1
	default:
		return 0
	}
}

// AudioFormat represents audio sample formats.
type AudioFormat int

const (
	AudioFormatS16 AudioFormat = iota // Signed 16-bit PCM, interleaved
	AudioFormatF32                    // 32-bit float, interleaved
	AudioFormatF32Planar              // 32-bit float, one plane per channel
	AudioFormatS16Planar              // Signed 16-bit PCM, one plane per channel
	AudioFormatS32                    // Signed 32-bit PCM, interleaved
	AudioFormatS32Planar              // Signed 32-bit PCM, one plane per channel
)

func (a AudioFormat) String() string {
	switch a {
	case AudioFormatS16:
		return "S16"
	case AudioFormatF32:
		return "F32"
	case AudioFormatF32Planar:
		return "F32P"
	case AudioFormatS16Planar:
		return "S16P"
	case AudioFormatS32:
		return "S32"
	case AudioFormatS32Planar:
		return "S32P"
	default:
		return "Unknown"
	}
}

// BytesPerSample returns the number of bytes per sample for this format.
func (a AudioFormat) BytesPerSample() int {
	switch a {
	case AudioFormatS16, AudioFormatS16Planar:
		return 2
	case AudioFormatF32, AudioFormatF32Planar, AudioFormatS32, AudioFormatS32Planar:
		return 4
	default:
		return 0
	}
}

// Rational is a time base expressed as Num/Den seconds per tick.
type Rational struct {
	Num int
	Den int
}

// Valid reports whether the time base can be used for conversion.
func (r Rational) Valid() bool { return r.Num > 0 && r.Den > 0 }

// Duration converts ticks to wall-clock time. Undefined timestamps and
// invalid time bases yield zero.
func (r Rational) Duration(ticks int64) time.Duration {
	if ticks == NoPTS || !r.Valid() {
		return 0
	}
	return time.Duration(float64(ticks) * float64(r.Num) / float64(r.Den) * float64(time.Second))
}

// Releaser is implemented by frames and packets that hold resources which
// must be returned when the value is dropped (native buffers, pooled memory).
type Releaser interface {
	Release()
}

// releaseHook runs a release function at most once.
type releaseHook struct {
	once sync.Once
	fn   func()
}

func (h *releaseHook) release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.fn != nil {
			h.fn()
		}
	})
}

// VideoFrame represents a decoded video frame.
// The Data slices may point to memory owned by a native decoder; such frames
// carry a release hook and are only valid until Release is called.
type VideoFrame struct {
	Data     [][]byte    // Plane data (1-3 planes depending on format)
	Stride   []int       // Stride for each plane in bytes
	Width    int         // Frame width in pixels
	Height   int         // Frame height in pixels
	Format   PixelFormat // Pixel format
	PTS      int64       // Presentation timestamp in stream time base
	DTS      int64       // Decode timestamp in stream time base
	Duration int64       // Frame duration in stream time base (optional)
	Keyframe bool

	// Opaque carries the decoder's native frame, if any. It is valid until
	// Release and is not copied by Clone.
	Opaque any

	hook *releaseHook
}

// SetRelease attaches fn as the frame's release hook.
func (f *VideoFrame) SetRelease(fn func()) {
	f.hook = &releaseHook{fn: fn}
}

// Release returns native resources held by the frame. Safe to call more than once.
func (f *VideoFrame) Release() {
	if f != nil {
		f.hook.release()
	}
}

// Clone creates a deep copy of the video frame without its release hook.
// Use this when you need to keep the frame data beyond its original lifetime.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Data:     make([][]byte, len(f.Data)),
		Stride:   make([]int, len(f.Stride)),
		Width:    f.Width,
		Height:   f.Height,
		Format:   f.Format,
		PTS:      f.PTS,
		DTS:      f.DTS,
		Duration: f.Duration,
		Keyframe: f.Keyframe,
	}
	copy(clone.Stride, f.Stride)
	for i, plane := range f.Data {
		if plane != nil {
			clone.Data[i] = make([]byte, len(plane))
			copy(clone.Data[i], plane)
		}
	}
	return clone
}

// I420Size returns the total buffer size needed for an I420 frame.
func I420Size(width, height int) int {
	ySize := width * height
	uvSize := ((width + 1) / 2) * ((height + 1) / 2)
	return ySize + uvSize*2
}

// AudioFrame represents decoded audio samples.
type AudioFrame struct {
	Data        []byte      // Sample data
	SampleRate  int         // Sample rate (e.g., 48000)
	Channels    int         // Number of channels (1 = mono, 2 = stereo)
	SampleCount int         // Number of samples (per channel)
	Format      AudioFormat // Sample format
	PTS         int64       // Presentation timestamp in stream time base
	DTS         int64       // Decode timestamp in stream time base

	hook *releaseHook
}

// SetRelease attaches fn as the frame's release hook.
func (f *AudioFrame) SetRelease(fn func()) {
	f.hook = &releaseHook{fn: fn}
}

// Release returns native resources held by the frame. Safe to call more than once.
func (f *AudioFrame) Release() {
	if f != nil {
		f.hook.release()
	}
}

// Clone creates a deep copy of the audio frame without its release hook.
func (f *AudioFrame) Clone() *AudioFrame {
	clone := &AudioFrame{
		SampleRate:  f.SampleRate,
		Channels:    f.Channels,
		SampleCount: f.SampleCount,
		Format:      f.Format,
		PTS:         f.PTS,
		DTS:         f.DTS,
	}
	if f.Data != nil {
		clone.Data = make([]byte, len(f.Data))
		copy(clone.Data, f.Data)
	}
	return clone
}

// Duration returns the playback duration of the samples.
func (f *AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SampleCount) * time.Second / time.Duration(f.SampleRate)
}
