package playback

import (
	"errors"
	"fmt"
)

// Converter turns a decoded video frame into the layout the consumer
// renders. Implementations may reuse output buffers between calls.
type Converter interface {
	Convert(src *VideoFrame) (*VideoFrame, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(src *VideoFrame) (*VideoFrame, error)

// Convert implements Converter.
func (f ConverterFunc) Convert(src *VideoFrame) (*VideoFrame, error) { return f(src) }

// Passthrough is a Converter that hands frames through unchanged.
type Passthrough struct{}

// Convert implements Converter.
func (Passthrough) Convert(src *VideoFrame) (*VideoFrame, error) { return src, nil }

// ConvertErrorPolicy selects what the decode loop does when a video frame
// cannot be converted.
type ConvertErrorPolicy int

const (
	// ConvertErrorFatal stops the decode loop with the conversion error.
	ConvertErrorFatal ConvertErrorPolicy = iota
	// ConvertErrorDrop discards the frame and keeps decoding.
	ConvertErrorDrop
)

func (p ConvertErrorPolicy) String() string {
	switch p {
	case ConvertErrorFatal:
		return "fatal"
	case ConvertErrorDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// ParseConvertErrorPolicy maps a configuration name to a policy.
func ParseConvertErrorPolicy(s string) (ConvertErrorPolicy, error) {
	switch s {
	case "", "fatal":
		return ConvertErrorFatal, nil
	case "drop":
		return ConvertErrorDrop, nil
	}
	return ConvertErrorFatal, fmt.Errorf("unknown conversion error policy %q", s)
}

// ConvertFrame runs c on src and stamps the result with the source frame's
// timestamps.
//
// A nil converter, or one that reports it was never set up, fails with
// ErrConverterNotInitialized. Any other failure is returned as a
// *ConversionError. No frame is returned on error.
func ConvertFrame(c Converter, src *VideoFrame) (*VideoFrame, error) {
	if c == nil {
		return nil, ErrConverterNotInitialized
	}
	out, err := c.Convert(src)
	if err != nil {
		if errors.Is(err, ErrConverterNotInitialized) {
			return nil, err
		}
		return nil, &ConversionError{Err: err}
	}
	if out == nil {
		return nil, &ConversionError{Err: errors.New("converter returned no frame")}
	}
	out.PTS = src.PTS
	out.DTS = src.DTS
	out.Duration = src.Duration
	out.Keyframe = src.Keyframe
	return out, nil
}
