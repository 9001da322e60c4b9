package playback

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// VideoCodec identifies the video codec type.
type VideoCodec int

const (
	VideoCodecUnknown VideoCodec = iota
	VideoCodecVP8
	VideoCodecVP9
	VideoCodecH264
	VideoCodecH265
	VideoCodecAV1
)

func (c VideoCodec) String() string {
	switch c {
	case VideoCodecVP8:
		return "VP8"
	case VideoCodecVP9:
		return "VP9"
	case VideoCodecH264:
		return "H264"
	case VideoCodecH265:
		return "H265"
	case VideoCodecAV1:
		return "AV1"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c VideoCodec) MimeType() string {
	switch c {
	case VideoCodecVP8:
		return "video/VP8"
	case VideoCodecVP9:
		return "video/VP9"
	case VideoCodecH264:
		return "video/H264"
	case VideoCodecH265:
		return "video/H265"
	case VideoCodecAV1:
		return "video/AV1"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c VideoCodec) ClockRate() uint32 {
	// All video codecs use 90kHz clock
	return 90000
}

// TimeBase returns the time base of RTP timestamps for this codec.
func (c VideoCodec) TimeBase() Rational {
	return Rational{Num: 1, Den: int(c.ClockRate())}
}

// VideoCodecFromMime maps a MIME type such as "video/VP8" to a codec.
// Matching is case-insensitive.
func VideoCodecFromMime(mime string) VideoCodec {
	for c := VideoCodecVP8; c <= VideoCodecAV1; c++ {
		if strings.EqualFold(c.MimeType(), mime) {
			return c
		}
	}
	return VideoCodecUnknown
}

// AudioCodec identifies the audio codec type.
type AudioCodec int

const (
	AudioCodecUnknown AudioCodec = iota
	AudioCodecOpus
	AudioCodecG711A // A-law (PCMA)
	AudioCodecG711U // mu-law (PCMU)
	AudioCodecAAC
)

func (c AudioCodec) String() string {
	switch c {
	case AudioCodecOpus:
		return "Opus"
	case AudioCodecG711A:
		return "PCMA"
	case AudioCodecG711U:
		return "PCMU"
	case AudioCodecAAC:
		return "AAC"
	default:
		return "Unknown"
	}
}

// MimeType returns the MIME type for this codec.
func (c AudioCodec) MimeType() string {
	switch c {
	case AudioCodecOpus:
		return "audio/opus"
	case AudioCodecG711A:
		return "audio/PCMA"
	case AudioCodecG711U:
		return "audio/PCMU"
	case AudioCodecAAC:
		return "audio/AAC"
	default:
		return ""
	}
}

// ClockRate returns the RTP clock rate for this codec.
func (c AudioCodec) ClockRate() uint32 {
	switch c {
	case AudioCodecG711A, AudioCodecG711U:
		return 8000
	default:
		return 48000
	}
}

// TimeBase returns the time base of RTP timestamps for this codec.
func (c AudioCodec) TimeBase() Rational {
	return Rational{Num: 1, Den: int(c.ClockRate())}
}

// AudioCodecFromMime maps a MIME type such as "audio/opus" to a codec.
// Matching is case-insensitive.
func AudioCodecFromMime(mime string) AudioCodec {
	for c := AudioCodecOpus; c <= AudioCodecAAC; c++ {
		if strings.EqualFold(c.MimeType(), mime) {
			return c
		}
	}
	return AudioCodecUnknown
}

// --- Registry ---

type (
	videoDecoderFactory func() (VideoDecoder, error)
	audioDecoderFactory func() (AudioDecoder, error)
)

type decoderRegistry struct {
	mu    sync.RWMutex
	video map[VideoCodec]videoDecoderFactory
	audio map[AudioCodec]audioDecoderFactory
}

var globalDecoderRegistry = &decoderRegistry{
	video: make(map[VideoCodec]videoDecoderFactory),
	audio: make(map[AudioCodec]audioDecoderFactory),
}

// RegisterVideoDecoder makes factory the decoder for codec, replacing any
// earlier registration. Native decoders register themselves from init when
// their library can be loaded.
func RegisterVideoDecoder(codec VideoCodec, factory func() (VideoDecoder, error)) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()
	globalDecoderRegistry.video[codec] = factory
}

// RegisterAudioDecoder makes factory the decoder for codec.
func RegisterAudioDecoder(codec AudioCodec, factory func() (AudioDecoder, error)) {
	globalDecoderRegistry.mu.Lock()
	defer globalDecoderRegistry.mu.Unlock()
	globalDecoderRegistry.audio[codec] = factory
}

// NewVideoDecoder creates a decoder for codec from the registry.
func NewVideoDecoder(codec VideoCodec) (VideoDecoder, error) {
	globalDecoderRegistry.mu.RLock()
	factory, ok := globalDecoderRegistry.video[codec]
	globalDecoderRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s: %w", codec, ErrNotSupported)
	}
	return factory()
}

// NewAudioDecoder creates a decoder for codec from the registry.
func NewAudioDecoder(codec AudioCodec) (AudioDecoder, error) {
	globalDecoderRegistry.mu.RLock()
	factory, ok := globalDecoderRegistry.audio[codec]
	globalDecoderRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no decoder for %s: %w", codec, ErrNotSupported)
	}
	return factory()
}

// AvailableVideoDecoders lists the codecs with a registered decoder.
func AvailableVideoDecoders() []VideoCodec {
	globalDecoderRegistry.mu.RLock()
	defer globalDecoderRegistry.mu.RUnlock()
	codecs := make([]VideoCodec, 0, len(globalDecoderRegistry.video))
	for c := range globalDecoderRegistry.video {
		codecs = append(codecs, c)
	}
	sort.Slice(codecs, func(i, j int) bool { return codecs[i] < codecs[j] })
	return codecs
}

// AvailableAudioDecoders lists the codecs with a registered decoder.
func AvailableAudioDecoders() []AudioCodec {
	globalDecoderRegistry.mu.RLock()
	defer globalDecoderRegistry.mu.RUnlock()
	codecs := make([]AudioCodec, 0, len(globalDecoderRegistry.audio))
	for c := range globalDecoderRegistry.audio {
		codecs = append(codecs, c)
	}
	sort.Slice(codecs, func(i, j int) bool { return codecs[i] < codecs[j] })
	return codecs
}
