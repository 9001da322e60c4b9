//go:build (darwin || linux) && !noopus

// Opus decoding via libstream_opus using purego.
//
// Library locations checked (in order):
//   - STREAM_OPUS_LIB_PATH environment variable
//   - PLAYBACK_LIB_PATH environment variable (directory)
//   - next to the executable, build/ and build/ffi directories
//   - system library paths

package playback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// libstream_opus decoder function pointers
var (
	streamOpusDecoderCreate    func(sampleRate, channels int32) uint64
	streamOpusDecoderDecode    func(decoder uint64, data uintptr, dataLen int32, pcm uintptr, frameSize, decodeFEC int32) int32
	streamOpusDecoderReset     func(decoder uint64) int32
	streamOpusPacketGetSamples func(data uintptr, dataLen, sampleRate int32) int32
	streamOpusDecoderDestroy   func(decoder uint64)

	streamOpusGetError   func() uintptr
	streamOpusGetVersion func() uintptr
)

var libStreamOpus = &nativeLib{
	base:    "stream_opus",
	envPath: "STREAM_OPUS_LIB_PATH",
	symbols: func(handle uintptr) error {
		purego.RegisterLibFunc(&streamOpusDecoderCreate, handle, "stream_opus_decoder_create")
		purego.RegisterLibFunc(&streamOpusDecoderDecode, handle, "stream_opus_decoder_decode")
		purego.RegisterLibFunc(&streamOpusDecoderReset, handle, "stream_opus_decoder_reset")
		purego.RegisterLibFunc(&streamOpusPacketGetSamples, handle, "stream_opus_packet_get_samples")
		purego.RegisterLibFunc(&streamOpusDecoderDestroy, handle, "stream_opus_decoder_destroy")
		purego.RegisterLibFunc(&streamOpusGetError, handle, "stream_opus_get_error")
		purego.RegisterLibFunc(&streamOpusGetVersion, handle, "stream_opus_get_version")
		return nil
	},
}

const streamOpusOK = 0

// IsOpusAvailable checks if libstream_opus can be loaded.
func IsOpusAvailable() bool {
	return libStreamOpus.load() == nil
}

// GetOpusVersion returns the libopus version string.
func GetOpusVersion() string {
	if !IsOpusAvailable() {
		return ""
	}
	return goStringFromPtr(streamOpusGetVersion())
}

func getOpusError() string {
	if s := goStringFromPtr(streamOpusGetError()); s != "" {
		return s
	}
	return "unknown error"
}

// OpusDecoderConfig configures an Opus decoder.
type OpusDecoderConfig struct {
	SampleRate int // Output rate, 48000 when zero
	Channels   int // 1 or 2, 2 when zero
}

// OpusDecoder decodes Opus packets into interleaved S16 frames.
type OpusDecoder struct {
	handle     uint64
	sampleRate int
	channels   int
	pcm        []int16

	pending  []*AudioFrame
	draining bool

	mu sync.Mutex
}

// NewOpusDecoder creates a new Opus decoder.
func NewOpusDecoder(config OpusDecoderConfig) (*OpusDecoder, error) {
	if err := libStreamOpus.load(); err != nil {
		return nil, fmt.Errorf("Opus decoder not available: %w", err)
	}

	sampleRate := config.SampleRate
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	channels := config.Channels
	if channels <= 0 {
		channels = 2
	}
	if channels > 2 {
		return nil, fmt.Errorf("Opus supports max 2 channels, got %d", channels)
	}

	handle := streamOpusDecoderCreate(int32(sampleRate), int32(channels))
	if handle == 0 {
		return nil, fmt.Errorf("failed to create Opus decoder: %s", getOpusError())
	}

	// Room for 120ms of audio, the largest Opus frame.
	maxSamples := sampleRate * 120 / 1000 * channels
	return &OpusDecoder{
		handle:     handle,
		sampleRate: sampleRate,
		channels:   channels,
		pcm:        make([]int16, maxSamples),
	}, nil
}

// SendPacket decodes pkt. A nil or empty packet starts draining.
func (d *OpusDecoder) SendPacket(pkt *Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return errors.New("decoder not initialized")
	}
	if pkt == nil || len(pkt.Data) == 0 {
		d.draining = true
		return nil
	}

	maxFrameSize := d.sampleRate * 120 / 1000
	n := streamOpusDecoderDecode(
		d.handle,
		uintptr(unsafe.Pointer(&pkt.Data[0])),
		int32(len(pkt.Data)),
		uintptr(unsafe.Pointer(&d.pcm[0])),
		int32(maxFrameSize),
		0, // No FEC decoding
	)
	if n < 0 {
		return fmt.Errorf("decode failed: %s", getOpusError())
	}
	if n == 0 {
		return nil
	}

	samples := int(n) * d.channels
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(d.pcm[i]))
	}

	d.pending = append(d.pending, &AudioFrame{
		Data:        data,
		SampleRate:  d.sampleRate,
		Channels:    d.channels,
		SampleCount: int(n),
		Format:      AudioFormatS16,
		PTS:         pkt.PTS,
		DTS:         pkt.DTS,
	})
	return nil
}

// ReceiveFrame returns the oldest decoded frame.
func (d *OpusDecoder) ReceiveFrame() (*AudioFrame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.pending) == 0 {
		if d.draining {
			return nil, io.EOF
		}
		return nil, ErrNeedMoreInput
	}
	f := d.pending[0]
	d.pending[0] = nil
	d.pending = d.pending[1:]
	return f, nil
}

// Reset drops pending frames and resets decoder state.
func (d *OpusDecoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return errors.New("decoder not initialized")
	}
	d.pending = nil
	d.draining = false
	if streamOpusDecoderReset(d.handle) != streamOpusOK {
		return fmt.Errorf("failed to reset decoder: %s", getOpusError())
	}
	return nil
}

// Close releases the native decoder.
func (d *OpusDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		streamOpusDecoderDestroy(d.handle)
		d.handle = 0
	}
	d.pending = nil
	return nil
}

// OpusPacketSamples returns the number of samples per channel in an Opus
// packet, or 0 when the library is missing or the packet is invalid.
func OpusPacketSamples(data []byte, sampleRate int) int {
	if len(data) == 0 || !IsOpusAvailable() {
		return 0
	}
	n := streamOpusPacketGetSamples(
		uintptr(unsafe.Pointer(&data[0])),
		int32(len(data)),
		int32(sampleRate),
	)
	if n < 0 {
		return 0
	}
	return int(n)
}

// Register the Opus decoder when libstream_opus is present.
func init() {
	if IsOpusAvailable() {
		RegisterAudioDecoder(AudioCodecOpus, func() (AudioDecoder, error) {
			return NewOpusDecoder(OpusDecoderConfig{})
		})
	}
}
