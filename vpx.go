//go:build (darwin || linux) && !novpx

// VP8/VP9 decoding via libmedia_vpx using purego.
//
// libmedia_vpx is a thin wrapper around libvpx with a primitive-only API,
// loaded at runtime. Library locations checked (in order):
//   - MEDIA_VPX_LIB_PATH environment variable
//   - PLAYBACK_LIB_PATH environment variable (directory)
//   - next to the executable, build/ and build/ffi directories
//   - system library paths

package playback

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// libmedia_vpx decoder function pointers
var (
	mediaVPXDecoderCreate   func(codec, threads int32) uint64
	mediaVPXDecoderDecodeV2 func(decoder uint64, data uintptr, dataLen int32, resultOut uintptr) int32
	mediaVPXDecoderReset    func(decoder uint64) int32
	mediaVPXDecoderDestroy  func(decoder uint64)

	mediaVPXGetError       func() uintptr
	mediaVPXCodecAvailable func(codec int32) int32
)

var libMediaVPX = &nativeLib{
	base:    "media_vpx",
	envPath: "MEDIA_VPX_LIB_PATH",
	symbols: func(handle uintptr) error {
		purego.RegisterLibFunc(&mediaVPXDecoderCreate, handle, "media_vpx_decoder_create")
		purego.RegisterLibFunc(&mediaVPXDecoderDecodeV2, handle, "media_vpx_decoder_decode_v2")
		purego.RegisterLibFunc(&mediaVPXDecoderReset, handle, "media_vpx_decoder_reset")
		purego.RegisterLibFunc(&mediaVPXDecoderDestroy, handle, "media_vpx_decoder_destroy")
		purego.RegisterLibFunc(&mediaVPXGetError, handle, "media_vpx_get_error")
		purego.RegisterLibFunc(&mediaVPXCodecAvailable, handle, "media_vpx_codec_available")
		return nil
	},
}

// mediaVPXDecodeResult matches media_vpx_decode_result_t in C.
// It must be heap-allocated for purego to work correctly on arm64.
type mediaVPXDecodeResult struct {
	YPtr     uint64 // Pointer to Y plane
	UPtr     uint64 // Pointer to U plane
	VPtr     uint64 // Pointer to V plane
	YStride  int32  // Y plane stride
	UVStride int32  // UV plane stride
	Width    int32  // Frame width
	Height   int32  // Frame height
	Result   int32  // 1=decoded, 0=buffering, <0=error
	Reserved int32  // Padding for alignment
}

// Constants from media_vpx.h
const (
	mediaVPXCodecVP8 = 0
	mediaVPXCodecVP9 = 1

	mediaVPXOK = 0
)

// IsVPXAvailable checks if libmedia_vpx can be loaded.
func IsVPXAvailable() bool {
	return libMediaVPX.load() == nil
}

// IsVP8Available checks if the VP8 decoder is available.
func IsVP8Available() bool {
	return IsVPXAvailable() && mediaVPXCodecAvailable(mediaVPXCodecVP8) != 0
}

// IsVP9Available checks if the VP9 decoder is available.
func IsVP9Available() bool {
	return IsVPXAvailable() && mediaVPXCodecAvailable(mediaVPXCodecVP9) != 0
}

func getVPXError() string {
	if s := goStringFromPtr(mediaVPXGetError()); s != "" {
		return s
	}
	return "unknown error"
}

// VPXDecoderConfig configures a VP8/VP9 decoder.
type VPXDecoderConfig struct {
	Threads int // Decoder threads, 4 when zero
}

// VPXDecoder decodes VP8 or VP9 packets into I420 frames.
//
// Every decoded picture is copied into a frame of its own, so queued frames
// never alias libvpx memory.
type VPXDecoder struct {
	codec  VideoCodec
	handle uint64

	// Persistent output struct for purego on arm64, layout must match
	// media_vpx_decode_result_t.
	decodeResult *mediaVPXDecodeResult

	pending  []*VideoFrame
	draining bool

	mu sync.Mutex
}

// NewVP8Decoder creates a new VP8 decoder.
func NewVP8Decoder(config VPXDecoderConfig) (*VPXDecoder, error) {
	return newVPXDecoder(config, VideoCodecVP8)
}

// NewVP9Decoder creates a new VP9 decoder.
func NewVP9Decoder(config VPXDecoderConfig) (*VPXDecoder, error) {
	return newVPXDecoder(config, VideoCodecVP9)
}

func newVPXDecoder(config VPXDecoderConfig, codec VideoCodec) (*VPXDecoder, error) {
	if err := libMediaVPX.load(); err != nil {
		return nil, fmt.Errorf("%s decoder not available: %w", codec, err)
	}

	var codecType int32
	switch codec {
	case VideoCodecVP8:
		codecType = mediaVPXCodecVP8
	case VideoCodecVP9:
		codecType = mediaVPXCodecVP9
	default:
		return nil, fmt.Errorf("unsupported codec: %s", codec)
	}

	threads := int32(4)
	if config.Threads > 0 {
		threads = int32(config.Threads)
	}

	handle := mediaVPXDecoderCreate(codecType, threads)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s decoder: %s", codec, getVPXError())
	}

	return &VPXDecoder{
		codec:        codec,
		handle:       handle,
		decodeResult: &mediaVPXDecodeResult{},
	}, nil
}

// SendPacket decodes pkt. A nil or empty packet starts draining: once the
// pending frames are received, ReceiveFrame returns io.EOF.
func (d *VPXDecoder) SendPacket(pkt *Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return errors.New("decoder not initialized")
	}
	if pkt == nil || len(pkt.Data) == 0 {
		d.draining = true
		return nil
	}

	out := d.decodeResult
	result := mediaVPXDecoderDecodeV2(
		d.handle,
		uintptr(unsafe.Pointer(&pkt.Data[0])),
		int32(len(pkt.Data)),
		uintptr(unsafe.Pointer(out)),
	)
	runtime.KeepAlive(pkt.Data)
	runtime.KeepAlive(out)

	if result < 0 {
		return fmt.Errorf("decode failed: %s", getVPXError())
	}
	if result == 0 {
		return nil // Buffering, no frame yet
	}

	w, h := int(out.Width), int(out.Height)
	if w <= 0 || h <= 0 || out.YPtr == 0 || out.YStride <= 0 || out.UVStride <= 0 {
		return fmt.Errorf("invalid decoder output: stride=%d/%d, size=%dx%d",
			out.YStride, out.UVStride, w, h)
	}

	uvW, uvH := (w+1)/2, (h+1)/2
	buf := make([]byte, I420Size(w, h))
	y := buf[:w*h]
	u := buf[w*h : w*h+uvW*uvH]
	v := buf[w*h+uvW*uvH:]
	copyPlane(y, uintptr(out.YPtr), int(out.YStride), w, h)
	copyPlane(u, uintptr(out.UPtr), int(out.UVStride), uvW, uvH)
	copyPlane(v, uintptr(out.VPtr), int(out.UVStride), uvW, uvH)

	d.pending = append(d.pending, &VideoFrame{
		Data:     [][]byte{y, u, v},
		Stride:   []int{w, uvW, uvW},
		Width:    w,
		Height:   h,
		Format:   PixelFormatI420,
		PTS:      pkt.PTS,
		DTS:      pkt.DTS,
		Duration: pkt.Duration,
		Keyframe: pkt.Keyframe,
	})
	return nil
}

// ReceiveFrame returns the oldest decoded frame.
func (d *VPXDecoder) ReceiveFrame() (*VideoFrame, error) {
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

// Codec returns the codec this decoder handles.
func (d *VPXDecoder) Codec() VideoCodec { return d.codec }

// Reset drops pending frames and resets the decoder state.
func (d *VPXDecoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return errors.New("decoder not initialized")
	}
	d.pending = nil
	d.draining = false
	if mediaVPXDecoderReset(d.handle) != mediaVPXOK {
		return fmt.Errorf("failed to reset decoder: %s", getVPXError())
	}
	return nil
}

// Close releases the native decoder.
func (d *VPXDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		mediaVPXDecoderDestroy(d.handle)
		d.handle = 0
	}
	d.pending = nil
	return nil
}

// Register VP8/VP9 decoders when libmedia_vpx is present.
func init() {
	if IsVP8Available() {
		RegisterVideoDecoder(VideoCodecVP8, func() (VideoDecoder, error) {
			return NewVP8Decoder(VPXDecoderConfig{})
		})
	}
	if IsVP9Available() {
		RegisterVideoDecoder(VideoCodecVP9, func() (VideoDecoder, error) {
			return NewVP9Decoder(VPXDecoderConfig{})
		})
	}
}
