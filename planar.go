//go:build darwin || linux

package playback

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"unsafe"
)

// planarAPI is the decoder half of the libmedia_h264 and libmedia_av1
// wrappers. Both export the same primitive-only signatures under their own
// prefix.
type planarAPI struct {
	codec VideoCodec
	lib   *nativeLib

	create    func(threads int32) uint64
	decode    func(decoder uint64, data uintptr, dataLen int32, outY, outU, outV, outYStride, outUVStride, outWidth, outHeight uintptr) int32
	reset     func(decoder uint64) int32
	destroy   func(decoder uint64)
	getError  func() uintptr
	available func() int32
}

func (a *planarAPI) isAvailable() bool {
	return a.lib.load() == nil && a.available() != 0
}

func (a *planarAPI) lastError() string {
	if s := goStringFromPtr(a.getError()); s != "" {
		return s
	}
	return "unknown error"
}

// planarResult receives the decoder's output parameters.
// It must be heap-allocated for purego to work correctly on arm64.
type planarResult struct {
	YPtr     uintptr
	UPtr     uintptr
	VPtr     uintptr
	YStride  int32
	UVStride int32
	Width    int32
	Height   int32
}

// PlanarDecoderConfig configures an H.264 or AV1 decoder.
type PlanarDecoderConfig struct {
	Threads int // Decoder threads, 4 when zero
}

// PlanarDecoder decodes H.264 or AV1 packets into I420 frames.
type PlanarDecoder struct {
	api    *planarAPI
	handle uint64
	out    *planarResult

	pending  []*VideoFrame
	draining bool

	mu sync.Mutex
}

func newPlanarDecoder(api *planarAPI, config PlanarDecoderConfig) (*PlanarDecoder, error) {
	if err := api.lib.load(); err != nil {
		return nil, fmt.Errorf("%s decoder not available: %w", api.codec, err)
	}
	if api.available() == 0 {
		return nil, fmt.Errorf("%s decoder not compiled into %s: %w", api.codec, api.lib.fileName(), ErrNotSupported)
	}

	threads := int32(4)
	if config.Threads > 0 {
		threads = int32(config.Threads)
	}
	handle := api.create(threads)
	if handle == 0 {
		return nil, fmt.Errorf("failed to create %s decoder: %s", api.codec, api.lastError())
	}
	return &PlanarDecoder{api: api, handle: handle, out: &planarResult{}}, nil
}

// SendPacket decodes pkt. A nil or empty packet starts draining.
func (d *PlanarDecoder) SendPacket(pkt *Packet) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return errors.New("decoder not initialized")
	}
	if pkt == nil || len(pkt.Data) == 0 {
		d.draining = true
		return nil
	}

	out := d.out
	result := d.api.decode(
		d.handle,
		uintptr(unsafe.Pointer(&pkt.Data[0])),
		int32(len(pkt.Data)),
		uintptr(unsafe.Pointer(&out.YPtr)),
		uintptr(unsafe.Pointer(&out.UPtr)),
		uintptr(unsafe.Pointer(&out.VPtr)),
		uintptr(unsafe.Pointer(&out.YStride)),
		uintptr(unsafe.Pointer(&out.UVStride)),
		uintptr(unsafe.Pointer(&out.Width)),
		uintptr(unsafe.Pointer(&out.Height)),
	)
	runtime.KeepAlive(pkt.Data)
	runtime.KeepAlive(out)

	if result < 0 {
		return fmt.Errorf("decode failed: %s", d.api.lastError())
	}
	if result == 0 {
		return nil
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
	copyPlane(y, out.YPtr, int(out.YStride), w, h)
	copyPlane(u, out.UPtr, int(out.UVStride), uvW, uvH)
	copyPlane(v, out.VPtr, int(out.UVStride), uvW, uvH)

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
func (d *PlanarDecoder) ReceiveFrame() (*VideoFrame, error) {
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
func (d *PlanarDecoder) Codec() VideoCodec { return d.api.codec }

// Reset drops pending frames and resets the decoder state.
func (d *PlanarDecoder) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle == 0 {
		return errors.New("decoder not initialized")
	}
	d.pending = nil
	d.draining = false
	if d.api.reset(d.handle) != 0 {
		return fmt.Errorf("failed to reset decoder: %s", d.api.lastError())
	}
	return nil
}

// Close releases the native decoder.
func (d *PlanarDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.handle != 0 {
		d.api.destroy(d.handle)
		d.handle = 0
	}
	d.pending = nil
	return nil
}
