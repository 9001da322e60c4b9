//go:build ffmpeg

package ffmpeg

import (
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/thesyncim/playback"
)

// ScalerConfig configures a Scaler.
type ScalerConfig struct {
	Width, Height int                  // Output size, resolved with playback.OutputSize
	Format        playback.PixelFormat // Output format, RGBA32 when unknown
	Interpolation playback.Interpolation
	Mode          playback.ScaleMode // Fit or stretch; swscale cannot crop
}

// Scaler converts native decoder frames with libswscale. It implements
// playback.Converter.
//
// The scale context is created for the first frame and rebuilt whenever the
// source geometry or pixel format changes. Each output frame gets its own
// Go buffer.
type Scaler struct {
	cfg    ScalerConfig
	format astiav.PixelFormat
	ready  bool

	mu     sync.Mutex
	ssc    *astiav.SoftwareScaleContext
	dst    *astiav.Frame
	srcW   int
	srcH   int
	srcFmt astiav.PixelFormat
	closed bool
}

// NewScaler creates a scaler. NV12 output is supported in addition to the
// formats of playback.VideoScaler.
func NewScaler(cfg ScalerConfig) (*Scaler, error) {
	if cfg.Format == playback.PixelFormatUnknown {
		cfg.Format = playback.PixelFormatRGBA32
	}
	format, ok := avPixelFormat(cfg.Format)
	if !ok {
		return nil, fmt.Errorf("output format %s: %w", cfg.Format, playback.ErrUnsupportedFormat)
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", cfg.Width, cfg.Height)
	}
	if cfg.Mode == playback.ScaleModeFill {
		return nil, fmt.Errorf("fill mode: %w", playback.ErrNotSupported)
	}
	return &Scaler{cfg: cfg, format: format, ready: true}, nil
}

func scaleFlags(i playback.Interpolation) astiav.SoftwareScaleContextFlags {
	switch i {
	case playback.InterpolationNearest:
		return astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagPoint)
	case playback.InterpolationApproxBilinear:
		return astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagFastBilinear)
	case playback.InterpolationCatmullRom:
		return astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBicubic)
	}
	return astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear)
}

// ensure (re)creates the scale context for the source geometry.
func (s *Scaler) ensure(w, h int, f astiav.PixelFormat) error {
	if s.ssc != nil && w == s.srcW && h == s.srcH && f == s.srcFmt {
		return nil
	}
	s.free()

	dw, dh := playback.OutputSize(w, h, s.cfg.Width, s.cfg.Height, s.cfg.Mode)
	ssc, err := astiav.CreateSoftwareScaleContext(w, h, f, dw, dh, s.format, scaleFlags(s.cfg.Interpolation))
	if err != nil {
		return fmt.Errorf("create scale context: %w", err)
	}
	dst := astiav.AllocFrame()
	dst.SetWidth(dw)
	dst.SetHeight(dh)
	dst.SetPixelFormat(s.format)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("alloc output frame: %w", err)
	}

	s.ssc, s.dst = ssc, dst
	s.srcW, s.srcH, s.srcFmt = w, h, f
	return nil
}

// Convert implements playback.Converter. src must come from VideoDecoder.
func (s *Scaler) Convert(src *playback.VideoFrame) (*playback.VideoFrame, error) {
	if s == nil {
		return nil, playback.ErrConverterNotInitialized
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.ready {
		return nil, playback.ErrConverterNotInitialized
	}
	native, ok := src.Opaque.(*astiav.Frame)
	if !ok || native == nil {
		return nil, fmt.Errorf("frame has no native picture: %w", playback.ErrUnsupportedFormat)
	}
	if err := s.ensure(native.Width(), native.Height(), native.PixelFormat()); err != nil {
		return nil, err
	}
	if err := s.ssc.ScaleFrame(native, s.dst); err != nil {
		return nil, fmt.Errorf("scale frame: %w", err)
	}

	n, err := s.dst.ImageBufferSize(1)
	if err != nil {
		return nil, fmt.Errorf("image buffer size: %w", err)
	}
	buf := make([]byte, n)
	if _, err := s.dst.ImageCopyToBuffer(buf, 1); err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}

	out := &playback.VideoFrame{
		Width:  s.dst.Width(),
		Height: s.dst.Height(),
		Format: s.cfg.Format,
	}
	out.Data, out.Stride = planes(buf, out.Format, out.Width, out.Height)
	return out, nil
}

func (s *Scaler) free() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}

// Close frees the scale context. Later conversions fail with
// playback.ErrConverterNotInitialized.
func (s *Scaler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.free()
	return nil
}
