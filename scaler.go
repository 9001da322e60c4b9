package playback

import (
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ScaleMode defines how scaling should handle aspect ratio mismatches.
type ScaleMode int

const (
	// ScaleModeFit shrinks the output to fit within the target dimensions, preserving aspect ratio.
	ScaleModeFit ScaleMode = iota
	// ScaleModeFill scales to fill target dimensions, preserving aspect ratio (may crop).
	ScaleModeFill
	// ScaleModeStretch scales to exactly match target dimensions (may distort).
	ScaleModeStretch
)

// ParseScaleMode maps a configuration name to a ScaleMode.
func ParseScaleMode(s string) (ScaleMode, error) {
	switch s {
	case "", "fit":
		return ScaleModeFit, nil
	case "fill":
		return ScaleModeFill, nil
	case "stretch":
		return ScaleModeStretch, nil
	}
	return ScaleModeFit, fmt.Errorf("unknown scale mode %q", s)
}

// Interpolation selects the resampling kernel.
type Interpolation int

const (
	InterpolationBilinear       Interpolation = iota // Fixed-point bilinear
	InterpolationNearest                             // Nearest neighbor
	InterpolationApproxBilinear                      // Fast approximate bilinear
	InterpolationCatmullRom                          // Catmull-Rom, sharpest and slowest
)

// ParseInterpolation maps a configuration name to an Interpolation.
func ParseInterpolation(s string) (Interpolation, error) {
	switch s {
	case "", "bilinear":
		return InterpolationBilinear, nil
	case "nearest":
		return InterpolationNearest, nil
	case "approx-bilinear":
		return InterpolationApproxBilinear, nil
	case "catmull-rom":
		return InterpolationCatmullRom, nil
	}
	return InterpolationBilinear, fmt.Errorf("unknown interpolation %q", s)
}

func (i Interpolation) interpolator() draw.Interpolator {
	switch i {
	case InterpolationNearest:
		return draw.NearestNeighbor
	case InterpolationApproxBilinear:
		return draw.ApproxBiLinear
	case InterpolationCatmullRom:
		return draw.CatmullRom
	default:
		return draw.BiLinear
	}
}

// ScalerConfig configures a VideoScaler.
type ScalerConfig struct {
	Width         int         // Output width, 0 keeps the source width
	Height        int         // Output height, 0 keeps the source height
	Format        PixelFormat // Output format, I420 when unset
	Interpolation Interpolation
	Mode          ScaleMode
}

// VideoScaler converts I420 and NV12 frames to I420, RGBA32 or BGRA32 and
// optionally resizes them. It implements Converter.
//
// The zero value is not initialized: Convert fails with
// ErrConverterNotInitialized until the scaler is built with NewVideoScaler.
type VideoScaler struct {
	cfg   ScalerConfig
	ready bool
}

// NewVideoScaler creates a scaler producing frames described by cfg.
func NewVideoScaler(cfg ScalerConfig) (*VideoScaler, error) {
	if cfg.Format == PixelFormatUnknown {
		cfg.Format = PixelFormatI420
	}
	switch cfg.Format {
	case PixelFormatI420, PixelFormatRGBA32, PixelFormatBGRA32:
	default:
		return nil, fmt.Errorf("%w: cannot produce %s", ErrUnsupportedFormat, cfg.Format)
	}
	if cfg.Width < 0 || cfg.Height < 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", cfg.Width, cfg.Height)
	}
	return &VideoScaler{cfg: cfg, ready: true}, nil
}

// Convert implements Converter. Every call returns a newly allocated frame
// except when the source already matches the output, in which case the
// source is returned as is.
func (s *VideoScaler) Convert(src *VideoFrame) (*VideoFrame, error) {
	if s == nil || !s.ready {
		return nil, ErrConverterNotInitialized
	}
	if src == nil || src.Width <= 0 || src.Height <= 0 {
		return nil, fmt.Errorf("empty source frame")
	}

	planes, strides, err := yuvPlanes(src)
	if err != nil {
		return nil, err
	}

	dstW, dstH := s.outputSize(src.Width, src.Height)
	x, y, w, h := s.calculateSourceRegion(src.Width, src.Height, dstW, dstH)
	region := image.Rect(x, y, x+w, y+h)

	var out *VideoFrame
	switch s.cfg.Format {
	case PixelFormatI420:
		if src.Format == PixelFormatI420 && dstW == src.Width && dstH == src.Height {
			// No scaling needed
			return src, nil
		}
		out = s.scaleI420(planes, strides, src.Width, src.Height, region, dstW, dstH)
	case PixelFormatRGBA32, PixelFormatBGRA32:
		out, err = s.toRGB(planes, strides, src.Width, src.Height, region, dstW, dstH)
		if err != nil {
			return nil, err
		}
	}
	out.PTS = src.PTS
	out.DTS = src.DTS
	out.Duration = src.Duration
	out.Keyframe = src.Keyframe
	return out, nil
}

func (s *VideoScaler) outputSize(srcW, srcH int) (int, int) {
	return OutputSize(srcW, srcH, s.cfg.Width, s.cfg.Height, s.cfg.Mode)
}

// OutputSize resolves a configured output size against the source size.
// Zero for both sides keeps the source size, zero for one side derives it
// from the source aspect ratio, and in fit mode the output fits inside w x h.
func OutputSize(srcW, srcH, w, h int, mode ScaleMode) (int, int) {
	switch {
	case w == 0 && h == 0:
		return srcW, srcH
	case w == 0:
		w = srcW * h / srcH
	case h == 0:
		h = srcH * w / srcW
	case mode == ScaleModeFit:
		w, h = CalculateScaledSize(srcW, srcH, w, h, ScaleModeFit)
	}
	return max(w, 1), max(h, 1)
}

// calculateSourceRegion determines what region of the source to use based on scale mode.
func (s *VideoScaler) calculateSourceRegion(srcW, srcH, dstW, dstH int) (x, y, w, h int) {
	if s.cfg.Mode != ScaleModeFill {
		return 0, 0, srcW, srcH
	}

	// Crop source to match target aspect ratio
	srcAspect := float64(srcW) / float64(srcH)
	dstAspect := float64(dstW) / float64(dstH)

	if srcAspect > dstAspect {
		// Source is wider, crop horizontally
		newW := int(float64(srcH) * dstAspect)
		return (srcW - newW) / 2, 0, newW, srcH
	} else if srcAspect < dstAspect {
		// Source is taller, crop vertically
		newH := int(float64(srcW) / dstAspect)
		return 0, (srcH - newH) / 2, srcW, newH
	}
	return 0, 0, srcW, srcH
}

// yuvPlanes returns the Y, U and V planes of src. NV12 chroma is split into
// separate planes.
func yuvPlanes(src *VideoFrame) ([3][]byte, [3]int, error) {
	var planes [3][]byte
	var strides [3]int

	w, h := src.Width, src.Height
	cw, ch := (w+1)/2, (h+1)/2

	if len(src.Data) < src.Format.PlaneCount() || len(src.Stride) < src.Format.PlaneCount() {
		return planes, strides, fmt.Errorf("%s frame has %d planes", src.Format, len(src.Data))
	}

	switch src.Format {
	case PixelFormatI420:
		for i := 0; i < 3; i++ {
			pw, ph := cw, ch
			if i == 0 {
				pw, ph = w, h
			}
			if !planeFits(src.Data[i], src.Stride[i], pw, ph) {
				return planes, strides, fmt.Errorf("I420 plane %d too small for %dx%d", i, w, h)
			}
			planes[i], strides[i] = src.Data[i], src.Stride[i]
		}

	case PixelFormatNV12:
		if !planeFits(src.Data[0], src.Stride[0], w, h) || !planeFits(src.Data[1], src.Stride[1], cw*2, ch) {
			return planes, strides, fmt.Errorf("NV12 planes too small for %dx%d", w, h)
		}
		u := make([]byte, cw*ch)
		v := make([]byte, cw*ch)
		for y := 0; y < ch; y++ {
			row := src.Data[1][y*src.Stride[1]:]
			for x := 0; x < cw; x++ {
				u[y*cw+x] = row[2*x]
				v[y*cw+x] = row[2*x+1]
			}
		}
		planes = [3][]byte{src.Data[0], u, v}
		strides = [3]int{src.Stride[0], cw, cw}

	default:
		return planes, strides, fmt.Errorf("%w: cannot read %s", ErrUnsupportedFormat, src.Format)
	}
	return planes, strides, nil
}

func planeFits(p []byte, stride, w, h int) bool {
	return stride >= w && len(p) >= stride*(h-1)+w
}

func (s *VideoScaler) scaleI420(planes [3][]byte, strides [3]int, srcW, srcH int, region image.Rectangle, dstW, dstH int) *VideoFrame {
	dstCW, dstCH := (dstW+1)/2, (dstH+1)/2
	out := &VideoFrame{
		Data: [][]byte{
			make([]byte, dstW*dstH),
			make([]byte, dstCW*dstCH),
			make([]byte, dstCW*dstCH),
		},
		Stride: []int{dstW, dstCW, dstCW},
		Width:  dstW,
		Height: dstH,
		Format: PixelFormatI420,
	}

	chroma := image.Rect(region.Min.X/2, region.Min.Y/2,
		region.Min.X/2+(region.Dx()+1)/2, region.Min.Y/2+(region.Dy()+1)/2)

	s.resample(planes[0], strides[0], srcW, srcH, region, out.Data[0], dstW, dstW, dstH)
	s.resample(planes[1], strides[1], (srcW+1)/2, (srcH+1)/2, chroma, out.Data[1], dstCW, dstCW, dstCH)
	s.resample(planes[2], strides[2], (srcW+1)/2, (srcH+1)/2, chroma, out.Data[2], dstCW, dstCW, dstCH)
	return out
}

// resample scales the region of one 8-bit plane into dst.
func (s *VideoScaler) resample(src []byte, srcStride, planeW, planeH int, region image.Rectangle,
	dst []byte, dstStride, dstW, dstH int) {

	if s.cfg.Interpolation == InterpolationBilinear {
		scalePlane(src, srcStride, region.Min.X, region.Min.Y, region.Dx(), region.Dy(), dst, dstStride, dstW, dstH)
		return
	}
	in := &image.Gray{Pix: src, Stride: srcStride, Rect: image.Rect(0, 0, planeW, planeH)}
	out := &image.Gray{Pix: dst, Stride: dstStride, Rect: image.Rect(0, 0, dstW, dstH)}
	s.cfg.Interpolation.interpolator().Scale(out, out.Rect, in, region, draw.Src, nil)
}

func (s *VideoScaler) toRGB(planes [3][]byte, strides [3]int, srcW, srcH int, region image.Rectangle, dstW, dstH int) (*VideoFrame, error) {
	if strides[1] != strides[2] {
		return nil, fmt.Errorf("%w: chroma planes with different strides", ErrUnsupportedFormat)
	}
	ycc := &image.YCbCr{
		Y:              planes[0],
		Cb:             planes[1],
		Cr:             planes[2],
		YStride:        strides[0],
		CStride:        strides[1],
		SubsampleRatio: image.YCbCrSubsampleRatio420,
		Rect:           image.Rect(0, 0, srcW, srcH),
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	if region.Dx() == dstW && region.Dy() == dstH {
		draw.Copy(dst, image.Point{}, ycc, region, draw.Src, nil)
	} else {
		s.cfg.Interpolation.interpolator().Scale(dst, dst.Bounds(), ycc, region, draw.Src, nil)
	}

	if s.cfg.Format == PixelFormatBGRA32 {
		pix := dst.Pix
		for i := 0; i+3 < len(pix); i += 4 {
			pix[i], pix[i+2] = pix[i+2], pix[i]
		}
	}
	return &VideoFrame{
		Data:   [][]byte{dst.Pix},
		Stride: []int{dst.Stride},
		Width:  dstW,
		Height: dstH,
		Format: s.cfg.Format,
	}, nil
}

// scalePlane scales a single plane using bilinear interpolation.
func scalePlane(src []byte, srcStride, srcX, srcY, srcW, srcH int,
	dst []byte, dstStride, dstW, dstH int) {

	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return
	}

	// Fixed-point scaling factors (16.16)
	xRatio := (srcW << 16) / dstW
	yRatio := (srcH << 16) / dstH

	for y := 0; y < dstH; y++ {
		srcYFP := y * yRatio
		yFrac := srcYFP & 0xFFFF

		y0 := srcYFP>>16 + srcY
		y1 := y0 + 1
		if y1 >= srcY+srcH {
			y1 = y0
		}
		row0 := src[y0*srcStride:]
		row1 := src[y1*srcStride:]
		out := dst[y*dstStride:]

		for x := 0; x < dstW; x++ {
			srcXFP := x * xRatio
			xFrac := srcXFP & 0xFFFF

			x0 := srcXFP>>16 + srcX
			x1 := x0 + 1
			if x1 >= srcX+srcW {
				x1 = x0
			}

			top := (int(row0[x0])*(0x10000-xFrac) + int(row0[x1])*xFrac) >> 16
			bottom := (int(row1[x0])*(0x10000-xFrac) + int(row1[x1])*xFrac) >> 16
			out[x] = byte((top*(0x10000-yFrac) + bottom*yFrac) >> 16)
		}
	}
}

// ScaleFrame is a convenience function to scale an I420 frame without keeping a scaler.
func ScaleFrame(frame *VideoFrame, dstWidth, dstHeight int, mode ScaleMode) (*VideoFrame, error) {
	s, err := NewVideoScaler(ScalerConfig{Width: dstWidth, Height: dstHeight, Mode: mode})
	if err != nil {
		return nil, err
	}
	return s.Convert(frame)
}

// CalculateScaledSize returns the output dimensions when scaling with a given mode.
func CalculateScaledSize(srcW, srcH, maxW, maxH int, mode ScaleMode) (w, h int) {
	switch mode {
	case ScaleModeFit:
		srcAspect := float64(srcW) / float64(srcH)
		dstAspect := float64(maxW) / float64(maxH)

		if srcAspect > dstAspect {
			// Source is wider, fit to width
			w = maxW
			h = int(float64(maxW) / srcAspect)
		} else {
			// Source is taller, fit to height
			h = maxH
			w = int(float64(maxH) * srcAspect)
		}
		// Ensure even dimensions for YUV
		w = (w + 1) &^ 1
		h = (h + 1) &^ 1
		return w, h

	default:
		return maxW, maxH
	}
}
