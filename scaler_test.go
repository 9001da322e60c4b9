package playback

import (
	"errors"
	"testing"
)

func TestVideoScaler_NotInitialized(t *testing.T) {
	frame := createGradientFrame(4, 4)

	var zero VideoScaler
	if _, err := zero.Convert(frame); !errors.Is(err, ErrConverterNotInitialized) {
		t.Errorf("zero scaler: got %v, want ErrConverterNotInitialized", err)
	}
	var nilScaler *VideoScaler
	if _, err := ConvertFrame(nilScaler, frame); !errors.Is(err, ErrConverterNotInitialized) {
		t.Errorf("nil scaler: got %v, want ErrConverterNotInitialized", err)
	}
	if _, err := ConvertFrame(nil, frame); !errors.Is(err, ErrConverterNotInitialized) {
		t.Errorf("nil converter: got %v, want ErrConverterNotInitialized", err)
	}
}

func TestVideoScaler_NoScaling(t *testing.T) {
	frame := createGradientFrame(640, 480)
	frame.PTS = 12345

	scaler, err := NewVideoScaler(ScalerConfig{})
	if err != nil {
		t.Fatal(err)
	}
	out, err := scaler.Convert(frame)
	if err != nil {
		t.Fatal(err)
	}
	// Should return same frame when no scaling needed
	if out != frame {
		t.Error("Expected same frame when no scaling needed")
	}
}

func TestVideoScaler_Downscale(t *testing.T) {
	srcW, srcH := 1280, 720
	dstW, dstH := 640, 360

	frame := createGradientFrame(srcW, srcH)
	frame.PTS, frame.DTS, frame.Duration = 9000, 6000, 3000

	scaler, _ := NewVideoScaler(ScalerConfig{Width: dstW, Height: dstH, Mode: ScaleModeStretch})
	out, err := ConvertFrame(scaler, frame)
	if err != nil {
		t.Fatal(err)
	}

	if out.Width != dstW || out.Height != dstH {
		t.Errorf("Expected %dx%d, got %dx%d", dstW, dstH, out.Width, out.Height)
	}
	if len(out.Data[0]) != dstW*dstH {
		t.Errorf("Y plane size mismatch: expected %d, got %d", dstW*dstH, len(out.Data[0]))
	}
	if len(out.Data[1]) != (dstW/2)*(dstH/2) {
		t.Errorf("U plane size mismatch")
	}
	if out.PTS != 9000 || out.DTS != 6000 || out.Duration != 3000 {
		t.Errorf("timestamps = (%d, %d, %d), want (9000, 6000, 3000)", out.PTS, out.DTS, out.Duration)
	}
	// Horizontal gradient survives the downscale.
	if out.Data[0][0] >= out.Data[0][dstW-1] {
		t.Errorf("gradient lost: first %d, last %d", out.Data[0][0], out.Data[0][dstW-1])
	}
}

func TestVideoScaler_Modes(t *testing.T) {
	tests := []struct {
		name             string
		cfg              ScalerConfig
		srcW, srcH       int
		expectW, expectH int
	}{
		{"upscale", ScalerConfig{Width: 640, Height: 480, Mode: ScaleModeStretch}, 320, 240, 640, 480},
		{"fill crops", ScalerConfig{Width: 640, Height: 480, Mode: ScaleModeFill}, 1920, 1080, 640, 480},
		{"fit shrinks", ScalerConfig{Width: 640, Height: 480, Mode: ScaleModeFit}, 1920, 1080, 640, 360},
		{"width only", ScalerConfig{Width: 640}, 1280, 720, 640, 360},
		{"height only", ScalerConfig{Height: 240}, 640, 480, 320, 240},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scaler, err := NewVideoScaler(tt.cfg)
			if err != nil {
				t.Fatal(err)
			}
			out, err := scaler.Convert(createGradientFrame(tt.srcW, tt.srcH))
			if err != nil {
				t.Fatal(err)
			}
			if out.Width != tt.expectW || out.Height != tt.expectH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.expectW, tt.expectH, out.Width, out.Height)
			}
		})
	}
}

func TestVideoScaler_Interpolations(t *testing.T) {
	for _, name := range []string{"bilinear", "nearest", "approx-bilinear", "catmull-rom"} {
		t.Run(name, func(t *testing.T) {
			interp, err := ParseInterpolation(name)
			if err != nil {
				t.Fatal(err)
			}
			// Odd sizes exercise chroma rounding.
			scaler, _ := NewVideoScaler(ScalerConfig{Width: 3, Height: 3, Mode: ScaleModeStretch, Interpolation: interp})
			out, err := scaler.Convert(createGradientFrame(7, 5))
			if err != nil {
				t.Fatal(err)
			}
			if len(out.Data[0]) != 9 || len(out.Data[1]) != 4 {
				t.Errorf("plane sizes = %d/%d, want 9/4", len(out.Data[0]), len(out.Data[1]))
			}
		})
	}
	if _, err := ParseInterpolation("lanczos"); err == nil {
		t.Error("expected error for unknown interpolation")
	}
}

func TestVideoScaler_RGB(t *testing.T) {
	// Y=76 Cb=85 Cr=255 is close to pure red.
	frame := solidFrame(4, 4, 76, 85, 255)

	rgba, _ := NewVideoScaler(ScalerConfig{Format: PixelFormatRGBA32})
	out, err := rgba.Convert(frame)
	if err != nil {
		t.Fatal(err)
	}
	if out.Format != PixelFormatRGBA32 || out.Stride[0] != 16 || len(out.Data[0]) != 64 {
		t.Fatalf("unexpected RGBA layout: %v stride %d len %d", out.Format, out.Stride[0], len(out.Data[0]))
	}
	px := out.Data[0][:4]
	if px[0] < 200 || px[2] > 50 || px[3] != 255 {
		t.Errorf("RGBA pixel = %v, want red", px)
	}

	bgra, _ := NewVideoScaler(ScalerConfig{Format: PixelFormatBGRA32, Width: 2, Height: 2})
	out, err = bgra.Convert(frame)
	if err != nil {
		t.Fatal(err)
	}
	px = out.Data[0][:4]
	if px[2] < 200 || px[0] > 50 {
		t.Errorf("BGRA pixel = %v, want red in byte 2", px)
	}
}

func TestVideoScaler_NV12(t *testing.T) {
	w, h := 4, 2
	y := make([]byte, w*h)
	uv := []byte{10, 20, 10, 20}
	frame := &VideoFrame{
		Data:   [][]byte{y, uv},
		Stride: []int{w, w},
		Width:  w,
		Height: h,
		Format: PixelFormatNV12,
		PTS:    42,
	}

	scaler, _ := NewVideoScaler(ScalerConfig{})
	out, err := scaler.Convert(frame)
	if err != nil {
		t.Fatal(err)
	}
	if out.Format != PixelFormatI420 || out.PTS != 42 {
		t.Fatalf("got %v pts %d", out.Format, out.PTS)
	}
	for i := range out.Data[1] {
		if out.Data[1][i] != 10 || out.Data[2][i] != 20 {
			t.Fatalf("chroma = %v/%v, want 10/20", out.Data[1], out.Data[2])
		}
	}
}

func TestVideoScaler_Errors(t *testing.T) {
	if _, err := NewVideoScaler(ScalerConfig{Format: PixelFormatNV12}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("NV12 output: got %v, want ErrUnsupportedFormat", err)
	}

	scaler, _ := NewVideoScaler(ScalerConfig{Width: 2, Height: 2})
	rgba := &VideoFrame{Data: [][]byte{make([]byte, 16)}, Stride: []int{8}, Width: 2, Height: 2, Format: PixelFormatRGBA32}
	if _, err := scaler.Convert(rgba); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("RGBA input: got %v, want ErrUnsupportedFormat", err)
	}

	short := createGradientFrame(8, 8)
	short.Data[0] = short.Data[0][:10]
	_, err := ConvertFrame(scaler, short)
	var ce *ConversionError
	if !errors.As(err, &ce) {
		t.Errorf("short plane: got %v, want ConversionError", err)
	}
}

func TestOutputSize(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		w, h       int
		mode       ScaleMode
		wantW      int
		wantH      int
	}{
		{"source size", 640, 480, 0, 0, ScaleModeFit, 640, 480},
		{"width only", 640, 480, 320, 0, ScaleModeStretch, 320, 240},
		{"height only", 640, 480, 0, 240, ScaleModeFit, 320, 240},
		{"fit", 1920, 1080, 640, 640, ScaleModeFit, 640, 360},
		{"stretch", 1920, 1080, 640, 640, ScaleModeStretch, 640, 640},
		{"never zero", 16, 4, 2, 2, ScaleModeFit, 2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := OutputSize(tt.srcW, tt.srcH, tt.w, tt.h, tt.mode)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("OutputSize = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestCalculateScaledSize(t *testing.T) {
	tests := []struct {
		name             string
		srcW, srcH       int
		maxW, maxH       int
		mode             ScaleMode
		expectW, expectH int
	}{
		{"16:9 to 4:3 fit", 1920, 1080, 640, 480, ScaleModeFit, 640, 360},
		{"4:3 to 16:9 fit", 640, 480, 1280, 720, ScaleModeFit, 960, 720},
		{"same aspect", 1280, 720, 640, 360, ScaleModeFit, 640, 360},
		{"fill mode", 1920, 1080, 640, 480, ScaleModeFill, 640, 480},
		{"stretch mode", 1920, 1080, 640, 480, ScaleModeStretch, 640, 480},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := CalculateScaledSize(tt.srcW, tt.srcH, tt.maxW, tt.maxH, tt.mode)
			if w != tt.expectW || h != tt.expectH {
				t.Errorf("Expected %dx%d, got %dx%d", tt.expectW, tt.expectH, w, h)
			}
		})
	}
}

func createGradientFrame(width, height int) *VideoFrame {
	cw, ch := (width+1)/2, (height+1)/2
	yData := make([]byte, width*height)
	uData := make([]byte, cw*ch)
	vData := make([]byte, cw*ch)

	// Fill Y with horizontal gradient
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			yData[y*width+x] = byte(x * 255 / width)
		}
	}

	// Fill U/V with neutral values
	for i := range uData {
		uData[i] = 128
		vData[i] = 128
	}

	return &VideoFrame{
		Data:   [][]byte{yData, uData, vData},
		Stride: []int{width, cw, cw},
		Width:  width,
		Height: height,
		Format: PixelFormatI420,
	}
}

func solidFrame(width, height int, y, cb, cr byte) *VideoFrame {
	f := createGradientFrame(width, height)
	for i := range f.Data[0] {
		f.Data[0][i] = y
	}
	for i := range f.Data[1] {
		f.Data[1][i] = cb
		f.Data[2][i] = cr
	}
	return f
}

func BenchmarkVideoScaler_720pTo480p(b *testing.B) {
	frame := createGradientFrame(1280, 720)
	scaler, _ := NewVideoScaler(ScalerConfig{Width: 640, Height: 480, Mode: ScaleModeFill})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scaler.Convert(frame)
	}
}

func BenchmarkVideoScaler_1080pToRGBA(b *testing.B) {
	frame := createGradientFrame(1920, 1080)
	scaler, _ := NewVideoScaler(ScalerConfig{Format: PixelFormatRGBA32})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scaler.Convert(frame)
	}
}
