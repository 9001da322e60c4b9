package main

import (
	"fmt"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/config"
)

// newConverter builds the video converter. The returned func releases it.
func newConverter(c config.Convert) (playback.Converter, func(), error) {
	format, ok := playback.ParsePixelFormat(c.Format)
	if !ok {
		return nil, nil, fmt.Errorf("convert format %q: %w", c.Format, playback.ErrUnsupportedFormat)
	}
	interp, err := playback.ParseInterpolation(c.Interpolation)
	if err != nil {
		return nil, nil, err
	}
	mode, err := playback.ParseScaleMode(c.Mode)
	if err != nil {
		return nil, nil, err
	}
	if c.Native {
		return newNativeConverter(c.Width, c.Height, format, interp, mode)
	}
	s, err := playback.NewVideoScaler(playback.ScalerConfig{
		Width:         c.Width,
		Height:        c.Height,
		Format:        format,
		Interpolation: interp,
		Mode:          mode,
	})
	if err != nil {
		return nil, nil, err
	}
	return s, func() {}, nil
}
