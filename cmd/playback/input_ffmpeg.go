//go:build ffmpeg

package main

import (
	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/ffmpeg"
	"github.com/thesyncim/playback/logger"
)

func openFile(url string, debug bool, log *logger.Logger) (*input, error) {
	ffmpeg.SetLogger(log, debug)
	in, err := ffmpeg.Open(url, ffmpeg.InputConfig{Log: log})
	if err != nil {
		return nil, err
	}
	return &input{
		session:       in.SessionConfig(playback.SessionConfig{}),
		videoTimeBase: in.VideoTimeBase(),
		close:         in.Close,
	}, nil
}

func newNativeConverter(w, h int, f playback.PixelFormat, i playback.Interpolation, m playback.ScaleMode) (playback.Converter, func(), error) {
	s, err := ffmpeg.NewScaler(ffmpeg.ScalerConfig{Width: w, Height: h, Format: f, Interpolation: i, Mode: m})
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}
