//go:build !ffmpeg

package main

import (
	"errors"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/logger"
)

var errNoFFmpeg = errors.New("built without FFmpeg, rebuild with -tags ffmpeg")

func openFile(string, bool, *logger.Logger) (*input, error) { return nil, errNoFFmpeg }

func newNativeConverter(int, int, playback.PixelFormat, playback.Interpolation, playback.ScaleMode) (playback.Converter, func(), error) {
	return nil, nil, errNoFFmpeg
}
