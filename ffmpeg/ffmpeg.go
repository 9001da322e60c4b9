//go:build ffmpeg

// Package ffmpeg opens media sources with FFmpeg (through go-astiav) and
// provides the demuxer, decoders and software scaler a playback session
// runs on.
//
// The package needs the FFmpeg development libraries and is only built with
// the ffmpeg build tag.
package ffmpeg

import (
	"strings"
	"sync"

	"github.com/asticode/go-astiav"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/logger"
)

var logOnce sync.Once

// SetLogger routes FFmpeg's own log output to l. Only the first call has
// an effect. Debug enables FFmpeg's verbose messages.
func SetLogger(l *logger.Logger, debug bool) {
	logOnce.Do(func() {
		level := astiav.LogLevelWarning
		if debug {
			level = astiav.LogLevelVerbose
		}
		astiav.SetLogLevel(level)

		l = logger.OrNop(l)
		log := l.Extend(l.With().Str(logger.FieldComponent, "ffmpeg"))
		astiav.SetLogCallback(func(c astiav.Classer, lvl astiav.LogLevel, _, msg string) {
			msg = strings.TrimSpace(msg)
			if msg == "" {
				return
			}
			switch {
			case lvl <= astiav.LogLevelError:
				log.Error().Msg(msg)
			case lvl <= astiav.LogLevelWarning:
				log.Warn().Msg(msg)
			case lvl <= astiav.LogLevelInfo:
				log.Info().Msg(msg)
			default:
				log.Debug().Msg(msg)
			}
		})
	})
}

func pixelFormat(f astiav.PixelFormat) playback.PixelFormat {
	switch f {
	case astiav.PixelFormatYuv420P, astiav.PixelFormatYuvj420P:
		return playback.PixelFormatI420
	case astiav.PixelFormatNv12:
		return playback.PixelFormatNV12
	case astiav.PixelFormatRgba:
		return playback.PixelFormatRGBA32
	case astiav.PixelFormatBgra:
		return playback.PixelFormatBGRA32
	}
	return playback.PixelFormatUnknown
}

func avPixelFormat(f playback.PixelFormat) (astiav.PixelFormat, bool) {
	switch f {
	case playback.PixelFormatI420:
		return astiav.PixelFormatYuv420P, true
	case playback.PixelFormatNV12:
		return astiav.PixelFormatNv12, true
	case playback.PixelFormatRGBA32:
		return astiav.PixelFormatRgba, true
	case playback.PixelFormatBGRA32:
		return astiav.PixelFormatBgra, true
	}
	return astiav.PixelFormatNone, false
}

func audioFormat(f astiav.SampleFormat) (playback.AudioFormat, bool) {
	switch f {
	case astiav.SampleFormatS16:
		return playback.AudioFormatS16, true
	case astiav.SampleFormatFlt:
		return playback.AudioFormatF32, true
	case astiav.SampleFormatFltp:
		return playback.AudioFormatF32Planar, true
	case astiav.SampleFormatS16P:
		return playback.AudioFormatS16Planar, true
	case astiav.SampleFormatS32:
		return playback.AudioFormatS32, true
	case astiav.SampleFormatS32P:
		return playback.AudioFormatS32Planar, true
	}
	return 0, false
}

func rational(r astiav.Rational) playback.Rational {
	return playback.Rational{Num: r.Num(), Den: r.Den()}
}

// planes splits a tightly packed (align 1) image buffer into planes.
func planes(buf []byte, f playback.PixelFormat, w, h int) ([][]byte, []int) {
	switch f {
	case playback.PixelFormatI420:
		uvW, uvH := (w+1)/2, (h+1)/2
		y, c := w*h, uvW*uvH
		return [][]byte{buf[:y], buf[y : y+c], buf[y+c : y+2*c]}, []int{w, uvW, uvW}
	case playback.PixelFormatNV12:
		uvW, uvH := (w+1)/2, (h+1)/2
		y := w * h
		return [][]byte{buf[:y], buf[y : y+2*uvW*uvH]}, []int{w, 2 * uvW}
	case playback.PixelFormatRGBA32, playback.PixelFormatBGRA32:
		return [][]byte{buf[:w*h*4]}, []int{w * 4}
	}
	return nil, nil
}
