//go:build ffmpeg

package ffmpeg

import (
	"errors"
	"fmt"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/logger"
)

// InputConfig selects what Open prepares.
type InputConfig struct {
	Options      map[string]string // Demuxer options
	Decoder      DecoderOptions
	DisableVideo bool
	DisableAudio bool
	Log          *logger.Logger
}

// Input is an opened source with decoders for its first video and audio
// streams.
type Input struct {
	Demuxer *Demuxer
	Video   *VideoDecoder // nil when absent or disabled
	Audio   *AudioDecoder // nil when absent or disabled
}

// Open opens url and its decoders. A stream whose decoder cannot be opened
// is left undecoded and logged, the other one still plays.
func Open(url string, cfg InputConfig) (*Input, error) {
	log := logger.OrNop(cfg.Log).Component("ffmpeg")

	d, err := OpenDemuxer(url, cfg.Options)
	if err != nil {
		return nil, err
	}
	in := &Input{Demuxer: d}
	streams := d.Streams()

	if streams.Video != playback.NoStream && !cfg.DisableVideo {
		if in.Video, err = NewVideoDecoder(d, streams.Video, cfg.Decoder); err != nil {
			log.Warn().Err(err).Int("stream", int(streams.Video)).Msg("Video stream not decoded")
		}
	}
	if streams.Audio != playback.NoStream && !cfg.DisableAudio {
		if in.Audio, err = NewAudioDecoder(d, streams.Audio, cfg.Decoder); err != nil {
			log.Warn().Err(err).Int("stream", int(streams.Audio)).Msg("Audio stream not decoded")
		}
	}
	if in.Video == nil && in.Audio == nil {
		in.Close()
		return nil, fmt.Errorf("%s: no decodable stream", url)
	}

	log.Info().
		Str("url", url).
		Str("streams", streams.String()).
		Bool("video", in.Video != nil).
		Bool("audio", in.Audio != nil).
		Msg("Input opened")
	return in, nil
}

// SessionConfig fills the source, decoders and audio time base of a
// session config. A disabled decoder stays a nil interface.
func (in *Input) SessionConfig(base playback.SessionConfig) playback.SessionConfig {
	base.Source = in.Demuxer
	base.Streams = in.Demuxer.Streams()
	base.AudioTimeBase = in.Demuxer.TimeBase(base.Streams.Audio)
	if in.Video != nil {
		base.VideoDecoder = in.Video
	}
	if in.Audio != nil {
		base.AudioDecoder = in.Audio
	}
	return base
}

// VideoTimeBase returns the time base of the video stream.
func (in *Input) VideoTimeBase() playback.Rational {
	return in.Demuxer.TimeBase(in.Demuxer.Streams().Video)
}

// Close frees the decoders and the demuxer.
func (in *Input) Close() error {
	var errs []error
	if in.Video != nil {
		errs = append(errs, in.Video.Close())
	}
	if in.Audio != nil {
		errs = append(errs, in.Audio.Close())
	}
	errs = append(errs, in.Demuxer.Close())
	return errors.Join(errs...)
}
