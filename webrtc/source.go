// Package webrtc turns incoming WebRTC tracks into a playback.PacketReader.
//
// RTP packets of each track are reordered and reassembled into frames with
// pion's sample builder. Timestamps are unwrapped and rebased so every track
// starts at zero, in ticks of the track's clock rate.
package webrtc

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/logger"
)

// Stream indices used for packets of a Source.
const (
	VideoStream playback.StreamIndex = 0
	AudioStream playback.StreamIndex = 1
)

// SourceConfig selects the tracks of a Source. At least one is required.
type SourceConfig struct {
	Video *Track
	Audio *Track

	Buffer  int    // Packets buffered ahead of the reader, 32 when zero
	MaxLate uint16 // Reorder window in RTP packets, 128 when zero
	Log     *logger.Logger
}

// Source reads frames from up to one video and one audio track.
type Source struct {
	log     *logger.Logger
	streams playback.StreamMap

	videoCodec    playback.VideoCodec
	audioCodec    playback.AudioCodec
	videoTimeBase playback.Rational
	audioTimeBase playback.Rational

	packets chan *playback.Packet
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup

	mu  sync.Mutex
	err error
}

// NewSource starts reading the configured tracks.
func NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.Video == nil && cfg.Audio == nil {
		return nil, errors.New("no track")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 32
	}
	if cfg.MaxLate == 0 {
		cfg.MaxLate = 128
	}

	s := &Source{
		log:     logger.OrNop(cfg.Log).Component("webrtc"),
		streams: playback.NewStreamMap(),
		packets: make(chan *playback.Packet, cfg.Buffer),
		done:    make(chan struct{}),
	}

	type reader struct {
		track Track
		idx   playback.StreamIndex
		tc    trackCodec
	}
	var readers []reader

	if cfg.Video != nil {
		codec := playback.VideoCodecFromMime(cfg.Video.MimeType)
		tc, err := videoTrackCodec(codec)
		if err != nil {
			return nil, err
		}
		if cfg.Video.ClockRate > 0 {
			tc.clockRate = cfg.Video.ClockRate
		}
		s.videoCodec = codec
		s.videoTimeBase = playback.Rational{Num: 1, Den: int(tc.clockRate)}
		s.streams.Video = VideoStream
		readers = append(readers, reader{*cfg.Video, VideoStream, tc})
	}
	if cfg.Audio != nil {
		codec := playback.AudioCodecFromMime(cfg.Audio.MimeType)
		tc, err := audioTrackCodec(codec)
		if err != nil {
			return nil, err
		}
		if cfg.Audio.ClockRate > 0 {
			tc.clockRate = cfg.Audio.ClockRate
		}
		s.audioCodec = codec
		s.audioTimeBase = playback.Rational{Num: 1, Den: int(tc.clockRate)}
		s.streams.Audio = AudioStream
		readers = append(readers, reader{*cfg.Audio, AudioStream, tc})
	}

	for _, r := range readers {
		s.wg.Add(1)
		go s.readTrack(r.track, r.idx, r.tc, cfg.MaxLate)
	}
	go func() {
		s.wg.Wait()
		close(s.packets)
	}()
	return s, nil
}

func (s *Source) readTrack(t Track, idx playback.StreamIndex, tc trackCodec, maxLate uint16) {
	defer s.wg.Done()
	log := s.log.Extend(s.log.With().Int("stream", int(idx)).Str(logger.FieldMedia, t.MimeType))

	sb := samplebuilder.New(maxLate, tc.depacketizer(), tc.clockRate)
	var ts unwrapper
	for {
		pkt, _, err := t.Reader.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.setErr(err)
				log.Warn().Err(err).Msg("Track read failed")
			} else {
				log.Debug().Msg("Track ended")
			}
			return
		}
		sb.Push(pkt)

		for sample := sb.Pop(); sample != nil; sample = sb.Pop() {
			if sample.PrevDroppedPackets > 0 {
				log.Debug().Uint16("dropped", sample.PrevDroppedPackets).Msg("Packets lost before frame")
			}
			pts := ts.unwrap(sample.PacketTimestamp)
			p := playback.NewPacket(idx, pts, pts, sample.Data, nil)
			p.Duration = int64(sample.Duration.Seconds() * float64(tc.clockRate))
			p.Keyframe = tc.keyframe(sample.Data)

			select {
			case s.packets <- p:
			case <-s.done:
				return
			}
		}
	}
}

func (s *Source) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Streams returns the stream map. Subtitles never occur.
func (s *Source) Streams() playback.StreamMap { return s.streams }

// VideoCodec returns the codec of the video track.
func (s *Source) VideoCodec() playback.VideoCodec { return s.videoCodec }

// AudioCodec returns the codec of the audio track.
func (s *Source) AudioCodec() playback.AudioCodec { return s.audioCodec }

// VideoTimeBase returns the time base of video packet timestamps.
func (s *Source) VideoTimeBase() playback.Rational { return s.videoTimeBase }

// AudioTimeBase returns the time base of audio packet timestamps.
func (s *Source) AudioTimeBase() playback.Rational { return s.audioTimeBase }

// ReadPacket returns the next frame of any track. It returns io.EOF once
// every track ended, or the first read error of a track.
func (s *Source) ReadPacket(ctx context.Context) (*playback.Packet, error) {
	select {
	case p, ok := <-s.packets:
		if ok {
			return p, nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SessionConfig fills the source, its stream map and the audio time base,
// and opens registered decoders for both tracks. A track without a
// registered decoder is left undecoded.
func (s *Source) SessionConfig(base playback.SessionConfig) playback.SessionConfig {
	base.Source = s
	base.Streams = s.streams
	base.AudioTimeBase = s.audioTimeBase
	if s.streams.Video != playback.NoStream {
		if dec, err := playback.NewVideoDecoder(s.videoCodec); err == nil {
			base.VideoDecoder = dec
		} else {
			s.log.Warn().Err(err).Msg("Video track not decoded")
		}
	}
	if s.streams.Audio != playback.NoStream {
		if dec, err := playback.NewAudioDecoder(s.audioCodec); err == nil {
			base.AudioDecoder = dec
		} else {
			s.log.Warn().Err(err).Msg("Audio track not decoded")
		}
	}
	return base
}

// Close stops delivering packets. Track readers exit with their next read.
func (s *Source) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}
