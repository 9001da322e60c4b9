// Package rtmp accepts RTMP publishers and turns each published stream into
// a playback.PacketReader.
//
// H.264 video is delivered as Annex B access units with SPS and PPS in
// front of every keyframe, AAC audio as ADTS frames and MP3 as is, so the
// packets can be fed to decoders that have no out-of-band configuration.
// Timestamps are in milliseconds.
package rtmp

import (
	"context"
	"io"
	"sync"

	"github.com/thesyncim/playback"
)

// Stream indices used for packets of a published stream.
const (
	VideoStream playback.StreamIndex = 0
	AudioStream playback.StreamIndex = 1
)

// TimeBase is the time base of every RTMP timestamp.
var TimeBase = playback.Rational{Num: 1, Den: 1000}

// Stream is one published RTMP stream.
//
// The publishing connection blocks while the packet buffer is full, so a
// slow reader throttles the publisher instead of losing packets.
type Stream struct {
	Name string

	packets   chan *playback.Packet
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	videoCodec playback.VideoCodec
	audioCodec playback.AudioCodec
	sampleRate int
	channels   int
}

func newStream(name string, buffer int) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	return &Stream{
		Name:    name,
		packets: make(chan *playback.Packet, buffer),
		done:    make(chan struct{}),
	}
}

// Streams returns the stream map of RTMP packets. Subtitles never occur.
func (s *Stream) Streams() playback.StreamMap {
	return playback.StreamMap{Video: VideoStream, Audio: AudioStream, Subtitle: playback.NoStream}
}

// VideoCodec returns the video codec seen so far.
func (s *Stream) VideoCodec() playback.VideoCodec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoCodec
}

// AudioCodec returns the audio codec seen so far, with its sample rate and
// channel count when the stream announced them.
func (s *Stream) AudioCodec() (codec playback.AudioCodec, sampleRate, channels int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audioCodec, s.sampleRate, s.channels
}

func (s *Stream) setVideoCodec(c playback.VideoCodec) {
	s.mu.Lock()
	s.videoCodec = c
	s.mu.Unlock()
}

func (s *Stream) setAudioCodec(c playback.AudioCodec, sampleRate, channels int) {
	s.mu.Lock()
	s.audioCodec, s.sampleRate, s.channels = c, sampleRate, channels
	s.mu.Unlock()
}

// ReadPacket returns the next packet. Once the publisher is gone and every
// buffered packet was read it returns io.EOF.
func (s *Stream) ReadPacket(ctx context.Context) (*playback.Packet, error) {
	select {
	case p := <-s.packets:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		select {
		case p := <-s.packets:
			return p, nil
		default:
			return nil, io.EOF
		}
	}
}

// push hands pkt to the reader, waiting while the buffer is full.
func (s *Stream) push(pkt *playback.Packet) bool {
	select {
	case <-s.done:
		pkt.Release()
		return false
	default:
	}
	select {
	case s.packets <- pkt:
		return true
	case <-s.done:
		pkt.Release()
		return false
	}
}

// Close ends the stream. Packets already buffered stay readable and a
// blocked publisher is released.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// Done is closed when the stream ends.
func (s *Stream) Done() <-chan struct{} { return s.done }
