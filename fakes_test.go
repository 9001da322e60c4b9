package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

const (
	testVideoStream    StreamIndex = 0
	testAudioStream    StreamIndex = 1
	testSubtitleStream StreamIndex = 2
)

func testStreams() StreamMap {
	return StreamMap{Video: testVideoStream, Audio: testAudioStream, Subtitle: testSubtitleStream}
}

// packetLog hands out packets and counts how many were released.
type packetLog struct {
	released atomic.Int32
}

func (l *packetLog) packet(idx StreamIndex, pts int64) *Packet {
	return NewPacket(idx, pts, pts, []byte{byte(idx)}, func() { l.released.Add(1) })
}

// sliceSource returns its packets in order, then end of stream. With
// block set it waits for cancellation instead of reporting end of stream.
type sliceSource struct {
	mu      sync.Mutex
	packets []*Packet
	block   bool
	err     error
}

func (s *sliceSource) ReadPacket(ctx context.Context) (*Packet, error) {
	s.mu.Lock()
	if len(s.packets) > 0 {
		p := s.packets[0]
		s.packets = s.packets[1:]
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

// endlessSource produces packets for one stream until cancelled.
type endlessSource struct {
	idx StreamIndex
	pts atomic.Int64
}

func (s *endlessSource) ReadPacket(ctx context.Context) (*Packet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return NewPacket(s.idx, s.pts.Add(1), NoPTS, nil, nil), nil
}

var errInvalidData = errors.New("invalid data found when processing input")

// fakeDecoder produces one frame per packet through newFrame.
type fakeDecoder[F any] struct {
	newFrame     func(pkt *Packet) F
	framesPerPkt int
	failSendAt   int // 1-based packet number whose send fails, 0 for never
	receiveErr   error
	panicOnSend  bool

	sent     int
	pending  []F
	draining bool
}

func (d *fakeDecoder[F]) SendPacket(pkt *Packet) error {
	if pkt == nil {
		d.draining = true
		return nil
	}
	d.sent++
	if d.panicOnSend {
		panic("decoder state corrupted")
	}
	if d.failSendAt > 0 && d.sent == d.failSendAt {
		return errInvalidData
	}
	n := d.framesPerPkt
	if n == 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		d.pending = append(d.pending, d.newFrame(pkt))
	}
	return nil
}

func (d *fakeDecoder[F]) ReceiveFrame() (F, error) {
	var zero F
	if d.receiveErr != nil {
		return zero, d.receiveErr
	}
	if len(d.pending) == 0 {
		if d.draining {
			return zero, io.EOF
		}
		return zero, ErrNeedMoreInput
	}
	f := d.pending[0]
	d.pending = d.pending[1:]
	return f, nil
}

func newVideoDecoder() *fakeDecoder[*VideoFrame] {
	return &fakeDecoder[*VideoFrame]{newFrame: func(pkt *Packet) *VideoFrame {
		return &VideoFrame{
			Data:   [][]byte{make([]byte, 4), make([]byte, 1), make([]byte, 1)},
			Stride: []int{2, 1, 1},
			Width:  2,
			Height: 2,
			Format: PixelFormatI420,
			PTS:    pkt.PTS,
			DTS:    pkt.DTS,
		}
	}}
}

func newAudioDecoder() *fakeDecoder[*AudioFrame] {
	return &fakeDecoder[*AudioFrame]{newFrame: func(pkt *Packet) *AudioFrame {
		return &AudioFrame{
			Data:        make([]byte, 960*4),
			SampleRate:  48000,
			Channels:    2,
			SampleCount: 960,
			Format:      AudioFormatS16,
			PTS:         pkt.PTS,
			DTS:         pkt.DTS,
		}
	}}
}

type testSessionConfig struct {
	source   PacketReader
	video    VideoDecoder
	audio    AudioDecoder
	conv     Converter
	videoCap int
	audioCap int
	opts     DecodePipelineOptions
}

func newTestSession(cfg testSessionConfig) *Session {
	if cfg.videoCap == 0 {
		cfg.videoCap = 16
	}
	if cfg.audioCap == 0 {
		cfg.audioCap = 16
	}
	s, err := NewSession(SessionConfig{
		Source:             cfg.source,
		Streams:            testStreams(),
		VideoDecoder:       cfg.video,
		AudioDecoder:       cfg.audio,
		Converter:          cfg.conv,
		AudioTimeBase:      Rational{Num: 1, Den: 48000},
		VideoQueueCapacity: cfg.videoCap,
		AudioQueueCapacity: cfg.audioCap,
		Pipeline:           cfg.opts,
	})
	if err != nil {
		panic(err)
	}
	return s
}
