package playback

import (
	"errors"
	"sync"
	"time"

	"github.com/gofrs/uuid"

	"github.com/thesyncim/playback/logger"
)

// Default queue capacities used when a SessionConfig leaves them at zero.
const (
	DefaultVideoQueueCapacity = 8
	DefaultAudioQueueCapacity = 32
)

// Session is the decode context of one playback: the opened source, its
// stream map, the decoders and converter set up by the opener, the two frame
// queues and the audio clock. The pipeline reads these fields and never
// replaces them.
type Session struct {
	ID      string
	Streams StreamMap
	Source  PacketReader

	// A nil decoder disables decoding for that stream.
	VideoDecoder VideoDecoder
	AudioDecoder AudioDecoder

	// A nil converter makes every video frame fail conversion.
	Converter Converter

	VideoQueue *FrameQueue[*VideoFrame]
	AudioQueue *FrameQueue[*AudioFrame]
	Clock      *AudioClock

	Pipeline DecodePipelineOptions
	Log      *logger.Logger
	Metrics  *Metrics

	mu       sync.Mutex
	pipeline *DecodePipeline
}

// SessionConfig describes a Session to build with NewSession.
type SessionConfig struct {
	Source        PacketReader
	Streams       StreamMap
	VideoDecoder  VideoDecoder
	AudioDecoder  AudioDecoder
	Converter     Converter
	AudioTimeBase Rational

	VideoQueueCapacity int
	AudioQueueCapacity int
	QueueOptions       []QueueOption

	Pipeline DecodePipelineOptions
	Log      *logger.Logger
	Metrics  *Metrics
}

// NewSession creates a session with fresh queues, a reset clock and a
// random ID.
func NewSession(cfg SessionConfig) (*Session, error) {
	if cfg.Source == nil {
		return nil, errors.New("source is required")
	}
	videoCap := cfg.VideoQueueCapacity
	if videoCap <= 0 {
		videoCap = DefaultVideoQueueCapacity
	}
	audioCap := cfg.AudioQueueCapacity
	if audioCap <= 0 {
		audioCap = DefaultAudioQueueCapacity
	}

	return &Session{
		ID:           uuid.Must(uuid.NewV4()).String(),
		Streams:      cfg.Streams,
		Source:       cfg.Source,
		VideoDecoder: cfg.VideoDecoder,
		AudioDecoder: cfg.AudioDecoder,
		Converter:    cfg.Converter,
		VideoQueue:   NewFrameQueue[*VideoFrame](videoCap, cfg.QueueOptions...),
		AudioQueue:   NewFrameQueue[*AudioFrame](audioCap, cfg.QueueOptions...),
		Clock:        NewAudioClock(cfg.AudioTimeBase),
		Pipeline:     cfg.Pipeline,
		Log:          cfg.Log,
		Metrics:      cfg.Metrics,
	}, nil
}

// Drift returns how far a video frame's presentation time is ahead of the
// audio clock. Negative values mean the frame is late. ok is false until
// the clock has observed a timestamp or when the frame has none.
func (s *Session) Drift(f *VideoFrame, videoTimeBase Rational) (d time.Duration, ok bool) {
	if f == nil || f.PTS == NoPTS || s.Clock == nil || !s.Clock.Valid() {
		return 0, false
	}
	return videoTimeBase.Duration(f.PTS) - s.Clock.Time(), true
}

// StartDecodeThread starts the decode goroutine for s. It fails with
// ErrAlreadyRunning while a previous goroutine is still active.
func StartDecodeThread(s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pipeline == nil {
		p, err := NewDecodePipeline(DecodePipelineConfig{Session: s, Options: s.Pipeline})
		if err != nil {
			return err
		}
		s.pipeline = p
	}
	return s.pipeline.Start()
}

// StopDecodeThread requests shutdown and returns once the decode goroutine
// has exited. It returns the error that ended the loop, if any. Calling it
// on a session that was never started, or twice, is safe.
func StopDecodeThread(s *Session) error {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()

	if p == nil {
		return nil
	}
	return p.Stop()
}

// DecodeState returns the state of the session's decode goroutine.
func DecodeState(s *Session) PipelineState {
	s.mu.Lock()
	p := s.pipeline
	s.mu.Unlock()

	if p == nil {
		return PipelineStateIdle
	}
	return p.State()
}

// DecodePipelineOf returns the pipeline created by StartDecodeThread, or nil.
func DecodePipelineOf(s *Session) *DecodePipeline {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipeline
}
