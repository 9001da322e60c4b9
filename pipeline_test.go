package playback

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitDone(t *testing.T, p *DecodePipeline) error {
	t.Helper()
	select {
	case <-p.Done():
		return p.Err()
	case <-time.After(2 * time.Second):
		t.Fatal("decode loop did not exit")
		return nil
	}
}

func TestDecodePipelineEndOfStream(t *testing.T) {
	var pl packetLog
	src := &sliceSource{}
	kinds := []StreamIndex{0, 0, 1, 0, 1, 0, 0, 1, 0, 1}
	for i, idx := range kinds {
		src.packets = append(src.packets, pl.packet(idx, int64(i)))
	}

	s := newTestSession(testSessionConfig{source: src, video: newVideoDecoder(), audio: newAudioDecoder(), conv: Passthrough{}})
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	if err != nil {
		t.Fatal(err)
	}
	s.Metrics = m

	if err := StartDecodeThread(s); err != nil {
		t.Fatalf("StartDecodeThread: %v", err)
	}
	p := DecodePipelineOf(s)
	if err := waitDone(t, p); err != nil {
		t.Fatalf("terminal error = %v, want nil", err)
	}

	if got := p.State(); got != PipelineStateStopped {
		t.Errorf("state = %v, want stopped", got)
	}
	if got := s.VideoQueue.Len(); got != 6 {
		t.Errorf("video frames = %d, want 6", got)
	}
	if got := s.AudioQueue.Len(); got != 4 {
		t.Errorf("audio frames = %d, want 4", got)
	}
	if got := pl.released.Load(); got != 10 {
		t.Errorf("released %d packets, want 10", got)
	}
	st := p.Stats()
	if st.PacketsRead != 10 || st.VideoFrames != 6 || st.AudioFrames != 4 {
		t.Errorf("stats = %+v", st)
	}
	if got := testutil.ToFloat64(m.packets); got != 10 {
		t.Errorf("packets metric = %v, want 10", got)
	}
	if got := testutil.ToFloat64(m.frames.WithLabelValues("video")); got != 6 {
		t.Errorf("video frames metric = %v, want 6", got)
	}
	if got := s.Clock.PTS(); got != 9 {
		t.Errorf("clock = %d, want 9", got)
	}

	// Stopping a loop that already ended is safe and reports its status.
	if err := StopDecodeThread(s); err != nil {
		t.Errorf("StopDecodeThread after end of stream = %v", err)
	}
}

func TestDecodePipelineSendFailure(t *testing.T) {
	var pl packetLog
	src := &sliceSource{}
	for i := 0; i < 5; i++ {
		src.packets = append(src.packets, pl.packet(testVideoStream, int64(i)))
	}
	dec := newVideoDecoder()
	dec.failSendAt = 3

	s := newTestSession(testSessionConfig{source: src, video: dec, audio: newAudioDecoder(), conv: Passthrough{}})
	errc := make(chan error, 1)
	p, err := NewDecodePipeline(DecodePipelineConfig{Session: s, OnError: func(err error) { errc <- err }})
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}

	err = p.Wait()
	var de *DecodeError
	if !errors.As(err, &de) || de.Stage != StageSend {
		t.Fatalf("terminal error = %v, want send DecodeError", err)
	}
	if p.State() != PipelineStateStopped {
		t.Errorf("state = %v, want stopped", p.State())
	}
	if got := s.VideoQueue.Len(); got != 2 {
		t.Errorf("video frames = %d, want 2", got)
	}
	for want := int64(0); want < 2; want++ {
		f, _ := s.VideoQueue.TryPop()
		if f.PTS != want {
			t.Errorf("frame pts = %d, want %d", f.PTS, want)
		}
	}
	if got := pl.released.Load(); got != 3 {
		t.Errorf("released %d packets, want 3", got)
	}

	select {
	case cbErr := <-errc:
		if !errors.Is(cbErr, errInvalidData) {
			t.Errorf("OnError got %v", cbErr)
		}
	case <-time.After(2 * time.Second):
		t.Error("OnError not called")
	}

	if err := p.Stop(); !errors.Is(err, errInvalidData) {
		t.Errorf("Stop after failure = %v, want the decode error", err)
	}
}

func TestDecodePipelineReadFailure(t *testing.T) {
	ioErr := errors.New("connection reset")
	s := newTestSession(testSessionConfig{source: &sliceSource{err: ioErr}, conv: Passthrough{}})
	p, _ := NewDecodePipeline(DecodePipelineConfig{Session: s})
	p.Start()

	if err := waitDone(t, p); !errors.Is(err, ioErr) {
		t.Fatalf("terminal error = %v, want %v", err, ioErr)
	}
}

func TestDecodePipelineStartTwice(t *testing.T) {
	s := newTestSession(testSessionConfig{source: &sliceSource{block: true}, conv: Passthrough{}})

	if err := StartDecodeThread(s); err != nil {
		t.Fatal(err)
	}
	if err := StartDecodeThread(s); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("second start = %v, want ErrAlreadyRunning", err)
	}
	if got := DecodeState(s); got != PipelineStateRunning {
		t.Errorf("state = %v, want running", got)
	}

	if err := StopDecodeThread(s); err != nil {
		t.Fatalf("stop = %v", err)
	}
	if err := StopDecodeThread(s); err != nil {
		t.Fatalf("second stop = %v", err)
	}
	if got := DecodeState(s); got != PipelineStateStopped {
		t.Errorf("state = %v, want stopped", got)
	}

	// A stopped session can be restarted.
	if err := StartDecodeThread(s); err != nil {
		t.Fatalf("restart = %v", err)
	}
	if err := StopDecodeThread(s); err != nil {
		t.Fatalf("stop after restart = %v", err)
	}
}

func TestStopDecodeThreadNeverStarted(t *testing.T) {
	s := newTestSession(testSessionConfig{source: &sliceSource{}})
	if err := StopDecodeThread(s); err != nil {
		t.Fatalf("stop = %v", err)
	}
	if got := DecodeState(s); got != PipelineStateIdle {
		t.Errorf("state = %v, want idle", got)
	}
}

func TestStopInterruptsBlockedPush(t *testing.T) {
	s := newTestSession(testSessionConfig{
		source:   &endlessSource{idx: testVideoStream},
		video:    newVideoDecoder(),
		conv:     Passthrough{},
		videoCap: 1,
	})
	// A queued audio frame disables the force-push escape for video.
	s.AudioQueue.Push(context.Background(), &AudioFrame{}, false)

	p, _ := NewDecodePipeline(DecodePipelineConfig{Session: s})
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.VideoQueue.Len() == 1 && p.Stats().PacketsRead >= 2 })

	stopped := make(chan error, 1)
	go func() { stopped <- p.Stop() }()
	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not interrupt the blocked push")
	}

	if p.State() != PipelineStateStopped {
		t.Errorf("state = %v, want stopped", p.State())
	}
	if s.VideoQueue.Len() != 1 {
		t.Errorf("video queue Len = %d, want 1", s.VideoQueue.Len())
	}
}

func TestStopJoinsDecodeGoroutine(t *testing.T) {
	s := newTestSession(testSessionConfig{source: &endlessSource{idx: testSubtitleStream}})
	p, _ := NewDecodePipeline(DecodePipelineConfig{Session: s})
	p.Start()
	waitFor(t, func() bool { return p.Stats().PacketsRead > 10 })

	p.Stop()
	select {
	case <-p.Done():
	default:
		t.Fatal("Stop returned before the decode goroutine exited")
	}
	n := p.Stats().PacketsRead
	time.Sleep(20 * time.Millisecond)
	if got := p.Stats().PacketsRead; got != n {
		t.Errorf("packets still being read after Stop: %d -> %d", n, got)
	}
}

func TestDecodePipelineRecoversPanic(t *testing.T) {
	var pl packetLog
	dec := newVideoDecoder()
	dec.panicOnSend = true
	s := newTestSession(testSessionConfig{
		source: &sliceSource{packets: []*Packet{pl.packet(testVideoStream, 0)}},
		video:  dec,
		conv:   Passthrough{},
	})
	p, _ := NewDecodePipeline(DecodePipelineConfig{Session: s})
	p.Start()

	err := waitDone(t, p)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("terminal error = %v, want recovered panic", err)
	}
	if pl.released.Load() != 1 {
		t.Error("packet not released after panic")
	}
}

func TestDecodePipelineClosesQueuesOnExit(t *testing.T) {
	var pl packetLog
	s := newTestSession(testSessionConfig{
		source: &sliceSource{packets: []*Packet{pl.packet(testAudioStream, 0)}},
		audio:  newAudioDecoder(),
	})
	p, _ := NewDecodePipeline(DecodePipelineConfig{
		Session: s,
		Options: DecodePipelineOptions{CloseQueuesOnExit: true},
	})
	p.Start()

	ctx := context.Background()
	if _, err := s.AudioQueue.Pop(ctx); err != nil {
		t.Fatalf("first Pop = %v", err)
	}
	if _, err := s.AudioQueue.Pop(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Pop after exit = %v, want ErrQueueClosed", err)
	}
	if _, err := s.VideoQueue.Pop(ctx); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("video Pop after exit = %v, want ErrQueueClosed", err)
	}
}

func TestDecodePipelineRestart(t *testing.T) {
	var pl packetLog
	src := &sliceSource{packets: []*Packet{pl.packet(testVideoStream, 0)}, block: true}
	s := newTestSession(testSessionConfig{source: src, video: newVideoDecoder(), conv: Passthrough{}})
	p, _ := NewDecodePipeline(DecodePipelineConfig{Session: s})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return s.VideoQueue.Len() == 1 })
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	src.mu.Lock()
	src.packets = append(src.packets, pl.packet(testVideoStream, 1))
	src.mu.Unlock()

	if err := p.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	waitFor(t, func() bool { return s.VideoQueue.Len() == 2 })
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop = %v, want nil", err)
	}
	if got := p.Stats().VideoFrames; got != 2 {
		t.Errorf("video frames = %d, want 2", got)
	}
}

func TestDecodePipelineRestartAfterQueuesClosed(t *testing.T) {
	var pl packetLog
	src := &sliceSource{packets: []*Packet{pl.packet(testVideoStream, 0)}, block: true}
	s := newTestSession(testSessionConfig{
		source: src,
		video:  newVideoDecoder(),
		conv:   Passthrough{},
		opts:   DecodePipelineOptions{CloseQueuesOnExit: true},
	})
	p, _ := NewDecodePipeline(DecodePipelineConfig{Session: s, Options: s.Pipeline})

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, func() bool { return s.VideoQueue.Len() == 1 })
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	src.mu.Lock()
	src.packets = append(src.packets, pl.packet(testVideoStream, 1))
	src.mu.Unlock()

	if err := p.Start(); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("Start after queues closed = %v, want ErrQueueClosed", err)
	}
	if got := p.State(); got != PipelineStateStopped {
		t.Errorf("state = %v, want stopped", got)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("Stop after rejected Start = %v, want nil", err)
	}
	if got := s.VideoQueue.Len(); got != 1 {
		t.Errorf("video frames = %d, want 1", got)
	}
}

func TestNewDecodePipelineValidates(t *testing.T) {
	if _, err := NewDecodePipeline(DecodePipelineConfig{}); err == nil {
		t.Error("expected error without session")
	}
	if _, err := NewDecodePipeline(DecodePipelineConfig{Session: &Session{}}); err == nil {
		t.Error("expected error without source")
	}
	if _, err := NewSession(SessionConfig{}); err == nil {
		t.Error("expected error without source")
	}
}

// delayDecoder holds back its newest frame until it is told to drain, like a
// codec with frame reordering.
type delayDecoder struct {
	*fakeDecoder[*VideoFrame]
}

func (d delayDecoder) ReceiveFrame() (*VideoFrame, error) {
	if len(d.pending) < 2 && !d.draining {
		return nil, ErrNeedMoreInput
	}
	return d.fakeDecoder.ReceiveFrame()
}

func TestDecodePipelineFlushDecoders(t *testing.T) {
	tests := []struct {
		name  string
		flush bool
		want  int
	}{
		{"no flush", false, 2},
		{"flush", true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pl packetLog
			src := &sliceSource{}
			for i := 0; i < 3; i++ {
				src.packets = append(src.packets, pl.packet(0, int64(i)))
			}
			s := newTestSession(testSessionConfig{
				source: src,
				video:  delayDecoder{newVideoDecoder()},
				audio:  newAudioDecoder(),
				conv:   Passthrough{},
				opts:   DecodePipelineOptions{FlushDecoders: tt.flush},
			})
			if err := StartDecodeThread(s); err != nil {
				t.Fatalf("StartDecodeThread: %v", err)
			}
			if err := waitDone(t, DecodePipelineOf(s)); err != nil {
				t.Fatalf("terminal error = %v, want nil", err)
			}
			if got := s.VideoQueue.Len(); got != tt.want {
				t.Errorf("video frames = %d, want %d", got, tt.want)
			}
		})
	}
}
