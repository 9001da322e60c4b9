package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/thesyncim/playback/logger"
)

// PipelineState represents the state of a decode pipeline.
type PipelineState int32

const (
	PipelineStateIdle     PipelineState = iota // Not started
	PipelineStateRunning                       // Decode goroutine active
	PipelineStateStopping                      // Stop requested, waiting for the goroutine
	PipelineStateStopped                       // Goroutine exited
)

func (s PipelineState) String() string {
	switch s {
	case PipelineStateIdle:
		return "idle"
	case PipelineStateRunning:
		return "running"
	case PipelineStateStopping:
		return "stopping"
	case PipelineStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// DecodePipelineOptions tune the decode loop.
type DecodePipelineOptions struct {
	// DrainDecoder receives every pending frame after each packet instead
	// of exactly one.
	DrainDecoder bool

	// OnConvertError selects what happens to a video frame that fails
	// conversion.
	OnConvertError ConvertErrorPolicy

	// CloseQueuesOnExit closes both frame queues when the loop ends, so a
	// consumer blocked in Pop sees ErrQueueClosed once it has drained them.
	CloseQueuesOnExit bool

	// FlushDecoders drains both decoders at end of stream and queues the
	// frames they still hold, such as reordered B-frames.
	FlushDecoders bool
}

// DecodePipelineConfig configures a decode pipeline.
type DecodePipelineConfig struct {
	Session *Session
	Options DecodePipelineOptions
	OnError func(error) // Called asynchronously with the error that ended the loop
}

// DecodePipeline handles: PacketReader -> Router -> Decoder -> Converter -> FrameQueue
//
// It owns at most one decode goroutine at a time.
type DecodePipeline struct {
	session *Session
	router  *Router
	opts    DecodePipelineOptions
	onError func(error)
	log     *logger.Logger

	state atomic.Int32

	mu     sync.Mutex // serializes Start and Stop
	cancel context.CancelFunc
	done   chan struct{}
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error
}

// NewDecodePipeline creates a new decode pipeline for a session.
func NewDecodePipeline(config DecodePipelineConfig) (*DecodePipeline, error) {
	s := config.Session
	if s == nil {
		return nil, fmt.Errorf("session is required")
	}
	if s.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if s.VideoQueue == nil || s.AudioQueue == nil {
		return nil, fmt.Errorf("video and audio queues are required")
	}

	if s.Clock == nil {
		s.Clock = NewAudioClock(Rational{})
	}
	s.Pipeline = config.Options
	log := logger.OrNop(s.Log)
	p := &DecodePipeline{
		session: s,
		router:  NewRouter(s),
		opts:    config.Options,
		onError: config.OnError,
		log:     log.Extend(log.With().Str(logger.FieldComponent, "decode").Str(logger.FieldSession, s.ID)),
	}
	p.state.Store(int32(PipelineStateIdle))

	return p, nil
}

// Start spawns the decode goroutine. It fails with ErrAlreadyRunning while
// a goroutine is running or stopping. A stopped pipeline can be started
// again and continues reading from the same source, unless a frame queue
// was closed (see CloseQueuesOnExit); then Start fails with ErrQueueClosed.
func (p *DecodePipeline) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case PipelineStateRunning, PipelineStateStopping:
		return ErrAlreadyRunning
	}
	if p.session.VideoQueue.Closed() || p.session.AudioQueue.Closed() {
		return fmt.Errorf("restart decode thread: %w", ErrQueueClosed)
	}

	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	p.setErr(nil)
	p.state.Store(int32(PipelineStateRunning))

	p.log.Info().Str("streams", p.session.Streams.String()).Msg("Decode thread started")

	p.wg.Add(1)
	go p.run(ctx, p.done)

	return nil
}

// Stop asks the decode goroutine to exit and waits until it has. It returns
// the error that ended the loop, or nil for a clean exit. Stop is safe to
// call on an idle or stopped pipeline and more than once.
func (p *DecodePipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return nil
	}
	if p.state.CompareAndSwap(int32(PipelineStateRunning), int32(PipelineStateStopping)) {
		p.log.Debug().Msg("Stopping decode thread")
	}
	p.cancel()
	p.wg.Wait()
	p.state.Store(int32(PipelineStateStopped))

	return p.Err()
}

// Wait blocks until the decode goroutine exits on its own or is stopped and
// returns its terminal error.
func (p *DecodePipeline) Wait() error {
	<-p.Done()
	return p.Err()
}

// Done returns a channel closed when the current decode goroutine exits.
// It is already closed if the pipeline was never started.
func (p *DecodePipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.done
}

// Err returns the error that ended the last run, if any.
func (p *DecodePipeline) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *DecodePipeline) setErr(err error) {
	p.errMu.Lock()
	p.err = err
	p.errMu.Unlock()
}

// State returns the current pipeline state.
func (p *DecodePipeline) State() PipelineState {
	return PipelineState(p.state.Load())
}

// Stats returns decode statistics accumulated over all runs.
func (p *DecodePipeline) Stats() DecodeStats {
	return p.router.Stats()
}

// Session returns the session decoded by p.
func (p *DecodePipeline) Session() *Session { return p.session }

func (p *DecodePipeline) run(ctx context.Context, done chan struct{}) {
	defer p.wg.Done()
	defer close(done)

	err := p.processLoop(ctx)
	p.setErr(err)

	if p.opts.CloseQueuesOnExit {
		p.session.VideoQueue.Close()
		p.session.AudioQueue.Close()
	}
	p.state.Store(int32(PipelineStateStopped))

	if err != nil {
		p.log.Error().Err(err).Msg("Decode thread failed")
		if p.onError != nil {
			go p.onError(err)
		}
		return
	}
	p.log.Info().Interface("stats", p.router.Stats()).Msg("Decode thread finished")
}

// processLoop reads and routes packets until end of stream, a failure or
// cancellation. Cancellation is a clean exit.
func (p *DecodePipeline) processLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode loop panic: %v", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		pkt, err := p.session.Source.ReadPacket(ctx)
		if err != nil {
			pkt.Release()
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, io.EOF) {
				if p.opts.FlushDecoders {
					if err := p.router.Flush(ctx); err != nil && ctx.Err() == nil {
						return err
					}
				}
				p.log.Info().Msg("Successfully decoded all frames")
				return nil
			}
			return fmt.Errorf("read packet: %w", err)
		}
		if pkt == nil {
			continue
		}
		p.router.packetRead()

		result, err := p.router.Route(ctx, pkt)
		if err != nil {
			if ctx.Err() != nil {
				// A blocked push was interrupted by Stop.
				return nil
			}
			return err
		}

		switch result {
		case StepNeedsMoreInput:
			continue
		case StepVideoFrameProduced, StepAudioFrameProduced:
			p.log.Debug().Stringer("result", result).Int64("clock", p.session.Clock.PTS()).Msg("Frame decoded")
		case StepEndOfInput:
			p.log.Info().Msg("Decoder drained")
			return nil
		}
	}
}
