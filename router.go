package playback

import (
	"context"
	"sync/atomic"

	"github.com/thesyncim/playback/logger"
)

// DecodeStats provides decode loop counters.
type DecodeStats struct {
	PacketsRead      uint64
	VideoFrames      uint64
	AudioFrames      uint64
	ForcedPushes     uint64
	UnknownPackets   uint64
	DroppedFrames    uint64
	DecodeErrors     uint64
	ConversionErrors uint64
}

type decodeCounters struct {
	packets          atomic.Uint64
	videoFrames      atomic.Uint64
	audioFrames      atomic.Uint64
	forced           atomic.Uint64
	unknown          atomic.Uint64
	dropped          atomic.Uint64
	decodeErrors     atomic.Uint64
	conversionErrors atomic.Uint64
}

func (c *decodeCounters) snapshot() DecodeStats {
	return DecodeStats{
		PacketsRead:      c.packets.Load(),
		VideoFrames:      c.videoFrames.Load(),
		AudioFrames:      c.audioFrames.Load(),
		ForcedPushes:     c.forced.Load(),
		UnknownPackets:   c.unknown.Load(),
		DroppedFrames:    c.dropped.Load(),
		DecodeErrors:     c.decodeErrors.Load(),
		ConversionErrors: c.conversionErrors.Load(),
	}
}

// Router dispatches packets of a session to the matching decode step.
// It is driven by a single goroutine.
type Router struct {
	s       *Session
	opts    DecodePipelineOptions
	log     *logger.Logger
	metrics *Metrics
	stats   decodeCounters

	// Stream indices already reported as unknown.
	warned map[StreamIndex]struct{}
}

// NewRouter creates a router for s using the session's logger, metrics and
// pipeline options.
func NewRouter(s *Session) *Router {
	log := logger.OrNop(s.Log)
	if s.VideoQueue != nil {
		s.Metrics.watchQueue(StreamKindVideo, s.VideoQueue.Len)
	}
	if s.AudioQueue != nil {
		s.Metrics.watchQueue(StreamKindAudio, s.AudioQueue.Len)
	}
	return &Router{
		s:       s,
		opts:    s.Pipeline,
		log:     log.Extend(log.With().Str(logger.FieldComponent, "router").Str(logger.FieldSession, s.ID)),
		metrics: s.Metrics,
		warned:  make(map[StreamIndex]struct{}),
	}
}

// Classify returns the kind of stream pkt belongs to.
func (r *Router) Classify(pkt *Packet) StreamKind {
	return r.s.Streams.Classify(pkt.StreamIndex)
}

// Route handles one packet and always releases it before returning.
//
// Audio packets advance the clock before they are decoded, even when audio
// decoding is disabled. Subtitle packets, packets of unknown streams and
// packets for a disabled decoder are consumed without producing a frame.
func (r *Router) Route(ctx context.Context, pkt *Packet) (StepResult, error) {
	defer pkt.Release()

	switch r.Classify(pkt) {
	case StreamKindVideo:
		if r.s.VideoDecoder == nil {
			return StepNeedsMoreInput, nil
		}
		return r.decodeVideo(ctx, pkt)

	case StreamKindAudio:
		if r.s.Clock != nil && r.s.Clock.Observe(pkt.PTS) {
			r.metrics.clock(r.s.Clock)
		}
		if r.s.AudioDecoder == nil {
			return StepNeedsMoreInput, nil
		}
		return r.decodeAudio(ctx, pkt)

	case StreamKindSubtitle:
		return StepNeedsMoreInput, nil

	default:
		r.stats.unknown.Add(1)
		r.metrics.unknownPacket()
		if _, ok := r.warned[pkt.StreamIndex]; !ok {
			r.warned[pkt.StreamIndex] = struct{}{}
			r.log.Warn().Int("stream", int(pkt.StreamIndex)).
				Msg("Packet from an unknown stream, maybe not initialized")
		}
		return StepNeedsMoreInput, nil
	}
}

// Stats returns a snapshot of the routing counters.
func (r *Router) Stats() DecodeStats { return r.stats.snapshot() }

func (r *Router) packetRead() {
	r.stats.packets.Add(1)
	r.metrics.packetRead()
}
