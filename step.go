package playback

import (
	"context"
	"errors"
	"io"
)

// StepResult is the outcome of routing and decoding one packet.
type StepResult int

const (
	StepNeedsMoreInput     StepResult = iota // No frame yet, read another packet
	StepVideoFrameProduced                   // A video frame was queued
	StepAudioFrameProduced                   // An audio frame was queued
	StepEndOfInput                           // The decoder is drained
	StepDecodeFailed                         // The step failed, see the returned error
)

func (r StepResult) String() string {
	switch r {
	case StepNeedsMoreInput:
		return "needs-more-input"
	case StepVideoFrameProduced:
		return "video-frame-produced"
	case StepAudioFrameProduced:
		return "audio-frame-produced"
	case StepEndOfInput:
		return "end-of-input"
	case StepDecodeFailed:
		return "decode-failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the decode loop must stop after this result.
func (r StepResult) Terminal() bool {
	return r == StepEndOfInput || r == StepDecodeFailed
}

// Decode stages reported in DecodeError.
const (
	StageSend    = "send"
	StageReceive = "receive"
)

func (r *Router) decodeVideo(ctx context.Context, pkt *Packet) (StepResult, error) {
	return decodeStep(ctx, r, StreamKindVideo, r.s.VideoDecoder, pkt, r.queueVideo)
}

func (r *Router) decodeAudio(ctx context.Context, pkt *Packet) (StepResult, error) {
	return decodeStep(ctx, r, StreamKindAudio, r.s.AudioDecoder, pkt, r.queueAudio)
}

// decodeStep runs one decoder transaction: submit pkt, then receive one
// frame, or every pending frame when DrainDecoder is set.
func decodeStep[F any](ctx context.Context, r *Router, kind StreamKind, dec Decoder[F], pkt *Packet,
	queue func(context.Context, F) (StepResult, error)) (StepResult, error) {

	// A full decoder still gets a chance to hand out frames.
	if err := dec.SendPacket(pkt); err != nil && !errors.Is(err, ErrNeedMoreInput) {
		return r.decodeFailed(kind, StageSend, err)
	}

	result := StepNeedsMoreInput
	for {
		frame, err := dec.ReceiveFrame()
		switch {
		case err == nil:
		case errors.Is(err, ErrNeedMoreInput):
			return result, nil
		case errors.Is(err, io.EOF):
			if result != StepNeedsMoreInput {
				return result, nil
			}
			return StepEndOfInput, nil
		default:
			return r.decodeFailed(kind, StageReceive, err)
		}

		res, err := queue(ctx, frame)
		if err != nil {
			return res, err
		}
		if res != StepNeedsMoreInput {
			result = res
		}
		if !r.opts.DrainDecoder {
			return result, nil
		}
	}
}

// Flush signals end of input to both decoders and queues every frame they
// still hold.
func (r *Router) Flush(ctx context.Context) error {
	if r.s.VideoDecoder != nil {
		if err := flushDecoder(ctx, r, StreamKindVideo, r.s.VideoDecoder, r.queueVideo); err != nil {
			return err
		}
	}
	if r.s.AudioDecoder != nil {
		if err := flushDecoder(ctx, r, StreamKindAudio, r.s.AudioDecoder, r.queueAudio); err != nil {
			return err
		}
	}
	return nil
}

func flushDecoder[F any](ctx context.Context, r *Router, kind StreamKind, dec Decoder[F],
	queue func(context.Context, F) (StepResult, error)) error {

	if err := dec.SendPacket(nil); err != nil && !errors.Is(err, io.EOF) {
		_, err = r.decodeFailed(kind, StageSend, err)
		return err
	}
	for {
		frame, err := dec.ReceiveFrame()
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, ErrNeedMoreInput):
			// A decoder without a drain mode stops at ErrNeedMoreInput.
			return nil
		default:
			_, err = r.decodeFailed(kind, StageReceive, err)
			return err
		}
		if _, err := queue(ctx, frame); err != nil {
			return err
		}
	}
}

func (r *Router) decodeFailed(kind StreamKind, stage string, err error) (StepResult, error) {
	r.stats.decodeErrors.Add(1)
	r.metrics.decodeError(kind, stage)
	return StepDecodeFailed, &DecodeError{Media: kind, Stage: stage, Err: err}
}

// queueVideo converts frame and pushes it to the video queue. The push is
// forced when the audio queue is empty so that a full video queue cannot
// stall audio decoding.
func (r *Router) queueVideo(ctx context.Context, frame *VideoFrame) (StepResult, error) {
	out, err := ConvertFrame(r.s.Converter, frame)
	if out != frame {
		frame.Release()
	}
	if err != nil {
		r.stats.conversionErrors.Add(1)
		r.metrics.conversionError()
		if r.opts.OnConvertError == ConvertErrorDrop {
			r.stats.dropped.Add(1)
			r.log.Debug().Err(err).Int64("pts", frame.PTS).Msg("Dropped video frame")
			return StepNeedsMoreInput, nil
		}
		return StepDecodeFailed, err
	}

	q := r.s.VideoQueue
	force := r.s.AudioQueue.Len() == 0
	forced := force && q.Len() >= q.Cap()
	if err := q.Push(ctx, out, force); err != nil {
		out.Release()
		return StepDecodeFailed, err
	}
	r.stats.videoFrames.Add(1)
	if forced {
		r.stats.forced.Add(1)
	}
	r.metrics.frameQueued(StreamKindVideo, forced)
	return StepVideoFrameProduced, nil
}

// queueAudio pushes frame to the audio queue, forced when the video queue
// is empty.
func (r *Router) queueAudio(ctx context.Context, frame *AudioFrame) (StepResult, error) {
	q := r.s.AudioQueue
	force := r.s.VideoQueue.Len() == 0
	forced := force && q.Len() >= q.Cap()
	if err := q.Push(ctx, frame, force); err != nil {
		frame.Release()
		return StepDecodeFailed, err
	}
	r.stats.audioFrames.Add(1)
	if forced {
		r.stats.forced.Add(1)
	}
	r.metrics.frameQueued(StreamKindAudio, forced)
	return StepAudioFrameProduced, nil
}
