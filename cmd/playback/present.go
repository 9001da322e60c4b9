package main

import (
	"context"
	"errors"
	"time"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/logger"
)

// Frames later than this behind the audio clock are dropped.
const lateThreshold = 100 * time.Millisecond

// Longest wait for an early video frame.
const maxWait = time.Second

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// finished reports whether err ends a consumer cleanly.
func finished(ctx context.Context, err error) bool {
	return errors.Is(err, playback.ErrQueueClosed) || ctx.Err() != nil
}

// presentVideo stands in for a renderer: it holds every frame until the
// audio clock reaches it and drops frames that are already late.
func presentVideo(ctx context.Context, s *playback.Session, tb playback.Rational, log *logger.Logger) error {
	var shown, dropped int
	defer func() {
		log.Info().Int("shown", shown).Int("dropped", dropped).Msg("Video done")
	}()

	for {
		f, err := s.VideoQueue.Pop(ctx)
		if err != nil {
			if finished(ctx, err) {
				return nil
			}
			return err
		}

		drift, ok := s.Drift(f, tb)
		if ok && drift < -lateThreshold {
			dropped++
			log.Debug().Int64("pts", f.PTS).Dur("drift", drift).Msg("Late frame dropped")
			f.Release()
			continue
		}
		if ok && drift > 0 {
			if drift > maxWait {
				drift = maxWait
			}
			if err := sleep(ctx, drift); err != nil {
				f.Release()
				return nil
			}
		}
		shown++
		log.Debug().
			Int64("pts", f.PTS).
			Int("width", f.Width).
			Int("height", f.Height).
			Dur("drift", drift).
			Msg("Frame")
		f.Release()
	}
}

// playAudio stands in for a sound device: it consumes audio frames in real
// time so the audio clock advances at playback speed.
func playAudio(ctx context.Context, s *playback.Session, log *logger.Logger) error {
	var played time.Duration
	defer func() {
		log.Info().Dur("played", played).Msg("Audio done")
	}()

	start := time.Now()
	for {
		f, err := s.AudioQueue.Pop(ctx)
		if err != nil {
			if finished(ctx, err) {
				return nil
			}
			return err
		}
		played += f.Duration()
		f.Release()
		if err := sleep(ctx, played-time.Since(start)); err != nil {
			return nil
		}
	}
}
