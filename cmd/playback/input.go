package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/config"
	"github.com/thesyncim/playback/logger"
	"github.com/thesyncim/playback/rtmp"
)

type input struct {
	session       playback.SessionConfig
	videoTimeBase playback.Rational
	close         func() error
}

// openInput opens the configured source. Background services it needs run
// in g.
func openInput(ctx context.Context, g *errgroup.Group, conf *config.Config, log *logger.Logger) (*input, error) {
	switch conf.Input.Kind {
	case "file":
		return openFile(conf.Input.URL, conf.Log.Debug, log)
	case "rtmp":
		return openRTMP(ctx, g, conf.Input.Listen, log)
	}
	return nil, fmt.Errorf("unknown input kind %q", conf.Input.Kind)
}

// openRTMP waits for the first publisher. FLV carries H.264 and AAC, so
// those decoders are taken from the registry when available.
func openRTMP(ctx context.Context, g *errgroup.Group, addr string, log *logger.Logger) (*input, error) {
	srv := rtmp.NewServer(rtmp.ServerConfig{Addr: addr, Log: log})
	g.Go(func() error { return srv.Serve(ctx) })

	log.Info().Str("addr", addr).Msg("Waiting for an RTMP publisher")
	st, err := srv.Accept(ctx)
	if err != nil {
		srv.Close()
		return nil, err
	}

	cfg := playback.SessionConfig{
		Source:        st,
		Streams:       st.Streams(),
		AudioTimeBase: rtmp.TimeBase,
	}
	if dec, err := playback.NewVideoDecoder(playback.VideoCodecH264); err == nil {
		cfg.VideoDecoder = dec
	} else {
		log.Warn().Err(err).Msg("RTMP video not decoded")
	}
	if dec, err := playback.NewAudioDecoder(playback.AudioCodecAAC); err == nil {
		cfg.AudioDecoder = dec
	} else {
		log.Warn().Err(err).Msg("RTMP audio not decoded")
	}

	return &input{
		session:       cfg,
		videoTimeBase: rtmp.TimeBase,
		close: func() error {
			st.Close()
			return srv.Close()
		},
	}, nil
}
