package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/config"
	"github.com/thesyncim/playback/logger"
	"github.com/thesyncim/playback/monitoring"
)

var Version = ""

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "playback:", err)
		os.Exit(1)
	}
}

// configPath picks --config out of args before the full flag set exists.
func configPath(args []string) string {
	fs := flag.NewFlagSet("config", flag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.Usage = func() {}
	path := fs.StringP("config", "c", "", "Configuration directory")
	_ = fs.Parse(args)
	return *path
}

func run(args []string) error {
	path := configPath(args)
	conf, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	fs := flag.NewFlagSet("playback", flag.ContinueOnError)
	fs.StringP("config", "c", path, "Configuration directory")
	conf.WithFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	var log *logger.Logger
	if conf.Log.Console {
		log = logger.NewConsole(conf.Log.Debug, "playback", conf.Log.NoColor)
	} else {
		log = logger.New(conf.Log.Debug)
	}
	log.Info().Str("version", Version).Str("input", conf.Input.Kind).Msg("Starting")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	metrics, err := playback.NewMetrics(reg)
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if conf.Monitoring.IsEnabled() {
		mon := monitoring.New(conf.Monitoring, reg, log)
		g.Go(func() error { return mon.Run(gctx) })
	}

	in, err := openInput(gctx, g, conf, log)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	defer func() {
		if err := in.close(); err != nil {
			log.Warn().Err(err).Msg("Input close failed")
		}
	}()

	conv, closeConv, err := newConverter(conf.Convert)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	defer closeConv()

	policy, _ := playback.ParseConvertErrorPolicy(conf.Convert.OnError)
	cfg := in.session
	cfg.Converter = conv
	cfg.VideoQueueCapacity = conf.Queue.VideoCapacity
	cfg.AudioQueueCapacity = conf.Queue.AudioCapacity
	cfg.QueueOptions = []playback.QueueOption{playback.WithMaxOverflow(conf.Queue.MaxOverflow)}
	cfg.Pipeline = playback.DecodePipelineOptions{
		DrainDecoder:      conf.Pipeline.DrainFrames,
		FlushDecoders:     conf.Pipeline.FlushAtEnd,
		OnConvertError:    policy,
		CloseQueuesOnExit: true,
	}
	cfg.Log = log
	cfg.Metrics = metrics

	s, err := playback.NewSession(cfg)
	if err != nil {
		cancel()
		_ = g.Wait()
		return err
	}
	slog := log.Extend(log.With().Str(logger.FieldSession, s.ID))

	if err := playback.StartDecodeThread(s); err != nil {
		cancel()
		_ = g.Wait()
		return err
	}

	play, pctx := errgroup.WithContext(gctx)
	play.Go(func() error { return presentVideo(pctx, s, in.videoTimeBase, slog) })
	play.Go(func() error { return playAudio(pctx, s, slog) })
	play.Go(func() error {
		select {
		case <-playback.DecodePipelineOf(s).Done():
		case <-pctx.Done():
		}
		return playback.StopDecodeThread(s)
	})
	g.Go(func() error {
		err := play.Wait()
		slog.Info().Interface("stats", playback.DecodePipelineOf(s).Stats()).Msg("Playback finished")
		cancel()
		return err
	})

	return g.Wait()
}
