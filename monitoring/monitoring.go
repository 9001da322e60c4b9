// Package monitoring serves prometheus metrics and pprof profiles over
// HTTP.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thesyncim/playback/config"
	"github.com/thesyncim/playback/logger"
)

type Monitoring struct {
	conf   config.Monitoring
	log    *logger.Logger
	server *http.Server
}

// New creates the monitoring server. Metrics are gathered from g.
func New(conf config.Monitoring, g prometheus.Gatherer, log *logger.Logger) *Monitoring {
	log = logger.OrNop(log).Component("monitoring")
	return &Monitoring{
		conf: conf,
		log:  log,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", conf.Port),
			Handler:           Handler(conf, g, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Handler returns the mux with the enabled endpoints.
func Handler(conf config.Monitoring, g prometheus.Gatherer, log *logger.Logger) http.Handler {
	h := http.NewServeMux()

	if conf.ProfilingEnabled {
		prefix := conf.URLPrefix + "/debug/pprof"
		log.Info().Str("path", prefix).Msg("Profiling is enabled")
		h.HandleFunc(prefix+"/", pprof.Index)
		h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
		h.HandleFunc(prefix+"/profile", pprof.Profile)
		h.HandleFunc(prefix+"/symbol", pprof.Symbol)
		h.HandleFunc(prefix+"/trace", pprof.Trace)
		// Named profiles under a custom prefix need explicit handlers.
		for _, name := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			h.Handle(prefix+"/"+name, pprof.Handler(name))
		}
	}

	if conf.MetricEnabled {
		path := conf.URLPrefix + "/metrics"
		log.Info().Str("path", path).Msg("Prometheus metric is enabled")
		h.Handle(path, promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	}
	return h
}

// Run serves until ctx is done.
func (m *Monitoring) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		return err
	}
	m.log.Info().Str("addr", ln.Addr().String()).Msg("Starting monitoring server")

	errc := make(chan error, 1)
	go func() { errc <- m.server.Serve(ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	m.log.Info().Msg("Shutting down monitoring server")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.server.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
