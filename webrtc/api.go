package webrtc

import (
	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/thesyncim/playback/logger"
)

// APIConfig configures the pion API used to receive tracks.
type APIConfig struct {
	Log                        *logger.Logger
	LogLevel                   zerolog.Level // pion messages below it are dropped
	DisableDefaultInterceptors bool
	PortMin, PortMax           uint16 // Ephemeral UDP port range, any port when zero
}

// NewAPI returns a pion API with the default codecs and interceptors and
// pion's logs routed to cfg.Log.
func NewAPI(cfg APIConfig) (*pion.API, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if !cfg.DisableDefaultInterceptors {
		if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
			return nil, err
		}
	}

	s := pion.SettingEngine{LoggerFactory: logger.NewPionLogger(logger.OrNop(cfg.Log), cfg.LogLevel)}
	if cfg.PortMin > 0 && cfg.PortMax >= cfg.PortMin {
		if err := s.SetEphemeralUDPPortRange(cfg.PortMin, cfg.PortMax); err != nil {
			return nil, err
		}
	}
	return pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(i), pion.WithSettingEngine(s)), nil
}
