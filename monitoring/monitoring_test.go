package monitoring

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/thesyncim/playback"
	"github.com/thesyncim/playback/config"
	"github.com/thesyncim/playback/logger"
)

func get(t *testing.T, h http.Handler, path string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := playback.NewMetrics(reg); err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	tests := []struct {
		name    string
		conf    config.Monitoring
		path    string
		code    int
		contain string
	}{
		{"metrics", config.Monitoring{MetricEnabled: true}, "/metrics", http.StatusOK, "playback_packets_read_total"},
		{"metrics prefix", config.Monitoring{MetricEnabled: true, URLPrefix: "/mon"}, "/mon/metrics", http.StatusOK, "playback_audio_clock_seconds"},
		{"metrics disabled", config.Monitoring{ProfilingEnabled: true}, "/metrics", http.StatusNotFound, ""},
		{"pprof", config.Monitoring{ProfilingEnabled: true}, "/debug/pprof/heap?debug=1", http.StatusOK, "heap profile"},
		{"pprof disabled", config.Monitoring{MetricEnabled: true}, "/debug/pprof/", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := get(t, Handler(tt.conf, reg, logger.Nop()), tt.path)
			if code != tt.code {
				t.Fatalf("got status %d, want %d", code, tt.code)
			}
			if !strings.Contains(body, tt.contain) {
				t.Errorf("body does not contain %q", tt.contain)
			}
		})
	}
}
