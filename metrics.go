package playback

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "playback"

// Metrics exports decode pipeline counters to prometheus.
// A nil *Metrics records nothing.
type Metrics struct {
	packets          prometheus.Counter
	unknownPackets   prometheus.Counter
	frames           *prometheus.CounterVec
	forcedPushes     *prometheus.CounterVec
	decodeErrors     *prometheus.CounterVec
	conversionErrors prometheus.Counter
	queueDepth       *queueDepth
	audioClock       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		packets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_read_total",
			Help:      "Packets read from the source.",
		}),
		unknownPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "unknown_packets_total",
			Help:      "Packets discarded because their stream was not recognized.",
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "frames_decoded_total",
			Help:      "Frames decoded and queued.",
		}, []string{"media"}),
		forcedPushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "forced_pushes_total",
			Help:      "Frames pushed past queue capacity because the other queue was empty.",
		}, []string{"media"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Failed decoder transactions.",
		}, []string{"media", "stage"}),
		conversionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "conversion_errors_total",
			Help:      "Failed video conversions.",
		}),
		queueDepth: &queueDepth{
			desc: prometheus.NewDesc(
				prometheus.BuildFQName(metricsNamespace, "", "queue_depth"),
				"Frames waiting in each queue.",
				[]string{"media"}, nil,
			),
			lens: make(map[string]func() int),
		},
		audioClock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "audio_clock_seconds",
			Help:      "Presentation time of the last audio packet.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{
		m.packets, m.unknownPackets, m.frames, m.forcedPushes,
		m.decodeErrors, m.conversionErrors, m.queueDepth, m.audioClock,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) packetRead() {
	if m != nil {
		m.packets.Inc()
	}
}

func (m *Metrics) unknownPacket() {
	if m != nil {
		m.unknownPackets.Inc()
	}
}

func (m *Metrics) frameQueued(kind StreamKind, forced bool) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(kind.String()).Inc()
	if forced {
		m.forcedPushes.WithLabelValues(kind.String()).Inc()
	}
}

// watchQueue reports the length of a queue under the media label. The
// length is read at scrape time, so pops by the consumer show up too.
func (m *Metrics) watchQueue(kind StreamKind, length func() int) {
	if m == nil || length == nil {
		return
	}
	m.queueDepth.mu.Lock()
	m.queueDepth.lens[kind.String()] = length
	m.queueDepth.mu.Unlock()
}

func (m *Metrics) decodeError(kind StreamKind, stage string) {
	if m != nil {
		m.decodeErrors.WithLabelValues(kind.String(), stage).Inc()
	}
}

func (m *Metrics) conversionError() {
	if m != nil {
		m.conversionErrors.Inc()
	}
}

func (m *Metrics) clock(c *AudioClock) {
	if m != nil && c != nil {
		m.audioClock.Set(c.Time().Seconds())
	}
}

// queueDepth is a gauge collector reading queue lengths on every scrape.
type queueDepth struct {
	desc *prometheus.Desc

	mu   sync.Mutex
	lens map[string]func() int
}

func (d *queueDepth) Describe(ch chan<- *prometheus.Desc) { ch <- d.desc }

func (d *queueDepth) Collect(ch chan<- prometheus.Metric) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for media, length := range d.lens {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.GaugeValue, float64(length()), media)
	}
}
