package monitoring

import (
	"framerelay/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector exports relay activity as Prometheus metrics. It
// implements ports.RelayMetrics.
type PrometheusCollector struct {
	// Gauges
	streamsActive prometheus.Gauge
	viewersActive prometheus.Gauge

	// Counters
	streamsRegistered prometheus.Counter
	viewersJoined     prometheus.Counter
	framesRelayed     prometheus.Counter
	framesDropped     prometheus.Counter
	bytesRelayed      prometheus.Counter
	laggedFrames      prometheus.Counter
	lagEvents         prometheus.Counter
	rejections        *prometheus.CounterVec

	// Histograms
	frameSize prometheus.Histogram
}

// NewPrometheusCollector registers the relay metrics with reg. Pass
// prometheus.DefaultRegisterer to expose them on the default /metrics
// handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		streamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "framerelay_streams_active",
			Help: "Number of streams with a connected publisher",
		}),

		viewersActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "framerelay_viewers_active",
			Help: "Number of admitted viewers across all streams",
		}),

		streamsRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "framerelay_streams_registered_total",
			Help: "Total number of streams registered",
		}),

		viewersJoined: factory.NewCounter(prometheus.CounterOpts{
			Name: "framerelay_viewers_joined_total",
			Help: "Total number of viewers admitted",
		}),

		framesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "framerelay_frames_relayed_total",
			Help: "Total number of frames accepted into a broadcast channel",
		}),

		framesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "framerelay_frames_dropped_total",
			Help: "Total number of frames discarded because the stream had no viewers",
		}),

		bytesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "framerelay_bytes_relayed_total",
			Help: "Total payload bytes accepted into a broadcast channel",
		}),

		laggedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "framerelay_lagged_frames_total",
			Help: "Total number of frames slow viewers skipped",
		}),

		lagEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "framerelay_lag_events_total",
			Help: "Number of times a viewer fell behind the channel capacity",
		}),

		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "framerelay_admission_rejections_total",
			Help: "Handshakes rejected by the registry, by reason",
		}, []string{"reason"}),

		frameSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "framerelay_frame_size_bytes",
			Help:    "Size of frames sent by publishers",
			Buckets: prometheus.ExponentialBuckets(64, 4, 9),
		}),
	}
}

func (p *PrometheusCollector) RecordStreamRegistered(domain.StreamID) {
	p.streamsActive.Inc()
	p.streamsRegistered.Inc()
}

func (p *PrometheusCollector) RecordStreamEnded(domain.StreamID) {
	p.streamsActive.Dec()
}

func (p *PrometheusCollector) RecordViewerJoined(domain.StreamID) {
	p.viewersActive.Inc()
	p.viewersJoined.Inc()
}

func (p *PrometheusCollector) RecordViewerLeft(domain.StreamID) {
	p.viewersActive.Dec()
}

func (p *PrometheusCollector) RecordFrame(bytes int, delivered bool) {
	p.frameSize.Observe(float64(bytes))
	if !delivered {
		p.framesDropped.Inc()
		return
	}
	p.framesRelayed.Inc()
	p.bytesRelayed.Add(float64(bytes))
}

func (p *PrometheusCollector) RecordLagged(missed uint64) {
	p.lagEvents.Inc()
	p.laggedFrames.Add(float64(missed))
}

func (p *PrometheusCollector) RecordRejected(reason domain.RejectReason) {
	p.rejections.WithLabelValues(string(reason)).Inc()
}
