package monitoring

import (
	"time"

	"sfucore/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector satisfies the scheduler's roomMetrics port as well as
// exposing extra recorders for producers/consumers and throttle state, so
// one registry backs every gauge/counter/histogram named in spec.md's
// monitoring section.
type PrometheusCollector struct {
	roomsActiveTotal  prometheus.Gauge
	roomsCreatedTotal prometheus.Counter
	peersConnected    prometheus.Gauge
	producersActive   *prometheus.GaugeVec
	consumersActive   *prometheus.GaugeVec
	dataExchangedBytes prometheus.Counter
	workerDeathsTotal prometheus.Counter
	throttleEnabled   prometheus.Gauge

	roomSetupDuration  prometheus.Histogram
	transportICEDuration prometheus.Histogram
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		roomsActiveTotal: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sfucore_rooms_active_total",
			Help: "Number of rooms currently open",
		}),

		roomsCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sfucore_rooms_created_total",
			Help: "Total number of rooms ever created",
		}),

		peersConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sfucore_peers_connected_total",
			Help: "Number of peers currently connected across all rooms",
		}),

		producersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sfucore_producers_active",
			Help: "Active producers per room",
		}, []string{"room_id", "kind"}),

		consumersActive: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sfucore_consumers_active",
			Help: "Active consumers per room",
		}, []string{"room_id", "kind"}),

		dataExchangedBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sfucore_data_exchanged_bytes_total",
			Help: "Total bytes relayed through data consumers/producers",
		}),

		workerDeathsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sfucore_worker_deaths_total",
			Help: "Total number of media engine worker deaths observed",
		}),

		throttleEnabled: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "sfucore_throttle_enabled",
			Help: "1 when network throttling is currently applied, 0 otherwise",
		}),

		roomSetupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfucore_room_setup_duration_seconds",
			Help:    "Time to create a room's producer/consumer router pair",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		}),

		transportICEDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "sfucore_transport_ice_duration_seconds",
			Help:    "Time from transport creation to ICE connected state",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
	}
}

// RoomCreated/RoomClosed satisfy the scheduler's roomMetrics port.
func (p *PrometheusCollector) RoomCreated(domain.RoomID) {
	p.roomsActiveTotal.Inc()
	p.roomsCreatedTotal.Inc()
}

func (p *PrometheusCollector) RoomClosed(roomID domain.RoomID) {
	p.roomsActiveTotal.Dec()
	p.producersActive.DeletePartialMatch(prometheus.Labels{"room_id": string(roomID)})
	p.consumersActive.DeletePartialMatch(prometheus.Labels{"room_id": string(roomID)})
}

func (p *PrometheusCollector) RecordPeerConnected() {
	p.peersConnected.Inc()
}

func (p *PrometheusCollector) RecordPeerDisconnected() {
	p.peersConnected.Dec()
}

func (p *PrometheusCollector) RecordProducerCreated(roomID domain.RoomID, kind string) {
	p.producersActive.WithLabelValues(string(roomID), kind).Inc()
}

func (p *PrometheusCollector) RecordProducerClosed(roomID domain.RoomID, kind string) {
	p.producersActive.WithLabelValues(string(roomID), kind).Dec()
}

func (p *PrometheusCollector) RecordConsumerCreated(roomID domain.RoomID, kind string) {
	p.consumersActive.WithLabelValues(string(roomID), kind).Inc()
}

func (p *PrometheusCollector) RecordConsumerClosed(roomID domain.RoomID, kind string) {
	p.consumersActive.WithLabelValues(string(roomID), kind).Dec()
}

func (p *PrometheusCollector) RecordDataTransferred(bytes int64) {
	p.dataExchangedBytes.Add(float64(bytes))
}

func (p *PrometheusCollector) RecordWorkerDied() {
	p.workerDeathsTotal.Inc()
}

func (p *PrometheusCollector) SetThrottleEnabled(enabled bool) {
	if enabled {
		p.throttleEnabled.Set(1)
		return
	}
	p.throttleEnabled.Set(0)
}

func (p *PrometheusCollector) RecordRoomSetup(d time.Duration) {
	p.roomSetupDuration.Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordTransportICE(d time.Duration) {
	p.transportICEDuration.Observe(d.Seconds())
}
