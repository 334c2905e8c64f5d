package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	reg prometheus.Registerer

	Connections       prometheus.Gauge
	LocationUpdates   prometheus.Counter
	DeliveryFailures  *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	RoomsSwept        prometheus.Counter
	EventsDropped     prometheus.Counter
	EventSinkFailures *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Active websocket connections",
		}),
		LocationUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "room_location_updates_total",
			Help: "Location updates accepted from drivers",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_delivery_failures_total",
			Help: "Outbound frames that could not be enqueued",
		}, []string{"event"}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ws_frames_dropped_total",
			Help: "Inbound frames ignored by the dispatcher",
		}, []string{"reason"}),
		RoomsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "room_swept_total",
			Help: "Inactive rooms evicted by the sweeper",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "room_events_dropped_total",
			Help: "Lifecycle events dropped because the queue was full",
		}),
		EventSinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "room_event_sink_failures_total",
			Help: "Lifecycle event deliveries that failed per sink",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		m.Connections,
		m.LocationUpdates,
		m.DeliveryFailures,
		m.FramesDropped,
		m.RoomsSwept,
		m.EventsDropped,
		m.EventSinkFailures,
	)
	return m
}

// ObserveRooms registers gauges that read active and inactive room counts at scrape time.
func (m *Metrics) ObserveRooms(active, inactive func() float64) {
	if m == nil {
		return
	}
	m.reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "room_active",
			Help: "Rooms with a driver attached",
		}, active),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "room_inactive",
			Help: "Rooms waiting for a driver",
		}, inactive),
	)
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

func (m *Metrics) LocationUpdate() {
	if m != nil {
		m.LocationUpdates.Inc()
	}
}

func (m *Metrics) DeliveryFailed(event string) {
	if m != nil {
		m.DeliveryFailures.WithLabelValues(event).Inc()
	}
}

func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.FramesDropped.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) Swept(n int) {
	if m != nil && n > 0 {
		m.RoomsSwept.Add(float64(n))
	}
}

func (m *Metrics) EventDropped() {
	if m != nil {
		m.EventsDropped.Inc()
	}
}

func (m *Metrics) SinkFailed(sink string) {
	if m != nil {
		m.EventSinkFailures.WithLabelValues(sink).Inc()
	}
}

// Handler returns an http.Handler for Prometheus scraping
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
