// Package metrics provides application metrics collection.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/infinitune/roomserver/internal/utils"
)

// Metrics collects the coordinator's operational counters and gauges.
type Metrics struct {
	logger *utils.Logger

	// Room metrics
	roomsActive   prometheus.GaugeFunc
	devicesActive prometheus.GaugeFunc
	socketsActive prometheus.GaugeFunc

	// WebSocket metrics
	wsConnectionsTotal prometheus.Counter
	wsMessagesTotal    *prometheus.CounterVec
	wsEvictionsTotal   prometheus.Counter

	// Coordination metrics
	commandsTotal    *prometheus.CounterVec
	transitionsTotal prometheus.Counter

	// Bus metrics
	busReconnectsTotal prometheus.Counter
	busEventsTotal     *prometheus.CounterVec
}

// Counter is a roster-shaped snapshot source for the gauges.
type Counter interface {
	Counts() (rooms, devices, sockets int)
}

// New registers the coordinator metrics. counts feeds the gauges lazily at
// scrape time.
func New(counts Counter, logger *utils.Logger) *Metrics {
	m := &Metrics{logger: logger.Named("metrics")}

	m.roomsActive = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "roomserver_rooms_active",
		Help: "Number of active rooms",
	}, func() float64 {
		rooms, _, _ := counts.Counts()
		return float64(rooms)
	})

	m.devicesActive = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "roomserver_devices_active",
		Help: "Number of devices across all rooms",
	}, func() float64 {
		_, devices, _ := counts.Counts()
		return float64(devices)
	})

	m.socketsActive = promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "roomserver_sockets_active",
		Help: "Number of bound WebSocket connections",
	}, func() float64 {
		_, _, sockets := counts.Counts()
		return float64(sockets)
	})

	m.wsConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomserver_ws_connections_total",
		Help: "Total number of WebSocket connections accepted",
	})

	m.wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomserver_ws_messages_total",
		Help: "Total number of WebSocket messages",
	}, []string{"direction", "type"})

	m.wsEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomserver_ws_evictions_total",
		Help: "Sockets evicted for outbound queue overflow",
	})

	m.commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomserver_commands_total",
		Help: "Commands interpreted, by action",
	}, []string{"action"})

	m.transitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomserver_transitions_total",
		Help: "Next-song transitions executed",
	})

	m.busReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "roomserver_bus_reconnects_total",
		Help: "Invalidation bus reconnect attempts",
	})

	m.busEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "roomserver_bus_events_total",
		Help: "Invalidation bus events consumed, by routing key class",
	}, []string{"kind"})

	return m
}

// Handler returns an HTTP handler for exposing metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// The recording methods tolerate a nil receiver so callers need no guards
// when metrics are disabled.

// ConnectionOpened records an accepted WebSocket connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.wsConnectionsTotal.Inc()
}

// MessageReceived records an inbound WebSocket message.
func (m *Metrics) MessageReceived(msgType string) {
	if m == nil {
		return
	}
	m.wsMessagesTotal.WithLabelValues("in", msgType).Inc()
}

// MessageSent records an outbound WebSocket frame.
func (m *Metrics) MessageSent(frameType string) {
	if m == nil {
		return
	}
	m.wsMessagesTotal.WithLabelValues("out", frameType).Inc()
}

// SocketEvicted records an outbound queue overflow eviction.
func (m *Metrics) SocketEvicted() {
	if m == nil {
		return
	}
	m.wsEvictionsTotal.Inc()
}

// CommandHandled records one interpreted command.
func (m *Metrics) CommandHandled(action string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(action).Inc()
}

// TransitionExecuted records one next-song transition.
func (m *Metrics) TransitionExecuted() {
	if m == nil {
		return
	}
	m.transitionsTotal.Inc()
}

// BusReconnect records one bus reconnect attempt.
func (m *Metrics) BusReconnect() {
	if m == nil {
		return
	}
	m.busReconnectsTotal.Inc()
}

// BusEvent records one consumed invalidation event.
func (m *Metrics) BusEvent(kind string) {
	if m == nil {
		return
	}
	m.busEventsTotal.WithLabelValues(kind).Inc()
}
