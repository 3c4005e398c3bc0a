package monitor

import (
	"expvar"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	OnlinePlayers    prometheus.Gauge
	ActiveRooms      prometheus.Gauge
	RoomConnections  *prometheus.GaugeVec
	RoomPlayers      *prometheus.GaugeVec
	MessagesReceived *prometheus.CounterVec
	CommandsRejected *prometheus.CounterVec
	SessionsEvicted  prometheus.Counter
	GamesStarted     prometheus.Counter
	MatchesRecorded  prometheus.Counter
	MatchesDropped   prometheus.Counter
	MessageLatency   prometheus.Histogram
}

func NewMetrics(namespace string, registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		OnlinePlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online_connections",
			Help:      "Number of open player connections",
		}),
		ActiveRooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Number of room instances",
		}),
		RoomConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_connections",
			Help:      "Live connections per room",
		}, []string{"room"}),
		RoomPlayers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_players",
			Help:      "Joined players per room",
		}, []string{"room"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_received_total",
			Help:      "Inbound messages by type",
		}, []string{"type"}),
		CommandsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_rejected_total",
			Help:      "Inbound messages answered with ERROR, by type",
		}, []string{"type"}),
		SessionsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_evicted_total",
			Help:      "Connections dropped after a failed send or ping",
		}),
		GamesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Rounds that entered play",
		}),
		MatchesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_recorded_total",
			Help:      "Match records written to storage",
		}),
		MatchesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_dropped_total",
			Help:      "Match records lost to a full queue or a storage error",
		}),
		MessageLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_latency_seconds",
			Help:      "Message processing latency",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	registry.MustRegister(
		m.OnlinePlayers,
		m.ActiveRooms,
		m.RoomConnections,
		m.RoomPlayers,
		m.MessagesReceived,
		m.CommandsRejected,
		m.SessionsEvicted,
		m.GamesStarted,
		m.MatchesRecorded,
		m.MatchesDropped,
		m.MessageLatency,
	)

	return m
}

// Monitor owns a private registry so several instances can coexist in tests.
type Monitor struct {
	metrics      *Metrics
	registry     *prometheus.Registry
	startTime    time.Time
	requestCount atomic.Int64
}

func NewMonitor(namespace string) *Monitor {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Monitor{
		metrics:   NewMetrics(namespace, registry),
		registry:  registry,
		startTime: time.Now(),
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// PublishExpvar exposes uptime and message count under /debug/vars. expvar
// names are process-global, so this is called once from main.
func (m *Monitor) PublishExpvar() {
	expvar.Publish("uptime", expvar.Func(func() any {
		return time.Since(m.startTime).Seconds()
	}))
	expvar.Publish("requests", expvar.Func(func() any {
		return m.requestCount.Load()
	}))
}

// --- room.Observer ---

func (m *Monitor) IncOnlinePlayers() {
	m.metrics.OnlinePlayers.Inc()
}

func (m *Monitor) DecOnlinePlayers() {
	m.metrics.OnlinePlayers.Dec()
}

func (m *Monitor) SetActiveRooms(count int) {
	m.metrics.ActiveRooms.Set(float64(count))
}

func (m *Monitor) SetRoomOccupancy(room string, connections, players int) {
	m.metrics.RoomConnections.WithLabelValues(room).Set(float64(connections))
	m.metrics.RoomPlayers.WithLabelValues(room).Set(float64(players))
}

func (m *Monitor) IncMessagesReceived(msgType string) {
	m.metrics.MessagesReceived.WithLabelValues(msgType).Inc()
	m.requestCount.Add(1)
}

func (m *Monitor) IncCommandsRejected(msgType string) {
	m.metrics.CommandsRejected.WithLabelValues(msgType).Inc()
}

func (m *Monitor) ObserveMessageLatency(duration time.Duration) {
	m.metrics.MessageLatency.Observe(duration.Seconds())
}

func (m *Monitor) IncEvictions() {
	m.metrics.SessionsEvicted.Inc()
}

func (m *Monitor) IncGamesStarted() {
	m.metrics.GamesStarted.Inc()
}

// --- services.MatchObserver ---

func (m *Monitor) IncMatchesRecorded() {
	m.metrics.MatchesRecorded.Inc()
}

func (m *Monitor) IncMatchesDropped() {
	m.metrics.MatchesDropped.Inc()
}
