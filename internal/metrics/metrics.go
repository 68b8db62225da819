package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mossy-p/webrtc-matchmaker/internal/matchmaking"
	"github.com/mossy-p/webrtc-matchmaker/internal/models"
)

const namespace = "matchmaker"

// Metrics exports matchmaker activity to Prometheus. It implements
// matchmaking.Observer.
type Metrics struct {
	registry *prometheus.Registry

	online      prometheus.Gauge
	queued      prometheus.Gauge
	rooms       prometheus.Gauge
	roomsOpened prometheus.Counter
	relayed     *prometheus.CounterVec
	rejected    *prometheus.CounterVec
}

var _ matchmaking.Observer = (*Metrics)(nil)

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_online",
			Help:      "Connected users.",
		}),
		queued: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users_queued",
			Help:      "Users waiting for a partner.",
		}),
		rooms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Open two-party rooms.",
		}),
		roomsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_opened_total",
			Help:      "Rooms created since start.",
		}),
		relayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_relayed_total",
			Help:      "Signaling messages by event and outcome (delivered or dropped).",
		}, []string{"event", "outcome"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_rejected_total",
			Help:      "Inbound frames rejected before reaching the matchmaker.",
		}, []string{"reason"}),
	}

	m.registry.MustRegister(
		m.online, m.queued, m.rooms, m.roomsOpened, m.relayed, m.rejected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) UserConnected(*matchmaking.User) { m.online.Inc() }
func (m *Metrics) UserDisconnected(string)         { m.online.Dec() }
func (m *Metrics) RoomClosed(string)               { m.rooms.Dec() }
func (m *Metrics) QueueChanged(length int)         { m.queued.Set(float64(length)) }

func (m *Metrics) RoomOpened(string, *matchmaking.User, *matchmaking.User) {
	m.rooms.Inc()
	m.roomsOpened.Inc()
}

func (m *Metrics) Relayed(event models.SignalType, delivered bool) {
	outcome := "dropped"
	if delivered {
		outcome = "delivered"
	}
	m.relayed.WithLabelValues(string(event), outcome).Inc()
}

// Rejected counts an inbound frame refused at the transport boundary.
func (m *Metrics) Rejected(reason string) {
	m.rejected.WithLabelValues(reason).Inc()
}
