// Package metrics holds the Prometheus collectors for the sync engine.
//
// Every recording method is safe on a nil *Metrics so packages under test
// can run without a registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "syncban"

type Metrics struct {
	// Connections is the number of sockets currently open (any state).
	Connections prometheus.Gauge

	// Handshakes counts connection handshakes.
	// Labels: result (accepted|rejected)
	Handshakes *prometheus.CounterVec

	// Rooms is the number of team rooms with at least one member.
	Rooms prometheus.Gauge

	// Events counts inbound realtime events.
	// Labels: event, result (ok|<error code>)
	Events *prometheus.CounterVec

	// EventDuration measures handler latency in seconds.
	// Labels: event
	EventDuration *prometheus.HistogramVec

	// BroadcastFrames counts frames enqueued to room members.
	BroadcastFrames prometheus.Counter

	// SlowConsumerDrops counts connections closed because their send buffer was full.
	SlowConsumerDrops prometheus.Counter

	// Activity counts activity entries by outcome.
	// Labels: outcome (queued|written|retried|dropped)
	Activity *prometheus.CounterVec

	// ActivityQueueDepth is the number of entries waiting to be written.
	ActivityQueueDepth prometheus.Gauge

	// BoardTotals holds document counts refreshed by a background job.
	// Labels: kind (users|teams|tasks|activity)
	BoardTotals *prometheus.GaugeVec

	// HTTPRequestDuration measures HTTP API request latency.
	// Labels: method, route, status_code
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Connections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Current number of open websocket connections",
		}),
		Handshakes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_handshakes_total",
			Help:      "Websocket handshakes by result",
		}, []string{"result"}),
		Rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms_active",
			Help:      "Team rooms with at least one connection",
		}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Inbound realtime events by event name and result",
		}, []string{"event", "result"}),
		EventDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Realtime event handling latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"event"}),
		BroadcastFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcast_frames_total",
			Help:      "Frames enqueued to room members",
		}),
		SlowConsumerDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumer_drops_total",
			Help:      "Connections closed because their send buffer was full",
		}),
		Activity: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activity_entries_total",
			Help:      "Activity entries by outcome",
		}, []string{"outcome"}),
		ActivityQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "activity_queue_depth",
			Help:      "Activity entries waiting to be written",
		}),
		BoardTotals: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "board_documents",
			Help:      "Stored document counts by kind",
		}, []string{"kind"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route", "status_code"}),
	}
}

func (m *Metrics) ConnOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

// Handshake records a handshake outcome.
func (m *Metrics) Handshake(accepted bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if accepted {
		result = "accepted"
	}
	m.Handshakes.WithLabelValues(result).Inc()
}

// SetRooms sets the active room gauge.
func (m *Metrics) SetRooms(n int) {
	if m != nil {
		m.Rooms.Set(float64(n))
	}
}

// Event records one handled event. result is "ok" or an error code.
func (m *Metrics) Event(event, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(event, result).Inc()
	m.EventDuration.WithLabelValues(event).Observe(elapsed.Seconds())
}

// Broadcast records frames delivered and connections dropped by one fan-out.
func (m *Metrics) Broadcast(delivered, dropped int) {
	if m == nil {
		return
	}
	m.BroadcastFrames.Add(float64(delivered))
	m.SlowConsumerDrops.Add(float64(dropped))
}

// ActivityOutcome counts an activity entry by outcome.
func (m *Metrics) ActivityOutcome(outcome string) {
	if m != nil {
		m.Activity.WithLabelValues(outcome).Inc()
	}
}

// SetActivityQueueDepth sets the activity queue gauge.
func (m *Metrics) SetActivityQueueDepth(n int) {
	if m != nil {
		m.ActivityQueueDepth.Set(float64(n))
	}
}

// SetBoardTotal sets the stored document count for kind.
func (m *Metrics) SetBoardTotal(kind string, n int64) {
	if m != nil {
		m.BoardTotals.WithLabelValues(kind).Set(float64(n))
	}
}

// Middleware observes HTTP latency labelled by the matched chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequestDuration.
			WithLabelValues(r.Method, route, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}
