package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request handling time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)

	wsActiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	activeRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signaling_active_rooms",
			Help: "Number of rooms currently registered",
		},
	)

	roomJoinsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_room_joins_total",
			Help: "Room admission attempts by result",
		},
		[]string{"result"},
	)

	relayedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signaling_relayed_messages_total",
			Help: "Negotiation messages relayed between room members",
		},
		[]string{"kind"},
	)

	reapedRoomsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signaling_reaped_rooms_total",
			Help: "Empty rooms removed by the idle reaper",
		},
	)
)

// RecordHTTPMetrics records counters and latency for one HTTP request.
func RecordHTTPMetrics(method, endpoint string, status int, duration time.Duration) {
	strStatus := strconv.Itoa(status)

	httpRequestsTotal.WithLabelValues(method, endpoint, strStatus).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint, strStatus).Observe(duration.Seconds())
}

func IncrementWSActiveConnections() {
	wsActiveConnections.Inc()
}

func DecrementWSActiveConnections() {
	wsActiveConnections.Dec()
}

func SetActiveRooms(count int) {
	activeRooms.Set(float64(count))
}

func IncRoomJoin(result string) {
	roomJoinsTotal.WithLabelValues(result).Inc()
}

func IncRelayedMessage(kind string) {
	relayedMessagesTotal.WithLabelValues(kind).Inc()
}

func AddReapedRooms(count int) {
	reapedRoomsTotal.Add(float64(count))
}
