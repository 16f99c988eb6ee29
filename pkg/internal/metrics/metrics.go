package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	votesCast = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "consensus",
		Name:      "votes_cast_total",
		Help:      "Total votes committed to the ledger, replacements included.",
	})
	eventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "consensus",
		Name:      "events_dispatched_total",
		Help:      "Events fanned out to connections, by event name.",
	}, []string{"event"})
	authFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "consensus",
		Name:      "gateway_auth_failures_total",
		Help:      "Connections rejected at authenticate time.",
	})
	liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "consensus",
		Name:      "gateway_connections",
		Help:      "Currently registered gateway connections.",
	})
	openRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "consensus",
		Name:      "open_rooms",
		Help:      "Poll rooms currently held in memory.",
	})
)

func CountVote() {
	votesCast.Inc()
}

func CountDispatch(event string, n int) {
	eventsDispatched.WithLabelValues(event).Add(float64(n))
}

func CountAuthFailure() {
	authFailures.Inc()
}

func SetLiveConnections(n int) {
	liveConnections.Set(float64(n))
}

func SetOpenRooms(n int) {
	openRooms.Set(float64(n))
}
