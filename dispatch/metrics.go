package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var eventProcessDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "discussbot_event_duration_sec",
	Help: "Total duration of inbound event processing",
}, []string{"kind"})

var eventProcessCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "discussbot_event_processed",
	Help: "Number of inbound events dispatched to a handler",
}, []string{"kind"})

var eventReplayCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_event_replayed",
	Help: "Number of re-delivered events for which only the acknowledgment was retried",
})

var eventAckErrorCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_event_ack_errors",
	Help: "Number of failed event acknowledgments",
})

var actionCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "discussbot_event_actions",
	Help: "Number of actions taken while handling events, by outcome",
}, []string{"action", "result"})

var relationshipFetches = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_relationship_fetches",
	Help: "Number of account relationship lookups against the API (cache misses)",
})
