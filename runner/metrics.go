package runner

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var restartCount = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "discussbot_loop_restarts",
	Help: "Number of times the loops were restarted after a failure, by the task which failed",
}, []string{"task"})

var eventPollCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_event_polls",
	Help: "Number of times outstanding events were fetched",
})

var eventPollErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "discussbot_event_poll_errors",
	Help: "Number of failed fetches of outstanding events",
})
