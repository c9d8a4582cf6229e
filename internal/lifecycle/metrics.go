package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qrpay_client_sessions_started_total",
		Help: "Payment request sessions opened by the lifecycle controller",
	})

	pollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrpay_client_polls_total",
		Help: "Status probes by result",
	}, []string{"result"})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrpay_client_transitions_total",
		Help: "Accepted terminal transitions",
	}, []string{"status", "source"})

	proposalsDiscarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qrpay_client_proposals_discarded_total",
		Help: "Proposals rejected by the terminal guard",
	}, []string{"reason"})
)
