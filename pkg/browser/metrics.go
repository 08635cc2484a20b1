package browser

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricMessagesRouted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "debot",
		Name:      "messages_routed_total",
		Help:      "Messages taken off the queue, by destination kind.",
	}, []string{"route"})
	metricInterfaceCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "debot",
		Name:      "interface_calls_total",
		Help:      "Interface calls, by outcome (answered, unhandled, failed).",
	}, []string{"outcome"})
	metricRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "debot",
		Name:      "manifest_runs_total",
		Help:      "Manifest runs, by result.",
	}, []string{"result"})
	metricInstances = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "debot",
		Name:      "bot_instances",
		Help:      "Bot instances alive across all browsers.",
	})
)
