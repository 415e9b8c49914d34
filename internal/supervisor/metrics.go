package supervisor

import "github.com/prometheus/client_golang/prometheus"

var (
	startAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "supervisor",
		Name:      "start_attempts_total",
		Help:      "Server launch attempts by outcome",
	}, []string{"result"})

	processExits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "supervisor",
		Name:      "process_exits_total",
		Help:      "Supervised process exits, expected or not",
	})
)

func init() {
	prometheus.MustRegister(startAttempts, processExits)
}
