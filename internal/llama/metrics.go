package llama

import "github.com/prometheus/client_golang/prometheus"

var (
	streamFragments = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "stream",
		Name:      "fragments_total",
		Help:      "Total text fragments yielded by completion streams",
	})

	streamMalformedLines = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "stream",
		Name:      "malformed_lines_total",
		Help:      "Stream lines that failed to parse and were skipped",
	})

	probeResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "inferd",
		Subsystem: "probe",
		Name:      "results_total",
		Help:      "Health probe outcomes by status classification",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(streamFragments, streamMalformedLines, probeResults)
}
