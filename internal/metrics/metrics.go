package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registry = prometheus.NewRegistry()
	initOnce sync.Once

	filesIntake = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "copyshop",
			Name:      "files_intake_total",
			Help:      "File assignments by slot kind and result (accepted, rejected, cleared)",
		},
		[]string{"kind", "result"},
	)

	analyses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "copyshop",
			Name:      "page_analyses_total",
			Help:      "Page-count resolutions by result (ok, empty, failed, superseded)",
		},
		[]string{"result"},
	)

	pagesCounted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "copyshop",
			Name:      "pages_counted_total",
			Help:      "Total pages resolved across material files",
		},
	)

	remoteCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "copyshop",
			Name:      "remote_calls_total",
			Help:      "Calls to the order service by operation and result",
		},
		[]string{"op", "result"},
	)

	remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "copyshop",
			Name:      "remote_call_duration_seconds",
			Help:      "Duration of calls to the order service by operation",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	lastAmountDue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "copyshop",
			Name:      "last_amount_due",
			Help:      "Deposit amount of the last quoted or submitted order",
		},
	)
)

// Init registers collectors. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		registry.MustRegister(filesIntake, analyses, pagesCounted, remoteCalls, remoteLatency, lastAmountDue)
	})
}

// Gatherer exposes the private registry.
func Gatherer() prometheus.Gatherer { return registry }

// WriteTextfile dumps the current values in the node_exporter textfile format.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, registry)
}

func IncIntake(kind, result string) { filesIntake.WithLabelValues(kind, result).Inc() }

func IncAnalysis(result string, pages int) {
	analyses.WithLabelValues(result).Inc()
	if pages > 0 {
		pagesCounted.Add(float64(pages))
	}
}

func ObserveRemote(op string, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	remoteCalls.WithLabelValues(op, result).Inc()
	remoteLatency.WithLabelValues(op).Observe(dur.Seconds())
}

func SetLastAmountDue(v float64) { lastAmountDue.Set(v) }
