package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	eventsTotal         *prometheus.CounterVec
	fraudScoreHistogram prometheus.Histogram
	botDetectionsTotal  *prometheus.CounterVec
	rateLimitViolations *prometheus.CounterVec
)

func InitPrometheusMetrics() {
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clickguard",
			Name:      "events_total",
			Help:      "Total number of ingested click events.",
		},
		[]string{"project", "action"},
	)
	fraudScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clickguard",
			Name:      "fraud_score",
			Help:      "Distribution of composite fraud scores.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
	botDetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clickguard",
			Name:      "bot_detections_total",
			Help:      "Total number of events classified as bots.",
		},
		[]string{"project", "crawler"},
	)
	rateLimitViolations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clickguard",
			Name:      "ratelimit_violations_total",
			Help:      "Total number of rate limit violations by scope.",
		},
		[]string{"scope"},
	)
	prometheus.MustRegister(eventsTotal, fraudScoreHistogram, botDetectionsTotal, rateLimitViolations)
}

// PrometheusHandler serves the text exposition format for scraping.
func PrometheusHandler() fasthttp.RequestHandler {
	return fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
}
