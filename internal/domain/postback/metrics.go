package postback

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	postbackRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postback_requests_total",
			Help: "Postbacks received, by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	postbackPoints = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postback_points_total",
			Help: "User points credited or reversed by postbacks.",
		},
		[]string{"provider", "status"},
	)

	postbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postback_duration_seconds",
			Help:    "Time spent reconciling a postback.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	negativeBalances = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postback_negative_balance_total",
			Help: "Chargebacks that left a user with a negative balance.",
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(postbackRequests, postbackPoints, postbackDuration, negativeBalances)
}

func observe(provider string, res Result, elapsed time.Duration) {
	postbackRequests.WithLabelValues(provider, string(res.Outcome)).Inc()
	postbackDuration.WithLabelValues(provider).Observe(elapsed.Seconds())

	switch res.Outcome {
	case OutcomeCredited:
		postbackPoints.WithLabelValues(provider, "success").Add(float64(res.Points))
	case OutcomeReversed:
		postbackPoints.WithLabelValues(provider, "chargeback").Add(float64(-res.Points))
	}
}
