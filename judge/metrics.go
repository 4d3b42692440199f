package judge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	verdictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sqljudge",
		Name:      "verdicts_total",
		Help:      "Judging verdicts by status.",
	}, []string{"status"})
	judgeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "sqljudge",
		Name:      "judge_duration_seconds",
		Help:      "Time taken to judge one submission, including provisioning.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	sessionWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "sqljudge",
		Name:      "session_wait_seconds",
		Help:      "Time spent waiting for an isolated judging session.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"policy"})
	infrastructureErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sqljudge",
		Name:      "infrastructure_errors_total",
		Help:      "Judging attempts that could not produce a verdict.",
	})
)
