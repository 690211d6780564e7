package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission triggers.
const (
	TriggerManual = "manual"
	TriggerTimer  = "timer"
)

var (
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_sessions_started_total",
		Help: "Quiz attempts that finished loading and entered progress.",
	})
	Submissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quiz_submissions_total",
		Help: "Persisted quiz submissions by trigger.",
	}, []string{"trigger"})
	SubmissionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "quiz_submission_failures_total",
		Help: "Quiz submissions rejected by the result store.",
	})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "quiz_sessions_active",
		Help: "Quiz sessions currently held in memory.",
	})
)
