// Package metrics provides Prometheus metrics collectors for the gateway.
//
// Purpose:
//
//	This package defines and exports Prometheus metrics for the request gate,
//	authentication, and MFA lifecycle operations. Metrics are registered
//	globally and exposed on the /metrics endpoint.
//
// Dependencies:
//   - github.com/prometheus/client_golang/prometheus: Prometheus Go client
//
// Key Responsibilities:
//   - Define metric collectors (counters, histograms)
//   - Register metrics with the default Prometheus registry via promauto
//   - Provide helper functions to record metric values
//
// Usage:
//
//	Metrics are automatically registered when the package is imported.
//	Use the exported functions to record metric values:
//	  metrics.RecordGateDecision("step-up-required", false)
//	  metrics.RecordAuthAttempt("success")
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "authgate"
)

var (
	// GateDecisionsTotal counts gate evaluations by matched rule and outcome.
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "decisions_total",
			Help:      "Total number of gate decisions by matched rule and action",
		},
		[]string{"rule", "action"}, // action: allow, redirect
	)

	// AuthAttemptsTotal counts password authentication attempts by result.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "attempts_total",
			Help:      "Total number of password authentication attempts by result",
		},
		[]string{"result"}, // result: success, invalid_credentials, locked, error
	)

	// MFAAttemptsTotal counts factor verification attempts by flow and result.
	MFAAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mfa",
			Name:      "attempts_total",
			Help:      "Total number of MFA verification attempts by flow and result",
		},
		[]string{"flow", "result"}, // flow: enroll, step_up; result: success, invalid_code, error
	)

	// MFAVerifyDurationSeconds measures the challenge+verify round trip.
	MFAVerifyDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mfa",
			Name:      "verify_duration_seconds",
			Help:      "Duration of MFA challenge/verify round trips in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"flow"},
	)

	// LockoutsTotal counts account lockouts triggered by failed logins.
	LockoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "lockouts_total",
			Help:      "Total number of account lockouts triggered by failed logins",
		},
	)

	// SessionsElevatedTotal counts sessions raised to AAL2.
	SessionsElevatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "elevated_total",
			Help:      "Total number of sessions elevated to AAL2",
		},
	)
)

// RecordGateDecision increments the gate decision counter.
func RecordGateDecision(rule string, allowed bool) {
	action := "redirect"
	if allowed {
		action = "allow"
	}
	GateDecisionsTotal.WithLabelValues(rule, action).Inc()
}

// RecordAuthAttempt increments the auth attempt counter.
func RecordAuthAttempt(result string) {
	AuthAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordMFAAttempt increments the MFA attempt counter.
func RecordMFAAttempt(flow, result string) {
	MFAAttemptsTotal.WithLabelValues(flow, result).Inc()
}

// ObserveMFAVerifyDuration records the duration of a challenge/verify cycle.
func ObserveMFAVerifyDuration(flow string, d time.Duration) {
	MFAVerifyDurationSeconds.WithLabelValues(flow).Observe(d.Seconds())
}

// RecordLockout increments the lockout counter.
func RecordLockout() {
	LockoutsTotal.Inc()
}

// RecordSessionElevated increments the elevation counter.
func RecordSessionElevated() {
	SessionsElevatedTotal.Inc()
}
