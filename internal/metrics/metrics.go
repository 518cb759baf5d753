/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

// Package metrics defines Prometheus metrics for the monfront front end.
//
// All metrics are registered with a dedicated registry served by Handler.
//
// Metric naming follows Prometheus conventions:
//   - monfront_ prefix for all custom metrics
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every monfront collector.
var Registry = prometheus.NewRegistry()

var (
	// DispatchTotal counts action dispatches by action and outcome.
	DispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monfront_dispatch_total",
			Help: "Total action dispatches by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// DispatchDurationSeconds is a histogram of dispatch duration by action.
	DispatchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monfront_dispatch_duration_seconds",
			Help:    "Duration of action dispatches in seconds.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"action"},
	)

	// APICallsTotal counts remote API calls by method and status.
	APICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monfront_api_calls_total",
			Help: "Total remote API calls by method and status.",
		},
		[]string{"method", "status"},
	)

	// APICallDurationSeconds is a histogram of remote API latency by method.
	APICallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "monfront_api_call_duration_seconds",
			Help:    "Duration of remote API calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// LoginAttemptsTotal counts login attempts by result.
	LoginAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monfront_login_attempts_total",
			Help: "Total login attempts by result.",
		},
		[]string{"result"},
	)

	// SessionsExpiredTotal counts sessions removed by the cleanup job.
	SessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "monfront_sessions_expired_total",
			Help: "Total expired sessions removed by cleanup.",
		},
	)

	// RateLimitedTotal counts requests rejected by a rate limiter.
	RateLimitedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "monfront_rate_limited_total",
			Help: "Total requests rejected by rate limiting, by scope.",
		},
		[]string{"scope", "role"},
	)

	// InflightDispatches is the number of actions currently being dispatched.
	InflightDispatches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "monfront_inflight_dispatches",
			Help: "Number of action dispatches currently executing.",
		},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		DispatchTotal,
		DispatchDurationSeconds,
		APICallsTotal,
		APICallDurationSeconds,
		LoginAttemptsTotal,
		SessionsExpiredTotal,
		RateLimitedTotal,
		InflightDispatches,
	)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// RecordDispatch records a finished action dispatch.
func RecordDispatch(action, outcome string, duration time.Duration) {
	DispatchTotal.WithLabelValues(action, outcome).Inc()
	DispatchDurationSeconds.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordAPICall records a finished remote API call.
func RecordAPICall(method, status string, duration time.Duration) {
	APICallsTotal.WithLabelValues(method, status).Inc()
	APICallDurationSeconds.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordLogin records a login attempt.
func RecordLogin(result string) {
	LoginAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordSessionsExpired records sessions removed by cleanup.
func RecordSessionsExpired(n int64) {
	if n > 0 {
		SessionsExpiredTotal.Add(float64(n))
	}
}

// RecordRateLimited records a request rejected by a rate limiter.
func RecordRateLimited(scope, role string) {
	RateLimitedTotal.WithLabelValues(scope, role).Inc()
}
