// Copyright (c) 2024 Behnam Momeni
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package metrics collects the Prometheus metrics of the REST agent
// and serves them on the /metrics route.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the agent collectors. A separate registry is used per
// Metrics instance, so tests may create as many engines as they need.
type Metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	upgrades *prometheus.CounterVec
}

// New creates and registers the agent collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbinst_http_requests_total",
				Help: "Total number of served REST requests",
			},
			[]string{"method", "route", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbinst_http_request_duration_seconds",
				Help:    "Duration of REST requests",
				Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
			},
			[]string{"route"},
		),
		upgrades: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbinst_upgrades_total",
				Help: "Total number of upgrade requests by outcome",
			},
			[]string{"outcome"},
		),
	}
	m.registry.MustRegister(
		m.requests, m.latency, m.upgrades,
		collectors.NewGoCollector(),
	)
	return m
}

// Middleware counts the requests by their matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ObserveUpgrade counts one upgrade request with the given outcome,
// e.g., "upgraded", "none", or "failed".
func (m *Metrics) ObserveUpgrade(outcome string) {
	m.upgrades.WithLabelValues(outcome).Inc()
}

// Handler serves the collected metrics.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
