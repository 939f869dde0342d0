/*
 * Copyright (c) 2025 SECOM CO., LTD. All Rights reserved.
 *
 * SPDX-License-Identifier: BSD-2-Clause
 */

// Package metric exposes prometheus counters for the fetch pipeline and the
// storage engine.
package metric

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kentakayama/suit-storage/internal/domain"
)

const namespace = "suit"

// Metrics holds every collector and the registry they are registered with.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FetchOperations *prometheus.CounterVec
	FetchedBytes    *prometheus.CounterVec
	FetchDuration   *prometheus.HistogramVec

	StorageOperations *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FetchOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "operations_total",
				Help:      "Total number of fetch operations by operation and result",
			},
			[]string{"operation", "result"},
		),

		FetchedBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "bytes_total",
				Help:      "Total number of payload bytes written into sinks",
			},
			[]string{"operation"},
		),

		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "fetch",
				Name:      "duration_seconds",
				Help:      "Fetch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		StorageOperations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "storage",
				Name:      "operations_total",
				Help:      "Total number of storage operations by operation and result",
			},
			[]string{"operation", "result"},
		),
	}

	m.registry.MustRegister(
		m.FetchOperations,
		m.FetchedBytes,
		m.FetchDuration,
		m.StorageOperations,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Result is the label value recorded for err.
func Result(err error) string {
	if err == nil {
		return "ok"
	}
	return domain.Kind(err).Error()
}

// ObserveFetch records one fetch operation.
func (m *Metrics) ObserveFetch(operation string, err error, written int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FetchOperations.WithLabelValues(operation, Result(err)).Inc()
	if written > 0 {
		m.FetchedBytes.WithLabelValues(operation).Add(float64(written))
	}
	m.FetchDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveStorage records one storage operation.
func (m *Metrics) ObserveStorage(operation string, err error) {
	if m == nil {
		return
	}
	m.StorageOperations.WithLabelValues(operation, Result(err)).Inc()
}
