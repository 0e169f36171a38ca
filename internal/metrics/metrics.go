// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/reval/internal/validation"
)

type MetricsManager struct {
	registry            *prometheus.Registry
	validationCollector *ValidationCollector
}

func NewMetricsManager(coordinator *validation.Coordinator) *MetricsManager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	validationCollector := NewValidationCollector(coordinator)
	registry.MustRegister(validationCollector)

	log.Info().Msg("Metrics manager initialized with collectors")

	return &MetricsManager{
		registry:            registry,
		validationCollector: validationCollector,
	}
}

func (m *MetricsManager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// ValidationCollector exposes coordinator counters as Prometheus metrics.
// Values are read from the coordinator on every scrape.
type ValidationCollector struct {
	coordinator *validation.Coordinator

	cacheHitsDesc     *prometheus.Desc
	joinsDesc         *prometheus.Desc
	validationsDesc   *prometheus.Desc
	completedDesc     *prometheus.Desc
	failedDesc        *prometheus.Desc
	shortCircuitsDesc *prometheus.Desc
	tableSizeDesc     *prometheus.Desc
	inFlightDesc      *prometheus.Desc
}

func NewValidationCollector(coordinator *validation.Coordinator) *ValidationCollector {
	return &ValidationCollector{
		coordinator: coordinator,
		cacheHitsDesc: prometheus.NewDesc(
			"reval_validation_cache_hits_total",
			"Number of validations served from the request table within the freshness window",
			nil, nil,
		),
		joinsDesc: prometheus.NewDesc(
			"reval_validation_joins_total",
			"Number of callers that joined an in-flight validation",
			nil, nil,
		),
		validationsDesc: prometheus.NewDesc(
			"reval_validation_requests_total",
			"Number of validation calls issued to the validation service",
			nil, nil,
		),
		completedDesc: prometheus.NewDesc(
			"reval_validation_completed_total",
			"Number of validations that completed successfully",
			nil, nil,
		),
		failedDesc: prometheus.NewDesc(
			"reval_validation_failed_total",
			"Number of validations that finished with an error result",
			nil, nil,
		),
		shortCircuitsDesc: prometheus.NewDesc(
			"reval_validation_short_circuits_total",
			"Number of validations rejected locally for failed upstream purchases",
			nil, nil,
		),
		tableSizeDesc: prometheus.NewDesc(
			"reval_validation_table_size",
			"Current number of entries in the request table",
			nil, nil,
		),
		inFlightDesc: prometheus.NewDesc(
			"reval_validation_in_flight",
			"Current number of in-flight validation requests",
			nil, nil,
		),
	}
}

func (c *ValidationCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cacheHitsDesc
	ch <- c.joinsDesc
	ch <- c.validationsDesc
	ch <- c.completedDesc
	ch <- c.failedDesc
	ch <- c.shortCircuitsDesc
	ch <- c.tableSizeDesc
	ch <- c.inFlightDesc
}

func (c *ValidationCollector) Collect(ch chan<- prometheus.Metric) {
	stats := c.coordinator.Stats()

	ch <- prometheus.MustNewConstMetric(c.cacheHitsDesc, prometheus.CounterValue, float64(stats.CacheHits))
	ch <- prometheus.MustNewConstMetric(c.joinsDesc, prometheus.CounterValue, float64(stats.Joins))
	ch <- prometheus.MustNewConstMetric(c.validationsDesc, prometheus.CounterValue, float64(stats.Validations))
	ch <- prometheus.MustNewConstMetric(c.completedDesc, prometheus.CounterValue, float64(stats.Completed))
	ch <- prometheus.MustNewConstMetric(c.failedDesc, prometheus.CounterValue, float64(stats.Failed))
	ch <- prometheus.MustNewConstMetric(c.shortCircuitsDesc, prometheus.CounterValue, float64(stats.ShortCircuits))
	ch <- prometheus.MustNewConstMetric(c.tableSizeDesc, prometheus.GaugeValue, float64(stats.TableSize))
	ch <- prometheus.MustNewConstMetric(c.inFlightDesc, prometheus.GaugeValue, float64(stats.InFlight))
}
