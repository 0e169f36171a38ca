// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/autobrr/reval/internal/validation"
)

func TestNewMetricsManager(t *testing.T) {
	manager := NewMetricsManager(validation.NewCoordinator(nil))

	assert.NotNil(t, manager)
	assert.NotNil(t, manager.registry)
	assert.NotNil(t, manager.validationCollector)
}

func TestMetricsManager_GetRegistry(t *testing.T) {
	manager := NewMetricsManager(validation.NewCoordinator(nil))

	registry := manager.GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
}

func TestManager_RegistryIsolation(t *testing.T) {
	manager1 := NewMetricsManager(validation.NewCoordinator(nil))
	manager2 := NewMetricsManager(validation.NewCoordinator(nil))

	assert.NotSame(t, manager1.registry, manager2.registry, "Each manager should have its own registry")
	assert.NotSame(t, manager1.validationCollector, manager2.validationCollector, "Each manager should have its own collector")
}

func TestManager_MetricsCanBeScraped(t *testing.T) {
	manager := NewMetricsManager(validation.NewCoordinator(nil))

	metricCount := testutil.CollectAndCount(manager.GetRegistry())
	assert.Greater(t, metricCount, 0, "Should collect metrics from Go and Process collectors")
}

func TestValidationCollector_Describe(t *testing.T) {
	collector := NewValidationCollector(validation.NewCoordinator(nil))

	descChan := make(chan *prometheus.Desc, 20)
	collector.Describe(descChan)
	close(descChan)

	var descs []*prometheus.Desc
	for desc := range descChan {
		descs = append(descs, desc)
	}

	assert.Len(t, descs, 8, "Should have 8 metric descriptors")
}

func TestValidationCollector_Collect(t *testing.T) {
	collector := NewValidationCollector(validation.NewCoordinator(nil))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	metricCount := testutil.CollectAndCount(registry)
	assert.Equal(t, 8, metricCount, "Every counter and gauge is emitted even before the first validation")
}
