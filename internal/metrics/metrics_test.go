package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestObserveRequestIncrementsCounterAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("test", reg)

	m.ObserveRequest("http", "/query", "200", 50*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)

	var total float64
	for _, fam := range families {
		if fam.GetName() == "grafeodb_requests_total" {
			for _, metric := range fam.Metric {
				total += metric.GetCounter().GetValue()
			}
		}
	}
	require.Equal(t, float64(1), total)
}

func TestMetricsCarryServiceLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry("grafeo-test", reg)
	m.SessionsActive.Set(3)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found *dto.Metric
	for _, fam := range families {
		if fam.GetName() == "grafeodb_sessions_active" {
			found = fam.Metric[0]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, float64(3), found.GetGauge().GetValue())
	var hasServiceLabel bool
	for _, lbl := range found.Label {
		if lbl.GetName() == "service" && lbl.GetValue() == "grafeo-test" {
			hasServiceLabel = true
		}
	}
	require.True(t, hasServiceLabel)
}
