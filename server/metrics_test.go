package server_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"scscp.dev/scscpd/server"
)

func TestMetricsTrackTasksInFlight(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := server.NewMetrics(reg)

	m.TaskStarted()
	m.TaskStarted()
	m.TaskEnded()

	families, err := reg.Gather()
	require.NoError(t, err)

	var gauge *dto.Metric
	for _, f := range families {
		if f.GetName() == "scscpd_acceptor_tasks_in_flight" {
			gauge = f.GetMetric()[0]
		}
	}
	require.NotNil(t, gauge)
	require.Equal(t, float64(1), gauge.GetGauge().GetValue())
}
