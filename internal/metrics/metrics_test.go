package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bat = domain.ComponentInfo{Id: 10, DeviceId: 1, Kind: domain.ComponentKindBat}

func TestFaultSinkMetrics(t *testing.T) {

	assert := assert.New(t)

	m := NewMetrics()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	m.Report(bat, domain.HealthyRecord(now))
	assert.Equal(1.0, testutil.ToFloat64(m.componentHealthy.WithLabelValues("1", "10", "bat")))

	m.Report(bat, domain.FaultRecord{Cause: domain.ClassifyFault(&domain.DeviceUnavailableError{Device: "senec", Err: errors.New("timeout")}), UpdatedAt: now})
	m.Report(bat, domain.FaultRecord{Cause: domain.FaultCauseTransient, UpdatedAt: now})
	assert.Equal(0.0, testutil.ToFloat64(m.componentHealthy.WithLabelValues("1", "10", "bat")))
	assert.Equal(2.0, testutil.ToFloat64(m.componentFaults.WithLabelValues("1", "10", "bat", domain.FaultCauseTransient.String())))
}

func TestCycleAndEnergyMetrics(t *testing.T) {

	require := require.New(t)

	m := NewMetrics()
	m.ObserveCycle(1, 150*time.Millisecond, 2)
	m.ObserveCycle(1, 100*time.Millisecond, 1)
	m.SetEnergy(bat, 1000, 250)
	m.ModbusInstrument().RecordTime("ReadRegisters", 20*time.Millisecond)

	require.Equal(3.0, testutil.ToFloat64(m.cycleFailures.WithLabelValues("1")))
	require.Equal(250.0, testutil.ToFloat64(m.energy.WithLabelValues("1", "10", "bat", "exported")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.True(strings.Contains(body, "senec2mqtt_cycle_duration_seconds_count{device=\"1\"} 2"))
	require.Contains(body, "senec2mqtt_modbus_request_duration_seconds")
}

func TestNilMetricsIsNoop(t *testing.T) {

	var m *Metrics
	assert.NotPanics(t, func() {
		m.Report(bat, domain.FaultRecord{})
		m.ObserveCycle(1, time.Second, 0)
		m.SetEnergy(bat, 1, 1)
	})
}
