package metrics

import (
	"net/http"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/port"
	"github.com/berfenger/senec2mqtt/pkg/sunspec_modbus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "senec2mqtt"

type Metrics struct {
	registry         *prometheus.Registry
	cycleDuration    *prometheus.HistogramVec
	cycleFailures    *prometheus.CounterVec
	componentFaults  *prometheus.CounterVec
	componentHealthy *prometheus.GaugeVec
	energy           *prometheus.GaugeVec
	modbusDuration   *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	componentLabels := []string{"device", "component", "kind"}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of one update cycle by device.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"device"}),
		cycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_failed_components_total",
			Help:      "Component updates that failed, summed per device.",
		}, []string{"device"}),
		componentFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "component_faults_total",
			Help:      "Failed component updates by cause.",
		}, append(componentLabels, "cause")),
		componentHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_healthy",
			Help:      "1 when the last update of the component succeeded.",
		}, componentLabels),
		energy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "component_energy_wh",
			Help:      "Accumulated energy of a component by direction.",
		}, append(componentLabels, "direction")),
		modbusDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "modbus_request_duration_seconds",
			Help:      "Duration of modbus register accesses.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"fn"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.cycleDuration,
		m.cycleFailures,
		m.componentFaults,
		m.componentHealthy,
		m.energy,
		m.modbusDuration,
	)
	return m
}

func componentLabelValues(info domain.ComponentInfo) []string {
	return []string{info.DeviceId.String(), info.Id.String(), string(info.Kind)}
}

// Report implements port.FaultSink.
func (m *Metrics) Report(info domain.ComponentInfo, record domain.FaultRecord) {
	if m == nil {
		return
	}
	labels := componentLabelValues(info)
	if record.Healthy {
		m.componentHealthy.WithLabelValues(labels...).Set(1)
		return
	}
	m.componentHealthy.WithLabelValues(labels...).Set(0)
	m.componentFaults.WithLabelValues(append(labels, record.Cause.String())...).Inc()
}

func (m *Metrics) ObserveCycle(device domain.DeviceId, duration time.Duration, failed int) {
	if m == nil {
		return
	}
	m.cycleDuration.WithLabelValues(device.String()).Observe(duration.Seconds())
	m.cycleFailures.WithLabelValues(device.String()).Add(float64(failed))
}

func (m *Metrics) SetEnergy(info domain.ComponentInfo, imported, exported float64) {
	if m == nil {
		return
	}
	labels := componentLabelValues(info)
	m.energy.WithLabelValues(append(labels, "imported")...).Set(imported)
	m.energy.WithLabelValues(append(labels, "exported")...).Set(exported)
}

func (m *Metrics) ModbusInstrument() sunspec_modbus.ModbusInstrument {
	return sunspec_modbus.ModbusInstrument{
		RecordTime: func(fnName string, readTime time.Duration) {
			m.modbusDuration.WithLabelValues(fnName).Observe(readTime.Seconds())
		},
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

var _ port.FaultSink = (*Metrics)(nil)
