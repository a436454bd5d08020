package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records engine and feed activity. It implements engine.Recorder
// and hubfeed.SnapshotRecorder.
type Metrics struct {
	operations     *prometheus.CounterVec
	snapshots      *prometheus.CounterVec
	tempSuperseded prometheus.Counter
	remaining      *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "target_operations_total",
			Help: "Target lifecycle calls by operation and result",
		}, []string{"op", "result"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "target_snapshots_total",
			Help: "Order snapshots received by result",
		}, []string{"result"}),
		tempSuperseded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "target_temp_superseded_total",
			Help: "Local temporary targets replaced by confirmed ones during merge",
		}),
		remaining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "target_remaining_lot",
			Help: "Unallocated lot size per open order",
		}, []string{"order_id"}),
	}
	reg.MustRegister(m.operations, m.snapshots, m.tempSuperseded, m.remaining)
	return m
}

func (m *Metrics) Operation(op, result string) {
	m.operations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Snapshot(result string) {
	m.snapshots.WithLabelValues(result).Inc()
}

func (m *Metrics) TempSuperseded(n int) {
	if n > 0 {
		m.tempSuperseded.Add(float64(n))
	}
}

func (m *Metrics) Remaining(orderID string, lot float64) {
	m.remaining.WithLabelValues(orderID).Set(lot)
}
