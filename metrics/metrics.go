// Package metrics wires the transaction engine and dialog table into
// prometheus, the teacher's own metrics dependency (github.com/
// prometheus/client_golang, used by cmd/proxysip's /metrics endpoint in
// the teacher but never wired into the library itself - wired here into
// the engine/dialog table instead, per SPEC_FULL.md section 3's ambient
// addition).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sipcore/sipreactor/transaction"
)

// Recorder implements transaction.MetricsRecorder and additionally
// exposes a dialog-table gauge setter and a wake-coalescing counter,
// all registered against a caller-supplied prometheus.Registerer so
// tests and multiple Core instances in one process don't collide on
// the default registry.
type Recorder struct {
	created     *prometheus.CounterVec
	terminated  *prometheus.CounterVec
	retransmits *prometheus.CounterVec
	dialogs     prometheus.Gauge
	wakeCoalesced prometheus.Counter
}

// New registers every collector against reg and returns the Recorder.
// Pass prometheus.NewRegistry() in tests; pass prometheus.DefaultRegisterer
// in production (cmd/sipreactord does, mirroring the teacher's
// promhttp.Handler() wiring in cmd/proxysip/main.go).
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_created_total",
			Help: "Transactions created, by kind.",
		}, []string{"kind"}),
		terminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_terminated_total",
			Help: "Transactions terminated, by kind.",
		}, []string{"kind"}),
		retransmits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transaction_retransmissions_total",
			Help: "Retransmissions sent or absorbed, by kind.",
		}, []string{"kind"}),
		dialogs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dialog_active",
			Help: "Dialogs currently tracked in the dialog table.",
		}),
		wakeCoalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "reactor_wake_coalesced_total",
			Help: "Wake tokens coalesced into an already-pending engine cycle.",
		}),
	}
	reg.MustRegister(r.created, r.terminated, r.retransmits, r.dialogs, r.wakeCoalesced)
	return r
}

func (r *Recorder) TransactionCreated(kind transaction.Kind) {
	r.created.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) TransactionTerminated(kind transaction.Kind) {
	r.terminated.WithLabelValues(kind.String()).Inc()
}

func (r *Recorder) Retransmission(kind transaction.Kind) {
	r.retransmits.WithLabelValues(kind.String()).Inc()
}

// SetActiveDialogs records the dialog table's current size.
func (r *Recorder) SetActiveDialogs(n int) {
	r.dialogs.Set(float64(n))
}

// WakeCoalesced counts a wake() call that found a cycle already pending
// rather than scheduling a new one - spec.md section 9's "wake token
// queue" note.
func (r *Recorder) WakeCoalesced() {
	r.wakeCoalesced.Inc()
}

var _ transaction.MetricsRecorder = (*Recorder)(nil)
