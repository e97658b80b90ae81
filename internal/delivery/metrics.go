package delivery

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/odyssey-erp/truckdispatch/internal/shared"
)

// Metrics exposes Prometheus collectors for the delivery lifecycle.
type Metrics struct {
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	ledger      *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the lifecycle metrics. A nil registerer uses the
// default Prometheus registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_delivery_transitions_total",
		Help: "Delivery status transitions partitioned by source and target status.",
	}, []string{"from", "to"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_delivery_rejections_total",
		Help: "Lifecycle operations rejected, by operation and reason.",
	}, []string{"operation", "reason"})
	ledger := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_ledger_operations_total",
		Help: "Quantity ledger operations applied.",
	}, []string{"op"})
	registerer.MustRegister(transitions, rejections, ledger)
	return &Metrics{transitions: transitions, rejections: rejections, ledger: ledger}
}

func (m *Metrics) transition(from, to DeliveryStatus) {
	if m == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) rejected(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.rejections.WithLabelValues(operation, rejectionReason(err)).Inc()
}

func (m *Metrics) ledgerOp(op string) {
	if m == nil {
		return
	}
	m.ledger.WithLabelValues(op).Inc()
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrSlotConflict):
		return "slot_conflict"
	case errors.Is(err, ErrCapacityExceeded):
		return "capacity"
	case errors.Is(err, ErrQuantityExceeded):
		return "quantity"
	case errors.Is(err, ErrOrderAlreadyLinked):
		return "already_linked"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrDeliveryClosed):
		return "transition"
	case errors.Is(err, shared.ErrTemporal):
		return "temporal"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
