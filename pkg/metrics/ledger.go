package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts settlement and collection activity.
type LedgerMetrics struct {
	settlements *prometheus.CounterVec
	collections *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
	conflicts   prometheus.Counter
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_events_total",
		Help: "Processor settlement events by kind and outcome.",
	}, []string{"kind", "outcome"})
	collections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bucket_collections_total",
		Help: "Buckets transitioned to collected.",
	}, []string{"mode"})
	deadLetters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_dead_letters_total",
		Help: "Settlement events that could not be applied.",
	}, []string{"reason"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bucket_version_conflicts_total",
		Help: "Optimistic concurrency conflicts retried on bucket writes.",
	})
	reg.MustRegister(settlements, collections, deadLetters, conflicts)
	return &LedgerMetrics{
		settlements: settlements,
		collections: collections,
		deadLetters: deadLetters,
		conflicts:   conflicts,
	}
}

// IncSettlement records a settlement event outcome (applied, duplicate, ignored, dead_letter).
func (m *LedgerMetrics) IncSettlement(kind, outcome string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}

// IncCollection records a bucket collection; mode is manual or auto.
func (m *LedgerMetrics) IncCollection(mode string) {
	if m == nil || m.collections == nil {
		return
	}
	m.collections.WithLabelValues(normalizeLabel(mode)).Inc()
}

func (m *LedgerMetrics) IncDeadLetter(reason string) {
	if m == nil || m.deadLetters == nil {
		return
	}
	m.deadLetters.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) IncVersionConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}
