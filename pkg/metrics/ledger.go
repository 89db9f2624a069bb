package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts ledger mutations and their conflict outcomes.
type LedgerMetrics struct {
	adjustments    *prometheus.CounterVec
	conflictRetry  prometheus.Counter
	conflictFailed prometheus.Counter
}

// NewLedgerMetrics registers ledger counters on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "stockline",
		Name:      "ledger_adjustments_total",
		Help:      "Committed ledger adjustments by move type.",
	}, []string{"move_type"})
	conflictRetry := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockline",
		Name:      "ledger_version_conflict_retries_total",
		Help:      "Optimistic version conflicts that were retried.",
	})
	conflictFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "stockline",
		Name:      "ledger_version_conflict_failures_total",
		Help:      "Optimistic version conflicts surfaced after the retry budget.",
	})
	reg.MustRegister(adjustments, conflictRetry, conflictFailed)
	return &LedgerMetrics{
		adjustments:    adjustments,
		conflictRetry:  conflictRetry,
		conflictFailed: conflictFailed,
	}
}

// IncAdjustment counts one committed adjustment for the move type.
func (l *LedgerMetrics) IncAdjustment(moveType string) {
	if l == nil || l.adjustments == nil {
		return
	}
	l.adjustments.WithLabelValues(normalizeLabel(moveType)).Inc()
}

// IncConflictRetry counts one retried version conflict.
func (l *LedgerMetrics) IncConflictRetry() {
	if l == nil || l.conflictRetry == nil {
		return
	}
	l.conflictRetry.Inc()
}

// IncConflictFailure counts one conflict surfaced to the caller.
func (l *LedgerMetrics) IncConflictFailure() {
	if l == nil || l.conflictFailed == nil {
		return
	}
	l.conflictFailed.Inc()
}
