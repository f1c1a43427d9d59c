package stepup

import "time"

// Engine is the step-up verification core. Construct it with [Builder.Build];
// all methods are safe for concurrent use afterwards.
type Engine struct {
	config Config

	challengeStore *accessChallengeStore
	sessionStore   *accessSessionStore

	sender CodeSender
	policy AccessPolicy

	audit   *auditDispatcher
	metrics *Metrics
	reaper  *reaper
}

// Close stops the background reaper and drains the audit dispatcher. The
// Engine must not be used after Close.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.reaper != nil {
		e.reaper.Close()
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// MetricsSnapshot exposes the current metric values for exporters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were discarded under
// backpressure since the engine started.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) codeTTL() time.Duration {
	return e.config.Verification.CodeTTL
}

func (e *Engine) sessionTTL() time.Duration {
	return e.config.Session.SessionTTL
}
