package engine

import (
	"sync"
	"time"

	"github.com/eleven-am/routines/internal/ports"
)

const (
	recoveryWindow = 100
	handlerWindow  = 1000
)

// MetricsTracker keeps the panic and lifecycle-handler figures that do not
// fit the atomic counters in domain.ExecutionMetrics.
type MetricsTracker struct {
	mu sync.RWMutex

	totalPanics   int64
	panicTimes    []time.Time
	recoveryTimes []time.Duration
	lastPanicAt   *time.Time

	completionHandlers int64
	errorHandlers      int64
	handlerFailures    int64
	handlerTimes       []time.Duration
	handlerTimeouts    int64

	now func() time.Time
}

func NewMetricsTracker() *MetricsTracker {
	return &MetricsTracker{
		recoveryTimes: make([]time.Duration, 0, recoveryWindow),
		handlerTimes:  make([]time.Duration, 0, handlerWindow),
		now:           time.Now,
	}
}

func (mt *MetricsTracker) RecordPanic(recoveryTime time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	now := mt.now()
	mt.totalPanics++
	mt.lastPanicAt = &now
	mt.panicTimes = append(pruneBefore(mt.panicTimes, now.Add(-time.Hour)), now)
	mt.recoveryTimes = appendBounded(mt.recoveryTimes, recoveryTime, recoveryWindow)
}

func (mt *MetricsTracker) RecordCompletionHandler(duration time.Duration, success bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.completionHandlers++
	mt.recordHandler(duration, success)
}

func (mt *MetricsTracker) RecordErrorHandler(duration time.Duration, success bool) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.errorHandlers++
	mt.recordHandler(duration, success)
}

func (mt *MetricsTracker) RecordHandlerTimeout() {
	mt.mu.Lock()
	defer mt.mu.Unlock()
	mt.handlerTimeouts++
}

func (mt *MetricsTracker) GetPanicMetrics() ports.PanicMetrics {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	cutoff := mt.now().Add(-time.Hour)
	var lastHour int64
	for _, at := range mt.panicTimes {
		if at.After(cutoff) {
			lastHour++
		}
	}

	metrics := ports.PanicMetrics{
		TotalPanics:         mt.totalPanics,
		PanicsLastHour:      lastHour,
		AverageRecoveryTime: average(mt.recoveryTimes),
	}
	if mt.lastPanicAt != nil {
		at := *mt.lastPanicAt
		metrics.LastPanicAt = &at
	}
	return metrics
}

func (mt *MetricsTracker) GetHandlerMetrics() ports.HandlerMetrics {
	mt.mu.RLock()
	defer mt.mu.RUnlock()

	return ports.HandlerMetrics{
		CompletionHandlersExecuted: mt.completionHandlers,
		ErrorHandlersExecuted:      mt.errorHandlers,
		HandlerFailures:            mt.handlerFailures,
		AverageHandlerTime:         average(mt.handlerTimes),
		HandlerTimeouts:            mt.handlerTimeouts,
	}
}

func (mt *MetricsTracker) recordHandler(duration time.Duration, success bool) {
	if !success {
		mt.handlerFailures++
	}
	mt.handlerTimes = appendBounded(mt.handlerTimes, duration, handlerWindow)
}

func appendBounded(window []time.Duration, d time.Duration, limit int) []time.Duration {
	window = append(window, d)
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	return window
}

func pruneBefore(times []time.Time, cutoff time.Time) []time.Time {
	kept := times[:0]
	for _, at := range times {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	return kept
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range durations {
		total += d
	}
	return total / time.Duration(len(durations))
}
