// Package metrics is the process-wide metrics facade.
//
// Library code records through the package-level helpers; main packages
// pick a Backend (nop by default, or internal/metrics/datadog) with
// SetBackend and Flush or Close it at shutdown.
package metrics

import (
	"sync"
	"time"
)

// Labels are metric dimensions (Datadog tags, Prometheus labels).
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

// Metric names recorded by the pivot pipeline.
const (
	RowsTotal           = "pivot_rows_total"
	StoreOpsTotal       = "pivot_store_ops_total"
	StoreFallbackTotal  = "pivot_store_fallback_total"
	StoreOpDurationSecs = "pivot_store_op_duration_seconds"
)

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }
func (nop) Close() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nop{}
)

// SetBackend installs b as the process-wide backend. nil restores the nop
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nop{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter forwards to the installed backend.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram forwards to the installed backend.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error { return current().Flush() }

// RecordRows counts the rows a session loaded and the rows the row cap
// dropped.
func RecordRows(loaded, dropped int) {
	IncCounter(RowsTotal, float64(loaded), Labels{"kind": "loaded"})
	IncCounter(RowsTotal, float64(dropped), Labels{"kind": "dropped"})
}

// RecordStoreOp counts one preset store operation on a tier ("remote" or
// "local") and observes its duration. status is "ok" or "error".
func RecordStoreOp(op, tier, status string, d time.Duration) {
	IncCounter(StoreOpsTotal, 1, Labels{"op": op, "tier": tier, "status": status})
	ObserveHistogram(StoreOpDurationSecs, d.Seconds(), Labels{"op": op, "tier": tier})
}

// RecordFallback counts one remote failure absorbed by the local tier.
func RecordFallback(op string) {
	IncCounter(StoreFallbackTotal, 1, Labels{"op": op})
}
