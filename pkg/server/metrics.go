// Copyright 2025 Certen Protocol
//
// Package server is the admin surface both cmd/store and
// cmd/blockproducer expose on their configured metrics address: a
// Prometheus handler plus a liveness/readiness probe. Metric naming and
// registration follow cuemby-warren/pkg/metrics's package-level-vars +
// init()-registration idiom.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	BlocksApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollup_store_blocks_applied_total",
			Help: "Total number of blocks committed by ApplyBlock",
		},
	)

	ApplyBlockDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollup_store_apply_block_duration_seconds",
			Help:    "Time taken to validate and commit a block",
			Buckets: prometheus.DefBuckets,
		},
	)

	ApplyBlockRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_store_apply_block_rejections_total",
			Help: "Total number of blocks rejected by ApplyBlock, by failure kind",
		},
		[]string{"kind"},
	)

	StoreRPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollup_store_rpc_request_duration_seconds",
			Help:    "Store RPC service method latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Block Producer / mempool metrics
	MempoolTransactionsAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollup_mempool_transactions_admitted_total",
			Help: "Total number of transactions admitted into the mempool",
		},
	)

	MempoolTransactionsReverted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_mempool_transactions_reverted_total",
			Help: "Total number of transactions reverted, by reason",
		},
		[]string{"reason"},
	)

	BatchesProven = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollup_batches_proven_total",
			Help: "Total number of batches successfully proven",
		},
	)

	BatchProveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollup_batch_prove_duration_seconds",
			Help:    "Time taken to prove a selected batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlocksProven = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollup_blocks_proven_total",
			Help: "Total number of blocks successfully proven and applied",
		},
	)

	BlockProveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollup_block_prove_duration_seconds",
			Help:    "Time taken to prove and apply a selected block",
			Buckets: prometheus.DefBuckets,
		},
	)

	ProverRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollup_prover_retries_total",
			Help: "Total number of proving attempts retried after a transient failure",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		BlocksApplied,
		ApplyBlockDuration,
		ApplyBlockRejections,
		StoreRPCRequestDuration,
		MempoolTransactionsAdmitted,
		MempoolTransactionsReverted,
		BatchesProven,
		BatchProveDuration,
		BlocksProven,
		BlockProveDuration,
		ProverRetries,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HealthChecker reports whether the component backing a /healthz probe
// is reachable. *store.Store satisfies this via its Health method.
type HealthChecker interface {
	Health(ctx context.Context) (any, error)
}

// HealthFunc adapts a plain function to HealthChecker.
type HealthFunc func(ctx context.Context) (any, error)

func (f HealthFunc) Health(ctx context.Context) (any, error) { return f(ctx) }

// HealthHandler returns a liveness/readiness probe: 200 with the
// checker's status payload if healthy, 503 otherwise. A nil checker
// always reports healthy, for processes with nothing to probe.
func HealthHandler(checker HealthChecker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
			return
		}
		status, err := checker.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	})
}

// Timer times an operation and reports its duration to a histogram,
// mirroring cuemby-warren/pkg/metrics.Timer.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to obs (a Histogram or a
// HistogramVec's labeled Observer).
func (t *Timer) ObserveDuration(obs prometheus.Observer) {
	obs.Observe(time.Since(t.start).Seconds())
}
