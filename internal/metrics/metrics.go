// Package metrics exposes Prometheus counters for engine activity. The
// collectors register on the default registry; embedders expose them via
// their own /metrics handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "logstore"

var (
	Appends = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appends_total",
		Help:      "Entries appended to an in-memory buffer.",
	})

	AppendedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "appended_bytes_total",
		Help:      "Encoded frame bytes appended to an in-memory buffer.",
	})

	Syncs = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "syncs_total",
		Help:      "Completed sync operations.",
	})

	CommittedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "committed_bytes_total",
		Help:      "Bytes advanced past the commit point by sync.",
	})

	IndexFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "index_flushes_total",
		Help:      "Durable index file rewrites.",
	})

	FoldFlushes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fold_flushes_total",
		Help:      "Durable fold checkpoint rewrites.",
	})

	CorruptionErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "corruption_errors_total",
		Help:      "Checksum or framing failures detected while reading.",
	})
)
