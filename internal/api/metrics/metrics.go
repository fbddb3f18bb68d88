// Package metrics defines and registers all custom Prometheus metrics for the
// docqa API. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation through promauto.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "docqa"

// ── Authorization metrics ─────────────────────────────────────────────────────

// AuthzDecisionsTotal counts authorization gate outcomes.
// Labels:
//   - action: the requested action (e.g. "ask", "manage_roles")
//   - decision: "allow", "deny", "unauthenticated" or "error"
var AuthzDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authz_decisions_total",
		Help:      "Total number of authorization decisions, by action and outcome.",
	},
	[]string{"action", "decision"},
)

// AuthzDuration measures the time spent resolving the token and evaluating policy.
var AuthzDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "authz_duration_seconds",
		Help:      "Duration of a full gate check, from bearer token to decision.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
	},
	[]string{"action"},
)

// ── Audit metrics ─────────────────────────────────────────────────────────────

// AuditQueueDepth tracks the number of audit events waiting in each worker channel.
var AuditQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "audit_queue_depth",
		Help:      "Current number of audit events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// AuditEventsTotal counts audit events by outcome.
// Label:
//   - result: "written", "failed" or "dropped"
var AuditEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_events_total",
		Help:      "Total number of audit events handled by the dispatcher.",
	},
	[]string{"result"},
)

// ── Document metrics ──────────────────────────────────────────────────────────

// DocumentsIngestedTotal counts successfully ingested documents.
var DocumentsIngestedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_ingested_total",
		Help:      "Total number of documents chunked and indexed.",
	},
)

// DocumentChunksStoredTotal counts chunks written to the document index.
var DocumentChunksStoredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_chunks_stored_total",
		Help:      "Total number of document chunks stored in the index.",
	},
)

// QATokensTotal counts language model tokens consumed by the QA endpoint.
// Label:
//   - kind: "input" or "output"
var QATokensTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "qa_tokens_total",
		Help:      "Total number of language model tokens consumed answering questions.",
	},
	[]string{"kind"},
)
