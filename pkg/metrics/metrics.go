// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MergesTotal counts merge request reviews by outcome
	// (approved, conflict, rejected).
	MergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "banyan",
		Name:      "merges_total",
		Help:      "Merge request reviews by outcome",
	}, []string{"outcome"})

	// RelationshipsCreatedTotal counts canonical relationship edges by type.
	RelationshipsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "banyan",
		Name:      "relationships_created_total",
		Help:      "Relationship edges created by canonical type",
	}, []string{"type"})

	// ChangeSetsStagedTotal counts staged workspace changes by action.
	ChangeSetsStagedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "banyan",
		Name:      "changesets_staged_total",
		Help:      "Workspace changesets staged by action type",
	}, []string{"action"})

	// TreeBuildDuration observes tree view build latency, cache misses only.
	TreeBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "banyan",
		Name:      "tree_build_duration_seconds",
		Help:      "Time to traverse and lay out a tree view",
		Buckets:   prometheus.DefBuckets,
	})
)

const (
	OutcomeApproved = "approved"
	OutcomeConflict = "conflict"
	OutcomeRejected = "rejected"
)
