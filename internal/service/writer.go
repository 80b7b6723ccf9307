package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/db"
	"github.com/raphaelgruber/graphscribe/internal/metrics"
	"github.com/raphaelgruber/graphscribe/internal/models"
)

// GraphStore is the persistence surface the ingestion services need.
// *db.Client satisfies it; tests substitute an in-memory fake.
type GraphStore interface {
	MergeNode(ctx context.Context, graphID string, node models.ExtractedNode) (models.GraphNode, bool, error)
	MergeEdge(ctx context.Context, graphID string, edge models.ExtractedEdge) (string, *models.GraphEdge, error)
	GetGraphInfo(ctx context.Context, graphID string) (models.GraphInfo, error)
}

// WriteStats tallies the outcome of writing one extraction.
type WriteStats struct {
	NodesCreated int `json:"nodes_created"`
	NodesUpdated int `json:"nodes_updated"`
	EdgesCreated int `json:"edges_created"`
	EdgesUpdated int `json:"edges_updated"`
	EdgesDropped int `json:"edges_dropped"`
	Errors       int `json:"errors"`
}

// Add accumulates another tally into s.
func (s *WriteStats) Add(other WriteStats) {
	s.NodesCreated += other.NodesCreated
	s.NodesUpdated += other.NodesUpdated
	s.EdgesCreated += other.EdgesCreated
	s.EdgesUpdated += other.EdgesUpdated
	s.EdgesDropped += other.EdgesDropped
	s.Errors += other.Errors
}

// Nodes returns the total node writes.
func (s WriteStats) Nodes() int { return s.NodesCreated + s.NodesUpdated }

// Edges returns the total surviving edge writes.
func (s WriteStats) Edges() int { return s.EdgesCreated + s.EdgesUpdated }

// GraphWriter applies extractions to the store. Writes are idempotent at
// the store level, so replaying an extraction converges instead of
// duplicating.
type GraphWriter struct {
	store     GraphStore
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewGraphWriter creates a writer over the given store. The collector is
// optional.
func NewGraphWriter(store GraphStore, collector *metrics.Collector, logger *slog.Logger) *GraphWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphWriter{store: store, collector: collector, logger: logger}
}

// Write merges an extraction into the graph namespace: all nodes first,
// then edges, so an edge never races the nodes it references. Individual
// merge failures are logged and counted rather than aborting the batch;
// the returned error is non-nil only when the context is done.
func (w *GraphWriter) Write(ctx context.Context, graphID string, x models.Extraction) (WriteStats, error) {
	var stats WriteStats

	for _, node := range x.Nodes {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("write interrupted: %w", err)
		}

		start := time.Now()
		_, created, err := w.store.MergeNode(ctx, graphID, node)
		w.record(metrics.OpMergeNode, start)
		if err != nil {
			stats.Errors++
			w.logger.Warn("node merge failed",
				"graph_id", graphID, "node", node.Name, "error", err)
			continue
		}
		if created {
			stats.NodesCreated++
		} else {
			stats.NodesUpdated++
		}
	}

	for _, edge := range x.Edges {
		if err := ctx.Err(); err != nil {
			return stats, fmt.Errorf("write interrupted: %w", err)
		}

		start := time.Now()
		outcome, _, err := w.store.MergeEdge(ctx, graphID, edge)
		w.record(metrics.OpMergeEdge, start)
		if err != nil {
			stats.Errors++
			w.logger.Warn("edge merge failed",
				"graph_id", graphID, "from", edge.From, "to", edge.To, "error", err)
			continue
		}
		switch outcome {
		case db.EdgeCreated:
			stats.EdgesCreated++
		case db.EdgeUpdated:
			stats.EdgesUpdated++
		case db.EdgeDropped:
			stats.EdgesDropped++
		}
	}

	return stats, nil
}

func (w *GraphWriter) record(op string, start time.Time) {
	if w.collector != nil {
		w.collector.RecordTiming(op, time.Since(start))
	}
}
