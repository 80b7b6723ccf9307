package service

import (
	"log/slog"
	"sync"

	"github.com/raphaelgruber/graphscribe/internal/metrics"
)

// StreamManager keys live stream updaters by run ID. All methods are safe
// for concurrent use.
type StreamManager struct {
	mu        sync.Mutex
	updaters  map[string]*StreamUpdater
	extractor Extractor
	writer    *GraphWriter
	collector *metrics.Collector
	opts      StreamOptions
	logger    *slog.Logger
}

// NewStreamManager creates a registry that builds updaters from the given
// dependencies. The collector is optional.
func NewStreamManager(extractor Extractor, writer *GraphWriter, collector *metrics.Collector, opts StreamOptions, logger *slog.Logger) *StreamManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamManager{
		updaters:  make(map[string]*StreamUpdater),
		extractor: extractor,
		writer:    writer,
		collector: collector,
		opts:      opts,
		logger:    logger,
	}
}

// Create starts an updater for a run. An existing updater for the same
// run is stopped (draining its buffers) and replaced. When graphID is
// empty a new namespace is generated.
func (m *StreamManager) Create(runID, graphID string) *StreamUpdater {
	if graphID == "" {
		graphID = NewGraphID()
	}

	m.mu.Lock()
	existing := m.updaters[runID]
	delete(m.updaters, runID)
	m.mu.Unlock()

	if existing != nil {
		m.logger.Info("replacing stream updater", "run_id", runID)
		existing.Stop()
	}

	updater := NewStreamUpdater(runID, graphID, m.extractor, m.writer, m.collector, m.opts, m.logger)

	m.mu.Lock()
	m.updaters[runID] = updater
	m.mu.Unlock()

	m.logger.Info("stream updater created", "run_id", runID, "graph_id", graphID)
	return updater
}

// Get returns the updater for a run, if one is live.
func (m *StreamManager) Get(runID string) (*StreamUpdater, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.updaters[runID]
	return u, ok
}

// List returns the run IDs with live updaters.
func (m *StreamManager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	runs := make([]string, 0, len(m.updaters))
	for runID := range m.updaters {
		runs = append(runs, runID)
	}
	return runs
}

// Stop stops and removes the updater for a run, returning its final
// stats. ok is false when no updater was live for the run.
func (m *StreamManager) Stop(runID string) (StreamStats, bool) {
	m.mu.Lock()
	updater, ok := m.updaters[runID]
	delete(m.updaters, runID)
	m.mu.Unlock()

	if !ok {
		return StreamStats{}, false
	}
	return updater.Stop(), true
}

// StopAll stops every live updater. Used on shutdown so buffered events
// are flushed rather than lost.
func (m *StreamManager) StopAll() {
	m.mu.Lock()
	updaters := make([]*StreamUpdater, 0, len(m.updaters))
	for _, u := range m.updaters {
		updaters = append(updaters, u)
	}
	m.updaters = make(map[string]*StreamUpdater)
	m.mu.Unlock()

	for _, u := range updaters {
		u.Stop()
	}
	m.logger.Info("all stream updaters stopped", "count", len(updaters))
}
