// Package server exposes the ingestion service over REST and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/raphaelgruber/graphscribe/internal/db"
	"github.com/raphaelgruber/graphscribe/internal/metrics"
	"github.com/raphaelgruber/graphscribe/internal/models"
	"github.com/raphaelgruber/graphscribe/internal/service"
)

// GraphReader is the read/delete surface the API needs from the store.
// *db.Client satisfies it; tests substitute a fake.
type GraphReader interface {
	GetGraphInfo(ctx context.Context, graphID string) (models.GraphInfo, error)
	GetGraphData(ctx context.Context, graphID string, limit int) (models.GraphData, error)
	DeleteGraph(ctx context.Context, graphID string) (nodes, edges int, err error)
	ListGraphs(ctx context.Context) ([]db.GraphCount, error)
}

// Server wires the ingestion services into an http.Handler.
type Server struct {
	tasks     *service.TaskManager
	builder   *service.GraphBuilder
	streams   *service.StreamManager
	graphs    GraphReader
	collector *metrics.Collector
	logger    *slog.Logger
}

// New creates a server over the given services. The collector is optional.
func New(tasks *service.TaskManager, builder *service.GraphBuilder, streams *service.StreamManager, graphs GraphReader, collector *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		tasks:     tasks,
		builder:   builder,
		streams:   streams,
		graphs:    graphs,
		collector: collector,
		logger:    logger,
	}
}

// Handler returns the routed handler with logging middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/graphs", s.handleCreateGraph)
	mux.HandleFunc("GET /api/graphs", s.handleListGraphs)
	mux.HandleFunc("GET /api/graphs/{id}", s.handleGetGraph)
	mux.HandleFunc("GET /api/graphs/{id}/info", s.handleGraphInfo)
	mux.HandleFunc("DELETE /api/graphs/{id}", s.handleDeleteGraph)

	mux.HandleFunc("GET /api/tasks", s.handleListTasks)
	mux.HandleFunc("GET /api/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("GET /api/tasks/{id}/watch", s.handleWatchTask)

	mux.HandleFunc("POST /api/streams/{run}", s.handleCreateStream)
	mux.HandleFunc("GET /api/streams", s.handleListStreams)
	mux.HandleFunc("GET /api/streams/{run}", s.handleStreamStats)
	mux.HandleFunc("DELETE /api/streams/{run}", s.handleStopStream)
	mux.HandleFunc("POST /api/streams/{run}/activities", s.handlePostActivities)
	mux.HandleFunc("GET /api/streams/{run}/feed", s.handleStreamFeed)

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /health", s.handleHealth)

	return LoggingMiddleware(s.logger)(mux)
}

// Shutdown stops every live stream so buffered events get flushed.
func (s *Server) Shutdown() {
	s.streams.StopAll()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	streams := make(map[string]service.StreamStats)
	for _, runID := range s.streams.List() {
		if u, ok := s.streams.Get(runID); ok {
			streams[runID] = u.Stats()
		}
	}

	resp := map[string]any{"streams": streams}
	if s.collector != nil {
		resp["operations"] = s.collector.Snapshot()
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("failed to encode response", "error", err)
	}
}

// writeError writes a JSON error body.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
