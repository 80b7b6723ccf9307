package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/metrics"
	"github.com/raphaelgruber/graphscribe/internal/service"
)

// maxBodySize caps request bodies at 10 MiB; batch texts are large but
// not unbounded.
const maxBodySize = 10 << 20

type createGraphRequest struct {
	Text    string `json:"text"`
	GraphID string `json:"graph_id,omitempty"`
}

func (s *Server) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	var req createGraphRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !service.HasIngestibleText(req.Text) {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	task := s.builder.BuildAsync(req.Text, req.GraphID)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"task_id":  task.ID,
		"graph_id": task.Metadata["graph_id"],
	})
}

func (s *Server) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	graphs, err := s.graphs.ListGraphs(r.Context())
	s.recordQuery(start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"graphs": graphs})
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("id")
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	start := time.Now()
	data, err := s.graphs.GetGraphData(r.Context(), graphID, limit)
	s.recordQuery(start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleGraphInfo(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	info, err := s.graphs.GetGraphInfo(r.Context(), r.PathValue("id"))
	s.recordQuery(start)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteGraph(w http.ResponseWriter, r *http.Request) {
	nodes, edges, err := s.graphs.DeleteGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"nodes_deleted": nodes,
		"edges_deleted": edges,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tasks": s.tasks.List()})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.tasks.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type createStreamRequest struct {
	GraphID string `json:"graph_id,omitempty"`
}

func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run")

	var req createStreamRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updater := s.streams.Create(runID, req.GraphID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"run_id":   runID,
		"graph_id": updater.GraphID(),
	})
}

func (s *Server) handleListStreams(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.streams.List()})
}

func (s *Server) handleStreamStats(w http.ResponseWriter, r *http.Request) {
	updater, ok := s.streams.Get(r.PathValue("run"))
	if !ok {
		writeError(w, http.StatusNotFound, "no stream for run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":   updater.RunID(),
		"graph_id": updater.GraphID(),
		"stats":    updater.Stats(),
	})
}

func (s *Server) handleStopStream(w http.ResponseWriter, r *http.Request) {
	stats, ok := s.streams.Stop(r.PathValue("run"))
	if !ok {
		writeError(w, http.StatusNotFound, "no stream for run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}

type postActivitiesRequest struct {
	Platform   string           `json:"platform"`
	Activities []map[string]any `json:"activities"`
}

func (s *Server) handlePostActivities(w http.ResponseWriter, r *http.Request) {
	updater, ok := s.streams.Get(r.PathValue("run"))
	if !ok {
		writeError(w, http.StatusNotFound, "no stream for run")
		return
	}

	var req postActivitiesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Platform == "" {
		writeError(w, http.StatusBadRequest, "platform is required")
		return
	}

	accepted := 0
	for _, activity := range req.Activities {
		if updater.Enqueue(activity, req.Platform) {
			accepted++
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"received": len(req.Activities),
		"accepted": accepted,
	})
}

func (s *Server) recordQuery(start time.Time) {
	if s.collector != nil {
		s.collector.RecordTiming(metrics.OpGraphQuery, time.Since(start))
	}
}

// decodeJSON decodes a request body, rejecting unknown garbage early.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	return dec.Decode(v)
}
