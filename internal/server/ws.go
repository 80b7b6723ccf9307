package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local dev
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWatchTask streams task snapshots over a WebSocket until the task
// reaches a terminal state. The final snapshot is always delivered before
// the connection closes.
func (s *Server) handleWatchTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("task watch upgrade failed", "task_id", taskID, "error", err)
		return
	}
	defer conn.Close()

	ch, cancel := s.tasks.Subscribe(taskID)
	defer cancel()

	// Notice a client disconnect even while we wait for updates.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				deadline := time.Now().Add(wsWriteTimeout)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				s.logger.Debug("task watch write failed", "task_id", taskID, "error", err)
				return
			}
		case <-clientGone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

type feedMessage struct {
	Platform   string           `json:"platform"`
	Activities []map[string]any `json:"activities,omitempty"`
	Activity   map[string]any   `json:"activity,omitempty"`
}

type feedAck struct {
	Received int `json:"received"`
	Accepted int `json:"accepted"`
}

// handleStreamFeed accepts activity events for a run over a WebSocket.
// Each inbound message carries a platform plus either a batch of
// activities or a single one; an ack with accept counts is sent back.
func (s *Server) handleStreamFeed(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run")
	updater, ok := s.streams.Get(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "no stream for run")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("stream feed upgrade failed", "run_id", runID, "error", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("stream feed read failed", "run_id", runID, "error", err)
			}
			return
		}

		var msg feedMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Platform == "" {
			s.logger.Debug("stream feed rejected malformed message", "run_id", runID)
			continue
		}

		activities := msg.Activities
		if msg.Activity != nil {
			activities = append(activities, msg.Activity)
		}

		ack := feedAck{Received: len(activities)}
		for _, activity := range activities {
			if updater.Enqueue(activity, msg.Platform) {
				ack.Accepted++
			}
		}

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(ack); err != nil {
			s.logger.Debug("stream feed ack failed", "run_id", runID, "error", err)
			return
		}
	}
}
