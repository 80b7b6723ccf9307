// Package client provides an HTTP client for the graphscribe server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/graphscribe/internal/db"
	"github.com/raphaelgruber/graphscribe/internal/metrics"
	"github.com/raphaelgruber/graphscribe/internal/models"
	"github.com/raphaelgruber/graphscribe/internal/service"
)

// Client talks to the graphscribe REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client.
// If baseURL is empty, uses GRAPHSCRIBE_SERVER_URL env var or defaults to localhost:8090.
// Timeout can be configured via GRAPHSCRIBE_CLIENT_TIMEOUT env var (default 10m for batch operations).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("GRAPHSCRIBE_SERVER_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:8090"
	}

	timeout := 10 * time.Minute // batch ingestions can run long
	if t := os.Getenv("GRAPHSCRIBE_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// errorResponse is the JSON error body the server writes.
type errorResponse struct {
	Error string `json:"error"`
}

// do sends a request with an optional JSON body and decodes the JSON
// response into result (when non-nil).
func (c *Client) do(ctx context.Context, method, path string, reqBody, result any) error {
	var body io.Reader
	if reqBody != nil {
		buf, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var errResp errorResponse
		if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, errResp.Error)
		}
		return fmt.Errorf("server error: %s - %s", resp.Status, string(data))
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// BuildResult identifies an accepted batch ingestion.
type BuildResult struct {
	TaskID  string `json:"task_id"`
	GraphID string `json:"graph_id"`
}

// BuildGraph submits text for asynchronous ingestion. graphID may be
// empty to have the server generate one.
func (c *Client) BuildGraph(ctx context.Context, text, graphID string) (BuildResult, error) {
	var result BuildResult
	err := c.do(ctx, http.MethodPost, "/api/graphs", map[string]string{
		"text":     text,
		"graph_id": graphID,
	}, &result)
	return result, err
}

// GetTask fetches a task snapshot.
func (c *Client) GetTask(ctx context.Context, taskID string) (service.Task, error) {
	var task service.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/"+url.PathEscape(taskID), nil, &task)
	return task, err
}

// ListTasks fetches all task snapshots, most recent first.
func (c *Client) ListTasks(ctx context.Context) ([]service.Task, error) {
	var resp struct {
		Tasks []service.Task `json:"tasks"`
	}
	err := c.do(ctx, http.MethodGet, "/api/tasks", nil, &resp)
	return resp.Tasks, err
}

// WatchTask streams task snapshots over a WebSocket until the task
// reaches a terminal state, invoking fn for each snapshot. Returns the
// final snapshot.
func (c *Client) WatchTask(ctx context.Context, taskID string, fn func(service.Task)) (service.Task, error) {
	wsURL, err := c.wsURL("/api/tasks/" + url.PathEscape(taskID) + "/watch")
	if err != nil {
		return service.Task{}, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return service.Task{}, fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	var last service.Task
	for {
		var snap service.Task
		if err := conn.ReadJSON(&snap); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return last, nil
			}
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("read update: %w", err)
		}
		last = snap
		if fn != nil {
			fn(snap)
		}
	}
}

// GetGraphInfo fetches summary counts for a graph namespace.
func (c *Client) GetGraphInfo(ctx context.Context, graphID string) (models.GraphInfo, error) {
	var info models.GraphInfo
	err := c.do(ctx, http.MethodGet, "/api/graphs/"+url.PathEscape(graphID)+"/info", nil, &info)
	return info, err
}

// GetGraphData fetches the full namespace contents. limit bounds the
// node count when positive.
func (c *Client) GetGraphData(ctx context.Context, graphID string, limit int) (models.GraphData, error) {
	path := "/api/graphs/" + url.PathEscape(graphID)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var data models.GraphData
	err := c.do(ctx, http.MethodGet, path, nil, &data)
	return data, err
}

// ListGraphs fetches the known graph namespaces with node counts.
func (c *Client) ListGraphs(ctx context.Context) ([]db.GraphCount, error) {
	var resp struct {
		Graphs []db.GraphCount `json:"graphs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/graphs", nil, &resp)
	return resp.Graphs, err
}

// DeleteResult reports what a graph deletion removed.
type DeleteResult struct {
	NodesDeleted int `json:"nodes_deleted"`
	EdgesDeleted int `json:"edges_deleted"`
}

// DeleteGraph removes a namespace and everything in it.
func (c *Client) DeleteGraph(ctx context.Context, graphID string) (DeleteResult, error) {
	var result DeleteResult
	err := c.do(ctx, http.MethodDelete, "/api/graphs/"+url.PathEscape(graphID), nil, &result)
	return result, err
}

// StreamInfo identifies a created stream.
type StreamInfo struct {
	RunID   string `json:"run_id"`
	GraphID string `json:"graph_id"`
}

// CreateStream starts (or replaces) a stream updater for a run.
func (c *Client) CreateStream(ctx context.Context, runID, graphID string) (StreamInfo, error) {
	var info StreamInfo
	err := c.do(ctx, http.MethodPost, "/api/streams/"+url.PathEscape(runID),
		map[string]string{"graph_id": graphID}, &info)
	return info, err
}

// ListStreams fetches the run IDs with live stream updaters.
func (c *Client) ListStreams(ctx context.Context) ([]string, error) {
	var resp struct {
		Runs []string `json:"runs"`
	}
	err := c.do(ctx, http.MethodGet, "/api/streams", nil, &resp)
	return resp.Runs, err
}

// StreamStatus is a stream's identity plus its live counters.
type StreamStatus struct {
	RunID   string              `json:"run_id"`
	GraphID string              `json:"graph_id"`
	Stats   service.StreamStats `json:"stats"`
}

// GetStreamStats fetches the live counters for a run.
func (c *Client) GetStreamStats(ctx context.Context, runID string) (StreamStatus, error) {
	var status StreamStatus
	err := c.do(ctx, http.MethodGet, "/api/streams/"+url.PathEscape(runID), nil, &status)
	return status, err
}

// StopStream stops a run's updater, flushing its buffers, and returns
// the final counters.
func (c *Client) StopStream(ctx context.Context, runID string) (service.StreamStats, error) {
	var resp struct {
		Stats service.StreamStats `json:"stats"`
	}
	err := c.do(ctx, http.MethodDelete, "/api/streams/"+url.PathEscape(runID), nil, &resp)
	return resp.Stats, err
}

// ActivityAck reports how many submitted activities were accepted.
type ActivityAck struct {
	Received int `json:"received"`
	Accepted int `json:"accepted"`
}

// PostActivities submits a batch of activity events for a run over HTTP.
func (c *Client) PostActivities(ctx context.Context, runID, platform string, activities []map[string]any) (ActivityAck, error) {
	var ack ActivityAck
	err := c.do(ctx, http.MethodPost, "/api/streams/"+url.PathEscape(runID)+"/activities",
		map[string]any{"platform": platform, "activities": activities}, &ack)
	return ack, err
}

// ServerStats is the /api/stats payload: live stream counters plus
// operation timings when the server runs with a collector.
type ServerStats struct {
	Streams    map[string]service.StreamStats `json:"streams"`
	Operations *metrics.Snapshot              `json:"operations,omitempty"`
}

// GetStats fetches server runtime statistics.
func (c *Client) GetStats(ctx context.Context) (ServerStats, error) {
	var stats ServerStats
	err := c.do(ctx, http.MethodGet, "/api/stats", nil, &stats)
	return stats, err
}

// Health checks server liveness.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Feed is a persistent WebSocket connection pushing activity events into
// a run's stream.
type Feed struct {
	conn *websocket.Conn
}

// OpenFeed connects to a run's activity feed.
func (c *Client) OpenFeed(ctx context.Context, runID string) (*Feed, error) {
	wsURL, err := c.wsURL("/api/streams/" + url.PathEscape(runID) + "/feed")
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return &Feed{conn: conn}, nil
}

// Send pushes a batch of activities and waits for the server's ack.
func (f *Feed) Send(platform string, activities []map[string]any) (ActivityAck, error) {
	msg := map[string]any{"platform": platform, "activities": activities}
	if err := f.conn.WriteJSON(msg); err != nil {
		return ActivityAck{}, fmt.Errorf("write activities: %w", err)
	}
	var ack ActivityAck
	if err := f.conn.ReadJSON(&ack); err != nil {
		return ActivityAck{}, fmt.Errorf("read ack: %w", err)
	}
	return ack, nil
}

// Close shuts the feed connection down cleanly.
func (f *Feed) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return f.conn.Close()
}

// wsURL converts the base URL to its WebSocket equivalent for a path.
func (c *Client) wsURL(path string) (string, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
