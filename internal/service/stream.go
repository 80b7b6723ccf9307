package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/metrics"
	"github.com/raphaelgruber/graphscribe/internal/models"
)

// Streaming defaults. A batch is flushed as soon as a platform buffer
// reaches DefaultStreamBatchSize; DefaultSendInterval paces consecutive
// flushes so the extraction provider is not hammered.
const (
	DefaultStreamBatchSize = 5
	DefaultSendInterval    = 500 * time.Millisecond

	dequeueWait  = time.Second
	stopDeadline = 5 * time.Second
)

// StreamStats are the lifetime counters of one stream updater.
type StreamStats struct {
	TotalReceived  int64 `json:"total_received"`
	ItemsSkipped   int64 `json:"items_skipped"`
	BatchesFlushed int64 `json:"batches_flushed"`
	ItemsFlushed   int64 `json:"items_flushed"`
	ItemsFailed    int64 `json:"items_failed"`
	Running        bool  `json:"running"`
}

// StreamOptions configures a StreamUpdater.
type StreamOptions struct {
	BatchSize    int
	SendInterval time.Duration
}

// StreamUpdater consumes live activity events for one run and folds them
// into a graph namespace. Events are buffered per platform and flushed as
// extraction batches once a buffer fills; Stop drains whatever remains.
type StreamUpdater struct {
	runID     string
	graphID   string
	extractor Extractor
	writer    *GraphWriter
	collector *metrics.Collector
	opts      StreamOptions
	logger    *slog.Logger

	queue    chan models.ActivityEvent
	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	buffers map[string][]models.ActivityEvent
	stats   StreamStats
	running bool
}

// NewStreamUpdater creates and starts an updater for a run. The collector
// is optional.
func NewStreamUpdater(runID, graphID string, extractor Extractor, writer *GraphWriter, collector *metrics.Collector, opts StreamOptions, logger *slog.Logger) *StreamUpdater {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultStreamBatchSize
	}
	if opts.SendInterval <= 0 {
		opts.SendInterval = DefaultSendInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	u := &StreamUpdater{
		runID:     runID,
		graphID:   graphID,
		extractor: extractor,
		writer:    writer,
		collector: collector,
		opts:      opts,
		logger:    logger,
		queue:     make(chan models.ActivityEvent, 1024),
		stopping:  make(chan struct{}),
		done:      make(chan struct{}),
		buffers:   make(map[string][]models.ActivityEvent),
		running:   true,
	}
	u.stats.Running = true

	go u.loop()
	return u
}

// RunID returns the run this updater belongs to.
func (u *StreamUpdater) RunID() string { return u.runID }

// GraphID returns the namespace this updater writes to.
func (u *StreamUpdater) GraphID() string { return u.graphID }

// Enqueue filters and queues a raw activity payload. Control messages and
// no-op actions are counted as skipped only; they never reach the buffers
// or the received total. Returns true when the event was accepted.
func (u *StreamUpdater) Enqueue(data map[string]any, platform string) bool {
	u.mu.Lock()
	if !u.running {
		u.mu.Unlock()
		return false
	}
	u.mu.Unlock()

	event, ok := models.ActivityFromMap(data, platform)
	if !ok || event.ActionType == models.ActionNoOp || event.ActionType == "" {
		u.mu.Lock()
		u.stats.ItemsSkipped++
		u.mu.Unlock()
		return false
	}

	u.mu.Lock()
	u.stats.TotalReceived++
	u.mu.Unlock()

	select {
	case u.queue <- event:
		return true
	case <-u.stopping:
		u.mu.Lock()
		u.stats.ItemsSkipped++
		u.mu.Unlock()
		return false
	}
}

// Stats returns a snapshot of the lifetime counters.
func (u *StreamUpdater) Stats() StreamStats {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.stats
}

// Stop shuts the updater down: no new events are accepted, the queue is
// drained, and every partially filled buffer is flushed. Blocks until the
// worker finishes or the stop deadline passes. Idempotent.
func (u *StreamUpdater) Stop() StreamStats {
	u.stopOnce.Do(func() {
		u.mu.Lock()
		u.running = false
		u.stats.Running = false
		u.mu.Unlock()

		close(u.stopping)

		select {
		case <-u.done:
		case <-time.After(stopDeadline):
			u.logger.Warn("stream worker did not stop in time",
				"run_id", u.runID, "deadline", stopDeadline)
		}
	})
	return u.Stats()
}

// loop is the single consumer goroutine: it moves events from the queue
// into per-platform buffers and flushes full ones. Waiting is bounded so
// a stop request is noticed within dequeueWait even on an idle stream.
func (u *StreamUpdater) loop() {
	defer close(u.done)

	ctx := context.Background()
	timer := time.NewTimer(dequeueWait)
	defer timer.Stop()

	for {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(dequeueWait)

		select {
		case event := <-u.queue:
			u.buffer(ctx, event)
		case <-timer.C:
			// idle; check for stop below
		case <-u.stopping:
			u.drain(ctx)
			return
		}

		select {
		case <-u.stopping:
			u.drain(ctx)
			return
		default:
		}
	}
}

// buffer appends an event to its platform buffer and flushes the buffer
// once it reaches the batch size.
func (u *StreamUpdater) buffer(ctx context.Context, event models.ActivityEvent) {
	u.mu.Lock()
	u.buffers[event.Platform] = append(u.buffers[event.Platform], event)
	full := len(u.buffers[event.Platform]) >= u.opts.BatchSize
	var batch []models.ActivityEvent
	if full {
		batch = u.buffers[event.Platform]
		u.buffers[event.Platform] = nil
	}
	u.mu.Unlock()

	if full {
		u.flush(ctx, event.Platform, batch)
		// Pace consecutive flushes.
		select {
		case <-time.After(u.opts.SendInterval):
		case <-u.stopping:
		}
	}
}

// drain empties the queue and flushes every partial buffer.
func (u *StreamUpdater) drain(ctx context.Context) {
	for {
		select {
		case event := <-u.queue:
			u.mu.Lock()
			u.buffers[event.Platform] = append(u.buffers[event.Platform], event)
			u.mu.Unlock()
		default:
			goto flushAll
		}
	}

flushAll:
	u.mu.Lock()
	remaining := u.buffers
	u.buffers = make(map[string][]models.ActivityEvent)
	u.mu.Unlock()

	platforms := make([]string, 0, len(remaining))
	for platform := range remaining {
		platforms = append(platforms, platform)
	}
	slices.Sort(platforms)

	for _, platform := range platforms {
		if batch := remaining[platform]; len(batch) > 0 {
			u.flush(ctx, platform, batch)
		}
	}

	u.logger.Info("stream updater stopped",
		"run_id", u.runID, "graph_id", u.graphID,
		"items_flushed", u.Stats().ItemsFlushed)
}

// flush renders a batch of events into one episode text, extracts it and
// merges the result. A failed batch is counted and dropped; the stream
// keeps going.
func (u *StreamUpdater) flush(ctx context.Context, platform string, batch []models.ActivityEvent) {
	start := time.Now()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Activity on %s:\n", platform)
	for _, event := range batch {
		sb.WriteString("- ")
		sb.WriteString(event.EpisodeText())
		sb.WriteString("\n")
	}

	extraction, err := u.extractor.Extract(ctx, sb.String())
	if err != nil {
		u.recordFlush(start, 0, int64(len(batch)))
		u.logger.Error("stream batch extraction failed",
			"run_id", u.runID, "platform", platform, "items", len(batch), "error", err)
		return
	}

	if extraction.Empty() {
		u.recordFlush(start, int64(len(batch)), 0)
		u.logger.Debug("stream batch yielded no graph data",
			"run_id", u.runID, "platform", platform, "items", len(batch))
		return
	}

	stats, err := u.writer.Write(ctx, u.graphID, extraction)
	if err != nil {
		u.recordFlush(start, 0, int64(len(batch)))
		u.logger.Error("stream batch write failed",
			"run_id", u.runID, "platform", platform, "items", len(batch), "error", err)
		return
	}

	u.recordFlush(start, int64(len(batch)), 0)
	u.logger.Info("stream batch flushed",
		"run_id", u.runID,
		"platform", platform,
		"items", len(batch),
		"nodes", stats.Nodes(),
		"edges", stats.Edges(),
		"edges_dropped", stats.EdgesDropped)
}

func (u *StreamUpdater) recordFlush(start time.Time, flushed, failed int64) {
	if u.collector != nil {
		u.collector.RecordTiming(metrics.OpStreamFlush, time.Since(start))
	}
	u.mu.Lock()
	if flushed > 0 {
		u.stats.BatchesFlushed++
	}
	u.stats.ItemsFlushed += flushed
	u.stats.ItemsFailed += failed
	u.mu.Unlock()
}
