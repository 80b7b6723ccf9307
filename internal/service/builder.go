package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/llm"
	"github.com/raphaelgruber/graphscribe/internal/models"
	"github.com/raphaelgruber/graphscribe/internal/parser"
)

// TaskTypeBuild is the task type registered for batch graph builds.
const TaskTypeBuild = "graph_build"

// Extractor turns a text chunk into candidate nodes and edges.
// *llm.Extractor satisfies it; tests substitute a scripted fake.
type Extractor interface {
	Extract(ctx context.Context, text string) (models.Extraction, error)
}

// BuilderOptions configures a GraphBuilder.
type BuilderOptions struct {
	ChunkSize    int
	ChunkOverlap int
	// Concurrency bounds the number of builds running at once; further
	// builds queue on the semaphore instead of spawning unbounded
	// goroutines. Defaults to 4.
	Concurrency int
	// ChunkDelay is an optional pause between chunk extractions, for rate
	// limited providers.
	ChunkDelay time.Duration
}

// GraphBuilder runs asynchronous batch ingestions: split text into
// chunks, extract each chunk, merge everything into one graph namespace.
type GraphBuilder struct {
	tasks     *TaskManager
	extractor Extractor
	writer    *GraphWriter
	opts      BuilderOptions
	sem       chan struct{}
	logger    *slog.Logger
}

// NewGraphBuilder creates a builder.
func NewGraphBuilder(tasks *TaskManager, extractor Extractor, writer *GraphWriter, opts BuilderOptions, logger *slog.Logger) *GraphBuilder {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = parser.DefaultChunkSize
	}
	if opts.ChunkOverlap < 0 {
		opts.ChunkOverlap = parser.DefaultChunkOverlap
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphBuilder{
		tasks:     tasks,
		extractor: extractor,
		writer:    writer,
		opts:      opts,
		sem:       make(chan struct{}, opts.Concurrency),
		logger:    logger,
	}
}

// NewGraphID returns a fresh namespace identifier: a short prefix plus
// 16 hex characters.
func NewGraphID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand does not fail on supported platforms
		panic(err)
	}
	return "graph_" + hex.EncodeToString(buf[:])
}

// BuildAsync registers a build task and runs the ingestion in the
// background. When graphID is empty a new namespace is generated. The
// returned task snapshot carries the graph_id in its metadata so callers
// can poll or subscribe.
func (b *GraphBuilder) BuildAsync(text, graphID string) Task {
	if graphID == "" {
		graphID = NewGraphID()
	}

	task := b.tasks.Create(TaskTypeBuild, map[string]any{"graph_id": graphID})

	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("build goroutine panicked", "task_id", task.ID, "panic", r)
				b.tasks.Fail(task.ID, fmt.Sprintf("internal panic: %v", r))
			}
		}()

		b.sem <- struct{}{}
		defer func() { <-b.sem }()

		b.run(context.Background(), task.ID, graphID, text)
	}()

	return task
}

// Build runs an ingestion synchronously against an existing task.
// Exposed for callers that manage their own concurrency.
func (b *GraphBuilder) Build(ctx context.Context, taskID, graphID, text string) {
	b.run(ctx, taskID, graphID, text)
}

// run drives a single build through its progress watermarks:
// 5 started, 10 chunked, 20..90 across chunks, 95 finalizing.
func (b *GraphBuilder) run(ctx context.Context, taskID, graphID, text string) {
	started := time.Now()
	b.setProgress(taskID, TaskProcessing, 5, "starting build")

	chunks := parser.SplitText(text, b.opts.ChunkSize, b.opts.ChunkOverlap)
	if len(chunks) == 0 {
		b.tasks.Fail(taskID, "no text to ingest")
		return
	}
	b.setProgress(taskID, TaskProcessing, 10, fmt.Sprintf("split into %d chunks", len(chunks)))
	b.logger.Info("build started",
		"task_id", taskID, "graph_id", graphID, "chunks", len(chunks))

	var stats WriteStats
	emptyChunks := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			b.failPartial(taskID, graphID, stats, i, err.Error())
			return
		}

		extraction, err := b.extractor.Extract(ctx, chunk)
		if err != nil {
			// Only fatal provider errors surface here; everything merged so
			// far stays in the store.
			if errors.Is(err, llm.ErrFatalAPI) {
				b.logger.Error("aborting build on fatal provider error",
					"task_id", taskID, "graph_id", graphID, "chunk", i, "error", err)
			}
			b.failPartial(taskID, graphID, stats, i, err.Error())
			return
		}

		if extraction.Empty() {
			emptyChunks++
		} else {
			chunkStats, err := b.writer.Write(ctx, graphID, extraction)
			stats.Add(chunkStats)
			if err != nil {
				b.failPartial(taskID, graphID, stats, i, err.Error())
				return
			}
		}

		progress := 20 + (70*(i+1))/len(chunks)
		b.setProgress(taskID, TaskProcessing, progress,
			fmt.Sprintf("processed chunk %d/%d", i+1, len(chunks)))

		if b.opts.ChunkDelay > 0 && i < len(chunks)-1 {
			select {
			case <-time.After(b.opts.ChunkDelay):
			case <-ctx.Done():
			}
		}
	}

	b.setProgress(taskID, TaskProcessing, 95, "collecting graph info")

	result := buildResult(graphID, stats, len(chunks), emptyChunks)
	if info, err := b.writer.store.GetGraphInfo(ctx, graphID); err == nil {
		result["node_count"] = info.NodeCount
		result["edge_count"] = info.EdgeCount
		result["entity_types"] = info.EntityTypes
	} else {
		b.logger.Warn("failed to collect graph info", "graph_id", graphID, "error", err)
	}

	b.tasks.Complete(taskID, result)
	b.logger.Info("build completed",
		"task_id", taskID,
		"graph_id", graphID,
		"nodes", stats.Nodes(),
		"edges", stats.Edges(),
		"edges_dropped", stats.EdgesDropped,
		"duration_ms", time.Since(started).Milliseconds())
}

// setProgress moves a task forward along the watermark path.
func (b *GraphBuilder) setProgress(taskID string, status TaskStatus, progress int, message string) {
	b.tasks.Update(taskID, TaskUpdate{Status: &status, Progress: &progress, Message: &message})
}

// failPartial fails the task but attaches the partial tally first, so
// clients can see what did make it into the store. failedAt doubles as
// the number of chunks that completed before the failure.
func (b *GraphBuilder) failPartial(taskID, graphID string, stats WriteStats, failedAt int, errMsg string) {
	result := buildResult(graphID, stats, failedAt, 0)
	result["failed_at_chunk"] = failedAt
	b.tasks.Update(taskID, TaskUpdate{Result: result})
	b.tasks.Fail(taskID, errMsg)
}

func buildResult(graphID string, stats WriteStats, chunksProcessed, emptyChunks int) map[string]any {
	result := map[string]any{
		"graph_id":         graphID,
		"chunks_processed": chunksProcessed,
		"nodes_merged":     stats.Nodes(),
		"edges_merged":     stats.Edges(),
		"edges_dropped":    stats.EdgesDropped,
		"merge_errors":     stats.Errors,
	}
	if emptyChunks > 0 {
		result["empty_chunks"] = emptyChunks
	}
	return result
}

// HasIngestibleText reports whether text would produce at least one
// chunk. Lets the API layer reject empty bodies before creating a task.
func HasIngestibleText(text string) bool {
	return strings.TrimSpace(text) != ""
}
