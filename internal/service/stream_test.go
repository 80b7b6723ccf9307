package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/models"
)

func postEvent(agent, content string) map[string]any {
	return map[string]any{
		"agent_id":    float64(1),
		"agent_name":  agent,
		"action_type": "CREATE_POST",
		"action_args": map[string]any{"content": content},
		"round":       float64(1),
	}
}

func newTestUpdater(store *fakeStore, extractor Extractor, opts StreamOptions) *StreamUpdater {
	writer := NewGraphWriter(store, nil, nil)
	return NewStreamUpdater("run1", "graph_s01", extractor, writer, nil, opts, nil)
}

func TestStreamFlushesAtBatchSize(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{fn: func(int, string) (models.Extraction, error) {
		return models.Extraction{Nodes: []models.ExtractedNode{{Name: "alice", Label: "Person"}}}, nil
	}}
	u := newTestUpdater(store, extractor, StreamOptions{BatchSize: 2, SendInterval: time.Millisecond})
	defer u.Stop()

	if !u.Enqueue(postEvent("alice", "first"), "twitter") {
		t.Fatal("event should be accepted")
	}
	u.Enqueue(postEvent("alice", "second"), "twitter")

	waitFor(t, 2*time.Second, func() bool {
		return u.Stats().ItemsFlushed == 2
	}, "batch not flushed")

	stats := u.Stats()
	if stats.BatchesFlushed != 1 {
		t.Errorf("batches = %d, want 1", stats.BatchesFlushed)
	}
	if stats.TotalReceived != 2 {
		t.Errorf("total received = %d, want 2", stats.TotalReceived)
	}
	if store.nodeCount("graph_s01") != 1 {
		t.Errorf("store has %d nodes, want 1", store.nodeCount("graph_s01"))
	}

	// The flushed episode mentions the platform and the post content.
	if extractor.callCount() != 1 {
		t.Fatalf("extractor called %d times, want 1", extractor.callCount())
	}
}

func TestStreamBuffersPerPlatform(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{}
	u := newTestUpdater(store, extractor, StreamOptions{BatchSize: 2, SendInterval: time.Millisecond})
	defer u.Stop()

	// One event each on two platforms: neither buffer reaches the batch
	// size, so nothing flushes.
	u.Enqueue(postEvent("alice", "tweet"), "twitter")
	u.Enqueue(postEvent("bob", "thread"), "reddit")

	time.Sleep(50 * time.Millisecond)
	if got := u.Stats().ItemsFlushed; got != 0 {
		t.Errorf("items flushed = %d, want 0 before a buffer fills", got)
	}

	// A second twitter event fills that platform's buffer.
	u.Enqueue(postEvent("carol", "reply"), "twitter")
	waitFor(t, 2*time.Second, func() bool {
		return u.Stats().ItemsFlushed == 2
	}, "twitter batch not flushed")

	if got := u.Stats().ItemsFlushed; got != 2 {
		t.Errorf("items flushed = %d, want only the twitter batch", got)
	}
}

func TestStreamSkipsSentinelAndControlEvents(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{}
	u := newTestUpdater(store, extractor, StreamOptions{BatchSize: 1, SendInterval: time.Millisecond})
	defer u.Stop()

	if u.Enqueue(map[string]any{"event_type": "round_start"}, "twitter") {
		t.Error("control events must be rejected")
	}
	if u.Enqueue(map[string]any{"agent_name": "alice", "action_type": models.ActionNoOp}, "twitter") {
		t.Error("no-op actions must be rejected")
	}

	// Filtered events count as skipped only; they never inflate the
	// received total.
	stats := u.Stats()
	if stats.TotalReceived != 0 || stats.ItemsSkipped != 2 {
		t.Errorf("stats = %+v, want 0 received / 2 skipped", stats)
	}
	if extractor.callCount() != 0 {
		t.Errorf("extractor called %d times, skipped events must not flush", extractor.callCount())
	}
}

func TestStreamStopFlushesPartialBuffers(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{fn: func(int, string) (models.Extraction, error) {
		return models.Extraction{Nodes: []models.ExtractedNode{{Name: "alice"}}}, nil
	}}
	u := newTestUpdater(store, extractor, StreamOptions{BatchSize: 10, SendInterval: time.Millisecond})

	u.Enqueue(postEvent("alice", "one"), "twitter")
	u.Enqueue(postEvent("alice", "two"), "twitter")

	stats := u.Stop()
	if stats.Running {
		t.Error("stats should report stopped")
	}
	if stats.ItemsFlushed != 2 {
		t.Errorf("items flushed = %d, want partial buffer drained on stop", stats.ItemsFlushed)
	}
	if store.nodeCount("graph_s01") != 1 {
		t.Errorf("store has %d nodes, want 1", store.nodeCount("graph_s01"))
	}

	// Stop is idempotent and events after stop are rejected.
	_ = u.Stop()
	if u.Enqueue(postEvent("alice", "late"), "twitter") {
		t.Error("events after stop must be rejected")
	}
}

func TestStreamFailedBatchKeepsStreamAlive(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{fn: func(call int, _ string) (models.Extraction, error) {
		if call == 0 {
			return models.Extraction{}, errors.New("provider hiccup")
		}
		return models.Extraction{Nodes: []models.ExtractedNode{{Name: "bob"}}}, nil
	}}
	u := newTestUpdater(store, extractor, StreamOptions{BatchSize: 1, SendInterval: time.Millisecond})
	defer u.Stop()

	u.Enqueue(postEvent("alice", "doomed"), "twitter")
	waitFor(t, 2*time.Second, func() bool {
		return u.Stats().ItemsFailed == 1
	}, "failed batch not counted")

	u.Enqueue(postEvent("bob", "fine"), "twitter")
	waitFor(t, 2*time.Second, func() bool {
		return u.Stats().ItemsFlushed == 1
	}, "stream did not recover after a failed batch")

	if store.nodeCount("graph_s01") != 1 {
		t.Errorf("store has %d nodes, want 1 from the recovered batch", store.nodeCount("graph_s01"))
	}
}

func TestStreamManagerLifecycle(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{}
	writer := NewGraphWriter(store, nil, nil)
	m := NewStreamManager(extractor, writer, nil, StreamOptions{BatchSize: 2, SendInterval: time.Millisecond}, nil)

	first := m.Create("sim42", "")
	if first.GraphID() == "" {
		t.Error("manager should generate a graph id")
	}
	if got, ok := m.Get("sim42"); !ok || got != first {
		t.Error("Get should return the live updater")
	}

	// Create for the same run replaces (and stops) the old updater.
	second := m.Create("sim42", "graph_replaced")
	if got, _ := m.Get("sim42"); got != second {
		t.Error("Get should return the replacement updater")
	}
	if first.Stats().Running {
		t.Error("replaced updater should be stopped")
	}

	if runs := m.List(); len(runs) != 1 || runs[0] != "sim42" {
		t.Errorf("List = %v, want [sim42]", runs)
	}

	stats, ok := m.Stop("sim42")
	if !ok {
		t.Fatal("Stop should find the updater")
	}
	if stats.Running {
		t.Error("final stats should report stopped")
	}
	if _, ok := m.Get("sim42"); ok {
		t.Error("stopped updater should be removed")
	}
	if _, ok := m.Stop("sim42"); ok {
		t.Error("second Stop should report missing")
	}
}

func TestStreamManagerStopAll(t *testing.T) {
	store := newFakeStore()
	extractor := &fakeExtractor{}
	writer := NewGraphWriter(store, nil, nil)
	m := NewStreamManager(extractor, writer, nil, StreamOptions{}, nil)

	updaters := make([]*StreamUpdater, 0, 3)
	for i := 0; i < 3; i++ {
		updaters = append(updaters, m.Create(fmt.Sprintf("run%d", i), ""))
	}

	m.StopAll()
	if got := len(m.List()); got != 0 {
		t.Errorf("%d updaters still registered after StopAll", got)
	}
	for i, u := range updaters {
		if u.Stats().Running {
			t.Errorf("updater %d still running after StopAll", i)
		}
	}
}
