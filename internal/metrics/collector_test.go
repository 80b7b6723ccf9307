package metrics

import (
	"testing"
	"time"
)

func TestCollectorTimings(t *testing.T) {
	c := NewCollector()
	c.RecordTiming(OpMergeNode, 10*time.Millisecond)
	c.RecordTiming(OpMergeNode, 30*time.Millisecond)

	snap := c.Snapshot()
	if snap.MergeNode == nil {
		t.Fatal("expected merge_node snapshot")
	}
	if snap.MergeNode.Count != 2 {
		t.Errorf("count = %d, want 2", snap.MergeNode.Count)
	}
	if snap.MergeNode.MinTimeMs != 10 || snap.MergeNode.MaxTimeMs != 30 {
		t.Errorf("min/max = %d/%d, want 10/30", snap.MergeNode.MinTimeMs, snap.MergeNode.MaxTimeMs)
	}
	if snap.MergeEdge != nil {
		t.Error("untouched operation should snapshot as nil")
	}
}

func TestCollectorLLMUsage(t *testing.T) {
	c := NewCollector()
	c.RecordLLMUsage(OpExtract, 100*time.Millisecond, 200, 50)
	c.RecordLLMUsage(OpExtract, 200*time.Millisecond, 400, 150)

	snap := c.Snapshot()
	if snap.Extract == nil {
		t.Fatal("expected extract snapshot")
	}
	if snap.Extract.TotalInputTokens == nil || *snap.Extract.TotalInputTokens != 600 {
		t.Errorf("total input tokens = %v, want 600", snap.Extract.TotalInputTokens)
	}
	if snap.Extract.MaxOutputTokens == nil || *snap.Extract.MaxOutputTokens != 150 {
		t.Errorf("max output tokens = %v, want 150", snap.Extract.MaxOutputTokens)
	}
	if *snap.Extract.AvgInputTokens != 300 {
		t.Errorf("avg input tokens = %v, want 300", *snap.Extract.AvgInputTokens)
	}
}
