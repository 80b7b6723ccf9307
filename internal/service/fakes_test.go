package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/db"
	"github.com/raphaelgruber/graphscribe/internal/models"
)

// fakeStore is an in-memory GraphStore with the same merge semantics as
// the real client: idempotent node upserts and dangling-edge dropping.
type fakeStore struct {
	mu    sync.Mutex
	nodes map[string]models.GraphNode
	edges map[string]models.GraphEdge

	nodeErr error
	edgeErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes: make(map[string]models.GraphNode),
		edges: make(map[string]models.GraphEdge),
	}
}

func nodeKey(graphID, label, name string) string {
	return graphID + "|" + label + "|" + name
}

func (s *fakeStore) MergeNode(_ context.Context, graphID string, node models.ExtractedNode) (models.GraphNode, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nodeErr != nil {
		return models.GraphNode{}, false, s.nodeErr
	}

	label := node.Label
	if label == "" {
		label = models.DefaultNodeLabel
	}
	key := nodeKey(graphID, label, node.Name)

	existing, ok := s.nodes[key]
	if !ok {
		created := models.GraphNode{
			GraphID:   graphID,
			Name:      node.Name,
			Label:     label,
			Summary:   node.Summary,
			UUID:      fmt.Sprintf("uuid-%d", len(s.nodes)+1),
			Props:     node.Properties,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}
		s.nodes[key] = created
		return created, true, nil
	}

	existing.Summary = node.Summary
	if len(node.Properties) > 0 {
		if existing.Props == nil {
			existing.Props = make(map[string]any)
		}
		for k, v := range node.Properties {
			existing.Props[k] = v
		}
	}
	existing.UpdatedAt = time.Now()
	s.nodes[key] = existing
	return existing, false, nil
}

func (s *fakeStore) MergeEdge(_ context.Context, graphID string, edge models.ExtractedEdge) (string, *models.GraphEdge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.edgeErr != nil {
		return "", nil, s.edgeErr
	}

	if !s.hasNodeLocked(graphID, edge.From) || !s.hasNodeLocked(graphID, edge.To) {
		return db.EdgeDropped, nil, nil
	}

	key := graphID + "|" + edge.From + "|" + edge.RelType() + "|" + edge.To
	existing, ok := s.edges[key]
	if !ok {
		created := models.GraphEdge{
			GraphID:    graphID,
			RelType:    edge.RelType(),
			Props:      edge.Properties,
			SourceName: edge.From,
			TargetName: edge.To,
		}
		s.edges[key] = created
		return db.EdgeCreated, &created, nil
	}
	if len(edge.Properties) > 0 {
		if existing.Props == nil {
			existing.Props = make(map[string]any)
		}
		for k, v := range edge.Properties {
			existing.Props[k] = v
		}
		s.edges[key] = existing
	}
	return db.EdgeUpdated, &existing, nil
}

func (s *fakeStore) hasNodeLocked(graphID, name string) bool {
	for _, n := range s.nodes {
		if n.GraphID == graphID && n.Name == name {
			return true
		}
	}
	return false
}

func (s *fakeStore) GetGraphInfo(_ context.Context, graphID string) (models.GraphInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := models.GraphInfo{GraphID: graphID}
	labels := make(map[string]bool)
	for _, n := range s.nodes {
		if n.GraphID == graphID {
			info.NodeCount++
			if !labels[n.Label] {
				labels[n.Label] = true
				info.EntityTypes = append(info.EntityTypes, n.Label)
			}
		}
	}
	for _, e := range s.edges {
		if e.GraphID == graphID {
			info.EdgeCount++
		}
	}
	return info, nil
}

func (s *fakeStore) nodeCount(graphID string) int {
	info, _ := s.GetGraphInfo(context.Background(), graphID)
	return info.NodeCount
}

func (s *fakeStore) edgeCount(graphID string) int {
	info, _ := s.GetGraphInfo(context.Background(), graphID)
	return info.EdgeCount
}

// fakeExtractor runs a scripted function per call and records inputs.
type fakeExtractor struct {
	mu    sync.Mutex
	fn    func(call int, text string) (models.Extraction, error)
	calls []string
}

func (f *fakeExtractor) Extract(_ context.Context, text string) (models.Extraction, error) {
	f.mu.Lock()
	call := len(f.calls)
	f.calls = append(f.calls, text)
	fn := f.fn
	f.mu.Unlock()

	if fn == nil {
		return models.Extraction{}, nil
	}
	return fn(call, text)
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// aliceAcmeExtraction is the canonical small extraction used across tests.
func aliceAcmeExtraction() models.Extraction {
	return models.Extraction{
		Nodes: []models.ExtractedNode{
			{Name: "Alice", Label: "Person", Summary: "An engineer"},
			{Name: "Acme", Label: "Organization"},
			{Name: "Paris", Label: "Location"},
		},
		Edges: []models.ExtractedEdge{
			{From: "Alice", To: "Acme", Relationship: "WORKS_AT"},
			{From: "Acme", To: "Paris", Relationship: "LOCATED_IN"},
		},
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
