// Package db provides integration tests for SurrealDB graph operations.
package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/models"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	// Start SurrealDB container
	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	// Get container host and port
	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	// Connect to test database
	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
		AuthLevel: "root",
	}, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	// Run tests
	code := m.Run()

	// Cleanup
	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

func cleanupGraph(t *testing.T, graphID string) {
	t.Helper()
	t.Cleanup(func() {
		_, _, _ = testDB.DeleteGraph(context.Background(), graphID)
	})
}

// =============================================================================
// NODE MERGE TESTS
// =============================================================================

func TestMergeNodeCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_nodemerge01"
	cleanupGraph(t, graphID)

	node, created, err := testDB.MergeNode(ctx, graphID, models.ExtractedNode{
		Name:    "Alice",
		Label:   "Person",
		Summary: "A software engineer",
	})
	if err != nil {
		t.Fatalf("MergeNode failed: %v", err)
	}
	if !created {
		t.Error("first merge should report created=true")
	}
	if node.Name != "Alice" || node.Label != "Person" {
		t.Errorf("unexpected node identity: %s/%s", node.Label, node.Name)
	}
	if node.UUID == "" {
		t.Error("node should have a generated uuid")
	}
	if node.Summary != "A software engineer" {
		t.Errorf("summary = %q", node.Summary)
	}

	// Second merge with new summary updates in place.
	node2, created2, err := testDB.MergeNode(ctx, graphID, models.ExtractedNode{
		Name:    "Alice",
		Label:   "Person",
		Summary: "A software engineer at Acme",
		Properties: map[string]any{
			"city": "Vienna",
		},
	})
	if err != nil {
		t.Fatalf("second MergeNode failed: %v", err)
	}
	if created2 {
		t.Error("second merge should report created=false")
	}
	if node2.UUID != node.UUID {
		t.Errorf("uuid should be stable across merges: %s vs %s", node2.UUID, node.UUID)
	}
	if !node2.CreatedAt.Equal(node.CreatedAt) {
		t.Error("created_at should be stable across merges")
	}
	if node2.Summary != "A software engineer at Acme" {
		t.Errorf("summary not updated: %q", node2.Summary)
	}
	if node2.Props["city"] != "Vienna" {
		t.Errorf("props not merged: %v", node2.Props)
	}

	count, err := testDB.CountNodes(ctx, graphID)
	if err != nil {
		t.Fatalf("CountNodes failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 node after repeated merge, got %d", count)
	}
}

func TestMergeNodeSummaryAlwaysOverwritten(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_nodesummary01"
	cleanupGraph(t, graphID)

	_, _, err := testDB.MergeNode(ctx, graphID, models.ExtractedNode{
		Name:    "Acme",
		Label:   "Organization",
		Summary: "A company",
	})
	if err != nil {
		t.Fatalf("MergeNode failed: %v", err)
	}

	// The latest extraction wins, even when it carries no summary.
	node, _, err := testDB.MergeNode(ctx, graphID, models.ExtractedNode{
		Name:  "Acme",
		Label: "Organization",
	})
	if err != nil {
		t.Fatalf("second MergeNode failed: %v", err)
	}
	if node.Summary != "" {
		t.Errorf("summary = %q, want latest (empty) value", node.Summary)
	}
}

func TestMergeNodeIsolatedByGraph(t *testing.T) {
	ctx := context.Background()
	cleanupGraph(t, "graph_iso_a")
	cleanupGraph(t, "graph_iso_b")

	n := models.ExtractedNode{Name: "Paris", Label: "Location"}
	a, _, err := testDB.MergeNode(ctx, "graph_iso_a", n)
	if err != nil {
		t.Fatalf("MergeNode graph a failed: %v", err)
	}
	b, _, err := testDB.MergeNode(ctx, "graph_iso_b", n)
	if err != nil {
		t.Fatalf("MergeNode graph b failed: %v", err)
	}

	if a.UUID == b.UUID {
		t.Error("same name in different graphs must be distinct records")
	}

	countA, _ := testDB.CountNodes(ctx, "graph_iso_a")
	countB, _ := testDB.CountNodes(ctx, "graph_iso_b")
	if countA != 1 || countB != 1 {
		t.Errorf("expected 1 node per graph, got %d and %d", countA, countB)
	}
}

func TestMergeNodeDefaultLabel(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_defaultlabel01"
	cleanupGraph(t, graphID)

	node, _, err := testDB.MergeNode(ctx, graphID, models.ExtractedNode{Name: "Something"})
	if err != nil {
		t.Fatalf("MergeNode failed: %v", err)
	}
	if node.Label != models.DefaultNodeLabel {
		t.Errorf("label = %q, want %q", node.Label, models.DefaultNodeLabel)
	}
}

// =============================================================================
// EDGE MERGE TESTS
// =============================================================================

func TestMergeEdgeLifecycle(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_edgemerge01"
	cleanupGraph(t, graphID)

	for _, n := range []string{"Alice", "Acme"} {
		if _, _, err := testDB.MergeNode(ctx, graphID, models.ExtractedNode{Name: n}); err != nil {
			t.Fatalf("MergeNode %s failed: %v", n, err)
		}
	}

	// Create
	outcome, edge, err := testDB.MergeEdge(ctx, graphID, models.ExtractedEdge{
		From: "Alice", To: "Acme", Relationship: "works at",
	})
	if err != nil {
		t.Fatalf("MergeEdge failed: %v", err)
	}
	if outcome != EdgeCreated {
		t.Errorf("outcome = %q, want %q", outcome, EdgeCreated)
	}
	if edge == nil || edge.RelType != "WORKS_AT" {
		t.Fatalf("edge = %+v, want rel_type WORKS_AT", edge)
	}

	// Idempotent re-merge updates in place.
	outcome2, edge2, err := testDB.MergeEdge(ctx, graphID, models.ExtractedEdge{
		From: "Alice", To: "Acme", Relationship: "WORKS_AT",
		Properties: map[string]any{"since": "2020"},
	})
	if err != nil {
		t.Fatalf("second MergeEdge failed: %v", err)
	}
	if outcome2 != EdgeUpdated {
		t.Errorf("outcome = %q, want %q", outcome2, EdgeUpdated)
	}
	if edge2.UUID != edge.UUID {
		t.Errorf("uuid should be stable across merges")
	}
	if edge2.Props["since"] != "2020" {
		t.Errorf("props not merged: %v", edge2.Props)
	}

	count, err := testDB.CountEdges(ctx, graphID)
	if err != nil {
		t.Fatalf("CountEdges failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 edge after repeated merge, got %d", count)
	}
}

func TestMergeEdgeDropsDanglingReferences(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_dangling01"
	cleanupGraph(t, graphID)

	if _, _, err := testDB.MergeNode(ctx, graphID, models.ExtractedNode{Name: "Alice"}); err != nil {
		t.Fatalf("MergeNode failed: %v", err)
	}

	outcome, edge, err := testDB.MergeEdge(ctx, graphID, models.ExtractedEdge{
		From: "Alice", To: "Nobody", Relationship: "KNOWS",
	})
	if err != nil {
		t.Fatalf("MergeEdge failed: %v", err)
	}
	if outcome != EdgeDropped {
		t.Errorf("outcome = %q, want %q", outcome, EdgeDropped)
	}
	if edge != nil {
		t.Errorf("dropped edge should not be returned, got %+v", edge)
	}

	count, _ := testDB.CountEdges(ctx, graphID)
	if count != 0 {
		t.Errorf("expected 0 edges, got %d", count)
	}
}

func TestMergeEdgeDifferentRelTypesCoexist(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_multirel01"
	cleanupGraph(t, graphID)

	for _, n := range []string{"Alice", "Bob"} {
		if _, _, err := testDB.MergeNode(ctx, graphID, models.ExtractedNode{Name: n}); err != nil {
			t.Fatalf("MergeNode %s failed: %v", n, err)
		}
	}

	for _, rel := range []string{"KNOWS", "MANAGES"} {
		outcome, _, err := testDB.MergeEdge(ctx, graphID, models.ExtractedEdge{
			From: "Alice", To: "Bob", Relationship: rel,
		})
		if err != nil {
			t.Fatalf("MergeEdge %s failed: %v", rel, err)
		}
		if outcome != EdgeCreated {
			t.Errorf("outcome for %s = %q, want created", rel, outcome)
		}
	}

	count, _ := testDB.CountEdges(ctx, graphID)
	if count != 2 {
		t.Errorf("expected 2 edges with distinct rel types, got %d", count)
	}
}

// =============================================================================
// GRAPH QUERY TESTS
// =============================================================================

func seedGraph(t *testing.T, graphID string) {
	t.Helper()
	ctx := context.Background()
	cleanupGraph(t, graphID)

	nodes := []models.ExtractedNode{
		{Name: "Alice", Label: "Person", Summary: "Engineer"},
		{Name: "Bob", Label: "Person"},
		{Name: "Acme", Label: "Organization"},
	}
	for _, n := range nodes {
		if _, _, err := testDB.MergeNode(ctx, graphID, n); err != nil {
			t.Fatalf("seed MergeNode %s failed: %v", n.Name, err)
		}
	}
	edges := []models.ExtractedEdge{
		{From: "Alice", To: "Acme", Relationship: "WORKS_AT"},
		{From: "Bob", To: "Acme", Relationship: "WORKS_AT"},
	}
	for _, e := range edges {
		if _, _, err := testDB.MergeEdge(ctx, graphID, e); err != nil {
			t.Fatalf("seed MergeEdge failed: %v", err)
		}
	}
}

func TestGetGraphInfo(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_info01"
	seedGraph(t, graphID)

	info, err := testDB.GetGraphInfo(ctx, graphID)
	if err != nil {
		t.Fatalf("GetGraphInfo failed: %v", err)
	}
	if info.NodeCount != 3 {
		t.Errorf("node count = %d, want 3", info.NodeCount)
	}
	if info.EdgeCount != 2 {
		t.Errorf("edge count = %d, want 2", info.EdgeCount)
	}
	if len(info.EntityTypes) != 2 {
		t.Errorf("entity types = %v, want [Person Organization]", info.EntityTypes)
	}
	// Most frequent label first.
	if len(info.EntityTypes) > 0 && info.EntityTypes[0] != "Person" {
		t.Errorf("entity types = %v, want Person first", info.EntityTypes)
	}
}

func TestGetGraphData(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_data01"
	seedGraph(t, graphID)

	data, err := testDB.GetGraphData(ctx, graphID, 0)
	if err != nil {
		t.Fatalf("GetGraphData failed: %v", err)
	}
	if data.NodeCount != 3 || data.EdgeCount != 2 {
		t.Fatalf("counts = %d/%d, want 3/2", data.NodeCount, data.EdgeCount)
	}

	for _, e := range data.Edges {
		if e.SourceName == "" || e.TargetName == "" {
			t.Errorf("edge endpoints not resolved: %+v", e)
		}
		if e.TargetName != "Acme" {
			t.Errorf("target name = %q, want Acme", e.TargetName)
		}
		if e.SourceUUID == "" || e.TargetUUID == "" {
			t.Errorf("edge endpoint uuids not resolved: %+v", e)
		}
	}
}

func TestDeleteGraph(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_delete01"
	seedGraph(t, graphID)

	nodes, edges, err := testDB.DeleteGraph(ctx, graphID)
	if err != nil {
		t.Fatalf("DeleteGraph failed: %v", err)
	}
	if nodes != 3 || edges != 2 {
		t.Errorf("deleted %d nodes / %d edges, want 3/2", nodes, edges)
	}

	count, _ := testDB.CountNodes(ctx, graphID)
	if count != 0 {
		t.Errorf("expected 0 nodes after delete, got %d", count)
	}

	// Deleting again is a no-op.
	nodes, edges, err = testDB.DeleteGraph(ctx, graphID)
	if err != nil {
		t.Fatalf("second DeleteGraph failed: %v", err)
	}
	if nodes != 0 || edges != 0 {
		t.Errorf("second delete removed %d/%d, want 0/0", nodes, edges)
	}
}

func TestListGraphs(t *testing.T) {
	ctx := context.Background()
	graphID := "graph_list01"
	seedGraph(t, graphID)

	graphs, err := testDB.ListGraphs(ctx)
	if err != nil {
		t.Fatalf("ListGraphs failed: %v", err)
	}
	found := false
	for _, g := range graphs {
		if g.GraphID == graphID {
			found = true
			if g.NodeCount != 3 {
				t.Errorf("node count = %d, want 3", g.NodeCount)
			}
		}
	}
	if !found {
		t.Errorf("ListGraphs should include %s", graphID)
	}
}
