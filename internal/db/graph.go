// Package db provides SurrealDB query functions for graph operations.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/raphaelgruber/graphscribe/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// Edge merge outcomes. Dropped means at least one endpoint did not exist
// in the graph namespace, so the edge was discarded rather than created
// against a dangling reference.
const (
	EdgeCreated = "created"
	EdgeUpdated = "updated"
	EdgeDropped = "dropped"
)

// nodeIDSpace namespaces the deterministic record IDs derived from node
// identity. Two merges of the same (graph_id, label, name) always target
// the same record, which is what makes MergeNode a single-statement upsert.
var nodeIDSpace = uuid.MustParse("9a7c3f6e-1b42-4d8a-9e05-c2f1d7a8b364")

// NodeRecordID derives the stable record ID for a node identity.
func NodeRecordID(graphID, label, name string) surrealmodels.RecordID {
	id := uuid.NewSHA1(nodeIDSpace, []byte(graphID+"\x00"+label+"\x00"+name))
	return surrealmodels.NewRecordID("graph_node", id.String())
}

// LabelCount represents a node label with its count within a graph.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// GraphCount represents a graph namespace with its node count.
type GraphCount struct {
	GraphID   string `json:"graph_id"`
	NodeCount int    `json:"count"`
}

// MergeNode upserts a node into the graph namespace. The write is a single
// UPSERT .. MERGE against the deterministic record ID, so repeating it with
// identical input is a no-op apart from updated_at. uuid and created_at are
// schema defaults and survive later merges untouched.
//
// Returns the persisted node and whether this call created it.
func (c *Client) MergeNode(ctx context.Context, graphID string, node models.ExtractedNode) (models.GraphNode, bool, error) {
	label := node.Label
	if label == "" {
		label = models.DefaultNodeLabel
	}

	// Summary always reflects the latest extraction, even when empty.
	data := map[string]any{
		"graph_id": graphID,
		"name":     node.Name,
		"label":    label,
		"summary":  node.Summary,
	}
	if len(node.Properties) > 0 {
		data["props"] = node.Properties
	}

	rid := NodeRecordID(graphID, label, node.Name)
	merged, err := c.mergeNodeOnce(ctx, rid, data)
	if err != nil {
		// Concurrent first-writes on the same identity can race on the
		// unique index. The record exists after the winner commits, so a
		// single retry resolves it.
		if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrTransactionConflict) {
			c.logger.Debug("retrying node merge after write conflict",
				"graph_id", graphID, "name", node.Name)
			merged, err = c.mergeNodeOnce(ctx, rid, data)
		}
		if err != nil {
			return models.GraphNode{}, false, fmt.Errorf("merge node %q: %w", node.Name, err)
		}
	}

	// On create both timestamps come from the same statement clock.
	created := merged.CreatedAt.Equal(merged.UpdatedAt)
	return merged, created, nil
}

func (c *Client) mergeNodeOnce(ctx context.Context, rid surrealmodels.RecordID, data map[string]any) (models.GraphNode, error) {
	results, err := surrealdb.Query[[]models.GraphNode](ctx, c.db, `
		UPSERT $id MERGE $data RETURN AFTER
	`, map[string]any{"id": rid, "data": data})
	if err != nil {
		return models.GraphNode{}, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.GraphNode{}, fmt.Errorf("upsert returned no record")
	}
	return (*results)[0].Result[0], nil
}

type edgeMergeRow struct {
	Outcome string            `json:"outcome"`
	Edge    *models.GraphEdge `json:"edge"`
}

// MergeEdge upserts a directed relationship between two nodes referenced by
// name within the graph namespace. Endpoint resolution and the write happen
// in one transaction: if either endpoint is missing the edge is dropped, if
// an edge with the same (in, rel_type, out) exists its properties are
// merged, otherwise the edge is created.
//
// Returns one of EdgeCreated, EdgeUpdated or EdgeDropped, plus the persisted
// edge for the first two.
func (c *Client) MergeEdge(ctx context.Context, graphID string, edge models.ExtractedEdge) (string, *models.GraphEdge, error) {
	vars := map[string]any{
		"graph_id": graphID,
		"from":     edge.From,
		"to":       edge.To,
		"rel_type": edge.RelType(),
		"props":    edge.Properties,
	}

	outcome, merged, err := c.mergeEdgeOnce(ctx, vars)
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrTransactionConflict) {
			c.logger.Debug("retrying edge merge after write conflict",
				"graph_id", graphID, "from", edge.From, "to", edge.To)
			outcome, merged, err = c.mergeEdgeOnce(ctx, vars)
		}
		if err != nil {
			return "", nil, fmt.Errorf("merge edge %q->%q: %w", edge.From, edge.To, err)
		}
	}
	if outcome == EdgeDropped {
		c.logger.Debug("dropped edge with missing endpoint",
			"graph_id", graphID, "from", edge.From, "to", edge.To)
	}
	return outcome, merged, nil
}

func (c *Client) mergeEdgeOnce(ctx context.Context, vars map[string]any) (string, *models.GraphEdge, error) {
	results, err := surrealdb.Query[edgeMergeRow](ctx, c.db, `
		BEGIN TRANSACTION;
		LET $src = (SELECT id FROM graph_node WHERE graph_id = $graph_id AND name = $from LIMIT 1);
		LET $dst = (SELECT id FROM graph_node WHERE graph_id = $graph_id AND name = $to LIMIT 1);
		IF array::is_empty($src) OR array::is_empty($dst) {
			RETURN { outcome: "dropped" };
		} ELSE {
			LET $in = $src[0].id;
			LET $out = $dst[0].id;
			LET $existing = (SELECT id FROM graph_edge WHERE in = $in AND out = $out AND rel_type = $rel_type LIMIT 1);
			IF array::is_empty($existing) {
				LET $edge = (RELATE $in->graph_edge->$out CONTENT {
					graph_id: $graph_id,
					rel_type: $rel_type,
					props: $props,
				});
				RETURN { outcome: "created", edge: $edge[0] };
			} ELSE {
				LET $edge = (UPDATE $existing[0].id MERGE { props: $props } RETURN AFTER);
				RETURN { outcome: "updated", edge: $edge[0] };
			};
		};
		COMMIT TRANSACTION;
	`, vars)
	if err != nil {
		return "", nil, wrapQueryError(err)
	}
	if results == nil || len(*results) == 0 {
		return "", nil, fmt.Errorf("edge merge returned no result")
	}
	row := (*results)[0].Result
	if row.Outcome == "" {
		return "", nil, fmt.Errorf("edge merge returned no outcome")
	}
	return row.Outcome, row.Edge, nil
}

type countRow struct {
	Count int `json:"count"`
}

// CountNodes returns the number of nodes in the graph namespace.
func (c *Client) CountNodes(ctx context.Context, graphID string) (int, error) {
	return c.countWhere(ctx, "graph_node", graphID)
}

// CountEdges returns the number of edges in the graph namespace.
func (c *Client) CountEdges(ctx context.Context, graphID string) (int, error) {
	return c.countWhere(ctx, "graph_edge", graphID)
}

func (c *Client) countWhere(ctx context.Context, table, graphID string) (int, error) {
	sql := fmt.Sprintf(`SELECT count() AS count FROM %s WHERE graph_id = $graph_id GROUP ALL`, table)
	results, err := surrealdb.Query[[]countRow](ctx, c.db, sql, map[string]any{"graph_id": graphID})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].Count, nil
}

// ListLabels returns distinct node labels with counts for a graph,
// most frequent first.
func (c *Client) ListLabels(ctx context.Context, graphID string) ([]LabelCount, error) {
	results, err := surrealdb.Query[[]LabelCount](ctx, c.db, `
		SELECT label, count() AS count FROM graph_node
		WHERE graph_id = $graph_id
		GROUP BY label ORDER BY count DESC
	`, map[string]any{"graph_id": graphID})
	if err != nil {
		return nil, fmt.Errorf("list labels: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []LabelCount{}, nil
	}
	return (*results)[0].Result, nil
}

// ListGraphs returns every graph namespace with its node count.
func (c *Client) ListGraphs(ctx context.Context) ([]GraphCount, error) {
	results, err := surrealdb.Query[[]GraphCount](ctx, c.db, `
		SELECT graph_id, count() AS count FROM graph_node
		GROUP BY graph_id ORDER BY graph_id
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []GraphCount{}, nil
	}
	return (*results)[0].Result, nil
}

// GetGraphInfo summarizes a graph namespace: node/edge counts and the
// distinct node labels present.
func (c *Client) GetGraphInfo(ctx context.Context, graphID string) (models.GraphInfo, error) {
	info := models.GraphInfo{GraphID: graphID}

	nodes, err := c.CountNodes(ctx, graphID)
	if err != nil {
		return info, err
	}
	edges, err := c.CountEdges(ctx, graphID)
	if err != nil {
		return info, err
	}
	labels, err := c.ListLabels(ctx, graphID)
	if err != nil {
		return info, err
	}

	info.NodeCount = nodes
	info.EdgeCount = edges
	info.EntityTypes = make([]string, 0, len(labels))
	for _, l := range labels {
		info.EntityTypes = append(info.EntityTypes, l.Label)
	}
	return info, nil
}

// GetGraphNodes returns up to limit nodes of a graph namespace.
// A non-positive limit returns all nodes.
func (c *Client) GetGraphNodes(ctx context.Context, graphID string, limit int) ([]models.GraphNode, error) {
	sql := `SELECT * FROM graph_node WHERE graph_id = $graph_id ORDER BY name`
	vars := map[string]any{"graph_id": graphID}
	if limit > 0 {
		sql += ` LIMIT $limit`
		vars["limit"] = limit
	}

	results, err := surrealdb.Query[[]models.GraphNode](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("get graph nodes: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.GraphNode{}, nil
	}
	return (*results)[0].Result, nil
}

// GetGraphEdges returns up to limit edges of a graph namespace, with
// endpoint names and uuids resolved for visualization.
// A non-positive limit returns all edges.
func (c *Client) GetGraphEdges(ctx context.Context, graphID string, limit int) ([]models.GraphEdge, error) {
	sql := `
		SELECT *, in.name AS source_name, out.name AS target_name,
		       in.uuid AS source_uuid, out.uuid AS target_uuid
		FROM graph_edge WHERE graph_id = $graph_id`
	vars := map[string]any{"graph_id": graphID}
	if limit > 0 {
		sql += ` LIMIT $limit`
		vars["limit"] = limit
	}

	results, err := surrealdb.Query[[]models.GraphEdge](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("get graph edges: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return []models.GraphEdge{}, nil
	}
	return (*results)[0].Result, nil
}

// GetGraphData returns the full contents of a graph namespace.
func (c *Client) GetGraphData(ctx context.Context, graphID string, limit int) (models.GraphData, error) {
	nodes, err := c.GetGraphNodes(ctx, graphID, limit)
	if err != nil {
		return models.GraphData{}, err
	}
	edges, err := c.GetGraphEdges(ctx, graphID, limit)
	if err != nil {
		return models.GraphData{}, err
	}
	return models.GraphData{
		GraphID:   graphID,
		Nodes:     nodes,
		Edges:     edges,
		NodeCount: len(nodes),
		EdgeCount: len(edges),
	}, nil
}

type deleteGraphRow struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// DeleteGraph removes every node and edge in the graph namespace.
// Returns the number of nodes and edges deleted.
func (c *Client) DeleteGraph(ctx context.Context, graphID string) (nodes, edges int, err error) {
	results, err := surrealdb.Query[deleteGraphRow](ctx, c.db, `
		BEGIN TRANSACTION;
		LET $edges = (DELETE graph_edge WHERE graph_id = $graph_id RETURN BEFORE);
		LET $nodes = (DELETE graph_node WHERE graph_id = $graph_id RETURN BEFORE);
		RETURN { nodes: array::len($nodes), edges: array::len($edges) };
		COMMIT TRANSACTION;
	`, map[string]any{"graph_id": graphID})
	if err != nil {
		return 0, 0, fmt.Errorf("delete graph %s: %w", graphID, wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, 0, nil
	}
	row := (*results)[0].Result
	return row.Nodes, row.Edges, nil
}
