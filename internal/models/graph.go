// Package models defines data structures for the Graphscribe ingestion service.
package models

import (
	"strings"
	"time"
	"unicode"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// DefaultNodeLabel is used when the extraction oracle omits a node label.
const DefaultNodeLabel = "Entity"

// DefaultRelType is used when the extraction oracle omits a relationship.
const DefaultRelType = "RELATED_TO"

// ExtractedNode is a candidate node produced by the extraction oracle.
// It is transient: the merge-write engine turns it into a GraphNode.
type ExtractedNode struct {
	Name       string         `json:"name"`
	Label      string         `json:"label"`
	Summary    string         `json:"summary"`
	Properties map[string]any `json:"properties"`
}

// ExtractedEdge is a candidate relationship produced by the extraction oracle.
// From/To reference nodes by name within the same graph namespace.
type ExtractedEdge struct {
	From         string         `json:"from"`
	To           string         `json:"to"`
	Relationship string         `json:"relationship"`
	Properties   map[string]any `json:"properties"`
}

// Extraction is the oracle output envelope. Empty node/edge lists are a
// valid result, not an error.
type Extraction struct {
	Nodes []ExtractedNode `json:"nodes"`
	Edges []ExtractedEdge `json:"edges"`
}

// Empty reports whether the extraction carries no nodes and no edges.
func (x Extraction) Empty() bool {
	return len(x.Nodes) == 0 && len(x.Edges) == 0
}

// RelType returns the normalized relation-type identifier for the edge:
// uppercase, underscore-separated, with camel-case boundaries split
// ("WorksAt" and "works at" both become "WORKS_AT"). Empty relationships
// fall back to DefaultRelType.
func (e ExtractedEdge) RelType() string {
	return NormalizeRelType(e.Relationship)
}

// NormalizeRelType converts a free-text relationship into an identifier
// suitable as a relation type: camel-case boundaries and separators become
// single underscores, everything else is uppercased, and characters outside
// [A-Z0-9_] are dropped.
func NormalizeRelType(rel string) string {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return DefaultRelType
	}

	var b strings.Builder
	prevLower := false
	prevUnderscore := false
	for _, r := range rel {
		switch {
		case unicode.IsUpper(r):
			if prevLower && !prevUnderscore {
				b.WriteByte('_')
			}
			b.WriteRune(r)
			prevLower = false
			prevUnderscore = false
		case unicode.IsLower(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
			prevLower = unicode.IsLower(r)
			prevUnderscore = false
		case r == ' ' || r == '-' || r == '_' || r == '.':
			if b.Len() > 0 && !prevUnderscore {
				b.WriteByte('_')
				prevUnderscore = true
			}
			prevLower = false
		default:
			// Drop punctuation the store can't use in a relation type.
		}
	}

	out := strings.Trim(b.String(), "_")
	if out == "" {
		return DefaultRelType
	}
	return out
}

// GraphNode is a persisted node, identified by (graph_id, label, name).
// UUID and CreatedAt are assigned once at first creation; Props and Summary
// follow last-write-wins merge semantics.
type GraphNode struct {
	ID        surrealmodels.RecordID `json:"id"`
	GraphID   string                 `json:"graph_id"`
	Name      string                 `json:"name"`
	Label     string                 `json:"label"`
	Summary   string                 `json:"summary"`
	UUID      string                 `json:"uuid"`
	Props     map[string]any         `json:"props"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// GraphEdge is a persisted directed relationship, identified by
// (graph_id, source node, target node, rel_type).
type GraphEdge struct {
	ID        surrealmodels.RecordID `json:"id"`
	In        surrealmodels.RecordID `json:"in"`
	Out       surrealmodels.RecordID `json:"out"`
	GraphID   string                 `json:"graph_id"`
	RelType   string                 `json:"rel_type"`
	UUID      string                 `json:"uuid"`
	Props     map[string]any         `json:"props"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`

	// Populated by bulk reads for visualization.
	SourceName string `json:"source_name,omitempty"`
	TargetName string `json:"target_name,omitempty"`
	SourceUUID string `json:"source_uuid,omitempty"`
	TargetUUID string `json:"target_uuid,omitempty"`
}

// GraphInfo summarizes a graph namespace.
type GraphInfo struct {
	GraphID     string   `json:"graph_id"`
	NodeCount   int      `json:"node_count"`
	EdgeCount   int      `json:"edge_count"`
	EntityTypes []string `json:"entity_types"`
}

// GraphData is the full namespace contents for visualization/export.
type GraphData struct {
	GraphID   string      `json:"graph_id"`
	Nodes     []GraphNode `json:"nodes"`
	Edges     []GraphEdge `json:"edges"`
	NodeCount int         `json:"node_count"`
	EdgeCount int         `json:"edge_count"`
}
