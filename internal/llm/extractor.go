package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"
	"github.com/raphaelgruber/graphscribe/internal/metrics"
	"github.com/raphaelgruber/graphscribe/internal/models"
)

const extractionSystemPrompt = `You are a knowledge graph extraction specialist. Extract entities and relationships from the given text.

Return ONLY a JSON object with this exact structure, no prose and no markdown fences:
{
  "nodes": [
    {"name": "entity name", "label": "EntityType", "summary": "one-sentence description", "properties": {}}
  ],
  "edges": [
    {"from": "source entity name", "to": "target entity name", "relationship": "RELATION_TYPE", "properties": {}}
  ]
}

Guidelines:
- Extract every concrete entity: people, organizations, locations, products, concepts, events.
- Use a short CamelCase label for each node (Person, Organization, Location, Concept, Event).
- Every edge must reference node names that appear in the nodes list.
- Use concise UPPER_SNAKE_CASE relationship types (WORKS_AT, LOCATED_IN, KNOWS).
- Put additional attributes into properties as flat key/value pairs.
- If the text contains nothing extractable, return {"nodes": [], "edges": []}.`

// Generator produces text from a system/user prompt pair. *Model satisfies
// it; tests substitute a canned implementation.
type Generator interface {
	GenerateWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, Usage, error)
	Model() string
}

// Extractor turns free text into candidate graph nodes and edges.
//
// Extraction is best-effort by contract: malformed model output degrades to
// an empty extraction rather than an error, so one bad chunk never sinks a
// batch. The only errors it surfaces are fatal provider errors (quota,
// credentials) where continuing would be pointless.
type Extractor struct {
	gen       Generator
	collector *metrics.Collector
	logger    *slog.Logger
}

// NewExtractor creates an extractor backed by the given generator.
// The collector is optional; when set, every generation is recorded with
// its duration and token usage.
func NewExtractor(gen Generator, collector *metrics.Collector, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{gen: gen, collector: collector, logger: logger}
}

// Extract runs the extraction prompt against text and parses the response.
// Returns an empty extraction when the model fails or replies with
// unusable output; the error is non-nil only for ErrFatalAPI conditions.
func (e *Extractor) Extract(ctx context.Context, text string) (models.Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return models.Extraction{}, nil
	}

	start := time.Now()
	response, usage, err := e.gen.GenerateWithSystem(ctx, extractionSystemPrompt, "Text:\n"+text)
	if err != nil {
		if errors.Is(err, ErrFatalAPI) {
			return models.Extraction{}, err
		}
		e.logger.Warn("extraction request failed",
			"model", e.gen.Model(), "error", err)
		return models.Extraction{}, nil
	}
	if e.collector != nil {
		e.collector.RecordLLMUsage(metrics.OpExtract, time.Since(start), usage.InputTokens, usage.OutputTokens)
	}

	extraction, err := parseExtraction(response)
	if err != nil {
		e.logger.Warn("unparseable extraction response",
			"model", e.gen.Model(), "response_len", len(response), "error", err)
		return models.Extraction{}, nil
	}

	return sanitizeExtraction(extraction), nil
}

// parseExtraction decodes the model response, tolerating markdown fences
// and slightly broken JSON (trailing commas, single quotes) via jsonrepair.
func parseExtraction(response string) (models.Extraction, error) {
	payload := stripCodeFences(response)

	var out models.Extraction
	if err := json.Unmarshal([]byte(payload), &out); err == nil {
		return out, nil
	}

	repaired, err := jsonrepair.JSONRepair(payload)
	if err != nil {
		return models.Extraction{}, err
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return models.Extraction{}, err
	}
	return out, nil
}

// stripCodeFences removes markdown fences and any prose around the JSON
// object. Models regularly wrap output in ```json blocks despite being
// told not to.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// sanitizeExtraction drops entries the merge engine cannot use: nodes
// without a name, edges with a missing endpoint reference.
func sanitizeExtraction(x models.Extraction) models.Extraction {
	nodes := x.Nodes[:0]
	for _, n := range x.Nodes {
		n.Name = strings.TrimSpace(n.Name)
		if n.Name == "" {
			continue
		}
		if n.Label == "" {
			n.Label = models.DefaultNodeLabel
		}
		nodes = append(nodes, n)
	}

	edges := x.Edges[:0]
	for _, e := range x.Edges {
		e.From = strings.TrimSpace(e.From)
		e.To = strings.TrimSpace(e.To)
		if e.From == "" || e.To == "" {
			continue
		}
		edges = append(edges, e)
	}

	return models.Extraction{Nodes: nodes, Edges: edges}
}
