// Package parser provides deterministic text splitting for graph ingestion.
package parser

import "strings"

// Default chunking parameters, matching the batch builder defaults.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// SplitText splits text into character windows of at most chunkSize runes,
// repeating chunkOverlap runes between adjacent windows so entity mentions
// that straddle a boundary appear in both chunks.
//
// Pure function. Non-empty (non-whitespace) input always yields at least one
// chunk. An overlap >= chunkSize is clamped to chunkSize-1 so the window
// always advances; non-positive sizes fall back to DefaultChunkSize.
func SplitText(text string, chunkSize, chunkOverlap int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize - 1
	}

	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}

	step := chunkSize - chunkOverlap
	chunks := make([]string, 0, (len(runes)+step-1)/step)
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}

	return chunks
}
