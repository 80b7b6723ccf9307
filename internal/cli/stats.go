package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/raphaelgruber/graphscribe/internal/metrics"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server runtime statistics",
	Long: `Show server runtime statistics: live stream counters plus timing and
token usage per operation for cost monitoring.`,
	RunE: runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.GetStats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}

	fmt.Printf("Server Statistics (in-memory, since restart)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")

	if len(stats.Streams) > 0 {
		fmt.Printf("\nLive streams:\n")
		runs := make([]string, 0, len(stats.Streams))
		for run := range stats.Streams {
			runs = append(runs, run)
		}
		sort.Strings(runs)
		for _, run := range runs {
			s := stats.Streams[run]
			fmt.Printf("  %-20s received %d, flushed %d, skipped %d\n",
				run, s.TotalReceived, s.ItemsFlushed, s.ItemsSkipped)
		}
	}

	ops := stats.Operations
	if ops == nil {
		fmt.Println("\nNo operation metrics collected")
		return nil
	}

	fmt.Printf("\nUptime: %.1f seconds\n", ops.UptimeSeconds)

	if ops.Extract != nil {
		fmt.Printf("\nExtraction:\n")
		printOpStats(ops.Extract)
		printTokenStats(ops.Extract)
	}
	if ops.MergeNode != nil {
		fmt.Printf("\nNode Merge:\n")
		printOpStats(ops.MergeNode)
	}
	if ops.MergeEdge != nil {
		fmt.Printf("\nEdge Merge:\n")
		printOpStats(ops.MergeEdge)
	}
	if ops.StreamFlush != nil {
		fmt.Printf("\nStream Flush:\n")
		printOpStats(ops.StreamFlush)
	}
	if ops.GraphQuery != nil {
		fmt.Printf("\nGraph Query:\n")
		printOpStats(ops.GraphQuery)
	}
	return nil
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	if op.MinInputTokens != nil && op.MaxInputTokens != nil {
		fmt.Printf(", min %d, max %d", *op.MinInputTokens, *op.MaxInputTokens)
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	if op.MinOutputTokens != nil && op.MaxOutputTokens != nil {
		fmt.Printf(", min %d, max %d", *op.MinOutputTokens, *op.MaxOutputTokens)
	}
	fmt.Println()
}
