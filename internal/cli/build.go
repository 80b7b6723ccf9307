package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/raphaelgruber/graphscribe/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	buildGraphID string
	buildNoWait  bool
)

var buildCmd = &cobra.Command{
	Use:   "build <file>",
	Short: "Build a knowledge graph from a text file",
	Long: `Build a knowledge graph from a text file.

The text is split into chunks, entities and relationships are extracted
with an LLM, and everything is merged into one graph namespace. Pass "-"
to read from stdin. Repeating a build against the same --graph-id merges
instead of duplicating.

Examples:
  graphscribe build notes.txt
  graphscribe build report.md --graph-id graph_q3report
  cat transcript.txt | graphscribe build -
  graphscribe build big.txt --no-wait`,
	Args: cobra.ExactArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildGraphID, "graph-id", "g", "", "graph namespace to merge into (generated if empty)")
	buildCmd.Flags().BoolVar(&buildNoWait, "no-wait", false, "submit and exit without waiting for completion")
}

func runBuild(cmd *cobra.Command, args []string) error {
	text, err := readInput(args[0])
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("input is empty")
	}

	ctx := context.Background()
	result, err := apiClient.BuildGraph(ctx, text, buildGraphID)
	if err != nil {
		return fmt.Errorf("submit build: %w", err)
	}

	fmt.Printf("Build started: task %s -> %s\n", result.TaskID, result.GraphID)
	if buildNoWait {
		fmt.Printf("Use 'graphscribe tasks %s' to check status.\n", result.TaskID)
		return nil
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		return RunTaskProgress(apiClient, result.TaskID)
	}
	return watchTaskPlain(ctx, result.TaskID)
}

// watchTaskPlain follows a task without the interactive UI, printing one
// line per update. Used when stdout is not a terminal.
func watchTaskPlain(ctx context.Context, taskID string) error {
	final, err := apiClient.WatchTask(ctx, taskID, func(snap service.Task) {
		fmt.Printf("[%s] %3d%% %s\n", snap.Status, snap.Progress, snap.Message)
	})
	if err != nil {
		return fmt.Errorf("watch task: %w", err)
	}
	if final.Status == service.TaskFailed {
		return fmt.Errorf("build failed: %s", final.Error)
	}
	printBuildResult(final.Result)
	return nil
}

func printBuildResult(result map[string]any) {
	if result == nil {
		return
	}
	fmt.Printf("\nGraph: %v\n", result["graph_id"])
	fmt.Printf("  Chunks:        %v\n", result["chunks_processed"])
	fmt.Printf("  Nodes merged:  %v\n", result["nodes_merged"])
	fmt.Printf("  Edges merged:  %v\n", result["edges_merged"])
	if v, ok := result["edges_dropped"]; ok && v != float64(0) {
		fmt.Printf("  Edges dropped: %v\n", v)
	}
	if types, ok := result["entity_types"].([]any); ok && len(types) > 0 {
		labels := make([]string, 0, len(types))
		for _, t := range types {
			labels = append(labels, fmt.Sprint(t))
		}
		fmt.Printf("  Entity types:  %s\n", strings.Join(labels, ", "))
	}
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
