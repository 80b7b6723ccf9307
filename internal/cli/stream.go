package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/raphaelgruber/graphscribe/internal/service"
	"github.com/spf13/cobra"
)

var (
	streamGraphID  string
	streamPlatform string
)

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Manage live activity streams",
	Long: `Manage live activity streams.

A stream folds activity events from a running simulation into a graph
namespace. Events are buffered per platform and merged in batches.`,
}

var streamStartCmd = &cobra.Command{
	Use:   "start <run-id>",
	Short: "Start a stream updater for a run",
	Long: `Start a stream updater for a run.

Starting a stream for a run that already has one replaces it; the old
updater flushes its buffers first.

Examples:
  graphscribe stream start sim42
  graphscribe stream start sim42 --graph-id graph_sim42`,
	Args: cobra.ExactArgs(1),
	RunE: runStreamStart,
}

var streamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List runs with live streams",
	Args:  cobra.NoArgs,
	RunE:  runStreamList,
}

var streamStatsCmd = &cobra.Command{
	Use:   "stats <run-id>",
	Short: "Show a stream's live counters",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreamStats,
}

var streamStopCmd = &cobra.Command{
	Use:   "stop <run-id>",
	Short: "Stop a stream, flushing buffered events",
	Args:  cobra.ExactArgs(1),
	RunE:  runStreamStop,
}

var streamFeedCmd = &cobra.Command{
	Use:   "feed <run-id> <file>",
	Short: "Feed activity events from a JSON file into a stream",
	Long: `Feed activity events from a JSON file into a stream.

The file holds a JSON array of activity objects. Pass "-" to read from
stdin.

Examples:
  graphscribe stream feed sim42 events.json --platform twitter
  generator | graphscribe stream feed sim42 - --platform reddit`,
	Args: cobra.ExactArgs(2),
	RunE: runStreamFeed,
}

func init() {
	streamStartCmd.Flags().StringVarP(&streamGraphID, "graph-id", "g", "", "graph namespace to merge into (generated if empty)")
	streamFeedCmd.Flags().StringVarP(&streamPlatform, "platform", "p", "", "platform the events belong to (required)")
	streamFeedCmd.MarkFlagRequired("platform")

	streamCmd.AddCommand(streamStartCmd)
	streamCmd.AddCommand(streamListCmd)
	streamCmd.AddCommand(streamStatsCmd)
	streamCmd.AddCommand(streamStopCmd)
	streamCmd.AddCommand(streamFeedCmd)
}

func runStreamStart(cmd *cobra.Command, args []string) error {
	info, err := apiClient.CreateStream(context.Background(), args[0], streamGraphID)
	if err != nil {
		return fmt.Errorf("create stream: %w", err)
	}
	fmt.Printf("Stream started: run %s -> %s\n", info.RunID, info.GraphID)
	return nil
}

func runStreamList(cmd *cobra.Command, args []string) error {
	runs, err := apiClient.ListStreams(context.Background())
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No live streams")
		return nil
	}
	for _, run := range runs {
		fmt.Println(run)
	}
	return nil
}

func runStreamStats(cmd *cobra.Command, args []string) error {
	status, err := apiClient.GetStreamStats(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get stream stats: %w", err)
	}

	fmt.Printf("Stream: %s -> %s\n", status.RunID, status.GraphID)
	printStreamStats(status.Stats)
	return nil
}

func runStreamStop(cmd *cobra.Command, args []string) error {
	stats, err := apiClient.StopStream(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("stop stream: %w", err)
	}

	fmt.Printf("Stream %s stopped\n", args[0])
	printStreamStats(stats)
	return nil
}

func runStreamFeed(cmd *cobra.Command, args []string) error {
	runID, path := args[0], args[1]

	raw, err := readInput(path)
	if err != nil {
		return err
	}
	var activities []map[string]any
	if err := json.Unmarshal([]byte(raw), &activities); err != nil {
		return fmt.Errorf("parse %s: expected a JSON array of activities: %w", path, err)
	}

	ctx := context.Background()
	feed, err := apiClient.OpenFeed(ctx, runID)
	if err != nil {
		return fmt.Errorf("open feed: %w", err)
	}
	defer feed.Close()

	ack, err := feed.Send(streamPlatform, activities)
	if err != nil {
		return fmt.Errorf("send activities: %w", err)
	}

	fmt.Printf("Sent %d activities, %d accepted\n", ack.Received, ack.Accepted)
	if verbose && ack.Accepted < ack.Received {
		fmt.Fprintf(os.Stderr, "%d events were control messages or no-ops and were skipped\n",
			ack.Received-ack.Accepted)
	}
	return nil
}

func printStreamStats(stats service.StreamStats) {
	fmt.Printf("  Received:        %d\n", stats.TotalReceived)
	fmt.Printf("  Skipped:         %d\n", stats.ItemsSkipped)
	fmt.Printf("  Batches flushed: %d\n", stats.BatchesFlushed)
	fmt.Printf("  Items flushed:   %d\n", stats.ItemsFlushed)
	if stats.ItemsFailed > 0 {
		fmt.Printf("  Items failed:    %d\n", stats.ItemsFailed)
	}
	fmt.Printf("  Running:         %v\n", stats.Running)
}
