package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	exportLimit int
	exportJSON  bool
	deleteForce bool
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Inspect, export or delete knowledge graphs",
}

var graphListCmd = &cobra.Command{
	Use:   "list",
	Short: "List graph namespaces",
	Args:  cobra.NoArgs,
	RunE:  runGraphList,
}

var graphInfoCmd = &cobra.Command{
	Use:   "info <graph-id>",
	Short: "Show summary counts for a graph",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphInfo,
}

var graphExportCmd = &cobra.Command{
	Use:   "export <graph-id>",
	Short: "Export a graph's nodes and edges",
	Long: `Export a graph's nodes and edges.

Examples:
  graphscribe graph export graph_q3report
  graphscribe graph export graph_q3report --json > graph.json
  graphscribe graph export graph_q3report --limit 100`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphExport,
}

var graphDeleteCmd = &cobra.Command{
	Use:   "delete <graph-id>",
	Short: "Delete a graph namespace and everything in it",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphDelete,
}

func init() {
	graphExportCmd.Flags().IntVar(&exportLimit, "limit", 0, "maximum nodes to export (0 = all)")
	graphExportCmd.Flags().BoolVar(&exportJSON, "json", false, "emit raw JSON instead of a table")
	graphDeleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "skip confirmation")

	graphCmd.AddCommand(graphListCmd)
	graphCmd.AddCommand(graphInfoCmd)
	graphCmd.AddCommand(graphExportCmd)
	graphCmd.AddCommand(graphDeleteCmd)
}

func runGraphList(cmd *cobra.Command, args []string) error {
	graphs, err := apiClient.ListGraphs(context.Background())
	if err != nil {
		return fmt.Errorf("list graphs: %w", err)
	}

	if len(graphs) == 0 {
		fmt.Println("No graphs found")
		return nil
	}

	fmt.Printf("%-28s %s\n", "GRAPH", "NODES")
	fmt.Println("-----------------------------------")
	for _, g := range graphs {
		fmt.Printf("%-28s %d\n", g.GraphID, g.NodeCount)
	}
	return nil
}

func runGraphInfo(cmd *cobra.Command, args []string) error {
	info, err := apiClient.GetGraphInfo(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("get graph info: %w", err)
	}

	fmt.Printf("Graph: %s\n", info.GraphID)
	fmt.Printf("  Nodes: %d\n", info.NodeCount)
	fmt.Printf("  Edges: %d\n", info.EdgeCount)
	if len(info.EntityTypes) > 0 {
		fmt.Printf("  Entity types: %s\n", strings.Join(info.EntityTypes, ", "))
	}
	return nil
}

func runGraphExport(cmd *cobra.Command, args []string) error {
	data, err := apiClient.GetGraphData(context.Background(), args[0], exportLimit)
	if err != nil {
		return fmt.Errorf("get graph data: %w", err)
	}

	if exportJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}

	fmt.Printf("Graph %s: %d nodes, %d edges\n\n", data.GraphID, data.NodeCount, data.EdgeCount)

	fmt.Printf("%-14s %-30s %s\n", "LABEL", "NAME", "SUMMARY")
	fmt.Println("----------------------------------------------------------------------")
	for _, n := range data.Nodes {
		summary := n.Summary
		if len(summary) > 40 {
			summary = summary[:37] + "..."
		}
		fmt.Printf("%-14s %-30s %s\n", n.Label, n.Name, summary)
	}

	if len(data.Edges) > 0 {
		fmt.Printf("\n%-30s %-20s %s\n", "FROM", "RELATION", "TO")
		fmt.Println("----------------------------------------------------------------------")
		for _, e := range data.Edges {
			fmt.Printf("%-30s %-20s %s\n", e.SourceName, e.RelType, e.TargetName)
		}
	}
	return nil
}

func runGraphDelete(cmd *cobra.Command, args []string) error {
	graphID := args[0]

	if !deleteForce {
		fmt.Printf("Delete graph %s and all its data? [y/N] ", graphID)
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("Aborted")
			return nil
		}
	}

	result, err := apiClient.DeleteGraph(context.Background(), graphID)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}

	fmt.Printf("Deleted %d nodes and %d edges from %s\n",
		result.NodesDeleted, result.EdgesDeleted, graphID)
	return nil
}
