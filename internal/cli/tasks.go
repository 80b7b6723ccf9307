package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/graphscribe/internal/service"
	"github.com/spf13/cobra"
)

var tasksWatch bool

var tasksCmd = &cobra.Command{
	Use:   "tasks [task-id]",
	Short: "List or inspect background ingestion tasks",
	Long: `List all background tasks or inspect a specific task by ID.

Examples:
  graphscribe tasks                 # List all tasks
  graphscribe tasks abc123          # Show details for task abc123
  graphscribe tasks abc123 --watch  # Follow updates until the task ends`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().BoolVarP(&tasksWatch, "watch", "w", false, "follow task updates until completion")
}

func runTasks(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if len(args) == 1 {
		if tasksWatch {
			return watchTaskPlain(ctx, args[0])
		}
		return showTask(ctx, args[0])
	}
	return listTasks(ctx)
}

func listTasks(ctx context.Context) error {
	tasks, err := apiClient.ListTasks(ctx)
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}

	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	fmt.Printf("%-36s %-12s %-12s %-9s %s\n", "ID", "TYPE", "STATUS", "PROGRESS", "CREATED")
	fmt.Println("--------------------------------------------------------------------------------------")

	for _, task := range tasks {
		created := task.CreatedAt.Format("15:04:05")
		fmt.Printf("%-36s %-12s %-12s %8d%% %s\n", task.ID, task.Type, task.Status, task.Progress, created)
	}
	return nil
}

func showTask(ctx context.Context, id string) error {
	task, err := apiClient.GetTask(ctx, id)
	if err != nil {
		return fmt.Errorf("get task: %w", err)
	}

	fmt.Printf("Task: %s\n", task.ID)
	fmt.Printf("  Type: %s\n", task.Type)
	fmt.Printf("  Status: %s\n", task.Status)
	fmt.Printf("  Progress: %d%%\n", task.Progress)
	if task.Message != "" {
		fmt.Printf("  Message: %s\n", task.Message)
	}
	fmt.Printf("  Created: %s\n", task.CreatedAt.Format(time.RFC3339))
	if task.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", task.CompletedAt.Format(time.RFC3339))
		duration := task.CompletedAt.Sub(task.CreatedAt)
		fmt.Printf("  Duration: %s\n", duration.Round(time.Second))
	}

	if task.Error != "" {
		fmt.Printf("  Error: %s\n", task.Error)
	}

	if task.Result != nil {
		fmt.Println("\nResult:")
		printBuildResult(task.Result)
	}

	if verbose && task.Status == service.TaskProcessing {
		fmt.Printf("\nUse 'graphscribe tasks %s --watch' to follow updates.\n", task.ID)
	}
	return nil
}
