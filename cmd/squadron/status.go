package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgeworks/squadron/pkg/models"
)

// taskStore is the slice of the state DB the status command reads.
type taskStore interface {
	GetTask(id string) (*models.Task, error)
	ListTasks(limit int) ([]*models.Task, error)
}

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status [task-id]",
	Short: "Show task state from the store",
	Long: `Display tasks from the persistent task store.

Without arguments, lists recent tasks. With a task ID, shows that
task's full state including artifacts and quality check results.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Maximum number of tasks to list")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.State.Path == "" {
		fmt.Println("No task store configured. Set state.path in the config to persist tasks.")
		return nil
	}
	if _, err := os.Stat(cfg.State.Path); os.IsNotExist(err) {
		fmt.Println("No tasks recorded yet. Run 'squadron run <description>' to start.")
		return nil
	}

	db, err := openStateDB(cfg.State.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		return showTask(db, args[0])
	}
	return listTasks(db)
}

func showTask(db taskStore, id string) error {
	task, err := db.GetTask(id)
	if err != nil {
		return err
	}

	fmt.Printf("task %s\n", task.ID)
	fmt.Printf("  description: %s\n", task.Description)
	fmt.Printf("  workflow:    %s\n", task.Workflow)
	fmt.Printf("  state:       %s\n", colorizeState(stateSummary(task), task.State))
	fmt.Printf("  progress:    %d%%\n", task.Progress)
	if task.Priority != 0 {
		fmt.Printf("  priority:    %d\n", task.Priority)
	}
	if task.CurrentStep != "" {
		fmt.Printf("  step:        %s\n", task.CurrentStep)
	}
	fmt.Printf("  iteration:   %d/%d\n", task.Iteration, task.MaxIterations)
	fmt.Printf("  created:     %s\n", task.CreatedAt.Format("2006-01-02 15:04:05"))
	if task.CompletedAt != nil {
		fmt.Printf("  completed:   %s\n", task.CompletedAt.Format("2006-01-02 15:04:05"))
	}

	if len(task.Artifacts) > 0 {
		fmt.Printf("  artifacts (%d):\n", len(task.Artifacts))
		for _, a := range task.Artifacts {
			fmt.Printf("    %s (%s, step %s, agent %s)\n", a.ID, a.Type, a.Step, a.Agent)
		}
	}
	if len(task.CheckResults) > 0 {
		fmt.Println("  quality checks:")
		for _, check := range task.CheckResults {
			mark := color.GreenString("✓")
			if !check.Passed {
				mark = color.RedString("✗")
			}
			fmt.Printf("    %s %s (score %d)\n", mark, check.Check, check.Score)
		}
	}
	return nil
}

func listTasks(db taskStore) error {
	tasks, err := db.ListTasks(statusLimit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks recorded yet. Run 'squadron run <description>' to start.")
		return nil
	}

	for _, task := range tasks {
		fmt.Printf("%-10s %-11s %3d%%  %s\n",
			task.ID, colorizeState(string(task.State), task.State), task.Progress, task.Description)
	}
	return nil
}

func colorizeState(label string, state models.TaskState) string {
	switch state {
	case models.TaskStateCompleted:
		return color.GreenString(label)
	case models.TaskStateFailed:
		return color.RedString(label)
	case models.TaskStateCancelled:
		return color.YellowString(label)
	default:
		return color.CyanString(label)
	}
}
