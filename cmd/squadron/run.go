package main

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgeworks/squadron/internal/tui"
	"github.com/forgeworks/squadron/pkg/models"
)

var (
	runWorkflow      string
	runWorkflowType  string
	runContext       []string
	runPriority      int
	runMaxIterations int
	runNoGate        bool
	runTUI           bool
)

var runCmd = &cobra.Command{
	Use:   "run <description>",
	Short: "Submit a task and follow it to completion",
	Long: `Submit a task to an in-process orchestrator and stream its progress
until it reaches a terminal state.

The workflow is chosen by name (--workflow), by type (--type), or falls
back to the catalog's default. Context key=value pairs are passed
through to every agent.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runWorkflow, "workflow", "", "Workflow name from the catalog")
	runCmd.Flags().StringVar(&runWorkflowType, "type", "", "Workflow type when no name is given")
	runCmd.Flags().StringArrayVar(&runContext, "context", nil, "Context key=value pair (repeatable)")
	runCmd.Flags().IntVar(&runPriority, "priority", 0, "Priority hint recorded on the task")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override the fix loop bound")
	runCmd.Flags().BoolVar(&runNoGate, "no-gate", false, "Skip the quality gate")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Follow progress in a terminal UI")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	orch, cleanup, err := buildOrchestrator(cfg, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	taskContext, err := parseContext(runContext)
	if err != nil {
		return err
	}

	req := models.SubmitRequest{
		Description:   strings.Join(args, " "),
		Context:       taskContext,
		Workflow:      runWorkflow,
		WorkflowType:  runWorkflowType,
		Priority:      runPriority,
		MaxIterations: runMaxIterations,
	}
	if runNoGate {
		disabled := false
		req.QualityGateEnabled = &disabled
	}

	id, err := orch.Submit(req)
	if err != nil {
		return err
	}

	events, unsubscribe, err := orch.Subscribe(id)
	if err != nil {
		return err
	}
	defer unsubscribe()

	if runTUI {
		program := tea.NewProgram(tui.NewFollow(id, events))
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("tui: %w", err)
		}
	} else {
		followPlain(events)
	}

	task, err := orch.GetStatus(id)
	if err != nil {
		return err
	}
	printOutcome(task)
	if task.State != models.TaskStateCompleted {
		os.Exit(1)
	}
	return nil
}

// parseContext splits repeated key=value flags into a map.
func parseContext(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("context %q is not key=value", pair)
		}
		out[key] = value
	}
	return out, nil
}

// followPlain prints each event as a line until the task is terminal.
func followPlain(events <-chan models.ProgressEvent) {
	for ev := range events {
		switch ev.Kind {
		case models.EventConnectionEstablished:
			fmt.Printf("following task %s (%s, %d%%)\n", ev.TaskID, ev.State, ev.Progress)
		case models.EventTaskStarted:
			fmt.Printf("%s %s\n", color.CyanString("▶"), ev.Message)
		case models.EventAgentsWorking:
			fmt.Printf("%s squad %s working on %s\n", color.CyanString("•"), ev.Squad, ev.Step)
		case models.EventProgressUpdate:
			if ev.Message != "" {
				fmt.Printf("%s %s\n", color.YellowString("↻"), ev.Message)
			} else {
				fmt.Printf("  %3d%% %s\n", ev.Progress, ev.Step)
			}
		case models.EventQualityGateRunning:
			fmt.Printf("%s %s\n", color.MagentaString("◆"), ev.Message)
		case models.EventTaskCompleted:
			return
		case models.EventTaskFailed:
			return
		case models.EventTaskCancelled:
			return
		}
	}
}

// printOutcome prints the terminal summary for a finished task.
func printOutcome(task *models.Task) {
	switch task.State {
	case models.TaskStateCompleted:
		fmt.Printf("\n%s task %s completed (%d artifacts", color.GreenString("✓"), task.ID, len(task.Artifacts))
		if task.QualityGateEnabled {
			fmt.Printf(", gate passed in %d fix iteration(s)", task.Iteration)
		}
		fmt.Println(")")
	case models.TaskStateFailed:
		fmt.Printf("\n%s task %s failed: %s\n", color.RedString("✗"), task.ID, task.Error)
		for _, check := range task.CheckResults {
			if !check.Passed {
				fmt.Printf("  %s %s (score %d)\n", color.RedString("✗"), check.Check, check.Score)
				for _, finding := range check.Findings {
					fmt.Printf("      %s\n", finding)
				}
			}
		}
	case models.TaskStateCancelled:
		fmt.Printf("\n%s task %s cancelled\n", color.YellowString("⚠"), task.ID)
	}
}
