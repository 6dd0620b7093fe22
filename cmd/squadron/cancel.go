package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <task-id>",
	Short: "Cancel a running task on the daemon",
	Long: `Ask a running squadron daemon to cancel a task.

Cancellation is acknowledged immediately; the task settles into the
cancelled state once its in-flight agent calls have returned.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func runCancel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	url := fmt.Sprintf("%s/api/v1/tasks/%s/cancel", serverBaseURL(cfg), args[0])
	res, err := client.Post(url, "application/json", nil)
	if err != nil {
		return fmt.Errorf("reach daemon at %s: %w", serverBaseURL(cfg), err)
	}
	defer res.Body.Close()

	body, _ := io.ReadAll(res.Body)
	switch res.StatusCode {
	case http.StatusOK:
		fmt.Printf("%s cancellation requested for task %s\n", color.YellowString("⚠"), args[0])
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("task %s not found", args[0])
	case http.StatusConflict:
		return fmt.Errorf("task %s is already terminal", args[0])
	default:
		var httpErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &httpErr) == nil && httpErr.Message != "" {
			return fmt.Errorf("cancel failed: %s", httpErr.Message)
		}
		return fmt.Errorf("cancel failed: status %d", res.StatusCode)
	}
}
