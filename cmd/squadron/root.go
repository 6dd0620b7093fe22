package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/forgeworks/squadron/internal/config"
	"github.com/forgeworks/squadron/internal/invoker"
	"github.com/forgeworks/squadron/internal/orchestrator"
	"github.com/forgeworks/squadron/internal/registry"
	"github.com/forgeworks/squadron/internal/state"
	"github.com/forgeworks/squadron/pkg/models"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "squadron",
	Short: "Agent squad orchestrator",
	Long: `Squadron coordinates squads of agents through multi-step workflows,
runs their output through a quality gate, and drives a bounded fix loop
until the work passes or the iteration budget runs out.

Squads and workflows are declared in YAML catalogs; agent execution is
delegated to the Anthropic API (or AWS Bedrock).`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default: XDG + project lookup)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(squadsCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(workflowsCmd)
	rootCmd.AddCommand(gateCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig honors the --config flag, falling back to the standard
// lookup chain.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// catalogPaths resolves the squad and workflow catalog files, defaulting
// to the project-local .squadron directory.
func catalogPaths(cfg *config.Config) (string, string) {
	squads := cfg.Catalog.Squads
	if squads == "" {
		squads = filepath.Join(".squadron", "squads.yaml")
	}
	workflows := cfg.Catalog.Workflows
	if workflows == "" {
		workflows = filepath.Join(".squadron", "workflows.yaml")
	}
	return squads, workflows
}

// buildRegistry loads both catalogs and validates them into a registry.
func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	squadsPath, workflowsPath := catalogPaths(cfg)

	squads, err := config.LoadSquads(squadsPath)
	if err != nil {
		return nil, fmt.Errorf("load squad catalog: %w", err)
	}
	workflows, err := config.LoadWorkflows(workflowsPath)
	if err != nil {
		return nil, fmt.Errorf("load workflow catalog: %w", err)
	}

	reg, err := registry.New(squads, workflows, cfg.Orchestrator.DefaultMaxIterations)
	if err != nil {
		return nil, fmt.Errorf("validate catalogs: %w", err)
	}
	return reg, nil
}

// buildInvoker constructs the Anthropic-backed agent invoker.
func buildInvoker(cfg *config.Config) (invoker.Invoker, error) {
	inv, err := invoker.NewAnthropic(invoker.AnthropicConfig{
		Model:         anthropicModel(cfg),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("build agent invoker: %w", err)
	}
	return inv, nil
}

// buildOrchestrator wires the registry, invoker, and optional task store
// into an orchestrator.
func buildOrchestrator(cfg *config.Config, reg *registry.Registry) (*orchestrator.Orchestrator, func(), error) {
	inv, err := buildInvoker(cfg)
	if err != nil {
		return nil, nil, err
	}

	ocfg := orchestrator.Config{
		Registry:             reg,
		Invoker:              inv,
		MaxParallelAgents:    cfg.Orchestrator.MaxParallelAgents,
		AgentTimeout:         cfg.Orchestrator.AgentTimeout,
		DefaultMaxIterations: cfg.Orchestrator.DefaultMaxIterations,
		EventBuffer:          cfg.Orchestrator.EventBuffer,
	}

	var cleanup func()
	if cfg.State.Path != "" {
		db, err := openStateDB(cfg.State.Path)
		if err != nil {
			return nil, nil, err
		}
		ocfg.Store = db
		cleanup = func() { db.Close() }
	}

	o, err := orchestrator.New(ocfg)
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}
	if cleanup == nil {
		cleanup = func() {}
	}
	return o, cleanup, nil
}

// anthropicModel maps the configured model name onto the SDK type.
// Empty means the invoker's default.
func anthropicModel(cfg *config.Config) anthropic.Model {
	return anthropic.Model(cfg.Anthropic.Model)
}

// openStateDB opens the task store and brings its schema up to date.
func openStateDB(path string) (*state.DB, error) {
	db, err := state.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open task store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate task store: %w", err)
	}
	return db, nil
}

// serverBaseURL builds the control surface address for client commands.
func serverBaseURL(cfg *config.Config) string {
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}

func stateSummary(task *models.Task) string {
	if task.Error != "" {
		return fmt.Sprintf("%s (%s)", task.State, task.Error)
	}
	return string(task.State)
}
