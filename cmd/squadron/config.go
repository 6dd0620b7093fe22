package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgeworks/squadron/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show configuration",
	Long: `Display the effective configuration after defaults, the user config,
the project config, and environment overrides are merged.

Configuration is stored at ~/.config/squadron/config.yaml; a project
can override it with .squadron/config.yaml.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if len(args) == 1 {
			return displayConfigKey(cfg, args[0])
		}
		displayAllConfig(cfg)
		return nil
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" || os.Getenv("ANTHROPIC_API_KEY") != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("orchestrator.max_parallel_agents: %d\n", cfg.Orchestrator.MaxParallelAgents)
	fmt.Printf("orchestrator.agent_timeout: %s\n", cfg.Orchestrator.AgentTimeout)
	fmt.Printf("orchestrator.default_max_iterations: %d\n", cfg.Orchestrator.DefaultMaxIterations)
	fmt.Printf("orchestrator.event_buffer: %d\n", cfg.Orchestrator.EventBuffer)
	fmt.Printf("server.host: %s\n", cfg.Server.Host)
	fmt.Printf("server.port: %d\n", cfg.Server.Port)
	fmt.Printf("state.path: %s\n", cfg.State.Path)
	fmt.Printf("catalog.squads: %s\n", cfg.Catalog.Squads)
	fmt.Printf("catalog.workflows: %s\n", cfg.Catalog.Workflows)
	fmt.Printf("logging.level: %s\n", cfg.Logging.Level)
	fmt.Printf("logging.debug_log: %s\n", cfg.Logging.DebugLog)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) error {
	switch key {
	case "anthropic.model":
		fmt.Println(cfg.Anthropic.Model)
	case "anthropic.use_aws_bedrock":
		fmt.Println(cfg.Anthropic.UseAWSBedrock)
	case "orchestrator.max_parallel_agents":
		fmt.Println(cfg.Orchestrator.MaxParallelAgents)
	case "orchestrator.agent_timeout":
		fmt.Println(cfg.Orchestrator.AgentTimeout)
	case "orchestrator.default_max_iterations":
		fmt.Println(cfg.Orchestrator.DefaultMaxIterations)
	case "orchestrator.event_buffer":
		fmt.Println(cfg.Orchestrator.EventBuffer)
	case "server.host":
		fmt.Println(cfg.Server.Host)
	case "server.port":
		fmt.Println(cfg.Server.Port)
	case "state.path":
		fmt.Println(cfg.State.Path)
	case "catalog.squads":
		fmt.Println(cfg.Catalog.Squads)
	case "catalog.workflows":
		fmt.Println(cfg.Catalog.Workflows)
	case "logging.level":
		fmt.Println(cfg.Logging.Level)
	case "logging.debug_log":
		fmt.Println(cfg.Logging.DebugLog)
	default:
		return fmt.Errorf("unknown configuration key %q", key)
	}
	return nil
}
