package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgeworks/squadron/internal/registry"
)

var squadsCmd = &cobra.Command{
	Use:   "squads",
	Short: "List squads from the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(reg *registry.Registry) error {
			for _, sq := range reg.Squads() {
				fmt.Printf("%s", color.CyanString(sq.Name))
				if sq.AllRequired {
					fmt.Printf(" %s", color.YellowString("(all required)"))
				}
				if sq.Description != "" {
					fmt.Printf("  %s", sq.Description)
				}
				fmt.Println()
				for _, agent := range sq.Agents {
					fmt.Printf("  %-20s %s (priority %d)\n", agent.Name, agent.Role, agent.Priority)
				}
			}
			return nil
		})
	},
}

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents across all squads",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(reg *registry.Registry) error {
			for _, agent := range reg.Agents() {
				capabilities := ""
				if len(agent.Capabilities) > 0 {
					capabilities = strings.Join(agent.Capabilities, ", ")
				}
				fmt.Printf("%-20s %-15s squad=%s  %s\n",
					color.CyanString(agent.Name), agent.Role, agent.Squad, capabilities)
			}
			return nil
		})
	},
}

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List workflows from the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(reg *registry.Registry) error {
			for _, wf := range reg.Workflows() {
				gate := "gate off"
				if wf.QualityGateEnabled {
					gate = fmt.Sprintf("gate on, max %d iterations", wf.MaxIterations)
				}
				fmt.Printf("%s (type %s, %s)\n", color.CyanString(wf.Name), wf.Type, gate)
				for _, step := range wf.Steps {
					mode := "sequential"
					if step.Parallel {
						mode = "parallel"
					}
					required := ""
					if step.Required {
						required = color.YellowString(" required")
					}
					fmt.Printf("  %-15s squads: %s (%s)%s\n",
						step.Name, strings.Join(step.Squads, ", "), mode, required)
				}
			}
			return nil
		})
	},
}

// withRegistry loads the catalogs and hands the registry to fn.
func withRegistry(fn func(*registry.Registry) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	return fn(reg)
}
