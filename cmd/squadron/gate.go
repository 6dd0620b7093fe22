package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/forgeworks/squadron/internal/gate"
	"github.com/forgeworks/squadron/pkg/models"
)

var (
	gateChecks         []string
	gateRequiredChecks []string
	gateRequiredFiles  []string
)

var gateCmd = &cobra.Command{
	Use:   "gate <directory>",
	Short: "Run the quality gate over a directory of artifacts",
	Long: `Evaluate the quality gate against files on disk, outside of any
task. Every regular file under the directory becomes one artifact,
identified by its path relative to the directory root.

Useful for dry-running gate requirements before wiring them into a
workflow.`,
	Args: cobra.ExactArgs(1),
	RunE: runGate,
}

func init() {
	gateCmd.Flags().StringSliceVar(&gateChecks, "checks",
		[]string{string(gate.CheckArtifactPresence), string(gate.CheckStructure), string(gate.CheckSecurity), string(gate.CheckLint)},
		"Checks to run")
	gateCmd.Flags().StringSliceVar(&gateRequiredChecks, "required-checks", nil,
		"Checks that veto the gate on failure (default: all selected checks)")
	gateCmd.Flags().StringSliceVar(&gateRequiredFiles, "required-files", nil,
		"Artifact IDs that must be present")
}

func runGate(cmd *cobra.Command, args []string) error {
	artifacts, err := readArtifactDir(args[0])
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		return fmt.Errorf("no files found under %s", args[0])
	}

	required := gateRequiredChecks
	if len(required) == 0 {
		required = gateChecks
	}
	req := models.GateRequirements{
		Checks:         gateChecks,
		RequiredChecks: required,
		RequiredFiles:  gateRequiredFiles,
	}

	result, err := gate.NewEngine().RunGate(cmd.Context(), artifacts, req)
	if err != nil {
		return err
	}

	fmt.Printf("evaluated %d artifact(s) from %s\n\n", len(artifacts), args[0])
	for _, check := range result.Checks {
		mark := color.GreenString("✓")
		if !check.Passed {
			mark = color.RedString("✗")
		}
		fmt.Printf("%s %-18s score %3d\n", mark, check.Check, check.Score)
		for _, finding := range check.Findings {
			fmt.Printf("    %s\n", finding)
		}
	}

	fmt.Println()
	if result.Passed {
		fmt.Printf("%s gate passed (score %d)\n", color.GreenString("✓"), result.Score)
		return nil
	}
	fmt.Printf("%s gate failed (score %d)\n", color.RedString("✗"), result.Score)
	for _, rec := range result.Recommendations {
		fmt.Printf("  %s\n", rec)
	}
	os.Exit(1)
	return nil
}

// readArtifactDir turns every regular file under root into an artifact.
func readArtifactDir(root string) ([]models.Artifact, error) {
	var artifacts []models.Artifact
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, models.Artifact{
			Type:      artifactType(rel),
			ID:        filepath.ToSlash(rel),
			Content:   string(content),
			CreatedAt: time.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}
	return artifacts, nil
}

func artifactType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".txt", ".rst":
		return "document"
	case ".yaml", ".yml", ".json", ".toml":
		return "config"
	default:
		return "code"
	}
}
