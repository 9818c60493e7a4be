package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-vulhunter/internal/config"
	"github.com/l3aro/go-vulhunter/internal/healthcheck"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks on configuration and rule tables",
	Long: `Checks the configuration in use, verifies that the rule tables load,
that the PHP parser works and that a configured sink context file can be
read.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, configPath, err := loadConfigWithPath()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		result, err := healthcheck.Check(cfg, configPath, configPath)
		if err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		displayDoctorResult(cmd.OutOrStdout(), result)

		if !result.OK() {
			return fmt.Errorf("health check failed: one or more components are not usable")
		}
		return nil
	},
}

// loadConfigWithPath loads the highest-priority config file. Without any
// file the built-in defaults are checked and the returned path is empty.
func loadConfigWithPath() (*config.Config, string, error) {
	projectConfigPath := config.ProjectConfigFilePath()

	home, _ := os.UserHomeDir()
	globalConfigPath := ""
	if home != "" {
		globalConfigPath = filepath.Join(home, ".vulhunter", "config.yaml")
	}

	var effectivePath string
	switch {
	case fileExists(projectConfigPath):
		effectivePath = projectConfigPath
	case fileExists(globalConfigPath):
		effectivePath = globalConfigPath
	default:
		return config.DefaultConfig(), "", nil
	}

	cfg, err := config.LoadFromFile(effectivePath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config from %s: %w", effectivePath, err)
	}
	return cfg, effectivePath, nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func displayDoctorResult(w io.Writer, result *healthcheck.HealthCheckResult) {
	if result.EffectivePath != "" {
		fmt.Fprintf(w, "Using config: %s (%s)\n\n", result.EffectivePath, result.EffectiveScope)
	} else {
		fmt.Fprintf(w, "Using config: built-in defaults (run 'vulhunter init' to create one)\n\n")
	}

	for _, c := range result.Components() {
		fmt.Fprintf(w, "%s:\n", c.Name)
		if c.Detail != "" {
			fmt.Fprintf(w, "  Detail: %s\n", c.Detail)
		}
		fmt.Fprintf(w, "  Status: %s %s\n", formatStatusIcon(c.Status), c.Status)
		if c.Error != "" && c.Status == healthcheck.StatusError {
			fmt.Fprintf(w, "  Error: %s\n", c.Error)
		}
	}
}

func formatStatusIcon(status string) string {
	switch status {
	case healthcheck.StatusReady:
		return "✓"
	case healthcheck.StatusEmpty, healthcheck.StatusDisabled:
		return "○"
	case healthcheck.StatusError:
		return "✗"
	default:
		return "?"
	}
}

func init() {
	RootCmd.AddCommand(doctorCmd)
}
