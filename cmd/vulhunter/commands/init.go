package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-vulhunter/internal/config"
	"github.com/l3aro/go-vulhunter/internal/healthcheck"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize vulhunter configuration interactively",
	Long: `Guides you through setting up vulhunter step by step: custom rule tables,
analysis limits, report format and where the sink context is persisted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func runInit() error {
	cfg := config.DefaultConfig()

	// === SECTION 1: Rules ===
	var rulesFile string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Rules file").
				Description("YAML sink/source/sanitizer tables merged over the built-in ones (optional, press Enter to skip)").
				Placeholder("optional").
				Value(&rulesFile),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.RulesFile = rulesFile

	// === SECTION 2: Analysis limits ===
	workers := strconv.Itoa(cfg.Workers)
	maxDepth := strconv.Itoa(cfg.MaxCallDepth)
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Workers").
				Description("Files analyzed in parallel").
				Placeholder(workers).
				Validate(validatePositive).
				Value(&workers),
			huh.NewInput().
				Title("Maximum call depth").
				Description("How deep user-defined functions are followed").
				Placeholder(maxDepth).
				Validate(validatePositive).
				Value(&maxDepth),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.Workers, _ = strconv.Atoi(workers)
	cfg.MaxCallDepth, _ = strconv.Atoi(maxDepth)

	// === SECTION 3: Output ===
	var format string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Report format").
				Options(
					huh.NewOption("Text", string(config.FormatText)),
					huh.NewOption("JSON", string(config.FormatJSON)),
				).
				Value(&format),
			huh.NewConfirm().
				Title("List safe sink calls too?").
				Affirmative("Yes").
				Negative("No").
				Value(&cfg.ShowSafe),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	cfg.Format = config.Format(format)

	// === SECTION 4: Sink context ===
	var persist bool
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Persist user-defined sinks between runs?").
				Description("Functions found to forward a parameter into a sink are remembered").
				Affirmative("Yes").
				Negative("No").
				Value(&persist),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}
	if persist {
		cfg.SinkContextFile = filepath.Join(".vulhunter", "sinks.msgpack")
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Sink context file").
					Placeholder(cfg.SinkContextFile).
					Value(&cfg.SinkContextFile),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
	}

	// === SECTION 5: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Global (~/.vulhunter/config.yaml)", "global"),
					huh.NewOption("Project (./.vulhunter/config.yaml)", "project"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	var configPath string
	if saveLocationChoice == "global" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		configPath = filepath.Join(home, ".vulhunter", "config.yaml")
	} else {
		configPath = config.ProjectConfigFilePath()
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	if cfg.RulesFile != "" {
		fmt.Printf("Rules file: %s\n", cfg.RulesFile)
	} else {
		fmt.Println("Rules file: built-in tables only")
	}
	fmt.Printf("Workers: %d\n", cfg.Workers)
	fmt.Printf("Max call depth: %d\n", cfg.MaxCallDepth)
	fmt.Printf("Format: %s\n", cfg.Format)
	if cfg.SinkContextFile != "" {
		fmt.Printf("Sink context: %s\n", cfg.SinkContextFile)
	}
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)

	// === SECTION 6: Health Check ===
	fmt.Println("\n=== Running Health Check ===")

	loadedCfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return fmt.Errorf("loading saved config: %w", err)
	}
	result, err := healthcheck.Check(loadedCfg, configPath, configPath)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	fmt.Printf("\nConfig Scope: %s\n", result.SavedScope)
	if result.SavedScope == "global" {
		fmt.Printf("Config Path: %s\n", configPath)
	} else {
		absPath, _ := filepath.Abs(configPath)
		fmt.Printf("Config Path: %s\n", absPath)
	}
	fmt.Println()
	displayDoctorResult(os.Stdout, result)

	fmt.Println("\n=== Initialization Complete ===")
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
