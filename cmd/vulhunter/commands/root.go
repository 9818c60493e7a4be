// Package commands provides the CLI commands for vulhunter.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-vulhunter/internal/config"
	"github.com/l3aro/go-vulhunter/internal/log"
)

var (
	// appConfig and logger are set up before any subcommand runs.
	appConfig *config.Config
	logger    log.Logger = log.Nop()
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "vulhunter",
	Short: "vulhunter - static taint analysis for PHP",
	Long: `vulhunter builds a control-flow graph for every PHP file, summarizes the
data flow of each block and traces the arguments of dangerous calls back to
their origins, following user-defined functions across files.

Commands:
  scan        Analyze a file or project and report tainted sinks
  cfg         Show the control-flow graph of a file or function
  calls       Show the call graph of a file or project
  rules       Print the effective sink, source and sanitizer tables
  init        Create a configuration file interactively
  doctor      Check configuration, rules and parser

Use "vulhunter [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return RootCmd.Execute()
}

func setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel, _ = cmd.Flags().GetString("log-level")
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	if cmd.Flags().Changed("log-json") {
		cfg.LogJSON, _ = cmd.Flags().GetBool("log-json")
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile, _ = cmd.Flags().GetString("log-file")
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = log.New(log.LoggerConfig{
		Level:      level,
		JSONOutput: cfg.LogJSON,
		Stderr:     os.Stderr,
		File:       cfg.LogFile,
	})
	appConfig = cfg
	return nil
}

// syncLogger flushes the logger when it buffers.
func syncLogger() {
	if s, ok := logger.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}

func init() {
	RootCmd.PersistentFlags().String("config", "", "Config file path (default: project then global config)")
	RootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	RootCmd.PersistentFlags().BoolP("verbose", "V", false, "Shorthand for --log-level debug")
	RootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")
	RootCmd.PersistentFlags().String("log-file", "", "Also write JSON logs to this rotating file")
	RootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		syncLogger()
	}
}
