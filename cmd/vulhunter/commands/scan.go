package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-vulhunter/internal/config"
	"github.com/l3aro/go-vulhunter/internal/scanner"
	"github.com/l3aro/go-vulhunter/pkg/project"
	"github.com/l3aro/go-vulhunter/pkg/report"
	"github.com/l3aro/go-vulhunter/pkg/rules"
)

// ErrFindings is returned by scan --fail-on-findings when something was found.
var ErrFindings = errors.New("tainted sinks found")

// Version is reported in scan output. main sets it from build flags.
var Version = "dev"

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Analyze a file or project for tainted sinks",
	Long: `Scans a PHP file or a directory tree. Every sink call whose dangerous
argument can be traced back to a non-constant origin is reported. Calls to
user-defined functions that forward a parameter into a sink are reported too.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}

		opts, err := scanOptions(cmd, appConfig)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runScan(ctx, path, opts, cmd.OutOrStdout())
	},
}

// scanSettings is the resolved configuration of one scan run.
type scanSettings struct {
	project        project.Options
	format         report.Format
	showSafe       bool
	failOnFindings bool
	output         string
}

// scanOptions merges the loaded config with command-line flags, flags
// taking precedence.
func scanOptions(cmd *cobra.Command, cfg *config.Config) (*scanSettings, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	flags := cmd.Flags()

	if flags.Changed("rules") {
		cfg.RulesFile, _ = flags.GetString("rules")
	}
	if flags.Changed("workers") {
		cfg.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("max-depth") {
		cfg.MaxCallDepth, _ = flags.GetInt("max-depth")
	}
	if flags.Changed("format") {
		f, _ := flags.GetString("format")
		cfg.Format = config.Format(f)
	}
	if flags.Changed("show-safe") {
		cfg.ShowSafe, _ = flags.GetBool("show-safe")
	}
	if flags.Changed("sink-context") {
		cfg.SinkContextFile, _ = flags.GetString("sink-context")
	}
	if flags.Changed("lenient") {
		lenient, _ := flags.GetBool("lenient")
		cfg.StrictParse = !lenient
	}
	if excludes, _ := flags.GetStringSlice("exclude"); len(excludes) > 0 {
		cfg.Exclude = append(cfg.Exclude, excludes...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	format, err := report.ParseFormat(string(cfg.Format))
	if err != nil {
		return nil, err
	}
	tables, err := rules.LoadMerged(cfg.RulesFile)
	if err != nil {
		return nil, err
	}

	scanOpts := scanner.DefaultOptions()
	scanOpts.Exclude = cfg.Exclude

	s := &scanSettings{
		project: project.Options{
			Rules:           tables,
			Workers:         cfg.Workers,
			MaxCallDepth:    cfg.MaxCallDepth,
			ParseCacheSize:  cfg.ParseCacheSize,
			StrictParse:     cfg.StrictParse,
			Scanner:         scanOpts,
			SinkContextFile: cfg.SinkContextFile,
			Logger:          logger,
		},
		format:   format,
		showSafe: cfg.ShowSafe,
	}
	s.failOnFindings, _ = flags.GetBool("fail-on-findings")
	s.output, _ = flags.GetString("output")
	return s, nil
}

func runScan(ctx context.Context, path string, s *scanSettings, stdout io.Writer) error {
	res, err := project.Analyze(ctx, path, s.project)
	if err != nil {
		return fmt.Errorf("scanning %s: %w", path, err)
	}
	for _, fe := range res.Errors {
		logger.Warn("file skipped", "file", fe.Path, "error", fe.Err)
	}

	rep := report.New(res, report.Options{ShowSafe: s.showSafe, Version: Version})

	out := stdout
	if s.output != "" {
		f, err := os.Create(s.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := rep.Write(out, s.format); err != nil {
		return err
	}

	if s.failOnFindings && rep.Summary.Findings > 0 {
		return fmt.Errorf("%w: %d", ErrFindings, rep.Summary.Findings)
	}
	return nil
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "f", "text", "Output format (text or json)")
	cmd.Flags().StringP("output", "o", "", "Write the report to a file instead of stdout")
	cmd.Flags().String("rules", "", "YAML tables merged over the built-in rules")
	cmd.Flags().IntP("workers", "w", 4, "Number of files analyzed in parallel")
	cmd.Flags().Int("max-depth", 16, "Maximum nested user-function depth")
	cmd.Flags().Bool("show-safe", false, "Also list sanitized and constant sink arguments")
	cmd.Flags().Bool("fail-on-findings", false, "Exit with an error when tainted sinks are found")
	cmd.Flags().String("sink-context", "", "Load and save discovered user-defined sinks at this path")
	cmd.Flags().Bool("lenient", false, "Analyze files with syntax errors instead of skipping them")
	cmd.Flags().StringSlice("exclude", nil, "Extra gitignore-style patterns to skip")
}

func init() {
	addScanFlags(scanCmd)
	RootCmd.AddCommand(scanCmd)
}
