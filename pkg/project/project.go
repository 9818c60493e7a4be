// Package project runs the taint engine over a whole source tree: it
// discovers PHP files, parses and indexes them, analyzes them in parallel
// against one shared session and collects the results in a stable order.
package project

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/go-vulhunter/internal/log"
	"github.com/l3aro/go-vulhunter/internal/scanner"
	"github.com/l3aro/go-vulhunter/pkg/callgraph"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/rules"
	"github.com/l3aro/go-vulhunter/pkg/taint"
)

// DefaultWorkers is the number of files analyzed at once.
const DefaultWorkers = 4

// Options configures Analyze.
type Options struct {
	Rules          *rules.Rules
	Workers        int
	MaxCallDepth   int
	ParseCacheSize int
	StrictParse    bool
	// Scanner selects the files to analyze. Without extensions the
	// scanner defaults are used and only Exclude is kept.
	Scanner scanner.Options
	// SinkContextFile, when set, is loaded before the run and rewritten
	// with every sink discovered during it.
	SinkContextFile string
	Logger          log.Logger
}

// FileError records a file that could not be analyzed.
type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Result is the outcome of a project run.
type Result struct {
	Root        string
	Files       []string
	Findings    []taint.Finding
	Diagnostics []taint.Diagnostic
	Errors      []*FileError
	// Sinks is the session's sink context at the end of the run.
	Sinks    map[string][]taint.SinkParam
	Duration time.Duration
}

// Reportable returns the findings that name at least one tainted origin.
func (r *Result) Reportable() []taint.Finding {
	var out []taint.Finding
	for _, f := range r.Findings {
		if f.Reportable() {
			out = append(out, f)
		}
	}
	return out
}

// Analyze scans root and analyzes every PHP file found. Per-file failures
// are collected in Result.Errors; an error is returned only when the tree
// cannot be scanned, the sink context cannot be loaded or saved, or ctx is
// cancelled.
func Analyze(ctx context.Context, root string, opts Options) (*Result, error) {
	start := time.Now()
	logger := opts.Logger
	if logger == nil {
		logger = log.Nop()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	scanOpts := opts.Scanner
	if len(scanOpts.Extensions) == 0 {
		scanOpts = scanner.DefaultOptions()
		scanOpts.Exclude = opts.Scanner.Exclude
	}
	files, err := scanner.ScanWithOptions(absRoot, scanOpts)
	if err != nil {
		return nil, err
	}
	projectRoot := absRoot
	if len(files) == 1 && files[0].FullPath == absRoot {
		projectRoot = filepath.Dir(absRoot)
	}
	logger.Info("scanning project", "root", projectRoot, "files", len(files), "workers", workers)

	session := taint.NewSession()
	if opts.SinkContextFile != "" {
		if err := session.Sinks.LoadFile(opts.SinkContextFile); err != nil {
			return nil, fmt.Errorf("loading sink context: %w", err)
		}
		logger.Debug("loaded sink context", "file", opts.SinkContextFile, "sinks", session.Sinks.Len())
	}

	parser := phpast.NewParser(opts.StrictParse)
	resolver := callgraph.NewResolver(callgraph.Options{
		Root:      projectRoot,
		Parser:    parser,
		CacheSize: opts.ParseCacheSize,
		Logger:    logger,
	})

	parsed, errs, err := parseAll(ctx, parser, files, workers)
	if err != nil {
		return nil, err
	}
	for _, f := range parsed {
		if f != nil {
			resolver.Add(f)
		}
	}
	logger.Debug("indexed project", "functions", resolver.Index().GetStats().TotalFunctions)

	engine := taint.New(taint.Options{
		Rules:        opts.Rules,
		Lookup:       resolver,
		Session:      session,
		Logger:       logger,
		MaxCallDepth: opts.MaxCallDepth,
	})

	results, err := analyzeAll(ctx, engine, parsed, workers)
	if err != nil {
		return nil, err
	}

	res := &Result{Root: projectRoot, Errors: errs}
	for i, fi := range files {
		res.Files = append(res.Files, fi.FullPath)
		if results[i] == nil {
			continue
		}
		res.Findings = append(res.Findings, results[i].Findings...)
		res.Diagnostics = append(res.Diagnostics, results[i].Diagnostics...)
	}
	taint.SortFindings(res.Findings)
	res.Findings = taint.DedupeFindings(res.Findings)
	sortDiagnostics(res.Diagnostics)
	sort.Slice(res.Errors, func(i, j int) bool { return res.Errors[i].Path < res.Errors[j].Path })
	res.Sinks = session.Sinks.Snapshot()

	if opts.SinkContextFile != "" {
		if err := session.Sinks.SaveFile(opts.SinkContextFile); err != nil {
			return nil, fmt.Errorf("saving sink context: %w", err)
		}
	}

	res.Duration = time.Since(start)
	logger.Info("analysis complete",
		"files", len(res.Files),
		"findings", len(res.Reportable()),
		"errors", len(res.Errors),
		"duration", res.Duration,
	)
	return res, nil
}

// parseAll parses files in parallel. The returned slice is aligned with
// files; entries that failed to parse are nil and reported in the errors.
func parseAll(ctx context.Context, parser *phpast.Parser, files []scanner.FileInfo, workers int) ([]*phpast.File, []*FileError, error) {
	parsed := make([]*phpast.File, len(files))
	var (
		mu   sync.Mutex
		errs []*FileError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, fi := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f, err := parser.ParseFile(gctx, fi.FullPath)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				mu.Lock()
				errs = append(errs, &FileError{Path: fi.FullPath, Err: err})
				mu.Unlock()
				return nil
			}
			parsed[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return parsed, errs, nil
}

func analyzeAll(ctx context.Context, engine *taint.Engine, parsed []*phpast.File, workers int) ([]*taint.FileResult, error) {
	results := make([]*taint.FileResult, len(parsed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, f := range parsed {
		if f == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = engine.AnalyzeFile(f)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func sortDiagnostics(diags []taint.Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Function < b.Function
	})
}
