// Package report renders project analysis results as text or JSON.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"

	"github.com/l3aro/go-vulhunter/pkg/project"
	"github.com/l3aro/go-vulhunter/pkg/taint"
)

// Format is an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown format %q (use 'text' or 'json')", s)
}

// Options controls what a report includes.
type Options struct {
	// ShowSafe keeps findings whose arguments were sanitized or have no
	// tainted origin.
	ShowSafe bool
	Version  string
}

// Summary counts what a run produced.
type Summary struct {
	Files       int            `json:"files"`
	Findings    int            `json:"findings"`
	BySinkType  map[string]int `json:"by_sink_type,omitempty"`
	FromSource  int            `json:"from_source"`
	Errors      int            `json:"errors"`
	Diagnostics int            `json:"diagnostics"`
	UserSinks   int            `json:"user_defined_sinks"`
}

// FileError is a file that could not be analyzed.
type FileError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Report is the rendered outcome of one run.
type Report struct {
	ID          string                       `json:"id"`
	Version     string                       `json:"version,omitempty"`
	Root        string                       `json:"root"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Duration    string                       `json:"duration"`
	Summary     Summary                      `json:"summary"`
	Findings    []taint.Finding              `json:"findings"`
	Diagnostics []taint.Diagnostic           `json:"diagnostics,omitempty"`
	Errors      []FileError                  `json:"errors,omitempty"`
	Sinks       map[string][]taint.SinkParam `json:"user_defined_sinks,omitempty"`
}

// New builds a report from a project result. Paths are made relative to
// the project root.
func New(res *project.Result, opts Options) *Report {
	r := &Report{
		ID:          uuid.NewString(),
		Version:     opts.Version,
		Root:        res.Root,
		GeneratedAt: time.Now().UTC(),
		Duration:    res.Duration.Round(time.Millisecond).String(),
		Findings:    []taint.Finding{},
		Sinks:       res.Sinks,
	}

	for _, f := range res.Findings {
		if !opts.ShowSafe && !f.Reportable() {
			continue
		}
		f.Path = relPath(res.Root, f.Path)
		r.Findings = append(r.Findings, f)
	}
	for _, d := range res.Diagnostics {
		d.Path = relPath(res.Root, d.Path)
		r.Diagnostics = append(r.Diagnostics, d)
	}
	for _, e := range res.Errors {
		r.Errors = append(r.Errors, FileError{Path: relPath(res.Root, e.Path), Message: e.Err.Error()})
	}

	r.Summary = Summary{
		Files:       len(res.Files),
		Errors:      len(r.Errors),
		Diagnostics: len(r.Diagnostics),
		UserSinks:   len(res.Sinks),
	}
	for _, f := range r.Findings {
		if !f.Reportable() {
			continue
		}
		r.Summary.Findings++
		if r.Summary.BySinkType == nil {
			r.Summary.BySinkType = make(map[string]int)
		}
		r.Summary.BySinkType[f.SinkType]++
		if f.FromSource {
			r.Summary.FromSource++
		}
	}
	return r
}

func relPath(root, path string) string {
	if root == "" {
		return path
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

// Write renders the report in the given format.
func (r *Report) Write(w io.Writer, format Format) error {
	switch format {
	case FormatJSON:
		return r.WriteJSON(w)
	case FormatText, "":
		return r.WriteText(w)
	}
	return fmt.Errorf("unknown format %q", format)
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

// WriteText writes a human readable report.
func (r *Report) WriteText(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("=== vulhunter report %s ===\n", r.ID)
	ew.printf("Root: %s\n\n", r.Root)

	if len(r.Findings) == 0 {
		ew.printf("No findings.\n")
	}
	for _, f := range r.Findings {
		status := f.Status()
		if f.Reportable() {
			status = "TAINTED"
		}
		ew.printf("[%s] %s:%d %s() argument %d %s\n", f.SinkType, f.Path, f.Line, f.Sink, f.Argument, status)
		if f.ArgName != "" {
			ew.printf("    argument: %s\n", f.ArgName)
		}
		if len(f.Origins) > 0 {
			ew.printf("    origins:  %s\n", strings.Join(f.OriginNames(), ", "))
		}
		var notes []string
		if f.FromSource {
			notes = append(notes, "request input")
		}
		if f.UserDefined {
			notes = append(notes, "user-defined sink")
		}
		if len(notes) > 0 {
			ew.printf("    notes:    %s\n", strings.Join(notes, ", "))
		}
	}

	if len(r.Errors) > 0 {
		ew.printf("\nErrors (%d):\n", len(r.Errors))
		for _, e := range r.Errors {
			ew.printf("  %s: %s\n", e.Path, e.Message)
		}
	}
	if len(r.Diagnostics) > 0 {
		ew.printf("\nDiagnostics (%d):\n", len(r.Diagnostics))
		for _, d := range r.Diagnostics {
			ew.printf("  %s\n", d.Error())
		}
	}

	ew.printf("\nSummary: %d files, %d findings", r.Summary.Files, r.Summary.Findings)
	if len(r.Summary.BySinkType) > 0 {
		types := make([]string, 0, len(r.Summary.BySinkType))
		for t := range r.Summary.BySinkType {
			types = append(types, t)
		}
		sort.Strings(types)
		parts := make([]string, len(types))
		for i, t := range types {
			parts[i] = fmt.Sprintf("%s: %d", t, r.Summary.BySinkType[t])
		}
		ew.printf(" (%s)", strings.Join(parts, ", "))
	}
	ew.printf(", %d errors, %d user-defined sinks, %s\n", r.Summary.Errors, r.Summary.UserSinks, r.Duration)
	return ew.err
}

// errWriter keeps the first write error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
