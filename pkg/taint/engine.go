// Package taint summarizes CFG blocks into data-flow records, traces sink
// arguments back to their origins, and discovers user-defined functions that
// forward a parameter into a sink.
package taint

import (
	"strings"

	"github.com/l3aro/go-vulhunter/internal/log"
	"github.com/l3aro/go-vulhunter/pkg/callgraph"
	"github.com/l3aro/go-vulhunter/pkg/cfg"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/rules"
	"github.com/l3aro/go-vulhunter/pkg/symbol"
)

// DefaultMaxCallDepth bounds nested callee analysis.
const DefaultMaxCallDepth = 16

// Lookup resolves a called function name to its declaration.
type Lookup interface {
	ResolveBody(name, path string, includes []string) (*callgraph.Body, bool)
}

// Options configures an Engine.
type Options struct {
	Rules        *rules.Rules
	Lookup       Lookup
	Session      *Session
	Logger       log.Logger
	MaxCallDepth int
}

// Engine analyzes parsed files. An Engine holds no per-file state and may be
// shared by goroutines; everything mutable lives in the Session.
type Engine struct {
	rules    *rules.Rules
	lookup   Lookup
	session  *Session
	logger   log.Logger
	maxDepth int
}

// New creates an engine. Missing options get defaults: the embedded rules,
// a fresh session, no callee lookup, and a discarding logger.
func New(opts Options) *Engine {
	e := &Engine{
		rules:    opts.Rules,
		lookup:   opts.Lookup,
		session:  opts.Session,
		logger:   opts.Logger,
		maxDepth: opts.MaxCallDepth,
	}
	if e.rules == nil {
		e.rules = rules.Default()
	}
	if e.session == nil {
		e.session = NewSession()
	}
	if e.logger == nil {
		e.logger = log.Nop()
	}
	if e.maxDepth <= 0 {
		e.maxDepth = DefaultMaxCallDepth
	}
	return e
}

// Session returns the engine's shared session.
func (e *Engine) Session() *Session {
	return e.session
}

// Rules returns the engine's tables.
func (e *Engine) Rules() *rules.Rules {
	return e.rules
}

// FileResult is the outcome of analyzing one file.
type FileResult struct {
	Path        string
	Graph       *cfg.Graph
	Last        cfg.BlockID
	Findings    []Finding
	Diagnostics []Diagnostic
	Includes    []string
}

// Reportable returns the findings that name at least one tainted origin.
func (r *FileResult) Reportable() []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Reportable() {
			out = append(out, f)
		}
	}
	return out
}

// AnalyzeFile builds and summarizes the top-level CFG of f, then analyzes
// every declared function and method body on its own so sinks reached only
// from uncalled functions are still reported.
func (e *Engine) AnalyzeFile(f *phpast.File) *FileResult {
	a := newAnalysis()
	top := a.newFrame(e, f.Path, nil, 0)
	a.path = f.Path
	a.files[f.Path] = top.builder
	last := top.builder.Build(f.Stmts, nil, cfg.NoBlock, cfg.NoBlock)

	for _, decl := range phpast.Declarations(f.Stmts) {
		fr := a.newFrame(e, f.Path, decl, 0)
		a.push(decl, f.Path)
		fr.builder.Build(decl.Body, nil, cfg.NoBlock, cfg.NoBlock)
		a.pop()
	}

	SortFindings(a.findings)
	return &FileResult{
		Path:        f.Path,
		Graph:       top.builder.Graph(),
		Last:        last,
		Findings:    a.findings,
		Diagnostics: a.diagnostics,
		Includes:    top.builder.Includes(),
	}
}

// Summarize fills the data-flow summary of b using a detached file-level
// frame. Findings raised while summarizing are discarded.
func (e *Engine) Summarize(g *cfg.Graph, b *cfg.Block) {
	a := newAnalysis()
	fr := a.newFrame(e, "", nil, 0)
	fr.Summarize(g, b)
}

// classify wraps an expression in a symbol and tags sanitizer calls,
// encoder calls and scalar casts anywhere in the symbol tree.
func (e *Engine) classify(node phpast.Node) *symbol.Symbol {
	if a, ok := node.(*phpast.Assign); ok {
		return e.classify(a.Expr)
	}
	sym := symbol.Classify(node)
	e.tag(sym)
	return sym
}

func (e *Engine) tag(sym *symbol.Symbol) {
	switch n := sym.Node().(type) {
	case *phpast.Call:
		if e.rules.IsSanitizer(n.Name) {
			sym.AddSanitization(strings.ToLower(n.Name))
		}
		if e.rules.IsEncoder(n.Name) {
			sym.AddEncoding(strings.ToLower(n.Name))
		}
	case *phpast.Cast:
		switch strings.ToLower(n.Type) {
		case "int", "integer", "float", "double", "bool", "boolean":
			sym.AddSanitization("cast")
		}
	}
	for _, item := range sym.Items() {
		e.tag(item)
	}
}
