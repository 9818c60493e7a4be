package taint

import (
	"strings"

	"github.com/l3aro/go-vulhunter/pkg/cfg"
	"github.com/l3aro/go-vulhunter/pkg/dfg"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/symbol"
)

type callKey struct {
	name string
	path string
}

// analysis is the mutable state of one AnalyzeFile call, shared by the
// file-level frame and every callee frame it spawns.
type analysis struct {
	stack       []callKey
	findings    []Finding
	seen        map[findingKey]bool
	diagnostics []Diagnostic

	// path is the analyzed file. files maps a file to the builder of its
	// top level, whose include map grows as statements are built.
	path  string
	files map[string]*cfg.Builder
}

func newAnalysis() *analysis {
	return &analysis{seen: make(map[findingKey]bool), files: make(map[string]*cfg.Builder)}
}

// includes returns the include context for callee lookups made from path:
// the include map of path, the analyzed file's map when path is another
// file, then the includes seen in own.
func (a *analysis) includes(path string, own *cfg.Builder) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(b *cfg.Builder) {
		if b == nil {
			return
		}
		for _, inc := range b.Includes() {
			if !seen[inc] {
				seen[inc] = true
				out = append(out, inc)
			}
		}
	}
	add(a.files[path])
	if path != a.path {
		add(a.files[a.path])
	}
	add(own)
	return out
}

func (a *analysis) push(decl *phpast.FunctionDecl, path string) {
	a.stack = append(a.stack, callKey{name: strings.ToLower(decl.QualifiedName()), path: path})
}

func (a *analysis) pop() {
	a.stack = a.stack[:len(a.stack)-1]
}

func (a *analysis) onStack(decl *phpast.FunctionDecl, path string) bool {
	k := callKey{name: strings.ToLower(decl.QualifiedName()), path: path}
	for _, s := range a.stack {
		if s == k {
			return true
		}
	}
	return false
}

func (a *analysis) report(f Finding) {
	k := f.key()
	if a.seen[k] {
		return
	}
	a.seen[k] = true
	a.findings = append(a.findings, f)
}

// frame summarizes the blocks of one CFG: the file's top level or one
// function body. fn is nil at file level.
type frame struct {
	engine   *Engine
	analysis *analysis
	path     string
	fn       *phpast.FunctionDecl
	depth    int
	builder  *cfg.Builder
}

func (a *analysis) newFrame(e *Engine, path string, fn *phpast.FunctionDecl, depth int) *frame {
	fr := &frame{engine: e, analysis: a, path: path, fn: fn, depth: depth}
	fr.builder = cfg.NewBuilder(fr)
	return fr
}

// Summarize implements cfg.Summarizer. Calls are dispatched innermost first
// and before the record of the statement containing them, so a sink
// argument is traced against the records filed before it.
func (fr *frame) Summarize(g *cfg.Graph, b *cfg.Block) {
	b.Summary.Reset()
	nodes := b.Nodes
	if b.LoopVar != nil {
		nodes = append(nodes[:len(nodes):len(nodes)], b.LoopVar)
	}
	for _, n := range nodes {
		for _, call := range phpast.Calls(n) {
			fr.dispatchCall(g, b, call)
		}
		fr.summarizeNode(b.Summary, n)
	}
}

func (fr *frame) summarizeNode(s *dfg.Summary, n phpast.Node) {
	switch n := n.(type) {
	case *phpast.Assign:
		fr.assign(s, n)

	case *phpast.AssignOp:
		name := symbol.NameOf(n.Var)
		if name == "" {
			return
		}
		var value *symbol.Symbol
		switch n.Op {
		case ".":
			value = fr.engine.classify(n.Expr)
		case "??":
			value = symbol.New(symbol.Multiple, "", n, symbol.Classify(n.Var), fr.engine.classify(n.Expr))
		default:
			return
		}
		s.AddDataFlow(&dfg.DataFlow{Name: name, Location: symbol.Classify(n.Var), Value: value, Line: n.StartLine})

	case *phpast.ConstDecl:
		for _, c := range n.Consts {
			s.AddConstant(dfg.Constant{Name: c.Name, Value: fr.engine.classify(c.Value), Line: n.StartLine})
		}

	case *phpast.Global:
		for _, v := range n.Vars {
			if name := symbol.NameOf(v); name != "" {
				s.AddGlobalDefine(dfg.GlobalDefine{Name: name, Line: n.StartLine})
			}
		}

	case *phpast.Return:
		if n.Expr != nil {
			if a, ok := n.Expr.(*phpast.Assign); ok {
				fr.assign(s, a)
			}
			s.AddReturnValue(dfg.ReturnValue{Value: fr.engine.classify(n.Expr), Line: n.StartLine})
		}

	case *phpast.Call:
		fr.callRecord(s, n)

	case *phpast.ArrayDimFetch:
		if name, ok := symbol.GlobalsName(n); ok {
			s.AddRegisterGlobal(dfg.RegisterGlobal{Name: name, Line: n.StartLine})
		}
	}
}

// assign files one record per assigned location. A chained assignment
// files the inner record first; list() files one record per target.
func (fr *frame) assign(s *dfg.Summary, n *phpast.Assign) {
	if inner, ok := n.Expr.(*phpast.Assign); ok {
		fr.assign(s, inner)
	}
	switch v := n.Var.(type) {
	case *phpast.Unknown:
		for _, target := range listTargets(v) {
			fr.addFlow(s, target, n.Expr, n.StartLine)
		}
		return
	case *phpast.ArrayDimFetch:
		if name, ok := symbol.GlobalsName(v); ok {
			s.AddRegisterGlobal(dfg.RegisterGlobal{Name: name, Line: n.StartLine})
		}
	}
	fr.addFlow(s, n.Var, n.Expr, n.StartLine)
}

func (fr *frame) addFlow(s *dfg.Summary, target, expr phpast.Node, line int) {
	name := symbol.NameOf(target)
	if name == "" {
		return
	}
	loc := symbol.Classify(target)
	value := fr.engine.classify(expr)
	for _, tag := range value.Sanitization() {
		loc.AddSanitization(tag)
	}
	for _, tag := range value.Encoding() {
		loc.AddEncoding(tag)
	}
	s.AddDataFlow(&dfg.DataFlow{Name: name, Location: loc, Value: value, Line: line})
}

// listTargets returns the variables destructured by list(...) or [...].
func listTargets(n *phpast.Unknown) []phpast.Node {
	var out []phpast.Node
	for _, c := range n.Children {
		switch c := c.(type) {
		case *phpast.Variable, *phpast.ArrayDimFetch, *phpast.PropertyFetch:
			out = append(out, c)
		case *phpast.Unknown:
			out = append(out, listTargets(c)...)
		}
	}
	return out
}

// callRecord files the records of define(), extract() and
// import_request_variables() statements.
func (fr *frame) callRecord(s *dfg.Summary, n *phpast.Call) {
	switch strings.ToLower(n.Name) {
	case "define":
		if len(n.Args) < 2 {
			return
		}
		name := symbol.NameOf(n.Args[0])
		if name == "" {
			return
		}
		s.AddConstant(dfg.Constant{Name: name, Value: fr.engine.classify(n.Args[1]), Line: n.StartLine})

	case "extract":
		if len(n.Args) == 0 {
			return
		}
		overwrite := false
		if len(n.Args) > 1 {
			if c, ok := n.Args[1].(*phpast.ConstFetch); ok && strings.EqualFold(c.Name, "EXTR_OVERWRITE") {
				overwrite = true
			}
		}
		s.AddRegisterGlobal(dfg.RegisterGlobal{Name: symbol.NameOf(n.Args[0]), URLOverwrite: overwrite, Line: n.StartLine})

	case "import_request_variables":
		name := "import_request_variables"
		if len(n.Args) > 0 {
			if arg := symbol.NameOf(n.Args[0]); arg != "" {
				name = arg
			}
		}
		s.AddRegisterGlobal(dfg.RegisterGlobal{Name: name, URLOverwrite: true, Line: n.StartLine})
	}
}
