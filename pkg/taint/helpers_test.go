package taint

import (
	"strings"
	"sync"

	"github.com/l3aro/go-vulhunter/pkg/callgraph"
	"github.com/l3aro/go-vulhunter/pkg/cfg"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
)

var line int

func at() phpast.Pos {
	line++
	return phpast.Pos{StartLine: line, EndLine: line}
}

func v(name string) *phpast.Variable {
	return &phpast.Variable{Pos: at(), Name: name}
}

func str(s string) *phpast.Literal {
	return &phpast.Literal{Pos: at(), Kind: phpast.LiteralString, Value: s}
}

func get(key string) *phpast.ArrayDimFetch {
	return &phpast.ArrayDimFetch{Pos: at(), Var: v("_GET"), Dim: str(key)}
}

func call(name string, args ...phpast.Node) *phpast.Call {
	return &phpast.Call{Pos: at(), Kind: phpast.CallFunction, Name: name, Args: args}
}

func assign(name string, expr phpast.Node) *phpast.Assign {
	return &phpast.Assign{Pos: at(), Var: v(name), Expr: expr}
}

func concat(left, right phpast.Node) *phpast.Concat {
	return &phpast.Concat{Pos: at(), Left: left, Right: right}
}

func fn(name string, params []string, body ...phpast.Node) *phpast.FunctionDecl {
	decl := &phpast.FunctionDecl{Pos: at(), Name: name, Body: body}
	for _, p := range params {
		decl.Params = append(decl.Params, &phpast.Param{Pos: at(), Name: p})
	}
	return decl
}

// buildBlock builds stmts into a single-block graph summarized by e.
func buildBlock(e *Engine, stmts ...phpast.Node) (*cfg.Graph, *cfg.Block) {
	b := cfg.NewBuilder(cfg.SummarizerFunc(e.Summarize))
	last := b.Build(stmts, nil, cfg.NoBlock, cfg.NoBlock)
	return b.Graph(), b.Graph().Block(last)
}

// fakeLookup resolves functions from a fixed table, counts lookups and keeps
// the include context of the latest lookup per name.
type fakeLookup struct {
	mu       sync.Mutex
	funcs    map[string]*phpast.FunctionDecl
	path     string
	calls    map[string]int
	includes map[string][]string
}

func newFakeLookup(path string, decls ...*phpast.FunctionDecl) *fakeLookup {
	l := &fakeLookup{
		funcs:    make(map[string]*phpast.FunctionDecl),
		path:     path,
		calls:    make(map[string]int),
		includes: make(map[string][]string),
	}
	for _, d := range decls {
		l.funcs[strings.ToLower(d.Name)] = d
	}
	return l
}

func (l *fakeLookup) ResolveBody(name, path string, includes []string) (*callgraph.Body, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := strings.ToLower(name)
	l.calls[key]++
	l.includes[key] = includes
	d, ok := l.funcs[key]
	if !ok {
		return nil, false
	}
	return &callgraph.Body{Decl: d, Path: l.path}, true
}

func (l *fakeLookup) count(name string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[strings.ToLower(name)]
}

func (l *fakeLookup) includesFor(name string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.includes[strings.ToLower(name)]
}

func include(target string) *phpast.Call {
	return &phpast.Call{Pos: at(), Kind: phpast.CallConstruct, Name: "require_once", Args: []phpast.Node{str(target)}}
}
