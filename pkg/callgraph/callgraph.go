// Package callgraph locates PHP function bodies for interprocedural analysis
// and builds per-file call graphs.
package callgraph

import (
	"sort"
	"strings"

	"github.com/l3aro/go-vulhunter/pkg/phpast"
)

// CallType represents the type of function call
type CallType string

const (
	// LocalCall is a call to a function defined within the same file
	LocalCall CallType = "local"
	// ExternalCall is a call to a function defined elsewhere or a builtin
	ExternalCall CallType = "external"
	// MethodCall is a method call on an object ($obj->method())
	MethodCall CallType = "method"
	// StaticCall is a static method call (Class::method())
	StaticCall CallType = "static"
	// ConstructCall is a language construct such as echo or include
	ConstructCall CallType = "construct"
)

// CalledFunction represents a single called function within a caller
type CalledFunction struct {
	Name       string   `json:"name"`
	Type       CallType `json:"type"`
	LineNumber int      `json:"line_number"`
	Args       int      `json:"args"`
}

// CallGraphEntry represents all calls from a single caller function
type CallGraphEntry struct {
	Caller     string           `json:"caller"`
	Calls      []CalledFunction `json:"calls"`
	LineNumber int              `json:"line_number"`
}

// MainCaller names the file's top-level code in a FileCallGraph.
const MainCaller = "{main}"

// FileCallGraph is the call graph of one file: every declared function and
// the file's top-level code, with the calls each makes.
type FileCallGraph struct {
	FilePath string                     `json:"file_path"`
	Entries  map[string]*CallGraphEntry `json:"entries"`
	// LocalFunctions holds lowercased qualified names of functions declared
	// in the file.
	LocalFunctions map[string]bool `json:"-"`
}

// BuildFileCallGraph builds the call graph of a parsed file.
func BuildFileCallGraph(f *phpast.File) *FileCallGraph {
	g := &FileCallGraph{
		FilePath:       f.Path,
		Entries:        make(map[string]*CallGraphEntry),
		LocalFunctions: make(map[string]bool),
	}
	decls := phpast.Declarations(f.Stmts)
	for _, d := range decls {
		g.LocalFunctions[strings.ToLower(d.QualifiedName())] = true
		if d.Class != "" {
			g.LocalFunctions[strings.ToLower(d.Name)] = true
		}
	}

	g.add(MainCaller, 0, f.Stmts)
	for _, d := range decls {
		g.add(d.QualifiedName(), d.StartLine, d.Body)
	}
	return g
}

func (g *FileCallGraph) add(caller string, line int, body []phpast.Node) {
	entry := &CallGraphEntry{Caller: caller, LineNumber: line}
	for _, call := range phpast.CallsIn(body) {
		if call.Name == "" {
			continue
		}
		entry.Calls = append(entry.Calls, CalledFunction{
			Name:       call.Name,
			Type:       g.callType(call),
			LineNumber: call.StartLine,
			Args:       len(call.Args),
		})
	}
	g.Entries[caller] = entry
}

func (g *FileCallGraph) callType(call *phpast.Call) CallType {
	switch call.Kind {
	case phpast.CallConstruct:
		return ConstructCall
	case phpast.CallMethod:
		return MethodCall
	case phpast.CallStatic:
		if g.LocalFunctions[strings.ToLower(call.Name)] {
			return LocalCall
		}
		return StaticCall
	}
	if g.LocalFunctions[strings.ToLower(call.Name)] {
		return LocalCall
	}
	return ExternalCall
}

// GetCalls returns all calls made by a function.
func (g *FileCallGraph) GetCalls(functionName string) []CalledFunction {
	if entry, ok := g.Entries[functionName]; ok {
		return entry.Calls
	}
	return nil
}

// GetLocalCalls returns calls to functions declared in the same file.
func (g *FileCallGraph) GetLocalCalls(functionName string) []CalledFunction {
	var out []CalledFunction
	for _, c := range g.GetCalls(functionName) {
		if c.Type == LocalCall {
			out = append(out, c)
		}
	}
	return out
}

// GetAllFunctions returns all callers in the graph, sorted.
func (g *FileCallGraph) GetAllFunctions() []string {
	names := make([]string, 0, len(g.Entries))
	for name := range g.Entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetCallCount returns the total number of calls in the graph.
func (g *FileCallGraph) GetCallCount() int {
	count := 0
	for _, entry := range g.Entries {
		count += len(entry.Calls)
	}
	return count
}
