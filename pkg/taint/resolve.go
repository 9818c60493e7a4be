package taint

import (
	"strings"

	"github.com/l3aro/go-vulhunter/pkg/callgraph"
	"github.com/l3aro/go-vulhunter/pkg/cfg"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/symbol"
)

// sinkArg is one dangerous argument of a matched sink.
type sinkArg struct {
	position int
	typ      string
}

// sinkArgs returns the dangerous arguments of call when its name is a
// configured sink or a memoized user-defined sink.
func (e *Engine) sinkArgs(call *phpast.Call) (args []sinkArg, userDefined, ok bool) {
	if rule, found := e.rules.IsSink(call.Name); found {
		for _, pos := range rule.DangerousArgs(len(call.Args)) {
			args = append(args, sinkArg{position: pos, typ: rule.Type})
		}
		return args, false, true
	}
	if params, found := e.session.Sinks.Get(call.Name); found {
		for _, p := range params {
			if p.Position <= len(call.Args) {
				args = append(args, sinkArg{position: p.Position, typ: p.Type})
			}
		}
		return args, true, true
	}
	return nil, false, false
}

func isBuiltinRecord(name string) bool {
	switch strings.ToLower(name) {
	case "define", "extract", "import_request_variables":
		return true
	}
	return false
}

// dispatchCall handles one call expression found in block b: a sink is
// traced and reported; any other user function is resolved and analyzed
// for sink-forwarding parameters.
func (fr *frame) dispatchCall(g *cfg.Graph, b *cfg.Block, call *phpast.Call) {
	if call.Name == "" {
		return
	}
	if args, userDefined, ok := fr.engine.sinkArgs(call); ok {
		fr.reportSink(b, call, args, userDefined)
		return
	}
	if call.Kind == phpast.CallConstruct || isBuiltinRecord(call.Name) {
		return
	}
	if fr.resolveCallee(call) {
		if args, _, ok := fr.engine.sinkArgs(call); ok {
			fr.reportSink(b, call, args, true)
		}
	}
}

// reportSink traces each dangerous argument of call and records a finding.
// Inside a callee frame, origins that are the callee's own parameters are
// left to the call sites, which see them through the sink context.
func (fr *frame) reportSink(b *cfg.Block, call *phpast.Call, args []sinkArg, userDefined bool) {
	e := fr.engine
	for _, arg := range args {
		node := call.Args[arg.position-1]
		res := TraceSymbol(e.classify(node), b, 0)
		origins := res.Tainted()
		if fr.fn != nil {
			origins = withoutParams(origins, fr.fn)
			if !res.Safe && len(origins) == 0 {
				continue
			}
		}
		f := Finding{
			Path:        fr.path,
			Line:        call.StartLine,
			Sink:        call.Name,
			SinkType:    arg.typ,
			Argument:    arg.position,
			ArgName:     symbol.NameOf(node),
			Origins:     origins,
			Safe:        res.Safe,
			UserDefined: userDefined,
		}
		for _, o := range origins {
			if e.rules.IsSource(o.Name) {
				f.FromSource = true
				break
			}
		}
		fr.analysis.report(f)
	}
}

func withoutParams(origins []Origin, fn *phpast.FunctionDecl) []Origin {
	var out []Origin
	for _, o := range origins {
		if paramPosition(fn, o.Name) == 0 {
			out = append(out, o)
		}
	}
	return out
}

// paramPosition returns the 1-based position of the formal parameter an
// origin name is rooted in, or 0.
func paramPosition(fn *phpast.FunctionDecl, name string) int {
	base := symbol.Base(name)
	for i, p := range fn.Params {
		if p.Name == name || p.Name == base {
			return i + 1
		}
	}
	return 0
}

// resolveCallee analyzes the body of a user function called from this frame
// and memoizes any sink-forwarding parameters in the session. It reports
// whether the callee is now a known sink.
func (fr *frame) resolveCallee(call *phpast.Call) bool {
	e := fr.engine
	if e.lookup == nil || e.session.knownSafe(call.Name, fr.path) {
		return false
	}
	body, ok := e.lookup.ResolveBody(call.Name, fr.path, fr.analysis.includes(fr.path, fr.builder))
	if !ok || body == nil || body.Decl == nil {
		e.session.markSafe(call.Name, fr.path)
		e.logger.Debug("callee not resolved", "function", call.Name, "file", fr.path, "line", call.StartLine)
		return false
	}

	a := fr.analysis
	if a.onStack(body.Decl, body.Path) || fr.depth+1 >= e.maxDepth {
		a.diagnostics = append(a.diagnostics, Diagnostic{
			Path:     fr.path,
			Line:     call.StartLine,
			Function: call.Name,
			Message:  ErrRecursionLimit.Error(),
			Err:      ErrRecursionLimit,
		})
		e.logger.Debug("recursion limit reached", "function", call.Name, "file", fr.path, "depth", fr.depth)
		return false
	}

	before := len(a.diagnostics)
	params := fr.analyzeCallee(body)
	cutOff := len(a.diagnostics) > before

	if len(params) == 0 {
		if !cutOff {
			e.session.markSafe(call.Name, fr.path)
		}
		return false
	}
	e.session.Sinks.Add(call.Name, params)
	e.logger.Debug("user-defined sink discovered", "function", call.Name, "file", body.Path, "params", len(params))
	return true
}

// analyzeCallee builds the callee's CFG in a fresh frame and returns the
// parameters that reach a sink inside it.
func (fr *frame) analyzeCallee(body *callgraph.Body) []SinkParam {
	a := fr.analysis
	callee := a.newFrame(fr.engine, body.Path, body.Decl, fr.depth+1)
	a.push(body.Decl, body.Path)
	defer a.pop()
	last := callee.builder.Build(body.Decl.Body, nil, cfg.NoBlock, cfg.NoBlock)
	return callee.sinkParams(callee.builder.Graph(), last)
}

// sinkParams walks every call in the function body and, for each sink,
// traces the dangerous arguments within the block containing the call.
// Traced origins that are formal parameters yield dangerous positions,
// each carrying the type of the sink it reaches.
func (fr *frame) sinkParams(g *cfg.Graph, last cfg.BlockID) []SinkParam {
	var params []SinkParam
	seen := make(map[SinkParam]bool)
	for _, call := range phpast.CallsIn(fr.fn.Body) {
		args, _, ok := fr.engine.sinkArgs(call)
		if !ok {
			continue
		}
		b, found := g.BlockOf(call)
		if !found {
			b = g.Block(last)
		}
		for _, arg := range args {
			res := TraceSymbol(fr.engine.classify(call.Args[arg.position-1]), b, 0)
			if res.Safe {
				continue
			}
			for _, o := range res.Origins {
				pos := paramPosition(fr.fn, o.Name)
				if pos == 0 {
					continue
				}
				p := SinkParam{Position: pos, Type: arg.typ}
				if !seen[p] {
					seen[p] = true
					params = append(params, p)
				}
			}
		}
	}
	return params
}
