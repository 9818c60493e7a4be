package taint

import (
	"github.com/l3aro/go-vulhunter/pkg/cfg"
	"github.com/l3aro/go-vulhunter/pkg/symbol"
)

// Origin is a name a traced value may ultimately come from.
type Origin struct {
	Name string      `json:"name"`
	Kind symbol.Kind `json:"kind"`
}

// Result is the outcome of tracing one name or symbol backwards through a
// block summary. Safe means a sanitizer was applied on the way; otherwise
// Origins lists the contributing names, most significant first.
type Result struct {
	Safe    bool
	Origins []Origin
}

// Names returns the origin names in order.
func (r Result) Names() []string {
	names := make([]string, 0, len(r.Origins))
	for _, o := range r.Origins {
		names = append(names, o.Name)
	}
	return names
}

// Tainted returns the origins that can carry external data: literal and
// constant origins are dropped.
func (r Result) Tainted() []Origin {
	var out []Origin
	for _, o := range r.Origins {
		if o.Kind == symbol.Value || o.Kind.IsConstant() || o.Name == "" {
			continue
		}
		out = append(out, o)
	}
	return out
}

// Trace follows the variable name backwards through the data-flow records of
// b, ignoring the skip most recent ones.
func Trace(name string, b *cfg.Block, skip int) Result {
	return newTracer(b).name(name, symbol.Variable, skip)
}

// TraceSymbol traces every name a symbol is built from.
func TraceSymbol(sym *symbol.Symbol, b *cfg.Block, skip int) Result {
	return newTracer(b).symbol(sym, skip)
}

type traceKey struct {
	name string
	kind symbol.Kind
	skip int
}

// tracer holds the results of one top-level trace. A name traced from the
// same record offset always yields the same result, so operands shared by
// several records are traced once.
type tracer struct {
	b    *cfg.Block
	memo map[traceKey]Result
}

func newTracer(b *cfg.Block) *tracer {
	return &tracer{b: b, memo: make(map[traceKey]Result)}
}

func (t *tracer) symbol(sym *symbol.Symbol, skip int) Result {
	if sym.IsSanitized() {
		return Result{Safe: true}
	}
	switch sym.Kind() {
	case symbol.Concat, symbol.Multiple:
		return t.merge(sym.Items(), skip)
	case symbol.Value, symbol.Constant:
		if sym.Name() == "" {
			return Result{}
		}
		return Result{Origins: []Origin{{Name: sym.Name(), Kind: sym.Kind()}}}
	case symbol.Variable, symbol.ArrayDimFetch:
		return t.name(sym.Name(), sym.Kind(), skip)
	}
	return Result{}
}

func (t *tracer) name(name string, kind symbol.Kind, skip int) Result {
	k := traceKey{name: name, kind: kind, skip: skip}
	if res, ok := t.memo[k]; ok {
		return res
	}
	res := t.scan(name, kind, skip)
	t.memo[k] = res
	return res
}

// scan walks the records most-recent-first. The first record assigning name
// decides the result; the operands of its value are traced from just before
// that record.
func (t *tracer) scan(name string, kind symbol.Kind, skip int) Result {
	b := t.b
	if b == nil || b.Summary == nil {
		return Result{Origins: []Origin{{Name: name, Kind: kind}}}
	}
	flows := b.Summary.DataFlows
	end := len(flows) - skip
	scanned := skip
	for i := end - 1; i >= 0; i-- {
		scanned++
		f := flows[i]
		if f.Name != name {
			continue
		}
		if f.Location.IsSanitized() {
			return Result{Safe: true}
		}
		switch f.Value.Kind() {
		case symbol.Concat, symbol.Multiple:
			if f.Value.IsSanitized() {
				return Result{Safe: true}
			}
			return t.merge(f.Value.Items(), scanned)
		}
		return t.symbol(f.Value, scanned)
	}
	return Result{Origins: []Origin{{Name: name, Kind: kind}}}
}

// merge combines the traces of several operands. A non-safe operand result
// is prepended; a safe one trims the accumulated list up to where that
// operand's own name appears. An all-safe operand list yields an empty,
// non-safe result. A name already listed keeps its first position.
func (t *tracer) merge(items []*symbol.Symbol, skip int) Result {
	var out []Origin
	for _, item := range items {
		sub := t.symbol(item, skip)
		if sub.Safe {
			if idx := indexOf(out, item.Name()); idx > 0 {
				out = out[idx:]
			}
			continue
		}
		out = dedupe(append(append([]Origin{}, sub.Origins...), out...))
	}
	return Result{Origins: out}
}

func dedupe(origins []Origin) []Origin {
	seen := make(map[Origin]bool, len(origins))
	out := origins[:0]
	for _, o := range origins {
		if seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

func indexOf(origins []Origin, name string) int {
	for i, o := range origins {
		if o.Name == name {
			return i
		}
	}
	return -1
}
