package taint

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-vulhunter/pkg/dfg"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/symbol"
)

func TestSummarize_Idempotent(t *testing.T) {
	e := New(Options{})
	g, b := buildBlock(e,
		assign("a", get("id")),
		&phpast.AssignOp{Pos: at(), Op: ".", Var: v("a"), Expr: str("x")},
		call("define", str("PREFIX"), str("wp_")),
		&phpast.Global{Pos: at(), Vars: []phpast.Node{v("db")}},
		&phpast.Return{Pos: at(), Expr: v("a")},
	)
	first := b.Summary.Lines()
	require.NotEmpty(t, first)

	e.Summarize(g, b)
	if diff := cmp.Diff(first, b.Summary.Lines()); diff != "" {
		t.Errorf("summary changed on second pass (-first +second):\n%s", diff)
	}
}

func TestSummarize_Records(t *testing.T) {
	e := New(Options{})
	_, b := buildBlock(e,
		call("define", str("PREFIX"), str("wp_")),
		&phpast.ConstDecl{Pos: at(), Consts: []phpast.ConstElem{{Name: "LIMIT", Value: &phpast.Literal{Kind: phpast.LiteralNumber, Value: "10"}}}},
		&phpast.Global{Pos: at(), Vars: []phpast.Node{v("db"), v("cfg")}},
		&phpast.Return{Pos: at(), Expr: v("x")},
	)
	s := b.Summary

	_, ok := s.Constant("PREFIX")
	assert.True(t, ok)
	_, ok = s.Constant("LIMIT")
	assert.True(t, ok)
	require.Len(t, s.GlobalDefines, 2)
	assert.Equal(t, "db", s.GlobalDefines[0].Name)
	require.Len(t, s.ReturnValues, 1)
	assert.Equal(t, "x", s.ReturnValues[0].Value.Name())
}

func TestSummarize_Extract(t *testing.T) {
	tests := []struct {
		name      string
		stmt      phpast.Node
		want      string
		overwrite bool
	}{
		{
			name: "extract default",
			stmt: call("extract", v("_GET")),
			want: "_GET",
		},
		{
			name:      "extract overwrite",
			stmt:      call("extract", v("_GET"), &phpast.ConstFetch{Pos: at(), Name: "EXTR_OVERWRITE"}),
			want:      "_GET",
			overwrite: true,
		},
		{
			name: "extract skip",
			stmt: call("extract", v("_POST"), &phpast.ConstFetch{Pos: at(), Name: "EXTR_SKIP"}),
			want: "_POST",
		},
		{
			name:      "import_request_variables",
			stmt:      call("import_request_variables", str("GP")),
			want:      "GP",
			overwrite: true,
		},
		{
			name: "globals read",
			stmt: &phpast.ArrayDimFetch{Pos: at(), Var: v("GLOBALS"), Dim: str("user")},
			want: "user",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, b := buildBlock(New(Options{}), tt.stmt)
			require.Len(t, b.Summary.RegisterGlobals, 1)
			rg := b.Summary.RegisterGlobals[0]
			assert.Equal(t, tt.want, rg.Name)
			assert.Equal(t, tt.overwrite, rg.URLOverwrite)
		})
	}
}

func TestSummarize_GlobalsWrite(t *testing.T) {
	_, b := buildBlock(New(Options{}), &phpast.Assign{
		Pos:  at(),
		Var:  &phpast.ArrayDimFetch{Pos: at(), Var: v("GLOBALS"), Dim: str("x")},
		Expr: get("a"),
	})
	s := b.Summary
	require.Len(t, s.RegisterGlobals, 1)
	assert.Equal(t, dfg.RegisterGlobal{Name: "x", Line: s.RegisterGlobals[0].Line}, s.RegisterGlobals[0])
	require.Len(t, s.DataFlows, 1)
	assert.Equal(t, "x", s.DataFlows[0].Name)
	assert.Equal(t, []string{"_GET[a]"}, Trace("x", b, 0).Names())
}

func TestSummarize_ListAssign(t *testing.T) {
	_, b := buildBlock(New(Options{}), &phpast.Assign{
		Pos:  at(),
		Var:  &phpast.Unknown{Pos: at(), Kind: "list_literal", Children: []phpast.Node{v("a"), v("b")}},
		Expr: get("pair"),
	})
	require.Len(t, b.Summary.DataFlows, 2)
	assert.Equal(t, []string{"_GET[pair]"}, Trace("b", b, 0).Names())
}

func TestSummarize_ChainedAssign(t *testing.T) {
	_, b := buildBlock(New(Options{}), assign("a", assign("b", get("id"))))
	require.Len(t, b.Summary.DataFlows, 2)
	assert.Equal(t, "b", b.Summary.DataFlows[0].Name)
	assert.Equal(t, []string{"_GET[id]"}, Trace("a", b, 0).Names())
}

func TestSummarize_ConcatAssign(t *testing.T) {
	_, b := buildBlock(New(Options{}),
		assign("q", str("SELECT * FROM t WHERE id=")),
		&phpast.AssignOp{Pos: at(), Op: ".", Var: v("q"), Expr: get("id")},
	)
	res := Trace("q", b, 0)
	assert.Equal(t, []string{"_GET[id]"}, Result{Origins: res.Tainted()}.Names())
}

func TestSummarize_ConcatAssignFilesAppendedValue(t *testing.T) {
	_, b := buildBlock(New(Options{}),
		assign("q", get("a")),
		&phpast.AssignOp{Pos: at(), Op: ".", Var: v("q"), Expr: str("x")},
	)
	require.Len(t, b.Summary.DataFlows, 2)
	assert.Equal(t, symbol.Value, b.Summary.DataFlows[1].Value.Kind())

	res := Trace("q", b, 0)
	assert.False(t, res.Safe)
	assert.Equal(t, []string{"x"}, res.Names())
	assert.Empty(t, res.Tainted())
}

func TestSummarize_ArithmeticAssignOpIgnored(t *testing.T) {
	_, b := buildBlock(New(Options{}),
		assign("n", get("n")),
		&phpast.AssignOp{Pos: at(), Op: "+", Var: v("n"), Expr: str("1")},
	)
	assert.Len(t, b.Summary.DataFlows, 1)
}

func TestAnalyzeFile_DirectSink(t *testing.T) {
	e := New(Options{})
	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		assign("id", get("id")),
		assign("q", concat(str("SELECT * FROM t WHERE id="), v("id"))),
		call("mysql_query", v("q")),
	}})

	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "mysql_query", f.Sink)
	assert.Equal(t, "sql", f.SinkType)
	assert.Equal(t, 1, f.Argument)
	assert.Equal(t, "q", f.ArgName)
	assert.Equal(t, []Origin{{Name: "_GET[id]", Kind: symbol.ArrayDimFetch}}, f.Origins)
	assert.True(t, f.FromSource)
	assert.False(t, f.UserDefined)
	assert.True(t, f.Reportable())
}

func TestAnalyzeFile_SanitizedSink(t *testing.T) {
	e := New(Options{})
	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		assign("id", call("intval", get("id"))),
		call("mysql_query", concat(str("SELECT "), v("id"))),
	}})
	require.Len(t, res.Findings, 1)
	assert.False(t, res.Findings[0].Reportable())
	assert.Empty(t, res.Reportable())
}

func TestAnalyzeFile_EchoConstruct(t *testing.T) {
	e := New(Options{})
	echo := &phpast.Call{Pos: at(), Kind: phpast.CallConstruct, Name: "echo", Args: []phpast.Node{str("hi "), get("name")}}
	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{echo}})

	reportable := res.Reportable()
	require.Len(t, reportable, 1)
	assert.Equal(t, "xss", reportable[0].SinkType)
	assert.Equal(t, 2, reportable[0].Argument)
}

func TestAnalyzeFile_SinkInBranchCondition(t *testing.T) {
	e := New(Options{})
	stmt := &phpast.If{
		Pos:  at(),
		Cond: call("mysql_query", get("w")),
		Body: []phpast.Node{assign("ok", str("1"))},
	}
	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{stmt}})
	assert.Len(t, res.Reportable(), 1)
}

func TestAnalyzeFile_ConditionCallDispatchedOnce(t *testing.T) {
	guard := fn("guard", []string{"x"}, &phpast.If{
		Pos:  at(),
		Cond: call("guard", v("x")),
		Body: []phpast.Node{assign("ok", str("1"))},
	})
	lookup := newFakeLookup("lib.php", guard)
	e := New(Options{Lookup: lookup})

	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		call("guard", get("a")),
	}})

	require.Len(t, res.Diagnostics, 1)
	assert.True(t, errors.Is(res.Diagnostics[0], ErrRecursionLimit))
	assert.Equal(t, 2, lookup.count("guard"))
}

func TestAnalyzeFile_CalleeLookupUsesFileIncludes(t *testing.T) {
	runq := fn("runq", []string{"db", "q"}, call("mysql_query", v("q")))
	w := fn("w", []string{"x"}, call("runq", v("conn"), v("x")))
	lookup := newFakeLookup("lib.php", runq, w)
	e := New(Options{Lookup: lookup})

	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		include("lib.php"),
		w,
		call("w", get("id")),
	}})

	assert.Equal(t, []string{"lib.php"}, lookup.includesFor("runq"))
	require.Len(t, res.Reportable(), 1)
	f := res.Reportable()[0]
	assert.Equal(t, "w", f.Sink)
	assert.Equal(t, []string{"_GET[id]"}, f.OriginNames())
	assert.Equal(t, []string{"lib.php"}, res.Includes)
}

func TestAnalyzeFile_Interprocedural(t *testing.T) {
	runq := fn("runq", []string{"db", "q"},
		call("mysql_query", v("q")),
	)
	lookup := newFakeLookup("lib.php", runq)
	e := New(Options{Lookup: lookup})

	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		call("runq", v("conn"), get("x")),
		call("runq", v("conn"), get("y")),
	}})

	params, ok := e.Session().Sinks.Get("RunQ")
	require.True(t, ok)
	assert.Equal(t, []SinkParam{{Position: 2, Type: "sql"}}, params)

	// the second call site reuses the memoized entry
	assert.Equal(t, 1, lookup.count("runq"))

	require.Len(t, res.Findings, 2)
	for i, key := range []string{"_GET[x]", "_GET[y]"} {
		f := res.Findings[i]
		assert.Equal(t, "runq", f.Sink)
		assert.Equal(t, 2, f.Argument)
		assert.True(t, f.UserDefined)
		assert.Equal(t, []string{key}, f.OriginNames())
	}
}

func TestAnalyzeFile_NestedWrappers(t *testing.T) {
	inner := fn("inner", []string{"cmd"}, call("system", v("cmd")))
	outer := fn("outer", []string{"a"},
		assign("c", concat(str("ls "), v("a"))),
		call("inner", v("c")),
	)
	e := New(Options{Lookup: newFakeLookup("lib.php", inner, outer)})

	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		call("outer", get("dir")),
	}})

	params, ok := e.Session().Sinks.Get("outer")
	require.True(t, ok)
	assert.Equal(t, []SinkParam{{Position: 1, Type: "exec"}}, params)
	_, ok = e.Session().Sinks.Get("inner")
	assert.True(t, ok)

	require.Len(t, res.Reportable(), 1)
	assert.Equal(t, "outer", res.Reportable()[0].Sink)
}

func TestAnalyzeFile_CalleeWithoutSink(t *testing.T) {
	helper := fn("helper", []string{"x"}, assign("y", v("x")))
	lookup := newFakeLookup("lib.php", helper)
	e := New(Options{Lookup: lookup})

	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		call("helper", get("a")),
		call("helper", get("b")),
		call("missing", get("c")),
		call("missing", get("d")),
	}})

	assert.Empty(t, res.Findings)
	assert.Equal(t, 0, e.Session().Sinks.Len())
	assert.Equal(t, 1, lookup.count("helper"))
	assert.Equal(t, 1, lookup.count("missing"))
}

func TestAnalyzeFile_Recursion(t *testing.T) {
	rec := fn("rec", []string{"x"},
		call("rec", v("x")),
		call("system", v("x")),
	)
	e := New(Options{Lookup: newFakeLookup("lib.php", rec)})

	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		call("rec", get("cmd")),
	}})

	require.NotEmpty(t, res.Diagnostics)
	assert.True(t, errors.Is(res.Diagnostics[0], ErrRecursionLimit))
	params, ok := e.Session().Sinks.Get("rec")
	require.True(t, ok)
	assert.Equal(t, []SinkParam{{Position: 1, Type: "exec"}}, params)
	assert.Len(t, res.Reportable(), 1)
}

func TestAnalyzeFile_MutualRecursionTerminates(t *testing.T) {
	a := fn("ping", []string{"x"}, call("pong", v("x")))
	b := fn("pong", []string{"y"}, call("ping", v("y")))
	e := New(Options{Lookup: newFakeLookup("lib.php", a, b)})

	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		call("ping", get("p")),
	}})
	assert.Empty(t, res.Findings)
	assert.NotEmpty(t, res.Diagnostics)
}

func TestAnalyzeFile_MaxCallDepth(t *testing.T) {
	runq := fn("runq", []string{"q"}, call("mysql_query", v("q")))
	e := New(Options{Lookup: newFakeLookup("lib.php", runq), MaxCallDepth: 1})

	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		call("runq", get("q")),
	}})
	assert.Empty(t, res.Findings)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "runq", res.Diagnostics[0].Function)
}

func TestAnalyzeFile_DeclaredFunction(t *testing.T) {
	e := New(Options{})
	res := e.AnalyzeFile(&phpast.File{Path: "a.php", Stmts: []phpast.Node{
		fn("show", []string{"name"},
			call("mysql_query", v("name")),
			call("system", get("cmd")),
		),
	}})

	// parameter origins belong to call sites; request data inside the body
	// is reported directly
	reportable := res.Reportable()
	require.Len(t, reportable, 1)
	assert.Equal(t, "system", reportable[0].Sink)
}
