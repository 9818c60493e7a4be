package phpast

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *File {
	t.Helper()
	f, err := NewParser(true).Parse(context.Background(), "test.php", []byte(src))
	require.NoError(t, err)
	return f
}

func TestParse_Assignment(t *testing.T) {
	f := parse(t, "<?php\n$id = $_GET['id'];\n")
	require.Len(t, f.Stmts, 1)

	assign, ok := f.Stmts[0].(*Assign)
	require.True(t, ok, "got %T", f.Stmts[0])
	assert.Equal(t, 2, assign.Position().StartLine)

	v, ok := assign.Var.(*Variable)
	require.True(t, ok)
	assert.Equal(t, "id", v.Name)

	dim, ok := assign.Expr.(*ArrayDimFetch)
	require.True(t, ok, "got %T", assign.Expr)
	base, ok := dim.Var.(*Variable)
	require.True(t, ok)
	assert.Equal(t, "_GET", base.Name)
	lit, ok := dim.Dim.(*Literal)
	require.True(t, ok)
	assert.Equal(t, "id", lit.Value)
}

func TestParse_FunctionCall(t *testing.T) {
	f := parse(t, "<?php\nmysql_query($sql);\n")
	require.Len(t, f.Stmts, 1)

	call, ok := f.Stmts[0].(*Call)
	require.True(t, ok, "got %T", f.Stmts[0])
	assert.Equal(t, CallFunction, call.Kind)
	assert.Equal(t, "mysql_query", call.Name)
	require.Len(t, call.Args, 1)
	arg, ok := call.Args[0].(*Variable)
	require.True(t, ok)
	assert.Equal(t, "sql", arg.Name)
}

func TestParse_Concat(t *testing.T) {
	f := parse(t, "<?php\n$sql = $a . $b;\n")
	assign := f.Stmts[0].(*Assign)
	concat, ok := assign.Expr.(*Concat)
	require.True(t, ok, "got %T", assign.Expr)
	assert.Equal(t, "a", concat.Left.(*Variable).Name)
	assert.Equal(t, "b", concat.Right.(*Variable).Name)
}

func TestParse_IfElse(t *testing.T) {
	f := parse(t, `<?php
if ($a) {
    $x = 1;
} else {
    $x = 2;
}
`)
	require.Len(t, f.Stmts, 1)
	stmt, ok := f.Stmts[0].(*If)
	require.True(t, ok, "got %T", f.Stmts[0])
	assert.Equal(t, "a", stmt.Cond.(*Variable).Name)
	assert.Len(t, stmt.Body, 1)
	require.NotNil(t, stmt.Else)
	assert.Len(t, stmt.Else.Body, 1)
}

func TestParse_FunctionDefinition(t *testing.T) {
	f := parse(t, `<?php
function run($q, $db) {
    return mysql_query($q);
}
`)
	require.Len(t, f.Stmts, 1)
	fn, ok := f.Stmts[0].(*FunctionDecl)
	require.True(t, ok, "got %T", f.Stmts[0])
	assert.Equal(t, "run", fn.Name)
	assert.Equal(t, []string{"q", "db"}, fn.ParamNames())
	require.Len(t, fn.Body, 1)
	ret, ok := fn.Body[0].(*Return)
	require.True(t, ok)
	assert.Equal(t, "mysql_query", ret.Expr.(*Call).Name)
}

func TestParse_Echo(t *testing.T) {
	f := parse(t, "<?php\necho $name;\n")
	require.Len(t, f.Stmts, 1)
	call, ok := f.Stmts[0].(*Call)
	require.True(t, ok, "got %T", f.Stmts[0])
	assert.Equal(t, CallConstruct, call.Kind)
	assert.Equal(t, "echo", call.Name)
	require.Len(t, call.Args, 1)
	assert.Equal(t, "name", call.Args[0].(*Variable).Name)
}

func TestParse_Foreach(t *testing.T) {
	f := parse(t, `<?php
foreach ($rows as $row) {
    echo $row;
}
`)
	require.Len(t, f.Stmts, 1)
	loop, ok := f.Stmts[0].(*Foreach)
	require.True(t, ok, "got %T", f.Stmts[0])
	assert.Equal(t, "rows", loop.Expr.(*Variable).Name)
	assert.Len(t, loop.Body, 1)
}

func TestParse_StrictRejectsSyntaxErrors(t *testing.T) {
	_, err := NewParser(true).Parse(context.Background(), "bad.php", []byte("<?php\n$x = ;\n"))
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "bad.php", perr.Path)
}

func TestParse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParser(true).Parse(ctx, "a.php", []byte("<?php\necho 1;\n"))
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestParse_PooledParsersOutliveContexts(t *testing.T) {
	p := NewParser(true)
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		_, err := p.Parse(ctx, "a.php", []byte("<?php\n$id = $_GET['id'];\n"))
		cancel()
		require.NoError(t, err, "parse %d", i)
	}
}

func TestShortName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"mysql_query", "mysql_query"},
		{`\mysql_query`, "mysql_query"},
		{`\App\Db\query`, "query"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, shortName(tt.in))
	}
}

func TestUnquote(t *testing.T) {
	assert.Equal(t, "abc", unquote("'abc'"))
	assert.Equal(t, "abc", unquote(`"abc"`))
	assert.Equal(t, "abc", unquote("abc"))
}
