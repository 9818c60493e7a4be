package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/taint"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const libPHP = `<?php
function runq($db, $q) {
    return mysql_query($q, $db);
}
`

const indexPHP = `<?php
require_once 'lib.php';
$id = $_GET['id'];
runq($conn, $id);
echo htmlspecialchars($id);
`

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func TestAnalyze_CrossFileSink(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"lib.php":   libPHP,
		"index.php": indexPHP,
	})

	res, err := Analyze(context.Background(), dir, Options{Workers: 2})
	require.NoError(t, err)

	assert.Len(t, res.Files, 2)
	assert.Empty(t, res.Errors)

	findings := res.Reportable()
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, filepath.Join(dir, "index.php"), f.Path)
	assert.Equal(t, 4, f.Line)
	assert.Equal(t, "runq", f.Sink)
	assert.Equal(t, "sql", f.SinkType)
	assert.Equal(t, 2, f.Argument)
	assert.True(t, f.UserDefined)
	assert.True(t, f.FromSource)

	assert.Equal(t, []taint.SinkParam{{Position: 2, Type: "sql"}}, res.Sinks["runq"])
}

func TestAnalyze_Deterministic(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"lib.php":       libPHP,
		"index.php":     indexPHP,
		"admin/run.php": "<?php\nsystem($_POST['cmd']);\nrunq($db, $_COOKIE['q']);\n",
		"view.phtml":    "<p><?php echo $_GET['name']; ?></p>\n",
	})

	first, err := Analyze(context.Background(), dir, Options{Workers: 1})
	require.NoError(t, err)
	second, err := Analyze(context.Background(), dir, Options{Workers: 8})
	require.NoError(t, err)

	if diff := cmp.Diff(first.Findings, second.Findings); diff != "" {
		t.Errorf("findings differ between runs (-first +second):\n%s", diff)
	}
	assert.Len(t, first.Reportable(), 4)
}

func TestAnalyze_ParseErrorsAreCollected(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"broken.php": "<?php function ( {\n",
		"ok.php":     "<?php system($_GET['c']);\n",
	})

	res, err := Analyze(context.Background(), dir, Options{StrictParse: true})
	require.NoError(t, err)

	require.Len(t, res.Errors, 1)
	assert.Equal(t, filepath.Join(dir, "broken.php"), res.Errors[0].Path)
	var pe *phpast.ParseError
	assert.True(t, errors.As(res.Errors[0], &pe))

	require.Len(t, res.Reportable(), 1)
	assert.Equal(t, "system", res.Reportable()[0].Sink)
}

func TestAnalyze_SinkContextFile(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"lib.php":   libPHP,
		"index.php": indexPHP,
	})
	ctxFile := filepath.Join(t.TempDir(), "state", "sinks.msgpack")

	_, err := Analyze(context.Background(), dir, Options{SinkContextFile: ctxFile})
	require.NoError(t, err)

	saved := taint.NewSinkContext()
	require.NoError(t, saved.LoadFile(ctxFile))
	params, ok := saved.Get("runq")
	require.True(t, ok)
	assert.Equal(t, []taint.SinkParam{{Position: 2, Type: "sql"}}, params)
}

func TestAnalyze_PreloadedSinkContext(t *testing.T) {
	ctxFile := filepath.Join(t.TempDir(), "sinks.msgpack")
	known := taint.NewSinkContext()
	known.Add("legacy_exec", []taint.SinkParam{{Position: 1, Type: "exec"}})
	require.NoError(t, known.SaveFile(ctxFile))

	// legacy_exec is defined elsewhere; only the snapshot knows about it
	dir := writeProject(t, map[string]string{
		"cron.php": "<?php\nlegacy_exec($_GET['job']);\n",
	})

	res, err := Analyze(context.Background(), dir, Options{SinkContextFile: ctxFile})
	require.NoError(t, err)

	findings := res.Reportable()
	require.Len(t, findings, 1)
	assert.Equal(t, "legacy_exec", findings[0].Sink)
	assert.Equal(t, "exec", findings[0].SinkType)
	assert.True(t, findings[0].UserDefined)
}

func TestAnalyze_SingleFile(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"lib.php":   libPHP,
		"index.php": indexPHP,
	})

	res, err := Analyze(context.Background(), filepath.Join(dir, "index.php"), Options{})
	require.NoError(t, err)
	assert.Equal(t, dir, res.Root)
	assert.Equal(t, []string{filepath.Join(dir, "index.php")}, res.Files)
	// lib.php is reached through the include
	assert.Len(t, res.Reportable(), 1)
}

func TestAnalyze_WrapperOfIncludedFunction(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"lib.php": libPHP,
		"index.php": "<?php\nrequire_once 'lib.php';\n" +
			"function w($x) {\n    runq($conn, $x);\n}\nw($_GET['id']);\n",
	})

	res, err := Analyze(context.Background(), filepath.Join(dir, "index.php"), Options{})
	require.NoError(t, err)

	findings := res.Reportable()
	require.Len(t, findings, 1)
	assert.Equal(t, "w", findings[0].Sink)
	assert.Equal(t, 6, findings[0].Line)
	assert.Equal(t, []string{"_GET[id]"}, findings[0].OriginNames())
	assert.Equal(t, []taint.SinkParam{{Position: 1, Type: "sql"}}, res.Sinks["w"])
}

func TestAnalyze_Repeated(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"lib.php":   libPHP,
		"index.php": indexPHP,
	})

	for i := 0; i < 30; i++ {
		res, err := Analyze(context.Background(), dir, Options{Workers: 4})
		require.NoError(t, err)
		require.Empty(t, res.Errors, "run %d", i)
		require.Len(t, res.Reportable(), 1, "run %d", i)
	}
}

func TestAnalyze_Cancelled(t *testing.T) {
	dir := writeProject(t, map[string]string{"a.php": "<?php echo 1;"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Analyze(ctx, dir, Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAnalyze_MissingRoot(t *testing.T) {
	_, err := Analyze(context.Background(), filepath.Join(t.TempDir(), "nope"), Options{})
	assert.Error(t, err)
}
