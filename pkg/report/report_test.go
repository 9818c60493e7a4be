package report

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-vulhunter/pkg/project"
	"github.com/l3aro/go-vulhunter/pkg/symbol"
	"github.com/l3aro/go-vulhunter/pkg/taint"
)

func sampleResult() *project.Result {
	root := filepath.FromSlash("/srv/app")
	return &project.Result{
		Root:  root,
		Files: []string{filepath.Join(root, "index.php"), filepath.Join(root, "lib", "db.php")},
		Findings: []taint.Finding{
			{
				Path: filepath.Join(root, "index.php"), Line: 4, Sink: "runq", SinkType: "sql", Argument: 2,
				ArgName: "id", Origins: []taint.Origin{{Name: "_GET[id]", Kind: symbol.ArrayDimFetch}},
				FromSource: true, UserDefined: true,
			},
			{
				Path: filepath.Join(root, "index.php"), Line: 5, Sink: "echo", SinkType: "xss", Argument: 1,
				Safe: true,
			},
			{
				Path: filepath.Join(root, "lib", "db.php"), Line: 9, Sink: "system", SinkType: "exec", Argument: 1,
				Origins: []taint.Origin{{Name: "cmd", Kind: symbol.Variable}},
			},
			{
				Path: filepath.Join(root, "index.php"), Line: 2, Sink: "require_once", SinkType: "include", Argument: 1,
			},
		},
		Diagnostics: []taint.Diagnostic{{
			Path: filepath.Join(root, "lib", "db.php"), Line: 12, Function: "loop",
			Message: taint.ErrRecursionLimit.Error(), Err: taint.ErrRecursionLimit,
		}},
		Errors:   []*project.FileError{{Path: filepath.Join(root, "broken.php"), Err: errors.New("syntax error")}},
		Sinks:    map[string][]taint.SinkParam{"runq": {{Position: 2, Type: "sql"}}},
		Duration: 1500 * time.Millisecond,
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"sarif", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	r := New(sampleResult(), Options{Version: "1.2.3"})

	_, err := uuid.Parse(r.ID)
	assert.NoError(t, err)
	assert.Equal(t, "1.2.3", r.Version)
	assert.Equal(t, "1.5s", r.Duration)

	require.Len(t, r.Findings, 2, "safe finding hidden")
	assert.Equal(t, "index.php", r.Findings[0].Path)
	assert.Equal(t, "lib/db.php", r.Findings[1].Path)
	assert.Equal(t, "lib/db.php", r.Diagnostics[0].Path)
	assert.Equal(t, []FileError{{Path: "broken.php", Message: "syntax error"}}, r.Errors)

	assert.Equal(t, Summary{
		Files:       2,
		Findings:    2,
		BySinkType:  map[string]int{"sql": 1, "exec": 1},
		FromSource:  1,
		Errors:      1,
		Diagnostics: 1,
		UserSinks:   1,
	}, r.Summary)

	all := New(sampleResult(), Options{ShowSafe: true})
	assert.Len(t, all.Findings, 4)
	assert.Equal(t, 2, all.Summary.Findings, "safe findings are listed but not counted")
}

func TestNew_DistinctIDs(t *testing.T) {
	a := New(sampleResult(), Options{})
	b := New(sampleResult(), Options{})
	assert.NotEqual(t, a.ID, b.ID)
}

func TestWriteJSON(t *testing.T) {
	r := New(sampleResult(), Options{})
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatJSON))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.ID, decoded["id"])

	findings := decoded["findings"].([]interface{})
	require.Len(t, findings, 2)
	first := findings[0].(map[string]interface{})
	assert.Equal(t, "runq", first["sink"])
	assert.Equal(t, float64(2), first["argument"])
	origins := first["origins"].([]interface{})
	assert.Equal(t, "array_dim_fetch", origins[0].(map[string]interface{})["kind"])

	sinks := decoded["user_defined_sinks"].(map[string]interface{})
	assert.Contains(t, sinks, "runq")
}

func TestWriteJSON_EmptyFindingsIsArray(t *testing.T) {
	r := New(&project.Result{Root: "/x"}, Options{})
	var buf bytes.Buffer
	require.NoError(t, r.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"findings": []`)
}

func TestWriteText(t *testing.T) {
	r := New(sampleResult(), Options{ShowSafe: true})
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf, FormatText))
	out := buf.String()

	for _, want := range []string{
		"=== vulhunter report " + r.ID + " ===",
		"[sql] index.php:4 runq() argument 2 TAINTED",
		"    origins:  _GET[id]",
		"    notes:    request input, user-defined sink",
		"[xss] index.php:5 echo() argument 1 safe",
		"[include] index.php:2 require_once() argument 1 constant",
		"[exec] lib/db.php:9 system() argument 1 TAINTED",
		"Errors (1):",
		"  broken.php: syntax error",
		"Diagnostics (1):",
		"lib/db.php:12: loop: recursion limit reached",
		"Summary: 2 files, 2 findings (exec: 1, sql: 1), 1 errors, 1 user-defined sinks, 1.5s",
	} {
		assert.Contains(t, out, want)
	}
}

func TestWriteText_NoFindings(t *testing.T) {
	r := New(&project.Result{Root: "/x"}, Options{})
	var buf bytes.Buffer
	require.NoError(t, r.WriteText(&buf))
	assert.True(t, strings.Contains(buf.String(), "No findings."))
}

func TestWrite_UnknownFormat(t *testing.T) {
	r := New(&project.Result{}, Options{})
	assert.Error(t, r.Write(&bytes.Buffer{}, "xml"))
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteText_PropagatesWriteError(t *testing.T) {
	r := New(sampleResult(), Options{})
	assert.EqualError(t, r.WriteText(failingWriter{}), "disk full")
}
