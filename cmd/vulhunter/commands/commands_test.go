package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/go-vulhunter/internal/healthcheck"
	"github.com/l3aro/go-vulhunter/pkg/project"
	"github.com/l3aro/go-vulhunter/pkg/report"
	"github.com/l3aro/go-vulhunter/pkg/rules"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

var sampleProject = map[string]string{
	"lib.php": "<?php\nfunction runq($db, $q) {\n    return mysql_query($q, $db);\n}\n",
	"index.php": "<?php\nrequire_once 'lib.php';\n$id = $_GET['id'];\nrunq($conn, $id);\n" +
		"echo htmlspecialchars($id);\nnot_declared_anywhere($id);\n",
}

func TestRunScan(t *testing.T) {
	dir := writeFiles(t, sampleProject)

	s := &scanSettings{
		project:        project.Options{Rules: rules.Default(), Workers: 1},
		format:         report.FormatText,
		failOnFindings: true,
	}
	var out bytes.Buffer
	err := runScan(context.Background(), dir, s, &out)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFindings))
	assert.Contains(t, out.String(), "[sql] index.php:4 runq() argument 2 TAINTED")
}

func TestRunScan_OutputFile(t *testing.T) {
	dir := writeFiles(t, sampleProject)
	outPath := filepath.Join(t.TempDir(), "report.json")

	s := &scanSettings{
		project: project.Options{Workers: 2},
		format:  report.FormatJSON,
		output:  outPath,
	}
	var stdout bytes.Buffer
	require.NoError(t, runScan(context.Background(), dir, s, &stdout))
	assert.Empty(t, stdout.String())

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"sink": "runq"`)
}

func TestScanOptions(t *testing.T) {
	cmd := &cobra.Command{}
	addScanFlags(cmd)
	require.NoError(t, cmd.Flags().Parse([]string{"--format", "json", "--workers", "3", "--lenient", "--exclude", "vendor/"}))

	s, err := scanOptions(cmd, nil)
	require.NoError(t, err)
	assert.Equal(t, report.FormatJSON, s.format)
	assert.Equal(t, 3, s.project.Workers)
	assert.False(t, s.project.StrictParse)
	assert.Equal(t, []string{"vendor/"}, s.project.Scanner.Exclude)
	assert.NotNil(t, s.project.Rules)
}

func TestBuildCallGraph(t *testing.T) {
	dir := writeFiles(t, sampleProject)
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	out, err := buildCallGraph(cmd, dir)
	require.NoError(t, err)

	assert.Len(t, out.Files, 2)
	assert.Equal(t, 1, out.Stats.CrossFileEdges)
	require.Len(t, out.Edges, 1)
	assert.Equal(t, CallEdge{
		SourceFile: "index.php", SourceFunc: "{main}",
		DestFile: "lib.php", DestFunc: "runq", Line: 4,
	}, out.Edges[0])

	require.Len(t, out.Unresolved, 1)
	assert.Equal(t, "not_declared_anywhere", out.Unresolved[0].CallName)
}

func TestFormatStatusIcon(t *testing.T) {
	tests := []struct {
		status string
		want   string
	}{
		{healthcheck.StatusReady, "✓"},
		{healthcheck.StatusDisabled, "○"},
		{healthcheck.StatusError, "✗"},
		{"bogus", "?"},
	}
	for _, tt := range tests {
		if got := formatStatusIcon(tt.status); got != tt.want {
			t.Errorf("formatStatusIcon(%q) = %q, want %q", tt.status, got, tt.want)
		}
	}
}
