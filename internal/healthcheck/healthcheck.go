package healthcheck

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/l3aro/go-vulhunter/internal/config"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/rules"
	"github.com/l3aro/go-vulhunter/pkg/taint"
)

// Status values reported for a component.
const (
	StatusReady    = "ready"
	StatusEmpty    = "empty"
	StatusDisabled = "disabled"
	StatusError    = "error"
)

// ComponentStatus represents the health of one piece of the analysis setup.
type ComponentStatus struct {
	Name   string
	Detail string // e.g. the file in use
	Status string // "ready", "empty", "disabled" or "error"
	Error  string
}

// HealthCheckResult contains the full health check output for display.
type HealthCheckResult struct {
	SavedPath      string
	SavedScope     string // "global" or "project"
	EffectivePath  string
	EffectiveScope string // "global" or "project"
	Rules          ComponentStatus
	Parser         ComponentStatus
	SinkContext    ComponentStatus
}

// OK reports whether no component is in error.
func (r *HealthCheckResult) OK() bool {
	for _, c := range r.Components() {
		if c.Status == StatusError {
			return false
		}
	}
	return true
}

// Components returns the checked components in display order.
func (r *HealthCheckResult) Components() []ComponentStatus {
	return []ComponentStatus{r.Rules, r.Parser, r.SinkContext}
}

// Check performs a health check against the given config.
// savedPath is where the user saved config (may be empty outside init).
// effectivePath is the config file actually in use (considering priority).
func Check(cfg *config.Config, savedPath string, effectivePath string) (*HealthCheckResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	return &HealthCheckResult{
		SavedPath:      savedPath,
		SavedScope:     scopeFromPath(savedPath),
		EffectivePath:  effectivePath,
		EffectiveScope: scopeFromPath(effectivePath),
		Rules:          checkRules(cfg.RulesFile),
		Parser:         checkParser(),
		SinkContext:    checkSinkContext(cfg.SinkContextFile),
	}, nil
}

// scopeFromPath determines "global" or "project" scope from a config file path.
// Returns empty string if path is empty.
func scopeFromPath(path string) string {
	if path == "" {
		return ""
	}

	home, err := os.UserHomeDir()
	if err == nil {
		globalDir := filepath.Join(home, ".vulhunter")
		if strings.HasPrefix(path, globalDir) {
			return "global"
		}
	}

	return "project"
}

// checkRules loads the sink, source and sanitizer tables the scan would use.
func checkRules(path string) ComponentStatus {
	status := ComponentStatus{Name: "rules", Detail: "built-in"}
	if path != "" {
		status.Detail = path
	}

	r, err := rules.LoadMerged(path)
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	status.Detail += fmt.Sprintf(" (%d sinks, %d sanitizers, %d sources)", len(r.Sinks), len(r.Sanitizers), len(r.Sources))
	return status
}

const parserProbe = `<?php
if ($x) { echo $_GET['a']; }
`

// checkParser parses a small probe to verify the tree-sitter grammar works.
func checkParser() ComponentStatus {
	status := ComponentStatus{Name: "parser", Detail: "tree-sitter php"}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	f, err := phpast.NewParser(true).Parse(ctx, "probe.php", []byte(parserProbe))
	if err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	if len(f.Stmts) == 0 {
		status.Status = StatusError
		status.Error = "probe produced no statements"
		return status
	}
	status.Status = StatusReady
	return status
}

// checkSinkContext verifies a persisted sink context can be decoded.
func checkSinkContext(path string) ComponentStatus {
	status := ComponentStatus{Name: "sink context", Detail: path}
	if path == "" {
		status.Status = StatusDisabled
		return status
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		status.Status = StatusEmpty
		return status
	}

	sc := taint.NewSinkContext()
	if err := sc.LoadFile(path); err != nil {
		status.Status = StatusError
		status.Error = err.Error()
		return status
	}
	status.Status = StatusReady
	status.Detail = fmt.Sprintf("%s (%d user-defined sinks)", path, sc.Len())
	return status
}
