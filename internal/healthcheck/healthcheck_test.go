package healthcheck

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/l3aro/go-vulhunter/internal/config"
	"github.com/l3aro/go-vulhunter/pkg/taint"
)

func TestCheckWithNilConfig(t *testing.T) {
	_, err := Check(nil, "", "")
	if err == nil {
		t.Error("Expected error for nil config, got nil")
	}
}

func TestCheckDefaults(t *testing.T) {
	result, err := Check(config.DefaultConfig(), "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}

	if result.Rules.Status != StatusReady {
		t.Errorf("Rules.Status = %q, want %q (%s)", result.Rules.Status, StatusReady, result.Rules.Error)
	}
	if !strings.HasPrefix(result.Rules.Detail, "built-in (") {
		t.Errorf("Rules.Detail = %q, want built-in tables", result.Rules.Detail)
	}
	if result.Parser.Status != StatusReady {
		t.Errorf("Parser.Status = %q, want %q (%s)", result.Parser.Status, StatusReady, result.Parser.Error)
	}
	if result.SinkContext.Status != StatusDisabled {
		t.Errorf("SinkContext.Status = %q, want %q", result.SinkContext.Status, StatusDisabled)
	}
	if !result.OK() {
		t.Error("Expected OK() for default config")
	}
}

func TestCheckInvalidRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("sinks:\n  - {name: f, positions: [0], type: sql}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := config.DefaultConfig()
	cfg.RulesFile = path

	result, err := Check(cfg, "", "")
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Rules.Status != StatusError {
		t.Errorf("Rules.Status = %q, want %q", result.Rules.Status, StatusError)
	}
	if !strings.Contains(result.Rules.Error, "not 1-based") {
		t.Errorf("Rules.Error = %q, want position error", result.Rules.Error)
	}
	if result.OK() {
		t.Error("Expected OK() to be false")
	}
}

func TestCheckSinkContext(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name       string
		setup      func(path string)
		wantStatus string
	}{
		{
			name:       "missing file",
			setup:      func(string) {},
			wantStatus: StatusEmpty,
		},
		{
			name: "valid snapshot",
			setup: func(path string) {
				sc := taint.NewSinkContext()
				sc.Add("runq", []taint.SinkParam{{Position: 2, Type: "sql"}})
				if err := sc.SaveFile(path); err != nil {
					t.Fatal(err)
				}
			},
			wantStatus: StatusReady,
		},
		{
			name: "corrupt snapshot",
			setup: func(path string) {
				if err := os.WriteFile(path, []byte{0xc1}, 0644); err != nil {
					t.Fatal(err)
				}
			},
			wantStatus: StatusError,
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, string(rune('a'+i))+".msgpack")
			tt.setup(path)

			status := checkSinkContext(path)
			if status.Status != tt.wantStatus {
				t.Errorf("Status = %q, want %q (%s)", status.Status, tt.wantStatus, status.Error)
			}
		})
	}
}

func TestScopeFromPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		path string
		want string
	}{
		{"", ""},
		{filepath.Join(home, ".vulhunter", "config.yaml"), "global"},
		{filepath.Join(".vulhunter", "config.yaml"), "project"},
	}
	for _, tt := range tests {
		if got := scopeFromPath(tt.path); got != tt.want {
			t.Errorf("scopeFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
