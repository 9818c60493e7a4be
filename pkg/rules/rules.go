// Package rules holds the sink, source, sanitizer and encoder tables that
// drive taint analysis. Tables are YAML; a default set is embedded.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// SinkRule describes one sink function and its dangerous arguments.
type SinkRule struct {
	Name string `yaml:"name"`
	// Positions are 1-based argument indexes.
	Positions []int  `yaml:"positions,omitempty,flow"`
	AllArgs   bool   `yaml:"all_args,omitempty"`
	Type      string `yaml:"type"`
}

// DangerousArgs returns the 1-based argument positions to trace for a call
// with argc arguments. Positions beyond argc are dropped.
func (r SinkRule) DangerousArgs(argc int) []int {
	if r.AllArgs {
		out := make([]int, 0, argc)
		for i := 1; i <= argc; i++ {
			out = append(out, i)
		}
		return out
	}
	out := make([]int, 0, len(r.Positions))
	for _, p := range r.Positions {
		if p <= argc {
			out = append(out, p)
		}
	}
	return out
}

// Rules is the set of lookup tables. Use Load or Default to build one; the
// zero value has empty tables.
type Rules struct {
	Sinks      []SinkRule `yaml:"sinks"`
	Sources    []string   `yaml:"sources"`
	Sanitizers []string   `yaml:"sanitizers"`
	Encoders   []string   `yaml:"encoders"`

	sinks      map[string]SinkRule
	sources    map[string]bool
	sanitizers map[string]bool
	encoders   map[string]bool
}

// ConfigError reports a malformed table entry.
type ConfigError struct {
	Index  int
	Name   string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("invalid sink rule #%d: %s", e.Index+1, e.Reason)
	}
	return fmt.Sprintf("invalid sink rule #%d (%s): %s", e.Index+1, e.Name, e.Reason)
}

// Default returns the embedded default tables.
func Default() *Rules {
	r, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("embedded rules are invalid: %v", err))
	}
	return r
}

// DefaultYAML returns the embedded default tables as YAML.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultRules...)
}

// Load reads tables from a YAML file. An empty path returns the defaults.
func Load(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return r, nil
}

// LoadMerged reads a tables file and merges it over the defaults. An empty
// path returns the defaults.
func LoadMerged(path string) (*Rules, error) {
	if path == "" {
		return Default(), nil
	}
	r, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Default().Merge(r), nil
}

// Parse decodes and validates YAML tables.
func Parse(data []byte) (*Rules, error) {
	r := &Rules{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	r.index()
	return r, nil
}

// Validate checks every sink entry.
func (r *Rules) Validate() error {
	for i, s := range r.Sinks {
		switch {
		case strings.TrimSpace(s.Name) == "":
			return &ConfigError{Index: i, Reason: "missing name"}
		case strings.TrimSpace(s.Type) == "":
			return &ConfigError{Index: i, Name: s.Name, Reason: "missing type"}
		case len(s.Positions) == 0 && !s.AllArgs:
			return &ConfigError{Index: i, Name: s.Name, Reason: "no dangerous argument positions"}
		}
		for _, p := range s.Positions {
			if p < 1 {
				return &ConfigError{Index: i, Name: s.Name, Reason: fmt.Sprintf("position %d is not 1-based", p)}
			}
		}
	}
	return nil
}

// index builds the lookup maps. PHP function names are case-insensitive.
func (r *Rules) index() {
	r.sinks = make(map[string]SinkRule, len(r.Sinks))
	for _, s := range r.Sinks {
		r.sinks[strings.ToLower(s.Name)] = s
	}
	r.sources = toSet(r.Sources)
	r.sanitizers = toSet(r.Sanitizers)
	r.encoders = toSet(r.Encoders)
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

// key normalizes a callee name for lookup: "Db::query" and "query" both
// match a "query" rule.
func key(name string) string {
	if idx := strings.LastIndex(name, "::"); idx >= 0 {
		name = name[idx+2:]
	}
	return strings.ToLower(name)
}

// IsSink looks up a sink rule by callee name.
func (r *Rules) IsSink(name string) (SinkRule, bool) {
	if r.sinks == nil {
		return SinkRule{}, false
	}
	s, ok := r.sinks[key(name)]
	return s, ok
}

// IsSanitizer reports whether name neutralizes tainted data.
func (r *Rules) IsSanitizer(name string) bool {
	return r.sanitizers[key(name)]
}

// IsEncoder reports whether name is an encoding function.
func (r *Rules) IsEncoder(name string) bool {
	return r.encoders[key(name)]
}

// IsSource reports whether a variable or function name is an untrusted
// input. Array accesses match on their base: "_GET[id]" matches "_GET".
func (r *Rules) IsSource(name string) bool {
	if idx := strings.IndexByte(name, '['); idx > 0 {
		name = name[:idx]
	}
	return r.sources[strings.ToLower(name)]
}

// Merge returns a new rule set with other's entries added. Sinks in other
// replace sinks with the same name.
func (r *Rules) Merge(other *Rules) *Rules {
	merged := &Rules{
		Sources:    mergeNames(r.Sources, other.Sources),
		Sanitizers: mergeNames(r.Sanitizers, other.Sanitizers),
		Encoders:   mergeNames(r.Encoders, other.Encoders),
	}
	replaced := make(map[string]bool)
	for _, s := range other.Sinks {
		replaced[strings.ToLower(s.Name)] = true
	}
	for _, s := range r.Sinks {
		if !replaced[strings.ToLower(s.Name)] {
			merged.Sinks = append(merged.Sinks, s)
		}
	}
	merged.Sinks = append(merged.Sinks, other.Sinks...)
	merged.index()
	return merged
}

func mergeNames(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, n := range append(append([]string(nil), a...), b...) {
		if !seen[strings.ToLower(n)] {
			seen[strings.ToLower(n)] = true
			out = append(out, n)
		}
	}
	return out
}

// SinkTypes returns the distinct sink types, sorted.
func (r *Rules) SinkTypes() []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range r.Sinks {
		if !seen[s.Type] {
			seen[s.Type] = true
			out = append(out, s.Type)
		}
	}
	sort.Strings(out)
	return out
}

// Marshal encodes the tables as YAML.
func (r *Rules) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rules: %w", err)
	}
	return data, nil
}
