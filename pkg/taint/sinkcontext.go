package taint

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// SinkParam is one dangerous parameter of a user-defined sink.
type SinkParam struct {
	// Position is 1-based.
	Position int    `msgpack:"position" json:"position"`
	Type     string `msgpack:"type" json:"type"`
}

// SinkContext memoizes user-defined functions proven to forward a parameter
// into a sink. It is safe for concurrent use. Names are case-insensitive,
// like PHP function names.
type SinkContext struct {
	mu    sync.RWMutex
	sinks map[string][]SinkParam
}

// NewSinkContext creates an empty sink context.
func NewSinkContext() *SinkContext {
	return &SinkContext{sinks: make(map[string][]SinkParam)}
}

func sinkKey(name string) string {
	return strings.ToLower(name)
}

// Get returns the dangerous parameters recorded for name.
func (c *SinkContext) Get(name string) ([]SinkParam, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	params, ok := c.sinks[sinkKey(name)]
	if !ok {
		return nil, false
	}
	return append([]SinkParam(nil), params...), true
}

// Add records dangerous parameters for name, merging with any existing
// entry. Adding the same parameters twice is a no-op.
func (c *SinkContext) Add(name string, params []SinkParam) {
	if len(params) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := sinkKey(name)
	merged := c.sinks[k]
	for _, p := range params {
		if !containsParam(merged, p) {
			merged = append(merged, p)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Position != merged[j].Position {
			return merged[i].Position < merged[j].Position
		}
		return merged[i].Type < merged[j].Type
	})
	c.sinks[k] = merged
}

func containsParam(list []SinkParam, p SinkParam) bool {
	for _, existing := range list {
		if existing == p {
			return true
		}
	}
	return false
}

// Len returns the number of memoized functions.
func (c *SinkContext) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sinks)
}

// Names returns the memoized function names, sorted.
func (c *SinkContext) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.sinks))
	for name := range c.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of every entry.
func (c *SinkContext) Snapshot() map[string][]SinkParam {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string][]SinkParam, len(c.sinks))
	for name, params := range c.sinks {
		out[name] = append([]SinkParam(nil), params...)
	}
	return out
}

// Save encodes the context with msgpack.
func (c *SinkContext) Save() ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(c.Snapshot()); err != nil {
		return nil, fmt.Errorf("encoding sink context: %w", err)
	}
	return buf.Bytes(), nil
}

// Load merges a msgpack snapshot produced by Save into the context.
func (c *SinkContext) Load(data []byte) error {
	var snapshot map[string][]SinkParam
	if err := msgpack.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("decoding sink context: %w", err)
	}
	for name, params := range snapshot {
		c.Add(name, params)
	}
	return nil
}

// SaveFile writes the snapshot to path, creating parent directories.
func (c *SinkContext) SaveFile(path string) error {
	data, err := c.Save()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating sink context dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing sink context: %w", err)
	}
	return nil
}

// LoadFile merges the snapshot stored at path. A missing file is not an
// error.
func (c *SinkContext) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading sink context: %w", err)
	}
	return c.Load(data)
}

// Session is the shared state of one analysis run over a project: the sink
// context and the set of callees already proven not to forward into a sink.
type Session struct {
	Sinks *SinkContext

	mu     sync.Mutex
	noSink map[string]bool
}

// NewSession creates a session with an empty sink context.
func NewSession() *Session {
	return &Session{
		Sinks:  NewSinkContext(),
		noSink: make(map[string]bool),
	}
}

func calleeKey(name, path string) string {
	return strings.ToLower(name) + "@" + path
}

func (s *Session) knownSafe(name, path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.noSink[calleeKey(name, path)]
}

func (s *Session) markSafe(name, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noSink[calleeKey(name, path)] = true
}
