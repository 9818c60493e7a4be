package callgraph

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/l3aro/go-vulhunter/internal/log"
	"github.com/l3aro/go-vulhunter/pkg/cache"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
)

// DefaultCacheSize is the number of parsed files kept by a Resolver.
const DefaultCacheSize = 256

// Body is a resolved function declaration and the file declaring it.
type Body struct {
	Decl *phpast.FunctionDecl
	Path string
}

// Options configures a Resolver.
type Options struct {
	// Root is the project root used to resolve include paths.
	Root string
	// Parser parses files on demand. Defaults to a lenient parser.
	Parser *phpast.Parser
	// CacheSize bounds the parsed-file cache.
	CacheSize int
	// Index is consulted after the current file and its includes.
	Index  *ProjectIndex
	Logger log.Logger
}

// Resolver finds function bodies by name: first in the calling file, then
// in the files it includes, then in the project index. Parsed files are kept
// in an LRU cache. It is safe for concurrent use.
type Resolver struct {
	root   string
	parser *phpast.Parser
	files  *cache.LRU[string, *phpast.File]
	index  *ProjectIndex
	logger log.Logger
}

// NewResolver creates a resolver.
func NewResolver(opts Options) *Resolver {
	r := &Resolver{
		root:   opts.Root,
		parser: opts.Parser,
		index:  opts.Index,
		logger: opts.Logger,
	}
	if r.parser == nil {
		r.parser = phpast.NewParser(false)
	}
	if r.index == nil {
		r.index = NewProjectIndex()
	}
	if r.logger == nil {
		r.logger = log.Nop()
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	r.files = cache.New(cache.Options[string, *phpast.File]{MaxSize: size})
	return r
}

// Index returns the project index.
func (r *Resolver) Index() *ProjectIndex {
	return r.index
}

// CacheStats reports parsed-file cache usage.
func (r *Resolver) CacheStats() cache.Stats {
	return r.files.Stats()
}

// Add registers an already parsed file: it is cached and indexed.
func (r *Resolver) Add(f *phpast.File) {
	r.files.Set(filepath.Clean(f.Path), f)
	r.index.AddFile(f)
}

// File returns the parsed file at path, parsing it on a cache miss.
func (r *Resolver) File(path string) (*phpast.File, error) {
	path = filepath.Clean(path)
	return r.files.GetOrLoad(path, func() (*phpast.File, error) {
		f, err := r.parser.ParseFile(context.Background(), path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		if !r.index.IsIndexed(f.Path) {
			r.index.AddFile(f)
		}
		return f, nil
	})
}

// ResolveBody implements the callee lookup used by the taint engine.
func (r *Resolver) ResolveBody(name, path string, includes []string) (*Body, bool) {
	if name == "" {
		return nil, false
	}
	if body, ok := r.findIn(name, path); ok {
		return body, true
	}
	for _, inc := range includes {
		for _, candidate := range r.IncludeCandidates(path, inc) {
			if body, ok := r.findIn(name, candidate); ok {
				return body, true
			}
		}
	}

	key := name
	if cls, method := splitQualified(name); isRelativeClass(cls) {
		key = method
	}
	entry, ok := r.index.Lookup(key)
	if !ok {
		return nil, false
	}
	return r.findIn(name, entry.FilePath)
}

func (r *Resolver) findIn(name, path string) (*Body, bool) {
	if path == "" {
		return nil, false
	}
	f, err := r.File(path)
	if err != nil {
		r.logger.Debug("skipping unreadable file during lookup", "file", path, "error", err)
		return nil, false
	}
	decl, ok := FindFunction(f, name)
	if !ok {
		return nil, false
	}
	return &Body{Decl: decl, Path: f.Path}, true
}

// IncludeCandidates returns the existing files an include target may refer
// to, tried relative to the including file's directory and then to the
// project root.
func (r *Resolver) IncludeCandidates(from, target string) []string {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil
	}
	var candidates []string
	if filepath.IsAbs(target) {
		candidates = append(candidates, target)
	}
	rel := strings.TrimPrefix(strings.TrimPrefix(target, "./"), "/")
	candidates = append(candidates, filepath.Join(filepath.Dir(from), rel))
	if r.root != "" {
		candidates = append(candidates, filepath.Join(r.root, rel))
	}

	var out []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		c = filepath.Clean(c)
		if seen[c] {
			continue
		}
		seen[c] = true
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			out = append(out, c)
		}
	}
	return out
}

// FindFunction finds a declaration in f. name is a function name, a
// "Class::method" pair, or a bare method name. self::, static:: and
// parent:: match a method of any class.
func FindFunction(f *phpast.File, name string) (*phpast.FunctionDecl, bool) {
	cls, method := splitQualified(name)
	decls := phpast.Declarations(f.Stmts)
	for _, d := range decls {
		if !strings.EqualFold(d.Name, method) {
			continue
		}
		if cls == "" && d.Class == "" {
			return d, true
		}
		if cls != "" && strings.EqualFold(d.Class, cls) {
			return d, true
		}
	}
	if cls != "" && !isRelativeClass(cls) {
		return nil, false
	}
	for _, d := range decls {
		if d.Class != "" && strings.EqualFold(d.Name, method) {
			return d, true
		}
	}
	return nil, false
}

func splitQualified(name string) (cls, method string) {
	if idx := strings.LastIndex(name, "::"); idx >= 0 {
		return name[:idx], name[idx+2:]
	}
	return "", name
}

func isRelativeClass(cls string) bool {
	switch strings.ToLower(cls) {
	case "self", "static", "parent":
		return true
	}
	return false
}
