// Package scanner walks a project tree and collects the PHP sources to
// analyze. It honours .vulhunterignore files with gitignore-style patterns.
package scanner

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileInfo represents information about a discovered file.
type FileInfo struct {
	Path     string // Relative path from root, slash separated
	FullPath string // Absolute path
	Size     int64  // File size in bytes
}

// Options configures the scanner behavior.
type Options struct {
	SkipHidden      bool     // Skip hidden files and directories (starting with .)
	FollowSymlinks  bool     // Follow file symlinks that stay within root
	DefaultExcludes []string // Directory names never descended into
	Extensions      []string // File extensions treated as PHP
	Exclude         []string // Extra patterns applied from the root
	IgnoreFileName  string   // Name of the ignore file (default: .vulhunterignore)
}

// DefaultOptions returns scanner options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		SkipHidden:     true,
		IgnoreFileName: ".vulhunterignore",
		Extensions:     []string{".php", ".phtml", ".inc", ".php5", ".php7"},
		DefaultExcludes: []string{
			".git",
			".hg",
			".svn",
			"node_modules",
			".idea",
			".vscode",
		},
	}
}

// IsPHP reports whether name has one of the configured PHP extensions.
func (o Options) IsPHP(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range o.Extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// scopedPattern is a pattern read from an ignore file in dir.
type scopedPattern struct {
	dir     string
	pattern IgnorePattern
}

// Scanner provides file tree scanning capabilities.
type Scanner struct {
	opts Options
}

// New creates a new Scanner with the given options.
func New(opts Options) *Scanner {
	if opts.IgnoreFileName == "" {
		opts.IgnoreFileName = ".vulhunterignore"
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultOptions().Extensions
	}
	return &Scanner{opts: opts}
}

// Scan walks root and returns the PHP files found, sorted by path.
// A root that is a single file is returned as is.
func (s *Scanner) Scan(root string) ([]FileInfo, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	if !info.IsDir() {
		return []FileInfo{{Path: filepath.Base(absRoot), FullPath: absRoot, Size: info.Size()}}, nil
	}

	var patterns []scopedPattern
	for _, p := range s.opts.Exclude {
		patterns = append(patterns, scopedPattern{pattern: ParseIgnorePattern(p)})
	}

	var files []FileInfo
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// unreadable entries are skipped, the walk continues
			if d != nil && d.IsDir() && path != absRoot {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if rel == "." {
			loaded, err := s.loadIgnoreFile(path, "")
			if err != nil {
				return err
			}
			patterns = append(patterns, loaded...)
			return nil
		}

		if s.opts.SkipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if s.isDefaultExcluded(d.Name()) || matchScoped(rel, true, patterns) {
				return filepath.SkipDir
			}
			loaded, err := s.loadIgnoreFile(path, rel)
			if err != nil {
				return err
			}
			patterns = append(patterns, loaded...)
			return nil
		}

		if !s.opts.IsPHP(d.Name()) || matchScoped(rel, false, patterns) {
			return nil
		}

		fi, ok := s.fileInfo(absRoot, path, d)
		if !ok {
			return nil
		}
		fi.Path = rel
		files = append(files, fi)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (s *Scanner) fileInfo(absRoot, path string, d fs.DirEntry) (FileInfo, bool) {
	if d.Type()&fs.ModeSymlink != 0 {
		if !s.opts.FollowSymlinks {
			return FileInfo{}, false
		}
		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return FileInfo{}, false
		}
		if !strings.HasPrefix(real, absRoot+string(filepath.Separator)) {
			return FileInfo{}, false
		}
		target, err := os.Stat(real)
		if err != nil || target.IsDir() {
			return FileInfo{}, false
		}
		return FileInfo{FullPath: path, Size: target.Size()}, true
	}
	info, err := d.Info()
	if err != nil {
		return FileInfo{}, false
	}
	return FileInfo{FullPath: path, Size: info.Size()}, true
}

func (s *Scanner) isDefaultExcluded(name string) bool {
	for _, exclude := range s.opts.DefaultExcludes {
		if strings.EqualFold(name, exclude) {
			return true
		}
	}
	return false
}

// loadIgnoreFile reads the ignore file in dir, scoping its patterns to rel.
func (s *Scanner) loadIgnoreFile(dir, rel string) ([]scopedPattern, error) {
	f, err := os.Open(filepath.Join(dir, s.opts.IgnoreFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	parsed, err := ParseIgnoreFile(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	out := make([]scopedPattern, len(parsed))
	for i, p := range parsed {
		out[i] = scopedPattern{dir: rel, pattern: p}
	}
	return out, nil
}

func matchScoped(rel string, isDir bool, patterns []scopedPattern) bool {
	out := false
	for _, sp := range patterns {
		sub := rel
		if sp.dir != "" {
			if !strings.HasPrefix(rel, sp.dir+"/") {
				continue
			}
			sub = strings.TrimPrefix(rel, sp.dir+"/")
		}
		if sp.pattern.Match(sub, isDir) {
			out = !sp.pattern.IsNegation()
		}
	}
	return out
}

// Scan is a convenience function that scans a directory with default options.
func Scan(root string) ([]FileInfo, error) {
	return New(DefaultOptions()).Scan(root)
}

// ScanWithOptions scans a directory with custom options.
func ScanWithOptions(root string, opts Options) ([]FileInfo, error) {
	return New(opts).Scan(root)
}
