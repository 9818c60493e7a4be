package callgraph

import (
	"sort"
	"strings"
	"sync"

	"github.com/l3aro/go-vulhunter/pkg/phpast"
)

// FunctionEntry represents a single function in the index with its metadata.
type FunctionEntry struct {
	// Name is the function or method name
	Name string
	// QualifiedName is "func" or "Class::method"
	QualifiedName string
	// FilePath is the path to the source file
	FilePath string
	// IsMethod indicates if this is a class method
	IsMethod bool
	// ParentName is the class name for methods
	ParentName string
	// LineNumber is the line where the function is defined
	LineNumber int
}

// ProjectIndex maps function names to the files declaring them. Keys are
// lowercased, since PHP function names are case-insensitive; methods are
// indexed under both "class::method" and the bare method name.
//
// The index is safe for concurrent use.
type ProjectIndex struct {
	mu sync.RWMutex

	entries         map[string][]FunctionEntry
	fileToFunctions map[string][]string
}

// NewProjectIndex creates a new empty project index.
func NewProjectIndex() *ProjectIndex {
	return &ProjectIndex{
		entries:         make(map[string][]FunctionEntry),
		fileToFunctions: make(map[string][]string),
	}
}

// AddFile indexes the functions and methods declared in a parsed file.
// Re-adding a file replaces its previous entries.
func (idx *ProjectIndex) AddFile(f *phpast.File) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeFileLocked(f.Path)
	var names []string
	for _, d := range phpast.Declarations(f.Stmts) {
		entry := FunctionEntry{
			Name:          d.Name,
			QualifiedName: d.QualifiedName(),
			FilePath:      f.Path,
			IsMethod:      d.Class != "",
			ParentName:    d.Class,
			LineNumber:    d.StartLine,
		}
		idx.addLocked(strings.ToLower(entry.QualifiedName), entry)
		if entry.IsMethod {
			idx.addLocked(strings.ToLower(entry.Name), entry)
		}
		names = append(names, entry.QualifiedName)
	}
	idx.fileToFunctions[f.Path] = names
}

func (idx *ProjectIndex) addLocked(key string, entry FunctionEntry) {
	list := append(idx.entries[key], entry)
	sort.SliceStable(list, func(i, j int) bool {
		// plain functions before methods sharing the bare name
		if list[i].IsMethod != list[j].IsMethod {
			return !list[i].IsMethod
		}
		return list[i].FilePath < list[j].FilePath
	})
	idx.entries[key] = list
}

func (idx *ProjectIndex) removeFileLocked(path string) {
	if _, ok := idx.fileToFunctions[path]; !ok {
		return
	}
	for key, list := range idx.entries {
		kept := list[:0]
		for _, e := range list {
			if e.FilePath != path {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(idx.entries, key)
		} else {
			idx.entries[key] = kept
		}
	}
	delete(idx.fileToFunctions, path)
}

// Lookup finds the declaration of a function by name. When several files
// declare the name, plain functions win over methods, then the
// lexicographically first path.
func (idx *ProjectIndex) Lookup(name string) (FunctionEntry, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	list := idx.entries[strings.ToLower(name)]
	if len(list) == 0 {
		return FunctionEntry{}, false
	}
	return list[0], true
}

// LookupAll returns every declaration of name.
func (idx *ProjectIndex) LookupAll(name string) []FunctionEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]FunctionEntry(nil), idx.entries[strings.ToLower(name)]...)
}

// GetFunctionsInFile returns the qualified names declared in a file.
func (idx *ProjectIndex) GetFunctionsInFile(filePath string) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return append([]string(nil), idx.fileToFunctions[filePath]...)
}

// IsIndexed reports whether a file has been added.
func (idx *ProjectIndex) IsIndexed(filePath string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.fileToFunctions[filePath]
	return ok
}

// IndexStats holds statistics about the project index.
type IndexStats struct {
	TotalFunctions int
	TotalFiles     int
}

// GetStats returns statistics about the index.
func (idx *ProjectIndex) GetStats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	total := 0
	for _, names := range idx.fileToFunctions {
		total += len(names)
	}
	return IndexStats{TotalFunctions: total, TotalFiles: len(idx.fileToFunctions)}
}
