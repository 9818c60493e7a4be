package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-vulhunter/internal/scanner"
	"github.com/l3aro/go-vulhunter/pkg/callgraph"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/rules"
)

// CallGraphOutput represents the output of the calls command
type CallGraphOutput struct {
	RootDir    string                     `json:"root_dir"`
	Stats      CallGraphStats             `json:"stats"`
	Files      []*callgraph.FileCallGraph `json:"files"`
	Edges      []CallEdge                 `json:"edges,omitempty"`
	Unresolved []UnresolvedCall           `json:"unresolved,omitempty"`
}

// CallGraphStats represents statistics about the call graph
type CallGraphStats struct {
	TotalCalls      int `json:"total_calls"`
	IntraFileEdges  int `json:"intra_file_edges"`
	CrossFileEdges  int `json:"cross_file_edges"`
	UnresolvedCalls int `json:"unresolved_calls"`
	SkippedFiles    int `json:"skipped_files"`
}

// CallEdge is a call resolved to a user-defined function.
type CallEdge struct {
	SourceFile string `json:"source_file"`
	SourceFunc string `json:"source_func"`
	DestFile   string `json:"dest_file"`
	DestFunc   string `json:"dest_func"`
	Line       int    `json:"line"`
}

// UnresolvedCall represents a call to a function neither declared in the
// project nor listed in the rule tables.
type UnresolvedCall struct {
	CallerFile string `json:"caller_file"`
	CallerFunc string `json:"caller_func"`
	CallName   string `json:"call_name"`
	Line       int    `json:"line"`
}

// callsCmd represents the calls command
var callsCmd = &cobra.Command{
	Use:   "calls [path]",
	Short: "Build the call graph of a file or project",
	Long: `Parses every PHP file under path and lists, per function, the calls it
makes. Calls to functions declared elsewhere in the project become
cross-file edges; the interprocedural taint analysis follows the same edges.`,
	Args: cobra.RangeArgs(0, 1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) > 0 {
			path = args[0]
		}
		output, err := buildCallGraph(cmd, path)
		if err != nil {
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(output, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		}
		printCallGraph(cmd, output)
		return nil
	},
}

func buildCallGraph(cmd *cobra.Command, path string) (*CallGraphOutput, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat path: %w", err)
	}
	rootDir := absPath
	if !info.IsDir() {
		rootDir = filepath.Dir(absPath)
	}

	opts := scanner.DefaultOptions()
	if appConfig != nil {
		opts.Exclude = appConfig.Exclude
	}
	files, err := scanner.New(opts).Scan(absPath)
	if err != nil {
		return nil, fmt.Errorf("scanning directory: %w", err)
	}

	tables := rules.Default()
	if appConfig != nil {
		if tables, err = rules.LoadMerged(appConfig.RulesFile); err != nil {
			return nil, err
		}
	}

	output := &CallGraphOutput{RootDir: rootDir}
	parser := phpast.NewParser(false)
	index := callgraph.NewProjectIndex()
	var parsed []*phpast.File
	for _, fi := range files {
		f, err := parser.ParseFile(cmd.Context(), fi.FullPath)
		if err != nil {
			logger.Warn("file skipped", "file", fi.FullPath, "error", err)
			output.Stats.SkippedFiles++
			continue
		}
		index.AddFile(f)
		parsed = append(parsed, f)
	}

	rel := func(p string) string {
		if r, err := filepath.Rel(rootDir, p); err == nil {
			return filepath.ToSlash(r)
		}
		return p
	}

	for _, f := range parsed {
		g := callgraph.BuildFileCallGraph(f)
		g.FilePath = rel(f.Path)
		output.Files = append(output.Files, g)

		for _, caller := range g.GetAllFunctions() {
			for _, call := range g.GetCalls(caller) {
				output.Stats.TotalCalls++
				if call.Type == callgraph.ConstructCall || call.Type == callgraph.MethodCall {
					continue
				}
				if call.Type == callgraph.LocalCall {
					output.Stats.IntraFileEdges++
					output.Edges = append(output.Edges, CallEdge{
						SourceFile: g.FilePath, SourceFunc: caller,
						DestFile: g.FilePath, DestFunc: call.Name, Line: call.LineNumber,
					})
					continue
				}
				if entry, ok := index.Lookup(call.Name); ok {
					output.Stats.CrossFileEdges++
					output.Edges = append(output.Edges, CallEdge{
						SourceFile: g.FilePath, SourceFunc: caller,
						DestFile: rel(entry.FilePath), DestFunc: entry.QualifiedName, Line: call.LineNumber,
					})
					continue
				}
				if known(tables, call.Name) {
					continue
				}
				output.Stats.UnresolvedCalls++
				output.Unresolved = append(output.Unresolved, UnresolvedCall{
					CallerFile: g.FilePath, CallerFunc: caller, CallName: call.Name, Line: call.LineNumber,
				})
			}
		}
	}

	sort.SliceStable(output.Edges, func(i, j int) bool {
		a, b := output.Edges[i], output.Edges[j]
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.Line < b.Line
	})
	return output, nil
}

func known(r *rules.Rules, name string) bool {
	if _, ok := r.IsSink(name); ok {
		return true
	}
	return r.IsSanitizer(name) || r.IsEncoder(name) || r.IsSource(name)
}

func printCallGraph(cmd *cobra.Command, output *CallGraphOutput) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "=== Call Graph: %s ===\n\n", output.RootDir)

	fmt.Fprintf(w, "Statistics:\n")
	fmt.Fprintf(w, "  Total calls: %d\n", output.Stats.TotalCalls)
	fmt.Fprintf(w, "  Intra-file edges: %d\n", output.Stats.IntraFileEdges)
	fmt.Fprintf(w, "  Cross-file edges: %d\n", output.Stats.CrossFileEdges)
	fmt.Fprintf(w, "  Unresolved calls: %d\n", output.Stats.UnresolvedCalls)
	if output.Stats.SkippedFiles > 0 {
		fmt.Fprintf(w, "  Skipped files: %d\n", output.Stats.SkippedFiles)
	}

	if len(output.Edges) > 0 {
		fmt.Fprintln(w, "\nEdges:")
		for _, edge := range output.Edges {
			fmt.Fprintf(w, "  %s:%s -> %s:%s (line %d)\n",
				edge.SourceFile, edge.SourceFunc,
				edge.DestFile, edge.DestFunc, edge.Line)
		}
	}

	if len(output.Unresolved) > 0 {
		fmt.Fprintln(w, "\nUnresolved calls:")
		for _, u := range output.Unresolved {
			fmt.Fprintf(w, "  %s:%s calls %s (line %d)\n",
				u.CallerFile, u.CallerFunc, u.CallName, u.Line)
		}
	}
}

func init() {
	callsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	RootCmd.AddCommand(callsCmd)
}
