package commands

import (
	"fmt"
	"os"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-vulhunter/internal/scanner"
	"github.com/l3aro/go-vulhunter/pkg/callgraph"
	"github.com/l3aro/go-vulhunter/pkg/cfg"
	"github.com/l3aro/go-vulhunter/pkg/phpast"
	"github.com/l3aro/go-vulhunter/pkg/taint"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <file> [function]",
	Short: "Show the control-flow graph of a file or function",
	Long: `Builds the control-flow graph of a PHP file's top-level code, or of one
function or Class::method, and prints its blocks, edges and per-block
data-flow summaries. Use --dot for Graphviz output.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		filePath := args[0]

		st, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("stat file: %w", err)
		}
		if st.IsDir() {
			return fmt.Errorf("path is a directory, expected a file: %s", filePath)
		}
		if !scanner.DefaultOptions().IsPHP(filePath) {
			return fmt.Errorf("unsupported file type: %s (expected a PHP file)", filePath)
		}

		lenient, _ := cmd.Flags().GetBool("lenient")
		f, err := phpast.NewParser(!lenient).ParseFile(cmd.Context(), filePath)
		if err != nil {
			return err
		}

		engine := taint.New(taint.Options{Logger: logger})
		var (
			graph *cfg.Graph
			name  string
			info  *cfg.CFGInfo
		)
		if len(args) == 2 {
			decl, ok := callgraph.FindFunction(f, args[1])
			if !ok {
				return fmt.Errorf("function %q not found in %s: %w", args[1], filePath, taint.ErrNotFound)
			}
			b := cfg.NewBuilder(cfg.SummarizerFunc(engine.Summarize))
			b.Build(decl.Body, nil, cfg.NoBlock, cfg.NoBlock)
			graph, name = b.Graph(), decl.QualifiedName()
			info = graph.Info(name)
			info.Includes = b.Includes()
		} else {
			res := engine.AnalyzeFile(f)
			graph, name = res.Graph, "{main}"
			info = graph.Info(name)
			info.Includes = res.Includes
		}

		out := cmd.OutOrStdout()
		if dot, _ := cmd.Flags().GetBool("dot"); dot {
			data, err := graph.DOT(name)
			if err != nil {
				return fmt.Errorf("rendering DOT: %w", err)
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		}

		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			data, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			_, err = fmt.Fprintln(out, string(data))
			return err
		}

		printCFGInfo(cmd, info)
		return nil
	},
}

// printCFGInfo prints CFG information in human-readable format.
func printCFGInfo(cmd *cobra.Command, info *cfg.CFGInfo) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "=== CFG for: %s ===\n", info.Name)
	fmt.Fprintf(w, "Cyclomatic Complexity: %d\n", info.CyclomaticComplexity)
	fmt.Fprintf(w, "Acyclic: %t\n", info.Acyclic)
	fmt.Fprintf(w, "Entry Block: %d\n", info.EntryBlockID)
	fmt.Fprintf(w, "Exit Blocks: %v\n", info.ExitBlockIDs)
	if len(info.Unreachable) > 0 {
		fmt.Fprintf(w, "Unreachable Blocks: %v\n", info.Unreachable)
	}
	if len(info.Includes) > 0 {
		fmt.Fprintf(w, "Includes: %v\n", info.Includes)
	}

	fmt.Fprintf(w, "\nBlocks (%d):\n", len(info.Blocks))
	for _, block := range info.Blocks {
		fmt.Fprintf(w, "  #%d (%s, lines %d-%d)\n", block.ID, block.Type, block.StartLine, block.EndLine)
		for _, stmt := range block.Statements {
			fmt.Fprintf(w, "    %s\n", stmt)
		}
		for _, line := range block.Summary {
			fmt.Fprintf(w, "    | %s\n", line)
		}
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(info.Edges))
	for _, edge := range info.Edges {
		if edge.Condition != "" {
			fmt.Fprintf(w, "  #%d --%s [%s]--> #%d\n", edge.SourceID, edge.EdgeType, edge.Condition, edge.TargetID)
			continue
		}
		fmt.Fprintf(w, "  #%d --%s--> #%d\n", edge.SourceID, edge.EdgeType, edge.TargetID)
	}
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().Bool("dot", false, "Output as Graphviz DOT")
	cfgCmd.Flags().Bool("lenient", false, "Accept files with syntax errors")
	RootCmd.AddCommand(cfgCmd)
}
