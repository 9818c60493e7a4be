package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/go-vulhunter/pkg/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective sink, source and sanitizer tables",
	Long: `Prints the built-in rule tables merged with the configured rules file
as YAML. The output is a valid rules file and can be edited and passed
back with --rules.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("rules")
		if path == "" && appConfig != nil {
			path = appConfig.RulesFile
		}

		var (
			r   *rules.Rules
			err error
		)
		if builtin, _ := cmd.Flags().GetBool("builtin"); builtin {
			r = rules.Default()
		} else if r, err = rules.LoadMerged(path); err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if types, _ := cmd.Flags().GetBool("types"); types {
			for _, t := range r.SinkTypes() {
				fmt.Fprintln(w, t)
			}
			return nil
		}

		data, err := r.Marshal()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	},
}

func init() {
	rulesCmd.Flags().String("rules", "", "YAML tables merged over the built-in rules")
	rulesCmd.Flags().Bool("builtin", false, "Print only the built-in tables")
	rulesCmd.Flags().Bool("types", false, "List the sink types only")
	RootCmd.AddCommand(rulesCmd)
}
