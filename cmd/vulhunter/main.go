// Package main implements the vulhunter CLI.
// It scans PHP projects for tainted sink calls and exposes the underlying
// control-flow graphs, call graphs and rule tables.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/l3aro/go-vulhunter/cmd/vulhunter/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.Version = version
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = fmt.Sprintf("%s (built %s)", version, buildTime)
	}
	commands.RootCmd.Flags().BoolP("version", "v", false, "Print version information")
	commands.RootCmd.SetVersionTemplate(`vulhunter version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		if !errors.Is(err, commands.ErrFindings) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
