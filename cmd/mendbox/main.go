package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "mendbox",
	Short: "Mendbox - sandboxed runner and self-healer for Python projects",
	Long: `Mendbox runs multi-file Python projects inside disposable containers and
can heal failing ones by round-tripping their errors through an LLM.

  mendbox run --dir ./project                  Run a project once
  mendbox heal --dir ./project --out ./fixed   Repair a project and save the result`,
	Version: version,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
