package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tpelligrinomid/midrag/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "midragd",
		Short: "Midrag daemon and CLI",
		Long:  "Midrag daemon for running the retrieval API server and ingesting documents",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.IngestCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
