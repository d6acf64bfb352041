package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/groundwork/internal/cli"
	"github.com/cloo-solutions/groundwork/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "groundwork",
		Short: "Groundwork CLI - answers with citations from your documents",
		Long: `Groundwork CLI ingests documents and asks questions that are answered only
from indexed evidence, with citations.

Environment variables:
  GROUNDWORK_API_KEY   API key for authentication (required)
  GROUNDWORK_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
		Annotations: map[string]string{
			cli.EnvAnnotation: "GROUNDWORK_API_KEY,GROUNDWORK_API_URL",
		},
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.GetCmd())
	rootCmd.AddCommand(client.DeleteCmd())
	rootCmd.AddCommand(client.LineageCmd())
	rootCmd.AddCommand(client.ReplayCmd())
	rootCmd.AddCommand(client.EvalCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
