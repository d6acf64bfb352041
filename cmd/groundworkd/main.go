package main

import (
	"fmt"
	"os"

	"github.com/cloo-solutions/groundwork/internal/cli"
	"github.com/cloo-solutions/groundwork/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "groundworkd",
		Short: "Groundwork daemon and admin CLI",
		Long:  "Groundwork daemon for running the API server, migrations, organizations, API keys and local ingestion",
		Annotations: map[string]string{
			cli.EnvAnnotation: "GROUNDWORK_DATABASE_URL,GROUNDWORK_EMBEDDING_BACKEND,GROUNDWORK_ANSWER_BACKEND,GROUNDWORK_OPENAI_API_KEY",
		},
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())
	rootCmd.AddCommand(admin.OrgCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())
	rootCmd.AddCommand(admin.IngestCmd())
	rootCmd.AddCommand(admin.ReplayCmd())
	rootCmd.AddCommand(admin.AskCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
