package main

import (
	"fmt"
	"os"

	"github.com/counsel-labs/lexrag/internal/cli"
	"github.com/counsel-labs/lexrag/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "lexrag",
		Short: "Lexrag CLI - Legal document search and question answering",
		Long: `Lexrag CLI provides commands to search legal documents and ask questions over them.

Environment variables:
  LEXRAG_API_KEY   API key for authentication (required)
  LEXRAG_API_URL   API base URL (default: http://localhost:8080)`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	rootCmd.PersistentFlags().String("api-key", "", "API key for authentication (overrides env and config)")
	rootCmd.PersistentFlags().String("api-url", "", "API base URL (overrides env and config)")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.DocCmd())
	rootCmd.AddCommand(client.UsageCmd())
	rootCmd.AddCommand(client.QuotaCmd())
	rootCmd.AddCommand(client.AuthCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
