package main

import (
	"fmt"
	"os"

	"github.com/counsel-labs/lexrag/internal/cli"
	"github.com/counsel-labs/lexrag/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lexragd",
		Short: "Lexrag daemon and admin CLI",
		Long:  "Lexrag daemon for running the API server and managing tenants, API keys and quotas",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.TenantCmd())
	rootCmd.AddCommand(admin.APIKeyCmd())
	rootCmd.AddCommand(admin.QuotaCmd())
	rootCmd.AddCommand(admin.UsageCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
