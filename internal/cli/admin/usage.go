package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/counsel-labs/lexrag/internal/pagination"
	"github.com/counsel-labs/lexrag/internal/repository"
	"github.com/spf13/cobra"
)

func UsageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect tenant usage",
		Long:  "Show usage summaries and raw usage records for a tenant",
	}

	cmd.AddCommand(UsageSummaryCmd())
	cmd.AddCommand(UsageRecordsCmd())

	return cmd
}

func UsageSummaryCmd() *cobra.Command {
	var (
		year  int
		month int
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show a tenant's monthly usage summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantRef, _ := cmd.Flags().GetString("tenant")
			outputFormat, _ := cmd.Flags().GetString("output")
			return runUsageSummary(tenantRef, outputFormat, year, month)
		},
	}

	now := time.Now().UTC()
	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVar(&year, "year", now.Year(), "Year to summarize")
	cmd.Flags().IntVar(&month, "month", int(now.Month()), "Month to summarize (1-12)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runUsageSummary(tenantRef, outputFormat string, year, month int) error {
	ctx := context.Background()

	_, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	usageRepo := repository.NewUsageRepository(pool)

	tenant, err := resolveTenant(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

	summary, err := usageRepo.MonthlySummary(ctx, tenant, year, month)
	if err != nil {
		return fmt.Errorf("failed to get usage summary: %w", err)
	}

	if outputFormat == "json" {
		jsonBytes, _ := json.MarshalIndent(summary, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Usage for tenant %s, %04d-%02d:\n", tenant.ID, year, month)
		fmt.Printf("  Queries: %d\n", summary.QueryCount)
		fmt.Printf("  Tokens:  %d\n", summary.TotalTokens)
		fmt.Printf("  Cost:    $%.4f\n", summary.TotalCost)
		if len(summary.ByModel) > 0 {
			fmt.Println("  By model:")
			for _, m := range summary.ByModel {
				fmt.Printf("    %s: %d queries, %d tokens, $%.4f\n", m.Model, m.QueryCount, m.TotalTokens, m.TotalCost)
			}
		}
	}

	return nil
}

func UsageRecordsCmd() *cobra.Command {
	var (
		limit  int
		cursor string
	)

	cmd := &cobra.Command{
		Use:   "records",
		Short: "List a tenant's raw usage records",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantRef, _ := cmd.Flags().GetString("tenant")
			outputFormat, _ := cmd.Flags().GetString("output")
			return runUsageRecords(tenantRef, outputFormat, limit, cursor)
		},
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runUsageRecords(tenantRef, outputFormat string, limit int, cursorStr string) error {
	ctx := context.Background()

	_, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	usageRepo := repository.NewUsageRepository(pool)

	tenant, err := resolveTenant(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

	cursor, _ := pagination.DecodeCursor(cursorStr)
	page, err := usageRepo.List(ctx, tenant, cursor, limit)
	if err != nil {
		return fmt.Errorf("failed to list usage records: %w", err)
	}

	if outputFormat == "json" {
		output := map[string]interface{}{
			"items":    page.Items,
			"cursor":   page.NextCursor,
			"has_more": page.HasMore,
		}
		jsonBytes, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(page.Items) == 0 {
			fmt.Printf("No usage records for tenant %s\n", tenant.ID)
			return nil
		}
		fmt.Printf("Usage records for tenant %s:\n", tenant.ID)
		for _, rec := range page.Items {
			fmt.Printf("  %s  %s  %d tokens  $%.4f  (%s)\n",
				rec.RecordedAt.Format("2006-01-02 15:04:05"), rec.Model, rec.TotalTokens, rec.Cost, rec.Query)
		}
		if page.HasMore && page.NextCursor != "" {
			fmt.Printf("\nMore results available. Use --cursor %s\n", page.NextCursor)
		}
	}

	return nil
}
