package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/repository"
	"github.com/counsel-labs/lexrag/internal/service"
	"github.com/spf13/cobra"
)

func QuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Manage tenant quotas",
		Long:  "Show and update per-tenant budget and query limits",
	}

	cmd.AddCommand(QuotaShowCmd())
	cmd.AddCommand(QuotaSetCmd())

	return cmd
}

func QuotaShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show a tenant's quota settings",
		Long:  "Show a tenant's quota settings and month-to-date consumption",
		RunE:  runQuotaShow,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runQuotaShow(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	tenantRef, _ := cmd.Flags().GetString("tenant")
	outputFormat, _ := cmd.Flags().GetString("output")

	_, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	quotaRepo := repository.NewQuotaRepository(pool, domain.DefaultQuotaSettings())
	usageRepo := repository.NewUsageRepository(pool)
	quotaSvc := service.NewQuotaService(quotaRepo, usageRepo)

	tenant, err := resolveTenant(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

	settings, err := quotaSvc.GetSettings(ctx, tenant)
	if err != nil {
		return fmt.Errorf("failed to get quota settings: %w", err)
	}

	cost, queries, err := usageRepo.MonthToDateTotals(ctx, tenant)
	if err != nil {
		return fmt.Errorf("failed to get usage totals: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"tenant":                 tenant.ID,
			"monthly_budget":         settings.MonthlyBudget,
			"max_queries_per_month":  settings.MaxQueriesPerMonth,
			"cost_warning_threshold": settings.CostWarningThreshold,
			"current_month_cost":     cost,
			"current_month_queries":  queries,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Quota for tenant %s (%s):\n", tenant.Name, tenant.ID)
		fmt.Printf("  Monthly budget:        $%.2f (used: $%.4f)\n", settings.MonthlyBudget, cost)
		fmt.Printf("  Max queries per month: %d (used: %d)\n", settings.MaxQueriesPerMonth, queries)
		fmt.Printf("  Cost warning at:       $%.4f per request\n", settings.CostWarningThreshold)
	}

	return nil
}

func QuotaSetCmd() *cobra.Command {
	var (
		budget    float64
		maxQuery  int
		warningAt float64
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update a tenant's quota settings",
		Long:  "Update a tenant's quota settings; unset flags keep their current values",
		RunE: func(cmd *cobra.Command, args []string) error {
			tenantRef, _ := cmd.Flags().GetString("tenant")
			return runQuotaSet(cmd, tenantRef, budget, maxQuery, warningAt)
		},
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant ID or name (required)")
	cmd.Flags().Float64Var(&budget, "budget", 0, "Monthly budget in dollars")
	cmd.Flags().IntVar(&maxQuery, "max-queries", 0, "Maximum queries per month")
	cmd.Flags().Float64Var(&warningAt, "warn-at", 0, "Per-request cost warning threshold in dollars")
	cmd.MarkFlagRequired("tenant")

	return cmd
}

func runQuotaSet(cmd *cobra.Command, tenantRef string, budget float64, maxQuery int, warningAt float64) error {
	ctx := context.Background()

	_, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	quotaRepo := repository.NewQuotaRepository(pool, domain.DefaultQuotaSettings())
	usageRepo := repository.NewUsageRepository(pool)
	quotaSvc := service.NewQuotaService(quotaRepo, usageRepo)

	tenant, err := resolveTenant(ctx, tenantRepo, tenantRef)
	if err != nil {
		return err
	}

	settings, err := quotaSvc.GetSettings(ctx, tenant)
	if err != nil {
		return fmt.Errorf("failed to get quota settings: %w", err)
	}

	if cmd.Flags().Changed("budget") {
		settings.MonthlyBudget = budget
	}
	if cmd.Flags().Changed("max-queries") {
		settings.MaxQueriesPerMonth = maxQuery
	}
	if cmd.Flags().Changed("warn-at") {
		settings.CostWarningThreshold = warningAt
	}

	if err := quotaSvc.UpdateSettings(ctx, tenant, settings); err != nil {
		return fmt.Errorf("failed to update quota settings: %w", err)
	}

	fmt.Printf("Quota updated for tenant %s\n", tenant.ID)
	fmt.Printf("  Monthly budget:        $%.2f\n", settings.MonthlyBudget)
	fmt.Printf("  Max queries per month: %d\n", settings.MaxQueriesPerMonth)
	fmt.Printf("  Cost warning at:       $%.4f\n", settings.CostWarningThreshold)

	return nil
}
