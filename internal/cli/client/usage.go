package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ModelUsage is a per-model breakdown line in a usage summary.
type ModelUsage struct {
	Model       string  `json:"model"`
	QueryCount  int     `json:"query_count"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

// MonthlySummary represents one month of usage.
type MonthlySummary struct {
	Year        int          `json:"year"`
	Month       int          `json:"month"`
	QueryCount  int          `json:"query_count"`
	TotalTokens int          `json:"total_tokens"`
	TotalCost   float64      `json:"total_cost"`
	ByModel     []ModelUsage `json:"by_model"`
}

// UsageResponse represents the admin usage API response.
type UsageResponse struct {
	Summary *MonthlySummary `json:"summary"`
	Daily   []struct {
		Date       string  `json:"date"`
		QueryCount int     `json:"query_count"`
		Tokens     int     `json:"tokens"`
		Cost       float64 `json:"cost"`
	} `json:"daily"`
}

// QuotaResponse represents the admin quota API response.
type QuotaResponse struct {
	MonthlyBudget        float64 `json:"monthly_budget"`
	MaxQueriesPerMonth   int     `json:"max_queries_per_month"`
	CostWarningThreshold float64 `json:"cost_warning_threshold"`
	CurrentMonthCost     float64 `json:"current_month_cost"`
	CurrentMonthQueries  int     `json:"current_month_queries"`
}

// UsageCmd creates the usage command. Requires an admin API key.
func UsageCmd() *cobra.Command {
	var (
		year  int
		month int
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show monthly usage (admin)",
		Long:  "Shows the tenant's monthly usage summary. Requires an admin API key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runUsage(year, month, outputJSON)
		},
	}

	cmd.Flags().IntVar(&year, "year", 0, "Year to summarize (defaults to the current month)")
	cmd.Flags().IntVar(&month, "month", 0, "Month to summarize (1-12)")
	cmd.Flags().Bool("output", false, "Output as JSON")

	return cmd
}

func runUsage(year, month int, outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	path := "/admin/usage"
	if year != 0 && month != 0 {
		path = fmt.Sprintf("/admin/usage?year=%d&month=%d", year, month)
	}

	resp, err := api.Get(path)
	if err != nil {
		return fmt.Errorf("failed to get usage: %w", err)
	}

	var usage UsageResponse
	if err := json.Unmarshal(resp.Data, &usage); err != nil {
		return fmt.Errorf("failed to parse usage: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(usage, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if usage.Summary == nil {
		fmt.Println("No usage data")
		return nil
	}

	fmt.Printf("Usage for %04d-%02d:\n", usage.Summary.Year, usage.Summary.Month)
	fmt.Printf("  Queries: %d\n", usage.Summary.QueryCount)
	fmt.Printf("  Tokens:  %d\n", usage.Summary.TotalTokens)
	fmt.Printf("  Cost:    $%.4f\n", usage.Summary.TotalCost)
	if len(usage.Summary.ByModel) > 0 {
		fmt.Println("  By model:")
		for _, m := range usage.Summary.ByModel {
			fmt.Printf("    %s: %d queries, %d tokens, $%.4f\n", m.Model, m.QueryCount, m.TotalTokens, m.TotalCost)
		}
	}

	return nil
}

// QuotaCmd creates the quota command. Requires an admin API key.
func QuotaCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quota",
		Short: "Show quota settings and consumption (admin)",
		Long:  "Shows the tenant's quota settings and month-to-date consumption. Requires an admin API key.",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputJSON, _ := cmd.Flags().GetBool("output")
			return runQuota(outputJSON)
		},
	}

	cmd.Flags().Bool("output", false, "Output as JSON")

	return cmd
}

func runQuota(outputJSON bool) error {
	api, err := NewAPIClient()
	if err != nil {
		return err
	}

	resp, err := api.Get("/admin/quota")
	if err != nil {
		return fmt.Errorf("failed to get quota: %w", err)
	}

	var quota QuotaResponse
	if err := json.Unmarshal(resp.Data, &quota); err != nil {
		return fmt.Errorf("failed to parse quota: %w", err)
	}

	if outputJSON {
		output, _ := json.MarshalIndent(quota, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	fmt.Printf("Monthly budget:        $%.2f (used: $%.4f)\n", quota.MonthlyBudget, quota.CurrentMonthCost)
	fmt.Printf("Max queries per month: %d (used: %d)\n", quota.MaxQueriesPerMonth, quota.CurrentMonthQueries)
	fmt.Printf("Cost warning at:       $%.4f per request\n", quota.CostWarningThreshold)

	return nil
}
