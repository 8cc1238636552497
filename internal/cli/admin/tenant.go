package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/counsel-labs/lexrag/internal/config"
	"github.com/counsel-labs/lexrag/internal/database"
	"github.com/counsel-labs/lexrag/internal/domain"
	"github.com/counsel-labs/lexrag/internal/repository"
	"github.com/counsel-labs/lexrag/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

func TenantCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenant",
		Short: "Manage tenants",
		Long:  "Provision and list tenants",
	}

	cmd.AddCommand(TenantCreateCmd())
	cmd.AddCommand(TenantListCmd())

	return cmd
}

func TenantCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Provision a new tenant",
		Long:  "Provision a new tenant with its document roots and isolated storage",
		Args:  cobra.ExactArgs(1),
		RunE:  runTenantCreate,
	}

	cmd.Flags().StringP("email", "e", "", "Admin email for the tenant")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]
	email, _ := cmd.Flags().GetString("email")
	outputFormat, _ := cmd.Flags().GetString("output")

	cfg, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)
	tenantSvc := service.NewTenantService(tenantRepo, cfg.DocumentsRoot)

	tenant, err := tenantSvc.Provision(ctx, name, email)
	if err != nil {
		return fmt.Errorf("failed to provision tenant: %w", err)
	}

	if outputFormat == "json" {
		data := map[string]interface{}{
			"id":             tenant.ID,
			"name":           tenant.Name,
			"admin_email":    tenant.AdminEmail,
			"documents_root": tenant.DocumentsRoot,
			"chunked_root":   tenant.ChunkedRoot,
			"created_at":     tenant.CreatedAt,
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		fmt.Printf("Tenant provisioned: %s (%s)\n", tenant.Name, tenant.ID)
		fmt.Printf("Documents root: %s\n", tenant.DocumentsRoot)
	}

	return nil
}

func TenantListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tenants",
		Long:  "List all tenants in the system",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runTenantList(outputFormat)
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runTenantList(outputFormat string) error {
	ctx := context.Background()

	_, pool, err := getDBPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	tenantRepo := repository.NewTenantRepository(pool)

	tenants, err := tenantRepo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list tenants: %w", err)
	}

	if outputFormat == "json" {
		data := make([]map[string]interface{}, len(tenants))
		for i, tenant := range tenants {
			data[i] = map[string]interface{}{
				"id":         tenant.ID,
				"name":       tenant.Name,
				"created_at": tenant.CreatedAt,
			}
		}
		jsonBytes, _ := json.MarshalIndent(data, "", "  ")
		fmt.Println(string(jsonBytes))
	} else {
		if len(tenants) == 0 {
			fmt.Println("No tenants found")
			return nil
		}
		fmt.Println("Tenants:")
		for _, tenant := range tenants {
			fmt.Printf("  %s: %s (created: %s)\n", tenant.ID, tenant.Name, tenant.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	return nil
}

// resolveTenant accepts either a tenant id or a tenant name.
func resolveTenant(ctx context.Context, tenantRepo *repository.TenantRepository, ref string) (*domain.Tenant, error) {
	if domain.IsValidTenantID(ref) {
		tenant, err := tenantRepo.GetByID(ctx, ref)
		if err == nil {
			return tenant, nil
		}
		if !errors.Is(err, domain.ErrTenantNotFound) {
			return nil, err
		}
	}

	tenant, err := tenantRepo.GetByName(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrTenantNotFound) {
			return nil, fmt.Errorf("tenant not found: %s", ref)
		}
		return nil, err
	}
	return tenant, nil
}

func getDBPool(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	pool, err := database.NewPool(ctx, database.PoolConfig{DSN: cfg.DatabaseURL})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, pool, nil
}
