package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imvijaychaurasia/workforce-ai-saas/internal/config"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/logging"
	"github.com/imvijaychaurasia/workforce-ai-saas/internal/repository"
	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

// seed provisions a local dev tenant, a pair of scanner modules, and a demo
// pipeline definition so the service is usable right after boot.
func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	// 1. Ensure tenant exists
	domain := "localhost"
	tenant, err := store.GetTenantByDomain(ctx, domain)
	if err != nil {
		logger.Info("Creating default tenant: domain=%s", domain)
		tenant = &models.Tenant{
			ID:        uuid.New().String(),
			Name:      "Local Dev Tenant",
			Domain:    domain,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if err := store.CreateTenant(ctx, tenant); err != nil {
			log.Fatalf("Failed to create tenant: %v", err)
		}
	} else {
		logger.Info("Found existing tenant: id=%s", tenant.ID)
	}

	// 2. Register the demo scanner modules
	modules := []*models.ModuleInfo{
		{
			ID:          "nmap-scan",
			Name:        "Nmap Network Scan",
			Description: "Port and service discovery against a target host",
			Image:       "instrumentisto/nmap:latest",
			Endpoint:    "http://nmap-module:9001",
			InputSchema: map[string]interface{}{
				"required": []interface{}{"target"},
			},
			CreatedAt: time.Now().UTC(),
		},
		{
			ID:          "semgrep-scan",
			Name:        "Semgrep Code Scan",
			Description: "Static analysis of a source repository",
			Image:       "returntocorp/semgrep:latest",
			Endpoint:    "http://semgrep-module:9002",
			InputSchema: map[string]interface{}{
				"required": []interface{}{"repo_url"},
			},
			CreatedAt: time.Now().UTC(),
		},
		{
			ID:          "report-builder",
			Name:        "Report Builder",
			Description: "Aggregates prior step output into a findings report",
			Image:       "workforce-ai/report-builder:latest",
			Endpoint:    "http://report-module:9003",
			CreatedAt:   time.Now().UTC(),
		},
	}
	for _, info := range modules {
		if err := store.CreateModule(ctx, info); err != nil {
			if errors.Is(err, repository.ErrDuplicateModule) {
				logger.Info("Module already registered: id=%s", info.ID)
				continue
			}
			log.Fatalf("Failed to register module %s: %v", info.ID, err)
		}
		logger.Info("Registered module: id=%s", info.ID)
	}

	// 3. Create the demo pipeline definition
	defs, err := store.ListDefinitions(ctx, tenant.ID)
	if err != nil {
		log.Fatalf("Failed to list definitions: %v", err)
	}
	for _, d := range defs {
		if d.Name == "scan-then-report" {
			logger.Info("Demo pipeline already exists: id=%s", d.ID)
			return
		}
	}

	def := &models.PipelineDefinition{
		ID:       uuid.New().String(),
		TenantID: tenant.ID,
		Name:     "scan-then-report",
		Steps: []models.PipelineStep{
			{ModuleID: "nmap-scan", Config: map[string]interface{}{"target": "scanme.example.com"}},
			{ModuleID: "semgrep-scan", Config: map[string]interface{}{"repo_url": "https://github.com/example/demo"}},
			{ModuleID: "report-builder"},
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateDefinition(ctx, def); err != nil {
		log.Fatalf("Failed to create demo pipeline: %v", err)
	}
	logger.Info("Seed complete: tenant=%s pipeline=%s", tenant.ID, def.ID)
}
