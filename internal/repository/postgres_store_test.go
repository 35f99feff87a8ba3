package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test-db"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %s", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store := NewPostgresStore(pool)
	require.NoError(t, store.EnsureSchema(ctx))
	// Idempotent: running the DDL again must not fail.
	require.NoError(t, store.EnsureSchema(ctx))

	tenantA := uuid.New().String()
	tenantB := uuid.New().String()

	t.Run("Tenant roundtrip", func(t *testing.T) {
		tenant := &models.Tenant{
			ID:        tenantA,
			Name:      "Tenant A",
			Domain:    "a.test",
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.CreateTenant(ctx, tenant))

		got, err := store.GetTenantByDomain(ctx, "a.test")
		require.NoError(t, err)
		assert.Equal(t, tenantA, got.ID)

		_, err = store.GetTenantByDomain(ctx, "nobody.test")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Definition roundtrip and scoping", func(t *testing.T) {
		def := &models.PipelineDefinition{
			ID:       uuid.New().String(),
			TenantID: tenantA,
			Name:     "scan-then-report",
			Steps: []models.PipelineStep{
				{ModuleID: "nmap-scan", Config: map[string]interface{}{"target": "example.com"}},
				{ModuleID: "report-builder"},
			},
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, store.CreateDefinition(ctx, def))

		got, err := store.GetDefinition(ctx, tenantA, def.ID)
		require.NoError(t, err)
		assert.Equal(t, def.Name, got.Name)
		require.Len(t, got.Steps, 2)
		assert.Equal(t, "nmap-scan", got.Steps[0].ModuleID)
		assert.Equal(t, "example.com", got.Steps[0].Config["target"])

		// Duplicate name within the tenant is rejected.
		dup := *def
		dup.ID = uuid.New().String()
		err = store.CreateDefinition(ctx, &dup)
		assert.ErrorIs(t, err, ErrDuplicateName)

		// Another tenant cannot see it.
		_, err = store.GetDefinition(ctx, tenantB, def.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		defs, err := store.ListDefinitions(ctx, tenantA)
		require.NoError(t, err)
		assert.Len(t, defs, 1)
	})

	t.Run("Run lifecycle", func(t *testing.T) {
		run := &models.Run{
			ID:           uuid.New().String(),
			TenantID:     tenantA,
			DefinitionID: uuid.New().String(),
			Status:       models.RunStatusPending,
			Policy:       models.PolicyAbort,
			StartedAt:    time.Now().UTC(),
		}
		require.NoError(t, store.CreateRun(ctx, run))

		got, err := store.GetRun(ctx, tenantA, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusPending, got.Status)
		assert.Nil(t, got.FinishedAt)
		assert.Empty(t, got.StepResults)

		now := time.Now().UTC()
		run.Status = models.RunStatusSucceeded
		run.FinishedAt = &now
		run.StepResults = []models.StepResult{
			{StepIndex: 0, ModuleID: "nmap-scan", Status: models.StepStatusSucceeded, Output: []byte(`{"open_ports":[22]}`), StartedAt: now, FinishedAt: now},
		}
		require.NoError(t, store.UpdateRun(ctx, run))

		got, err = store.GetRun(ctx, tenantA, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSucceeded, got.Status)
		require.NotNil(t, got.FinishedAt)
		require.Len(t, got.StepResults, 1)
		assert.Equal(t, `{"open_ports":[22]}`, string(got.StepResults[0].Output))

		// Tenant scoping on runs.
		_, err = store.GetRun(ctx, tenantB, run.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		runs, err := store.ListRuns(ctx, tenantA)
		require.NoError(t, err)
		assert.Len(t, runs, 1)

		// Updating an unknown run reports not found.
		ghost := *run
		ghost.ID = uuid.New().String()
		err = store.UpdateRun(ctx, &ghost)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Module catalog", func(t *testing.T) {
		info := &models.ModuleInfo{
			ID:          "semgrep-scan",
			Name:        "Semgrep",
			Description: "static analysis",
			Image:       "returntocorp/semgrep:latest",
			Endpoint:    "http://semgrep:9002",
			InputSchema: map[string]interface{}{"required": []interface{}{"repo_url"}},
			CreatedAt:   time.Now().UTC(),
		}
		require.NoError(t, store.CreateModule(ctx, info))

		err := store.CreateModule(ctx, info)
		assert.ErrorIs(t, err, ErrDuplicateModule)

		modules, err := store.ListModules(ctx)
		require.NoError(t, err)
		require.Len(t, modules, 1)
		assert.Equal(t, "Semgrep", modules[0].Name)
		assert.Equal(t, []interface{}{"repo_url"}, modules[0].InputSchema["required"])
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
