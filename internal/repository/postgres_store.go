package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

// PostgresStore is a PostgreSQL implementation of the Store interface.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Schema is the DDL for the engine's tables. Applied by EnsureSchema; kept
// idempotent so seed and tests can call it freely.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	domain TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS pipeline_definitions (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL,
	name TEXT NOT NULL,
	steps JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	seq BIGSERIAL,
	UNIQUE (tenant_id, name)
);
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id UUID PRIMARY KEY,
	tenant_id UUID NOT NULL,
	definition_id UUID NOT NULL,
	status TEXT NOT NULL,
	policy TEXT NOT NULL,
	step_results JSONB NOT NULL DEFAULT '[]',
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ,
	seq BIGSERIAL
);
CREATE TABLE IF NOT EXISTS modules_registry (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT,
	image TEXT,
	endpoint TEXT,
	input_schema JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// EnsureSchema creates the engine's tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, Schema)
	return err
}

// GetTenantByDomain retrieves a tenant by its email domain.
func (s *PostgresStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	var t models.Tenant
	err := s.db.QueryRow(ctx,
		"SELECT id, name, domain, created_at, updated_at FROM tenants WHERE domain = $1",
		domain,
	).Scan(&t.ID, &t.Name, &t.Domain, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("tenant for domain %q: %w", domain, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTenant stores a new tenant.
func (s *PostgresStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	_, err := s.db.Exec(ctx,
		"INSERT INTO tenants (id, name, domain, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		tenant.ID, tenant.Name, tenant.Domain, tenant.CreatedAt, tenant.UpdatedAt,
	)
	return err
}

// CreateDefinition stores a new pipeline definition.
func (s *PostgresStore) CreateDefinition(ctx context.Context, def *models.PipelineDefinition) error {
	steps, err := json.Marshal(def.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}
	_, err = s.db.Exec(ctx,
		"INSERT INTO pipeline_definitions (id, tenant_id, name, steps, created_at) VALUES ($1, $2, $3, $4, $5)",
		def.ID, def.TenantID, def.Name, steps, def.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("definition %q: %w", def.Name, ErrDuplicateName)
	}
	return err
}

// GetDefinition retrieves a definition by id, scoped to the tenant.
func (s *PostgresStore) GetDefinition(ctx context.Context, tenantID, id string) (*models.PipelineDefinition, error) {
	var def models.PipelineDefinition
	var steps []byte
	err := s.db.QueryRow(ctx,
		"SELECT id, tenant_id, name, steps, created_at FROM pipeline_definitions WHERE id = $1 AND tenant_id = $2",
		id, tenantID,
	).Scan(&def.ID, &def.TenantID, &def.Name, &steps, &def.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("definition %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(steps, &def.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}
	return &def, nil
}

// ListDefinitions returns the tenant's definitions in insertion order.
func (s *PostgresStore) ListDefinitions(ctx context.Context, tenantID string) ([]*models.PipelineDefinition, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, tenant_id, name, steps, created_at FROM pipeline_definitions WHERE tenant_id = $1 ORDER BY seq",
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*models.PipelineDefinition
	for rows.Next() {
		var def models.PipelineDefinition
		var steps []byte
		if err := rows.Scan(&def.ID, &def.TenantID, &def.Name, &steps, &def.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(steps, &def.Steps); err != nil {
			return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
		defs = append(defs, &def)
	}
	return defs, rows.Err()
}

// CreateRun stores a new run.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	results, err := json.Marshal(run.StepResults)
	if err != nil {
		return fmt.Errorf("failed to marshal step results: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO pipeline_runs (id, tenant_id, definition_id, status, policy, step_results, started_at, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.TenantID, run.DefinitionID, run.Status, run.Policy, results, run.StartedAt, run.FinishedAt,
	)
	return err
}

// GetRun retrieves a run by id, scoped to the tenant.
func (s *PostgresStore) GetRun(ctx context.Context, tenantID, id string) (*models.Run, error) {
	run, err := scanRun(s.db.QueryRow(ctx,
		`SELECT id, tenant_id, definition_id, status, policy, step_results, started_at, finished_at
		 FROM pipeline_runs WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return run, err
}

// UpdateRun replaces the stored run snapshot.
func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.Run) error {
	results, err := json.Marshal(run.StepResults)
	if err != nil {
		return fmt.Errorf("failed to marshal step results: %w", err)
	}
	tag, err := s.db.Exec(ctx,
		"UPDATE pipeline_runs SET status = $1, step_results = $2, finished_at = $3 WHERE id = $4",
		run.Status, results, run.FinishedAt, run.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %q: %w", run.ID, ErrNotFound)
	}
	return nil
}

// ListRuns returns the tenant's runs in creation order.
func (s *PostgresStore) ListRuns(ctx context.Context, tenantID string) ([]*models.Run, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, tenant_id, definition_id, status, policy, step_results, started_at, finished_at
		 FROM pipeline_runs WHERE tenant_id = $1 ORDER BY seq`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CreateModule stores a module catalog row.
func (s *PostgresStore) CreateModule(ctx context.Context, info *models.ModuleInfo) error {
	schema, err := json.Marshal(info.InputSchema)
	if err != nil {
		return fmt.Errorf("failed to marshal input schema: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO modules_registry (id, name, description, image, endpoint, input_schema, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		info.ID, info.Name, info.Description, info.Image, info.Endpoint, schema, info.CreatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("module %q: %w", info.ID, ErrDuplicateModule)
	}
	return err
}

// ListModules returns all module catalog rows.
func (s *PostgresStore) ListModules(ctx context.Context) ([]*models.ModuleInfo, error) {
	rows, err := s.db.Query(ctx,
		"SELECT id, name, description, image, endpoint, input_schema, created_at FROM modules_registry ORDER BY created_at",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*models.ModuleInfo
	for rows.Next() {
		var info models.ModuleInfo
		var schema []byte
		if err := rows.Scan(&info.ID, &info.Name, &info.Description, &info.Image, &info.Endpoint, &schema, &info.CreatedAt); err != nil {
			return nil, err
		}
		if len(schema) > 0 {
			if err := json.Unmarshal(schema, &info.InputSchema); err != nil {
				return nil, fmt.Errorf("failed to unmarshal input schema: %w", err)
			}
		}
		infos = append(infos, &info)
	}
	return infos, rows.Err()
}

// Ping verifies connectivity to the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanRun(row pgx.Row) (*models.Run, error) {
	var run models.Run
	var results []byte
	err := row.Scan(&run.ID, &run.TenantID, &run.DefinitionID, &run.Status, &run.Policy, &results, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(results, &run.StepResults); err != nil {
		return nil, fmt.Errorf("failed to unmarshal step results: %w", err)
	}
	return &run, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
