package repository

import (
	"context"
	"errors"

	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

var (
	// ErrNotFound is returned when an entity does not exist or belongs to a
	// different tenant. Cross-tenant lookups are indistinguishable from
	// missing entities.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateName is returned when a definition name is already used by
	// the same tenant.
	ErrDuplicateName = errors.New("duplicate name")
	// ErrDuplicateModule is returned when a module row already exists.
	ErrDuplicateModule = errors.New("duplicate module")
)

// Store is the persistence interface for the orchestration engine.
type Store interface {
	// Tenants
	GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error)
	CreateTenant(ctx context.Context, tenant *models.Tenant) error

	// Pipeline definitions. Definitions are immutable; there is no update or
	// delete. List returns a tenant's definitions in insertion order.
	CreateDefinition(ctx context.Context, def *models.PipelineDefinition) error
	GetDefinition(ctx context.Context, tenantID, id string) (*models.PipelineDefinition, error)
	ListDefinitions(ctx context.Context, tenantID string) ([]*models.PipelineDefinition, error)

	// Runs. UpdateRun replaces the stored run snapshot; only the single
	// worker driving a run may call it.
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, tenantID, id string) (*models.Run, error)
	UpdateRun(ctx context.Context, run *models.Run) error
	ListRuns(ctx context.Context, tenantID string) ([]*models.Run, error)

	// Module catalog rows, mirrored into the in-process registry at boot.
	CreateModule(ctx context.Context, info *models.ModuleInfo) error
	ListModules(ctx context.Context) ([]*models.ModuleInfo, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error
}
