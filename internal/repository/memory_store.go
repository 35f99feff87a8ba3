package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

// MemoryStore is an in-memory implementation of the Store interface, used in
// dev mode and tests. Runs and definitions are deep-copied on the way in and
// out so callers never share mutable state with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	tenants     map[string]*models.Tenant
	definitions []*models.PipelineDefinition
	runs        map[string]*models.Run
	runOrder    []string
	modules     []*models.ModuleInfo
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]*models.Tenant),
		runs:    make(map[string]*models.Run),
	}
}

// GetTenantByDomain retrieves a tenant by its email domain.
func (s *MemoryStore) GetTenantByDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Domain == domain {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("tenant for domain %q: %w", domain, ErrNotFound)
}

// CreateTenant stores a new tenant.
func (s *MemoryStore) CreateTenant(ctx context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return nil
}

// CreateDefinition stores a new pipeline definition, enforcing per-tenant
// name uniqueness.
func (s *MemoryStore) CreateDefinition(ctx context.Context, def *models.PipelineDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.definitions {
		if d.TenantID == def.TenantID && d.Name == def.Name {
			return fmt.Errorf("definition %q: %w", def.Name, ErrDuplicateName)
		}
	}
	s.definitions = append(s.definitions, copyDefinition(def))
	return nil
}

// GetDefinition retrieves a definition by id, scoped to the tenant.
func (s *MemoryStore) GetDefinition(ctx context.Context, tenantID, id string) (*models.PipelineDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.definitions {
		if d.ID == id && d.TenantID == tenantID {
			return copyDefinition(d), nil
		}
	}
	return nil, fmt.Errorf("definition %q: %w", id, ErrNotFound)
}

// ListDefinitions returns the tenant's definitions in insertion order.
func (s *MemoryStore) ListDefinitions(ctx context.Context, tenantID string) ([]*models.PipelineDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.PipelineDefinition
	for _, d := range s.definitions {
		if d.TenantID == tenantID {
			out = append(out, copyDefinition(d))
		}
	}
	return out, nil
}

// CreateRun stores a new run.
func (s *MemoryStore) CreateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = copyRun(run)
	s.runOrder = append(s.runOrder, run.ID)
	return nil
}

// GetRun retrieves a run by id, scoped to the tenant.
func (s *MemoryStore) GetRun(ctx context.Context, tenantID, id string) (*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok || run.TenantID != tenantID {
		return nil, fmt.Errorf("run %q: %w", id, ErrNotFound)
	}
	return copyRun(run), nil
}

// UpdateRun replaces the stored run snapshot.
func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("run %q: %w", run.ID, ErrNotFound)
	}
	s.runs[run.ID] = copyRun(run)
	return nil
}

// ListRuns returns the tenant's runs in creation order.
func (s *MemoryStore) ListRuns(ctx context.Context, tenantID string) ([]*models.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Run
	for _, id := range s.runOrder {
		if run := s.runs[id]; run.TenantID == tenantID {
			out = append(out, copyRun(run))
		}
	}
	return out, nil
}

// CreateModule stores a module catalog row.
func (s *MemoryStore) CreateModule(ctx context.Context, info *models.ModuleInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.modules {
		if m.ID == info.ID {
			return fmt.Errorf("module %q: %w", info.ID, ErrDuplicateModule)
		}
	}
	s.modules = append(s.modules, copyModule(info))
	return nil
}

// ListModules returns all module catalog rows.
func (s *MemoryStore) ListModules(ctx context.Context) ([]*models.ModuleInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.ModuleInfo, 0, len(s.modules))
	for _, m := range s.modules {
		out = append(out, copyModule(m))
	}
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func copyDefinition(d *models.PipelineDefinition) *models.PipelineDefinition {
	cp := *d
	cp.Steps = make([]models.PipelineStep, len(d.Steps))
	copy(cp.Steps, d.Steps)
	for i := range cp.Steps {
		cp.Steps[i].Config = cloneMap(cp.Steps[i].Config)
	}
	return &cp
}

func copyRun(r *models.Run) *models.Run {
	cp := *r
	cp.StepResults = make([]models.StepResult, len(r.StepResults))
	copy(cp.StepResults, r.StepResults)
	for i := range cp.StepResults {
		if out := cp.StepResults[i].Output; out != nil {
			cp.StepResults[i].Output = append([]byte(nil), out...)
		}
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}

func copyModule(m *models.ModuleInfo) *models.ModuleInfo {
	cp := *m
	cp.InputSchema = cloneMap(m.InputSchema)
	return &cp
}

// cloneMap deep-copies a JSON-shaped map so stored and returned values never
// share nested maps or slices.
func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return cloneValue(m).(map[string]interface{})
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
