// Package registry maps module identifiers to invocable capabilities.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/imvijaychaurasia/workforce-ai-saas/pkg/models"
)

var (
	// ErrDuplicateModule is returned when registering an id that is already present.
	ErrDuplicateModule = errors.New("module already registered")
	// ErrUnknownModule is returned when resolving an id that is not registered.
	ErrUnknownModule = errors.New("unknown module")
)

// ErrorKind classifies a module-reported error.
type ErrorKind string

const (
	// KindFailure is a permanent module failure.
	KindFailure ErrorKind = "failure"
	// KindRetryable marks a transient failure the executor may retry.
	KindRetryable ErrorKind = "retryable"
	// KindInvalidConfig means the step config did not satisfy the module's input schema.
	KindInvalidConfig ErrorKind = "invalid_config"
)

// ModuleError is the error type modules surface through Invoke.
type ModuleError struct {
	Kind    ErrorKind
	Message string
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module error (%s): %s", e.Kind, e.Message)
}

// Retryable reports whether err is a module error marked transient.
func Retryable(err error) bool {
	var me *ModuleError
	return errors.As(err, &me) && me.Kind == KindRetryable
}

// Capability is the execution contract of a module. Config is the step's
// opaque configuration; prior carries the previous step's output, which the
// module may interpret or ignore.
type Capability interface {
	Invoke(ctx context.Context, config map[string]interface{}, prior []byte) ([]byte, error)
}

// CapabilityFunc adapts a function to the Capability interface.
type CapabilityFunc func(ctx context.Context, config map[string]interface{}, prior []byte) ([]byte, error)

// Invoke calls f.
func (f CapabilityFunc) Invoke(ctx context.Context, config map[string]interface{}, prior []byte) ([]byte, error) {
	return f(ctx, config, prior)
}

// Descriptor pairs a module's registry metadata with its capability.
// Immutable once registered.
type Descriptor struct {
	Info       models.ModuleInfo
	Capability Capability
}

// Registry holds the registered modules. Descriptors are read-mostly and
// shared across all workers; registration is the only mutation.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]*Descriptor
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{modules: make(map[string]*Descriptor)}
}

// Register adds a module descriptor to the registry.
func (r *Registry) Register(info models.ModuleInfo, capability Capability) error {
	if info.ID == "" {
		return fmt.Errorf("register: module id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.modules[info.ID]; ok {
		return fmt.Errorf("register %q: %w", info.ID, ErrDuplicateModule)
	}
	r.modules[info.ID] = &Descriptor{Info: info, Capability: capability}
	return nil
}

// Resolve returns the descriptor for the given module id.
func (r *Registry) Resolve(id string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.modules[id]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", id, ErrUnknownModule)
	}
	return d, nil
}

// List returns the metadata of all registered modules.
func (r *Registry) List() []models.ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	infos := make([]models.ModuleInfo, 0, len(r.modules))
	for _, d := range r.modules {
		infos = append(infos, d.Info)
	}
	return infos
}

// Invoke validates the config against the module's input schema and delegates
// to the module's capability. The registry applies no retry; retry policy
// belongs to the executor.
func (r *Registry) Invoke(ctx context.Context, id string, config map[string]interface{}, prior []byte) ([]byte, error) {
	d, err := r.Resolve(id)
	if err != nil {
		return nil, err
	}
	if err := validateConfig(d.Info.InputSchema, config); err != nil {
		return nil, err
	}
	return d.Capability.Invoke(ctx, config, prior)
}

// validateConfig checks the opaque input schema's "required" key list, the
// only shape the engine understands. Everything else in the schema is the
// module's business.
func validateConfig(schema, config map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	required, ok := schema["required"].([]interface{})
	if !ok {
		return nil
	}
	for _, key := range required {
		name, ok := key.(string)
		if !ok {
			continue
		}
		if _, present := config[name]; !present {
			return &ModuleError{
				Kind:    KindInvalidConfig,
				Message: fmt.Sprintf("missing required config key %q", name),
			}
		}
	}
	return nil
}
