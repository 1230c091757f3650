// Package registry holds the functions this member can execute.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/dukex/gridfn/pkg/models"
)

var ErrAlreadyRegistered = errors.New("function already registered")

// Registry is the process-wide function registry. It is safe for
// concurrent use; lookups vastly outnumber registrations.
type Registry struct {
	logger    *slog.Logger
	mu        sync.RWMutex
	functions map[string]models.Function
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		functions: make(map[string]models.Function),
	}
}

// Register adds fn. Registering a second function under the same ID fails.
func (r *Registry) Register(fn models.Function) error {
	descriptor := fn.Descriptor()

	err := descriptor.Validate()
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.functions[descriptor.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, descriptor.ID)
	}

	r.functions[descriptor.ID] = fn

	r.logger.Info("Registered function",
		"function", descriptor.ID,
		"ha", descriptor.HA,
		"hasResult", descriptor.HasResult,
		"optimizeForWrite", descriptor.OptimizeForWrite,
	)

	return nil
}

// MustRegister panics on error; meant for wiring built-in functions.
func (r *Registry) MustRegister(fns ...models.Function) {
	for _, fn := range fns {
		err := r.Register(fn)
		if err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.functions[id]
	delete(r.functions, id)

	return ok
}

func (r *Registry) Lookup(id string) (models.Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.functions[id]

	return fn, ok
}

// List returns every descriptor ordered by ID.
func (r *Registry) List() []models.FunctionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.FunctionDescriptor, 0, len(r.functions))
	for _, fn := range r.functions {
		out = append(out, fn.Descriptor())
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// HealthCheck reports the registry state for the admin API.
func (r *Registry) HealthCheck() (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.functions) == 0 {
		return "no functions registered", true
	}

	return fmt.Sprintf("%d functions registered", len(r.functions)), true
}
