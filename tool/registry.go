package tool

import (
	"errors"
	"regexp"
	"strings"
	"sync"

	"github.com/petal-labs/toolstream/schema"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// Registry maps tool names to registrations and remembers registration
// order. It is safe for concurrent use; once sealed it rejects further
// registrations so the set served to clients cannot change under them.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Registration
	order  []string
	sealed bool
}

// NewRegistry returns an empty, unsealed registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Registration)}
}

// Register adds reg. A second registration under the same name is rejected
// with a *DuplicateToolError and the first one stays in place.
func (r *Registry) Register(reg Registration) error {
	if err := validateRegistration(reg); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return ErrRegistrySealed
	}
	if _, exists := r.tools[reg.Name]; exists {
		return &DuplicateToolError{Name: reg.Name}
	}
	r.tools[reg.Name] = reg
	r.order = append(r.order, reg.Name)
	return nil
}

// RegisterAll registers each entry in order and joins every failure.
func (r *Registry) RegisterAll(regs ...Registration) error {
	var errs []error
	for _, reg := range regs {
		if err := r.Register(reg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the registration for name or an *UnknownToolError.
func (r *Registry) Get(name string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.tools[name]
	if !ok {
		return Registration{}, &UnknownToolError{Name: name}
	}
	return reg, nil
}

// List returns registrations in registration order.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Registration, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Seal freezes the registry. It is idempotent.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

func validateRegistration(reg Registration) error {
	name := reg.Name
	switch {
	case strings.TrimSpace(name) == "":
		return &InvalidDefinitionError{Name: name, Reason: "name is required"}
	case !toolNamePattern.MatchString(name):
		return &InvalidDefinitionError{Name: name, Reason: "name must match " + toolNamePattern.String()}
	case reg.InputSchema == nil:
		return &InvalidDefinitionError{Name: name, Reason: "input schema is required"}
	case reg.InputSchema.Type != schema.TypeObject:
		return &InvalidDefinitionError{Name: name, Reason: "input schema must describe an object"}
	case !reg.Handler.valid():
		return &InvalidDefinitionError{Name: name, Reason: "handler is required"}
	}
	return nil
}
