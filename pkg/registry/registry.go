// Package registry maps step type names to constructors.
package registry

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/SuryanshuBanerjee/bonesaw/pkg/pipeline"
)

// Constructor builds a step from its descriptor parameters.
type Constructor func(params map[string]any) (pipeline.Step, error)

// NotFoundError is returned by Lookup for an unregistered name.
type NotFoundError struct {
	Name      string
	Available []string
}

func (e *NotFoundError) Error() string {
	available := "(none registered)"
	if len(e.Available) > 0 {
		available = strings.Join(e.Available, ", ")
	}
	return fmt.Sprintf("unknown step type %q (available: %s)", e.Name, available)
}

// Registry is a name to Constructor table. The zero value is not usable; use New.
type Registry struct {
	mu    sync.RWMutex
	ctors map[string]Constructor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{ctors: make(map[string]Constructor)}
}

// Register binds name to c. A later registration under the same name replaces
// the earlier one.
func (r *Registry) Register(name string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[name]; exists {
		slog.Debug("replacing registered step", "type", name)
	}
	r.ctors[name] = c
}

// Lookup returns the constructor last registered under name.
func (r *Registry) Lookup(name string) (Constructor, error) {
	r.mu.RLock()
	c, ok := r.ctors[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &NotFoundError{Name: name, Available: r.Names()}
	}
	return c, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.ctors))
	for name := range r.ctors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Default is the process-wide registry. It starts empty.
var Default = New()

// Register binds name to c in Default.
func Register(name string, c Constructor) { Default.Register(name, c) }

// Lookup resolves name in Default.
func Lookup(name string) (Constructor, error) { return Default.Lookup(name) }

// Names lists the names registered in Default.
func Names() []string { return Default.Names() }
