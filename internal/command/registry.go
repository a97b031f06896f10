package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

var (
	// ErrNameRequired indicates an empty command name.
	ErrNameRequired = errors.New("command name is required")
	// ErrNotFound indicates a name with no registered factory.
	ErrNotFound = errors.New("command is not registered")
	// ErrDuplicate indicates a second registration under the same name.
	ErrDuplicate = errors.New("command already registered")
)

// Factory creates a Command for one attribute.
type Factory func() Command

// Registry maps attribute names to command factories. Names are
// case-insensitive. Registration happens at startup; lookups are safe from
// any goroutine.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Normalize folds a command name the way the registry stores it.
func Normalize(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Register adds a factory under name.
func (r *Registry) Register(name string, f Factory) error {
	key := Normalize(name)
	if key == "" {
		return ErrNameRequired
	}
	if f == nil {
		return fmt.Errorf("command %q: factory is required", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	r.factories[key] = f
	return nil
}

// MustRegister is Register for setup code that cannot continue on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup returns the factory registered under name.
func (r *Registry) Lookup(name string) (Factory, error) {
	key := Normalize(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return f, nil
}

// Exists reports whether name has a factory.
func (r *Registry) Exists(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Require checks that every name has a factory. A missing entry is a setup
// error listing all the absent names.
func (r *Registry) Require(names ...string) error {
	var missing []string
	for _, name := range names {
		if !r.Exists(name) {
			missing = append(missing, Normalize(name))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, strings.Join(missing, ", "))
	}
	return nil
}
