package provider

import (
	"fmt"
	"sort"
	"sync"
)

// Constructor builds an adapter from an already validated config.
type Constructor func(cfg Config) (Provider, error)

// Validator applies provider-specific configuration rules.
type Validator func(cfg Config) error

type entry struct {
	construct Constructor
	validate  Validator
}

var (
	registry = make(map[Type]entry)
	mu       sync.RWMutex
)

// Register adds an adapter factory to the registry.
// This is typically called from an adapter package's init() function.
func Register(t Type, construct Constructor, validate Validator) {
	mu.Lock()
	defer mu.Unlock()
	registry[t] = entry{construct: construct, validate: validate}
}

// Validate runs the registered validator for cfg.Type.
func Validate(cfg Config) error {
	e, err := lookup(cfg.Type)
	if err != nil {
		return err
	}
	if e.validate == nil {
		return nil
	}
	return e.validate(cfg)
}

// New validates cfg and constructs the adapter selected by cfg.Type.
// Configuration errors are always reported before any network use.
func New(cfg Config) (Provider, error) {
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	e, err := lookup(cfg.Type)
	if err != nil {
		return nil, err
	}
	return e.construct(cfg)
}

func lookup(t Type) (entry, error) {
	mu.RLock()
	e, ok := registry[t]
	mu.RUnlock()

	if !ok {
		return entry{}, &ConfigurationError{
			Provider: t,
			Message:  fmt.Sprintf("unknown provider: %q (available: %v)", t, Available()),
		}
	}
	return e, nil
}

// Available returns the registered provider types in sorted order.
func Available() []Type {
	mu.RLock()
	defer mu.RUnlock()

	types := make([]Type, 0, len(registry))
	for t := range registry {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// IsRegistered checks if a provider type is registered.
func IsRegistered(t Type) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := registry[t]
	return ok
}
