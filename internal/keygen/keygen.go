// Package keygen generates insert-time primary keys and computes code
// trigger values.
package keygen

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sqlmapper/internal/metadata"
)

// Generator produces a primary key for the entity value being inserted.
type Generator interface {
	Generate(entity any) (any, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(entity any) (any, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(entity any) (any, error) {
	return f(entity)
}

// Built-in generator names.
const (
	UUIDName     = "uuid"
	CombUUIDName = "comb_uuid"
)

// UUID returns random version 4 UUIDs as 32 lower-case hex digits.
func UUID() Generator {
	return GeneratorFunc(func(any) (any, error) {
		u, err := uuid.NewRandom()
		if err != nil {
			return nil, fmt.Errorf("failed to generate uuid: %w", err)
		}
		return hex.EncodeToString(u[:]), nil
	})
}

// CombUUID returns time-ordered UUIDs as 32 lower-case hex digits. The
// leading 48 bits carry the millisecond timestamp so keys sort by creation
// time.
func CombUUID() Generator {
	return GeneratorFunc(func(any) (any, error) {
		u, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("failed to generate comb uuid: %w", err)
		}
		return hex.EncodeToString(u[:]), nil
	})
}

// Registry holds key generators and code trigger value functions by name.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	generators map[string]Generator
	values     map[string]func() any
	logger     *slog.Logger
	now        func() time.Time
}

// NewRegistry returns a registry with the built-in generators and the
// "currentTime", "currentDate" and "uuid" trigger values.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		generators: map[string]Generator{},
		values:     map[string]func() any{},
		logger:     logger,
		now:        time.Now,
	}
	r.RegisterGenerator(UUIDName, UUID())
	r.RegisterGenerator(CombUUIDName, CombUUID())
	r.RegisterValue("currentTime", func() any { return r.now() })
	r.RegisterValue("currentDate", func() any {
		y, m, d := r.now().Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	})
	r.RegisterValue("uuid", func() any {
		v, _ := UUID().Generate(nil)
		return v
	})
	return r
}

// RegisterGenerator adds or replaces a named generator.
func (r *Registry) RegisterGenerator(name string, g Generator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[name] = g
}

// RegisterValue adds or replaces a named code trigger value.
func (r *Registry) RegisterValue(name string, fn func() any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[name] = fn
}

// Generator returns the generator registered under name.
func (r *Registry) Generator(name string) (Generator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.generators[name]
	return g, ok
}

// Value computes the named code trigger value.
func (r *Registry) Value(name string) (any, error) {
	r.mu.RLock()
	fn, ok := r.values[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no trigger value registered as %q", name)
	}
	return fn(), nil
}

// ForColumn returns the generator that fills c on insert: an explicitly
// named generator first, then the one implied by the generation type.
func (r *Registry) ForColumn(c *metadata.Column) (Generator, bool) {
	if c.Generator != "" {
		return r.Generator(c.Generator)
	}
	switch c.Generation {
	case metadata.GenerationUUID:
		return r.Generator(UUIDName)
	case metadata.GenerationCombUUID:
		return r.Generator(CombUUIDName)
	}
	return nil, false
}
