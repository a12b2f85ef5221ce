package naming

import (
	"fmt"
	"log/slog"
)

// CollisionResolver tracks registered names per scope and resolves collisions
// by applying numeric suffixes when duplicates are detected.
type CollisionResolver struct {
	seenColumns map[string]map[string]string // statement → column alias → source
	seenMethods map[string]map[string]string // namespace → method name → source
	logger      *slog.Logger
}

// NewCollisionResolver creates a new collision resolver.
func NewCollisionResolver(logger *slog.Logger) *CollisionResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &CollisionResolver{
		seenColumns: make(map[string]map[string]string),
		seenMethods: make(map[string]map[string]string),
		logger:      logger,
	}
}

// ReserveColumn marks a column name as taken within a statement without suffixing.
func (c *CollisionResolver) ReserveColumn(statement, column, source string) {
	seen := c.scope(c.seenColumns, statement)
	if _, exists := seen[column]; !exists {
		seen[column] = source
	}
}

// RegisterColumn registers a selected column within a statement and returns
// the alias to select it under. Duplicates become "name_1", "name_2", ...
func (c *CollisionResolver) RegisterColumn(statement, column, source string) string {
	seen := c.scope(c.seenColumns, statement)
	if _, exists := seen[column]; !exists {
		seen[column] = source
		return column
	}
	for i := 1; ; i++ {
		suffixed := fmt.Sprintf("%s_%d", column, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}

// MethodSource reports which source registered a method name in a namespace.
func (c *CollisionResolver) MethodSource(namespace, method string) (string, bool) {
	source, ok := c.seenMethods[namespace][method]
	return source, ok
}

// RegisterMethod registers a method name within a namespace and returns the resolved name.
// If a collision occurs, applies a numeric suffix and logs a warning.
func (c *CollisionResolver) RegisterMethod(namespace, method, source string) string {
	return c.resolveCollision(method, c.scope(c.seenMethods, namespace), source)
}

func (c *CollisionResolver) scope(m map[string]map[string]string, key string) map[string]string {
	if m[key] == nil {
		m[key] = make(map[string]string)
	}
	return m[key]
}

// resolveCollision attempts to register a name in the given map.
// If the name already exists, finds the next available numeric suffix.
func (c *CollisionResolver) resolveCollision(name string, seen map[string]string, source string) string {
	if _, exists := seen[name]; !exists {
		seen[name] = source
		return name
	}

	// Collision detected - find next available suffix
	existingSource := seen[name]
	c.logger.Warn("naming collision detected, applying suffix",
		slog.String("name", name),
		slog.String("existing_source", existingSource),
		slog.String("new_source", source),
	)

	for i := 2; ; i++ {
		suffixed := fmt.Sprintf("%s%d", name, i)
		if _, exists := seen[suffixed]; !exists {
			seen[suffixed] = source
			return suffixed
		}
	}
}
