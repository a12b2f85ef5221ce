package naming

import (
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Namer derives table, column and alias names for entities and resolves
// collisions between generated column aliases and method names.
type Namer struct {
	config   Config
	logger   *slog.Logger
	resolver *CollisionResolver
}

// New creates a Namer with the given configuration
func New(cfg Config, logger *slog.Logger) *Namer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Namer{
		config:   cfg,
		logger:   logger,
		resolver: NewCollisionResolver(logger),
	}
}

// Default returns a Namer with default configuration
func Default() *Namer {
	return New(DefaultConfig(), nil)
}

// Reset clears the collision resolver state, allowing the namer to be reused
// for a new registry build.
func (n *Namer) Reset() {
	n.resolver = NewCollisionResolver(n.logger)
}

// Resolver exposes the collision resolver backing this namer.
func (n *Namer) Resolver() *CollisionResolver {
	return n.resolver
}

// TableName derives the default table name for an entity.
// Example: "UserRole" -> "user_role" (or "user_roles" when pluralising)
func (n *Namer) TableName(entityName string) string {
	name := CamelToSnake(entityName)
	if !n.config.PluralizeTables {
		return name
	}
	idx := strings.LastIndex(name, "_")
	return name[:idx+1] + n.Pluralize(name[idx+1:])
}

// ColumnName derives the default column name for a property.
// Example: "createTime" -> "create_time"
func (n *Namer) ColumnName(property string) string {
	return CamelToSnake(property)
}

// TableAlias derives the entity alias: the lower-cased first letter of its name.
// Example: "TestUser" -> "t"
func (n *Namer) TableAlias(entityName string) string {
	r, _ := utf8.DecodeRuneInString(entityName)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToLower(r))
}

// CamelToSnake converts camelCase or PascalCase to snake_case.
// Runs of capitals are kept together: "userID" -> "user_id", "HTTPServer" -> "http_server".
func CamelToSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && runes[i-1] != '_' {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SnakeToCamel converts snake_case to camelCase
func SnakeToCamel(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		parts[i] = UpperFirst(parts[i])
	}
	return strings.Join(parts, "")
}

// UpperFirst upper-cases the first letter.
func UpperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// LowerFirst lower-cases the first letter.
func LowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToLower(r)) + s[size:]
}

// SplitCamel splits a camel-case identifier at word boundaries.
// Example: "rolesRoleName" -> ["roles", "Role", "Name"], "userIDList" -> ["user", "ID", "List"]
func SplitCamel(s string) []string {
	runes := []rune(s)
	var parts []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if !unicode.IsUpper(runes[i]) {
			continue
		}
		prev := runes[i-1]
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if !unicode.IsUpper(prev) || nextLower {
			parts = append(parts, string(runes[start:i]))
			start = i
		}
	}
	if start < len(runes) {
		parts = append(parts, string(runes[start:]))
	}
	return parts
}
