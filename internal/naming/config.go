// Package naming provides the identifier conversions shared by the metadata
// and statement layers: camel/snake case, first-letter casing, optional table
// pluralisation and collision-safe column and method names.
package naming

// Config holds naming customization options
type Config struct {
	// PluralizeTables derives default table names from the pluralised entity name.
	// Example: "UserRole" -> "user_roles" instead of "user_role"
	PluralizeTables bool `mapstructure:"pluralize_tables"`

	// PluralOverrides maps singular -> custom plural
	// Example: {"person": "people", "status": "statuses"}
	PluralOverrides map[string]string `mapstructure:"plural_overrides"`

	// SingularOverrides maps plural -> custom singular
	// Example: {"people": "person", "data": "datum"}
	SingularOverrides map[string]string `mapstructure:"singular_overrides"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		PluralOverrides:   make(map[string]string),
		SingularOverrides: make(map[string]string),
	}
}
