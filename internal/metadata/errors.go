package metadata

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind tags a configuration error.
type ErrorKind int

const (
	UnresolvedMappedBy ErrorKind = iota + 1
	MissingPrimaryKey
	CompositeKeyMismatch
	UnsupportedStatement
	ParameterCount
	PropertyNotFound
	UnknownEntity
	DuplicateEntity
	DuplicateProperty
	InvalidRelation
)

func (k ErrorKind) String() string {
	switch k {
	case UnresolvedMappedBy:
		return "unresolved mapped_by"
	case MissingPrimaryKey:
		return "missing primary key"
	case CompositeKeyMismatch:
		return "composite key mismatch"
	case UnsupportedStatement:
		return "unsupported statement"
	case ParameterCount:
		return "parameter count mismatch"
	case PropertyNotFound:
		return "property not found"
	case UnknownEntity:
		return "unknown entity"
	case DuplicateEntity:
		return "duplicate entity"
	case DuplicateProperty:
		return "duplicate property"
	case InvalidRelation:
		return "invalid relation"
	default:
		return "configuration error"
	}
}

// ConfigError reports inconsistent metadata detected while building the model
// or compiling statements. It always names the offending entity, property or
// statement so startup failures are actionable.
type ConfigError struct {
	Kind      ErrorKind
	Entity    string
	Property  string
	Statement string
	Message   string
}

func (e *ConfigError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Statement != "" {
		fmt.Fprintf(&b, " in statement %s", e.Statement)
	}
	if e.Entity != "" {
		fmt.Fprintf(&b, " (entity %s", e.Entity)
		if e.Property != "" {
			fmt.Fprintf(&b, ", property %s", e.Property)
		}
		b.WriteString(")")
	} else if e.Property != "" {
		fmt.Fprintf(&b, " (property %s)", e.Property)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

// IsKind reports whether err wraps a ConfigError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return cfgErr.Kind == kind
	}
	return false
}
