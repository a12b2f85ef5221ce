// Package metadata models persistent entities, their columns and the relations
// between them. Entities are built once from Described descriptors and resolved
// in a second pass, after which the model is read-only.
package metadata

import (
	"fmt"
	"slices"
	"strings"
)

// RelationKind classifies a relation between two entities.
type RelationKind int

const (
	OneToOne RelationKind = iota + 1
	ManyToOne
	OneToMany
	ManyToMany
)

func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "ONE_TO_ONE"
	case ManyToOne:
		return "MANY_TO_ONE"
	case OneToMany:
		return "ONE_TO_MANY"
	case ManyToMany:
		return "MANY_TO_MANY"
	default:
		return "UNKNOWN"
	}
}

// ParseRelationKind accepts the upper or snake form, e.g. "MANY_TO_MANY" or "many_to_many".
func ParseRelationKind(s string) (RelationKind, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "_")) {
	case "ONE_TO_ONE":
		return OneToOne, nil
	case "MANY_TO_ONE":
		return ManyToOne, nil
	case "ONE_TO_MANY":
		return OneToMany, nil
	case "MANY_TO_MANY":
		return ManyToMany, nil
	}
	return 0, fmt.Errorf("unknown relation kind %q", s)
}

// ToMany reports whether the relation materializes as a collection.
func (k RelationKind) ToMany() bool {
	return k == OneToMany || k == ManyToMany
}

// GenerationType tags how a primary key value is produced.
type GenerationType int

const (
	GenerationNone GenerationType = iota
	GenerationAuto
	GenerationIdentity
	GenerationSequence
	GenerationUUID
	GenerationCombUUID
)

func (g GenerationType) String() string {
	switch g {
	case GenerationAuto:
		return "AUTO"
	case GenerationIdentity:
		return "IDENTITY"
	case GenerationSequence:
		return "SEQUENCE"
	case GenerationUUID:
		return "UUID"
	case GenerationCombUUID:
		return "COMB_UUID"
	default:
		return "NONE"
	}
}

// ParseGenerationType parses a generation tag; the empty string means none.
func ParseGenerationType(s string) (GenerationType, error) {
	switch strings.ToUpper(s) {
	case "", "NONE":
		return GenerationNone, nil
	case "AUTO":
		return GenerationAuto, nil
	case "IDENTITY":
		return GenerationIdentity, nil
	case "SEQUENCE":
		return GenerationSequence, nil
	case "UUID":
		return GenerationUUID, nil
	case "COMB_UUID":
		return GenerationCombUUID, nil
	}
	return GenerationNone, fmt.Errorf("unknown generation type %q", s)
}

// TriggerEvent is the statement kind a trigger fires on.
type TriggerEvent int

const (
	TriggerInsert TriggerEvent = iota + 1
	TriggerUpdate
)

func (e TriggerEvent) String() string {
	if e == TriggerUpdate {
		return "UPDATE"
	}
	return "INSERT"
}

// TriggerValueType selects where a trigger value comes from.
type TriggerValueType int

const (
	// DatabaseFunction renders Value verbatim into the statement, e.g. "now()".
	DatabaseFunction TriggerValueType = iota + 1
	// CodeValue names a value function registered with the key generator registry.
	CodeValue
)

func (t TriggerValueType) String() string {
	if t == CodeValue {
		return "CODE"
	}
	return "DATABASE_FUNCTION"
}

// Trigger injects a column value on insert or update.
type Trigger struct {
	Event     TriggerEvent
	ValueType TriggerValueType
	Value     string
	// Force overrides a value supplied by the caller.
	Force bool
}

// Column is one persisted property. Relation columns carry a Relation and no
// database column of their own.
type Column struct {
	Property    string
	Name        string
	Type        string
	Nullable    bool
	PrimaryKey  bool
	Generation  GenerationType
	Generator   string
	Sequence    string
	TypeHandler string
	JDBCType    string
	Triggers    []Trigger
	Relation    *Relation
}

// IsRelation reports whether the column is a relation rather than a scalar.
func (c *Column) IsRelation() bool {
	return c.Relation != nil
}

// Trigger returns the trigger configured for the given event.
func (c *Column) Trigger(event TriggerEvent) (Trigger, bool) {
	for _, t := range c.Triggers {
		if t.Event == event {
			return t, true
		}
	}
	return Trigger{}, false
}

// JoinColumn names the property pair a direct relation joins on.
// Property lives on the owning side and ReferencedProperty on the target.
type JoinColumn struct {
	Property           string
	ReferencedProperty string
}

// JoinTable describes the link table of a many-to-many relation.
// Property/InverseProperty are link-table properties; ReferencedProperty is on
// the owning entity and InverseReferencedProperty on the target.
type JoinTable struct {
	Name                      string
	Property                  string
	ReferencedProperty        string
	InverseProperty           string
	InverseReferencedProperty string
}

// SubPredicate is a raw condition applied to a property inside a join finder.
type SubPredicate struct {
	Property  string
	Condition string
}

// SubOrder orders join finder rows.
type SubOrder struct {
	Property  string
	Direction string
}

// SubQuery filters and orders the rows a relation's join finder returns.
type SubQuery struct {
	Predicates []SubPredicate
	Orders     []SubOrder
}

// Relation links an owning entity property to a target entity.
type Relation struct {
	Kind           RelationKind
	Owner          *Entity
	Property       string
	TargetName     string
	Target         *Entity
	CollectionType string
	MappedBy       string
	JoinColumn     *JoinColumn
	JoinTable      *JoinTable
	Includes       []string
	Excludes       []string
	JoinNothing    bool
	SubQuery       *SubQuery

	// Populated by Registry.Resolve.
	Alias                       string
	TableName                   string
	LinkTable                   string
	JoinProperty                string
	ReferencedProperty          string
	InverseProperty             string
	InverseReferencedProperty   string
	ColumnName                  string
	ReferencedColumnName        string
	InverseColumnName           string
	InverseReferencedColumnName string
	PropertyType                string
	resolved                    bool
}

// Collection reports whether the relation property holds many targets.
func (r *Relation) Collection() bool {
	return r.Kind.ToMany()
}

// HasLinkTable reports whether the relation joins through a link table.
func (r *Relation) HasLinkTable() bool {
	return r.LinkTable != ""
}

// Resolved reports whether join columns have been computed.
func (r *Relation) Resolved() bool {
	return r.resolved
}

// Applies reports whether the relation expands into the given owner method.
func (r *Relation) Applies(method string) bool {
	if r.JoinNothing {
		return false
	}
	if len(r.Excludes) > 0 && slices.Contains(r.Excludes, method) {
		return false
	}
	if len(r.Includes) > 0 && !slices.Contains(r.Includes, method) {
		return false
	}
	return true
}
