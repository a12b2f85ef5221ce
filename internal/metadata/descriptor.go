package metadata

// Described is implemented by anything that can describe a persistent type:
// generated code, hand-written structs or a declarative mapping file.
type Described interface {
	Describe() EntityDescriptor
}

// EntityDescriptor is the pre-extracted shape of a persistent type.
type EntityDescriptor struct {
	Name  string
	Table string
	// IDClass lists the properties of the declared composite key type.
	IDClass []string
	Fields  []FieldDescriptor
}

// Describe lets a plain descriptor be registered directly.
func (d EntityDescriptor) Describe() EntityDescriptor {
	return d
}

// FieldDescriptor describes one declared field.
type FieldDescriptor struct {
	Name        string
	Column      string
	Type        string
	Nullable    bool
	ID          bool
	Generation  GenerationType
	Generator   string
	Sequence    string
	TypeHandler string
	JDBCType    string
	Triggers    []Trigger
	Transient   bool
	Relation    *RelationDescriptor
}

// RelationDescriptor describes a relation field.
type RelationDescriptor struct {
	Kind           RelationKind
	Target         string
	CollectionType string
	MappedBy       string
	JoinColumn     *JoinColumn
	JoinTable      *JoinTable
	Includes       []string
	Excludes       []string
	JoinNothing    bool
	SubQuery       *SubQuery
}
