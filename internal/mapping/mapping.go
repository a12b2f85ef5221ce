// Package mapping loads declarative mapping files: YAML documents that list
// entities and the mapper methods declared over them.
package mapping

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// File is one parsed mapping document.
type File struct {
	Entities []Entity `yaml:"entities"`
	Mappers  []Mapper `yaml:"mappers"`
}

// Entity declares a persistent type.
type Entity struct {
	Name    string   `yaml:"name"`
	Table   string   `yaml:"table"`
	IDClass []string `yaml:"id_class"`
	Fields  []Field  `yaml:"fields"`
}

// Field declares one property of an entity.
type Field struct {
	Name        string    `yaml:"name"`
	Column      string    `yaml:"column"`
	Type        string    `yaml:"type"`
	Nullable    bool      `yaml:"nullable"`
	ID          bool      `yaml:"id"`
	Generation  string    `yaml:"generation"`
	Generator   string    `yaml:"generator"`
	Sequence    string    `yaml:"sequence"`
	TypeHandler string    `yaml:"type_handler"`
	JDBCType    string    `yaml:"jdbc_type"`
	Transient   bool      `yaml:"transient"`
	Triggers    []Trigger `yaml:"triggers"`
	Relation    *Relation `yaml:"relation"`
}

// Trigger declares a value injected on insert or update.
type Trigger struct {
	On        string `yaml:"on"`
	ValueType string `yaml:"value_type"`
	Value     string `yaml:"value"`
	Force     bool   `yaml:"force"`
}

// Relation declares a relation field.
type Relation struct {
	Kind           string      `yaml:"kind"`
	Target         string      `yaml:"target"`
	CollectionType string      `yaml:"collection_type"`
	MappedBy       string      `yaml:"mapped_by"`
	JoinColumn     *JoinColumn `yaml:"join_column"`
	JoinTable      *JoinTable  `yaml:"join_table"`
	Includes       []string    `yaml:"includes"`
	Excludes       []string    `yaml:"excludes"`
	JoinNothing    bool        `yaml:"join_nothing"`
	SubQuery       *SubQuery   `yaml:"sub_query"`
}

// JoinColumn names the property pair of a direct relation.
type JoinColumn struct {
	Property           string `yaml:"property"`
	ReferencedProperty string `yaml:"referenced_property"`
}

// JoinTable names the link table of a many-to-many relation.
type JoinTable struct {
	Name                      string `yaml:"name"`
	Property                  string `yaml:"property"`
	ReferencedProperty        string `yaml:"referenced_property"`
	InverseProperty           string `yaml:"inverse_property"`
	InverseReferencedProperty string `yaml:"inverse_referenced_property"`
}

// SubQuery filters and orders the rows a relation's finder returns.
type SubQuery struct {
	Predicates []SubPredicate `yaml:"predicates"`
	Orders     []SubOrder     `yaml:"orders"`
}

// SubPredicate is a raw condition on a target property, e.g. "> '0'".
type SubPredicate struct {
	Property  string `yaml:"property"`
	Condition string `yaml:"condition"`
}

// SubOrder orders finder rows by a target property.
type SubOrder struct {
	Property  string `yaml:"property"`
	Direction string `yaml:"direction"`
}

// Mapper declares the methods of one namespace.
type Mapper struct {
	Namespace  string   `yaml:"namespace"`
	Entity     string   `yaml:"entity"`
	NoBuiltins bool     `yaml:"no_builtins"`
	Methods    []Method `yaml:"methods"`
}

// Method declares one mapper method.
type Method struct {
	Name       string  `yaml:"name"`
	ReturnType string  `yaml:"return_type"`
	IfTest     string  `yaml:"if_test"`
	SQL        string  `yaml:"sql"`
	Params     []Param `yaml:"params"`
}

// Param declares one method parameter. Kind defaults to value.
type Param struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Kind   string `yaml:"kind"`
	IfTest string `yaml:"if_test"`
}

// Parse decodes a mapping document. Unknown keys are rejected so typos in
// a mapping file fail at startup.
func Parse(data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse mapping: %w", err)
	}
	return &f, nil
}

// Load reads and merges the given mapping files in order.
func Load(paths ...string) (*File, error) {
	if len(paths) == 0 {
		return nil, errors.New("no mapping files given")
	}
	out := &File{}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read mapping file %s: %w", path, err)
		}
		f, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out.Merge(f)
	}
	return out, nil
}

// Merge appends the entities and mappers of other.
func (f *File) Merge(other *File) {
	f.Entities = append(f.Entities, other.Entities...)
	f.Mappers = append(f.Mappers, other.Mappers...)
}
