// Package mapper holds the statement definitions declared for each entity:
// the built-in CRUD catalogue, methods declared in mapping files, and the
// synthetic join finders added for every relation.
package mapper

import (
	"regexp"
	"strconv"

	"sqlmapper/internal/metadata"
)

// ParameterKind classifies a method parameter.
type ParameterKind int

const (
	ParamValue ParameterKind = iota
	ParamEntity
	ParamList
	ParamPage
	ParamSort
	ParamSpecification
	ParamUpdateSpecification
)

func (k ParameterKind) String() string {
	switch k {
	case ParamEntity:
		return "entity"
	case ParamList:
		return "list"
	case ParamPage:
		return "page"
	case ParamSort:
		return "sort"
	case ParamSpecification:
		return "specification"
	case ParamUpdateSpecification:
		return "update_specification"
	default:
		return "value"
	}
}

// IfTest guards predicates so absent arguments drop out of the statement.
type IfTest int

const (
	IfTestNone IfTest = iota
	IfTestNotNull
	IfTestNotEmpty
)

func (t IfTest) String() string {
	switch t {
	case IfTestNotNull:
		return "not_null"
	case IfTestNotEmpty:
		return "not_empty"
	default:
		return "none"
	}
}

// MethodKind selects the statement builder used for a method.
type MethodKind int

const (
	KindQuery MethodKind = iota
	KindInsert
	KindInsertSelective
	KindInsertBatch
	KindUpdate
	KindUpdateSelective
	KindUpdateBatch
	KindDeleteByID
	KindDeleteBatch
	KindFindByID
	KindExistsByID
	KindFindAll
	KindFindAllByID
	KindFindAllPage
	KindFindAllPageSort
	KindFindSpecification
	KindCountSpecification
	KindUpdateSpecification
	KindJoinFinder
	KindCustomSQL
)

var kindNames = map[MethodKind]string{
	KindQuery:               "query",
	KindInsert:              "insert",
	KindInsertSelective:     "insert_selective",
	KindInsertBatch:         "insert_batch",
	KindUpdate:              "update",
	KindUpdateSelective:     "update_selective",
	KindUpdateBatch:         "update_batch",
	KindDeleteByID:          "delete_by_id",
	KindDeleteBatch:         "delete_batch",
	KindFindByID:            "find_by_id",
	KindExistsByID:          "exists_by_id",
	KindFindAll:             "find_all",
	KindFindAllByID:         "find_all_by_id",
	KindFindAllPage:         "find_all_page",
	KindFindAllPageSort:     "find_all_page_sort",
	KindFindSpecification:   "find_specification",
	KindCountSpecification:  "count_specification",
	KindUpdateSpecification: "update_specification",
	KindJoinFinder:          "join_finder",
	KindCustomSQL:           "custom_sql",
}

func (k MethodKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParameterDefinition is one declared method parameter.
type ParameterDefinition struct {
	Index  int
	Name   string
	Type   string
	Kind   ParameterKind
	IfTest IfTest
}

// ColumnDefinition is a column selected by a join, under a statement-unique name.
type ColumnDefinition struct {
	Property       string
	Column         string
	OriginalColumn string
	Type           string
	JDBCType       string
	ID             bool
}

var queryPrefix = regexp.MustCompile(`^(find|read|get|query|stream)`)

// MethodDefinition describes one statement to compile.
type MethodDefinition struct {
	Namespace  string
	Name       string
	Kind       MethodKind
	Entity     *metadata.Entity
	Params     []ParameterDefinition
	ReturnType string
	IfTest     IfTest
	SQL        string

	BaseResultMap      bool
	CompositeResultMap bool
	PageIndex          int
	SortIndex          int
	SpecIndex          int

	// Joins attached by relation expansion, in relation declaration order.
	Joins []*JoinStatement

	// Join finder fields.
	Relation *metadata.Relation
	Columns  []ColumnDefinition
}

func newMethodDefinition(namespace, name string, kind MethodKind, entity *metadata.Entity, params []ParameterDefinition) *MethodDefinition {
	m := &MethodDefinition{
		Namespace: namespace,
		Name:      name,
		Kind:      kind,
		Entity:    entity,
		Params:    params,
		PageIndex: -1,
		SortIndex: -1,
		SpecIndex: -1,
	}
	for i := range m.Params {
		p := &m.Params[i]
		p.Index = i
		if p.Name == "" {
			p.Name = "param" + strconv.Itoa(i+1)
		}
		switch p.Kind {
		case ParamPage:
			m.PageIndex = i
		case ParamSort:
			m.SortIndex = i
		case ParamSpecification, ParamUpdateSpecification:
			m.SpecIndex = i
		}
	}
	m.CompositeResultMap = kind != KindJoinFinder && kind != KindCustomSQL && queryPrefix.MatchString(name)
	return m
}

// StatementID is the namespace-qualified method name.
func (m *MethodDefinition) StatementID() string {
	return m.Namespace + "." + m.Name
}

// ArgumentCount counts the parameters that carry values, excluding a page.
func (m *MethodDefinition) ArgumentCount() int {
	n := 0
	for _, p := range m.Params {
		if p.Kind != ParamPage {
			n++
		}
	}
	return n
}

// OneParameter reports whether a single value-carrying parameter is declared.
func (m *MethodDefinition) OneParameter() bool {
	return m.ArgumentCount() == 1
}

// ValueParams returns the parameters consumed by predicates, in order.
func (m *MethodDefinition) ValueParams() []ParameterDefinition {
	out := make([]ParameterDefinition, 0, len(m.Params))
	for _, p := range m.Params {
		if p.Kind == ParamValue || p.Kind == ParamList || p.Kind == ParamEntity {
			out = append(out, p)
		}
	}
	return out
}

// HasPage reports whether the method receives a page argument.
func (m *MethodDefinition) HasPage() bool {
	return m.PageIndex >= 0
}

// HasSort reports whether the method receives a sort argument.
func (m *MethodDefinition) HasSort() bool {
	return m.SortIndex >= 0
}

// Specification reports whether the method receives a specification.
func (m *MethodDefinition) Specification() bool {
	return m.SpecIndex >= 0
}

// JoinMethod reports whether this is a synthetic join finder.
func (m *MethodDefinition) JoinMethod() bool {
	return m.Kind == KindJoinFinder
}

// ParamName names the parameter at index i as templates reference it.
// A method with a single value-carrying parameter refers to it as _parameter.
func (m *MethodDefinition) ParamName(i int) string {
	if m.OneParameter() && m.Params[i].Kind != ParamPage {
		return "_parameter"
	}
	return m.Params[i].Name
}

// Join returns the join attached for a relation property.
func (m *MethodDefinition) Join(property string) (*JoinStatement, bool) {
	for _, j := range m.Joins {
		if j.Relation.Property == property {
			return j, true
		}
	}
	return nil, false
}

// AttachJoin adds a join unless one for the same relation is already attached.
func (m *MethodDefinition) AttachJoin(j *JoinStatement) {
	if _, ok := m.Join(j.Relation.Property); ok {
		return
	}
	m.Joins = append(m.Joins, j)
}

// MapperDefinition groups the methods of one namespace, bound to one entity.
type MapperDefinition struct {
	Namespace string
	Entity    *metadata.Entity
	Implicit  bool
	Methods   []*MethodDefinition
}

// Method looks up a method by name.
func (d *MapperDefinition) Method(name string) (*MethodDefinition, bool) {
	for _, m := range d.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return nil, false
}

func (d *MapperDefinition) put(m *MethodDefinition) {
	for i, existing := range d.Methods {
		if existing.Name == m.Name {
			d.Methods[i] = m
			return
		}
	}
	d.Methods = append(d.Methods, m)
}
