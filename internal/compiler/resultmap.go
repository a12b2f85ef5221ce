package compiler

import (
	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
)

// ResultMapping maps one column to a property, or nests the rows of a
// joined relation under a property.
type ResultMapping struct {
	Property    string
	Column      string
	Type        string
	JDBCType    string
	TypeHandler string
	ID          bool

	// NestedResultMap maps the joined columns of a relation.
	NestedResultMap string
	// NestedSelect is the finder that loads the relation on its own.
	NestedSelect string
	Collection   bool
	// OfType is the element type of a collection.
	OfType string
}

// Nested reports whether the mapping populates a relation.
func (m ResultMapping) Nested() bool {
	return m.NestedResultMap != ""
}

// ResultMap maps the rows of a select to an entity.
type ResultMap struct {
	ID       string
	Type     string
	Mappings []ResultMapping
}

// IDColumns returns the columns that identify one entity across rows.
func (r *ResultMap) IDColumns() []string {
	var out []string
	for _, m := range r.Mappings {
		if m.ID {
			out = append(out, m.Column)
		}
	}
	return out
}

func scalarMappings(e *metadata.Entity) []ResultMapping {
	cols := e.ScalarColumns()
	out := make([]ResultMapping, 0, len(cols))
	for _, c := range cols {
		out = append(out, ResultMapping{
			Property:    c.Property,
			Column:      c.Name,
			Type:        c.Type,
			JDBCType:    c.JDBCType,
			TypeHandler: c.TypeHandler,
			ID:          c.PrimaryKey,
		})
	}
	return out
}

func baseResultMap(namespace string, e *metadata.Entity) *ResultMap {
	return &ResultMap{ID: namespace + ".BaseResultMap", Type: e.Name, Mappings: scalarMappings(e)}
}

// resultMap is the base map of the entity for a statement without joins,
// and a statement-specific map nesting each joined relation otherwise.
func resultMap(st *Statement) *ResultMap {
	if len(st.Joins) == 0 {
		return baseResultMap(st.Namespace(), st.Entity)
	}
	rm := &ResultMap{ID: st.ID + "ResultMap", Type: st.Entity.Name, Mappings: scalarMappings(st.Entity)}
	for _, j := range st.Joins {
		rm.Mappings = append(rm.Mappings, ResultMapping{
			Property:        j.Property(),
			Type:            j.DeclaredType(),
			NestedResultMap: j.NestedResultMap(),
			NestedSelect:    j.NestedSelect(),
			Collection:      j.Relation.Collection(),
			OfType:          j.Relation.TargetName,
		})
	}
	return rm
}

// finderResultMap maps a join finder's columns under their
// statement-unique names, so owner statements can reuse it for joined rows.
func finderResultMap(m *mapper.MethodDefinition) *ResultMap {
	rm := &ResultMap{ID: m.StatementID() + "ResultMap", Type: m.Entity.Name}
	for _, c := range m.Columns {
		rm.Mappings = append(rm.Mappings, ResultMapping{
			Property: c.Property,
			Column:   c.Column,
			Type:     c.Type,
			JDBCType: c.JDBCType,
			ID:       c.ID,
		})
	}
	return rm
}
