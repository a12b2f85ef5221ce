package compiler

import (
	"fmt"
	"strings"

	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
	"sqlmapper/internal/sqlfrag"
)

func (c *Compiler) write(m *mapper.MethodDefinition, cmd Command) *Statement {
	st := c.statement(m, cmd)
	st.Alias = ""
	st.Joins = nil
	return st
}

// insertColumns are the scalar columns an insert writes: every column
// except a key the database assigns itself.
func insertColumns(e *metadata.Entity) []*metadata.Column {
	var out []*metadata.Column
	for _, col := range distinctColumns(e) {
		if col.PrimaryKey && col.Generation == metadata.GenerationIdentity {
			continue
		}
		out = append(out, col)
	}
	return out
}

func updateColumns(e *metadata.Entity) []*metadata.Column {
	var out []*metadata.Column
	for _, col := range distinctColumns(e) {
		if !col.PrimaryKey {
			out = append(out, col)
		}
	}
	return out
}

// databaseFunction returns the function a trigger renders in place of a
// bound value.
func databaseFunction(col *metadata.Column, event metadata.TriggerEvent) (string, bool) {
	t, ok := col.Trigger(event)
	if !ok || t.ValueType != metadata.DatabaseFunction {
		return "", false
	}
	return t.Value, true
}

func value(col *metadata.Column, event metadata.TriggerEvent, prefix string) sqlfrag.Node {
	if fn, ok := databaseFunction(col, event); ok {
		return sqlfrag.Text(fn)
	}
	return sqlfrag.Param{Path: prefix + col.Property}
}

func columnNames(cols []*metadata.Column) string {
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return strings.Join(names, ", ")
}

func valuesRow(cols []*metadata.Column, prefix string) []sqlfrag.Node {
	out := []sqlfrag.Node{sqlfrag.Text("(")}
	for i, col := range cols {
		if i > 0 {
			out = append(out, sqlfrag.Text(", "))
		}
		out = append(out, value(col, metadata.TriggerInsert, prefix))
	}
	return append(out, sqlfrag.Text(")"))
}

func (c *Compiler) insert(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.write(m, Insert)
	cols := insertColumns(m.Entity)
	st.Nodes = append([]sqlfrag.Node{
		sqlfrag.Text("INSERT INTO " + m.Entity.Table + " (" + columnNames(cols) + ") VALUES "),
	}, valuesRow(cols, "")...)
	if err := c.keys(st); err != nil {
		return nil, err
	}
	return st, nil
}

// insertSelective writes only the columns whose value is set. Columns
// filled by a database function are always written.
func (c *Compiler) insertSelective(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.write(m, Insert)
	names := sqlfrag.Trim{Prefix: "(", Suffix: ")", SuffixOverrides: []string{","}}
	values := sqlfrag.Trim{Prefix: "VALUES (", Suffix: ")", SuffixOverrides: []string{","}}
	for _, col := range insertColumns(m.Entity) {
		if fn, ok := databaseFunction(col, metadata.TriggerInsert); ok {
			names.Body = append(names.Body, sqlfrag.Text(col.Name+", "))
			values.Body = append(values.Body, sqlfrag.Text(fn+", "))
			continue
		}
		set := []sqlfrag.Cond{{Path: col.Property, Op: sqlfrag.NotNull}}
		names.Body = append(names.Body, sqlfrag.If{Conds: set, Body: []sqlfrag.Node{sqlfrag.Text(col.Name + ", ")}})
		values.Body = append(values.Body, sqlfrag.If{Conds: set, Body: []sqlfrag.Node{
			sqlfrag.Param{Path: col.Property}, sqlfrag.Text(", "),
		}})
	}
	st.Nodes = []sqlfrag.Node{sqlfrag.Text("INSERT INTO " + m.Entity.Table + " "), names, sqlfrag.Text(" "), values}
	if err := c.keys(st); err != nil {
		return nil, err
	}
	return st, nil
}

// insertBatch inserts every element of the list argument in one
// multi-row statement. Keys are generated in code, never read back.
func (c *Compiler) insertBatch(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.write(m, Insert)
	cols := insertColumns(m.Entity)
	st.Nodes = []sqlfrag.Node{
		sqlfrag.Text("INSERT INTO " + m.Entity.Table + " (" + columnNames(cols) + ") VALUES "),
		sqlfrag.ForEach{Collection: m.Params[0].Name, Item: "item", Separator: ", ", Body: valuesRow(cols, "item.")},
	}
	return st, nil
}

func keyCondition(e *metadata.Entity, prefix string) []sqlfrag.Node {
	out := []sqlfrag.Node{sqlfrag.Text(" WHERE ")}
	for i, pk := range e.PrimaryColumns() {
		if i > 0 {
			out = append(out, sqlfrag.Text(" AND "))
		}
		out = append(out, sqlfrag.Text(pk.Name+" = "), sqlfrag.Param{Path: prefix + pk.Property})
	}
	return out
}

func (c *Compiler) updateNodes(m *mapper.MethodDefinition, prefix string) ([]sqlfrag.Node, error) {
	cols := updateColumns(m.Entity)
	if len(cols) == 0 {
		return nil, &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: m.Entity.Name,
			Statement: m.StatementID(), Message: "entity has no columns outside its primary key"}
	}
	out := []sqlfrag.Node{sqlfrag.Text("UPDATE " + m.Entity.Table + " SET ")}
	for i, col := range cols {
		if i > 0 {
			out = append(out, sqlfrag.Text(", "))
		}
		out = append(out, sqlfrag.Text(col.Name+" = "), value(col, metadata.TriggerUpdate, prefix))
	}
	return append(out, keyCondition(m.Entity, prefix)...), nil
}

func (c *Compiler) update(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.write(m, Update)
	nodes, err := c.updateNodes(m, "")
	if err != nil {
		return nil, err
	}
	st.Nodes = nodes
	return st, nil
}

// updateSelective sets only the columns whose value is set.
func (c *Compiler) updateSelective(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.write(m, Update)
	cols := updateColumns(m.Entity)
	if len(cols) == 0 {
		return nil, &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: m.Entity.Name,
			Statement: m.StatementID(), Message: "entity has no columns outside its primary key"}
	}
	var set sqlfrag.Set
	for _, col := range cols {
		if fn, ok := databaseFunction(col, metadata.TriggerUpdate); ok {
			set.Body = append(set.Body, sqlfrag.Text(col.Name+" = "+fn+", "))
			continue
		}
		set.Body = append(set.Body, sqlfrag.If{
			Conds: []sqlfrag.Cond{{Path: col.Property, Op: sqlfrag.NotNull}},
			Body:  []sqlfrag.Node{sqlfrag.Text(col.Name + " = "), sqlfrag.Param{Path: col.Property}, sqlfrag.Text(", ")},
		})
	}
	st.Nodes = append([]sqlfrag.Node{sqlfrag.Text("UPDATE " + m.Entity.Table), set}, keyCondition(m.Entity, "")...)
	return st, nil
}

// updateBatch renders one UPDATE per list element separated by ';'. The
// connection must accept multiple statements per call.
func (c *Compiler) updateBatch(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.write(m, Update)
	body, err := c.updateNodes(m, "item.")
	if err != nil {
		return nil, err
	}
	st.Nodes = []sqlfrag.Node{sqlfrag.ForEach{Collection: m.Params[0].Name, Item: "item", Separator: "; ", Body: body}}
	return st, nil
}

func (c *Compiler) deleteBatch(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.write(m, Delete)
	st.Nodes = append([]sqlfrag.Node{sqlfrag.Text("DELETE FROM " + m.Entity.Table + " WHERE ")}, keyIn(st, m.Params[0].Name)...)
	return st, nil
}

func (c *Compiler) updateSpecification(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.write(m, Update)
	name := m.Params[m.SpecIndex].Name
	st.Nodes = []sqlfrag.Node{
		sqlfrag.Text("UPDATE " + m.Entity.Table),
		sqlfrag.Set{Body: []sqlfrag.Node{sqlfrag.Raw{Path: name + ".set"}}},
		sqlfrag.Where{Body: []sqlfrag.Node{sqlfrag.Raw{Path: name + ".where"}}},
	}
	return st, nil
}

// keys decides how an insert returns its key: none without a single
// primary key column, read back for explicit generators and identity
// columns, set in code for UUID keys and fetched before the insert for
// sequences.
func (c *Compiler) keys(st *Statement) error {
	pk := st.Entity.PrimaryColumn()
	if pk == nil {
		return nil
	}
	switch {
	case pk.Generator != "":
		st.KeyGeneration = KeyJDBC3
	case pk.Generation == metadata.GenerationNone, pk.Generation == metadata.GenerationAuto:
		return nil
	case pk.Generation == metadata.GenerationIdentity:
		st.KeyGeneration = KeyJDBC3
	case pk.Generation == metadata.GenerationSequence:
		if pk.Sequence == "" {
			return &metadata.ConfigError{Kind: metadata.MissingPrimaryKey, Entity: st.Entity.Name,
				Property: pk.Property, Statement: st.ID, Message: "sequence key generation needs a sequence name"}
		}
		sql, err := c.dialect.KeySQL(pk.Sequence)
		if err != nil {
			return &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: st.Entity.Name,
				Property: pk.Property, Statement: st.ID, Message: fmt.Sprintf("sequence %s: %v", pk.Sequence, err)}
		}
		st.KeyGeneration = KeySelect
		st.SelectKey = &SelectKey{SQL: sql, Property: pk.Property, Column: pk.Name, Type: pk.Type}
	default:
		st.KeyGeneration = KeyJDBC3NoCallback
	}
	st.KeyProperty = pk.Property
	st.KeyColumn = pk.Name
	return nil
}
