package compiler

import (
	"fmt"
	"strings"

	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
	"sqlmapper/internal/parttree"
	"sqlmapper/internal/sqlfrag"
)

// query compiles a method whose name describes its predicate. argName,
// when set, names the template path of each predicate argument and turns
// off the arity check.
func (c *Compiler) query(m *mapper.MethodDefinition, source string, argName func(int) string) (*Statement, error) {
	tree, err := parttree.Parse(source, m.Entity, m.StatementID())
	if err != nil {
		return nil, err
	}
	if tree.Subject.Join {
		return nil, &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: m.Entity.Name,
			Statement: m.StatementID(), Message: "findWith and findJoinWith names are reserved for relation finders"}
	}
	if argName == nil {
		params := m.ValueParams()
		if n := tree.ArgumentCount(); n != len(params) {
			return nil, &metadata.ConfigError{Kind: metadata.ParameterCount, Entity: m.Entity.Name,
				Statement: m.StatementID(),
				Message:   fmt.Sprintf("method name binds %d arguments but %d are declared", n, len(params))}
		}
		argName = func(i int) string { return params[i].Name }
	}

	switch s := tree.Subject; {
	case s.Delete:
		return c.deleteQuery(m, tree, argName)
	case s.Count || s.Exists:
		return c.countQuery(m, tree, argName)
	}

	st := c.statement(m, Select)
	if err := c.attach(st, tree.Relations()); err != nil {
		return nil, err
	}
	ctx := renderContext(st, argName)
	conds, err := tree.Conditions(ctx)
	if err != nil {
		return nil, err
	}
	static, err := tree.OrderBy(ctx)
	if err != nil {
		return nil, err
	}
	st.Nodes = append([]sqlfrag.Node{
		sqlfrag.Text(selectFrom(st, tree.Subject.Distinct)),
		sqlfrag.Where{Body: conds},
	}, orderBy(m, static)...)
	st.MaxResults = tree.Subject.MaxResults
	st.ResultMap = resultMap(st)
	return st, nil
}

func (c *Compiler) deleteQuery(m *mapper.MethodDefinition, tree *parttree.PartTree, argName func(int) string) (*Statement, error) {
	if rels := tree.Relations(); len(rels) > 0 {
		return nil, &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: m.Entity.Name,
			Property: rels[0].Property, Statement: m.StatementID(),
			Message: "delete conditions cannot reference relation properties"}
	}
	st := c.statement(m, Delete)
	st.Alias = ""
	st.Joins = nil
	conds, err := tree.Conditions(renderContext(st, argName))
	if err != nil {
		return nil, err
	}
	st.Nodes = []sqlfrag.Node{sqlfrag.Text("DELETE FROM " + m.Entity.Table), sqlfrag.Where{Body: conds}}
	return st, nil
}

func (c *Compiler) countQuery(m *mapper.MethodDefinition, tree *parttree.PartTree, argName func(int) string) (*Statement, error) {
	st := c.statement(m, Select)
	st.Joins = nil
	rels := tree.Relations()
	if len(rels) == 0 {
		st.Alias = ""
	} else if err := c.attach(st, rels); err != nil {
		return nil, err
	}
	conds, err := tree.Conditions(renderContext(st, argName))
	if err != nil {
		return nil, err
	}
	st.Nodes = countNodes(st, sqlfrag.Where{Body: conds})
	st.ResultType = "int64"
	if tree.Subject.Exists {
		st.ResultType = "bool"
	}
	return st, nil
}

// countNodes counts entity rows. With joins attached, rows multiplied by
// to-many joins are counted once.
func countNodes(st *Statement, where sqlfrag.Node) []sqlfrag.Node {
	if len(st.Joins) == 0 {
		return []sqlfrag.Node{sqlfrag.Text("SELECT COUNT(*) " + from(st)), where}
	}
	if pk := st.Entity.PrimaryColumn(); pk != nil {
		return []sqlfrag.Node{sqlfrag.Text("SELECT COUNT(DISTINCT " + st.qualify(pk.Name) + ") " + from(st)), where}
	}
	return []sqlfrag.Node{
		sqlfrag.Text("SELECT COUNT(*) FROM ( SELECT DISTINCT " + st.Entity.ColumnList(st.Alias) + " " + from(st)),
		where,
		sqlfrag.Text(" ) cnt"),
	}
}

// byID compiles findById, existsById and deleteById as the method name
// prefix + primary condition, e.g. findByUserIdAndRoleId. A composite key
// argument is addressed by its key properties.
func (c *Compiler) byID(m *mapper.MethodDefinition, prefix string) (*Statement, error) {
	pk := m.Entity.PrimaryColumns()
	name := m.Params[0].Name
	return c.query(m, prefix+m.Entity.PrimaryCondition(), func(i int) string {
		if len(pk) == 1 {
			return name
		}
		return name + "." + pk[i].Property
	})
}

func (c *Compiler) findAll(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.statement(m, Select)
	st.Nodes = append([]sqlfrag.Node{sqlfrag.Text(selectFrom(st, false))}, orderBy(m, "")...)
	st.ResultMap = resultMap(st)
	return st, nil
}

func (c *Compiler) findAllByID(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.statement(m, Select)
	st.Nodes = append([]sqlfrag.Node{sqlfrag.Text(selectFrom(st, false) + " WHERE ")}, keyIn(st, m.Params[0].Name)...)
	st.ResultMap = resultMap(st)
	return st, nil
}

// keyIn renders primary-key membership in the collection at path. A
// composite key renders tuple membership: (a, b) IN ((?, ?), (?, ?)).
func keyIn(st *Statement, collection string) []sqlfrag.Node {
	pk := st.Entity.PrimaryColumns()
	each := sqlfrag.ForEach{Collection: collection, Item: "item", Open: "(", Separator: ", ", Close: ")"}
	if len(pk) == 1 {
		each.Body = []sqlfrag.Node{sqlfrag.Param{Path: "item"}}
		return []sqlfrag.Node{sqlfrag.Text(st.qualify(pk[0].Name) + " IN "), each}
	}
	cols := make([]string, len(pk))
	each.Body = []sqlfrag.Node{sqlfrag.Text("(")}
	for i, c := range pk {
		cols[i] = st.qualify(c.Name)
		if i > 0 {
			each.Body = append(each.Body, sqlfrag.Text(", "))
		}
		each.Body = append(each.Body, sqlfrag.Param{Path: "item." + c.Property})
	}
	each.Body = append(each.Body, sqlfrag.Text(")"))
	return []sqlfrag.Node{sqlfrag.Text("(" + strings.Join(cols, ", ") + ") IN "), each}
}

func (c *Compiler) findSpecification(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.statement(m, Select)
	name := m.Params[m.SpecIndex].Name
	st.Nodes = []sqlfrag.Node{
		sqlfrag.Text(selectFrom(st, false)),
		sqlfrag.Where{Body: []sqlfrag.Node{sqlfrag.Raw{Path: name + ".where"}}},
		sqlfrag.If{
			Conds: []sqlfrag.Cond{{Path: name + ".orderBy", Op: sqlfrag.NotEmpty}},
			Body:  []sqlfrag.Node{sqlfrag.Text(" ORDER BY "), sqlfrag.Raw{Path: name + ".orderBy"}},
		},
	}
	st.ResultMap = resultMap(st)
	return st, nil
}

func (c *Compiler) countSpecification(m *mapper.MethodDefinition) (*Statement, error) {
	st := c.statement(m, Select)
	name := m.Params[m.SpecIndex].Name
	st.Nodes = countNodes(st, sqlfrag.Where{Body: []sqlfrag.Node{sqlfrag.Raw{Path: name + ".where"}}})
	st.ResultType = "int64"
	return st, nil
}

func (c *Compiler) joinFinder(m *mapper.MethodDefinition) (*Statement, error) {
	rel := m.Relation
	j := &mapper.JoinStatement{Relation: rel, Finder: m}
	st := c.statement(m, Select)
	st.Alias = j.Alias()
	st.Joins = nil

	var head strings.Builder
	head.WriteString("SELECT " + j.ColumnList() + " FROM " + rel.TableName + " " + st.Alias)
	if rel.HasLinkTable() {
		link := j.LinkAlias()
		head.WriteString(" JOIN " + rel.LinkTable + " " + link +
			" ON " + st.Alias + "." + rel.InverseReferencedColumnName + " = " + link + "." + rel.InverseColumnName +
			" WHERE " + link + "." + rel.ColumnName + " = ")
	} else {
		head.WriteString(" WHERE " + st.Alias + "." + rel.ReferencedColumnName + " = ")
	}
	st.Nodes = []sqlfrag.Node{sqlfrag.Text(head.String()), sqlfrag.Param{Path: m.Params[0].Name}}

	if sub := rel.SubQuery; sub != nil {
		for _, p := range sub.Predicates {
			col, err := finderColumn(m, p.Property)
			if err != nil {
				return nil, err
			}
			st.Nodes = append(st.Nodes, sqlfrag.Text(" AND "+st.qualify(col)+" "+p.Condition))
		}
		items := make([]string, 0, len(sub.Orders))
		for _, o := range sub.Orders {
			col, err := finderColumn(m, o.Property)
			if err != nil {
				return nil, err
			}
			direction := strings.ToUpper(o.Direction)
			if direction == "" {
				direction = "ASC"
			}
			if direction != "ASC" && direction != "DESC" {
				return nil, &metadata.ConfigError{Kind: metadata.InvalidRelation, Entity: rel.Owner.Name,
					Property: rel.Property, Statement: m.StatementID(),
					Message: fmt.Sprintf("invalid sub query order direction %q", o.Direction)}
			}
			items = append(items, st.qualify(col)+" "+direction)
		}
		if len(items) > 0 {
			st.Nodes = append(st.Nodes, sqlfrag.Text(" ORDER BY "+strings.Join(items, ", ")))
		}
	}
	st.ResultMap = finderResultMap(m)
	return st, nil
}

func finderColumn(m *mapper.MethodDefinition, property string) (string, error) {
	col, ok := m.Entity.ScalarColumn(property)
	if !ok {
		return "", &metadata.ConfigError{Kind: metadata.PropertyNotFound, Entity: m.Entity.Name,
			Property: property, Statement: m.StatementID(), Message: "sub query property is not a column of the relation target"}
	}
	return col.Name, nil
}

func (c *Compiler) custom(m *mapper.MethodDefinition) (*Statement, error) {
	nodes, err := sqlfrag.Parse(m.SQL)
	if err != nil {
		return nil, err
	}
	keyword, _, _ := strings.Cut(strings.TrimSpace(m.SQL), " ")
	var cmd Command
	switch strings.ToUpper(keyword) {
	case "SELECT", "WITH":
		cmd = Select
	case "INSERT":
		cmd = Insert
	case "UPDATE":
		cmd = Update
	case "DELETE":
		cmd = Delete
	default:
		return nil, &metadata.ConfigError{Kind: metadata.UnsupportedStatement, Entity: m.Entity.Name,
			Statement: m.StatementID(), Message: fmt.Sprintf("unrecognized SQL command %q", keyword)}
	}
	st := c.statement(m, cmd)
	st.Alias = ""
	st.Joins = nil
	st.Custom = true
	st.Nodes = nodes
	if cmd == Select {
		if scalar := m.ReturnType; scalar != "" && !strings.Contains(scalar, m.Entity.Name) {
			st.ResultType = scalar
		} else {
			st.ResultMap = baseResultMap(m.Namespace, m.Entity)
		}
	}
	return st, nil
}

func renderContext(st *Statement, argName func(int) string) parttree.RenderContext {
	m := st.Method
	params := m.ValueParams()
	return parttree.RenderContext{
		Alias:         st.Alias,
		RelationAlias: st.relationAlias,
		ArgName:       argName,
		IfTest: func(i int) (sqlfrag.CondOp, bool) {
			test := m.IfTest
			if i < len(params) && params[i].IfTest != mapper.IfTestNone {
				test = params[i].IfTest
			}
			switch test {
			case mapper.IfTestNotNull:
				return sqlfrag.NotNull, true
			case mapper.IfTestNotEmpty:
				return sqlfrag.NotEmpty, true
			}
			return 0, false
		},
	}
}
