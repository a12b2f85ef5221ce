package pagination

// Select is a parsed single-block SELECT. Clause texts are kept verbatim
// from the source so printing does not normalise the caller's SQL.
type Select struct {
	Distinct bool
	Items    []SelectItem
	From     TableRef
	Joins    []Join
	Where    *Expr
	GroupBy  []string
	Having   *Expr
	OrderBy  []OrderItem
	// Limited is set when the statement already carries LIMIT, OFFSET or
	// FETCH.
	Limited bool
}

// SelectItem is one entry of the select list. Table and Column are set when
// the expression is a plain (optionally qualified) column reference.
type SelectItem struct {
	Text   string
	Table  string
	Column string
	Alias  string
}

// TableRef is a table or derived table with its optional alias.
type TableRef struct {
	Text  string
	Name  string
	Alias string
}

// Ref is the name other clauses qualify columns with.
func (t TableRef) Ref() string {
	if t.Alias != "" {
		return t.Alias
	}
	return t.Name
}

// Join is one join clause. A parenthesised join unit lists every table it
// contains.
type Join struct {
	Text   string
	Tables []TableRef
	On     *Expr
}

// Binds reports whether any table of the join is named by refs.
func (j Join) Binds(refs map[string]struct{}) bool {
	for _, t := range j.Tables {
		if _, ok := refs[t.Ref()]; ok {
			return true
		}
	}
	return false
}

// ColumnRef is a column reference found in an expression. Table is empty
// for unqualified columns.
type ColumnRef struct {
	Table  string
	Column string
}

// Expr is an expression with the column references it contains.
type Expr struct {
	Text    string
	Columns []ColumnRef
}

// OrderItem is one ORDER BY entry, direction included in Text.
type OrderItem struct {
	Text string
	Expr Expr
}

// tables returns the qualifiers referenced by exprs.
func tables(exprs ...*Expr) map[string]struct{} {
	out := make(map[string]struct{})
	for _, e := range exprs {
		if e == nil {
			continue
		}
		for _, c := range e.Columns {
			if c.Table != "" {
				out[c.Table] = struct{}{}
			}
		}
	}
	return out
}

// WhereTables returns the table qualifiers referenced by WHERE.
func (s *Select) WhereTables() map[string]struct{} {
	return tables(s.Where)
}

// OrderTables returns the table qualifiers referenced by ORDER BY.
func (s *Select) OrderTables() map[string]struct{} {
	exprs := make([]*Expr, len(s.OrderBy))
	for i := range s.OrderBy {
		exprs[i] = &s.OrderBy[i].Expr
	}
	return tables(exprs...)
}

// JoinsFor returns the joins binding any of refs, in statement order.
func (s *Select) JoinsFor(refs map[string]struct{}) []Join {
	var out []Join
	for _, j := range s.Joins {
		if j.Binds(refs) {
			out = append(out, j)
		}
	}
	return out
}

// ItemsOf returns the select items qualified by table.
func (s *Select) ItemsOf(table string) []SelectItem {
	var out []SelectItem
	for _, it := range s.Items {
		if it.Table == table {
			out = append(out, it)
		}
	}
	return out
}
