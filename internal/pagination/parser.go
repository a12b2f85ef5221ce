package pagination

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported reports SQL outside the SELECT shape the rewriter handles.
var ErrUnsupported = errors.New("unsupported SQL")

// reserved words never taken as an alias.
var reserved = map[string]bool{
	"FROM": true, "WHERE": true, "GROUP": true, "HAVING": true, "ORDER": true,
	"LIMIT": true, "OFFSET": true, "FETCH": true, "UNION": true, "INTERSECT": true,
	"EXCEPT": true, "FOR": true, "WINDOW": true, "JOIN": true, "LEFT": true,
	"RIGHT": true, "INNER": true, "OUTER": true, "FULL": true, "CROSS": true,
	"NATURAL": true, "STRAIGHT_JOIN": true, "ON": true, "USING": true, "AS": true,
	"END": true, "NULL": true, "TRUE": true, "FALSE": true,
}

func isName(t token) bool {
	return t.kind == tokIdent && !reserved[strings.ToUpper(t.text)] || t.kind == tokQuoted
}

func isStar(t token) bool {
	return t.kind == tokOp && t.text == "*"
}

type parser struct {
	sql  string
	toks []token
	i    int
}

// Parse parses a single-block SELECT: select list, FROM with joins
// (parenthesised join units included), WHERE, GROUP BY, HAVING and ORDER BY.
// Compound selects are rejected.
func Parse(sql string) (*Select, error) {
	toks, err := lex(sql)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w: %w", ErrUnsupported, err)
	}
	p := &parser{sql: sql, toks: toks}
	sel, err := p.selectStmt()
	if err != nil {
		return nil, fmt.Errorf("failed to parse SQL: %w", err)
	}
	return sel, nil
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// text returns the source text of tokens [from, to).
func (p *parser) text(from, to int) string {
	if to <= from {
		return ""
	}
	return p.sql[p.toks[from].pos:p.toks[to-1].end]
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.peek()
	near := t.text
	if t.kind == tokEOF {
		near = t.kind.String()
	}
	return fmt.Errorf("%w: %s at offset %d near %q", ErrUnsupported, fmt.Sprintf(format, args...), t.pos, near)
}

// scan advances to the first depth-0 token for which stop holds, or to an
// unmatched closing parenthesis.
func (p *parser) scan(stop func(i int) bool) error {
	depth := 0
	for {
		t := p.peek()
		if t.kind == tokEOF {
			if depth > 0 {
				return p.errorf("unbalanced parentheses")
			}
			return nil
		}
		if depth == 0 && stop(p.i) {
			return nil
		}
		switch {
		case t.punct("("):
			depth++
		case t.punct(")"):
			if depth == 0 {
				return nil
			}
			depth--
		}
		p.next()
	}
}

func (p *parser) keywordAt(i int, words ...string) bool {
	for _, w := range words {
		if p.toks[i].keyword(w) {
			return true
		}
	}
	return false
}

// tailStop ends WHERE, HAVING and list clauses.
func (p *parser) tailStop(i int) bool {
	return p.toks[i].punct(";") ||
		p.keywordAt(i, "GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET", "FETCH", "UNION", "INTERSECT", "EXCEPT", "FOR", "WINDOW")
}

func (p *parser) joinStart(i int) bool {
	switch strings.ToUpper(p.toks[i].text) {
	case "JOIN", "INNER", "CROSS", "FULL", "NATURAL", "STRAIGHT_JOIN":
		return p.toks[i].kind == tokIdent
	case "LEFT", "RIGHT":
		return p.toks[i].kind == tokIdent && p.keywordAt(i+1, "JOIN", "OUTER")
	}
	return false
}

func (p *parser) atJoin() bool {
	return p.peek().punct(",") || p.joinStart(p.i)
}

func (p *parser) selectStmt() (*Select, error) {
	if !p.peek().keyword("SELECT") {
		return nil, p.errorf("expected SELECT")
	}
	p.next()
	s := &Select{}
	switch {
	case p.peek().keyword("DISTINCT"):
		s.Distinct = true
		p.next()
	case p.peek().keyword("ALL"):
		p.next()
	}

	for {
		start := p.i
		if err := p.scan(func(i int) bool { return p.toks[i].punct(",") || p.toks[i].keyword("FROM") }); err != nil {
			return nil, err
		}
		if p.i == start {
			return nil, p.errorf("empty select item")
		}
		s.Items = append(s.Items, p.selectItem(start, p.i))
		if !p.peek().punct(",") {
			break
		}
		p.next()
	}

	if !p.peek().keyword("FROM") {
		return nil, p.errorf("expected FROM")
	}
	p.next()
	from, err := p.tableRef()
	if err != nil {
		return nil, err
	}
	s.From = from
	for p.atJoin() {
		j, err := p.join()
		if err != nil {
			return nil, err
		}
		s.Joins = append(s.Joins, j)
	}

	if p.peek().keyword("WHERE") {
		p.next()
		if s.Where, err = p.expr(p.tailStop); err != nil {
			return nil, err
		}
	}
	if p.peek().keyword("GROUP") {
		p.next()
		items, err := p.byList()
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			s.GroupBy = append(s.GroupBy, it.Text)
		}
	}
	if p.peek().keyword("HAVING") {
		p.next()
		if s.Having, err = p.expr(p.tailStop); err != nil {
			return nil, err
		}
	}
	if p.peek().keyword("ORDER") {
		p.next()
		items, err := p.byList()
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			s.OrderBy = append(s.OrderBy, OrderItem{Text: it.Text, Expr: *it})
		}
	}
	if p.keywordAt(p.i, "LIMIT", "OFFSET", "FETCH") {
		s.Limited = true
		if err := p.scan(func(i int) bool { return p.toks[i].punct(";") || p.keywordAt(i, "UNION", "FOR") }); err != nil {
			return nil, err
		}
	}

	switch {
	case p.keywordAt(p.i, "UNION", "INTERSECT", "EXCEPT"):
		return nil, p.errorf("compound selects are not supported")
	case p.peek().keyword("FOR"):
		return nil, p.errorf("locking clauses are not supported")
	case p.peek().punct(";"):
		p.next()
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %s", p.peek().kind)
	}
	return s, nil
}

// byList parses "BY item, item" of GROUP BY and ORDER BY.
func (p *parser) byList() ([]*Expr, error) {
	if !p.peek().keyword("BY") {
		return nil, p.errorf("expected BY")
	}
	p.next()
	var out []*Expr
	for {
		e, err := p.expr(func(i int) bool { return p.toks[i].punct(",") || p.tailStop(i) })
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if !p.peek().punct(",") {
			return out, nil
		}
		p.next()
	}
}

func (p *parser) expr(stop func(i int) bool) (*Expr, error) {
	start := p.i
	if err := p.scan(stop); err != nil {
		return nil, err
	}
	if p.i == start {
		return nil, p.errorf("expected expression")
	}
	return &Expr{Text: p.text(start, p.i), Columns: columnRefs(p.toks[start:p.i])}, nil
}

// columnRefs collects qualified column references. Unqualified names are
// skipped: they cannot be told apart from keywords and bind to the primary
// table in every statement the rewriter accepts.
func columnRefs(toks []token) []ColumnRef {
	var out []ColumnRef
	for i := 0; i < len(toks); i++ {
		if !isName(toks[i]) || i > 0 && toks[i-1].punct(".") {
			continue
		}
		parts := []string{toks[i].name()}
		j := i
		for j+2 < len(toks) && toks[j+1].punct(".") && (isName(toks[j+2]) || isStar(toks[j+2])) {
			parts = append(parts, toks[j+2].name())
			j += 2
		}
		i = j
		if j+1 < len(toks) && toks[j+1].punct("(") {
			continue
		}
		if len(parts) >= 2 {
			out = append(out, ColumnRef{Table: parts[len(parts)-2], Column: parts[len(parts)-1]})
		}
	}
	return out
}

func (p *parser) selectItem(from, to int) SelectItem {
	item := SelectItem{Text: p.text(from, to)}
	toks := p.toks[from:to]
	n := len(toks)
	switch {
	case n >= 3 && toks[n-2].keyword("AS"):
		item.Alias = toks[n-1].name()
		toks = toks[:n-2]
	case n >= 2 && isName(toks[n-1]) &&
		(isName(toks[n-2]) || toks[n-2].punct(")") || toks[n-2].kind == tokString || toks[n-2].kind == tokNumber):
		item.Alias = toks[n-1].name()
		toks = toks[:n-1]
	}

	switch {
	case len(toks) == 1 && (isName(toks[0]) || isStar(toks[0])):
		item.Column = toks[0].name()
	case len(toks) >= 3 && toks[len(toks)-2].punct("."):
		last := toks[len(toks)-1]
		if refs := columnRefs(toks); len(refs) == 1 && (isName(last) || isStar(last)) && onlyChain(toks) {
			item.Table = refs[0].Table
			item.Column = refs[0].Column
		}
	}
	return item
}

// onlyChain reports whether toks is exactly name(.name)*.
func onlyChain(toks []token) bool {
	for i, t := range toks {
		if i%2 == 1 {
			if !t.punct(".") {
				return false
			}
			continue
		}
		if !isName(t) && !(isStar(t) && i == len(toks)-1) {
			return false
		}
	}
	return len(toks)%2 == 1
}

func (p *parser) alias() string {
	if p.peek().keyword("AS") {
		p.next()
		return p.next().name()
	}
	if isName(p.peek()) {
		return p.next().name()
	}
	return ""
}

func (p *parser) tableRef() (TableRef, error) {
	start := p.i
	var ref TableRef
	if p.peek().punct("(") {
		p.next()
		if err := p.scan(func(int) bool { return false }); err != nil {
			return ref, err
		}
		if !p.peek().punct(")") {
			return ref, p.errorf("expected )")
		}
		p.next()
	} else {
		for {
			if !isName(p.peek()) {
				return ref, p.errorf("expected table name")
			}
			ref.Name = p.next().name()
			if !p.peek().punct(".") {
				break
			}
			p.next()
		}
	}
	ref.Alias = p.alias()
	ref.Text = p.text(start, p.i)
	return ref, nil
}

func (p *parser) join() (Join, error) {
	start := p.i
	if p.peek().punct(",") {
		p.next()
		ref, err := p.tableRef()
		if err != nil {
			return Join{}, err
		}
		return Join{Text: p.text(start, p.i), Tables: []TableRef{ref}}, nil
	}

	for !p.peek().keyword("JOIN") && !p.peek().keyword("STRAIGHT_JOIN") {
		if p.peek().kind == tokEOF {
			return Join{}, p.errorf("expected JOIN")
		}
		p.next()
	}
	p.next()

	var j Join
	if p.peek().punct("(") && !p.toks[p.i+1].keyword("SELECT") {
		p.next()
		first, err := p.tableRef()
		if err != nil {
			return Join{}, err
		}
		j.Tables = append(j.Tables, first)
		for p.atJoin() {
			inner, err := p.join()
			if err != nil {
				return Join{}, err
			}
			j.Tables = append(j.Tables, inner.Tables...)
		}
		if !p.peek().punct(")") {
			return Join{}, p.errorf("expected ) closing join unit")
		}
		p.next()
		if alias := p.alias(); alias != "" {
			j.Tables = append(j.Tables, TableRef{Alias: alias})
		}
	} else {
		ref, err := p.tableRef()
		if err != nil {
			return Join{}, err
		}
		j.Tables = append(j.Tables, ref)
	}

	switch {
	case p.peek().keyword("ON"):
		p.next()
		on, err := p.expr(func(i int) bool {
			return p.tailStop(i) || p.toks[i].keyword("WHERE") || p.toks[i].punct(",") || p.joinStart(i)
		})
		if err != nil {
			return Join{}, err
		}
		j.On = on
	case p.peek().keyword("USING"):
		p.next()
		if !p.peek().punct("(") {
			return Join{}, p.errorf("expected ( after USING")
		}
		p.next()
		if err := p.scan(func(int) bool { return false }); err != nil {
			return Join{}, err
		}
		p.next()
	}
	j.Text = p.text(start, p.i)
	return j, nil
}
