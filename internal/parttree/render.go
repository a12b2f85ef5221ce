package parttree

import (
	"fmt"
	"strings"

	"sqlmapper/internal/metadata"
	"sqlmapper/internal/sqlfrag"
)

// RenderContext supplies the names a tree renders with.
type RenderContext struct {
	// Alias qualifies root entity columns; empty renders bare column names.
	Alias string
	// RelationAlias returns the join alias for a relation used by the tree.
	RelationAlias func(*metadata.Relation) (string, bool)
	// ArgName maps a value argument position to its template path.
	ArgName func(int) string
	// IfTest reports whether the argument at a position guards its part.
	IfTest func(int) (sqlfrag.CondOp, bool)
}

func (ctx RenderContext) column(p PropertyPath) (string, error) {
	if p.Relation == nil {
		if ctx.Alias == "" {
			return p.ColumnName(), nil
		}
		return ctx.Alias + "." + p.ColumnName(), nil
	}
	if ctx.RelationAlias != nil {
		if alias, ok := ctx.RelationAlias(p.Relation); ok {
			return alias + "." + p.ColumnName(), nil
		}
	}
	return "", fmt.Errorf("no join available for relation %s.%s", p.Relation.Owner.Name, p.Relation.Property)
}

// Conditions renders the predicate as nodes for a Where. Each part starts
// with " AND "; several or-parts render as parenthesized OR groups.
func (t *PartTree) Conditions(ctx RenderContext) ([]sqlfrag.Node, error) {
	var out []sqlfrag.Node
	for _, or := range t.OrParts {
		var body []sqlfrag.Node
		for _, p := range or.Parts {
			nodes, err := p.render(ctx)
			if err != nil {
				return nil, err
			}
			body = append(body, nodes...)
		}
		if len(t.OrParts) == 1 {
			return body, nil
		}
		out = append(out, sqlfrag.Trim{Prefix: "OR (", Suffix: ")", PrefixOverrides: []string{"AND"}, Body: body})
	}
	return out, nil
}

// OrderBy renders the static order list without the ORDER BY keyword.
func (t *PartTree) OrderBy(ctx RenderContext) (string, error) {
	items := make([]string, 0, len(t.Orders))
	for _, o := range t.Orders {
		col, err := ctx.column(o.Path)
		if err != nil {
			return "", err
		}
		items = append(items, col+" "+o.Direction)
	}
	return strings.Join(items, ", "), nil
}

func (p *Part) render(ctx RenderContext) ([]sqlfrag.Node, error) {
	col, err := ctx.column(p.Path)
	if err != nil {
		return nil, err
	}
	if p.IgnoreCase {
		col = "UPPER(" + col + ")"
	}
	arg := func(i int, w sqlfrag.Wildcard) []sqlfrag.Node {
		param := sqlfrag.Param{Path: ctx.ArgName(p.Args[i]), Wildcard: w}
		if p.IgnoreCase {
			return []sqlfrag.Node{sqlfrag.Text("UPPER("), param, sqlfrag.Text(")")}
		}
		return []sqlfrag.Node{param}
	}
	op := func(o string, w sqlfrag.Wildcard) []sqlfrag.Node {
		return append([]sqlfrag.Node{sqlfrag.Text(" AND " + col + " " + o + " ")}, arg(0, w)...)
	}

	var nodes []sqlfrag.Node
	switch p.Type {
	case SimpleProperty:
		nodes = op("=", sqlfrag.NoWildcard)
	case NegatingSimpleProperty:
		nodes = op("<>", sqlfrag.NoWildcard)
	case LessThan, Before:
		nodes = op("<", sqlfrag.NoWildcard)
	case LessThanEqual:
		nodes = op("<=", sqlfrag.NoWildcard)
	case GreaterThan, After:
		nodes = op(">", sqlfrag.NoWildcard)
	case GreaterThanEqual:
		nodes = op(">=", sqlfrag.NoWildcard)
	case Like:
		nodes = op("LIKE", sqlfrag.NoWildcard)
	case NotLike:
		nodes = op("NOT LIKE", sqlfrag.NoWildcard)
	case StartingWith:
		nodes = op("LIKE", sqlfrag.Prefix)
	case EndingWith:
		nodes = op("LIKE", sqlfrag.Suffix)
	case Containing:
		nodes = op("LIKE", sqlfrag.Contains)
	case NotContaining:
		nodes = op("NOT LIKE", sqlfrag.Contains)
	case Between:
		nodes = append(op("BETWEEN", sqlfrag.NoWildcard), sqlfrag.Text(" AND "))
		nodes = append(nodes, arg(1, sqlfrag.NoWildcard)...)
	case In, NotIn:
		keyword := "IN"
		if p.Type == NotIn {
			keyword = "NOT IN"
		}
		item := []sqlfrag.Node{sqlfrag.Param{Path: "item"}}
		if p.IgnoreCase {
			item = []sqlfrag.Node{sqlfrag.Text("UPPER("), sqlfrag.Param{Path: "item"}, sqlfrag.Text(")")}
		}
		nodes = []sqlfrag.Node{
			sqlfrag.Text(" AND " + col + " " + keyword + " "),
			sqlfrag.ForEach{Collection: ctx.ArgName(p.Args[0]), Item: "item", Open: "(", Separator: ", ", Close: ")", Body: item},
		}
	case IsNull:
		nodes = []sqlfrag.Node{sqlfrag.Text(" AND " + col + " IS NULL")}
	case IsNotNull:
		nodes = []sqlfrag.Node{sqlfrag.Text(" AND " + col + " IS NOT NULL")}
	case IsEmpty:
		nodes = []sqlfrag.Node{sqlfrag.Text(" AND (" + col + " IS NULL OR " + col + " = '')")}
	case IsNotEmpty:
		nodes = []sqlfrag.Node{sqlfrag.Text(" AND (" + col + " IS NOT NULL AND " + col + " <> '')")}
	case True:
		nodes = []sqlfrag.Node{sqlfrag.Text(" AND " + col + " = TRUE")}
	case False:
		nodes = []sqlfrag.Node{sqlfrag.Text(" AND " + col + " = FALSE")}
	default:
		return nil, fmt.Errorf("unsupported predicate type %v", p.Type)
	}

	if ctx.IfTest == nil {
		return nodes, nil
	}
	var conds []sqlfrag.Cond
	for _, i := range p.Args {
		if test, ok := ctx.IfTest(i); ok {
			conds = append(conds, sqlfrag.Cond{Path: ctx.ArgName(i), Op: test})
		}
	}
	if len(conds) == 0 {
		return nodes, nil
	}
	return []sqlfrag.Node{sqlfrag.If{Conds: conds, Body: nodes}}, nil
}
