package sqlfrag

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// ErrMissingArgument reports a template path with no matching argument.
var ErrMissingArgument = errors.New("missing argument")

// Bind evaluates nodes against params and returns SQL with '?'
// placeholders and the arguments in placeholder order.
func Bind(nodes []Node, params Params) (string, []any, error) {
	b := &binder{sql: &strings.Builder{}}
	if err := b.nodes(nodes, params); err != nil {
		return "", nil, err
	}
	return Compact(b.sql.String()), b.args, nil
}

type binder struct {
	sql  *strings.Builder
	args []any
}

func (b *binder) nodes(nodes []Node, params Params) error {
	for _, n := range nodes {
		if err := b.node(n, params); err != nil {
			return err
		}
	}
	return nil
}

func (b *binder) node(n Node, params Params) error {
	switch n := n.(type) {
	case Text:
		b.sql.WriteString(string(n))
	case Param:
		v, ok := params.Lookup(n.Path)
		if !ok {
			return fmt.Errorf("failed to bind #{%s}: %w", n.Path, ErrMissingArgument)
		}
		b.sql.WriteString("?")
		b.args = append(b.args, wildcard(v, n.Wildcard))
	case Raw:
		v, ok := params.Lookup(n.Path)
		if !ok {
			return fmt.Errorf("failed to substitute ${%s}: %w", n.Path, ErrMissingArgument)
		}
		return b.raw(n.Path, v)
	case If:
		for _, c := range n.Conds {
			v, _ := params.Lookup(c.Path)
			if c.Op == NotEmpty && isEmpty(v) || IsNil(v) {
				return nil
			}
		}
		return b.nodes(n.Body, params)
	case ForEach:
		return b.forEach(n, params)
	case Where:
		return b.wrap(n.Body, params, func(body string) string {
			body = stripPrefix(body, []string{"AND", "OR"})
			if body == "" {
				return ""
			}
			return " WHERE " + body + " "
		})
	case Set:
		return b.wrap(n.Body, params, func(body string) string {
			body = strings.TrimSuffix(body, ",")
			body = strings.TrimSpace(strings.TrimPrefix(body, ","))
			if body == "" {
				return ""
			}
			return " SET " + body + " "
		})
	case Trim:
		return b.wrap(n.Body, params, func(body string) string {
			if body == "" {
				return ""
			}
			body = stripPrefix(body, n.PrefixOverrides)
			body = stripSuffix(body, n.SuffixOverrides)
			return " " + n.Prefix + " " + body + " " + n.Suffix + " "
		})
	default:
		return fmt.Errorf("unsupported template node %T", n)
	}
	return nil
}

// wrap renders body into a scratch buffer so the enclosing node can trim
// it. Arguments appended by body keep their order.
func (b *binder) wrap(body []Node, params Params, finish func(string) string) error {
	outer := b.sql
	b.sql = &strings.Builder{}
	err := b.nodes(body, params)
	inner := strings.TrimSpace(b.sql.String())
	b.sql = outer
	if err != nil {
		return err
	}
	b.sql.WriteString(finish(inner))
	return nil
}

func (b *binder) raw(path string, v any) error {
	switch v := v.(type) {
	case sq.Sqlizer:
		s, args, err := v.ToSql()
		if err != nil {
			return fmt.Errorf("failed to render ${%s}: %w", path, err)
		}
		b.sql.WriteString(s)
		b.args = append(b.args, args...)
	case string:
		b.sql.WriteString(v)
	case fmt.Stringer:
		b.sql.WriteString(v.String())
	default:
		if IsNil(v) {
			return fmt.Errorf("failed to substitute ${%s}: %w", path, ErrMissingArgument)
		}
		fmt.Fprint(b.sql, v)
	}
	return nil
}

func (b *binder) forEach(n ForEach, params Params) error {
	v, ok := params.Lookup(n.Collection)
	if !ok || IsNil(v) {
		return fmt.Errorf("failed to iterate %s: %w", n.Collection, ErrMissingArgument)
	}
	type entry struct {
		index any
		item  any
	}
	var entries []entry
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			entries = append(entries, entry{i, rv.Index(i).Interface()})
		}
	case reflect.Map:
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
		})
		for _, k := range keys {
			entries = append(entries, entry{k.Interface(), rv.MapIndex(k).Interface()})
		}
	default:
		return fmt.Errorf("failed to iterate %s: %T is not a collection", n.Collection, v)
	}
	if len(entries) == 0 {
		return nil
	}
	b.sql.WriteString(n.Open)
	for i, e := range entries {
		if i > 0 {
			b.sql.WriteString(n.Separator)
		}
		vars := Map{}
		if n.Item != "" {
			vars[n.Item] = e.item
		}
		if n.Index != "" {
			vars[n.Index] = e.index
		}
		if err := b.nodes(n.Body, scope{parent: params, vars: vars}); err != nil {
			return err
		}
	}
	b.sql.WriteString(n.Close)
	return nil
}

func wildcard(v any, w Wildcard) any {
	if w == NoWildcard || IsNil(v) {
		return v
	}
	s := fmt.Sprint(v)
	switch w {
	case Prefix:
		return s + "%"
	case Suffix:
		return "%" + s
	default:
		return "%" + s + "%"
	}
}

func stripPrefix(body string, overrides []string) string {
	upper := strings.ToUpper(body)
	for _, o := range overrides {
		o = strings.TrimSpace(o)
		if o == "" || !strings.HasPrefix(upper, strings.ToUpper(o)) {
			continue
		}
		rest := body[len(o):]
		if rest == "" || rest[0] == ' ' || rest[0] == '(' || rest[0] == '\n' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}
	return body
}

func stripSuffix(body string, overrides []string) string {
	upper := strings.ToUpper(body)
	for _, o := range overrides {
		o = strings.TrimSpace(o)
		if o == "" || !strings.HasSuffix(upper, strings.ToUpper(o)) {
			continue
		}
		rest := body[:len(body)-len(o)]
		if o == "," || rest == "" || strings.HasSuffix(rest, " ") || strings.HasSuffix(rest, ")") {
			return strings.TrimSpace(rest)
		}
	}
	return body
}

// Compact collapses whitespace runs outside quoted literals and trims the
// result.
func Compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	var quote rune
	space := false
	for _, r := range s {
		if quote != 0 {
			b.WriteRune(r)
			if r == quote {
				quote = 0
			}
			continue
		}
		switch r {
		case ' ', '\t', '\n', '\r':
			space = true
			continue
		case '\'', '"', '`':
			quote = r
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
