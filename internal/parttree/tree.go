// Package parttree derives queries from repository method names such as
// findByNameStartsWithAndDeptNoLikeOrderByNameDesc.
package parttree

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"sqlmapper/internal/metadata"
)

const queryPattern = "find|read|get|query|stream"

var (
	prefixPattern   = regexp.MustCompile(`^(` + queryPattern + `|count|exists|delete|remove)((\p{Lu}.*?))??By`)
	countPattern    = regexp.MustCompile(`^count(\p{Lu}.*?)??By`)
	existsPattern   = regexp.MustCompile(`^exists(\p{Lu}.*?)??By`)
	deletePattern   = regexp.MustCompile(`^(delete|remove)(\p{Lu}.*?)??By`)
	limitPattern    = regexp.MustCompile(`^(` + queryPattern + `)(Distinct)?(First|Top)(\d*)?(\p{Lu}.*?)??By`)
	joinWithPattern = regexp.MustCompile(`^(` + queryPattern + `)JoinWith(\p{Lu}.*)$`)
	withPattern     = regexp.MustCompile(`^(` + queryPattern + `)With(\p{Lu}.*)$`)
)

// Subject is the part of a method name before "By".
type Subject struct {
	Distinct bool
	Count    bool
	Exists   bool
	Delete   bool
	// MaxResults limits the rows returned; zero means unlimited.
	MaxResults int
	// Join marks findWith/findJoinWith finders that load one relation's
	// rows by the referenced property named in JoinProperty.
	Join         bool
	Link         bool
	JoinProperty string
}

// OrPart is a conjunction of parts. A tree's OrParts are joined with OR.
type OrPart struct {
	Parts []*Part
}

// Order is one static ORDER BY item.
type Order struct {
	Path      PropertyPath
	Direction string
}

// PartTree is a parsed method name.
type PartTree struct {
	Source  string
	Subject Subject
	OrParts []OrPart
	Orders  []Order
}

// Parse parses a method name against the entity it queries. Statement is
// the statement id reported in errors.
func Parse(source string, entity *metadata.Entity, statement string) (*PartTree, error) {
	tree := &PartTree{Source: source}

	if m := joinWithPattern.FindStringSubmatch(source); m != nil {
		tree.Subject = Subject{Join: true, Link: true, JoinProperty: m[2]}
		return tree, nil
	}
	if m := withPattern.FindStringSubmatch(source); m != nil {
		tree.Subject = Subject{Join: true, JoinProperty: m[2]}
		return tree, nil
	}

	loc := prefixPattern.FindStringIndex(source)
	if loc == nil {
		return nil, &metadata.ConfigError{
			Kind:      metadata.UnsupportedStatement,
			Entity:    entity.Name,
			Statement: statement,
			Message:   fmt.Sprintf("method name %q does not start with a supported query prefix", source),
		}
	}
	tree.Subject = parseSubject(source[:loc[1]])

	predicate := source[loc[1]:]
	parts := splitKeyword(predicate, "OrderBy")
	if len(parts) > 2 {
		return nil, &metadata.ConfigError{
			Kind:      metadata.UnsupportedStatement,
			Entity:    entity.Name,
			Statement: statement,
			Message:   "OrderBy must not be used more than once in a method name",
		}
	}

	conditions := ""
	if len(parts) > 0 {
		conditions = parts[0]
	}
	allIgnoreCase := false
	for _, suffix := range []string{"AllIgnoringCase", "AllIgnoreCase"} {
		if strings.HasSuffix(conditions, suffix) {
			conditions = strings.TrimSuffix(conditions, suffix)
			allIgnoreCase = true
			break
		}
	}

	next := 0
	for _, or := range splitKeyword(conditions, "Or") {
		if or == "" {
			continue
		}
		var orPart OrPart
		for _, and := range splitKeyword(or, "And") {
			if and == "" {
				continue
			}
			part, err := parsePart(and, entity, statement, allIgnoreCase)
			if err != nil {
				return nil, err
			}
			for i := 0; i < part.Type.Arguments(); i++ {
				part.Args = append(part.Args, next)
				next++
			}
			orPart.Parts = append(orPart.Parts, part)
		}
		if len(orPart.Parts) > 0 {
			tree.OrParts = append(tree.OrParts, orPart)
		}
	}

	if len(parts) == 2 {
		orders, err := parseOrders(parts[1], entity, statement)
		if err != nil {
			return nil, err
		}
		tree.Orders = orders
	}
	return tree, nil
}

func parseSubject(subject string) Subject {
	s := Subject{
		Distinct: strings.Contains(subject, "Distinct"),
		Count:    countPattern.MatchString(subject),
		Exists:   existsPattern.MatchString(subject),
		Delete:   deletePattern.MatchString(subject),
	}
	if m := limitPattern.FindStringSubmatch(subject); m != nil {
		s.MaxResults = 1
		if m[4] != "" {
			if n, err := strconv.Atoi(m[4]); err == nil && n > 0 {
				s.MaxResults = n
			}
		}
	}
	return s
}

func parsePart(raw string, entity *metadata.Entity, statement string, alwaysIgnoreCase bool) (*Part, error) {
	text, ignoreCase := stripIgnoreCase(raw)
	typ, property := detectType(text)
	path, err := ResolvePath(entity, property, statement)
	if err != nil && typ != SimpleProperty {
		// A property whose own name ends in a keyword ("loggedIn") is still
		// an equality test.
		if whole, werr := ResolvePath(entity, text, statement); werr == nil {
			typ, path, err = SimpleProperty, whole, nil
		}
	}
	if err != nil {
		return nil, err
	}
	return &Part{
		Source:     raw,
		Type:       typ,
		Path:       path,
		IgnoreCase: ignoreCase || alwaysIgnoreCase && path.Column.Type == "string",
	}, nil
}

func parseOrders(source string, entity *metadata.Entity, statement string) ([]Order, error) {
	var orders []Order
	for _, item := range splitOrders(source) {
		direction := "ASC"
		property := item
		switch {
		case strings.HasSuffix(item, "Desc") && len(item) > 4:
			direction, property = "DESC", strings.TrimSuffix(item, "Desc")
		case strings.HasSuffix(item, "Asc") && len(item) > 3:
			property = strings.TrimSuffix(item, "Asc")
		}
		path, err := ResolvePath(entity, property, statement)
		if err != nil {
			return nil, err
		}
		orders = append(orders, Order{Path: path, Direction: direction})
	}
	return orders, nil
}

// splitOrders splits "NameDescAgeAsc" after each direction keyword that is
// followed by another property.
func splitOrders(source string) []string {
	var out []string
	start := 0
	for i := 0; i < len(source); i++ {
		for _, kw := range []string{"Desc", "Asc"} {
			end := i + len(kw)
			if strings.HasPrefix(source[i:], kw) && end < len(source) && startsWord(source[end:]) {
				out = append(out, source[start:end])
				start = end
				i = end - 1
				break
			}
		}
	}
	if start < len(source) {
		out = append(out, source[start:])
	}
	return out
}

// splitKeyword splits text at each keyword followed by an upper-case or
// non-ASCII rune. Trailing empty segments are dropped; a leading one is
// kept so "OrderByName" splits into "" and "Name".
func splitKeyword(text, keyword string) []string {
	var out []string
	start := 0
	for i := 0; i+len(keyword) <= len(text); {
		end := i + len(keyword)
		if text[i:end] == keyword && end < len(text) && startsWord(text[end:]) {
			out = append(out, text[start:i])
			start = end
			i = end
			continue
		}
		i++
	}
	out = append(out, text[start:])
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func startsWord(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r) || r >= utf8.RuneSelf
}

// ArgumentCount returns the number of value arguments the predicate binds.
func (t *PartTree) ArgumentCount() int {
	n := 0
	for _, or := range t.OrParts {
		for _, p := range or.Parts {
			n += p.Type.Arguments()
		}
	}
	return n
}

// Parts returns every predicate part in order.
func (t *PartTree) Parts() []*Part {
	var out []*Part
	for _, or := range t.OrParts {
		out = append(out, or.Parts...)
	}
	return out
}

// Relations returns the relations the predicate and order reference, in
// first-use order.
func (t *PartTree) Relations() []*metadata.Relation {
	var out []*metadata.Relation
	seen := map[*metadata.Relation]bool{}
	add := func(r *metadata.Relation) {
		if r != nil && !seen[r] {
			seen[r] = true
			out = append(out, r)
		}
	}
	for _, p := range t.Parts() {
		add(p.Path.Relation)
	}
	for _, o := range t.Orders {
		add(o.Path.Relation)
	}
	return out
}
