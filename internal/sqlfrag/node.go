// Package sqlfrag models dynamic SQL templates as a small typed AST. A
// template renders either to MyBatis XML script text or, given arguments,
// directly to a parameterized statement.
package sqlfrag

// Node is one element of a SQL template.
type Node interface {
	node()
}

// Wildcard wraps a bound LIKE argument with '%' on one or both sides.
type Wildcard int

const (
	NoWildcard Wildcard = iota
	// Prefix matches values starting with the argument: "arg%".
	Prefix
	// Suffix matches values ending with the argument: "%arg".
	Suffix
	// Contains matches values containing the argument: "%arg%".
	Contains
)

// CondOp is the test applied by an If node.
type CondOp int

const (
	NotNull CondOp = iota
	NotEmpty
)

// Cond tests one argument path.
type Cond struct {
	Path string
	Op   CondOp
}

// Text is literal SQL.
type Text string

// Param binds the argument at Path as a statement parameter.
type Param struct {
	Path     string
	Wildcard Wildcard
}

// Raw substitutes the argument at Path into the SQL text. Strings are
// inserted verbatim; squirrel Sqlizers splice in their SQL and arguments.
type Raw struct {
	Path string
}

// If renders Body only when every condition holds.
type If struct {
	Conds []Cond
	Body  []Node
}

// ForEach renders Body once per element of the collection at Collection,
// binding the element to Item and its position to Index.
type ForEach struct {
	Collection string
	Item       string
	Index      string
	Open       string
	Separator  string
	Close      string
	Body       []Node
}

// Where renders Body behind WHERE, dropping a leading AND or OR.
// Nothing is rendered when Body is empty.
type Where struct {
	Body []Node
}

// Set renders Body behind SET, dropping a trailing comma.
type Set struct {
	Body []Node
}

// Trim wraps non-empty Body output in Prefix and Suffix after removing the
// first matching prefix and suffix override.
type Trim struct {
	Prefix          string
	Suffix          string
	PrefixOverrides []string
	SuffixOverrides []string
	Body            []Node
}

func (Text) node()    {}
func (Param) node()   {}
func (Raw) node()     {}
func (If) node()      {}
func (ForEach) node() {}
func (Where) node()   {}
func (Set) node()     {}
func (Trim) node()    {}

// Texts joins literal SQL pieces into a node list with single spaces.
func Texts(parts ...string) []Node {
	out := make([]Node, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, Text(" "))
		}
		out = append(out, Text(p))
	}
	return out
}

// Join concatenates node lists separated by a single space, skipping empty ones.
func Join(lists ...[]Node) []Node {
	var out []Node
	for _, l := range lists {
		if len(l) == 0 {
			continue
		}
		if len(out) > 0 {
			out = append(out, Text(" "))
		}
		out = append(out, l...)
	}
	return out
}
