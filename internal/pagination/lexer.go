package pagination

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokQuoted
	tokString
	tokNumber
	tokParam
	tokPunct
	tokOp
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of input"
	case tokIdent:
		return "identifier"
	case tokQuoted:
		return "quoted identifier"
	case tokString:
		return "string"
	case tokNumber:
		return "number"
	case tokParam:
		return "parameter"
	case tokPunct:
		return "punctuation"
	case tokOp:
		return "operator"
	}
	return fmt.Sprintf("tokenKind(%d)", int(k))
}

// token is one lexeme with its byte span in the source.
type token struct {
	kind tokenKind
	text string
	pos  int
	end  int
}

func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (t token) punct(p string) bool {
	return t.kind == tokPunct && t.text == p
}

// name returns the identifier with quoting removed.
func (t token) name() string {
	if t.kind != tokQuoted {
		return t.text
	}
	body := t.text[1 : len(t.text)-1]
	switch t.text[0] {
	case '"':
		return strings.ReplaceAll(body, `""`, `"`)
	case '`':
		return strings.ReplaceAll(body, "``", "`")
	}
	return body
}

var multiCharOps = []string{"->>", "<=>", "<>", "!=", "<=", ">=", "||", "::", "->", "<<", ">>"}

// lex splits sql into tokens. Whitespace and comments are dropped.
func lex(sql string) ([]token, error) {
	var out []token
	i := 0
	for i < len(sql) {
		r, size := utf8.DecodeRuneInString(sql[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case strings.HasPrefix(sql[i:], "--"):
			nl := strings.IndexByte(sql[i:], '\n')
			if nl < 0 {
				i = len(sql)
			} else {
				i += nl + 1
			}
		case strings.HasPrefix(sql[i:], "/*"):
			closeAt := strings.Index(sql[i+2:], "*/")
			if closeAt < 0 {
				return nil, fmt.Errorf("unterminated comment at offset %d", i)
			}
			i += closeAt + 4
		case r == '_' || unicode.IsLetter(r):
			j := i + size
			for j < len(sql) {
				r2, s2 := utf8.DecodeRuneInString(sql[j:])
				if r2 != '_' && r2 != '$' && !unicode.IsLetter(r2) && !unicode.IsDigit(r2) {
					break
				}
				j += s2
			}
			out = append(out, token{kind: tokIdent, text: sql[i:j], pos: i, end: j})
			i = j
		case r >= '0' && r <= '9':
			j := scanNumber(sql, i)
			out = append(out, token{kind: tokNumber, text: sql[i:j], pos: i, end: j})
			i = j
		case r == '\'':
			j, err := scanQuoted(sql, i, '\'', true)
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tokString, text: sql[i:j], pos: i, end: j})
			i = j
		case r == '"' || r == '`':
			j, err := scanQuoted(sql, i, byte(r), false)
			if err != nil {
				return nil, err
			}
			out = append(out, token{kind: tokQuoted, text: sql[i:j], pos: i, end: j})
			i = j
		case r == '[':
			closeAt := strings.IndexByte(sql[i:], ']')
			if closeAt < 0 {
				return nil, fmt.Errorf("unterminated identifier at offset %d", i)
			}
			out = append(out, token{kind: tokQuoted, text: sql[i : i+closeAt+1], pos: i, end: i + closeAt + 1})
			i += closeAt + 1
		case r == '?':
			out = append(out, token{kind: tokParam, text: "?", pos: i, end: i + 1})
			i++
		case (r == '$' || r == ':' || r == '@') && i+1 < len(sql) && isParamStart(r, sql[i+1]):
			j := i + 1
			for j < len(sql) && (sql[j] == '_' || isAlnum(sql[j])) {
				j++
			}
			out = append(out, token{kind: tokParam, text: sql[i:j], pos: i, end: j})
			i = j
		case strings.ContainsRune("(),.;", r):
			out = append(out, token{kind: tokPunct, text: string(r), pos: i, end: i + 1})
			i++
		default:
			op := ""
			for _, m := range multiCharOps {
				if strings.HasPrefix(sql[i:], m) {
					op = m
					break
				}
			}
			if op == "" && strings.ContainsRune("=<>+-*/%!~^&|", r) {
				op = string(r)
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected character %q at offset %d", r, i)
			}
			out = append(out, token{kind: tokOp, text: op, pos: i, end: i + len(op)})
			i += len(op)
		}
	}
	return append(out, token{kind: tokEOF, pos: len(sql), end: len(sql)}), nil
}

func isAlnum(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// isParamStart reports whether prefix followed by next starts a numbered
// ($1) or named (:name, @name) parameter. "::" is a cast, not a parameter.
func isParamStart(prefix rune, next byte) bool {
	if prefix == '$' {
		return next >= '0' && next <= '9'
	}
	return next == '_' || next >= 'a' && next <= 'z' || next >= 'A' && next <= 'Z'
}

func scanNumber(sql string, i int) int {
	j := i
	for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
		j++
	}
	if j+1 < len(sql) && sql[j] == '.' && sql[j+1] >= '0' && sql[j+1] <= '9' {
		j++
		for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
			j++
		}
	}
	if j < len(sql) && (sql[j] == 'e' || sql[j] == 'E') {
		k := j + 1
		if k < len(sql) && (sql[k] == '+' || sql[k] == '-') {
			k++
		}
		if k < len(sql) && sql[k] >= '0' && sql[k] <= '9' {
			j = k
			for j < len(sql) && sql[j] >= '0' && sql[j] <= '9' {
				j++
			}
		}
	}
	return j
}

// scanQuoted returns the end of the quoted run starting at i. A doubled
// quote escapes itself; backslash escapes apply to string literals.
func scanQuoted(sql string, i int, quote byte, backslash bool) (int, error) {
	j := i + 1
	for j < len(sql) {
		switch {
		case backslash && sql[j] == '\\':
			j += 2
		case sql[j] == quote:
			if j+1 < len(sql) && sql[j+1] == quote {
				j += 2
				continue
			}
			return j + 1, nil
		default:
			j++
		}
	}
	return 0, fmt.Errorf("unterminated quoted text at offset %d", i)
}
