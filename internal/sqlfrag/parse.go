package sqlfrag

import (
	"fmt"
	"strings"
)

// Parse splits hand-written SQL into Text, Param (#{path}) and Raw
// (${path}) nodes. XML tags are not interpreted.
func Parse(sql string) ([]Node, error) {
	var out []Node
	rest := sql
	for {
		i := strings.IndexAny(rest, "#$")
		if i < 0 || i+1 >= len(rest) {
			break
		}
		if rest[i+1] != '{' {
			out = appendText(out, rest[:i+1])
			rest = rest[i+1:]
			continue
		}
		end := strings.IndexByte(rest[i:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated %c{ at offset %d", rest[i], len(sql)-len(rest)+i)
		}
		// Drop MyBatis parameter options such as jdbcType=VARCHAR.
		path, _, _ := strings.Cut(rest[i+2:i+end], ",")
		path = strings.TrimSpace(path)
		if path == "" {
			return nil, fmt.Errorf("empty parameter at offset %d", len(sql)-len(rest)+i)
		}
		out = appendText(out, rest[:i])
		if rest[i] == '#' {
			out = append(out, Param{Path: path})
		} else {
			out = append(out, Raw{Path: path})
		}
		rest = rest[i+end+1:]
	}
	return appendText(out, rest), nil
}

func appendText(out []Node, s string) []Node {
	if s == "" {
		return out
	}
	if n := len(out); n > 0 {
		if prev, ok := out[n-1].(Text); ok {
			out[n-1] = prev + Text(s)
			return out
		}
	}
	return append(out, Text(s))
}
