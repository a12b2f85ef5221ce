package sqlfrag

import (
	"strings"
)

var xmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// Script renders nodes as a MyBatis dynamic SQL script.
func Script(nodes []Node) string {
	return "<script>" + MyBatis(nodes) + "</script>"
}

// MyBatis renders nodes as MyBatis XML markup without the script wrapper.
func MyBatis(nodes []Node) string {
	var b strings.Builder
	for _, n := range nodes {
		writeMyBatis(&b, n)
	}
	return b.String()
}

func writeMyBatis(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case Text:
		b.WriteString(xmlEscaper.Replace(string(n)))
	case Param:
		if n.Wildcard == NoWildcard {
			b.WriteString("#{" + n.Path + "}")
			return
		}
		name := patternName(n.Path)
		b.WriteString(`<bind name="` + name + `" value="` + xmlEscaper.Replace(patternExpr(n)) + `"/>`)
		b.WriteString("#{" + name + "}")
	case Raw:
		b.WriteString("${" + n.Path + "}")
	case If:
		b.WriteString(`<if test="` + xmlEscaper.Replace(testExpr(n.Conds)) + `">`)
		for _, c := range n.Body {
			writeMyBatis(b, c)
		}
		b.WriteString("</if>")
	case ForEach:
		b.WriteString("<foreach")
		writeAttr(b, "collection", n.Collection)
		writeAttr(b, "item", n.Item)
		writeAttr(b, "index", n.Index)
		writeAttr(b, "open", n.Open)
		writeAttr(b, "separator", n.Separator)
		writeAttr(b, "close", n.Close)
		b.WriteString(">")
		for _, c := range n.Body {
			writeMyBatis(b, c)
		}
		b.WriteString("</foreach>")
	case Where:
		b.WriteString("<where>")
		for _, c := range n.Body {
			writeMyBatis(b, c)
		}
		b.WriteString("</where>")
	case Set:
		b.WriteString("<set>")
		for _, c := range n.Body {
			writeMyBatis(b, c)
		}
		b.WriteString("</set>")
	case Trim:
		b.WriteString("<trim")
		writeAttr(b, "prefix", n.Prefix)
		writeAttr(b, "suffix", n.Suffix)
		writeAttr(b, "prefixOverrides", strings.Join(n.PrefixOverrides, "|"))
		writeAttr(b, "suffixOverrides", strings.Join(n.SuffixOverrides, "|"))
		b.WriteString(">")
		for _, c := range n.Body {
			writeMyBatis(b, c)
		}
		b.WriteString("</trim>")
	}
}

func writeAttr(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	b.WriteString(" " + name + `="` + xmlEscaper.Replace(value) + `"`)
}

func testExpr(conds []Cond) string {
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		switch c.Op {
		case NotEmpty:
			parts = append(parts, c.Path+" != null and "+c.Path+" != ''")
		default:
			parts = append(parts, c.Path+" != null")
		}
	}
	return strings.Join(parts, " and ")
}

func patternName(path string) string {
	return strings.ReplaceAll(path, ".", "_") + "_pattern"
}

func patternExpr(p Param) string {
	switch p.Wildcard {
	case Prefix:
		return p.Path + " + '%'"
	case Suffix:
		return "'%' + " + p.Path
	default:
		return "'%' + " + p.Path + " + '%'"
	}
}
