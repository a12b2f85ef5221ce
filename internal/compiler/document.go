package compiler

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const mapperHeader = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE mapper PUBLIC "-//mybatis.org//DTD Mapper 3.0//EN" "http://mybatis.org/dtd/mybatis-3-mapper.dtd">
`

var attrEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

// WriteMapper writes the statements and result maps of one namespace as a
// MyBatis mapper document.
func (r *Registry) WriteMapper(w io.Writer, namespace string) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(mapperHeader)
	fmt.Fprintf(bw, "<mapper namespace=\"%s\">\n", attrEscaper.Replace(namespace))

	for _, id := range r.mapOrder {
		if inNamespace(id, namespace) {
			writeResultMap(bw, namespace, r.resultMaps[id])
		}
	}
	for _, st := range r.Statements() {
		if st.Namespace() == namespace {
			writeStatement(bw, namespace, st)
		}
	}
	bw.WriteString("</mapper>\n")
	return bw.Flush()
}

func inNamespace(id, namespace string) bool {
	return strings.HasPrefix(id, namespace+".") && !strings.Contains(id[len(namespace)+1:], ".")
}

// local strips the namespace from ids that live in it.
func local(namespace, id string) string {
	if inNamespace(id, namespace) {
		return id[len(namespace)+1:]
	}
	return id
}

func writeResultMap(w *bufio.Writer, namespace string, rm *ResultMap) {
	fmt.Fprintf(w, "  <resultMap id=\"%s\" type=\"%s\">\n", local(namespace, rm.ID), attrEscaper.Replace(rm.Type))
	for _, m := range rm.Mappings {
		switch {
		case m.Nested() && m.Collection:
			fmt.Fprintf(w, "    <collection property=\"%s\" javaType=\"%s\" ofType=\"%s\" resultMap=\"%s\"/>\n",
				m.Property, attrEscaper.Replace(m.Type), attrEscaper.Replace(m.OfType), local(namespace, m.NestedResultMap))
		case m.Nested():
			fmt.Fprintf(w, "    <association property=\"%s\" javaType=\"%s\" resultMap=\"%s\"/>\n",
				m.Property, attrEscaper.Replace(m.Type), local(namespace, m.NestedResultMap))
		default:
			tag := "result"
			if m.ID {
				tag = "id"
			}
			fmt.Fprintf(w, "    <%s property=\"%s\" column=\"%s\"", tag, m.Property, m.Column)
			if m.JDBCType != "" {
				fmt.Fprintf(w, " jdbcType=\"%s\"", m.JDBCType)
			}
			if m.TypeHandler != "" {
				fmt.Fprintf(w, " typeHandler=\"%s\"", m.TypeHandler)
			}
			w.WriteString("/>\n")
		}
	}
	w.WriteString("  </resultMap>\n")
}

func writeStatement(w *bufio.Writer, namespace string, st *Statement) {
	tag := st.Command.String()
	fmt.Fprintf(w, "  <%s id=\"%s\"", tag, st.Method.Name)
	switch {
	case st.ResultMap != nil:
		fmt.Fprintf(w, " resultMap=\"%s\"", local(namespace, st.ResultMap.ID))
	case st.ResultType != "":
		fmt.Fprintf(w, " resultType=\"%s\"", attrEscaper.Replace(st.ResultType))
	}
	if st.KeyGeneration == KeyJDBC3 {
		fmt.Fprintf(w, " useGeneratedKeys=\"true\" keyProperty=\"%s\" keyColumn=\"%s\"", st.KeyProperty, st.KeyColumn)
	}
	w.WriteString(">\n    ")
	if sk := st.SelectKey; sk != nil {
		fmt.Fprintf(w, "<selectKey keyProperty=\"%s\" keyColumn=\"%s\" resultType=\"%s\" order=\"BEFORE\">%s</selectKey>\n    ",
			sk.Property, sk.Column, attrEscaper.Replace(sk.Type), attrEscaper.Replace(sk.SQL))
	}
	w.WriteString(st.Template())
	fmt.Fprintf(w, "\n  </%s>\n", tag)
}
