package dbexec

import (
	"fmt"
	"strings"

	"sqlmapper/internal/compiler"
)

// scanRows reads every row as a column-name keyed map.
func scanRows(rows Rows) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalize(values[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalize turns driver byte slices into strings.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// mapRows applies a result map to raw rows. Rows sharing the identifying
// columns of rm collapse into one entity; nested result maps become a
// property holding the joined entity, or a collection of distinct joined
// entities. Without a result map the raw rows are returned.
func (s *Session) mapRows(rm *compiler.ResultMap, raw []map[string]any) []map[string]any {
	if rm == nil {
		return raw
	}
	type nestedState struct {
		seen map[string]bool
	}
	var (
		out     = make([]map[string]any, 0, len(raw))
		byKey   = make(map[string]map[string]any)
		nested  = make(map[string]map[string]*nestedState)
		idCols  = rm.IDColumns()
		hasNest = false
	)
	for _, m := range rm.Mappings {
		if m.Nested() {
			hasNest = true
		}
	}

	for i, row := range raw {
		key := fmt.Sprint(i)
		if hasNest && len(idCols) > 0 {
			key = rowKey(row, idCols)
		}
		entity, ok := byKey[key]
		if !ok {
			entity = make(map[string]any, len(rm.Mappings))
			for _, m := range rm.Mappings {
				switch {
				case !m.Nested():
					entity[m.Property] = row[m.Column]
				case m.Collection:
					entity[m.Property] = []map[string]any{}
				default:
					entity[m.Property] = nil
				}
			}
			byKey[key] = entity
			nested[key] = make(map[string]*nestedState)
			out = append(out, entity)
		}

		for _, m := range rm.Mappings {
			if !m.Nested() {
				continue
			}
			child := s.project(m.NestedResultMap, row)
			if child == nil {
				continue
			}
			if !m.Collection {
				entity[m.Property] = child.values
				continue
			}
			state := nested[key][m.Property]
			if state == nil {
				state = &nestedState{seen: make(map[string]bool)}
				nested[key][m.Property] = state
			}
			if state.seen[child.key] {
				continue
			}
			state.seen[child.key] = true
			entity[m.Property] = append(entity[m.Property].([]map[string]any), child.values)
		}
	}
	return out
}

type projected struct {
	key    string
	values map[string]any
}

// project maps the columns of a nested result map out of row. It returns
// nil when the outer join matched nothing.
func (s *Session) project(id string, row map[string]any) *projected {
	rm, ok := s.statements.ResultMap(id)
	if !ok {
		return nil
	}
	values := make(map[string]any, len(rm.Mappings))
	present := false
	for _, m := range rm.Mappings {
		v := row[m.Column]
		values[m.Property] = v
		if v != nil {
			present = true
		}
	}
	idCols := rm.IDColumns()
	if len(idCols) > 0 {
		present = false
		for _, c := range idCols {
			if row[c] != nil {
				present = true
			}
		}
	}
	if !present {
		return nil
	}
	if len(idCols) == 0 {
		cols := make([]string, 0, len(rm.Mappings))
		for _, m := range rm.Mappings {
			cols = append(cols, m.Column)
		}
		idCols = cols
	}
	return &projected{key: rowKey(row, idCols), values: values}
}

func rowKey(row map[string]any, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%v", row[c])
	}
	return strings.Join(parts, "\x00")
}
