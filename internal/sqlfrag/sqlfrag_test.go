package sqlfrag

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func optionalFilter() []Node {
	return []Node{
		Text("SELECT id FROM t_user u_0"),
		Where{Body: []Node{
			If{Conds: []Cond{{Path: "name", Op: NotEmpty}}, Body: []Node{Text(" AND u_0.name LIKE "), Param{Path: "name", Wildcard: Prefix}}},
			If{Conds: []Cond{{Path: "age"}}, Body: []Node{Text(" AND u_0.age > "), Param{Path: "age"}}},
		}},
	}
}

func TestScript(t *testing.T) {
	got := Script(optionalFilter())
	assert.Equal(t, `<script>SELECT id FROM t_user u_0<where>`+
		`<if test="name != null and name != ''"> AND u_0.name LIKE <bind name="name_pattern" value="name + '%'"/>#{name_pattern}</if>`+
		`<if test="age != null"> AND u_0.age &gt; #{age}</if>`+
		`</where></script>`, got)
}

func TestScript_ForEachAttributes(t *testing.T) {
	got := MyBatis([]Node{ForEach{Collection: "ids", Item: "item", Open: "(", Separator: ",", Close: ")", Body: []Node{Param{Path: "item"}}}})
	assert.Equal(t, `<foreach collection="ids" item="item" open="(" separator="," close=")">#{item}</foreach>`, got)
}

func TestBind_OptionalFilter(t *testing.T) {
	tests := []struct {
		name     string
		params   Map
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "all present",
			params:   Map{"name": "Ja", "age": 30},
			wantSQL:  "SELECT id FROM t_user u_0 WHERE u_0.name LIKE ? AND u_0.age > ?",
			wantArgs: []any{"Ja%", 30},
		},
		{
			name:     "leading condition skipped",
			params:   Map{"name": "", "age": 30},
			wantSQL:  "SELECT id FROM t_user u_0 WHERE u_0.age > ?",
			wantArgs: []any{30},
		},
		{
			name:    "nothing present",
			params:  Map{"name": "", "age": nil},
			wantSQL: "SELECT id FROM t_user u_0",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := Bind(optionalFilter(), tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

type userRoleKey struct {
	UserID string
	RoleID string
}

func TestBind_ForEach(t *testing.T) {
	in := []Node{
		Text("DELETE FROM t_user WHERE id IN "),
		ForEach{Collection: "ids", Item: "item", Open: "(", Separator: ", ", Close: ")", Body: []Node{Param{Path: "item"}}},
	}
	sql, args, err := Bind(in, Map{"ids": []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM t_user WHERE id IN (?, ?)", sql)
	assert.Equal(t, []any{"a", "b"}, args)

	composite := []Node{
		Text("DELETE FROM user_role WHERE "),
		ForEach{Collection: "ids", Item: "item", Separator: " OR ", Body: []Node{
			Text("(user_id = "), Param{Path: "item.userId"}, Text(" AND role_id = "), Param{Path: "item.roleId"}, Text(")"),
		}},
	}
	sql, args, err = Bind(composite, Map{"ids": []userRoleKey{{"u1", "r1"}, {"u2", "r2"}}})
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM user_role WHERE (user_id = ? AND role_id = ?) OR (user_id = ? AND role_id = ?)", sql)
	assert.Equal(t, []any{"u1", "r1", "u2", "r2"}, args)
}

func TestBind_Set(t *testing.T) {
	in := []Node{
		Text("UPDATE t_user"),
		Set{Body: []Node{
			If{Conds: []Cond{{Path: "name"}}, Body: []Node{Text("name = "), Param{Path: "name"}, Text(",")}},
			If{Conds: []Cond{{Path: "age"}}, Body: []Node{Text("age = "), Param{Path: "age"}, Text(",")}},
		}},
		Text(" WHERE id = "), Param{Path: "id"},
	}
	sql, args, err := Bind(in, Map{"name": "x", "age": (*int)(nil), "id": "7"})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE t_user SET name = ? WHERE id = ?", sql)
	assert.Equal(t, []any{"x", "7"}, args)
}

func TestBind_OrGroups(t *testing.T) {
	group := func(col string) Node {
		return Trim{Prefix: "OR (", Suffix: ")", PrefixOverrides: []string{"AND"}, Body: []Node{Text(" AND " + col + " = "), Param{Path: col}}}
	}
	sql, args, err := Bind([]Node{Text("SELECT 1"), Where{Body: []Node{group("a"), group("b")}}}, Map{"a": 1, "b": 2})
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 WHERE ( a = ? ) OR ( b = ? )", sql)
	assert.Equal(t, []any{1, 2}, args)
}

func TestBind_RawSqlizer(t *testing.T) {
	in := []Node{Text("SELECT * FROM t"), Where{Body: []Node{Raw{Path: "spec.where"}}}}
	sql, args, err := Bind(in, Map{"spec": Map{"where": sq.Expr("a = ? AND b = ?", 1, 2)}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = ? AND b = ?", sql)
	assert.Equal(t, []any{1, 2}, args)
}

func TestBind_MissingArgument(t *testing.T) {
	_, _, err := Bind([]Node{Text("SELECT 1 WHERE a = "), Param{Path: "nope"}}, Map{})
	require.ErrorIs(t, err, ErrMissingArgument)

	_, _, err = Bind([]Node{ForEach{Collection: "ids", Body: []Node{Text("x")}}}, Map{"ids": 3})
	require.Error(t, err)
}

func TestProperty(t *testing.T) {
	type dept struct {
		DeptNo string `db:"dept_no"`
		Name   string `json:"deptName"`
	}
	d := &dept{DeptNo: "D1", Name: "Sales"}

	v, ok := Property(d, "deptNo")
	require.True(t, ok)
	assert.Equal(t, "D1", v)

	v, ok = Property(d, "dept_no")
	require.True(t, ok)
	assert.Equal(t, "D1", v)

	v, ok = Property(d, "deptName")
	require.True(t, ok)
	assert.Equal(t, "Sales", v)

	_, ok = Property(d, "missing")
	assert.False(t, ok)

	v, ok = Property(map[string]any{"a": map[string]int{"b": 4}}, "a.b")
	require.True(t, ok)
	assert.Equal(t, 4, v)
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "SELECT 'a  b' FROM t", Compact("  SELECT   'a  b'\n\tFROM t  "))
}

func TestParse(t *testing.T) {
	nodes, err := Parse("SELECT u.name FROM t_user u WHERE u.dept_no = #{deptNo, jdbcType=VARCHAR} ORDER BY ${column} # x")
	require.NoError(t, err)
	assert.Equal(t, []Node{
		Text("SELECT u.name FROM t_user u WHERE u.dept_no = "),
		Param{Path: "deptNo"},
		Text(" ORDER BY "),
		Raw{Path: "column"},
		Text(" # x"),
	}, nodes)

	sql, args, err := Bind(nodes, Map{"deptNo": "D1", "column": "u.name"})
	require.NoError(t, err)
	assert.Equal(t, "SELECT u.name FROM t_user u WHERE u.dept_no = ? ORDER BY u.name # x", sql)
	assert.Equal(t, []any{"D1"}, args)

	_, err = Parse("SELECT #{id")
	assert.Error(t, err)
}
