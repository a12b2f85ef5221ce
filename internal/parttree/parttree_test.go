package parttree_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmapper/internal/metadata"
	"sqlmapper/internal/parttree"
	"sqlmapper/internal/sqlfrag"
	"sqlmapper/internal/testfixture"
)

func entity(t *testing.T, name string) *metadata.Entity {
	t.Helper()
	e, ok := testfixture.Registry(t).Entity(name)
	require.True(t, ok)
	return e
}

func renderContext(t *testing.T) parttree.RenderContext {
	return parttree.RenderContext{
		Alias: "u_0",
		RelationAlias: func(r *metadata.Relation) (string, bool) {
			return r.Alias, true
		},
		ArgName: func(i int) string { return "param" + strconv.Itoa(i+1) },
	}
}

func bindWhere(t *testing.T, tree *parttree.PartTree, ctx parttree.RenderContext, params sqlfrag.Map) (string, []any) {
	t.Helper()
	conds, err := tree.Conditions(ctx)
	require.NoError(t, err)
	sql, args, err := sqlfrag.Bind([]sqlfrag.Node{sqlfrag.Text("SELECT 1"), sqlfrag.Where{Body: conds}}, params)
	require.NoError(t, err)
	return sql, args
}

func TestParse_AndWithOrder(t *testing.T) {
	user := entity(t, "User")
	tree, err := parttree.Parse("findByNameStartsWithAndDeptNoLikeOrderByNameDesc", user, "UserMapper.x")
	require.NoError(t, err)

	require.Len(t, tree.OrParts, 1)
	parts := tree.OrParts[0].Parts
	require.Len(t, parts, 2)
	assert.Equal(t, parttree.StartingWith, parts[0].Type)
	assert.Equal(t, "name", parts[0].Path.String())
	assert.Equal(t, parttree.Like, parts[1].Type)
	assert.Equal(t, "dept_no", parts[1].Path.ColumnName())
	assert.Equal(t, []int{1}, parts[1].Args)
	assert.Equal(t, 2, tree.ArgumentCount())

	require.Len(t, tree.Orders, 1)
	assert.Equal(t, "DESC", tree.Orders[0].Direction)

	ctx := renderContext(t)
	sql, args := bindWhere(t, tree, ctx, sqlfrag.Map{"param1": "Ja", "param2": "D%"})
	assert.Equal(t, "SELECT 1 WHERE u_0.name LIKE ? AND u_0.dept_no LIKE ?", sql)
	assert.Equal(t, []any{"Ja%", "D%"}, args)

	order, err := tree.OrderBy(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u_0.name DESC", order)
}

func TestParse_OrGroups(t *testing.T) {
	tree, err := parttree.Parse("findByNameStartsWithOrDeptNoAndAgeGreaterThan", entity(t, "User"), "UserMapper.x")
	require.NoError(t, err)
	require.Len(t, tree.OrParts, 2)
	assert.Len(t, tree.OrParts[1].Parts, 2)
	assert.Equal(t, 3, tree.ArgumentCount())

	sql, args := bindWhere(t, tree, renderContext(t), sqlfrag.Map{"param1": "Ja", "param2": "D1", "param3": 20})
	assert.Equal(t, "SELECT 1 WHERE ( u_0.name LIKE ? ) OR ( u_0.dept_no = ? AND u_0.age > ? )", sql)
	assert.Equal(t, []any{"Ja%", "D1", 20}, args)
}

func TestParse_OrderOnly(t *testing.T) {
	tree, err := parttree.Parse("findByOrderByNameDesc", entity(t, "User"), "UserMapper.x")
	require.NoError(t, err)
	assert.Empty(t, tree.OrParts)
	require.Len(t, tree.Orders, 1)
	assert.Equal(t, "name", tree.Orders[0].Path.String())
}

func TestParse_MultipleOrders(t *testing.T) {
	tree, err := parttree.Parse("findByRoleCodeOrderByRoleDescriptionDescRoleNameAsc", entity(t, "Role"), "RoleMapper.x")
	require.NoError(t, err)
	require.Len(t, tree.Orders, 2)
	assert.Equal(t, "roleDescription", tree.Orders[0].Path.String())
	assert.Equal(t, "DESC", tree.Orders[0].Direction)
	assert.Equal(t, "roleName", tree.Orders[1].Path.String())
	assert.Equal(t, "ASC", tree.Orders[1].Direction)
}

func TestParse_Subject(t *testing.T) {
	tests := []struct {
		source string
		want   parttree.Subject
	}{
		{"findByName", parttree.Subject{}},
		{"countByNameAndDeptNo", parttree.Subject{Count: true}},
		{"existsByDeptNo", parttree.Subject{Exists: true}},
		{"deleteByNameAndDeptNo", parttree.Subject{Delete: true}},
		{"removeByName", parttree.Subject{Delete: true}},
		{"findDistinctByName", parttree.Subject{Distinct: true}},
		{"findFirst2ByAgeGreaterThan", parttree.Subject{MaxResults: 2}},
		{"findTopByAge", parttree.Subject{MaxResults: 1}},
		{"queryDistinctTop10ByName", parttree.Subject{Distinct: true, MaxResults: 10}},
		{"findWithDeptNo", parttree.Subject{Join: true, JoinProperty: "DeptNo"}},
		{"findJoinWithId", parttree.Subject{Join: true, Link: true, JoinProperty: "Id"}},
	}
	user := entity(t, "User")
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			tree, err := parttree.Parse(tt.source, user, "UserMapper."+tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tree.Subject)
		})
	}
}

func TestParse_PartTypes(t *testing.T) {
	tests := []struct {
		source     string
		typ        parttree.Type
		args       int
		ignoreCase bool
		wantSQL    string
	}{
		{"findByNameIsNull", parttree.IsNull, 0, false, "SELECT 1 WHERE u_0.name IS NULL"},
		{"findByNameIsNotNull", parttree.IsNotNull, 0, false, "SELECT 1 WHERE u_0.name IS NOT NULL"},
		{"findByAgeBetween", parttree.Between, 2, false, "SELECT 1 WHERE u_0.age BETWEEN ? AND ?"},
		{"findByAgeLessThanEqual", parttree.LessThanEqual, 1, false, "SELECT 1 WHERE u_0.age <= ?"},
		{"findByNameNot", parttree.NegatingSimpleProperty, 1, false, "SELECT 1 WHERE u_0.name <> ?"},
		{"findByNameIgnoreCase", parttree.SimpleProperty, 1, true, "SELECT 1 WHERE UPPER(u_0.name) = UPPER(?)"},
		{"findByNameEndsWith", parttree.EndingWith, 1, false, "SELECT 1 WHERE u_0.name LIKE ?"},
		{"findByNameNotContaining", parttree.NotContaining, 1, false, "SELECT 1 WHERE u_0.name NOT LIKE ?"},
		{"findByNameIsEmpty", parttree.IsEmpty, 0, false, "SELECT 1 WHERE (u_0.name IS NULL OR u_0.name = '')"},
	}
	user := entity(t, "User")
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			tree, err := parttree.Parse(tt.source, user, "UserMapper."+tt.source)
			require.NoError(t, err)
			part := tree.Parts()[0]
			assert.Equal(t, tt.typ, part.Type)
			assert.Equal(t, tt.args, tree.ArgumentCount())
			assert.Equal(t, tt.ignoreCase, part.IgnoreCase)

			sql, _ := bindWhere(t, tree, renderContext(t), sqlfrag.Map{"param1": "x", "param2": "y"})
			assert.Equal(t, tt.wantSQL, sql)
		})
	}
}

func TestParse_In(t *testing.T) {
	tree, err := parttree.Parse("findByNameIn", entity(t, "User"), "UserMapper.findByNameIn")
	require.NoError(t, err)
	sql, args := bindWhere(t, tree, renderContext(t), sqlfrag.Map{"param1": []string{"a", "b"}})
	assert.Equal(t, "SELECT 1 WHERE u_0.name IN (?, ?)", sql)
	assert.Equal(t, []any{"a", "b"}, args)
}

func TestParse_RelationPath(t *testing.T) {
	tree, err := parttree.Parse("findByRolesRoleNameLike", entity(t, "User"), "UserMapper.findByRolesRoleNameLike")
	require.NoError(t, err)
	part := tree.Parts()[0]
	require.NotNil(t, part.Path.Relation)
	assert.Equal(t, "roles", part.Path.Relation.Property)
	assert.Equal(t, "Role", part.Path.Entity.Name)
	assert.Equal(t, "roles.roleName", part.Path.String())
	require.Len(t, tree.Relations(), 1)

	sql, _ := bindWhere(t, tree, renderContext(t), sqlfrag.Map{"param1": "adm%"})
	assert.Equal(t, "SELECT 1 WHERE r_2.role_name LIKE ?", sql)

	ctx := renderContext(t)
	ctx.RelationAlias = func(*metadata.Relation) (string, bool) { return "", false }
	_, err = tree.Conditions(ctx)
	assert.Error(t, err)
}

func TestParse_LocalPropertyWins(t *testing.T) {
	tree, err := parttree.Parse("findByDeptNo", entity(t, "User"), "UserMapper.findByDeptNo")
	require.NoError(t, err)
	assert.Nil(t, tree.Parts()[0].Path.Relation)
	assert.Equal(t, "dept_no", tree.Parts()[0].Path.ColumnName())

	tree, err = parttree.Parse("findByDeptDeptName", entity(t, "User"), "UserMapper.findByDeptDeptName")
	require.NoError(t, err)
	assert.Equal(t, "dept.deptName", tree.Parts()[0].Path.String())
}

func TestParse_IfTest(t *testing.T) {
	tree, err := parttree.Parse("findByNameAndAge", entity(t, "User"), "UserMapper.findByNameAndAge")
	require.NoError(t, err)
	ctx := renderContext(t)
	ctx.IfTest = func(int) (sqlfrag.CondOp, bool) { return sqlfrag.NotNull, true }

	sql, args := bindWhere(t, tree, ctx, sqlfrag.Map{"param1": nil, "param2": 30})
	assert.Equal(t, "SELECT 1 WHERE u_0.age = ?", sql)
	assert.Equal(t, []any{30}, args)

	sql, args = bindWhere(t, tree, ctx, sqlfrag.Map{"param1": nil, "param2": nil})
	assert.Equal(t, "SELECT 1", sql)
	assert.Empty(t, args)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		source string
		kind   metadata.ErrorKind
	}{
		{"fetchByName", metadata.UnsupportedStatement},
		{"findByNameOrderByAgeOrderByName", metadata.UnsupportedStatement},
		{"findByNickname", metadata.PropertyNotFound},
		{"findByDept", metadata.PropertyNotFound},
		{"findByRolesNickname", metadata.PropertyNotFound},
		{"findByOrderByNickname", metadata.PropertyNotFound},
	}
	user := entity(t, "User")
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, err := parttree.Parse(tt.source, user, "UserMapper."+tt.source)
			require.Error(t, err)
			assert.True(t, metadata.IsKind(err, tt.kind), err.Error())
			var cfgErr *metadata.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "UserMapper."+tt.source, cfgErr.Statement)
		})
	}
}
