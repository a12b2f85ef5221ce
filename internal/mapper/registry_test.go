package mapper_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlmapper/internal/mapper"
	"sqlmapper/internal/metadata"
	"sqlmapper/internal/naming"
	"sqlmapper/internal/testfixture"
)

func TestDeclare_Builtins(t *testing.T) {
	reg := mapper.NewRegistry(testfixture.Registry(t), nil, nil)
	def, err := reg.Declare(mapper.Declaration{Entity: "Role"})
	require.NoError(t, err)

	assert.Equal(t, "RoleMapper", def.Namespace)
	require.Len(t, def.Methods, len(mapper.BuiltinNames()))

	findByID, ok := def.Method("findById")
	require.True(t, ok)
	assert.Equal(t, "RoleMapper.findById", findByID.StatementID())
	assert.Equal(t, mapper.KindFindByID, findByID.Kind)
	assert.True(t, findByID.CompositeResultMap)
	assert.Equal(t, "string", findByID.Params[0].Type)

	exists, _ := def.Method("existsById")
	assert.False(t, exists.CompositeResultMap)

	pageSort, _ := def.Method("findAllPageSort")
	assert.Equal(t, 0, pageSort.PageIndex)
	assert.Equal(t, 1, pageSort.SortIndex)
	assert.True(t, pageSort.OneParameter())
	assert.Equal(t, "_parameter", pageSort.ParamName(1))

	spec, _ := def.Method("findPageSpecification")
	assert.True(t, spec.Specification())
	assert.True(t, spec.HasPage())
}

func TestDeclare_CompositeKeyTypes(t *testing.T) {
	reg := mapper.NewRegistry(testfixture.Registry(t), nil, nil)
	def, err := reg.Declare(mapper.Declaration{Entity: "UserRole"})
	require.NoError(t, err)

	deleteByID, _ := def.Method("deleteById")
	assert.Equal(t, "UserRoleKey", deleteByID.Params[0].Type)
	batch, _ := def.Method("deleteBatch")
	assert.Equal(t, "[]UserRoleKey", batch.Params[0].Type)
}

func TestDeclare_CustomMethods(t *testing.T) {
	reg := testfixture.Mappers(t)

	m, ok := reg.Method("UserMapper.findByNameStartsWithOrDeptNoAndAgeGreaterThan")
	require.True(t, ok)
	assert.Equal(t, mapper.KindQuery, m.Kind)
	assert.Equal(t, 3, m.ArgumentCount())
	assert.Len(t, m.ValueParams(), 3)

	custom, ok := reg.Method("UserMapper.findNames")
	require.True(t, ok)
	assert.Equal(t, mapper.KindCustomSQL, custom.Kind)
	assert.False(t, custom.CompositeResultMap)

	spec, ok := reg.Method("UserMapper.findBySpecification")
	require.True(t, ok)
	assert.Equal(t, mapper.KindFindSpecification, spec.Kind)

	unnamed := mapper.MethodDeclaration{Name: "findByNameAndAge", Params: []mapper.ParameterDeclaration{{}, {}}}
	reg2 := mapper.NewRegistry(testfixture.Registry(t), nil, nil)
	def, err := reg2.Declare(mapper.Declaration{Entity: "User", NoBuiltins: true, Methods: []mapper.MethodDeclaration{unnamed}})
	require.NoError(t, err)
	require.Len(t, def.Methods, 1)
	assert.Equal(t, "param1", def.Methods[0].Params[0].Name)
	assert.Equal(t, "param2", def.Methods[0].Params[1].Name)
}

func TestDeclare_Errors(t *testing.T) {
	tests := []struct {
		name string
		decl mapper.Declaration
		kind metadata.ErrorKind
	}{
		{
			name: "unknown entity",
			decl: mapper.Declaration{Entity: "Ghost"},
			kind: metadata.UnknownEntity,
		},
		{
			name: "specification with extra argument",
			decl: mapper.Declaration{Entity: "User", Methods: []mapper.MethodDeclaration{{
				Name: "findByX",
				Params: []mapper.ParameterDeclaration{
					{Name: "spec", Kind: mapper.ParamSpecification},
					{Name: "name", Kind: mapper.ParamValue},
				},
			}}},
			kind: metadata.ParameterCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := mapper.NewRegistry(testfixture.Registry(t), nil, nil)
			_, err := reg.Declare(tt.decl)
			require.Error(t, err)
			assert.True(t, metadata.IsKind(err, tt.kind), err.Error())
		})
	}

	t.Run("duplicate namespace", func(t *testing.T) {
		reg := mapper.NewRegistry(testfixture.Registry(t), nil, nil)
		_, err := reg.Declare(mapper.Declaration{Entity: "User"})
		require.NoError(t, err)
		_, err = reg.Declare(mapper.Declaration{Entity: "User"})
		assert.True(t, metadata.IsKind(err, metadata.DuplicateEntity))
	})
}

func TestExpand_RegistersFinders(t *testing.T) {
	reg := testfixture.Mappers(t)

	deptFinder, ok := reg.Method("DeptMapper.findWithDeptNo")
	require.True(t, ok)
	assert.True(t, deptFinder.JoinMethod())
	assert.True(t, deptFinder.BaseResultMap)
	assert.False(t, deptFinder.CompositeResultMap)
	require.Len(t, deptFinder.Params, 1)
	assert.Equal(t, "deptNo", deptFinder.Params[0].Name)
	assert.Equal(t, "string", deptFinder.Params[0].Type)

	roleFinder, ok := reg.Method("RoleMapper.findJoinWithId")
	require.True(t, ok)
	assert.Equal(t, "user_role", roleFinder.Relation.LinkTable)

	_, ok = reg.Method("UserMapper.findJoinWithId")
	assert.True(t, ok, "Role.users finder")
	_, ok = reg.Method("UserMapper.findWithDeptNo")
	assert.True(t, ok, "Dept.testUserList finder")
}

func TestExpand_ColumnAliasesAvoidCollisions(t *testing.T) {
	reg := testfixture.Mappers(t)
	user, _ := reg.Metadata().Entity("User")
	dept, _ := user.Relation("dept")
	roles, _ := user.Relation("roles")

	deptJoin, ok := reg.JoinFor(dept)
	require.True(t, ok)
	assert.Equal(t, "d_1.dept_id, d_1.dept_no AS dept_no_1, d_1.dept_name", deptJoin.ColumnList())

	rolesJoin, ok := reg.JoinFor(roles)
	require.True(t, ok)
	assert.Equal(t, "r_2.id AS id_1, r_2.role_name, r_2.role_code, r_2.role_description", rolesJoin.ColumnList())
	assert.True(t, rolesJoin.Columns()[0].ID)
	assert.Equal(t, "RoleMapper.findJoinWithIdResultMap", rolesJoin.NestedResultMap())
	assert.Equal(t, "list", rolesJoin.DeclaredType())
	assert.Equal(t, "Dept", deptJoin.DeclaredType())
}

func TestExpand_LeftJoin(t *testing.T) {
	reg := testfixture.Mappers(t)
	user, _ := reg.Metadata().Entity("User")
	dept, _ := user.Relation("dept")
	roles, _ := user.Relation("roles")

	deptJoin, _ := reg.JoinFor(dept)
	assert.Equal(t, "LEFT JOIN t_dept d_1 ON u_0.dept_no = d_1.dept_no", deptJoin.LeftJoin("u_0"))

	rolesJoin, _ := reg.JoinFor(roles)
	assert.Equal(t,
		"LEFT JOIN ( user_role r_2_0 JOIN t_role r_2 ON r_2.id = r_2_0.role_id ) ON u_0.id = r_2_0.user_id",
		rolesJoin.LeftJoin("u_0"))
}

func TestExpand_AttachesJoinsPerIncludeExclude(t *testing.T) {
	reg := testfixture.Mappers(t)

	tests := []struct {
		method string
		joins  []string
	}{
		{"UserMapper.findById", []string{"dept", "roles"}},
		{"UserMapper.findAll", []string{"dept"}},
		{"UserMapper.findByName", []string{"dept"}},
		{"UserMapper.findAllSpecification", nil},
		{"UserMapper.findPageSpecification", nil},
		{"UserMapper.countByNameAndDeptNo", nil},
		{"UserMapper.existsById", nil},
		{"UserMapper.insert", nil},
		{"UserMapper.findNames", nil},
		{"DeptMapper.findById", []string{"testUserList"}},
		{"DeptMapper.findWithDeptNo", nil},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			m, ok := reg.Method(tt.method)
			require.True(t, ok)
			var got []string
			for _, j := range m.Joins {
				got = append(got, j.Property())
			}
			assert.Equal(t, tt.joins, got)
		})
	}
}

func TestExpand_FinderNameCollision(t *testing.T) {
	meta := testfixture.Registry(t)
	reg := mapper.NewRegistry(meta, naming.Default(), nil)
	_, err := reg.Declare(mapper.Declaration{Entity: "User"})
	require.NoError(t, err)
	_, err = reg.Declare(mapper.Declaration{Entity: "Dept", Methods: []mapper.MethodDeclaration{
		{Name: "findWithDeptNo", SQL: "SELECT * FROM t_dept WHERE dept_no = #{deptNo}"},
	}})
	require.NoError(t, err)
	require.NoError(t, reg.Expand())

	user, _ := meta.Entity("User")
	dept, _ := user.Relation("dept")
	join, _ := reg.JoinFor(dept)
	assert.Equal(t, "DeptMapper.findWithDeptNo2", join.NestedSelect())
}

func TestExpand_ImplicitTargetMapper(t *testing.T) {
	reg := mapper.NewRegistry(testfixture.Registry(t), nil, nil)
	_, err := reg.Declare(mapper.Declaration{Entity: "User"})
	require.NoError(t, err)
	require.NoError(t, reg.Expand())

	role, ok := reg.ForEntity("Role")
	require.True(t, ok)
	assert.True(t, role.Implicit)
	require.Len(t, role.Methods, 1)
	assert.Equal(t, "findJoinWithId", role.Methods[0].Name)

	_, err = reg.Declare(mapper.Declaration{Entity: "Dept"})
	assert.Error(t, err)
}
