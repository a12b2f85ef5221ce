package testfixture

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlmapper/internal/mapper"
	"sqlmapper/internal/naming"
)

func value(name, typ string) mapper.ParameterDeclaration {
	return mapper.ParameterDeclaration{Name: name, Type: typ, Kind: mapper.ParamValue}
}

// UserMapper declares the query methods exercised across packages.
func UserMapper() mapper.Declaration {
	return mapper.Declaration{
		Namespace: "UserMapper",
		Entity:    "User",
		Methods: []mapper.MethodDeclaration{
			{Name: "findByName", Params: []mapper.ParameterDeclaration{value("name", "string")}},
			{Name: "findByNameStartsWithAndDeptNoLikeOrderByNameDesc", Params: []mapper.ParameterDeclaration{
				value("name", "string"), value("deptNo", "string"),
			}},
			{Name: "findByOrderByNameDesc"},
			{Name: "findByNameStartsWithOrDeptNoAndAgeGreaterThan", Params: []mapper.ParameterDeclaration{
				value("name", "string"), value("deptNo", "string"), value("age", "int"),
			}},
			{Name: "findByNameIn", Params: []mapper.ParameterDeclaration{
				{Name: "names", Type: "[]string", Kind: mapper.ParamList},
			}},
			{Name: "findByAgeBetween", Params: []mapper.ParameterDeclaration{value("from", "int"), value("to", "int")}},
			{Name: "findByRolesRoleNameLike", Params: []mapper.ParameterDeclaration{value("roleName", "string")}},
			{Name: "findByOrderByRolesRoleNameDesc"},
			{Name: "findByNameAndAge", IfTest: mapper.IfTestNotNull, Params: []mapper.ParameterDeclaration{
				value("name", "string"), value("age", "int"),
			}},
			{Name: "findByDeptNo", Params: []mapper.ParameterDeclaration{
				value("deptNo", "string"), {Name: "sort", Type: "Sort", Kind: mapper.ParamSort},
			}},
			{Name: "findPageByDeptNo", Params: []mapper.ParameterDeclaration{
				{Name: "page", Type: "Page", Kind: mapper.ParamPage}, value("deptNo", "string"),
			}},
			{Name: "findFirst2ByAgeGreaterThan", Params: []mapper.ParameterDeclaration{value("age", "int")}},
			{Name: "countByNameAndDeptNo", ReturnType: "int64", Params: []mapper.ParameterDeclaration{
				value("name", "string"), value("deptNo", "string"),
			}},
			{Name: "existsByDeptNo", ReturnType: "bool", Params: []mapper.ParameterDeclaration{value("deptNo", "string")}},
			{Name: "deleteByNameAndDeptNo", Params: []mapper.ParameterDeclaration{
				value("name", "string"), value("deptNo", "string"),
			}},
			{Name: "findBySpecification", Params: []mapper.ParameterDeclaration{
				{Name: "spec", Type: "Specification", Kind: mapper.ParamSpecification},
			}},
			{Name: "findNames", SQL: "SELECT u.name FROM t_user u WHERE u.dept_no = #{deptNo}", Params: []mapper.ParameterDeclaration{
				value("deptNo", "string"),
			}},
		},
	}
}

// Declarations returns the fixture mappers. Dept and Role use the catalogue only.
func Declarations() []mapper.Declaration {
	return []mapper.Declaration{
		UserMapper(),
		{Namespace: "RoleMapper", Entity: "Role"},
		{Namespace: "DeptMapper", Entity: "Dept"},
		{Namespace: "UserRoleMapper", Entity: "UserRole"},
	}
}

// Mappers builds the fixture entities and mappers with relations expanded.
func Mappers(t testing.TB) *mapper.Registry {
	t.Helper()
	reg := mapper.NewRegistry(Registry(t), naming.Default(), nil)
	for _, d := range Declarations() {
		_, err := reg.Declare(d)
		require.NoError(t, err)
	}
	require.NoError(t, reg.Expand())
	return reg
}
