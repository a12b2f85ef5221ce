// Package testfixture provides the user/role/department model shared by tests.
package testfixture

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sqlmapper/internal/metadata"
	"sqlmapper/internal/naming"
)

// User maps t_user: a many-to-one department and many-to-many roles.
func User() metadata.EntityDescriptor {
	return metadata.EntityDescriptor{
		Name:  "User",
		Table: "t_user",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: "string", ID: true, Generation: metadata.GenerationAuto},
			{Name: "name", Type: "string", Nullable: true},
			{Name: "sex", Type: "string", Nullable: true},
			{Name: "age", Type: "int", Nullable: true},
			{Name: "createTime", Column: "createTime", Type: "time.Time", Nullable: true, Triggers: []metadata.Trigger{
				{Event: metadata.TriggerInsert, ValueType: metadata.CodeValue, Value: "currentTime", Force: true},
				{Event: metadata.TriggerUpdate, ValueType: metadata.CodeValue, Value: "currentTime", Force: false},
			}},
			{Name: "deptNo", Type: "string", Nullable: true},
			{Name: "dept", Type: "Dept", Relation: &metadata.RelationDescriptor{
				Kind:       metadata.ManyToOne,
				Target:     "Dept",
				JoinColumn: &metadata.JoinColumn{Property: "deptNo", ReferencedProperty: "deptNo"},
				Excludes:   []string{"findPageSpecification", "findAllSpecification"},
				SubQuery: &metadata.SubQuery{
					Predicates: []metadata.SubPredicate{{Property: "deptNo", Condition: "> '0'"}},
					Orders:     []metadata.SubOrder{{Property: "deptNo"}},
				},
			}},
			{Name: "roles", Type: "[]Role", Relation: &metadata.RelationDescriptor{
				Kind:     metadata.ManyToMany,
				Target:   "Role",
				Includes: []string{"findById"},
				JoinTable: &metadata.JoinTable{
					Name:                      "user_role",
					Property:                  "userId",
					ReferencedProperty:        "id",
					InverseProperty:           "roleId",
					InverseReferencedProperty: "id",
				},
				SubQuery: &metadata.SubQuery{
					Predicates: []metadata.SubPredicate{
						{Property: "roleCode", Condition: "<> '0'"},
						{Property: "roleCode", Condition: "> '0'"},
					},
					Orders: []metadata.SubOrder{{Property: "roleCode"}},
				},
			}},
		},
	}
}

// Role maps t_role, the inverse side of User.roles.
func Role() metadata.EntityDescriptor {
	return metadata.EntityDescriptor{
		Name:  "Role",
		Table: "t_role",
		Fields: []metadata.FieldDescriptor{
			{Name: "id", Type: "string", ID: true, Generation: metadata.GenerationAuto},
			{Name: "roleName", Type: "string"},
			{Name: "roleCode", Type: "string"},
			{Name: "roleDescription", Type: "string", Nullable: true},
			{Name: "users", Type: "[]User", Relation: &metadata.RelationDescriptor{
				Kind:     metadata.ManyToMany,
				Target:   "User",
				MappedBy: "roles",
			}},
		},
	}
}

// Dept maps t_dept, the inverse side of User.dept.
func Dept() metadata.EntityDescriptor {
	return metadata.EntityDescriptor{
		Name:  "Dept",
		Table: "t_dept",
		Fields: []metadata.FieldDescriptor{
			{Name: "deptId", Type: "string", ID: true, Generation: metadata.GenerationUUID},
			{Name: "deptNo", Type: "string"},
			{Name: "deptName", Type: "string"},
			{Name: "testUserList", Type: "[]User", Relation: &metadata.RelationDescriptor{
				Kind:     metadata.OneToMany,
				Target:   "User",
				MappedBy: "dept",
			}},
		},
	}
}

// UserRole maps the user_role link table with its composite key.
func UserRole() metadata.EntityDescriptor {
	return metadata.EntityDescriptor{
		Name:    "UserRole",
		Table:   "user_role",
		IDClass: []string{"userId", "roleId"},
		Fields: []metadata.FieldDescriptor{
			{Name: "userId", Type: "string", ID: true},
			{Name: "roleId", Type: "string", ID: true},
			{Name: "enabled", Type: "bool", Nullable: true},
		},
	}
}

// Descriptors returns every fixture entity in registration order.
func Descriptors() []metadata.Described {
	return []metadata.Described{User(), Role(), Dept(), UserRole()}
}

// Registry registers and resolves the fixture entities.
func Registry(t testing.TB) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry(naming.Default(), nil)
	for _, d := range Descriptors() {
		_, err := reg.Register(d)
		require.NoError(t, err)
	}
	require.NoError(t, reg.Resolve())
	return reg
}
