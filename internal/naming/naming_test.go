package naming

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCamelToSnake(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"name", "name"},
		{"deptNo", "dept_no"},
		{"createTime", "create_time"},
		{"roleDescription", "role_description"},
		{"TestUser", "test_user"},
		{"userID", "user_id"},
		{"HTTPServer", "http_server"},
		{"address2Line", "address2_line"},
		{"already_snake", "already_snake"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, CamelToSnake(tt.input))
		})
	}
}

func TestSnakeToCamel(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"user_name", "userName"},
		{"created_at", "createdAt"},
		{"id", "id"},
		{"user_profile_id", "userProfileId"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SnakeToCamel(tt.input))
		})
	}
}

func TestFirstLetterCase(t *testing.T) {
	assert.Equal(t, "DeptNo", UpperFirst("deptNo"))
	assert.Equal(t, "deptNo", LowerFirst("DeptNo"))
	assert.Equal(t, "", UpperFirst(""))
	assert.Equal(t, "", LowerFirst(""))
}

func TestSplitCamel(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"rolesRoleName", []string{"roles", "Role", "Name"}},
		{"name", []string{"name"}},
		{"DeptNo", []string{"Dept", "No"}},
		{"userIDList", []string{"user", "ID", "List"}},
		{"", nil},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitCamel(tt.input))
		})
	}
}

func TestTableName(t *testing.T) {
	namer := Default()
	assert.Equal(t, "user_role", namer.TableName("UserRole"))
	assert.Equal(t, "test_user", namer.TableName("TestUser"))

	plural := New(Config{PluralizeTables: true, PluralOverrides: map[string]string{"person": "persons"}}, nil)
	assert.Equal(t, "user_roles", plural.TableName("UserRole"))
	assert.Equal(t, "persons", plural.TableName("Person"))
	assert.Equal(t, "categories", plural.TableName("Category"))
}

func TestTableAlias(t *testing.T) {
	namer := Default()
	assert.Equal(t, "t", namer.TableAlias("TestUser"))
	assert.Equal(t, "u", namer.TableAlias("UserRole"))
	assert.Equal(t, "", namer.TableAlias(""))
}

func TestPluralize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"user", "users"},
		{"category", "categories"},
		{"person", "people"},
		{"child", "children"},
		{"status", "statuses"},
		{"role", "roles"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Pluralize(tt.input))
		})
	}
}

func TestSingularize(t *testing.T) {
	namer := Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"users", "user"},
		{"categories", "category"},
		{"people", "person"},
		{"children", "child"},
		{"statuses", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, namer.Singularize(tt.input))
		})
	}
}

func TestPluralizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: map[string]string{
			"staff": "staff", // Same singular/plural
		},
		SingularOverrides: make(map[string]string),
	}
	namer := New(cfg, nil)

	assert.Equal(t, "staff", namer.Pluralize("staff"))
	assert.Equal(t, "users", namer.Pluralize("user")) // Falls back to library
}

func TestSingularizeWithOverrides(t *testing.T) {
	cfg := Config{
		PluralOverrides: make(map[string]string),
		SingularOverrides: map[string]string{
			"data": "datum",
		},
	}
	namer := New(cfg, nil)

	assert.Equal(t, "datum", namer.Singularize("data"))
	assert.Equal(t, "user", namer.Singularize("users"))
}

func TestCollision_ColumnAlias(t *testing.T) {
	namer := Default()
	r := namer.Resolver()

	r.ReserveColumn("UserMapper.findById", "id", "main")
	r.ReserveColumn("UserMapper.findById", "name", "main")

	assert.Equal(t, "id_1", r.RegisterColumn("UserMapper.findById", "id", "join:roles"))
	assert.Equal(t, "id_2", r.RegisterColumn("UserMapper.findById", "id", "join:dept"))
	assert.Equal(t, "role_name", r.RegisterColumn("UserMapper.findById", "role_name", "join:roles"))

	// Scopes are independent per statement.
	assert.Equal(t, "id", r.RegisterColumn("UserMapper.findAll", "id", "join:roles"))
}

func TestCollision_Method(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	namer := New(DefaultConfig(), logger)
	r := namer.Resolver()

	assert.Equal(t, "findWithDeptNo", r.RegisterMethod("DeptMapper", "findWithDeptNo", "User.dept"))
	source, ok := r.MethodSource("DeptMapper", "findWithDeptNo")
	assert.True(t, ok)
	assert.Equal(t, "User.dept", source)

	assert.Equal(t, "findWithDeptNo2", r.RegisterMethod("DeptMapper", "findWithDeptNo", "Account.dept"))
	assert.Contains(t, buf.String(), "naming collision detected")
}

func TestReset(t *testing.T) {
	namer := Default()
	namer.Resolver().RegisterMethod("UserMapper", "findWithId", "a")

	namer.Reset()

	assert.Equal(t, "findWithId", namer.Resolver().RegisterMethod("UserMapper", "findWithId", "b"))
}
