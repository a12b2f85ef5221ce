package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, name := range Names() {
		d, err := Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, d.Name())
	}

	d, err := Lookup(" PostgreSQL ")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d.Name())

	_, err = Lookup("db2")
	assert.ErrorContains(t, err, "unknown dialect")
}

func TestForProduct(t *testing.T) {
	tests := []struct {
		product string
		want    string
	}{
		{"MySQL", MySQL},
		{"8.0.11-TiDB-v7.5.0", TiDB},
		{"10.11.6-MariaDB", MariaDB},
		{"PostgreSQL 16.2", Postgres},
		{"SQLite", SQLite},
		{"Oracle", Oracle},
		{"Microsoft SQL Server", SQLServer},
		{"H2", H2},
	}
	for _, tt := range tests {
		t.Run(tt.product, func(t *testing.T) {
			d, err := ForProduct(tt.product)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Name())
		})
	}
	_, err := ForProduct("Informix")
	assert.Error(t, err)
}

func TestPaginationSQL(t *testing.T) {
	const base = "SELECT id FROM t_user"
	tests := []struct {
		dialect string
		offset  int64
		want    string
	}{
		{MySQL, 20, "SELECT id FROM t_user LIMIT 10 OFFSET 20"},
		{SQLite, 0, "SELECT id FROM t_user LIMIT 10"},
		{Postgres, 5, "SELECT id FROM t_user LIMIT 10 OFFSET 5"},
		{Oracle, 20, "SELECT * FROM ( SELECT TMP.*, ROWNUM ROW_ID FROM ( SELECT id FROM t_user ) TMP WHERE ROWNUM <= 30 ) WHERE ROW_ID > 20"},
		{SQLServer, 20, "SELECT id FROM t_user ORDER BY (SELECT NULL) OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			d, err := Lookup(tt.dialect)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.PaginationSQL(base, tt.offset, 10))
		})
	}

	d, _ := Lookup(SQLServer)
	assert.Equal(t, "SELECT id FROM t_user ORDER BY id OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY", d.PaginationSQL(base+" ORDER BY id", 0, 5))
}

func TestKeySQL(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
		wantErr bool
	}{
		{H2, "SELECT seq_user.nextval", false},
		{Oracle, "SELECT seq_user.nextval FROM dual", false},
		{Postgres, "SELECT nextval('seq_user')", false},
		{SQLServer, "SELECT NEXT VALUE FOR seq_user", false},
		{MariaDB, "SELECT NEXTVAL(seq_user)", false},
		{MySQL, "", true},
		{SQLite, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			d, err := Lookup(tt.dialect)
			require.NoError(t, err)
			got, err := d.KeySQL("seq_user")
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoSequences)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebindAndQuote(t *testing.T) {
	pg, _ := Lookup(Postgres)
	sql, err := pg.Rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", sql)
	assert.Equal(t, `"t_user"`, pg.Quote("t_user"))

	my, _ := Lookup(MySQL)
	sql, err = my.Rebind("SELECT ?")
	require.NoError(t, err)
	assert.Equal(t, "SELECT ?", sql)
	assert.Equal(t, "`t_user`", my.Quote("t_user"))

	ms, _ := Lookup(SQLServer)
	assert.Equal(t, "[t_user]", ms.Quote("t_user"))
}
