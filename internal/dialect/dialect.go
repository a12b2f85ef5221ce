// Package dialect renders the database-specific pieces of compiled
// statements: pagination, sequence key queries, placeholders and quoting.
//
// Supported dialects are identified by name:
//
//	dialect.MySQL     = "mysql"
//	dialect.MariaDB   = "mariadb"
//	dialect.TiDB      = "tidb"
//	dialect.H2        = "h2"
//	dialect.SQLite    = "sqlite"
//	dialect.Postgres  = "postgres"
//	dialect.Oracle    = "oracle"
//	dialect.SQLServer = "sqlserver"
package dialect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
)

const (
	MySQL     = "mysql"
	MariaDB   = "mariadb"
	TiDB      = "tidb"
	H2        = "h2"
	SQLite    = "sqlite"
	Postgres  = "postgres"
	Oracle    = "oracle"
	SQLServer = "sqlserver"
)

// ErrNoSequences is returned by KeySQL on databases without sequences.
var ErrNoSequences = errors.New("dialect does not support sequences")

// Dialect is one database's SQL flavor.
type Dialect struct {
	name string
}

var names = []string{MySQL, MariaDB, TiDB, H2, SQLite, Postgres, Oracle, SQLServer}

// Names lists the supported dialect names.
func Names() []string {
	return append([]string(nil), names...)
}

// Lookup returns the dialect with the given name. "postgresql", "pgx" and
// "sqlite3" are accepted as aliases.
func Lookup(name string) (Dialect, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "postgresql", "pgx":
		return Dialect{name: Postgres}, nil
	case "sqlite3":
		return Dialect{name: SQLite}, nil
	case "mssql":
		return Dialect{name: SQLServer}, nil
	default:
		for _, known := range names {
			if n == known {
				return Dialect{name: known}, nil
			}
		}
	}
	return Dialect{}, fmt.Errorf("unknown dialect %q (supported: %s)", name, strings.Join(names, ", "))
}

// ForProduct maps a database product name or version banner, such as
// "PostgreSQL 16.2" or "8.0.11-TiDB-v7.5.0", to its dialect.
func ForProduct(product string) (Dialect, error) {
	p := strings.ToLower(product)
	switch {
	case strings.Contains(p, "tidb"):
		return Dialect{name: TiDB}, nil
	case strings.Contains(p, "mariadb"):
		return Dialect{name: MariaDB}, nil
	case strings.Contains(p, "mysql"):
		return Dialect{name: MySQL}, nil
	case strings.Contains(p, "postgres"):
		return Dialect{name: Postgres}, nil
	case strings.Contains(p, "sqlite"):
		return Dialect{name: SQLite}, nil
	case strings.Contains(p, "oracle"):
		return Dialect{name: Oracle}, nil
	case strings.Contains(p, "sql server"), strings.Contains(p, "sqlserver"):
		return Dialect{name: SQLServer}, nil
	case strings.HasPrefix(p, "h2"):
		return Dialect{name: H2}, nil
	}
	return Dialect{}, fmt.Errorf("no dialect for database product %q", product)
}

// Name returns the dialect name.
func (d Dialect) Name() string {
	return d.name
}

// PaginationSQL limits sql to limit rows starting after offset rows.
func (d Dialect) PaginationSQL(sql string, offset, limit int64) string {
	switch d.name {
	case Oracle:
		return "SELECT * FROM ( SELECT TMP.*, ROWNUM ROW_ID FROM ( " + sql +
			" ) TMP WHERE ROWNUM <= " + strconv.FormatInt(offset+limit, 10) +
			" ) WHERE ROW_ID > " + strconv.FormatInt(offset, 10)
	case SQLServer:
		if !strings.Contains(strings.ToUpper(sql), "ORDER BY") {
			sql += " ORDER BY (SELECT NULL)"
		}
		return sql + " OFFSET " + strconv.FormatInt(offset, 10) + " ROWS FETCH NEXT " +
			strconv.FormatInt(limit, 10) + " ROWS ONLY"
	default:
		out := sql + " LIMIT " + strconv.FormatInt(limit, 10)
		if offset > 0 {
			out += " OFFSET " + strconv.FormatInt(offset, 10)
		}
		return out
	}
}

// KeySQL returns the query that draws the next value of sequence.
func (d Dialect) KeySQL(sequence string) (string, error) {
	switch d.name {
	case H2:
		return "SELECT " + sequence + ".nextval", nil
	case Oracle:
		return "SELECT " + sequence + ".nextval FROM dual", nil
	case Postgres:
		return "SELECT nextval(" + pq.QuoteLiteral(sequence) + ")", nil
	case SQLServer:
		return "SELECT NEXT VALUE FOR " + sequence, nil
	case MariaDB, TiDB:
		return "SELECT NEXTVAL(" + sequence + ")", nil
	}
	return "", fmt.Errorf("%s: %w", d.name, ErrNoSequences)
}

// Placeholder returns the bind placeholder format of the dialect's driver.
func (d Dialect) Placeholder() sq.PlaceholderFormat {
	switch d.name {
	case Postgres:
		return sq.Dollar
	case Oracle:
		return sq.Colon
	case SQLServer:
		return sq.AtP
	}
	return sq.Question
}

// Rebind rewrites '?' placeholders into the dialect's format.
func (d Dialect) Rebind(sql string) (string, error) {
	return d.Placeholder().ReplacePlaceholders(sql)
}

// Quote quotes an identifier.
func (d Dialect) Quote(ident string) string {
	switch d.name {
	case MySQL, MariaDB, TiDB:
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	case Postgres:
		return pq.QuoteIdentifier(ident)
	case SQLServer:
		return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
	default:
		return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
	}
}
