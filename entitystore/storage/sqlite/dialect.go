package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/developerfred/ponder/entitystore/storage"
	"github.com/developerfred/ponder/entitystore/storage/sqlbuilder"
)

// Dialect is the SQLite backend adapter. It works with both the pure-Go
// driver ("sqlite", modernc.org/sqlite) and the cgo driver ("sqlite3",
// mattn/go-sqlite3).
type Dialect struct {
	Path       string
	DriverName string
}

var _ storage.Dialect = (*Dialect)(nil)

func New(path string) *Dialect {
	return &Dialect{Path: path, DriverName: "sqlite"}
}

func NewWithDriver(path, driver string) *Dialect {
	return &Dialect{Path: path, DriverName: driver}
}

func (d *Dialect) Backend() storage.Backend {
	return storage.BackendSQLite
}

func (d *Dialect) PlaceholderStyle() sqlbuilder.PlaceholderStyle {
	return sqlbuilder.PlaceholderQuestion
}

// Open opens the database file, applying a busy timeout so concurrent
// writers queue instead of failing with SQLITE_BUSY.
func (d *Dialect) Open(ctx context.Context) (*sql.DB, error) {
	dsn := d.Path
	if !strings.Contains(dsn, "?") {
		dsn = dsn + "?_busy_timeout=5000&_foreign_keys=on"
	} else {
		dsn = dsn + "&_busy_timeout=5000&_foreign_keys=on"
	}
	db, err := sql.Open(d.DriverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (d *Dialect) QuoteIdent(name string) string {
	return `"` + name + `"`
}

func columnTypeSQL(t storage.ColumnType) string {
	switch t {
	case storage.ColumnInteger:
		return "INTEGER"
	case storage.ColumnReal:
		return "REAL"
	case storage.ColumnBlob:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func (d *Dialect) CreateTableSQL(table string, cols []storage.ColumnDef) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(d.QuoteIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(columnTypeSQL(c.Type))
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		} else if c.NotNull {
			b.WriteString(" NOT NULL")
		}
	}
	b.WriteString(")")
	return b.String()
}

func (d *Dialect) DropTableSQL(table string) string {
	return "DROP TABLE IF EXISTS " + d.QuoteIdent(table)
}

func (d *Dialect) UpsertSQL(table string, cols []string, placeholders []string, conflictCol string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.QuoteIdent(table))
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
	}
	b.WriteString(") VALUES (")
	b.WriteString(strings.Join(placeholders, ", "))
	b.WriteString(") ON CONFLICT (")
	b.WriteString(d.QuoteIdent(conflictCol))
	b.WriteString(") DO UPDATE SET ")
	n := 0
	for _, c := range cols {
		if c == conflictCol {
			continue
		}
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.QuoteIdent(c))
		b.WriteString(" = excluded.")
		b.WriteString(d.QuoteIdent(c))
		n++
	}
	if n == 0 {
		// Only the key column: nothing to overwrite, keep the row.
		b.Reset()
		b.WriteString("INSERT INTO ")
		b.WriteString(d.QuoteIdent(table))
		b.WriteString(" (")
		b.WriteString(d.QuoteIdent(conflictCol))
		b.WriteString(") VALUES (")
		b.WriteString(strings.Join(placeholders, ", "))
		b.WriteString(") ON CONFLICT (")
		b.WriteString(d.QuoteIdent(conflictCol))
		b.WriteString(") DO NOTHING")
	}
	return b.String()
}

func (d *Dialect) NoLimit() string {
	return "-1"
}

func (d *Dialect) IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	// modernc.org/sqlite reports constraint failures by message only.
	return strings.Contains(strings.ToLower(err.Error()), "constraint")
}
