package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/developerfred/ponder/entitystore/storage"
	"github.com/developerfred/ponder/entitystore/storage/sqlbuilder"
)

// Dialect is the Postgres backend adapter, connected through the pgx
// database/sql bridge.
type Dialect struct {
	DSN string
}

var _ storage.Dialect = (*Dialect)(nil)

func New(dsn string) *Dialect {
	return &Dialect{DSN: dsn}
}

func (d *Dialect) Backend() storage.Backend {
	return storage.BackendPostgres
}

func (d *Dialect) PlaceholderStyle() sqlbuilder.PlaceholderStyle {
	return sqlbuilder.PlaceholderDollar
}

func (d *Dialect) Open(ctx context.Context) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(d.DSN)
	if err != nil {
		return nil, err
	}
	db := stdlib.OpenDB(*cfg)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (d *Dialect) QuoteIdent(name string) string {
	return `"` + name + `"`
}

// Booleans are stored as BIGINT 0/1 so the value codec stays
// backend-agnostic; see the integer mapping below.
func columnTypeSQL(t storage.ColumnType) string {
	switch t {
	case storage.ColumnInteger:
		return "BIGINT"
	case storage.ColumnReal:
		return "DOUBLE PRECISION"
	case storage.ColumnBlob:
		return "BYTEA"
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
	return "ALL"
}

// Class 23 covers integrity constraint violations (23505 unique_violation,
// 23502 not_null_violation, ...).
func (d *Dialect) IsConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	var perr *pgconn.PgError
	if errors.As(err, &perr) {
		return strings.HasPrefix(perr.Code, "23")
	}
	return false
}
