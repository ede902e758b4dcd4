package storage

import "github.com/developerfred/ponder/entitystore/storage/sqlbuilder"

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

// ColumnType is a backend-portable column type. Dialects map these to
// their own type names when rendering DDL.
type ColumnType string

const (
	ColumnText    ColumnType = "text"
	ColumnInteger ColumnType = "integer"
	ColumnReal    ColumnType = "real"
	ColumnBlob    ColumnType = "blob"
)

// ColumnDef carries everything needed to emit one column definition.
type ColumnDef struct {
	Name       string
	Type       ColumnType
	NotNull    bool
	PrimaryKey bool
}

// Dialect abstracts the backend-specific pieces of statement text:
// placeholder style, identifier quoting, DDL rendering, the upsert
// conflict clause, and driver error classification. Everything above
// this interface is backend-agnostic.
type Dialect interface {
	Backend() Backend
	PlaceholderStyle() sqlbuilder.PlaceholderStyle

	// QuoteIdent quotes a trusted schema identifier (table or column
	// name). Identifiers never come from filter values.
	QuoteIdent(name string) string

	CreateTableSQL(table string, cols []ColumnDef) string
	DropTableSQL(table string) string

	// UpsertSQL renders a single-statement insert-or-overwrite keyed on
	// conflictCol. placeholders holds the already-allocated value
	// placeholders, one per column.
	UpsertSQL(table string, cols []string, placeholders []string, conflictCol string) string

	// NoLimit is the LIMIT token meaning "all rows", used when an offset
	// is requested without a limit.
	NoLimit() string

	// IsConstraintViolation reports whether a driver error is a rejected
	// write (duplicate key, NOT NULL breach, type mismatch).
	IsConstraintViolation(err error) bool
}
