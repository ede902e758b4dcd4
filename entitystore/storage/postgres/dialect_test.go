package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/developerfred/ponder/entitystore/storage"
	"github.com/developerfred/ponder/entitystore/storage/sqlbuilder"
)

func TestPlaceholderStyle(t *testing.T) {
	d := New("postgres://localhost/test")
	if d.PlaceholderStyle() != sqlbuilder.PlaceholderDollar {
		t.Fatal("postgres must use dollar placeholders")
	}
}

func TestCreateTableSQL(t *testing.T) {
	d := New("postgres://localhost/test")
	got := d.CreateTableSQL("pets", []storage.ColumnDef{
		{Name: "id", Type: storage.ColumnText, PrimaryKey: true},
		{Name: "age", Type: storage.ColumnInteger, NotNull: true},
		{Name: "weight", Type: storage.ColumnReal},
		{Name: "photo", Type: storage.ColumnBlob},
	})
	want := `CREATE TABLE IF NOT EXISTS "pets" ("id" TEXT PRIMARY KEY, "age" BIGINT NOT NULL, "weight" DOUBLE PRECISION, "photo" BYTEA)`
	if got != want {
		t.Fatalf("CreateTableSQL = %q, want %q", got, want)
	}
}

func TestUpsertSQL(t *testing.T) {
	d := New("postgres://localhost/test")
	got := d.UpsertSQL("pets", []string{"id", "name"}, []string{"$1", "$2"}, "id")
	want := `INSERT INTO "pets" ("id", "name") VALUES ($1, $2) ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name"`
	if got != want {
		t.Fatalf("UpsertSQL = %q, want %q", got, want)
	}
}

func TestNoLimit(t *testing.T) {
	if got := New("").NoLimit(); got != "ALL" {
		t.Fatalf("NoLimit = %q", got)
	}
}

func TestIsConstraintViolation(t *testing.T) {
	d := New("")
	dup := &pgconn.PgError{Code: "23505"}
	if !d.IsConstraintViolation(dup) {
		t.Fatal("missed unique_violation")
	}
	if !d.IsConstraintViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23502"})) {
		t.Fatal("missed wrapped not_null_violation")
	}
	if d.IsConstraintViolation(&pgconn.PgError{Code: "42P01"}) {
		t.Fatal("matched undefined_table")
	}
	if d.IsConstraintViolation(errors.New("plain")) {
		t.Fatal("matched untyped error")
	}
}
