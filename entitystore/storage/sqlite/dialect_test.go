package sqlite

import (
	"errors"
	"testing"

	"github.com/developerfred/ponder/entitystore/storage"
)

func TestCreateTableSQL(t *testing.T) {
	d := New("test.db")
	got := d.CreateTableSQL("pets", []storage.ColumnDef{
		{Name: "id", Type: storage.ColumnText, PrimaryKey: true},
		{Name: "name", Type: storage.ColumnText, NotNull: true},
		{Name: "age", Type: storage.ColumnInteger},
		{Name: "weight", Type: storage.ColumnReal},
		{Name: "photo", Type: storage.ColumnBlob},
	})
	want := `CREATE TABLE IF NOT EXISTS "pets" ("id" TEXT PRIMARY KEY, "name" TEXT NOT NULL, "age" INTEGER, "weight" REAL, "photo" BLOB)`
	if got != want {
		t.Fatalf("CreateTableSQL = %q, want %q", got, want)
	}
}

func TestDropTableSQL(t *testing.T) {
	d := New("test.db")
	if got := d.DropTableSQL("pets"); got != `DROP TABLE IF EXISTS "pets"` {
		t.Fatalf("DropTableSQL = %q", got)
	}
}

func TestUpsertSQL(t *testing.T) {
	d := New("test.db")
	got := d.UpsertSQL("pets", []string{"id", "name", "age"}, []string{"?", "?", "?"}, "id")
	want := `INSERT INTO "pets" ("id", "name", "age") VALUES (?, ?, ?) ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name", "age" = excluded."age"`
	if got != want {
		t.Fatalf("UpsertSQL = %q, want %q", got, want)
	}
}

func TestUpsertSQLKeyOnly(t *testing.T) {
	d := New("test.db")
	got := d.UpsertSQL("pets", []string{"id"}, []string{"?"}, "id")
	want := `INSERT INTO "pets" ("id") VALUES (?) ON CONFLICT ("id") DO NOTHING`
	if got != want {
		t.Fatalf("UpsertSQL = %q, want %q", got, want)
	}
}

func TestNoLimit(t *testing.T) {
	if got := New("test.db").NoLimit(); got != "-1" {
		t.Fatalf("NoLimit = %q", got)
	}
}

func TestIsConstraintViolationByMessage(t *testing.T) {
	d := New("test.db")
	if !d.IsConstraintViolation(errors.New("UNIQUE constraint failed: pets.id")) {
		t.Fatal("missed modernc-style constraint message")
	}
	if d.IsConstraintViolation(errors.New("no such table: pets")) {
		t.Fatal("matched unrelated error")
	}
	if d.IsConstraintViolation(nil) {
		t.Fatal("matched nil")
	}
}
