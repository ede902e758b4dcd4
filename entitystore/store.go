package entitystore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/developerfred/ponder/entitystore/storage"
	"github.com/developerfred/ponder/entitystore/storage/sqlbuilder"
)

// Instance is one entity row as a field-name-to-value mapping. It always
// carries "id". The store never retains instances; every call returns a
// fresh mapping.
type Instance = map[string]any

// Store is the schema-driven entity store. It provisions one table per
// entity on Load, then serves typed CRUD, filtered lists, and derived
// field resolution against the pooled backend.
//
// The current schema is the only shared mutable state: Load writes it,
// every other operation reads it. Concurrent operations during a Load's
// drop-then-create window may observe missing tables; that window is not
// transactionally isolated.
type Store struct {
	db      *sql.DB
	dialect storage.Dialect
	schema  atomic.Pointer[Schema]
}

// New wraps an open connection pool. The pool's own timeout policy
// applies; the store adds no retries or deadlines.
func New(db *sql.DB, dialect storage.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Load tears down the tables of the previously loaded schema, if any,
// adopts the supplied schema when non-nil, and creates one table per
// entity of the now-current schema. No-op when no schema is or becomes
// available.
func (s *Store) Load(ctx context.Context, schema *Schema) error {
	if cur := s.schema.Load(); cur != nil {
		if err := s.dropTables(ctx, cur); err != nil {
			return err
		}
	}
	if schema != nil {
		s.schema.Store(schema)
	}
	cur := s.schema.Load()
	if cur == nil {
		return nil
	}
	for _, e := range cur.Entities {
		stmt := s.dialect.CreateTableSQL(e.ID, e.ColumnDefs())
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return Wrap(ErrSQL, fmt.Sprintf("create table %s", e.ID), err)
		}
	}
	return nil
}

// Teardown drops all tables of the current schema. The schema reference
// itself stays set, so a later Load recreates the same tables.
func (s *Store) Teardown(ctx context.Context) error {
	cur := s.schema.Load()
	if cur == nil {
		return nil
	}
	return s.dropTables(ctx, cur)
}

func (s *Store) dropTables(ctx context.Context, schema *Schema) error {
	for _, e := range schema.Entities {
		if _, err := s.db.ExecContext(ctx, s.dialect.DropTableSQL(e.ID)); err != nil {
			return Wrap(ErrSQL, fmt.Sprintf("drop table %s", e.ID), err)
		}
	}
	return nil
}

// Schema returns the current schema, or nil before the first Load.
func (s *Store) Schema() *Schema {
	return s.schema.Load()
}

func (s *Store) entity(entityID string) (Entity, error) {
	cur := s.schema.Load()
	if cur == nil {
		return Entity{}, UninitializedError()
	}
	e, ok := cur.Entity(entityID)
	if !ok {
		return Entity{}, EntityNotFoundError(entityID)
	}
	return e, nil
}

// Get fetches one instance by primary key. Returns nil, nil when no row
// matches.
func (s *Store) Get(ctx context.Context, entityID string, id any) (Instance, error) {
	e, err := s.entity(entityID)
	if err != nil {
		return nil, err
	}
	encID, err := s.encodeID(e, id)
	if err != nil {
		return nil, err
	}
	b := sqlbuilder.New(s.dialect.PlaceholderStyle())
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		s.columnList(e), s.dialect.QuoteIdent(e.ID),
		s.dialect.QuoteIdent(idFieldName), b.Arg(encID))
	rows, err := s.db.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, Wrap(ErrSQL, fmt.Sprintf("get %s", entityID), err)
	}
	defer rows.Close()

	instances, err := s.decodeRows(e, rows)
	if err != nil {
		return nil, err
	}
	if len(instances) == 0 {
		return nil, nil
	}
	return instances[0], nil
}

// Insert stores a new instance under the given id. The id argument wins
// over any "id" present in the instance; the caller's mapping is updated
// in place to reflect that. A duplicate primary key fails with a
// constraint violation.
func (s *Store) Insert(ctx context.Context, entityID string, id any, instance Instance) (Instance, error) {
	e, err := s.entity(entityID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		instance = Instance{}
	}
	instance[idFieldName] = id

	cols, phs, b, err := s.encodeColumns(e, instance)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.dialect.QuoteIdent(e.ID), strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := s.db.ExecContext(ctx, stmt, b.Args()...); err != nil {
		if s.dialect.IsConstraintViolation(err) {
			return nil, ConstraintError(entityID, err)
		}
		return nil, Wrap(ErrSQL, fmt.Sprintf("insert %s", entityID), err)
	}
	return s.Get(ctx, entityID, id)
}

// Update sets every non-id field present in the instance on the row with
// the given id and returns the updated row. Returns nil, nil when no row
// matches; callers must treat that as not-found.
func (s *Store) Update(ctx context.Context, entityID string, id any, instance Instance) (Instance, error) {
	e, err := s.entity(entityID)
	if err != nil {
		return nil, err
	}
	b := sqlbuilder.New(s.dialect.PlaceholderStyle())
	var sets []string
	for _, f := range e.ScalarFields() {
		if f.Name == idFieldName {
			continue
		}
		v, present := instance[f.Name]
		if !present {
			continue
		}
		enc, err := Encode(f, v)
		if err != nil {
			return nil, err
		}
		sets = append(sets, s.dialect.QuoteIdent(f.Name)+" = "+b.Arg(enc))
	}
	if len(sets) > 0 {
		encID, err := s.encodeID(e, id)
		if err != nil {
			return nil, err
		}
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			s.dialect.QuoteIdent(e.ID), strings.Join(sets, ", "),
			s.dialect.QuoteIdent(idFieldName), b.Arg(encID))
		res, err := s.db.ExecContext(ctx, stmt, b.Args()...)
		if err != nil {
			if s.dialect.IsConstraintViolation(err) {
				return nil, ConstraintError(entityID, err)
			}
			return nil, Wrap(ErrSQL, fmt.Sprintf("update %s", entityID), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, Wrap(ErrSQL, fmt.Sprintf("update %s", entityID), err)
		}
		if n == 0 {
			return nil, nil
		}
	}
	return s.Get(ctx, entityID, id)
}

// Upsert inserts the instance under the given id, or overwrites every
// non-id field present in it when the row already exists. One statement,
// so concurrent upserts of the same id never interleave partial writes.
func (s *Store) Upsert(ctx context.Context, entityID string, id any, instance Instance) (Instance, error) {
	e, err := s.entity(entityID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		instance = Instance{}
	}
	instance[idFieldName] = id

	_, phs, b, err := s.encodeColumns(e, instance)
	if err != nil {
		return nil, err
	}
	// UpsertSQL quotes identifiers itself, so pass raw column names.
	names := make([]string, 0, len(phs))
	for _, f := range e.ScalarFields() {
		if _, present := instance[f.Name]; present {
			names = append(names, f.Name)
		}
	}
	stmt := s.dialect.UpsertSQL(e.ID, names, phs, idFieldName)
	if _, err := s.db.ExecContext(ctx, stmt, b.Args()...); err != nil {
		if s.dialect.IsConstraintViolation(err) {
			return nil, ConstraintError(entityID, err)
		}
		return nil, Wrap(ErrSQL, fmt.Sprintf("upsert %s", entityID), err)
	}
	return s.Get(ctx, entityID, id)
}

// Delete removes the row with the given id. Returns whether exactly one
// row was removed.
func (s *Store) Delete(ctx context.Context, entityID string, id any) (bool, error) {
	e, err := s.entity(entityID)
	if err != nil {
		return false, err
	}
	encID, err := s.encodeID(e, id)
	if err != nil {
		return false, err
	}
	b := sqlbuilder.New(s.dialect.PlaceholderStyle())
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		s.dialect.QuoteIdent(e.ID), s.dialect.QuoteIdent(idFieldName), b.Arg(encID))
	res, err := s.db.ExecContext(ctx, stmt, b.Args()...)
	if err != nil {
		return false, Wrap(ErrSQL, fmt.Sprintf("delete %s", entityID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, Wrap(ErrSQL, fmt.Sprintf("delete %s", entityID), err)
	}
	return n == 1, nil
}

// List returns the instances matching the filter, decoded in statement
// order. A nil filter returns every row.
func (s *Store) List(ctx context.Context, entityID string, filter *Filter) ([]Instance, error) {
	e, err := s.entity(entityID)
	if err != nil {
		return nil, err
	}
	b := sqlbuilder.New(s.dialect.PlaceholderStyle())
	suffix, err := compileFilter(s.dialect, e, filter, b)
	if err != nil {
		return nil, err
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s%s", s.columnList(e), s.dialect.QuoteIdent(e.ID), suffix)
	rows, err := s.db.QueryContext(ctx, stmt, b.Args()...)
	if err != nil {
		return nil, Wrap(ErrSQL, fmt.Sprintf("list %s", entityID), err)
	}
	defer rows.Close()
	return s.decodeRows(e, rows)
}

// GetDerivedField resolves a virtual reverse-relation field: all rows of
// the target entity whose forward foreign-key field equals instanceID.
func (s *Store) GetDerivedField(ctx context.Context, entityID string, instanceID any, fieldName string) ([]Instance, error) {
	e, err := s.entity(entityID)
	if err != nil {
		return nil, err
	}
	f, ok := e.Field(fieldName)
	if !ok || f.Kind != KindDerived {
		return nil, FieldNotFoundError(entityID, fieldName)
	}
	cur := s.schema.Load()
	target, ok := cur.EntityByName(f.DerivedFromEntityName)
	if !ok {
		// Derived fields name the target by display name or table name.
		target, ok = cur.Entity(f.DerivedFromEntityName)
	}
	if !ok {
		return nil, EntityNotFoundError(f.DerivedFromEntityName)
	}
	return s.List(ctx, target.ID, &Filter{
		Where: map[string]any{f.DerivedFromFieldName: instanceID},
	})
}

// encodeID runs a primary-key value through the id field's codec, so
// typed ids (booleans aside, any scalar type is legal) bind correctly.
func (s *Store) encodeID(e Entity, id any) (any, error) {
	f, _ := e.Field(idFieldName)
	return Encode(f, id)
}

// columnList renders the quoted scalar columns in declaration order,
// which is also the decode order.
func (s *Store) columnList(e Entity) string {
	fields := e.ScalarFields()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = s.dialect.QuoteIdent(f.Name)
	}
	return strings.Join(cols, ", ")
}

// encodeColumns encodes the fields present in the instance, in schema
// order, returning quoted column names, placeholders, and the builder
// holding the bound values.
func (s *Store) encodeColumns(e Entity, instance Instance) ([]string, []string, *sqlbuilder.Builder, error) {
	b := sqlbuilder.New(s.dialect.PlaceholderStyle())
	var cols, phs []string
	for _, f := range e.ScalarFields() {
		v, present := instance[f.Name]
		if !present {
			continue
		}
		enc, err := Encode(f, v)
		if err != nil {
			return nil, nil, nil, err
		}
		cols = append(cols, s.dialect.QuoteIdent(f.Name))
		phs = append(phs, b.Arg(enc))
	}
	return cols, phs, b, nil
}

func (s *Store) decodeRows(e Entity, rows *sql.Rows) ([]Instance, error) {
	fields := e.ScalarFields()
	out := make([]Instance, 0)
	for rows.Next() {
		raw := make([]any, len(fields))
		ptrs := make([]any, len(fields))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, Wrap(ErrSQL, fmt.Sprintf("scan %s", e.ID), err)
		}
		inst := make(Instance, len(fields))
		for i, f := range fields {
			v, err := Decode(f, raw[i])
			if err != nil {
				return nil, err
			}
			inst[f.Name] = v
		}
		out = append(out, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, Wrap(ErrSQL, fmt.Sprintf("iterate %s", e.ID), err)
	}
	return out, nil
}
