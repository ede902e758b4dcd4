package entitystore

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/developerfred/ponder/entitystore/storage"
	"github.com/developerfred/ponder/entitystore/storage/sqlbuilder"
)

// OrderDirection fixes the sort direction of a list query.
type OrderDirection string

const (
	OrderAsc  OrderDirection = "asc"
	OrderDesc OrderDirection = "desc"
)

// Filter is the structured read specification for List. Where keys have
// the form "fieldName" or "fieldName_operatorSuffix"; all entries are
// AND-combined. First caps the row count, Skip offsets into the result;
// zero means unset for both.
type Filter struct {
	Where          map[string]any
	OrderBy        string
	OrderDirection OrderDirection
	First          int
	Skip           int
}

// operator couples a filter-key suffix with its predicate builder. The
// builder receives the already-quoted column and returns one rendered
// conjunct; every filter value goes through b.Arg so it is bound, never
// interpolated.
type operator struct {
	suffix string
	build  func(e Entity, f Field, col string, v any, b *sqlbuilder.Builder) (string, error)
}

// operators is matched longest-suffix-first against each filter key; the
// empty suffix is the explicit equals fallback. Keep it ordered by
// descending suffix length.
var operators = []operator{
	{"_not_starts_with", buildLike("NOT LIKE", patternPrefix)},
	{"_not_ends_with", buildLike("NOT LIKE", patternSuffix)},
	{"_not_contains", buildLike("NOT LIKE", patternInfix)},
	{"_starts_with", buildLike("LIKE", patternPrefix)},
	{"_ends_with", buildLike("LIKE", patternSuffix)},
	{"_contains", buildLike("LIKE", patternInfix)},
	{"_not_has", buildHas("NOT LIKE")},
	{"_not_in", buildIn(true)},
	{"_gte", buildCompare(">=")},
	{"_lte", buildCompare("<=")},
	{"_not", buildNotEquals},
	{"_has", buildHas("LIKE")},
	{"_gt", buildCompare(">")},
	{"_lt", buildCompare("<")},
	{"_in", buildIn(false)},
	{"", buildEquals},
}

// resolveKey splits a filter key into field and operator. A suffix only
// matches when the remaining prefix names a field, so field names that
// themselves contain underscores resolve correctly.
func resolveKey(e Entity, key string) (Field, *operator, error) {
	for i := range operators {
		op := &operators[i]
		if op.suffix == "" {
			if f, ok := e.Field(key); ok {
				return f, op, nil
			}
			continue
		}
		if name, ok := strings.CutSuffix(key, op.suffix); ok {
			if f, found := e.Field(name); found {
				return f, op, nil
			}
		}
	}
	// Some field with an unrecognized trailing suffix?
	rest := key
	for {
		i := strings.LastIndexByte(rest, '_')
		if i < 0 {
			break
		}
		rest = rest[:i]
		if _, ok := e.Field(rest); ok {
			return Field{}, nil, UnknownOperatorError(key)
		}
	}
	return Field{}, nil, FieldNotFoundError(e.ID, key)
}

// compileFilter renders everything after "SELECT ... FROM table":
// WHERE conjunction, ORDER BY, LIMIT, OFFSET, in that order. Values are
// accumulated on b; only schema identifiers and operator symbols are
// spliced into the text.
func compileFilter(d storage.Dialect, e Entity, f *Filter, b *sqlbuilder.Builder) (string, error) {
	var sb strings.Builder
	if f == nil {
		return "", nil
	}

	if len(f.Where) > 0 {
		keys := make([]string, 0, len(f.Where))
		for k := range f.Where {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		conds := make([]string, 0, len(keys))
		for _, key := range keys {
			field, op, err := resolveKey(e, key)
			if err != nil {
				return "", err
			}
			if field.Kind == KindDerived {
				return "", TypeMismatchError(field.Name, "cannot filter on a derived field")
			}
			cond, err := op.build(e, field, d.QuoteIdent(field.Name), f.Where[key], b)
			if err != nil {
				return "", err
			}
			conds = append(conds, cond)
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(conds, " AND "))
	}

	if f.OrderBy != "" {
		field, ok := e.Field(f.OrderBy)
		if !ok {
			return "", FieldNotFoundError(e.ID, f.OrderBy)
		}
		if field.Kind == KindDerived {
			return "", TypeMismatchError(field.Name, "cannot order by a derived field")
		}
		dir, err := orderSQL(f.OrderDirection)
		if err != nil {
			return "", err
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(d.QuoteIdent(field.Name))
		sb.WriteString(" ")
		sb.WriteString(dir)
	}

	switch {
	case f.First > 0:
		sb.WriteString(" LIMIT ")
		sb.WriteString(b.Arg(f.First))
	case f.Skip > 0:
		// Offset needs an explicit limit on both backends.
		sb.WriteString(" LIMIT ")
		sb.WriteString(d.NoLimit())
	}
	if f.Skip > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(b.Arg(f.Skip))
	}

	return sb.String(), nil
}

func orderSQL(dir OrderDirection) (string, error) {
	switch dir {
	case "", OrderAsc:
		return "ASC", nil
	case OrderDesc:
		return "DESC", nil
	default:
		return "", NewError(ErrTypeMismatch, fmt.Sprintf("invalid order direction %q", dir))
	}
}

func buildEquals(e Entity, f Field, col string, v any, b *sqlbuilder.Builder) (string, error) {
	if v == nil {
		return col + " IS NULL", nil
	}
	enc, err := Encode(f, v)
	if err != nil {
		return "", err
	}
	return col + " = " + b.Arg(enc), nil
}

func buildNotEquals(e Entity, f Field, col string, v any, b *sqlbuilder.Builder) (string, error) {
	if v == nil {
		return col + " IS NOT NULL", nil
	}
	enc, err := Encode(f, v)
	if err != nil {
		return "", err
	}
	return col + " != " + b.Arg(enc), nil
}

func buildIn(negate bool) func(Entity, Field, string, any, *sqlbuilder.Builder) (string, error) {
	return func(e Entity, f Field, col string, v any, b *sqlbuilder.Builder) (string, error) {
		items, err := asSlice(v)
		if err != nil {
			return "", TypeMismatchError(f.Name, "membership operator needs a slice value")
		}
		if len(items) == 0 {
			// Nothing is a member of the empty set.
			if negate {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
		phs := make([]string, len(items))
		for i, item := range items {
			enc, err := Encode(f, item)
			if err != nil {
				return "", err
			}
			phs[i] = b.Arg(enc)
		}
		sym := "IN"
		if negate {
			sym = "NOT IN"
		}
		return col + " " + sym + " (" + strings.Join(phs, ", ") + ")", nil
	}
}

// buildHas matches an element inside a serialized list column by
// substring against the element's JSON form.
func buildHas(sym string) func(Entity, Field, string, any, *sqlbuilder.Builder) (string, error) {
	return func(e Entity, f Field, col string, v any, b *sqlbuilder.Builder) (string, error) {
		if f.Kind != KindList {
			return "", TypeMismatchError(f.Name, "containment operator applies to list fields only")
		}
		elem, err := encodeListElem(f, v)
		if err != nil {
			return "", err
		}
		enc, err := json.Marshal(elem)
		if err != nil {
			return "", TypeMismatchError(f.Name, fmt.Sprintf("unserializable element: %v", err))
		}
		return col + " " + sym + " " + b.Arg("%"+escapeLike(string(enc))+"%") + likeEscapeClause, nil
	}
}

func buildCompare(sym string) func(Entity, Field, string, any, *sqlbuilder.Builder) (string, error) {
	return func(e Entity, f Field, col string, v any, b *sqlbuilder.Builder) (string, error) {
		if f.Kind != KindScalar || !isNumeric(f.Type) {
			return "", TypeMismatchError(f.Name, "ordering comparison applies to numeric fields only")
		}
		enc, err := Encode(f, v)
		if err != nil {
			return "", err
		}
		return col + " " + sym + " " + b.Arg(enc), nil
	}
}

type patternShape int

const (
	patternInfix patternShape = iota
	patternPrefix
	patternSuffix
)

func buildLike(sym string, shape patternShape) func(Entity, Field, string, any, *sqlbuilder.Builder) (string, error) {
	return func(e Entity, f Field, col string, v any, b *sqlbuilder.Builder) (string, error) {
		if f.Kind != KindScalar || !isTextual(f.Type) {
			return "", TypeMismatchError(f.Name, "string matching applies to text and byte fields only")
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case []byte:
			s = string(t)
		default:
			return "", TypeMismatchError(f.Name, fmt.Sprintf("string matching needs a string value, got %T", v))
		}
		s = escapeLike(s)
		var pattern string
		switch shape {
		case patternPrefix:
			pattern = s + "%"
		case patternSuffix:
			pattern = "%" + s
		default:
			pattern = "%" + s + "%"
		}
		return col + " " + sym + " " + b.Arg(pattern) + likeEscapeClause, nil
	}
}

// likeEscapeClause makes % and _ in filter values match literally
// instead of acting as LIKE wildcards.
const likeEscapeClause = ` ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func isNumeric(t ScalarType) bool {
	return t == TypeInt || t == TypeFloat || t == TypeBigInt
}

func isTextual(t ScalarType) bool {
	return t == TypeString || t == TypeBytes
}
