package entitystore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
)

// Encode converts a typed value into its storage representation:
// booleans to 0/1 integers, big integers to decimal strings, lists to
// JSON array text, everything else passthrough. nil stays nil for
// optional fields.
func Encode(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindList:
		return encodeList(f, v)
	case KindScalar:
		return encodeScalar(f, v)
	default:
		return nil, TypeMismatchError(f.Name, "derived fields have no storage value")
	}
}

// Decode converts a storage value back into its typed representation.
// It accepts the representational variance drivers introduce: native or
// 0/1 booleans, TEXT returned as []byte, integral floats for integers.
func Decode(f Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch f.Kind {
	case KindList:
		return decodeList(f, v)
	case KindScalar:
		return decodeScalar(f, v)
	default:
		return nil, TypeMismatchError(f.Name, "derived fields have no storage value")
	}
}

func encodeScalar(f Field, v any) (any, error) {
	switch f.Type {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("expected string, got %T", v))
		}
		return s, nil
	case TypeInt:
		n, ok := asInt64(v)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("expected integer, got %T", v))
		}
		return n, nil
	case TypeFloat:
		x, ok := asFloat64(v)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("expected float, got %T", v))
		}
		return x, nil
	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("expected bool, got %T", v))
		}
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	case TypeBigInt:
		switch n := v.(type) {
		case *big.Int:
			return n.String(), nil
		case int64:
			return big.NewInt(n).String(), nil
		case int:
			return big.NewInt(int64(n)).String(), nil
		default:
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("expected *big.Int, got %T", v))
		}
	case TypeBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("expected []byte, got %T", v))
		}
		return b, nil
	default:
		return nil, TypeMismatchError(f.Name, fmt.Sprintf("unknown scalar type %s", f.Type))
	}
}

func decodeScalar(f Field, v any) (any, error) {
	switch f.Type {
	case TypeString:
		switch s := v.(type) {
		case string:
			return s, nil
		case []byte:
			return string(s), nil
		}
		return nil, CorruptValueError(f.Name, fmt.Sprintf("expected text, got %T", v))
	case TypeInt:
		if n, ok := asInt64(v); ok {
			return n, nil
		}
		return nil, CorruptValueError(f.Name, fmt.Sprintf("expected integer, got %T", v))
	case TypeFloat:
		if x, ok := asFloat64(v); ok {
			return x, nil
		}
		return nil, CorruptValueError(f.Name, fmt.Sprintf("expected float, got %T", v))
	case TypeBoolean:
		switch b := v.(type) {
		case bool:
			return b, nil
		default:
			if n, ok := asInt64(v); ok {
				return n != 0, nil
			}
		}
		return nil, CorruptValueError(f.Name, fmt.Sprintf("expected boolean, got %T", v))
	case TypeBigInt:
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case []byte:
			s = string(t)
		case int64:
			return big.NewInt(t), nil
		default:
			return nil, CorruptValueError(f.Name, fmt.Sprintf("expected text bigint, got %T", v))
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("malformed bigint %q", s))
		}
		return n, nil
	case TypeBytes:
		switch b := v.(type) {
		case []byte:
			return b, nil
		case string:
			return []byte(b), nil
		}
		return nil, CorruptValueError(f.Name, fmt.Sprintf("expected bytes, got %T", v))
	default:
		return nil, CorruptValueError(f.Name, fmt.Sprintf("unknown scalar type %s", f.Type))
	}
}

func encodeList(f Field, v any) (any, error) {
	items, err := asSlice(v)
	if err != nil {
		return nil, TypeMismatchError(f.Name, err.Error())
	}
	out := make([]any, len(items))
	for i, item := range items {
		elem, err := encodeListElem(f, item)
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	text, err := json.Marshal(out)
	if err != nil {
		return nil, TypeMismatchError(f.Name, fmt.Sprintf("unserializable list: %v", err))
	}
	return string(text), nil
}

func encodeListElem(f Field, item any) (any, error) {
	switch f.Type {
	case TypeString:
		s, ok := item.(string)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("list element: expected string, got %T", item))
		}
		return s, nil
	case TypeInt:
		n, ok := asInt64(item)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("list element: expected integer, got %T", item))
		}
		return n, nil
	case TypeFloat:
		x, ok := asFloat64(item)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("list element: expected float, got %T", item))
		}
		return x, nil
	case TypeBoolean:
		b, ok := item.(bool)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("list element: expected bool, got %T", item))
		}
		return b, nil
	case TypeBigInt:
		// Decimal string in the serialized form, same as the scalar case.
		return encodeScalar(Field{Name: f.Name, Kind: KindScalar, Type: TypeBigInt}, item)
	case TypeBytes:
		b, ok := item.([]byte)
		if !ok {
			return nil, TypeMismatchError(f.Name, fmt.Sprintf("list element: expected []byte, got %T", item))
		}
		// json.Marshal renders []byte as base64; decodeListElem reverses it.
		return b, nil
	default:
		return nil, TypeMismatchError(f.Name, fmt.Sprintf("unknown list element type %s", f.Type))
	}
}

func decodeList(f Field, v any) (any, error) {
	var text []byte
	switch t := v.(type) {
	case string:
		text = []byte(t)
	case []byte:
		text = t
	default:
		return nil, CorruptValueError(f.Name, fmt.Sprintf("expected serialized list, got %T", v))
	}
	// UseNumber keeps integer elements as literals; decoding through
	// float64 would corrupt values beyond 2^53.
	dec := json.NewDecoder(bytes.NewReader(text))
	dec.UseNumber()
	var raw []any
	if err := dec.Decode(&raw); err != nil {
		return nil, CorruptValueError(f.Name, fmt.Sprintf("malformed serialized list: %v", err))
	}
	out := make([]any, len(raw))
	for i, item := range raw {
		elem, err := decodeListElem(f, item)
		if err != nil {
			return nil, err
		}
		out[i] = elem
	}
	return out, nil
}

func decodeListElem(f Field, item any) (any, error) {
	switch f.Type {
	case TypeString:
		s, ok := item.(string)
		if !ok {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: expected string, got %T", item))
		}
		return s, nil
	case TypeInt:
		num, ok := item.(json.Number)
		if !ok {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: expected integer, got %T", item))
		}
		n, err := strconv.ParseInt(num.String(), 10, 64)
		if err != nil {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: expected integer, got %v", num))
		}
		return n, nil
	case TypeFloat:
		num, ok := item.(json.Number)
		if !ok {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: expected float, got %T", item))
		}
		x, err := num.Float64()
		if err != nil {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: malformed float %v", num))
		}
		return x, nil
	case TypeBoolean:
		b, ok := item.(bool)
		if !ok {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: expected bool, got %T", item))
		}
		return b, nil
	case TypeBigInt:
		s, ok := item.(string)
		if !ok {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: expected bigint string, got %T", item))
		}
		n, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: malformed bigint %q", s))
		}
		return n, nil
	case TypeBytes:
		s, ok := item.(string)
		if !ok {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: expected base64 string, got %T", item))
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, CorruptValueError(f.Name, fmt.Sprintf("list element: malformed base64: %v", err))
		}
		return b, nil
	default:
		return nil, CorruptValueError(f.Name, fmt.Sprintf("unknown list element type %s", f.Type))
	}
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int64:
		return float64(x), true
	case int:
		return float64(x), true
	}
	return 0, false
}

func asSlice(v any) ([]any, error) {
	switch items := v.(type) {
	case []any:
		return items, nil
	case []string:
		out := make([]any, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, nil
	case []int64:
		out := make([]any, len(items))
		for i, n := range items {
			out[i] = n
		}
		return out, nil
	case []int:
		out := make([]any, len(items))
		for i, n := range items {
			out[i] = int64(n)
		}
		return out, nil
	case []float64:
		out := make([]any, len(items))
		for i, x := range items {
			out[i] = x
		}
		return out, nil
	case []bool:
		out := make([]any, len(items))
		for i, b := range items {
			out[i] = b
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected a slice, got %T", v)
	}
}
