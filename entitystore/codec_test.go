package entitystore

import (
	"bytes"
	"math"
	"math/big"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, f Field, v any) any {
	t.Helper()
	enc, err := Encode(f, v)
	if err != nil {
		t.Fatalf("Encode(%s, %v): %v", f.Name, v, err)
	}
	dec, err := Decode(f, enc)
	if err != nil {
		t.Fatalf("Decode(%s, %v): %v", f.Name, enc, err)
	}
	return dec
}

func TestScalarRoundTrip(t *testing.T) {
	cases := []struct {
		field Field
		value any
	}{
		{Scalar("s", TypeString), "hello"},
		{Scalar("n", TypeInt), int64(-42)},
		{Scalar("x", TypeFloat), 3.25},
		{Scalar("big", TypeBigInt), new(big.Int).SetUint64(1 << 63)},
	}
	for _, tc := range cases {
		got := roundTrip(t, tc.field, tc.value)
		switch want := tc.value.(type) {
		case *big.Int:
			if want.Cmp(got.(*big.Int)) != 0 {
				t.Errorf("%s: round trip = %v, want %v", tc.field.Name, got, want)
			}
		default:
			if got != tc.value {
				t.Errorf("%s: round trip = %v, want %v", tc.field.Name, got, tc.value)
			}
		}
	}
}

func TestBooleanCanonicalizes(t *testing.T) {
	f := Scalar("done", TypeBoolean)

	enc, err := Encode(f, true)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc != int64(1) {
		t.Fatalf("Encode(true) = %v, want 1", enc)
	}

	// Decode accepts the canonical integer, a native bool, and the
	// integral float some drivers hand back.
	for _, stored := range []any{int64(1), true, float64(1)} {
		dec, err := Decode(f, stored)
		if err != nil {
			t.Fatalf("Decode(%v): %v", stored, err)
		}
		if dec != true {
			t.Fatalf("Decode(%v) = %v, want true", stored, dec)
		}
	}
	dec, err := Decode(f, int64(0))
	if err != nil || dec != false {
		t.Fatalf("Decode(0) = %v, %v", dec, err)
	}
}

func TestBytesRoundTripExact(t *testing.T) {
	f := Scalar("raw", TypeBytes)
	v := []byte{0x00, 0xff, 0x10, 0x80}
	got := roundTrip(t, f, v).([]byte)
	if !bytes.Equal(got, v) {
		t.Fatalf("bytes round trip = %x, want %x", got, v)
	}
}

func TestListRoundTrip(t *testing.T) {
	cases := []struct {
		field Field
		value []any
		want  []any
	}{
		{List("tags", TypeString), []any{"a", "b"}, []any{"a", "b"}},
		{List("nums", TypeInt), []any{int64(1), int64(2)}, []any{int64(1), int64(2)}},
		{List("xs", TypeFloat), []any{1.5, -2.5}, []any{1.5, -2.5}},
		{List("flags", TypeBoolean), []any{true, false}, []any{true, false}},
		{List("blobs", TypeBytes), []any{[]byte{1, 2}, []byte{3}}, []any{[]byte{1, 2}, []byte{3}}},
	}
	for _, tc := range cases {
		got := roundTrip(t, tc.field, tc.value)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: round trip = %#v, want %#v", tc.field.Name, got, tc.want)
		}
	}
}

func TestIntListRoundTripLargeValues(t *testing.T) {
	// Elements above 2^53 are not representable as float64; they must
	// survive the trip through the serialized form exactly.
	f := List("nums", TypeInt)
	v := []any{int64(1<<60 + 1), int64(math.MaxInt64)}
	enc, err := Encode(f, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc != `[1152921504606846977,9223372036854775807]` {
		t.Fatalf("Encode = %q", enc)
	}
	dec, err := Decode(f, enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(dec, v) {
		t.Fatalf("round trip = %#v, want %#v", dec, v)
	}
}

func TestDecodeIntListRejectsNonIntegers(t *testing.T) {
	f := List("nums", TypeInt)
	for _, stored := range []string{"[1.5]", "[99999999999999999999999999]", `["1"]`} {
		_, err := Decode(f, stored)
		if !IsKind(err, ErrCorruptValue) {
			t.Errorf("Decode(%q): expected corrupt_value, got %v", stored, err)
		}
	}
}

func TestBigIntListRoundTrip(t *testing.T) {
	f := List("bigs", TypeBigInt)
	v := []any{big.NewInt(7), new(big.Int).SetUint64(1 << 63)}
	enc, err := Encode(f, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if enc != `["7","9223372036854775808"]` {
		t.Fatalf("Encode = %q", enc)
	}
	dec, err := Decode(f, enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := dec.([]any)
	if len(got) != 2 || got[0].(*big.Int).Cmp(v[0].(*big.Int)) != 0 || got[1].(*big.Int).Cmp(v[1].(*big.Int)) != 0 {
		t.Fatalf("round trip = %v, want %v", got, v)
	}
}

func TestDecodeMalformedList(t *testing.T) {
	f := List("tags", TypeString)
	for _, stored := range []any{"not json", "{\"a\":1}", "[1,2]"} {
		_, err := Decode(f, stored)
		if !IsKind(err, ErrCorruptValue) {
			t.Errorf("Decode(%q): expected corrupt_value, got %v", stored, err)
		}
	}
}

func TestDecodeMalformedBigInt(t *testing.T) {
	f := Scalar("big", TypeBigInt)
	_, err := Decode(f, "twelve")
	if !IsKind(err, ErrCorruptValue) {
		t.Fatalf("expected corrupt_value, got %v", err)
	}
}

func TestEncodeWrongType(t *testing.T) {
	_, err := Encode(Scalar("n", TypeInt), "nope")
	if !IsKind(err, ErrTypeMismatch) {
		t.Fatalf("expected type_mismatch, got %v", err)
	}
	_, err = Encode(Scalar("done", TypeBoolean), 1)
	if !IsKind(err, ErrTypeMismatch) {
		t.Fatalf("expected type_mismatch, got %v", err)
	}
}

func TestNilPassthrough(t *testing.T) {
	f := OptionalScalar("age", TypeInt)
	enc, err := Encode(f, nil)
	if err != nil || enc != nil {
		t.Fatalf("Encode(nil) = %v, %v", enc, err)
	}
	dec, err := Decode(f, nil)
	if err != nil || dec != nil {
		t.Fatalf("Decode(nil) = %v, %v", dec, err)
	}
}
