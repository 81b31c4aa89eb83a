package types

import (
	"database/sql"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-sqlmap/errs"
)

type level int

type point struct {
	X, Y int
}

func (p point) MarshalText() ([]byte, error) {
	return []byte(strings.Repeat("*", p.X)), nil
}

func (p *point) UnmarshalText(b []byte) error {
	p.X = len(b)
	return nil
}

type person struct {
	Name string
}

func TestRegistry_Decode(t *testing.T) {
	r := NewRegistry()
	id := uuid.MustParse("6f1c3a5e-7c1b-4c1a-9a52-0f1f3f0d8a11")
	when := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)

	tests := []struct {
		name string
		typ  reflect.Type
		raw  any
		want any
	}{
		{name: "int from int64", typ: reflect.TypeOf(0), raw: int64(7), want: 7},
		{name: "named int", typ: reflect.TypeOf(level(0)), raw: int64(2), want: level(2)},
		{name: "string from bytes", typ: reflect.TypeOf(""), raw: []byte("go"), want: "go"},
		{name: "bool from int", typ: reflect.TypeOf(false), raw: int64(1), want: true},
		{name: "bytes copy", typ: reflect.TypeOf([]byte(nil)), raw: []byte("ab"), want: []byte("ab")},
		{name: "time from text", typ: reflect.TypeOf(time.Time{}), raw: "2024-03-04 05:06:07", want: when},
		{name: "time passthrough", typ: reflect.TypeOf(time.Time{}), raw: when, want: when},
		{name: "uuid from text", typ: reflect.TypeOf(uuid.UUID{}), raw: id.String(), want: id},
		{name: "scanner", typ: reflect.TypeOf(sql.NullInt64{}), raw: int64(3), want: sql.NullInt64{Int64: 3, Valid: true}},
		{name: "text unmarshaler", typ: reflect.TypeOf(point{}), raw: "***", want: point{X: 3}},
		{name: "pointer", typ: reflect.TypeOf((*int64)(nil)), raw: int64(9), want: func() any { v := int64(9); return &v }()},
		{name: "pointer to time", typ: reflect.TypeOf((*time.Time)(nil)), raw: "2024-03-04", want: func() any {
			v := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
			return &v
		}()},
		{name: "interface passthrough", typ: reflect.TypeOf((*any)(nil)).Elem(), raw: int64(1), want: int64(1)},
		{name: "null", typ: reflect.TypeOf(""), raw: nil, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := r.Lookup(tt.typ, "")
			if !ok {
				t.Fatalf("no codec for %v", tt.typ)
			}
			got, err := c.Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Decode = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestRegistry_NoCodecForBeans(t *testing.T) {
	r := NewRegistry()
	if r.Has(reflect.TypeOf(person{})) {
		t.Fatal("struct beans are mapped by property, not by codec")
	}
	if r.Has(reflect.TypeOf([]string{})) {
		t.Fatal("slices other than []byte have no codec")
	}
	_, err := r.MustLookup(reflect.TypeOf(person{}), "", "Owner", "owner_col")
	if !errs.HasCode(err, errs.CodeCodecNotFound) {
		t.Fatalf("expected codec not found, got %v", err)
	}
	meta := errs.Metadata(err)
	if meta["property"] != "Owner" || meta["column"] != "owner_col" {
		t.Fatalf("error must name the property and column, got %v", meta)
	}
}

func TestRegistry_CustomCodecs(t *testing.T) {
	r := NewRegistry()
	upper := Funcs{
		EncodeFunc: func(v any) (any, error) { return strings.ToUpper(v.(string)), nil },
		DecodeFunc: func(v any) (any, error) { return strings.ToLower(string(v.([]byte))), nil },
	}

	r.Register(reflect.TypeOf(""), "CHAR", upper)
	r.RegisterNamed("upper", upper)

	c, _ := r.Lookup(reflect.TypeOf(""), "CHAR")
	if v, _ := c.Encode("abc"); v != "ABC" {
		t.Fatalf("expected sql type specific codec, got %v", v)
	}
	c, _ = r.Lookup(reflect.TypeOf(""), "VARCHAR")
	if v, _ := c.Encode("abc"); v != "abc" {
		t.Fatalf("unregistered sql type falls back to the default codec, got %v", v)
	}
	if _, ok := r.Named("upper"); !ok {
		t.Fatal("expected named codec")
	}

	Register[person](r, Funcs{DecodeFunc: func(v any) (any, error) { return person{Name: v.(string)}, nil }})
	c, ok := r.Lookup(reflect.TypeOf(person{}), "")
	if !ok {
		t.Fatal("registration must override bean detection")
	}
	if v, _ := c.Decode("ann"); v != (person{Name: "ann"}) {
		t.Fatalf("unexpected decode %v", v)
	}
}

func TestEncode(t *testing.T) {
	r := NewRegistry()
	id := uuid.New()

	v, err := r.ForValue(id, "").Encode(id)
	if err != nil || v != id.String() {
		t.Fatalf("uuid encodes as text, got %v %v", v, err)
	}
	v, err = r.ForValue(point{X: 2}, "").Encode(point{X: 2})
	if err != nil || v != "**" {
		t.Fatalf("text marshalers encode as text, got %v %v", v, err)
	}
	var nilPtr *int64
	v, err = r.ForValue(nilPtr, "").Encode(nilPtr)
	if err != nil || v != nil {
		t.Fatalf("nil pointers encode as NULL, got %v %v", v, err)
	}
	if v, _ := r.ForValue(nil, "").Encode(nil); v != nil {
		t.Fatalf("nil stays nil, got %v", v)
	}
}
