package reflection

import (
	"database/sql"
	"reflect"
	"testing"
	"time"

	"github.com/goliatone/go-sqlmap/errs"
)

type audit struct {
	CreatedBy string
}

type author struct {
	ID       int64 `db:"author_id"`
	Username string
	Bio      *string
	Address2 string
}

type post struct {
	ID      int64
	Subject string
	Tags    []string
}

type blog struct {
	audit
	ID       int64 `db:"blog_id"`
	Title    string
	Author   *author
	Posts    []*post
	Meta     map[string]any
	Created  time.Time
	Internal string `db:"-"`
	hidden   int
}

func TestMetaClass_FindProperty(t *testing.T) {
	mc := Default().ForType(reflect.TypeOf(&blog{}))

	tests := []struct {
		name       string
		column     string
		underscore bool
		want       string
		ok         bool
	}{
		{name: "go name", column: "Title", want: "Title", ok: true},
		{name: "case insensitive", column: "TITLE", want: "Title", ok: true},
		{name: "db tag", column: "blog_id", want: "ID", ok: true},
		{name: "quoted column", column: `"title"`, want: "Title", ok: true},
		{name: "snake alias", column: "created", want: "Created", ok: true},
		{name: "embedded field", column: "created_by", want: "CreatedBy", ok: true},
		{name: "nested path", column: "author.username", want: "Author.Username", ok: true},
		{name: "nested tag", column: "author.author_id", want: "Author.ID", ok: true},
		{name: "omitted field", column: "internal", ok: false},
		{name: "unexported field", column: "hidden", ok: false},
		{name: "unknown", column: "nope", ok: false},
		{name: "underscore to camel", column: "created_b_y", underscore: true, want: "CreatedBy", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mc.FindProperty(tt.column, tt.underscore)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("FindProperty(%q) = %q, %v; want %q, %v", tt.column, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMetaClass_CachedPerType(t *testing.T) {
	r := NewRegistry()
	a := r.ForType(reflect.TypeOf(blog{}))
	b := r.ForType(reflect.TypeOf(&blog{}))
	if a != b {
		t.Fatal("pointer and value types must share one accessor table")
	}
}

func TestMetaClass_PropertyType(t *testing.T) {
	mc := Default().ForType(reflect.TypeOf(blog{}))

	tests := []struct {
		path string
		want reflect.Type
	}{
		{"Title", reflect.TypeOf("")},
		{"Author.Bio", reflect.TypeOf((*string)(nil))},
		{"Posts", reflect.TypeOf([]*post{})},
		{"Posts[0].Tags", reflect.TypeOf([]string{})},
		{"Meta.anything", reflect.TypeOf((*any)(nil)).Elem()},
	}
	for _, tt := range tests {
		got, err := mc.PropertyType(tt.path)
		if err != nil {
			t.Fatalf("PropertyType(%q): %v", tt.path, err)
		}
		if got != tt.want {
			t.Fatalf("PropertyType(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}

	if _, err := mc.PropertyType("Author.Missing"); !errs.HasCode(err, errs.CodeReflection) {
		t.Fatalf("expected reflection error, got %v", err)
	}
}

func TestMetaObject_GetValue(t *testing.T) {
	bio := "gopher"
	b := &blog{
		ID:     1,
		Title:  "Go",
		Author: &author{ID: 7, Username: "jane", Bio: &bio},
		Posts:  []*post{{ID: 10, Tags: []string{"a", "b"}}},
		Meta:   map[string]any{"views": 3},
	}
	b.CreatedBy = "admin"
	mo := Of(b)

	tests := []struct {
		path string
		want any
	}{
		{"Title", "Go"},
		{"title", "Go"},
		{"Author.Username", "jane"},
		{"author.author_id", int64(7)},
		{"Posts[0].ID", int64(10)},
		{"Posts[0].Tags[1]", "b"},
		{"Posts[5].ID", nil},
		{"Meta.views", 3},
		{"Meta.missing", nil},
		{"CreatedBy", "admin"},
	}
	for _, tt := range tests {
		got, err := mo.GetValue(tt.path)
		if err != nil {
			t.Fatalf("GetValue(%q): %v", tt.path, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("GetValue(%q) = %#v, want %#v", tt.path, got, tt.want)
		}
	}

	if v, err := Of(&blog{}).GetValue("Author.Username"); err != nil || v != nil {
		t.Fatalf("nil pointer on the path must read as nil, got %v %v", v, err)
	}
	if _, err := mo.GetValue("Nope"); err == nil {
		t.Fatal("expected error for unknown property")
	}
}

func TestMetaObject_SetValueAllocates(t *testing.T) {
	b := &blog{}
	mo := Of(b)

	if err := mo.SetValue("Author.Username", "jane"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if b.Author == nil || b.Author.Username != "jane" {
		t.Fatalf("expected author to be allocated, got %+v", b.Author)
	}
	if err := mo.SetValue("Author.Bio", "hi"); err != nil {
		t.Fatalf("SetValue pointer: %v", err)
	}
	if *b.Author.Bio != "hi" {
		t.Fatalf("expected bio pointer, got %v", b.Author.Bio)
	}
	if err := mo.SetValue("Meta.views", 5); err != nil {
		t.Fatalf("SetValue map: %v", err)
	}
	if b.Meta["views"] != 5 {
		t.Fatalf("expected map to be created, got %v", b.Meta)
	}
	if err := mo.SetValue("CreatedBy", []byte("root")); err != nil {
		t.Fatalf("SetValue embedded: %v", err)
	}
	if b.CreatedBy != "root" {
		t.Fatalf("expected []byte to convert to string, got %q", b.CreatedBy)
	}
}

func TestMetaObject_Maps(t *testing.T) {
	m := map[string]any{}
	mo := Of(m)
	if err := mo.SetValue("author.name", "jane"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	v, err := mo.GetValue("author.name")
	if err != nil || v != "jane" {
		t.Fatalf("expected nested map value, got %v %v", v, err)
	}
	if name, ok := mo.FindProperty("ANY_column", true); !ok || name != "ANY_column" {
		t.Fatalf("maps accept column names as is, got %q", name)
	}
}

func TestMetaObject_CollectionsAndInstantiate(t *testing.T) {
	b := &blog{}
	mo := Of(b)

	v, err := mo.Instantiate("Posts")
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	if ps, ok := v.([]*post); !ok || ps == nil || len(ps) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", v)
	}
	if err := mo.AddTo("Posts", &post{ID: 1}); err != nil {
		t.Fatalf("AddTo: %v", err)
	}
	if err := mo.AddTo("Posts", &post{ID: 2}); err != nil {
		t.Fatalf("AddTo: %v", err)
	}
	if len(b.Posts) != 2 || b.Posts[1].ID != 2 {
		t.Fatalf("unexpected posts %+v", b.Posts)
	}
	if err := mo.AddTo("Title", "x"); err == nil {
		t.Fatal("expected error when adding to a scalar property")
	}

	var ids []int64
	list := Of(&ids)
	if !list.IsCollection() {
		t.Fatal("expected collection")
	}
	if err := list.Add(int32(4)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(ids) != 1 || ids[0] != 4 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

type flag bool

type status string

func TestConvert(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		typ     reflect.Type
		want    any
		wantErr bool
	}{
		{name: "int64 to int", value: int64(3), typ: reflect.TypeOf(0), want: 3},
		{name: "float to int32", value: 2.0, typ: reflect.TypeOf(int32(0)), want: int32(2)},
		{name: "bytes to string", value: []byte("x"), typ: reflect.TypeOf(""), want: "x"},
		{name: "string to named", value: "open", typ: reflect.TypeOf(status("")), want: status("open")},
		{name: "int to bool", value: int64(1), typ: reflect.TypeOf(true), want: true},
		{name: "int to named bool", value: int64(0), typ: reflect.TypeOf(flag(true)), want: flag(false)},
		{name: "numeric text", value: []byte("42"), typ: reflect.TypeOf(int64(0)), want: int64(42)},
		{name: "scanner", value: "x", typ: reflect.TypeOf(sql.NullString{}), want: sql.NullString{String: "x", Valid: true}},
		{name: "nil to pointer", value: nil, typ: reflect.TypeOf((*int)(nil)), want: (*int)(nil)},
		{name: "struct mismatch", value: struct{}{}, typ: reflect.TypeOf(0), wantErr: true},
		{name: "bad number", value: "abc", typ: reflect.TypeOf(0), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.value, tt.typ)
			if tt.wantErr {
				if !errs.HasCode(err, errs.CodeReflection) {
					t.Fatalf("expected reflection error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Convert: %v", err)
			}
			if !reflect.DeepEqual(got.Interface(), tt.want) {
				t.Fatalf("Convert = %#v, want %#v", got.Interface(), tt.want)
			}
		})
	}

	p, err := Convert(5, reflect.TypeOf((*int64)(nil)))
	if err != nil || *(p.Interface().(*int64)) != 5 {
		t.Fatalf("expected pointer conversion, got %v %v", p, err)
	}
}

func TestEnv(t *testing.T) {
	b := &blog{ID: 3, Title: "Go", Author: &author{Username: "jane"}}
	env := Env(b)

	if env["Title"] != "Go" || env["title"] != "Go" || env["blog_id"] != int64(3) {
		t.Fatalf("unexpected env %v", env)
	}
	a, ok := env["author"].(map[string]any)
	if !ok || a["username"] != "jane" {
		t.Fatalf("expected nested author map, got %#v", env["author"])
	}
	if _, ok := env["Created"].(time.Time); !ok {
		t.Fatalf("time values stay scalar, got %#v", env["Created"])
	}

	m := Env(map[string]any{"id": 1})
	if m["id"] != 1 {
		t.Fatalf("maps are copied as is, got %v", m)
	}
}

func TestToSnake(t *testing.T) {
	tests := map[string]string{
		"AuthorID":  "author_id",
		"Address2":  "address_2",
		"HTTPCode":  "http_code",
		"createdAt": "created_at",
		"":          "",
	}
	for in, want := range tests {
		if got := ToSnake(in); got != want {
			t.Fatalf("ToSnake(%q) = %q, want %q", in, got, want)
		}
	}
}
