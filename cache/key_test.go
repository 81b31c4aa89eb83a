package cache

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-sqlmap/errs"
)

func statementKey(id string, offset, limit int, sql string, params ...any) *CacheKey {
	k := NewCacheKey(id, offset, limit, sql)
	k.UpdateAll(params...)
	k.Update("development")
	return k
}

func TestCacheKey_EqualDimensions(t *testing.T) {
	base := statementKey("blog.select", 0, math.MaxInt32, "SELECT * FROM blog WHERE id = ?", 1)

	tests := []struct {
		name  string
		other *CacheKey
		want  bool
	}{
		{
			name:  "identical",
			other: statementKey("blog.select", 0, math.MaxInt32, "SELECT * FROM blog WHERE id = ?", 1),
			want:  true,
		},
		{
			name:  "different statement",
			other: statementKey("blog.other", 0, math.MaxInt32, "SELECT * FROM blog WHERE id = ?", 1),
		},
		{
			name:  "different offset",
			other: statementKey("blog.select", 10, math.MaxInt32, "SELECT * FROM blog WHERE id = ?", 1),
		},
		{
			name:  "different limit",
			other: statementKey("blog.select", 0, 5, "SELECT * FROM blog WHERE id = ?", 1),
		},
		{
			name:  "different sql",
			other: statementKey("blog.select", 0, math.MaxInt32, "SELECT id FROM blog WHERE id = ?", 1),
		},
		{
			name:  "different parameter",
			other: statementKey("blog.select", 0, math.MaxInt32, "SELECT * FROM blog WHERE id = ?", 2),
		},
		{
			name:  "different parameter type",
			other: statementKey("blog.select", 0, math.MaxInt32, "SELECT * FROM blog WHERE id = ?", int64(1)),
		},
		{
			name: "different environment",
			other: func() *CacheKey {
				k := NewCacheKey("blog.select", 0, math.MaxInt32, "SELECT * FROM blog WHERE id = ?", 1)
				k.Update("production")
				return k
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := base.Equal(tt.other); got != tt.want {
				t.Fatalf("Equal() = %v, want %v", got, tt.want)
			}
			if tt.want && base.String() != tt.other.String() {
				t.Fatalf("equal keys must render the same string")
			}
		})
	}
}

func TestCacheKey_OrderMatters(t *testing.T) {
	a := NewCacheKey("x", "y")
	b := NewCacheKey("y", "x")
	if a.Equal(b) {
		t.Fatal("component order must matter")
	}
	if a.Checksum() != b.Checksum() {
		t.Fatal("checksum is order independent")
	}
}

func TestCacheKey_CountAndClone(t *testing.T) {
	k := NewCacheKey("a", nil, []int{1, 2})
	if k.Count() != 3 {
		t.Fatalf("expected 3 components, got %d", k.Count())
	}

	c := k.Clone()
	if !c.Equal(k) {
		t.Fatal("clone must equal original")
	}
	c.Update("more")
	if c.Equal(k) || k.Count() != 3 {
		t.Fatal("clone must be independent")
	}
}

func TestCacheKey_ComplexComponents(t *testing.T) {
	id := uuid.MustParse("6f1c3a5e-7c1b-4c1a-9a52-0f1f3f0d8a11")
	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	a := NewCacheKey(map[string]any{"b": 2, "a": 1}, id, when, []byte("raw"))
	b := NewCacheKey(map[string]any{"a": 1, "b": 2}, id, when, []byte("raw"))
	if !a.Equal(b) || a.Hash() != b.Hash() {
		t.Fatal("maps must hash independently of iteration order")
	}

	c := NewCacheKey(map[string]any{"a": 1, "b": 3}, id, when, []byte("raw"))
	if a.Equal(c) {
		t.Fatal("different map values must not be equal")
	}
}

func TestCacheKey_NestedKeys(t *testing.T) {
	parentA := NewCacheKey("blog", "id", 1)
	parentB := NewCacheKey("blog", "id", 2)

	childA := NewCacheKey("post", "id", 10)
	childA.Update(parentA)
	childB := NewCacheKey("post", "id", 10)
	childB.Update(parentB)

	if childA.Equal(childB) {
		t.Fatal("keys combined with different parents must differ")
	}
	if childA.String() == childB.String() {
		t.Fatal("nested keys must keep their identity in the string form")
	}
}

func TestNullKey_Immutable(t *testing.T) {
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic when updating NullKey")
		}
		err, ok := r.(error)
		if !ok || !errs.HasCode(err, errs.CodeImmutableKey) {
			t.Fatalf("unexpected panic value %v", r)
		}
	}()
	NullKey.Update("x")
}

func TestNullKey_EqualOnlyToItself(t *testing.T) {
	if !NullKey.Equal(NullKey) {
		t.Fatal("NullKey equals itself")
	}
	if NullKey.Equal(NewCacheKey("x")) {
		t.Fatal("NullKey must not equal a populated key")
	}
	if NullKey.Clone().Count() != 0 {
		t.Fatal("clone of NullKey starts empty")
	}
}

func TestCacheKey_DeterministicAcrossInstances(t *testing.T) {
	type filter struct {
		Name  string
		Limit int
	}
	a := NewCacheKey(filter{Name: "go", Limit: 5})
	b := NewCacheKey(filter{Name: "go", Limit: 5})
	if a.Hash() != b.Hash() || a.String() != b.String() {
		t.Fatal("struct components must hash deterministically")
	}
}
