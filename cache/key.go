package cache

import (
	"reflect"
	"strconv"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-sqlmap/errs"
)

const (
	defaultMultiplier = 37
	defaultHashcode   = 17
)

// NullKey stands for "explicitly no identity". Rows whose identity key
// collapses to NullKey are never deduplicated. It cannot be updated.
var NullKey = &CacheKey{
	multiplier: defaultMultiplier,
	hashcode:   defaultHashcode,
	frozen:     true,
}

// CacheKey is an ordered list of components with a running composite hash,
// an additive checksum and a component count. Two keys are equal only when
// all three agree and every component is deeply equal.
type CacheKey struct {
	multiplier int64
	hashcode   int64
	checksum   int64
	count      int
	components []any
	frozen     bool
}

// NewCacheKey returns a key seeded with the given components.
func NewCacheKey(components ...any) *CacheKey {
	k := &CacheKey{
		multiplier: defaultMultiplier,
		hashcode:   defaultHashcode,
	}
	k.UpdateAll(components...)
	return k
}

// Update appends one component.
func (k *CacheKey) Update(component any) {
	if k.frozen {
		panic(errs.New(errs.CodeImmutableKey, "NullKey cannot be updated", goerrors.CategoryInternal))
	}

	h := keyComponents.hash(component)
	k.count++
	k.checksum += h
	h *= int64(k.count)
	k.hashcode = k.multiplier*k.hashcode + h
	k.components = append(k.components, component)
}

// UpdateAll appends every component in order.
func (k *CacheKey) UpdateAll(components ...any) {
	for _, c := range components {
		k.Update(c)
	}
}

// Count returns how many components were added.
func (k *CacheKey) Count() int { return k.count }

// Hash returns the composite hash.
func (k *CacheKey) Hash() int64 { return k.hashcode }

// Checksum returns the sum of component hashes.
func (k *CacheKey) Checksum() int64 { return k.checksum }

// Equal reports whether k and other describe the same components in the
// same order.
func (k *CacheKey) Equal(other *CacheKey) bool {
	if k == other {
		return true
	}
	if k == nil || other == nil {
		return false
	}
	if k.hashcode != other.hashcode || k.checksum != other.checksum || k.count != other.count {
		return false
	}
	for i := range k.components {
		if !reflect.DeepEqual(k.components[i], other.components[i]) {
			return false
		}
	}
	return true
}

// Clone returns a mutable copy. Cloning NullKey yields an unfrozen key.
func (k *CacheKey) Clone() *CacheKey {
	return &CacheKey{
		multiplier: k.multiplier,
		hashcode:   k.hashcode,
		checksum:   k.checksum,
		count:      k.count,
		components: append([]any(nil), k.components...),
	}
}

// String renders hash, checksum and every component. Equal keys always
// render the same string.
func (k *CacheKey) String() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(k.hashcode, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(k.checksum, 10))
	for _, c := range k.components {
		b.WriteString(componentSeparator)
		b.WriteString(keyComponents.serialize(c))
	}
	return b.String()
}

// MarshalText lets keys nest inside other keys without losing identity.
func (k *CacheKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
