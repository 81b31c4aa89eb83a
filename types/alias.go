package types

import (
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

func defaultAliases() map[string]reflect.Type {
	return map[string]reflect.Type{
		"string":  reflect.TypeOf(""),
		"bool":    reflect.TypeOf(false),
		"int":     reflect.TypeOf(int(0)),
		"int8":    reflect.TypeOf(int8(0)),
		"int16":   reflect.TypeOf(int16(0)),
		"int32":   reflect.TypeOf(int32(0)),
		"int64":   reflect.TypeOf(int64(0)),
		"uint":    reflect.TypeOf(uint(0)),
		"uint8":   reflect.TypeOf(uint8(0)),
		"uint16":  reflect.TypeOf(uint16(0)),
		"uint32":  reflect.TypeOf(uint32(0)),
		"uint64":  reflect.TypeOf(uint64(0)),
		"float32": reflect.TypeOf(float32(0)),
		"float64": reflect.TypeOf(float64(0)),
		"bytes":   reflect.TypeOf([]byte(nil)),
		"time":    reflect.TypeOf(time.Time{}),
		"uuid":    reflect.TypeOf(uuid.UUID{}),
		"any":     reflect.TypeOf((*any)(nil)).Elem(),
		"map":     reflect.TypeOf(map[string]any(nil)),
	}
}

// RegisterAlias makes name usable as goType=name in placeholders.
func (r *Registry) RegisterAlias(name string, t reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[strings.ToLower(name)] = t
}

// Alias resolves a type alias. Names are case-insensitive.
func (r *Registry) Alias(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.aliases[strings.ToLower(strings.TrimSpace(name))]
	return t, ok
}
