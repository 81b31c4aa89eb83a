package reflection

import (
	"reflect"
)

// maxEnvDepth bounds how deep Env walks nested structs.
const maxEnvDepth = 8

// Env flattens a parameter object into a map usable as an expression
// environment. Struct properties appear under their Go name, their
// lower-camel name and their db tag. Nested structs become nested maps;
// slices, maps and scalar values are kept as they are.
func (r *Registry) Env(obj any) map[string]any {
	out := map[string]any{}
	r.fillEnv(out, reflect.ValueOf(obj), maxEnvDepth)
	return out
}

// Env uses the default registry.
func Env(obj any) map[string]any { return defaultRegistry.Env(obj) }

func (r *Registry) fillEnv(out map[string]any, v reflect.Value, depth int) {
	v = Indirect(v)
	if !v.IsValid() {
		return
	}
	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = r.envValue(iter.Value(), depth-1)
		}
	case reflect.Struct:
		if !IsBean(v.Type()) {
			return
		}
		for _, p := range r.ForType(v.Type()).Properties() {
			fv := fieldByIndex(v, p.Index)
			val := r.envValue(fv, depth-1)
			out[p.Name] = val
			if lf := LowerFirst(p.Name); lf != p.Name {
				out[lf] = val
			}
			if p.Column != "" {
				out[p.Column] = val
			}
		}
	}
}

func (r *Registry) envValue(v reflect.Value, depth int) any {
	if v.IsValid() && v.Kind() == reflect.Slice {
		// nil slices stay typed so they iterate as empty collections
		return v.Interface()
	}
	if IsNil(v) {
		return nil
	}
	iv := Indirect(v)
	if depth > 0 && iv.Kind() == reflect.Struct && IsBean(iv.Type()) {
		m := map[string]any{}
		r.fillEnv(m, iv, depth)
		return m
	}
	if iv.Kind() == reflect.Map && iv.Type().Key().Kind() == reflect.String && depth > 0 {
		m := make(map[string]any, iv.Len())
		iter := iv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = r.envValue(iter.Value(), depth-1)
		}
		return m
	}
	return iv.Interface()
}

// EnvValue converts a single value the way Env converts property values.
func (r *Registry) EnvValue(v any) any {
	return r.envValue(reflect.ValueOf(v), maxEnvDepth)
}
