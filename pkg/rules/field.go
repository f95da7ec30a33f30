package rules

import (
	"reflect"
	"strconv"
	"strings"
)

// Context is the read-only evaluation input for conditions.
// Keys may hold nested maps, slices or structs which are reached with
// dot-separated paths such as "metrics.confidence" or "tags.0".
type Context map[string]any

// Lookup resolves a dot-separated field path.
// It reports false when any step of the traversal is missing.
func (c Context) Lookup(path string) (any, bool) {
	if path == "" || c == nil {
		return nil, false
	}

	// A literal key containing dots wins over traversal
	if v, ok := c[path]; ok {
		return v, true
	}

	parts := strings.Split(path, ".")
	var current any = map[string]any(c)
	for _, part := range parts {
		next, ok := step(current, part)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// With returns a copy of c with key set to value.
func (c Context) With(key string, value any) Context {
	out := make(Context, len(c)+1)
	for k, v := range c {
		out[k] = v
	}
	out[key] = value
	return out
}

// step resolves one path segment against v.
func step(v any, name string) (any, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case Context:
		val, ok := m[name]
		return val, ok
	case map[string]any:
		val, ok := m[name]
		return val, ok
	case map[string]string:
		val, ok := m[name]
		return val, ok
	}
	return extractFieldReflection(v, name)
}

// extractFieldReflection resolves name on structs, string-keyed maps and
// slices using reflection.
func extractFieldReflection(obj any, name string) (any, bool) {
	v := reflect.ValueOf(obj)

	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		val := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
		if !val.IsValid() {
			return nil, false
		}
		return val.Interface(), true

	case reflect.Slice, reflect.Array:
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= v.Len() {
			return nil, false
		}
		return v.Index(i).Interface(), true

	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			if strings.EqualFold(f.Name, name) || jsonName(f) == name {
				return v.Field(i).Interface(), true
			}
		}
	}

	return nil, false
}

// jsonName returns the json tag name of a struct field.
func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}
