package model

import (
	"fmt"
	"strconv"
)

// BindPrefix marks a template-bound view object attribute.
const BindPrefix = "__bind-"

// ViewObject is a tagged node of the declarative view tree. The "object" key
// selects the renderer; every other key is renderer specific.
type ViewObject map[string]any

// Object returns the dispatch tag.
func (v ViewObject) Object() string { return v.String("object") }

// ID returns the view object id.
func (v ViewObject) ID() string { return v.String("id") }

// ClassName returns the CSS class list declared on the node.
func (v ViewObject) ClassName() string { return v.String("className") }

// String returns the attribute formatted with Stringify; a missing
// attribute yields "".
func (v ViewObject) String(key string) string {
	if v == nil {
		return ""
	}
	return Stringify(v[key])
}

// Bool reports whether the attribute is a true boolean or the string "true".
func (v ViewObject) Bool(key string) bool {
	switch b := v[key].(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

// Has reports whether the attribute is present.
func (v ViewObject) Has(key string) bool {
	_, ok := v[key]
	return ok
}

// Int returns the attribute as an int, or def when absent or malformed.
func (v ViewObject) Int(key string, def int) int {
	switch n := v[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	}
	return def
}

// Child returns a nested object attribute as a ViewObject.
func (v ViewObject) Child(key string) ViewObject {
	return AsViewObject(v[key])
}

// Children returns the nested children list.
func (v ViewObject) Children() []ViewObject {
	return AsViewObjects(v["children"])
}

// Clone returns a shallow copy.
func (v ViewObject) Clone() ViewObject {
	out := make(ViewObject, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// AsViewObject converts a decoded JSON/YAML value to a ViewObject.
func AsViewObject(val any) ViewObject {
	switch m := val.(type) {
	case ViewObject:
		return m
	case map[string]any:
		return ViewObject(m)
	case map[any]any:
		out := make(ViewObject, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out
	}
	return nil
}

// AsViewObjects converts a decoded list to view objects, dropping entries
// that are not objects.
func AsViewObjects(val any) []ViewObject {
	switch list := val.(type) {
	case []ViewObject:
		return list
	case []map[string]any:
		out := make([]ViewObject, 0, len(list))
		for _, m := range list {
			out = append(out, ViewObject(m))
		}
		return out
	case []any:
		out := make([]ViewObject, 0, len(list))
		for _, item := range list {
			if vo := AsViewObject(item); vo != nil {
				out = append(out, vo)
			}
		}
		return out
	}
	return nil
}

// Stringify renders a scalar the way a template substitution shows it.
func Stringify(val any) string {
	switch s := val.(type) {
	case nil:
		return ""
	case string:
		return s
	case bool:
		return strconv.FormatBool(s)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(s), 'f', -1, 32)
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprint(val)
}
