package core

const (
	// RefKey is the sentinel key for a lookup into the State.
	RefKey = "$ref"

	// ConstKey is the sentinel key for a literal.
	ConstKey = "$const"
)

// ResolveValue interprets a raw value against the State.
//
// {"$ref": PATH} gives the value at PATH (or nil if there isn't one).
// {"$const": X} gives X.  Nil and the empty string give nil.
// Anything else is returned as is.
//
// Only the outermost value is inspected.  Nested sentinels are left
// alone.
func ResolveValue(raw interface{}, st *State) interface{} {
	switch vv := raw.(type) {
	case nil:
		return nil
	case string:
		if vv == "" {
			return nil
		}
		return raw
	case map[string]interface{}, Bindings, map[interface{}]interface{}:
	default:
		return raw
	}

	m, _ := AsMap(raw)
	if path, have := m[RefKey]; have {
		if st == nil {
			return nil
		}
		v, _ := st.Get(path)
		return v
	}
	if x, have := m[ConstKey]; have {
		return x
	}
	return raw
}

// IsSentinel reports whether the map is a $ref or a $const.
func IsSentinel(m map[string]interface{}) bool {
	if _, have := m[RefKey]; have {
		return true
	}
	_, have := m[ConstKey]
	return have
}

// AsMap returns the value as a map[string]interface{} if it's any
// kind of map with string keys.
//
// A map[interface{}]interface{} (which some YAML decoders produce) is
// copied shallowly.
func AsMap(x interface{}) (map[string]interface{}, bool) {
	switch vv := x.(type) {
	case map[string]interface{}:
		return vv, true
	case Bindings:
		return vv, true
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			s, is := k.(string)
			if !is {
				return nil, false
			}
			m[s] = v
		}
		return m, true
	}
	return nil, false
}

// AsList returns the value as a []interface{}.  Nil gives an empty
// list, and any other non-list value gives a list of one.
func AsList(x interface{}) []interface{} {
	switch vv := x.(type) {
	case nil:
		return []interface{}{}
	case []interface{}:
		return vv
	case []string:
		acc := make([]interface{}, len(vv))
		for i, s := range vv {
			acc[i] = s
		}
		return acc
	case []map[string]interface{}:
		acc := make([]interface{}, len(vv))
		for i, m := range vv {
			acc[i] = m
		}
		return acc
	default:
		return []interface{}{x}
	}
}
