package core

import (
	"strconv"
	"strings"
)

// Bindings is the user data of a State: a map from keys to arbitrary
// values.
//
// Get and Set take a path, which is either a string like "a.b[0].c"
// or a []interface{} (or []string) of segments.  A segment that's an
// int (or a string of digits when the container is an array) indexes
// an array.
type Bindings map[string]interface{}

func NewBindings() Bindings {
	return make(Bindings, 8)
}

// Copy makes a shallow copy of the Bindings.
func (bs Bindings) Copy() Bindings {
	acc := make(Bindings, len(bs))
	for k, v := range bs {
		acc[k] = v
	}
	return acc
}

// Extend adds the property; modifies and returns the Bindings.
func (bs Bindings) Extend(p string, v interface{}) Bindings {
	bs[p] = v
	return bs
}

// Get follows the path.  A missing path isn't an error; the second
// return value just reports whether something was found.
func (bs Bindings) Get(path interface{}) (interface{}, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return getIn(map[string]interface{}(bs), segs)
}

// Set writes the value at the path, making intermediate maps (or
// arrays, when the next segment is an int) as needed.
//
// The Bindings are modified.
func (bs Bindings) Set(path interface{}, v interface{}) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	_, err = setIn(map[string]interface{}(bs), segs, v)
	return err
}

// ParsePath turns a path into its segments.  Each segment is a string
// or an int.
func ParsePath(path interface{}) ([]interface{}, error) {
	switch vv := path.(type) {
	case string:
		return parsePathString(vv)
	case []string:
		acc := make([]interface{}, len(vv))
		for i, s := range vv {
			acc[i] = s
		}
		return checkSegments(acc)
	case []interface{}:
		acc := make([]interface{}, len(vv))
		for i, x := range vv {
			switch seg := x.(type) {
			case string:
				acc[i] = seg
			case int:
				acc[i] = seg
			case int64:
				acc[i] = int(seg)
			case float64:
				acc[i] = int(seg)
			default:
				return nil, BadPath
			}
		}
		return checkSegments(acc)
	case int:
		return []interface{}{vv}, nil
	default:
		return nil, BadPath
	}
}

func checkSegments(segs []interface{}) ([]interface{}, error) {
	if len(segs) == 0 {
		return nil, BadPath
	}
	return segs, nil
}

func parsePathString(s string) ([]interface{}, error) {
	if s == "" {
		return nil, BadPath
	}
	segs := make([]interface{}, 0, 4)
	for _, part := range strings.Split(s, ".") {
		for part != "" {
			i := strings.IndexByte(part, '[')
			if i < 0 {
				segs = append(segs, part)
				break
			}
			if 0 < i {
				segs = append(segs, part[:i])
			}
			j := strings.IndexByte(part[i:], ']')
			if j < 0 {
				return nil, BadPath
			}
			inner := part[i+1 : i+j]
			if n, err := strconv.Atoi(inner); err == nil {
				segs = append(segs, n)
			} else {
				segs = append(segs, strings.Trim(inner, `"'`))
			}
			part = part[i+j+1:]
		}
	}
	return checkSegments(segs)
}

func index(seg interface{}) (int, bool) {
	switch vv := seg.(type) {
	case int:
		return vv, true
	case string:
		n, err := strconv.Atoi(vv)
		return n, err == nil
	}
	return 0, false
}

func key(seg interface{}) string {
	if s, is := seg.(string); is {
		return s
	}
	return strconv.Itoa(seg.(int))
}

func getIn(x interface{}, segs []interface{}) (interface{}, bool) {
	for _, seg := range segs {
		switch vv := x.(type) {
		case map[string]interface{}:
			v, have := vv[key(seg)]
			if !have {
				return nil, false
			}
			x = v
		case Bindings:
			v, have := vv[key(seg)]
			if !have {
				return nil, false
			}
			x = v
		case map[interface{}]interface{}:
			v, have := vv[key(seg)]
			if !have {
				return nil, false
			}
			x = v
		case []interface{}:
			n, ok := index(seg)
			if !ok || n < 0 || len(vv) <= n {
				return nil, false
			}
			x = vv[n]
		default:
			return nil, false
		}
	}
	return x, true
}

// setIn returns the container, which might be new when an array had
// to grow.
func setIn(x interface{}, segs []interface{}, v interface{}) (interface{}, error) {
	seg := segs[0]
	last := len(segs) == 1

	child := func(existing interface{}) (interface{}, error) {
		if last {
			return v, nil
		}
		if existing == nil || !isContainer(existing) {
			if _, isInt := segs[1].(int); isInt {
				existing = make([]interface{}, 0, 4)
			} else {
				existing = make(map[string]interface{})
			}
		}
		return setIn(existing, segs[1:], v)
	}

	switch vv := x.(type) {
	case map[string]interface{}:
		y, err := child(vv[key(seg)])
		if err != nil {
			return nil, err
		}
		vv[key(seg)] = y
		return vv, nil
	case Bindings:
		y, err := child(vv[key(seg)])
		if err != nil {
			return nil, err
		}
		vv[key(seg)] = y
		return vv, nil
	case map[interface{}]interface{}:
		y, err := child(vv[key(seg)])
		if err != nil {
			return nil, err
		}
		vv[key(seg)] = y
		return vv, nil
	case []interface{}:
		n, ok := index(seg)
		if !ok || n < 0 {
			return nil, BadPath
		}
		for len(vv) <= n {
			vv = append(vv, nil)
		}
		y, err := child(vv[n])
		if err != nil {
			return nil, err
		}
		vv[n] = y
		return vv, nil
	default:
		return nil, BadPath
	}
}

func isContainer(x interface{}) bool {
	switch x.(type) {
	case map[string]interface{}, Bindings, map[interface{}]interface{}, []interface{}:
		return true
	}
	return false
}

// Lookup follows the path into any value.
func Lookup(x interface{}, path interface{}) (interface{}, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return getIn(x, segs)
}
