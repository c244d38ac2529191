package cast

import (
	"context"
	"sort"
	"strconv"

	"github.com/Comcast/scanany/core"
)

type objectOp func(x interface{}) (interface{}, error)

// objectOps are available as "object.NAME" and "lodash.NAME".
var objectOps = map[string]objectOp{
	"keys": func(x interface{}) (interface{}, error) {
		ks, _, err := entries(x)
		return ks, err
	},
	"values": func(x interface{}) (interface{}, error) {
		_, vs, err := entries(x)
		return vs, err
	},
	"entries": pairs,
	"toPairs": pairs,
	"invert": func(x interface{}) (interface{}, error) {
		ks, vs, err := entries(x)
		if err != nil {
			return nil, err
		}
		acc := make(map[string]interface{}, len(ks))
		for i, k := range ks {
			s, err := text(vs[i])
			if err != nil {
				return nil, err
			}
			acc[s] = k
		}
		return acc, nil
	},
	"size": func(x interface{}) (interface{}, error) {
		switch vv := x.(type) {
		case string:
			return len([]rune(vv)), nil
		case nil:
			return 0, nil
		}
		ks, _, err := entries(x)
		return len(ks), err
	},
}

func objectRules() []*core.Rule {
	acc := make([]*core.Rule, 0, len(objectOps))
	for name, op := range objectOps {
		acc = append(acc, objectRule(name, op))
	}
	return acc
}

func objectRule(name string, op objectOp) *core.Rule {
	return &core.Rule{
		Names: []string{"object." + name, "lodash." + name},
		Kind:  core.ValueRule,
		Exec: func(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
			return op(carried)
		},
	}
}

// entries gives the keys (sorted) and the corresponding values of a
// map.  A list's keys are its indexes.
func entries(x interface{}) ([]interface{}, []interface{}, error) {
	if m, is := core.AsMap(x); is {
		ks := make([]string, 0, len(m))
		for k := range m {
			ks = append(ks, k)
		}
		sort.Strings(ks)
		keys := make([]interface{}, len(ks))
		vals := make([]interface{}, len(ks))
		for i, k := range ks {
			keys[i] = k
			vals[i] = m[k]
		}
		return keys, vals, nil
	}
	if xs, is := x.([]interface{}); is {
		keys := make([]interface{}, len(xs))
		for i := range xs {
			keys[i] = strconv.Itoa(i)
		}
		return keys, xs, nil
	}
	return nil, nil, &BadValue{"object", x}
}

func pairs(x interface{}) (interface{}, error) {
	ks, vs, err := entries(x)
	if err != nil {
		return nil, err
	}
	acc := make([]interface{}, len(ks))
	for i, k := range ks {
		acc[i] = []interface{}{k, vs[i]}
	}
	return acc, nil
}
