// Package ruleutil has helpers that most rule-sets need: reading
// fields out of a payload, storing a result "into" the State, and
// coercing values to text.
package ruleutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Comcast/scanany/core"
)

// Field returns the first of the given keys present in the payload,
// which should be a map.
func Field(payload interface{}, keys ...string) (interface{}, bool) {
	m, is := core.AsMap(payload)
	if !is || core.IsSentinel(m) {
		return nil, false
	}
	for _, k := range keys {
		if v, have := m[k]; have {
			return v, true
		}
	}
	return nil, false
}

// Resolved is Field followed by ResolveValue.
func Resolved(rt core.Runtime, st *core.State, payload interface{}, keys ...string) interface{} {
	x, _ := Field(payload, keys...)
	return rt.ResolveValue(x, st)
}

// String is Resolved for a string field.  Anything other than a
// string gives the default.
func String(rt core.Runtime, st *core.State, payload interface{}, def string, keys ...string) string {
	if s, is := Resolved(rt, st, payload, keys...).(string); is && s != "" {
		return s
	}
	return def
}

// Number is Resolved for a numeric field.  JSON gives float64, and
// YAML can give int, int64, or uint64.
func Number(rt core.Runtime, st *core.State, payload interface{}, keys ...string) (float64, bool) {
	switch n := Resolved(rt, st, payload, keys...).(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// Millis is Number for a duration in milliseconds.  Anything other
// than a number gives the default.
func Millis(rt core.Runtime, st *core.State, payload interface{}, def time.Duration, keys ...string) time.Duration {
	if ms, is := Number(rt, st, payload, keys...); is {
		return time.Duration(ms * float64(time.Millisecond))
	}
	return def
}

// Into stores the value with an "into" command.  The path comes from
// the payload's "into" or "as" field, or def if neither is present.
func Into(ctx context.Context, rt core.Runtime, st *core.State, payload interface{}, def string, v interface{}) (*core.State, error) {
	var into interface{} = def
	if x := Resolved(rt, st, payload, "into", "as"); x != nil {
		into = x
	}
	x, err := rt.ExecuteOnce(ctx, core.Keyed("into", into), st, v)
	if err != nil {
		return nil, err
	}
	if next, is := x.(*core.State); is {
		return next, nil
	}
	return st, nil
}

// Apply executes the commands (a script or a single command) with
// the carried value, threading the State.
func Apply(ctx context.Context, rt core.Runtime, st *core.State, apply interface{}, carried interface{}) (*core.State, error) {
	script, err := core.ParseScript(apply)
	if err != nil {
		return nil, err
	}
	for _, c := range script {
		x, err := rt.ExecuteOnce(ctx, c, st, carried)
		if err != nil {
			return nil, err
		}
		if next, is := x.(*core.State); is {
			st = next
		}
	}
	return st, nil
}

// NotText is returned by Text for values that aren't text.
var NotText = errors.New("not text")

// Text coerces strings, bytes, and Stringers to a string.
func Text(x interface{}) (string, error) {
	switch vv := x.(type) {
	case string:
		return vv, nil
	case []byte:
		return string(vv), nil
	case fmt.Stringer:
		return vv.String(), nil
	case nil:
		return "", NotText
	}
	return "", fmt.Errorf("%w: %T", NotText, x)
}
