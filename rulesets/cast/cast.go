// Package cast is the "cast-plugin" rule-set: conversions of the
// carried value (numbers, strings, JSON, dates, hashes) and
// projections out of it.
//
// All of these rules are value rules.  They operate on the carried
// value, so they're typically used in a "transform".
package cast

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
	"github.com/google/uuid"
	"github.com/gorhill/cronexpr"
)

// Name is the catalog name of this rule-set.
const Name = "cast-plugin"

// BadValue is returned when the carried value can't be converted.
type BadValue struct {
	Rule  string
	Value interface{}
}

func (e *BadValue) Error() string {
	return fmt.Sprintf("%s can't convert %#v", e.Rule, e.Value)
}

// Load is a core.Loader for this rule-set.
func Load(ctx context.Context) (*core.RuleSet, error) {
	return New(), nil
}

type rules struct {
	rt core.Runtime
}

func value(names []string, f core.Handler) *core.Rule {
	return &core.Rule{
		Names: names,
		Kind:  core.ValueRule,
		Exec:  f,
	}
}

// New makes a fresh instance of the rule-set.
func New() *core.RuleSet {
	r := &rules{}
	rs := []*core.Rule{
		value([]string{"uuid", "cast.uuid"}, r.uuid),
		value([]string{"md5", "cast.md5"}, r.md5),
		value([]string{"toString", "cast.toString"}, r.toString),
		value([]string{"json.parse"}, r.jsonParse),
		value([]string{"json.stringify"}, r.jsonStringify),
		value([]string{"float", "cast.float"}, r.float),
		value([]string{"int", "cast.int"}, r.int),
		value([]string{"boolean", "cast.boolean"}, r.boolean),
		value([]string{"date", "cast.date"}, r.date),
		value([]string{"date.format", "moment.format"}, r.dateFormat),
		value([]string{"date.parse", "moment.date"}, r.dateParse),
		value([]string{"get", "project"}, r.get),
		value([]string{"cron.next"}, r.cronNext),
	}
	rs = append(rs, stringRules()...)
	rs = append(rs, objectRules()...)

	return &core.RuleSet{
		Name: "cast",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: rs,
	}
}

// bare reports whether the payload is just the command's own name,
// which is what a command given as a plain string has.
func bare(payload interface{}, names ...string) bool {
	s, is := payload.(string)
	if !is {
		return false
	}
	for _, name := range names {
		if s == name {
			return true
		}
	}
	return false
}

func (r *rules) uuid(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	return uuid.NewString(), nil
}

// text renders the value as a string.  Strings are themselves, and
// other values are JSON.
func text(x interface{}) (string, error) {
	if s, err := ruleutil.Text(x); err == nil {
		return s, nil
	}
	switch vv := x.(type) {
	case float64:
		return strconv.FormatFloat(vv, 'f', -1, 64), nil
	case time.Time:
		return vv.Format(time.RFC3339Nano), nil
	}
	js, err := json.Marshal(x)
	if err != nil {
		return "", err
	}
	return string(js), nil
}

func (r *rules) md5(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	s, err := text(carried)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:]), nil
}

func (r *rules) toString(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	if carried == nil {
		return nil, &BadValue{"toString", carried}
	}
	return text(carried)
}

func (r *rules) jsonParse(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	s, err := ruleutil.Text(carried)
	if err != nil {
		return nil, &BadValue{"json.parse", carried}
	}
	var x interface{}
	if err = json.Unmarshal([]byte(s), &x); err != nil {
		return nil, err
	}
	return x, nil
}

func (r *rules) jsonStringify(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	js, err := json.MarshalIndent(carried, "", " ")
	if err != nil {
		return nil, err
	}
	return string(js), nil
}

var (
	floatPrefix = regexp.MustCompile(`^\s*[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)
	intPrefix   = regexp.MustCompile(`^\s*[-+]?\d+`)
)

// number parses the longest numeric prefix, so "12px" is 12.
func number(name string, x interface{}, prefix *regexp.Regexp) (float64, error) {
	switch vv := x.(type) {
	case float64:
		return vv, nil
	case int:
		return float64(vv), nil
	case int64:
		return float64(vv), nil
	}
	s, err := ruleutil.Text(x)
	if err != nil {
		return 0, &BadValue{name, x}
	}
	p := prefix.FindString(s)
	if p == "" {
		return 0, &BadValue{name, x}
	}
	return strconv.ParseFloat(strings.TrimSpace(p), 64)
}

func (r *rules) float(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	return number("float", carried, floatPrefix)
}

func (r *rules) int(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	f, err := number("int", carried, intPrefix)
	if err != nil {
		return nil, err
	}
	if f < math.MinInt64 || math.MaxInt64 <= f {
		return nil, &BadValue{"int", carried}
	}
	return int(f), nil
}

func (r *rules) boolean(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	return fmt.Sprint(carried) == "true", nil
}

// get returns the value at the path given by the payload.  "project"
// with a list of paths builds a map with just those paths.
func (r *rules) get(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	payload = r.rt.ResolveValue(payload, st)
	switch vv := payload.(type) {
	case string:
		v, _ := core.Lookup(carried, vv)
		return v, nil
	case []interface{}:
		acc := core.NewBindings()
		for _, p := range vv {
			v, _ := core.Lookup(carried, p)
			if err := acc.Set(p, v); err != nil {
				return nil, err
			}
		}
		return map[string]interface{}(acc), nil
	}
	return nil, &core.BadCommand{
		Command: payload,
		Reason:  "get needs a path or a list of paths",
	}
}

// NotCron is returned by cron.next when there's no expression.
var NotCron = errors.New("not a cron expression")

// cronNext gives the next time (RFC3339Nano) that the cron expression
// matches.  The expression is the payload or else the carried value.
func (r *rules) cronNext(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	x := carried
	if !bare(payload, "cron.next") {
		x = r.rt.ResolveValue(payload, st)
	}
	s, is := x.(string)
	if !is {
		return nil, NotCron
	}
	c, err := cronexpr.Parse(s)
	if err != nil {
		return nil, err
	}
	return c.Next(time.Now()).UTC().Format(time.RFC3339Nano), nil
}
