// Package base is the "core-plugin" rule-set: logging, storing values,
// transforming values, applying sub-scripts, and iteration.
package base

import (
	"context"
	"fmt"
	"log"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
)

// Name is the catalog name of this rule-set.
const Name = "core-plugin"

const (
	// ItemResource is the default name of the current element in
	// "each".
	ItemResource = "$item"

	// IndexResource is the default name of the current index in
	// "each".
	IndexResource = "$indexedBy"
)

type rules struct {
	rt core.Runtime

	// Logger, if not nil, receives "log" output.
	logger *log.Logger
}

// New makes a fresh instance of the rule-set.
func New() *core.RuleSet {
	r := &rules{}
	return r.ruleSet()
}

// NewWithLogger is New with a specific logger for the "log" rule.
func NewWithLogger(l *log.Logger) *core.RuleSet {
	r := &rules{logger: l}
	return r.ruleSet()
}

// Load is a core.Loader for this rule-set.
func Load(ctx context.Context) (*core.RuleSet, error) {
	return New(), nil
}

func (r *rules) ruleSet() *core.RuleSet {
	return &core.RuleSet{
		Name: "core",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: []*core.Rule{
			{Names: []string{"log", "core.log"}, Kind: core.ContextRule, Exec: r.log},
			{Names: []string{"map", "core.map"}, Kind: core.ContextRule, Exec: r.mapInto},
			{Names: []string{"transform", "core.transform"}, Kind: core.ValueRule, Exec: r.transform},
			{Names: []string{"return", "core.return"}, Kind: core.ContextRule, Exec: r.ret},
			{Names: []string{"as", "into", "core.into"}, Kind: core.ContextRule, Exec: r.into},
			{Names: []string{"apply", "core.apply"}, Kind: core.ContextRule, Exec: r.apply},
			{Names: []string{"each", "core.each"}, Kind: core.ContextRule, Exec: r.each},
		},
	}
}

func (r *rules) printf(format string, args ...interface{}) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// transformed runs the item's "transform", if any, on the value.
func (r *rules) transformed(ctx context.Context, item interface{}, st *core.State, v interface{}) (interface{}, error) {
	t, have := ruleutil.Field(item, "transform")
	if !have {
		return v, nil
	}
	return r.rt.ExecuteOnce(ctx, core.Keyed("transform", t), st, v)
}

func (r *rules) log(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	items := core.AsList(payload)
	vals := make([]interface{}, 0, len(items))
	for _, item := range items {
		v, err := r.transformed(ctx, item, st, r.rt.ResolveValue(item, st))
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	r.printf("%s", fmt.Sprintln(vals...))
	return st, nil
}

func (r *rules) mapInto(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	for _, item := range core.AsList(payload) {
		v := carried
		if m, is := core.AsMap(item); is && core.IsSentinel(m) {
			v = r.rt.ResolveValue(m, st)
		}
		v, err := r.transformed(ctx, item, st, v)
		if err != nil {
			return nil, err
		}
		into := ruleutil.Resolved(r.rt, st, item, "into", "as")
		if into == nil {
			return nil, &core.BadCommand{
				Command: item,
				Reason:  "map needs an into",
			}
		}
		if st, err = ruleutil.Into(ctx, r.rt, st, item, "", v); err != nil {
			return nil, err
		}
	}
	return st, nil
}

// transform chains the value through the commands given by the
// payload.  The payload is a command name, a map with an "apply", or
// a command or list of commands.
func (r *rules) transform(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	payload = r.rt.ResolveValue(payload, st)

	var steps interface{} = payload
	if apply, have := ruleutil.Field(payload, "apply"); have {
		steps = r.rt.ResolveValue(apply, st)
	}

	script, err := core.ParseScript(steps)
	if err != nil {
		return nil, err
	}

	v := carried
	for _, c := range script {
		if v, err = r.rt.ExecuteOnce(ctx, c, st, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// ret makes the subtree at the given path the entire context.
func (r *rules) ret(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	path := r.rt.ResolveValue(payload, st)
	x, _ := st.Get(path)
	m, is := core.AsMap(x)
	if !is {
		return nil, &core.BadResult{
			Name:   "return",
			Result: x,
		}
	}
	st.Bs = core.Bindings(m).Copy()
	return st, nil
}

func (r *rules) into(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	path := r.rt.ResolveValue(payload, st)
	if path == nil {
		return nil, core.BadPath
	}
	if err := st.Set(path, carried); err != nil {
		return nil, err
	}
	return st, nil
}

func (r *rules) apply(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	return ruleutil.Apply(ctx, r.rt, st, payload, carried)
}

// each executes "apply" for every element of "in".  The element and
// its index are available (by default) as $item and $indexedBy.  The
// results of the last command for every element are collected and
// stored "into", if given.
func (r *rules) each(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	var (
		coll      = core.AsList(ruleutil.Resolved(r.rt, st, payload, "in"))
		as        = ruleutil.String(r.rt, st, payload, ItemResource, "as")
		indexedBy = ruleutil.String(r.rt, st, payload, IndexResource, "indexed-by", "indexedBy")
		apply     = ruleutil.Resolved(r.rt, st, payload, "apply")
		into      = ruleutil.Resolved(r.rt, st, payload, "into")
	)

	script, err := core.ParseScript(apply)
	if err != nil {
		return nil, err
	}

	asScratch, err := scratch(st, as)
	if err != nil {
		return nil, err
	}
	indexScratch, err := scratch(st, indexedBy)
	if err != nil {
		return nil, err
	}

	mapped := make([]interface{}, 0, len(coll))
	for j, item := range coll {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err = st.Set(as, item); err != nil {
			return nil, err
		}
		if err = st.Set(indexedBy, j); err != nil {
			return nil, err
		}

		var v interface{} = map[string]interface{}{}
		for _, c := range script {
			x, err := r.rt.ExecuteOnce(ctx, c, st, item)
			if err != nil {
				return nil, err
			}
			v = x
		}
		if s, is := v.(*core.State); is {
			v = snapshot(s.Bs)
		}
		mapped = append(mapped, v)

		if err = indexScratch.restore(st); err != nil {
			return nil, err
		}
		if err = asScratch.restore(st); err != nil {
			return nil, err
		}
	}

	if into == nil {
		return st, nil
	}
	return ruleutil.Into(ctx, r.rt, st, payload, "", mapped)
}

// snapshot copies the bindings deeply when they survive a JSON round
// trip and shallowly when they don't (a loaded document, say).
func snapshot(bs core.Bindings) interface{} {
	if x, err := core.Canonicalize(bs); err == nil {
		return x
	}
	return map[string]interface{}(bs.Copy())
}

// scratchPath is where "each" puts something temporarily.
type scratchPath struct {
	path interface{}

	// prev is what was at the path before, if had.
	prev interface{}
	had  bool

	// created is the shortest prefix of the path that didn't exist.
	created []interface{}
}

func scratch(st *core.State, path string) (*scratchPath, error) {
	segs, err := core.ParsePath(path)
	if err != nil {
		return nil, err
	}
	sp := &scratchPath{path: segs}
	sp.prev, sp.had = st.Get(segs)
	if !sp.had {
		for i := 1; i <= len(segs); i++ {
			if _, have := st.Get(segs[:i]); !have {
				sp.created = segs[:i]
				break
			}
		}
	}
	return sp, nil
}

// restore puts back what was at the path before.
func (sp *scratchPath) restore(st *core.State) error {
	if sp.had {
		return st.Set(sp.path, sp.prev)
	}
	if sp.created != nil {
		st.Forget(sp.created)
	}
	return nil
}
