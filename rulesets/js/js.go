// Package js is the "js-plugin" rule-set: commands implemented by
// JavaScript code run in a Goja sandbox.
//
// The "js" command's payload is the code (or a map with "code" and
// "requires").  The code is the body of a function, and what it
// returns is the command's result.  See Interpreter.Exec for what
// the code can see.
//
// The Interpreter also serves rule-set documents whose rules have
// "interpreter: js".
package js

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/Comcast/scanany/core"
)

// Name is the catalog name of this rule-set.
const Name = "js-plugin"

type rules struct {
	rt core.Runtime
	i  *Interpreter

	// compiled caches programs by source.
	compiled sync.Map
}

// New makes a fresh instance of the rule-set that uses the given
// Interpreter.
func New(i *Interpreter) *core.RuleSet {
	if i == nil {
		i = NewInterpreter()
	}
	r := &rules{i: i}
	return &core.RuleSet{
		Name: "js",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: []*core.Rule{
			{
				// The result, a map or nothing, is merged
				// into the bindings.
				Names: []string{"js", "js.context"},
				Kind:  core.ContextRule,
				Exec:  r.exec,
			},
			{
				Names: []string{"js.value", "js.eval"},
				Kind:  core.ValueRule,
				Exec:  r.exec,
			},
		},
	}
}

// Loader makes a core.Loader for this rule-set.
func Loader(i *Interpreter) core.Loader {
	return func(ctx context.Context) (*core.RuleSet, error) {
		return New(i), nil
	}
}

func key(src interface{}) (string, error) {
	if s, is := src.(string); is {
		return s, nil
	}
	js, err := json.Marshal(src)
	if err != nil {
		return "", err
	}
	return string(js), nil
}

func (r *rules) compile(ctx context.Context, src interface{}) (interface{}, error) {
	k, err := key(src)
	if err != nil {
		return nil, err
	}
	if p, have := r.compiled.Load(k); have {
		return p, nil
	}
	p, err := r.i.Compile(ctx, src)
	if err != nil {
		return nil, err
	}
	r.compiled.Store(k, p)
	return p, nil
}

func (r *rules) exec(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	src := r.rt.ResolveValue(payload, st)
	if src == nil {
		return nil, &core.BadCommand{
			Command: payload,
			Reason:  "js needs code",
		}
	}
	p, err := r.compile(ctx, src)
	if err != nil {
		return nil, err
	}
	return r.i.Exec(ctx, r.rt, st, payload, carried, src, p)
}
