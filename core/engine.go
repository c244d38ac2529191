/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"context"
	"encoding/json"
	"log"
	"sync"
)

// Engine dispatches commands to rules.
//
// All of an Engine's state (its Registry, its Catalog, and the set of
// rule-sets it has loaded) belongs to that Engine, so independent
// Engines don't interfere with each other.
type Engine struct {
	// Debug turns on some logging.
	Debug bool

	// Catalog resolves short rule-set names for Use.
	Catalog *Catalog

	// Interpreters compile and execute source-backed rules in
	// rule-set documents.
	Interpreters map[string]Interpreter

	// Fetcher obtains rule-set documents given their URLs.
	Fetcher Fetcher

	// Cache, if not nil, keeps fetched rule-set documents by name.
	Cache Cache

	// Decoder parses a rule-set document.  Defaults to JSON.
	Decoder func([]byte) (interface{}, error)

	registry *Registry

	// loadMu serializes Use and Install.
	loadMu sync.Mutex
	loaded map[string]bool
}

// NewEngine makes an Engine with only its own rules ("use" and
// "install") registered.
func NewEngine(catalog *Catalog) *Engine {
	if catalog == nil {
		catalog = NewCatalog()
	}
	e := &Engine{
		Catalog:      catalog,
		Interpreters: make(map[string]Interpreter),
		Fetcher:      MakeFetcher("."),
		Decoder:      decodeJSON,
		registry:     NewRegistry(),
		loaded:       make(map[string]bool),
	}
	e.registry.Add(e.ownRules()...)
	return e
}

func decodeJSON(bs []byte) (interface{}, error) {
	var x interface{}
	if err := json.Unmarshal(bs, &x); err != nil {
		return nil, err
	}
	return x, nil
}

func (e *Engine) logf(format string, args ...interface{}) {
	if e.Debug {
		log.Printf("Engine."+format, args...)
	}
}

// Registry gives access to the Engine's rules.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// ownRules are the rules the Engine provides itself.
func (e *Engine) ownRules() []*Rule {
	return []*Rule{
		{
			Names: []string{"use", "core.use"},
			Kind:  ContextRule,
			Exec: func(ctx context.Context, payload interface{}, st *State, _ interface{}) (interface{}, error) {
				refs, err := ParseRefs(e.ResolveValue(payload, st))
				if err != nil {
					return nil, err
				}
				return st, e.Use(ctx, refs...)
			},
		},
		{
			Names: []string{"install", "core.install"},
			Kind:  ContextRule,
			Exec: func(ctx context.Context, payload interface{}, st *State, _ interface{}) (interface{}, error) {
				refs, err := ParseRefs(e.ResolveValue(payload, st))
				if err != nil {
					return nil, err
				}
				for _, ref := range refs {
					if err := e.Install(ctx, ref); err != nil {
						return nil, err
					}
				}
				return st, nil
			},
		},
	}
}

// Register adds the rules of the given RuleSets.  Each RuleSet's
// Register function (if any) is called with this Engine first.
func (e *Engine) Register(sets ...*RuleSet) error {
	for _, set := range sets {
		for _, r := range set.Rules {
			if r == nil || len(r.Names) == 0 || r.Exec == nil {
				var names []string
				if r != nil {
					names = r.Names
				}
				return &BadRule{RuleSet: set.Name, Names: names}
			}
		}
		if set.Register != nil {
			set.Register(e)
		}
		e.registry.Add(set.Rules...)
		e.logf("Register %s (%d rules)", set.Name, len(set.Rules))
	}
	return nil
}

// ResolveValue implements Runtime.  See the function of the same
// name.
func (e *Engine) ResolveValue(raw interface{}, st *State) interface{} {
	return ResolveValue(raw, st)
}

// command turns what's given to ExecuteOnce into a Command.
func (e *Engine) command(x interface{}, st *State) (Command, error) {
	c, is := x.(Command)
	if !is {
		x = e.ResolveValue(x, st)
		var err error
		if c, err = ParseCommand(x); err != nil {
			return c, err
		}
	}
	if c.Deferred() {
		resolved := e.ResolveValue(c.deferred, st)
		var err error
		if c, err = ParseCommand(resolved); err != nil {
			return c, err
		}
		if c.Deferred() {
			return c, &BadCommand{resolved, "resolves to another sentinel"}
		}
	}
	return c, nil
}

// ExecuteOnce dispatches a single command.
//
// The command can be a Command or something that ParseCommand
// understands (possibly a $ref or $const that resolves to one).
//
// For a ContextRule, the result is the State (possibly updated by a
// merge).  For a ValueRule, the result is whatever the handler
// returned.
func (e *Engine) ExecuteOnce(ctx context.Context, cmd interface{}, st *State, carried interface{}) (interface{}, error) {
	if st == nil {
		st = NewState(nil)
	}
	if st.Bs == nil {
		st.Bs = NewBindings()
	}

	c, err := e.command(cmd, st)
	if err != nil {
		return nil, err
	}

	rule, err := e.registry.Find(c.Name)
	if err != nil {
		return nil, err
	}

	e.logf("ExecuteOnce %s", c.Name)

	x, err := rule.Exec(ctx, c.Payload, st, carried)
	if err != nil {
		if isCoreError(err) {
			return nil, err
		}
		return nil, &HandlerFailure{Name: c.Name, Err: err}
	}

	if rule.Kind == ValueRule {
		return x, nil
	}

	switch vv := x.(type) {
	case nil:
	case *State:
		st.merge(vv)
	default:
		m, is := AsMap(x)
		if !is {
			return nil, &BadResult{Name: c.Name, Result: x}
		}
		for k, v := range m {
			st.Bs[k] = v
		}
	}
	return st, nil
}

// Execute runs the script against the State, which is created if nil.
//
// Each command sees the State left by the previous one.  A command
// that returns a plain value leaves the State alone.
func (e *Engine) Execute(ctx context.Context, script interface{}, st *State) (*State, error) {
	s, err := ParseScript(script)
	if err != nil {
		return nil, err
	}
	if st == nil {
		st = NewState(nil)
	}
	for _, c := range s {
		x, err := e.ExecuteOnce(ctx, c, st, nil)
		if err != nil {
			return st, err
		}
		if next, is := x.(*State); is && next != nil {
			st = next
		}
	}
	return st, nil
}
