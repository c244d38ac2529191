package core

import (
	"context"
	"sync"
)

// Kind says what a Rule's handler returns.
type Kind int

const (
	// ContextRule handlers return the next context: the given
	// State, another State or Bindings to merge, or nil for no
	// change.
	ContextRule Kind = iota

	// ValueRule handlers return a plain value, which goes back to
	// the caller rather than into the State.
	ValueRule
)

func (k Kind) String() string {
	switch k {
	case ContextRule:
		return "context"
	case ValueRule:
		return "value"
	}
	return "unknown"
}

// Handler executes a command.  The payload is the command's payload,
// and carried is the value passed along by the caller (for example,
// the current element of an iteration).
type Handler func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error)

// Rule is a handler and the set of names that resolve to it.
type Rule struct {
	Names []string
	Kind  Kind
	Exec  Handler
}

// Has reports whether the rule claims the name.
func (r *Rule) Has(name string) bool {
	for _, n := range r.Names {
		if n == name {
			return true
		}
	}
	return false
}

// Runtime is what rule-sets see of the engine.
//
// A rule-set gets its Runtime when it's registered.  The engine does
// not keep track of the rule-set itself; it just holds the rules.
type Runtime interface {
	ResolveValue(raw interface{}, st *State) interface{}
	ExecuteOnce(ctx context.Context, cmd interface{}, st *State, carried interface{}) (interface{}, error)
	Execute(ctx context.Context, script interface{}, st *State) (*State, error)
}

// RuleSet is a collection of rules contributed by one provider.
type RuleSet struct {
	Name  string
	Rules []*Rule

	// Register, if not nil, is called once when the RuleSet is
	// registered.
	Register func(Runtime)
}

// Interpreter can compile and execute source code for rules defined
// in rule-set documents.
type Interpreter interface {
	// Compile can make something that helps when Exec()ing the
	// code later.
	Compile(ctx context.Context, code interface{}) (interface{}, error)

	// Exec executes the code.  The result of a previous Compile()
	// might be provided.
	Exec(ctx context.Context, rt Runtime, st *State, payload, carried interface{}, code, compiled interface{}) (interface{}, error)
}

// Registry maps command names to Rules.
//
// Rules are never removed.
type Registry struct {
	sync.RWMutex
	rules []*Rule
}

func NewRegistry() *Registry {
	return &Registry{
		rules: make([]*Rule, 0, 64),
	}
}

// Add appends the rules.
func (r *Registry) Add(rules ...*Rule) {
	r.Lock()
	r.rules = append(r.rules, rules...)
	r.Unlock()
}

// Find returns the one Rule that claims the name.
//
// If no rule claims the name, the error is a *NotImplemented.  If
// more than one does, the error is an *AmbiguousCommand.
func (r *Registry) Find(name string) (*Rule, error) {
	r.RLock()
	defer r.RUnlock()

	var found []*Rule
	for _, rule := range r.rules {
		if rule.Has(name) {
			found = append(found, rule)
		}
	}

	switch len(found) {
	case 0:
		return nil, &NotImplemented{Name: name}
	case 1:
		return found[0], nil
	default:
		groups := make([][]string, len(found))
		for i, rule := range found {
			groups[i] = append([]string(nil), rule.Names...)
		}
		return nil, &AmbiguousCommand{
			Name:   name,
			Groups: groups,
		}
	}
}

// Names lists every alias in the Registry, in registration order.
func (r *Registry) Names() []string {
	r.RLock()
	defer r.RUnlock()
	acc := make([]string, 0, len(r.rules)*2)
	for _, rule := range r.rules {
		acc = append(acc, rule.Names...)
	}
	return acc
}
