package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	. "github.com/Comcast/scanany/util/testutil"
)

// intoRule stores the carried value at the path given by the payload.
var intoRule = &Rule{
	Names: []string{"as", "into", "test.into"},
	Kind:  ContextRule,
	Exec: func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
		return st, st.Set(ResolveValue(payload, st), carried)
	},
}

func newTestEngine(t *testing.T, sets ...*RuleSet) *Engine {
	e := NewEngine(nil)
	if err := e.Register(sets...); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestResolveValue(t *testing.T) {
	st := NewState(Bindings{
		"a": map[string]interface{}{
			"b": []interface{}{"x", "y"},
		},
	})
	st.Acquire("$dom", "page")

	nested := map[string]interface{}{
		"outer": map[string]interface{}{"$ref": "a"},
	}

	tests := []struct {
		name string
		raw  interface{}
		want interface{}
	}{
		{"nil", nil, nil},
		{"empty", "", nil},
		{"ref", Dwimjs(`{"$ref":"a.b[1]"}`), "y"},
		{"ref list path", map[string]interface{}{"$ref": []interface{}{"a", "b", 0}}, "x"},
		{"ref missing", Dwimjs(`{"$ref":"a.c.d"}`), nil},
		{"ref resource", Dwimjs(`{"$ref":"$dom"}`), "page"},
		{"const", Dwimjs(`{"$const":{"$ref":"a"}}`), map[string]interface{}{"$ref": "a"}},
		{"string", "a", "a"},
		{"number", 42.0, 42.0},
		{"nested untouched", nested, nested},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveValue(tt.raw, st)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %s, want %s", JS(got), JS(tt.want))
			}
		})
	}
}

func TestResolveValueIdentity(t *testing.T) {
	raw := map[string]interface{}{"x": 1}
	got := ResolveValue(raw, NewState(nil))
	m, is := got.(map[string]interface{})
	if !is {
		t.Fatalf("got a %T", got)
	}
	m["y"] = 2
	if _, have := raw["y"]; !have {
		t.Fatal("didn't get the same map back")
	}
}

func TestExecuteOnceDispatch(t *testing.T) {
	var (
		hits   = map[string]int{}
		gotArg interface{}
		gotVal interface{}
	)
	count := func(name string) Handler {
		return func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
			hits[name]++
			gotArg = payload
			gotVal = carried
			return st, nil
		}
	}

	e := newTestEngine(t, &RuleSet{
		Name: "counting",
		Rules: []*Rule{
			{Names: []string{"one", "first"}, Exec: count("one")},
			{Names: []string{"two"}, Exec: count("two")},
		},
	})

	ctx := context.Background()
	st := NewState(nil)

	if _, err := e.ExecuteOnce(ctx, Dwimjs(`{"first":{"x":1}}`), st, "carried"); err != nil {
		t.Fatal(err)
	}
	if hits["one"] != 1 || hits["two"] != 0 {
		t.Fatalf("hits %v", hits)
	}
	if !reflect.DeepEqual(gotArg, Dwimjs(`{"x":1}`)) {
		t.Fatalf("payload %s", JS(gotArg))
	}
	if gotVal != "carried" {
		t.Fatalf("carried %#v", gotVal)
	}

	// A bare command's payload is its name.
	if _, err := e.ExecuteOnce(ctx, "two", st, nil); err != nil {
		t.Fatal(err)
	}
	if gotArg != "two" {
		t.Fatalf("payload %#v", gotArg)
	}
}

func TestExecuteOnceDeferred(t *testing.T) {
	e := newTestEngine(t, &RuleSet{Rules: []*Rule{intoRule}})
	ctx := context.Background()
	st := NewState(Bindings{
		"cmd": map[string]interface{}{"into": "x"},
	})

	if _, err := e.ExecuteOnce(ctx, Dwimjs(`{"$ref":"cmd"}`), st, 5); err != nil {
		t.Fatal(err)
	}
	if st.Bs["x"] != 5 {
		t.Fatalf("state %s", st)
	}

	if _, err := e.Execute(ctx, Dwimjs(`[{"$const":{"into":"y"}}]`), st); err != nil {
		t.Fatal(err)
	}
	if _, have := st.Bs["y"]; !have {
		t.Fatalf("state %s", st)
	}
}

func TestNotImplemented(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.ExecuteOnce(context.Background(), "unregistered-name", nil, nil)
	var ni *NotImplemented
	if !errors.As(err, &ni) {
		t.Fatalf("err %v", err)
	}
	if ni.Name != "unregistered-name" {
		t.Fatal(ni.Name)
	}
}

func TestAmbiguousCommand(t *testing.T) {
	handler := func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
		return "handled", nil
	}

	dom := &RuleSet{
		Name:  "dom",
		Rules: []*Rule{{Names: []string{"text", "$.text"}, Kind: ValueRule, Exec: handler}},
	}
	pdf := &RuleSet{
		Name:  "pdf",
		Rules: []*Rule{{Names: []string{"text", "pdf.text"}, Kind: ValueRule, Exec: handler}},
	}

	e := newTestEngine(t, dom, pdf)
	ctx := context.Background()

	_, err := e.ExecuteOnce(ctx, "text", nil, nil)
	var ac *AmbiguousCommand
	if !errors.As(err, &ac) {
		t.Fatalf("err %v", err)
	}
	want := [][]string{{"text", "$.text"}, {"text", "pdf.text"}}
	if !reflect.DeepEqual(ac.Groups, want) {
		t.Fatalf("groups %v", ac.Groups)
	}

	// The distinct aliases still work.
	for _, name := range []string{"$.text", "pdf.text"} {
		x, err := e.ExecuteOnce(ctx, name, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if x != "handled" {
			t.Fatal(x)
		}
	}
}

func TestExecuteEmpty(t *testing.T) {
	e := NewEngine(nil)
	st := NewState(Bindings{"a": 1})
	got, err := e.Execute(context.Background(), []interface{}{}, st)
	if err != nil {
		t.Fatal(err)
	}
	if got != st || !reflect.DeepEqual(got.Bs, Bindings{"a": 1}) {
		t.Fatalf("state %s", got)
	}
}

func TestExecuteSequential(t *testing.T) {
	var order []string
	appender := func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
		s := payload.(string)
		order = append(order, s)
		prev, _ := st.Bs["trail"].(string)
		return Bindings{"trail": prev + s}, nil
	}
	e := newTestEngine(t, &RuleSet{Rules: []*Rule{{Names: []string{"add"}, Exec: appender}}})
	ctx := context.Background()

	script := Dwimjs(`[{"add":"a"},{"add":"b"}]`)
	whole, err := e.Execute(ctx, script, nil)
	if err != nil {
		t.Fatal(err)
	}

	first, err := e.Execute(ctx, Dwimjs(`[{"add":"a"}]`), nil)
	if err != nil {
		t.Fatal(err)
	}
	composed, err := e.Execute(ctx, Dwimjs(`[{"add":"b"}]`), first)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(whole.Bs, composed.Bs) {
		t.Fatalf("%s != %s", whole, composed)
	}
	if whole.Bs["trail"] != "ab" {
		t.Fatalf("state %s", whole)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "a", "b"}) {
		t.Fatalf("order %v", order)
	}
}

func TestIntoScenarios(t *testing.T) {
	e := newTestEngine(t, &RuleSet{Rules: []*Rule{intoRule}})
	ctx := context.Background()

	x, err := e.ExecuteOnce(ctx, Dwimjs(`{"into":["x"]}`), NewState(nil), 5)
	if err != nil {
		t.Fatal(err)
	}
	if got := x.(*State).Bs; !reflect.DeepEqual(got, Bindings{"x": 5}) {
		t.Fatalf("state %s", JS(got))
	}

	x, err = e.ExecuteOnce(ctx, Dwimjs(`{"as":["a","b"]}`), NewState(nil), "v")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := x.(*State).Get("a.b"); v != "v" {
		t.Fatalf("state %s", x)
	}
}

func TestValueRuleLeavesState(t *testing.T) {
	e := newTestEngine(t, &RuleSet{Rules: []*Rule{{
		Names: []string{"seven"},
		Kind:  ValueRule,
		Exec: func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
			return map[string]interface{}{"clobber": true}, nil
		},
	}}})
	ctx := context.Background()
	st := NewState(Bindings{"keep": true})

	x, err := e.ExecuteOnce(ctx, "seven", st, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, is := x.(map[string]interface{}); !is {
		t.Fatalf("got a %T", x)
	}

	got, err := e.Execute(ctx, "seven", st)
	if err != nil {
		t.Fatal(err)
	}
	if got != st || !reflect.DeepEqual(st.Bs, Bindings{"keep": true}) {
		t.Fatalf("state %s", got)
	}
}

func TestContextRuleResults(t *testing.T) {
	results := map[string]interface{}{
		"nil":   nil,
		"map":   map[string]interface{}{"b": 2, "a": "new"},
		"state": NewState(Bindings{"c": 3}),
		"bad":   42,
	}
	rules := make([]*Rule, 0, len(results))
	for name, result := range results {
		result := result
		rules = append(rules, &Rule{
			Names: []string{name},
			Exec: func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
				return result, nil
			},
		})
	}
	e := newTestEngine(t, &RuleSet{Rules: rules})
	ctx := context.Background()

	st, err := e.Execute(ctx, []interface{}{"nil", "map", "state"}, NewState(Bindings{"a": "old"}))
	if err != nil {
		t.Fatal(err)
	}
	want := Bindings{"a": "new", "b": 2, "c": 3}
	if !reflect.DeepEqual(st.Bs, want) {
		t.Fatalf("state %s", st)
	}

	_, err = e.Execute(ctx, "bad", st)
	var br *BadResult
	if !errors.As(err, &br) {
		t.Fatalf("err %v", err)
	}
}

func TestHandlerFailure(t *testing.T) {
	boom := errors.New("boom")
	e := newTestEngine(t, &RuleSet{Rules: []*Rule{
		{
			Names: []string{"fail"},
			Exec: func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
				return nil, boom
			},
		},
		{
			Names: []string{"outer"},
			Exec: func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
				return nil, errors.New("never")
			},
		},
	}})
	ctx := context.Background()

	var after bool
	e.Register(&RuleSet{Rules: []*Rule{{
		Names: []string{"after"},
		Exec: func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
			after = true
			return st, nil
		},
	}}})

	_, err := e.Execute(ctx, []interface{}{"fail", "after"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("err %v", err)
	}
	var hf *HandlerFailure
	if !errors.As(err, &hf) || hf.Name != "fail" {
		t.Fatalf("err %v", err)
	}
	if after {
		t.Fatal("script continued after failure")
	}
}

func TestNestedErrorsNotRewrapped(t *testing.T) {
	var rt Runtime
	e := newTestEngine(t, &RuleSet{
		Register: func(r Runtime) { rt = r },
		Rules: []*Rule{{
			Names: []string{"outer"},
			Exec: func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
				return rt.ExecuteOnce(ctx, "missing", st, nil)
			},
		}},
	})
	_, err := e.ExecuteOnce(context.Background(), "outer", nil, nil)
	if _, is := err.(*NotImplemented); !is {
		t.Fatalf("err %#v", err)
	}
}

func TestRegisterCallsRegister(t *testing.T) {
	var got Runtime
	e := newTestEngine(t, &RuleSet{
		Name:     "callback",
		Register: func(rt Runtime) { got = rt },
	})
	if got != e {
		t.Fatal("Register wasn't given the engine")
	}
}

func TestRegisterBadRule(t *testing.T) {
	e := NewEngine(nil)
	err := e.Register(&RuleSet{Name: "bad", Rules: []*Rule{{Names: []string{"x"}}}})
	if _, is := err.(*BadRule); !is {
		t.Fatalf("err %v", err)
	}
	if _, err = e.ExecuteOnce(context.Background(), "x", nil, nil); err == nil {
		t.Fatal("bad rule was registered")
	}
}

func TestBadCommands(t *testing.T) {
	e := NewEngine(nil)
	ctx := context.Background()
	for _, cmd := range []interface{}{
		42,
		Dwimjs(`{"a":1,"b":2}`),
		Dwimjs(`{"$const":{"$ref":"x"}}`),
	} {
		_, err := e.ExecuteOnce(ctx, cmd, nil, nil)
		if _, is := err.(*BadCommand); !is {
			t.Fatalf("%s: err %v", JS(cmd), err)
		}
	}
}
