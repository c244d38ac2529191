package core

import (
	"encoding/json"
	"errors"
	"testing"
)

type closer struct {
	closed int
}

func (c *closer) Close() error {
	c.closed++
	return nil
}

func TestStateResourcesAreSeparate(t *testing.T) {
	st := NewState(nil)

	if err := st.Set("$dom", "page"); err != nil {
		t.Fatal(err)
	}
	if err := st.Set("dom", "user data"); err != nil {
		t.Fatal(err)
	}

	if _, have := st.Bs["$dom"]; have {
		t.Fatal("resource leaked into bindings")
	}
	if r, _ := st.Resource("$dom"); r != "page" {
		t.Fatalf("resource %#v", r)
	}
	if v, _ := st.Get("dom"); v != "user data" {
		t.Fatalf("binding %#v", v)
	}

	js, err := json.Marshal(st)
	if err != nil {
		t.Fatal(err)
	}
	if string(js) != `{"dom":"user data"}` {
		t.Fatal(string(js))
	}
}

func TestStateResourcePaths(t *testing.T) {
	st := NewState(nil)
	if err := st.Set("$item.name", "x"); err != nil {
		t.Fatal(err)
	}
	if v, _ := st.Get("$item.name"); v != "x" {
		t.Fatalf("got %#v", v)
	}
}

func TestRelease(t *testing.T) {
	st := NewState(nil)
	c := &closer{}
	st.Acquire("$conn", c)
	if err := st.Release("$conn"); err != nil {
		t.Fatal(err)
	}
	if c.closed != 1 {
		t.Fatal(c.closed)
	}
	if _, have := st.Resource("$conn"); have {
		t.Fatal("still there")
	}
	// Releasing again is harmless.
	if err := st.Release("$conn"); err != nil {
		t.Fatal(err)
	}
}

func TestWithResource(t *testing.T) {
	st := NewState(nil)
	st.Acquire("$item", "outer")

	c := &closer{}
	boom := errors.New("boom")
	err := WithResource(st, "$item", c, func() error {
		if r, _ := st.Resource("$item"); r != c {
			t.Fatal("resource not acquired")
		}
		return boom
	})
	if err != boom {
		t.Fatalf("err %v", err)
	}
	if c.closed != 1 {
		t.Fatal("resource not released on error")
	}
	if r, _ := st.Resource("$item"); r != "outer" {
		t.Fatalf("previous resource not restored: %#v", r)
	}
}

func TestForget(t *testing.T) {
	st := NewState(Bindings{"x": 1})
	c := &closer{}
	st.Acquire("$item", c)
	st.Forget("$item")
	st.Forget("x")
	if _, have := st.Resource("$item"); have {
		t.Fatal("resource still there")
	}
	if c.closed != 0 {
		t.Fatal("forgotten resource was closed")
	}
	if len(st.Bs) != 0 {
		t.Fatalf("state %s", st)
	}
}

func TestForgetPath(t *testing.T) {
	st := NewState(Bindings{"cur": map[string]interface{}{"item": 2, "keep": 1}})
	st.Forget("cur.item")
	st.Forget("cur.nope.deeper")
	st.Forget("a[")
	if _, have := st.Get("cur.item"); have {
		t.Fatalf("state %s", st)
	}
	if v, _ := st.Get("cur.keep"); v != 1 {
		t.Fatalf("state %s", st)
	}
}
