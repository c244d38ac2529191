package core

import (
	"reflect"
	"testing"

	. "github.com/Comcast/scanany/util/testutil"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		path interface{}
		want []interface{}
		bad  bool
	}{
		{path: "a", want: []interface{}{"a"}},
		{path: "a.b.c", want: []interface{}{"a", "b", "c"}},
		{path: "a[0].b", want: []interface{}{"a", 0, "b"}},
		{path: "a[1][2]", want: []interface{}{"a", 1, 2}},
		{path: "a['k']", want: []interface{}{"a", "k"}},
		{path: "$item.name", want: []interface{}{"$item", "name"}},
		{path: []interface{}{"a", "b.c", 2.0}, want: []interface{}{"a", "b.c", 2}},
		{path: []string{"x"}, want: []interface{}{"x"}},
		{path: "", bad: true},
		{path: []interface{}{}, bad: true},
		{path: "a[0", bad: true},
		{path: true, bad: true},
	}

	for _, tt := range tests {
		got, err := ParsePath(tt.path)
		if tt.bad {
			if err == nil {
				t.Fatalf("%#v: expected an error", tt.path)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%#v: %v", tt.path, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%#v: got %#v", tt.path, got)
		}
	}
}

func TestBindingsSet(t *testing.T) {
	bs := NewBindings()

	if err := bs.Set("a.b", 1); err != nil {
		t.Fatal(err)
	}
	if err := bs.Set([]interface{}{"list", 2}, "z"); err != nil {
		t.Fatal(err)
	}
	if err := bs.Set("list[0]", "x"); err != nil {
		t.Fatal(err)
	}
	if err := bs.Set("a.c[1].d", true); err != nil {
		t.Fatal(err)
	}

	want := Dwimjs(`{"a":{"b":1,"c":[null,{"d":true}]},"list":["x",null,"z"]}`)
	got := Dwimjs(JS(bs))
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %s", JS(bs))
	}

	if v, have := bs.Get("a.c[1].d"); !have || v != true {
		t.Fatalf("got %#v %v", v, have)
	}
	if _, have := bs.Get("a.nope"); have {
		t.Fatal("found something that isn't there")
	}
	if _, have := bs.Get("list[9]"); have {
		t.Fatal("found something past the end")
	}
}

func TestBindingsSetOverwritesScalars(t *testing.T) {
	bs := Bindings{"a": "scalar"}
	if err := bs.Set("a.b", 1); err != nil {
		t.Fatal(err)
	}
	if v, _ := bs.Get("a.b"); v != 1 {
		t.Fatalf("got %s", JS(bs))
	}
}

func TestBindingsSetBadIndex(t *testing.T) {
	bs := Bindings{"list": []interface{}{}}
	if err := bs.Set("list.name", 1); err == nil {
		t.Fatal("expected an error")
	}
}

func TestLookup(t *testing.T) {
	x := Dwimjs(`{"a":[{"b":"c"}]}`)
	if v, have := Lookup(x, "a[0].b"); !have || v != "c" {
		t.Fatalf("got %#v %v", v, have)
	}
	if _, have := Lookup("scalar", "a"); have {
		t.Fatal("found something in a scalar")
	}
}
