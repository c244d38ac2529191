package dom

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/base"
	. "github.com/Comcast/scanany/util/testutil"
)

const page = `<html><head><title>Things</title></head><body>
<ul id="things">
  <li class="thing first" data-id="1"><a href="/a">A</a></li>
  <li class="thing" data-id="2"><a href="/b">B</a></li>
</ul>
</body></html>`

func engine(t *testing.T, sets ...*core.RuleSet) *core.Engine {
	e := core.NewEngine(nil)
	if err := e.Register(append([]*core.RuleSet{base.New(), New()}, sets...)...); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestScrape(t *testing.T) {
	e := engine(t)
	st := core.NewState(core.Bindings{"page": page})
	script := Dwimjs(`[
          {"load":{"$ref":"page"}},
          {"once":{"select":"title","apply":[{"transform":"text","into":"title"}]}},
          {"once":{"select":"li.first","apply":[
              {"transform":"classes","into":"first.classes"},
              {"transform":{"attributes":["data-id","nope"]},"into":"first.attrs"},
              {"transform":"html","into":"first.html"}]}},
          {"all":{"select":"li","into":"$items"}},
          {"each":{"in":{"$ref":"$items"},"apply":[{"transform":"text"}],"into":"texts"}}
        ]`)

	st, err := e.Execute(context.Background(), script, st)
	if err != nil {
		t.Fatal(err)
	}

	if title, _ := st.Get("title"); title != "Things" {
		t.Fatalf("state %s", st)
	}
	classes, _ := st.Get("first.classes")
	if !reflect.DeepEqual(classes, []interface{}{"thing", "first"}) {
		t.Fatalf("classes %#v", classes)
	}
	attrs, _ := st.Get("first.attrs")
	if !reflect.DeepEqual(attrs, map[string]interface{}{"data-id": "1", "nope": nil}) {
		t.Fatalf("attrs %#v", attrs)
	}
	html, _ := st.Get("first.html")
	if s, _ := html.(string); !strings.HasPrefix(s, `<li class="thing first" data-id="1">`) {
		t.Fatalf("html %#v", html)
	}
	texts, _ := st.Get("texts")
	if !reflect.DeepEqual(texts, []interface{}{"A", "B"}) {
		t.Fatalf("texts %#v", texts)
	}
	if _, have := st.Resource(DocResource); !have {
		t.Fatal("no document")
	}
}

func TestEngineScopesDocument(t *testing.T) {
	e := engine(t)
	st := core.NewState(core.Bindings{"page": page})
	script := Dwimjs(`{"dom":{"apply":[
          {"load":{"from":{"$ref":"page"},"into":"$doc"}},
          {"load":{"$ref":"page"}},
          {"once":{"in":{"$ref":"$doc"},"select":"a","apply":[{"transform":{"attributes":"href"},"into":"link"}]}}
        ]}}`)
	st, err := e.Execute(context.Background(), script, st)
	if err != nil {
		t.Fatal(err)
	}
	if link, _ := st.Get("link"); !reflect.DeepEqual(link, map[string]interface{}{"href": "/a"}) {
		t.Fatalf("state %s", st)
	}
	if _, have := st.Resource(DocResource); have {
		t.Fatal("document outlived the engine")
	}
}

func TestParseAllAttributes(t *testing.T) {
	e := engine(t)
	ctx := context.Background()
	doc, err := e.ExecuteOnce(ctx, "html->$", nil, map[string]interface{}{"data": page})
	if err != nil {
		t.Fatal(err)
	}
	st := core.NewState(nil)
	if _, err = e.ExecuteOnce(ctx, Dwimjs(`{"once":{"in":{"$ref":"$page"},"select":"li"}}`), st, nil); err == nil {
		t.Fatal("expected an error without a document")
	}
	st.Acquire("$page", doc)
	if _, err = e.ExecuteOnce(ctx, Dwimjs(`{"once":{"in":{"$ref":"$page"},"select":"li"}}`), st, nil); err != nil {
		t.Fatal(err)
	}
	sel, _ := st.Resource(SelectionResource)
	attrs, err := e.ExecuteOnce(ctx, "attributes", st, sel)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"class": "thing first", "data-id": "1"}
	if !reflect.DeepEqual(attrs, want) {
		t.Fatalf("got %#v", attrs)
	}
}

func TestNotSelection(t *testing.T) {
	e := engine(t)
	_, err := e.ExecuteOnce(context.Background(), "text", nil, "just a string")
	var ns *NotSelection
	if !errors.As(err, &ns) {
		t.Fatalf("err %v", err)
	}
}

func TestNeedSelector(t *testing.T) {
	e := engine(t)
	st := core.NewState(core.Bindings{"page": page})
	_, err := e.Execute(context.Background(), Dwimjs(`[{"load":{"$ref":"page"}},{"all":{"into":"x"}}]`), st)
	var bc *core.BadCommand
	if !errors.As(err, &bc) {
		t.Fatalf("err %v", err)
	}
}

// Two rule-sets that claim "text" make a bare "text" ambiguous, but
// their qualified aliases still work.
func TestAmbiguousText(t *testing.T) {
	pdf := &core.RuleSet{
		Name: "pdf",
		Rules: []*core.Rule{{
			Names: []string{"text", "pdf.text"},
			Kind:  core.ValueRule,
			Exec: func(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
				return "pdf text", nil
			},
		}},
	}
	e := engine(t, pdf)
	ctx := context.Background()

	_, err := e.ExecuteOnce(ctx, "text", nil, nil)
	var ac *core.AmbiguousCommand
	if !errors.As(err, &ac) {
		t.Fatalf("err %v", err)
	}
	if !strings.Contains(err.Error(), "$.text") || !strings.Contains(err.Error(), "pdf.text") {
		t.Fatal(err)
	}

	if x, err := e.ExecuteOnce(ctx, "pdf.text", nil, nil); err != nil || x != "pdf text" {
		t.Fatalf("%#v %v", x, err)
	}
}
