// Package dom is the "cheerio-plugin" rule-set: HTML documents and
// CSS selection, using goquery.
//
// "load" parses HTML into a document (by default the resource $dom).
// "once" and "all" select elements from a document.  The value rules
// "text", "html", "class", and "attributes" read from a selection.
package dom

import (
	"context"
	"fmt"
	"strings"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
	"github.com/PuerkitoBio/goquery"
)

// Name is the catalog name of this rule-set.
const Name = "cheerio-plugin"

const (
	// DocResource is the default home of a loaded document.
	DocResource = "$dom"

	// SelectionResource is the default home of a selection.
	SelectionResource = "$selection"
)

// NotSelection is returned by rules that need a selection but got
// something else.
type NotSelection struct {
	Rule  string
	Value interface{}
}

func (e *NotSelection) Error() string {
	return fmt.Sprintf("%s needs a selection, not %T", e.Rule, e.Value)
}

// Load is a core.Loader for this rule-set.
func Load(ctx context.Context) (*core.RuleSet, error) {
	return New(), nil
}

type rules struct {
	rt core.Runtime
}

// New makes a fresh instance of the rule-set.
func New() *core.RuleSet {
	r := &rules{}
	return &core.RuleSet{
		Name: "dom",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: []*core.Rule{
			{
				Names: []string{"dom", "cheerio"},
				Kind:  core.ContextRule,
				Exec:  r.engine,
			},
			{
				Names: []string{"load", "dom.load", "cheerio.load"},
				Kind:  core.ContextRule,
				Exec:  r.load,
			},
			{
				Names: []string{
					"html->page", "html->$",
					"transform.html->page", "transform.html->$",
					"cheerio.html->page", "cheerio.html->$",
					"cheerio.transform.html->page", "cheerio.transform.html->$",
				},
				Kind: core.ValueRule,
				Exec: r.parse,
			},
			{
				Names: []string{"once", "dom.once", "cheerio.once", "$.once"},
				Kind:  core.ContextRule,
				Exec:  r.once,
			},
			{
				Names: []string{"all", "dom.all", "cheerio.all", "$.all"},
				Kind:  core.ContextRule,
				Exec:  r.all,
			},
			{
				Names: []string{"text", "$.text"},
				Kind:  core.ValueRule,
				Exec:  r.text,
			},
			{
				Names: []string{"html", "$.html"},
				Kind:  core.ValueRule,
				Exec:  r.html,
			},
			{
				Names: []string{"class", "classes", "$.class", "$.classes"},
				Kind:  core.ValueRule,
				Exec:  r.classes,
			},
			{
				Names: []string{"attributes", "$.attributes"},
				Kind:  core.ValueRule,
				Exec:  r.attributes,
			},
		},
	}
}

// engine runs "apply".  A document loaded within it doesn't outlive
// it.
func (r *rules) engine(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	apply := ruleutil.Resolved(r.rt, st, payload, "apply")
	if apply == nil {
		return st, nil
	}
	var err error
	err = core.WithResource(st, DocResource, nil, func() error {
		st, err = ruleutil.Apply(ctx, r.rt, st, apply, carried)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// document parses HTML given as a string, bytes, or a response (a map
// with "data").
func document(x interface{}) (*goquery.Document, error) {
	if m, is := core.AsMap(x); is {
		x = m["data"]
	}
	if x == nil {
		x = ""
	}
	s, err := ruleutil.Text(x)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(s))
}

func (r *rules) parse(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	return document(carried)
}

// load parses the carried value, or else the content given by the
// payload, and stores the document.
func (r *rules) load(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	content := carried
	if content == nil {
		if m, is := core.AsMap(payload); is && !core.IsSentinel(m) {
			content = ruleutil.Resolved(r.rt, st, m, "from", "html")
		} else if s, is := payload.(string); !is || !isLoadName(s) {
			content = r.rt.ResolveValue(payload, st)
		}
	}
	doc, err := document(content)
	if err != nil {
		return nil, err
	}
	return ruleutil.Into(ctx, r.rt, st, payload, DocResource, doc)
}

func isLoadName(s string) bool {
	switch s {
	case "load", "dom.load", "cheerio.load":
		return true
	}
	return false
}

// selection coerces a document or a selection.
func selection(rule string, x interface{}) (*goquery.Selection, error) {
	switch vv := x.(type) {
	case *goquery.Selection:
		return vv, nil
	case *goquery.Document:
		return vv.Selection, nil
	}
	return nil, &NotSelection{rule, x}
}

// from finds the document or selection to search.
func (r *rules) from(rule string, payload interface{}, st *core.State) (*goquery.Selection, error) {
	x := ruleutil.Resolved(r.rt, st, payload, "in", "from")
	if x == nil {
		x, _ = st.Resource(DocResource)
	}
	return selection(rule, x)
}

func (r *rules) selector(payload interface{}, st *core.State) (string, error) {
	s := ruleutil.String(r.rt, st, payload, "", "select")
	if s == "" {
		return "", &core.BadCommand{
			Command: payload,
			Reason:  "need a selector",
		}
	}
	return s, nil
}

// once selects the first matching element, runs "apply" as a "map"
// with that element, and stores the element.
func (r *rules) once(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	sel, err := r.from("once", payload, st)
	if err != nil {
		return nil, err
	}
	selector, err := r.selector(payload, st)
	if err != nil {
		return nil, err
	}
	elt := sel.Find(selector).First()

	if apply := ruleutil.Resolved(r.rt, st, payload, "apply"); apply != nil {
		x, err := r.rt.ExecuteOnce(ctx, core.Keyed("map", apply), st, elt)
		if err != nil {
			return nil, err
		}
		if next, is := x.(*core.State); is {
			st = next
		}
	}
	return ruleutil.Into(ctx, r.rt, st, payload, SelectionResource, elt)
}

// all selects every matching element and stores the list.
func (r *rules) all(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	sel, err := r.from("all", payload, st)
	if err != nil {
		return nil, err
	}
	selector, err := r.selector(payload, st)
	if err != nil {
		return nil, err
	}
	found := sel.Find(selector)
	acc := make([]interface{}, 0, found.Length())
	found.Each(func(_ int, s *goquery.Selection) {
		acc = append(acc, s)
	})
	return ruleutil.Into(ctx, r.rt, st, payload, SelectionResource, acc)
}

func (r *rules) text(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	sel, err := selection("text", carried)
	if err != nil {
		return nil, err
	}
	return sel.Text(), nil
}

func (r *rules) html(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	sel, err := selection("html", carried)
	if err != nil {
		return nil, err
	}
	if sel.Length() == 0 {
		return "", nil
	}
	return goquery.OuterHtml(sel.First())
}

func (r *rules) classes(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	sel, err := selection("class", carried)
	if err != nil {
		return nil, err
	}
	c, _ := sel.Attr("class")
	fs := strings.Fields(c)
	acc := make([]interface{}, len(fs))
	for i, f := range fs {
		acc[i] = f
	}
	return acc, nil
}

// attributes gives all of the first element's attributes or just the
// ones named by the payload.  A missing attribute is nil.
func (r *rules) attributes(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	sel, err := selection("attributes", carried)
	if err != nil {
		return nil, err
	}

	var names []string
	switch vv := r.rt.ResolveValue(payload, st).(type) {
	case string:
		if vv == "attributes" || vv == "$.attributes" {
			if 0 < len(sel.Nodes) {
				for _, a := range sel.Nodes[0].Attr {
					names = append(names, a.Key)
				}
			}
		} else {
			names = []string{vv}
		}
	case []interface{}:
		for _, x := range vv {
			names = append(names, fmt.Sprint(x))
		}
	default:
		return nil, &core.BadCommand{
			Command: payload,
			Reason:  "attributes needs a name or a list of names",
		}
	}

	acc := make(map[string]interface{}, len(names))
	for _, name := range names {
		if v, have := sel.Attr(name); have {
			acc[name] = v
		} else {
			acc[name] = nil
		}
	}
	return acc, nil
}
