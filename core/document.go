package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is the serialized form of a RuleSet that can be fetched
// from a URL.
//
// A DocumentRule is backed either by a Script (executed with the
// carried value) or by Source for one of the Engine's Interpreters.
type Document struct {
	Name  string          `json:"name,omitempty" yaml:",omitempty"`
	Doc   string          `json:"doc,omitempty" yaml:",omitempty"`
	Rules []*DocumentRule `json:"rules" yaml:"rules"`
}

type DocumentRule struct {
	Names []string `json:"names" yaml:"names"`

	// Kind is "context" (the default) or "value".
	Kind string `json:"kind,omitempty" yaml:",omitempty"`

	Script interface{} `json:"script,omitempty" yaml:",omitempty"`

	Interpreter string      `json:"interpreter,omitempty" yaml:",omitempty"`
	Source      interface{} `json:"source,omitempty" yaml:",omitempty"`
}

// PayloadResource is the resource that holds the payload while a
// document rule's Script runs.
const PayloadResource = "$payload"

func (e *Engine) parseDocument(bs []byte) (*Document, error) {
	decode := e.Decoder
	if decode == nil {
		decode = decodeJSON
	}
	x, err := decode(bs)
	if err != nil {
		return nil, err
	}
	if x, err = StringMaps(x); err != nil {
		return nil, err
	}
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err = json.Unmarshal(js, &doc); err != nil {
		return nil, err
	}
	if len(doc.Rules) == 0 {
		return nil, errors.New("rule-set document has no rules")
	}
	return &doc, nil
}

func (e *Engine) decodeRuleSet(ctx context.Context, name string, bs []byte) (*RuleSet, error) {
	doc, err := e.parseDocument(bs)
	if err != nil {
		return nil, err
	}
	if doc.Name == "" {
		doc.Name = name
	}
	return e.CompileDocument(ctx, doc)
}

// CompileDocument turns a Document into a RuleSet.  Scripts are parsed
// and sources are compiled now rather than at dispatch time.
func (e *Engine) CompileDocument(ctx context.Context, doc *Document) (*RuleSet, error) {
	set := &RuleSet{
		Name:  doc.Name,
		Rules: make([]*Rule, 0, len(doc.Rules)),
	}
	for _, dr := range doc.Rules {
		if dr == nil || len(dr.Names) == 0 {
			return nil, &BadRule{RuleSet: doc.Name}
		}
		var kind Kind
		switch dr.Kind {
		case "", "context":
			kind = ContextRule
		case "value":
			kind = ValueRule
		default:
			return nil, fmt.Errorf("rule %v has unknown kind '%s'", dr.Names, dr.Kind)
		}

		var (
			h   Handler
			err error
		)
		switch {
		case dr.Interpreter != "":
			h, err = e.interpreted(ctx, dr, kind)
		case dr.Script != nil:
			h, err = e.scripted(dr, kind)
		default:
			err = fmt.Errorf("rule %v has neither script nor interpreter", dr.Names)
		}
		if err != nil {
			return nil, err
		}

		set.Rules = append(set.Rules, &Rule{
			Names: dr.Names,
			Kind:  kind,
			Exec:  h,
		})
	}
	return set, nil
}

func (e *Engine) scripted(dr *DocumentRule, kind Kind) (Handler, error) {
	script, err := ParseScript(dr.Script)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
		var result interface{}
		err := WithResource(st, PayloadResource, payload, func() error {
			v := carried
			for _, c := range script {
				x, err := e.ExecuteOnce(ctx, c, st, v)
				if err != nil {
					return err
				}
				if kind == ValueRule {
					// Each command transforms the value.
					v = x
				} else if next, is := x.(*State); is {
					st = next
				}
			}
			if kind == ValueRule {
				result = v
			} else {
				result = st
			}
			return nil
		})
		return result, err
	}, nil
}

func (e *Engine) interpreted(ctx context.Context, dr *DocumentRule, kind Kind) (Handler, error) {
	interpreter, have := e.Interpreters[dr.Interpreter]
	if !have {
		return nil, fmt.Errorf("interpreter '%s' not found", dr.Interpreter)
	}
	compiled, err := interpreter.Compile(ctx, dr.Source)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, payload interface{}, st *State, carried interface{}) (interface{}, error) {
		return interpreter.Exec(ctx, e, st, payload, carried, dr.Source, compiled)
	}, nil
}
