// Package transform is the "transform-plugin" rule-set: conversions
// between text formats (XML, YAML, CSV, Markdown) and plain data.
//
// Each rule converts the carried value.  Options, where there are
// any, come from the payload's "options".
package transform

import (
	"context"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
	"github.com/jsccast/yaml"
	"github.com/russross/blackfriday/v2"
	yaml2 "gopkg.in/yaml.v2"
)

// Name is the catalog name of this rule-set.
const Name = "transform-plugin"

// Load is a core.Loader for this rule-set.
func Load(ctx context.Context) (*core.RuleSet, error) {
	return New(), nil
}

type converter func(opts map[string]interface{}, x interface{}) (interface{}, error)

func rule(name string, f converter) *core.Rule {
	return &core.Rule{
		Names: []string{name, "transform." + name},
		Kind:  core.ValueRule,
		Exec: func(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
			opts, _ := ruleutil.Field(payload, "options")
			m, _ := core.AsMap(opts)
			if m == nil {
				m = map[string]interface{}{}
			}
			return f(m, carried)
		},
	}
}

// New makes a fresh instance of the rule-set.
func New() *core.RuleSet {
	return &core.RuleSet{
		Name: "transform",
		Rules: []*core.Rule{
			rule("xml->js", xmlToJS),
			rule("js->xml", jsToXML),
			rule("yaml->js", yamlToJS),
			rule("js->yaml", jsToYAML),
			rule("csv->js", csvToJS),
			rule("js->csv", jsToCSV),
			rule("md->html", mdToHTML),
		},
	}
}

func yamlToJS(opts map[string]interface{}, x interface{}) (interface{}, error) {
	s, err := ruleutil.Text(x)
	if err != nil {
		return nil, err
	}
	return DecodeYAML([]byte(s))
}

// DecodeYAML parses YAML (or JSON) into plain data with string keys.
// It also serves as a core.Engine Decoder.
func DecodeYAML(bs []byte) (interface{}, error) {
	var v interface{}
	if err := yaml.Unmarshal(bs, &v); err != nil {
		return nil, err
	}
	return core.StringMaps(v)
}

func jsToYAML(opts map[string]interface{}, x interface{}) (interface{}, error) {
	bs, err := yaml2.Marshal(x)
	if err != nil {
		return nil, err
	}
	return string(bs), nil
}

func mdToHTML(opts map[string]interface{}, x interface{}) (interface{}, error) {
	s, err := ruleutil.Text(x)
	if err != nil {
		return nil, err
	}
	return string(blackfriday.Run([]byte(s))), nil
}
