package cast

import (
	"context"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type stringOp func(payload interface{}, s string) interface{}

// stringOps are available as "string.NAME" and "lodash.NAME".
var stringOps = map[string]stringOp{
	"camelCase": func(_ interface{}, s string) interface{} {
		ws := words(s)
		for i, w := range ws {
			if i == 0 {
				ws[i] = lower(w)
			} else {
				ws[i] = upperFirst(lower(w))
			}
		}
		return strings.Join(ws, "")
	},
	"capitalize": func(_ interface{}, s string) interface{} {
		return upperFirst(lower(s))
	},
	"escape": func(_ interface{}, s string) interface{} {
		return html.EscapeString(s)
	},
	"unescape": func(_ interface{}, s string) interface{} {
		return html.UnescapeString(s)
	},
	"kebabCase": func(_ interface{}, s string) interface{} {
		return joinWords(s, "-", lower)
	},
	"snakeCase": func(_ interface{}, s string) interface{} {
		return joinWords(s, "_", lower)
	},
	"lowerCase": func(_ interface{}, s string) interface{} {
		return joinWords(s, " ", lower)
	},
	"upperCase": func(_ interface{}, s string) interface{} {
		return joinWords(s, " ", upper)
	},
	"startCase": func(_ interface{}, s string) interface{} {
		return joinWords(s, " ", upperFirst)
	},
	"lowerFirst": func(_ interface{}, s string) interface{} {
		r, n := utf8.DecodeRuneInString(s)
		if n == 0 {
			return s
		}
		return lower(string(r)) + s[n:]
	},
	"upperFirst": func(_ interface{}, s string) interface{} {
		return upperFirst(s)
	},
	"toLower": func(_ interface{}, s string) interface{} {
		return lower(s)
	},
	"toUpper": func(_ interface{}, s string) interface{} {
		return upper(s)
	},
	"trim": func(_ interface{}, s string) interface{} {
		return strings.TrimSpace(s)
	},
	"trimStart": func(_ interface{}, s string) interface{} {
		return strings.TrimLeftFunc(s, unicode.IsSpace)
	},
	"trimEnd": func(_ interface{}, s string) interface{} {
		return strings.TrimRightFunc(s, unicode.IsSpace)
	},
	"truncate": truncate,
	"words": func(_ interface{}, s string) interface{} {
		ws := words(s)
		acc := make([]interface{}, len(ws))
		for i, w := range ws {
			acc[i] = w
		}
		return acc
	},
}

func stringRules() []*core.Rule {
	acc := make([]*core.Rule, 0, len(stringOps))
	for name, op := range stringOps {
		acc = append(acc, stringRule(name, op))
	}
	return acc
}

func stringRule(name string, op stringOp) *core.Rule {
	rule := &core.Rule{
		Names: []string{"string." + name, "lodash." + name},
		Kind:  core.ValueRule,
	}
	rule.Exec = func(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
		s, err := ruleutil.Text(carried)
		if err != nil {
			return nil, &BadValue{rule.Names[0], carried}
		}
		return op(payload, s), nil
	}
	return rule
}

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}

func upper(s string) string {
	return cases.Upper(language.Und).String(s)
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return upper(string(r)) + s[n:]
}

func joinWords(s, sep string, f func(string) string) string {
	ws := words(s)
	for i, w := range ws {
		ws[i] = f(w)
	}
	return strings.Join(ws, sep)
}

// words splits on anything that isn't a letter or a digit and on case
// changes, so "fooBar", "foo-bar", and "FOO_BAR" all have two words.
// "XMLHttp" is "XML" and "Http".
func words(s string) []string {
	var (
		acc []string
		cur []rune
	)
	flush := func() {
		if 0 < len(cur) {
			acc = append(acc, string(cur))
			cur = cur[:0]
		}
	}
	rs := []rune(s)
	for i, r := range rs {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if 0 < len(cur) {
			prev := cur[len(cur)-1]
			switch {
			case unicode.IsLower(prev) && unicode.IsUpper(r):
				flush()
			case unicode.IsUpper(prev) && unicode.IsUpper(r) &&
				i+1 < len(rs) && unicode.IsLower(rs[i+1]):
				flush()
			case unicode.IsDigit(prev) != unicode.IsDigit(r):
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return acc
}

// truncate shortens the string to "length" runes (default 30),
// including the "omission" (default "...").
func truncate(payload interface{}, s string) interface{} {
	length := 30
	omission := "..."
	if m, is := core.AsMap(payload); is {
		switch n := m["length"].(type) {
		case float64:
			length = int(n)
		case int:
			length = n
		}
		if o, is := m["omission"].(string); is {
			omission = o
		}
	}
	rs := []rune(s)
	if len(rs) <= length {
		return s
	}
	keep := length - utf8.RuneCountInString(omission)
	if keep < 0 {
		keep = 0
	}
	return string(rs[:keep]) + omission
}
