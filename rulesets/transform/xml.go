package transform

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
)

const (
	// AttrKey holds an element's attributes.
	AttrKey = "$"

	// TextKey holds an element's text when it also has attributes
	// or children.
	TextKey = "_"
)

// xmlToJS parses XML into maps.  The result has one key, the root
// element's name.  An element with only text is that text.
// Otherwise it's a map with its attributes under AttrKey, its text
// under TextKey, and its children under their names.  Children are
// always in lists unless the option "explicitArray" is false.
func xmlToJS(opts map[string]interface{}, x interface{}) (interface{}, error) {
	s, err := ruleutil.Text(x)
	if err != nil {
		return nil, err
	}
	explicit := true
	if b, is := opts["explicitArray"].(bool); is {
		explicit = b
	}

	d := xml.NewDecoder(strings.NewReader(s))
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil, errors.New("no XML element")
		}
		if err != nil {
			return nil, err
		}
		if start, is := tok.(xml.StartElement); is {
			v, err := element(d, start, explicit)
			if err != nil {
				return nil, err
			}
			return map[string]interface{}{start.Name.Local: v}, nil
		}
	}
}

func element(d *xml.Decoder, start xml.StartElement, explicit bool) (interface{}, error) {
	var (
		m    = map[string]interface{}{}
		text strings.Builder
	)
	if 0 < len(start.Attr) {
		attrs := make(map[string]interface{}, len(start.Attr))
		for _, a := range start.Attr {
			attrs[a.Name.Local] = a.Value
		}
		m[AttrKey] = attrs
	}

	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v, err := element(d, t, explicit)
			if err != nil {
				return nil, err
			}
			name := t.Name.Local
			if prev, have := m[name]; have {
				if xs, is := prev.([]interface{}); is {
					m[name] = append(xs, v)
				} else {
					m[name] = []interface{}{prev, v}
				}
			} else if explicit {
				m[name] = []interface{}{v}
			} else {
				m[name] = v
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			s := strings.TrimSpace(text.String())
			if len(m) == 0 {
				return s, nil
			}
			if s != "" {
				m[TextKey] = s
			}
			return m, nil
		}
	}
}

// jsToXML renders a map with one key (the root element's name) as
// XML.  It's the inverse of xmlToJS.
func jsToXML(opts map[string]interface{}, x interface{}) (interface{}, error) {
	m, is := core.AsMap(x)
	if !is || len(m) != 1 {
		return nil, fmt.Errorf("js->xml needs a map with one root key, not %T", x)
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	e := xml.NewEncoder(&buf)
	e.Indent("", "  ")
	for name, v := range m {
		if err := encode(e, name, v); err != nil {
			return nil, err
		}
	}
	if err := e.Flush(); err != nil {
		return nil, err
	}
	return buf.String(), nil
}

func sortedKeys(m map[string]interface{}) []string {
	ks := make([]string, 0, len(m))
	for k := range m {
		ks = append(ks, k)
	}
	sort.Strings(ks)
	return ks
}

func encode(e *xml.Encoder, name string, v interface{}) error {
	if xs, is := v.([]interface{}); is {
		for _, x := range xs {
			if err := encode(e, name, x); err != nil {
				return err
			}
		}
		return nil
	}

	start := xml.StartElement{Name: xml.Name{Local: name}}
	m, is := core.AsMap(v)
	if !is {
		if v == nil {
			return e.EncodeElement("", start)
		}
		return e.EncodeElement(fmt.Sprint(v), start)
	}

	if attrs, have := core.AsMap(m[AttrKey]); have {
		for _, k := range sortedKeys(attrs) {
			start.Attr = append(start.Attr, xml.Attr{
				Name:  xml.Name{Local: k},
				Value: fmt.Sprint(attrs[k]),
			})
		}
	}
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	if s, have := m[TextKey]; have {
		if err := e.EncodeToken(xml.CharData(fmt.Sprint(s))); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(m) {
		if k == AttrKey || k == TextKey {
			continue
		}
		if err := encode(e, k, m[k]); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}
