package transform

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
)

// DefaultDelimiter separates CSV fields unless the "delimiter" option
// says otherwise.
const DefaultDelimiter = ';'

func delimiter(opts map[string]interface{}) (rune, error) {
	s, is := opts["delimiter"].(string)
	if !is || s == "" {
		return DefaultDelimiter, nil
	}
	r, n := utf8.DecodeRuneInString(s)
	if n != len(s) {
		return 0, fmt.Errorf("bad delimiter %q", s)
	}
	return r, nil
}

// csvToJS parses CSV with a header row into a list of maps.
func csvToJS(opts map[string]interface{}, x interface{}) (interface{}, error) {
	s, err := ruleutil.Text(x)
	if err != nil {
		return nil, err
	}
	d, err := delimiter(opts)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(strings.NewReader(strings.TrimSpace(s)))
	r.Comma = d
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	if q, is := opts["quote"].(bool); is && !q {
		r.LazyQuotes = true
	}

	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	acc := make([]interface{}, 0, len(rows))
	if len(rows) == 0 {
		return acc, nil
	}
	header := rows[0]
	for _, row := range rows[1:] {
		m := make(map[string]interface{}, len(header))
		for i, field := range header {
			if i < len(row) {
				m[field] = row[i]
			} else {
				m[field] = ""
			}
		}
		acc = append(acc, m)
	}
	return acc, nil
}

// jsToCSV renders a list of maps as CSV.  The fields are given by the
// "fields" option or else are the sorted keys of the first map.
func jsToCSV(opts map[string]interface{}, x interface{}) (interface{}, error) {
	d, err := delimiter(opts)
	if err != nil {
		return nil, err
	}
	rows := core.AsList(x)

	var fields []string
	for _, f := range core.AsList(opts["fields"]) {
		fields = append(fields, fmt.Sprint(f))
	}
	if len(fields) == 0 && 0 < len(rows) {
		first, is := core.AsMap(rows[0])
		if !is {
			return nil, fmt.Errorf("js->csv needs maps, not %T", rows[0])
		}
		for k := range first {
			fields = append(fields, k)
		}
		sort.Strings(fields)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = d
	if err = w.Write(fields); err != nil {
		return nil, err
	}
	for _, row := range rows {
		m, is := core.AsMap(row)
		if !is {
			return nil, fmt.Errorf("js->csv needs maps, not %T", row)
		}
		rec := make([]string, len(fields))
		for i, f := range fields {
			if v, have := m[f]; have && v != nil {
				rec[i] = fmt.Sprint(v)
			}
		}
		if err = w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err = w.Error(); err != nil {
		return nil, err
	}
	return buf.String(), nil
}
