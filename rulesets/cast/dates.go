package cast

import (
	"context"
	"strings"
	"time"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
	"github.com/ncruces/go-strftime"
)

// layouts are tried in order when parsing a date from a string.
var layouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.ANSIC,
	time.UnixDate,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02.01.2006",
}

// parseTime interprets strings, millisecond timestamps, and times.
func parseTime(x interface{}) (time.Time, error) {
	switch vv := x.(type) {
	case time.Time:
		return vv, nil
	case float64:
		return time.UnixMilli(int64(vv)).UTC(), nil
	case int:
		return time.UnixMilli(int64(vv)).UTC(), nil
	case int64:
		return time.UnixMilli(vv).UTC(), nil
	}
	s, err := ruleutil.Text(x)
	if err != nil {
		return time.Time{}, &BadValue{"date", x}
	}
	s = strings.TrimSpace(s)
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &BadValue{"date", x}
}

// momentTokens map date tokens like "YYYY-MM-DD" to Go layout
// elements.  Longer tokens come first.
var momentTokens = []struct {
	token, layout string
}{
	{"YYYY", "2006"},
	{"YY", "06"},
	{"MMMM", "January"},
	{"MMM", "Jan"},
	{"MM", "01"},
	{"M", "1"},
	{"DD", "02"},
	{"D", "2"},
	{"dddd", "Monday"},
	{"ddd", "Mon"},
	{"HH", "15"},
	{"hh", "03"},
	{"h", "3"},
	{"mm", "04"},
	{"m", "4"},
	{"ss", "05"},
	{"s", "5"},
	{"SSS", "000"},
	{"A", "PM"},
	{"a", "pm"},
	{"ZZ", "-0700"},
	{"Z", "-07:00"},
}

func fromMoment(f string) string {
	var b strings.Builder
	for i := 0; i < len(f); {
		if f[i] == '[' {
			if j := strings.IndexByte(f[i:], ']'); 0 < j {
				b.WriteString(f[i+1 : i+j])
				i += j + 1
				continue
			}
		}
		matched := false
		for _, t := range momentTokens {
			if strings.HasPrefix(f[i:], t.token) {
				b.WriteString(t.layout)
				i += len(t.token)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(f[i])
			i++
		}
	}
	return b.String()
}

// layout turns a format into a Go layout.  A format with a '%' is
// strftime.  A format with date tokens like "YYYY" or "HH" is
// translated.  Anything else is already a Go layout.
func layout(f string) (string, error) {
	switch {
	case strings.Contains(f, "%"):
		return strftime.Layout(f)
	case strings.ContainsAny(f, "YDHhms"):
		return fromMoment(f), nil
	}
	return f, nil
}

// date gives the current time, or the time represented by the carried
// value, or else by the payload.
func (r *rules) date(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	if carried != nil {
		return parseTime(carried)
	}
	if bare(payload, "date", "cast.date") {
		return time.Now(), nil
	}
	return parseTime(r.rt.ResolveValue(payload, st))
}

func (r *rules) format(payload interface{}, st *core.State) string {
	f := ruleutil.String(r.rt, st, payload, "", "format")
	if f == "" {
		if s, is := r.rt.ResolveValue(payload, st).(string); is {
			f = s
		}
	}
	return f
}

func (r *rules) dateFormat(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	t, err := parseTime(carried)
	if err != nil {
		return nil, err
	}
	f := time.RFC3339
	if !bare(payload, "date.format", "moment.format") {
		if s := r.format(payload, st); s != "" {
			f = s
		}
	}
	if strings.Contains(f, "%") {
		return strftime.Format(f, t), nil
	}
	l, err := layout(f)
	if err != nil {
		return nil, err
	}
	return t.Format(l), nil
}

func (r *rules) dateParse(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	if bare(payload, "date.parse", "moment.date") {
		return parseTime(carried)
	}
	s, err := ruleutil.Text(carried)
	if err != nil {
		return nil, &BadValue{"date.parse", carried}
	}
	f := r.format(payload, st)
	if f == "" {
		return parseTime(s)
	}
	l, err := layout(f)
	if err != nil {
		return nil, err
	}
	return time.Parse(l, strings.TrimSpace(s))
}
