// Package http is the "axios-plugin" rule-set: HTTP requests.
//
// "fetch" makes a request described by a map (url, method, headers,
// params, data) and stores the response.  "http" (also "axios") runs
// its "apply" with a client that keeps cookies across requests.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
	"golang.org/x/net/publicsuffix"
)

// Name is the catalog name of this rule-set.
const Name = "axios-plugin"

const (
	// ClientResource holds the client used by "fetch" within an
	// "http" command.
	ClientResource = "$http"

	// ResponseResource is the default destination of a response.
	ResponseResource = "$response"
)

// DefaultTimeout applies when the rule-set is made with a zero
// timeout.
var DefaultTimeout = 30 * time.Second

// StatusError is returned for a response with a status outside 2xx.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned %d", e.URL, e.Status)
}

type rules struct {
	rt      core.Runtime
	timeout time.Duration
	client  *http.Client
}

// New makes a fresh instance of the rule-set with the given request
// timeout.
func New(timeout time.Duration) *core.RuleSet {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	r := &rules{
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
	return &core.RuleSet{
		Name: "http",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: []*core.Rule{
			{Names: []string{"http", "axios"}, Kind: core.ContextRule, Exec: r.engine},
			{Names: []string{"fetch", "http.fetch"}, Kind: core.ContextRule, Exec: r.fetch},
			{Names: []string{"request", "http.request"}, Kind: core.ValueRule, Exec: r.request},
		},
	}
}

// Loader makes a core.Loader for this rule-set.
func Loader(timeout time.Duration) core.Loader {
	return func(ctx context.Context) (*core.RuleSet, error) {
		return New(timeout), nil
	}
}

// newClient makes a client with a cookie jar.
func (r *rules) newClient() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Timeout: r.timeout,
		Jar:     jar,
	}, nil
}

func (r *rules) engine(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	apply := ruleutil.Resolved(r.rt, st, payload, "apply")
	if apply == nil {
		return st, nil
	}
	c, err := r.newClient()
	if err != nil {
		return nil, err
	}
	err = core.WithResource(st, ClientResource, c, func() error {
		st, err = ruleutil.Apply(ctx, r.rt, st, apply, carried)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// request resolves each of the payload's fields.
func (r *rules) request(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	m, is := core.AsMap(r.rt.ResolveValue(payload, st))
	if !is {
		return nil, &core.BadCommand{
			Command: payload,
			Reason:  "request needs a map",
		}
	}
	acc := make(map[string]interface{}, len(m))
	for k, v := range m {
		acc[k] = r.rt.ResolveValue(v, st)
	}
	return acc, nil
}

func (r *rules) fetch(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	req := ruleutil.Resolved(r.rt, st, payload, "request")
	if s, is := req.(string); is {
		req = map[string]interface{}{"url": s}
	}
	x, err := r.rt.ExecuteOnce(ctx, core.Keyed("request", req), st, carried)
	if err != nil {
		return nil, err
	}
	rq, _ := core.AsMap(x)

	resp, err := r.do(ctx, st, rq)
	if err != nil {
		return nil, err
	}

	var result interface{} = resp
	if t := ruleutil.Resolved(r.rt, st, payload, "transform"); t != nil {
		if result, err = r.rt.ExecuteOnce(ctx, core.Keyed("transform", t), st, result); err != nil {
			return nil, err
		}
	}
	return ruleutil.Into(ctx, r.rt, st, payload, ResponseResource, result)
}

func (r *rules) clientFor(st *core.State) *http.Client {
	if x, have := st.Resource(ClientResource); have {
		if c, is := x.(*http.Client); is {
			return c
		}
	}
	return r.client
}

func str(m map[string]interface{}, k string) string {
	if s, is := m[k].(string); is {
		return s
	}
	return ""
}

// body encodes "data": strings and bytes as is and anything else as
// JSON.
func body(data interface{}) (io.Reader, bool, error) {
	switch vv := data.(type) {
	case nil:
		return nil, false, nil
	case string:
		return strings.NewReader(vv), false, nil
	case []byte:
		return bytes.NewReader(vv), false, nil
	}
	js, err := json.Marshal(data)
	if err != nil {
		return nil, false, err
	}
	return bytes.NewReader(js), true, nil
}

// do makes the request and renders the response as a map with
// "status", "statusText", "headers", and "data".  JSON data is
// parsed.
func (r *rules) do(ctx context.Context, st *core.State, rq map[string]interface{}) (map[string]interface{}, error) {
	u, err := url.Parse(str(rq, "url"))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		return nil, fmt.Errorf("request needs an absolute url, not %q", u)
	}
	if params, have := core.AsMap(rq["params"]); have {
		q := u.Query()
		for k, v := range params {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
	}

	method := strings.ToUpper(str(rq, "method"))
	if method == "" {
		method = http.MethodGet
	}

	rd, isJSON, err := body(rq["data"])
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return nil, err
	}
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	if hs, have := core.AsMap(rq["headers"]); have {
		for k, v := range hs {
			req.Header.Set(k, fmt.Sprint(v))
		}
	}

	resp, err := r.clientFor(st).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bs, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || 300 <= resp.StatusCode {
		return nil, &StatusError{
			URL:    u.String(),
			Status: resp.StatusCode,
			Body:   string(bs),
		}
	}

	var data interface{} = string(bs)
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var x interface{}
		if err := json.Unmarshal(bs, &x); err == nil {
			data = x
		}
	}

	return map[string]interface{}{
		"status":     resp.StatusCode,
		"statusText": http.StatusText(resp.StatusCode),
		"headers":    headers(resp.Header),
		"data":       data,
	}, nil
}

// headers has lower-case names and comma-joined values.
func headers(h http.Header) map[string]interface{} {
	acc := make(map[string]interface{}, len(h))
	for k, vs := range h {
		acc[strings.ToLower(k)] = strings.Join(vs, ", ")
	}
	return acc
}
