// Package ws is the "ws-plugin" rule-set: WebSocket conversations
// using gorilla/websocket.
//
// "ws.fetch" dials, optionally sends one message, reads one reply,
// and hangs up.  For longer conversations, "ws" dials and runs its
// "apply" with the connection available as $ws, within which
// "ws.send" and "ws.receive" work.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
	"github.com/gorilla/websocket"
)

// Name is the catalog name of this rule-set.
const Name = "ws-plugin"

const (
	// ConnResource holds the connection within a "ws" command.
	ConnResource = "$ws"

	// MessageResource is the default destination of a received
	// message.
	MessageResource = "$message"
)

var (
	// NoConn is returned by "ws.send" and "ws.receive" outside of
	// a "ws" command.
	NoConn = errors.New("no WebSocket connection (use within a ws command)")

	// DefaultTimeout limits dialing and each read.
	DefaultTimeout = 10 * time.Second
)

type rules struct {
	rt     core.Runtime
	dialer *websocket.Dialer
}

// New makes a fresh instance of the rule-set.
func New() *core.RuleSet {
	r := &rules{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultTimeout,
		},
	}
	return &core.RuleSet{
		Name: "ws",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: []*core.Rule{
			{Names: []string{"ws"}, Kind: core.ContextRule, Exec: r.engine},
			{Names: []string{"ws.fetch"}, Kind: core.ContextRule, Exec: r.fetch},
			{Names: []string{"ws.send"}, Kind: core.ContextRule, Exec: r.send},
			{Names: []string{"ws.receive"}, Kind: core.ContextRule, Exec: r.receive},
		},
	}
}

// Load is a core.Loader for this rule-set.
func Load(ctx context.Context) (*core.RuleSet, error) {
	return New(), nil
}

// dial uses "url" and optional "headers".
func (r *rules) dial(ctx context.Context, payload interface{}, st *core.State) (*websocket.Conn, error) {
	u := ruleutil.String(r.rt, st, payload, "", "url")
	if u == "" {
		return nil, &core.BadCommand{
			Command: payload,
			Reason:  "need a url",
		}
	}
	h := http.Header{}
	if hs, have := core.AsMap(ruleutil.Resolved(r.rt, st, payload, "headers")); have {
		for k, v := range hs {
			h.Set(k, fmt.Sprint(v))
		}
	}
	conn, _, err := r.dialer.DialContext(ctx, u, h)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return conn, nil
}

// write sends strings and bytes as is and anything else as JSON.
func write(conn *websocket.Conn, msg interface{}) error {
	switch vv := msg.(type) {
	case string:
		return conn.WriteMessage(websocket.TextMessage, []byte(vv))
	case []byte:
		return conn.WriteMessage(websocket.BinaryMessage, vv)
	}
	js, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, js)
}

// read gets one message, parsed as JSON if possible.
func read(ctx context.Context, conn *websocket.Conn, timeout time.Duration) (interface{}, error) {
	deadline := time.Now().Add(timeout)
	if d, have := ctx.Deadline(); have && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	_, bs, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var x interface{}
	if err := json.Unmarshal(bs, &x); err != nil {
		return string(bs), nil
	}
	return x, nil
}

func (r *rules) timeout(payload interface{}, st *core.State) time.Duration {
	return ruleutil.Millis(r.rt, st, payload, DefaultTimeout, "timeout")
}

func (r *rules) fetch(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	conn, err := r.dial(ctx, payload, st)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if msg := ruleutil.Resolved(r.rt, st, payload, "send", "message"); msg != nil {
		if err = write(conn, msg); err != nil {
			return nil, err
		}
	}
	x, err := read(ctx, conn, r.timeout(payload, st))
	if err != nil {
		return nil, err
	}
	if t := ruleutil.Resolved(r.rt, st, payload, "transform"); t != nil {
		if x, err = r.rt.ExecuteOnce(ctx, core.Keyed("transform", t), st, x); err != nil {
			return nil, err
		}
	}
	return ruleutil.Into(ctx, r.rt, st, payload, MessageResource, x)
}

func (r *rules) engine(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	conn, err := r.dial(ctx, payload, st)
	if err != nil {
		return nil, err
	}
	apply := ruleutil.Resolved(r.rt, st, payload, "apply")
	err = core.WithResource(st, ConnResource, conn, func() error {
		st, err = ruleutil.Apply(ctx, r.rt, st, apply, carried)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func conn(st *core.State) (*websocket.Conn, error) {
	x, _ := st.Resource(ConnResource)
	c, is := x.(*websocket.Conn)
	if !is {
		return nil, NoConn
	}
	return c, nil
}

// send writes the "message" or else the carried value.
func (r *rules) send(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	c, err := conn(st)
	if err != nil {
		return nil, err
	}
	msg := carried
	if x := ruleutil.Resolved(r.rt, st, payload, "message", "send"); x != nil {
		msg = x
	}
	if msg == nil {
		return nil, &core.BadCommand{
			Command: payload,
			Reason:  "nothing to send",
		}
	}
	return st, write(c, msg)
}

func (r *rules) receive(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	c, err := conn(st)
	if err != nil {
		return nil, err
	}
	x, err := read(ctx, c, r.timeout(payload, st))
	if err != nil {
		return nil, err
	}
	return ruleutil.Into(ctx, r.rt, st, payload, MessageResource, x)
}
