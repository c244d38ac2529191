// Package mqtt is the "mqtt-plugin" rule-set: publishing to and
// receiving from an MQTT broker using Paho.
//
// The "mqtt" command connects to a broker, runs its "apply" with the
// session available as $mqtt, and disconnects.  Within that,
// "mqtt.publish" sends the carried value, and "mqtt.receive" waits
// for a message.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Name is the catalog name of this rule-set.
const Name = "mqtt-plugin"

const (
	// SessionResource holds the broker session.
	SessionResource = "$mqtt"

	// MessageResource is the default destination of a received
	// message.
	MessageResource = "$message"
)

var (
	// NoSession is returned by "mqtt.publish" and "mqtt.receive"
	// outside of an "mqtt" command.
	NoSession = errors.New("no MQTT session (use within an mqtt command)")

	// DefaultTimeout limits connecting, publishing, and receiving.
	DefaultTimeout = 10 * time.Second

	// Quiesce is given to Disconnect.
	Quiesce uint = 250
)

// Session is what the rules need from a broker connection.
type Session interface {
	Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error
	Receive(ctx context.Context, topic string, qos byte) ([]byte, error)
	Close() error
}

type rules struct {
	rt core.Runtime

	// Dial makes a Session.
	dial func(ctx context.Context, opts *mqtt.ClientOptions) (Session, error)
}

// New makes a fresh instance of the rule-set.
func New() *core.RuleSet {
	r := &rules{dial: Dial}
	return r.ruleSet()
}

func (r *rules) ruleSet() *core.RuleSet {
	return &core.RuleSet{
		Name: "mqtt",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: []*core.Rule{
			{Names: []string{"mqtt"}, Kind: core.ContextRule, Exec: r.engine},
			{Names: []string{"mqtt.publish"}, Kind: core.ContextRule, Exec: r.publish},
			{Names: []string{"mqtt.receive", "mqtt.subscribe"}, Kind: core.ContextRule, Exec: r.receive},
		},
	}
}

// Load is a core.Loader for this rule-set.
func Load(ctx context.Context) (*core.RuleSet, error) {
	return New(), nil
}

// session is a Session backed by a Paho client.
type session struct {
	client mqtt.Client
}

// Dial connects to the broker.
func Dial(ctx context.Context, opts *mqtt.ClientOptions) (Session, error) {
	c := mqtt.NewClient(opts)
	if err := wait(ctx, c.Connect()); err != nil {
		return nil, err
	}
	return &session{client: c}, nil
}

func wait(ctx context.Context, t mqtt.Token) error {
	timeout := DefaultTimeout
	if d, have := ctx.Deadline(); have {
		timeout = time.Until(d)
	}
	if !t.WaitTimeout(timeout) {
		return errors.New("MQTT timeout")
	}
	return t.Error()
}

func (s *session) Publish(ctx context.Context, topic string, qos byte, retained bool, payload []byte) error {
	return wait(ctx, s.client.Publish(topic, qos, retained, payload))
}

func (s *session) Receive(ctx context.Context, topic string, qos byte) ([]byte, error) {
	got := make(chan []byte, 1)
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case got <- msg.Payload():
		default:
		}
	}
	if err := wait(ctx, s.client.Subscribe(topic, qos, handler)); err != nil {
		return nil, err
	}
	defer s.client.Unsubscribe(topic)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case bs := <-got:
		return bs, nil
	}
}

func (s *session) Close() error {
	s.client.Disconnect(Quiesce)
	return nil
}

// options builds client options from the payload's "options" (or the
// payload itself): "broker", "clientId", "username", "password".
func (r *rules) options(payload interface{}, st *core.State) (*mqtt.ClientOptions, error) {
	opts := ruleutil.Resolved(r.rt, st, payload, "options")
	if opts == nil {
		opts = payload
	}
	broker := ruleutil.String(r.rt, st, opts, "", "broker", "url")
	if broker == "" {
		return nil, &core.BadCommand{
			Command: payload,
			Reason:  "mqtt needs a broker",
		}
	}
	o := mqtt.NewClientOptions()
	o.AddBroker(broker)
	o.SetClientID(ruleutil.String(r.rt, st, opts, "scanany-"+core.Gensym(8), "clientId"))
	o.SetConnectTimeout(DefaultTimeout)
	o.SetAutoReconnect(false)
	o.Username = ruleutil.String(r.rt, st, opts, "", "username")
	o.Password = ruleutil.String(r.rt, st, opts, "", "password")
	o.OnConnectionLost = func(client mqtt.Client, err error) {
		log.Printf("MQTT connection lost: %v", err)
	}
	return o, nil
}

func (r *rules) engine(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	opts, err := r.options(payload, st)
	if err != nil {
		return nil, err
	}
	s, err := r.dial(ctx, opts)
	if err != nil {
		return nil, err
	}
	apply := ruleutil.Resolved(r.rt, st, payload, "apply")
	err = core.WithResource(st, SessionResource, s, func() error {
		st, err = ruleutil.Apply(ctx, r.rt, st, apply, carried)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (r *rules) session(st *core.State) (Session, error) {
	x, _ := st.Resource(SessionResource)
	s, is := x.(Session)
	if !is {
		return nil, NoSession
	}
	return s, nil
}

// ParseTopic extracts a QoS from a topic of the form TOPIC:QOS.
func ParseTopic(s string) (string, byte) {
	i := strings.LastIndex(s, ":")
	if i < 0 {
		return s, 0
	}
	n, err := strconv.ParseUint(s[i+1:], 10, 8)
	if err != nil || 2 < n {
		return s, 0
	}
	return s[:i], byte(n)
}

// topic gets "topic" and "qos".  An explicit "qos" wins over one in
// the topic.
func (r *rules) topic(payload interface{}, st *core.State) (string, byte, error) {
	topic, qos := ParseTopic(ruleutil.String(r.rt, st, payload, "", "topic"))
	if topic == "" {
		return "", 0, &core.BadCommand{
			Command: payload,
			Reason:  "need a topic",
		}
	}
	if n, is := ruleutil.Number(r.rt, st, payload, "qos"); is {
		qos = byte(n)
	}
	return topic, qos, nil
}

// publish sends the "message" (or else the carried value).  Strings
// and bytes are sent as is; anything else is JSON.
func (r *rules) publish(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	s, err := r.session(st)
	if err != nil {
		return nil, err
	}
	topic, qos, err := r.topic(payload, st)
	if err != nil {
		return nil, err
	}

	msg := carried
	if x := ruleutil.Resolved(r.rt, st, payload, "message"); x != nil {
		msg = x
	}
	var bs []byte
	switch vv := msg.(type) {
	case string:
		bs = []byte(vv)
	case []byte:
		bs = vv
	default:
		if bs, err = json.Marshal(msg); err != nil {
			return nil, err
		}
	}

	retained, _ := ruleutil.Resolved(r.rt, st, payload, "retained").(bool)
	if err = s.Publish(ctx, topic, qos, retained, bs); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", topic, err)
	}
	return st, nil
}

// receive waits (up to "timeout" milliseconds or DefaultTimeout) for a
// message on the topic and stores it, parsed as JSON if possible.
func (r *rules) receive(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	s, err := r.session(st)
	if err != nil {
		return nil, err
	}
	topic, qos, err := r.topic(payload, st)
	if err != nil {
		return nil, err
	}

	timeout := ruleutil.Millis(r.rt, st, payload, DefaultTimeout, "timeout")
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bs, err := s.Receive(ctx, topic, qos)
	if err != nil {
		return nil, err
	}

	var x interface{}
	if err := json.Unmarshal(bs, &x); err != nil {
		x = string(bs)
	}
	return ruleutil.Into(ctx, r.rt, st, payload, MessageResource, x)
}
