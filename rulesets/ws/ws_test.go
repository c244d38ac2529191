package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/base"
	. "github.com/Comcast/scanany/util/testutil"
	"github.com/gorilla/websocket"
)

// echo replies to each message with {"echo": MESSAGE}.
func echo(t *testing.T) string {
	var upgrader = websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		if hello := r.Header.Get("X-Hello"); hello != "" {
			c.WriteMessage(websocket.TextMessage, []byte(hello))
		}
		for {
			_, bs, err := c.ReadMessage()
			if err != nil {
				return
			}
			reply := fmt.Sprintf(`{"echo":%q}`, bs)
			if err = c.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func engine(t *testing.T) *core.Engine {
	e := core.NewEngine(nil)
	if err := e.Register(base.New(), New()); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestFetch(t *testing.T) {
	u := echo(t)
	e := engine(t)
	st := core.NewState(core.Bindings{"u": u})
	st, err := e.Execute(context.Background(), Dwimjs(`{"ws.fetch":{"url":{"$ref":"u"},"send":"hi"}}`), st)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := st.Resource(MessageResource); !reflect.DeepEqual(got, map[string]interface{}{"echo": "hi"}) {
		t.Fatalf("got %#v", got)
	}
}

func TestConversation(t *testing.T) {
	u := echo(t)
	e := engine(t)
	script := Dwimjs(fmt.Sprintf(`{"ws":{"url":%q,"headers":{"X-Hello":"welcome"},"apply":[
          {"ws.receive":{"into":"greeting"}},
          {"ws.send":{"message":{"n":1}}},
          {"ws.receive":{"into":"first"}},
          {"ws.send":{"message":{"$ref":"next"}}},
          {"ws.receive":{"into":"second"}}
        ]}}`, u))
	st, err := e.Execute(context.Background(), script, core.NewState(core.Bindings{"next": "two"}))
	if err != nil {
		t.Fatal(err)
	}
	want := Dwimjs(`{"next":"two","greeting":"welcome","first":{"echo":"{\"n\":1}"},"second":{"echo":"two"}}`)
	if !reflect.DeepEqual(Dwimjs(JS(st)), want) {
		t.Fatalf("state %s", st)
	}
	if _, have := st.Resource(ConnResource); have {
		t.Fatal("connection left behind")
	}
}

func TestReceiveTimeout(t *testing.T) {
	u := echo(t)
	e := engine(t)
	script := Dwimjs(fmt.Sprintf(`{"ws":{"url":%q,"apply":[{"ws.receive":{"timeout":20}}]}}`, u))
	if _, err := e.Execute(context.Background(), script, nil); err == nil {
		t.Fatal("expected a timeout")
	}
}

func TestReceiveTimeoutFromYAML(t *testing.T) {
	u := echo(t)
	e := engine(t)
	script := Dwimyaml(fmt.Sprintf(`
ws:
  url: %s
  apply:
    - ws.receive: {timeout: 20}
`, u))
	then := time.Now()
	if _, err := e.Execute(context.Background(), script, nil); err == nil {
		t.Fatal("expected a timeout")
	}
	if elapsed := time.Since(then); DefaultTimeout/2 < elapsed {
		t.Fatalf("integer timeout ignored (took %v)", elapsed)
	}
}

func TestNoConn(t *testing.T) {
	e := engine(t)
	_, err := e.ExecuteOnce(context.Background(), Dwimjs(`{"ws.send":{"message":"x"}}`), nil, nil)
	if !errors.Is(err, NoConn) {
		t.Fatalf("err %v", err)
	}
}

func TestDialFailure(t *testing.T) {
	e := engine(t)
	if _, err := e.Execute(context.Background(), Dwimjs(`{"ws.fetch":{"url":"ws://127.0.0.1:1/nope"}}`), nil); err == nil {
		t.Fatal("expected an error")
	}
	var bc *core.BadCommand
	if _, err := e.Execute(context.Background(), Dwimjs(`{"ws.fetch":{}}`), nil); !errors.As(err, &bc) {
		t.Fatalf("err %v", err)
	}
}
