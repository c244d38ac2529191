package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/base"
	. "github.com/Comcast/scanany/util/testutil"
)

func engine(t *testing.T) *core.Engine {
	e := core.NewEngine(nil)
	if err := e.Register(base.New(), New(time.Second)); err != nil {
		t.Fatal(err)
	}
	return e
}

func server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"q":%q,"method":%q}`, r.URL.Query().Get("q"), r.Method)
	})
	mux.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		bs, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "%s %s %s", r.Header.Get("X-Test"), r.Header.Get("Content-Type"), bs)
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "s1", Path: "/"})
	})
	mux.HandleFunc("/whoami", func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil {
			http.Error(w, "who?", http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, c.Value)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchJSON(t *testing.T) {
	srv := server(t)
	e := engine(t)
	st := core.NewState(core.Bindings{"url": srv.URL + "/json"})
	script := Dwimjs(`[{"fetch":{
            "request":{"url":{"$ref":"url"},"params":{"q":"go"}},
            "into":"result"}}]`)

	st, err := e.Execute(context.Background(), script, st)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := st.Get("result.data")
	if !reflect.DeepEqual(data, map[string]interface{}{"q": "go", "method": "GET"}) {
		t.Fatalf("state %s", st)
	}
	if status, _ := st.Get("result.status"); status != 200 {
		t.Fatalf("state %s", st)
	}
}

func TestFetchDefaultInto(t *testing.T) {
	srv := server(t)
	e := engine(t)
	st, err := e.Execute(context.Background(), Dwimjs(fmt.Sprintf(`{"fetch":{"request":"%s/json"}}`, srv.URL)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, have := st.Get("$response.data.q"); !have {
		t.Fatal("no response resource")
	}
	if len(st.Bs) != 0 {
		t.Fatalf("state %s", st)
	}
}

func TestFetchPost(t *testing.T) {
	srv := server(t)
	e := engine(t)
	script := Dwimjs(fmt.Sprintf(`{"fetch":{
            "request":{"url":"%s/echo","method":"post","headers":{"X-Test":"yes"},"data":{"a":1}},
            "into":"r"}}`, srv.URL))
	st, err := e.Execute(context.Background(), script, nil)
	if err != nil {
		t.Fatal(err)
	}
	if data, _ := st.Get("r.data"); data != `yes application/json {"a":1}` {
		t.Fatalf("state %s", st)
	}
}

func TestFetchStatus(t *testing.T) {
	srv := server(t)
	e := engine(t)
	_, err := e.Execute(context.Background(), Dwimjs(fmt.Sprintf(`{"fetch":{"request":"%s/whoami"}}`, srv.URL)), nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("err %v", err)
	}
	if se.Status != http.StatusUnauthorized {
		t.Fatal(se.Status)
	}
}

func TestEngineKeepsCookies(t *testing.T) {
	srv := server(t)
	e := engine(t)
	script := Dwimjs(fmt.Sprintf(`{"axios":{"apply":[
            {"fetch":{"request":"%s/login","into":"ignored"}},
            {"fetch":{"request":"%s/whoami","into":"me"}}]}}`, srv.URL, srv.URL))
	st, err := e.Execute(context.Background(), script, nil)
	if err != nil {
		t.Fatal(err)
	}
	if me, _ := st.Get("me.data"); me != "s1" {
		t.Fatalf("state %s", st)
	}
	if _, have := st.Resource(ClientResource); have {
		t.Fatal("client left behind")
	}
}

func TestRequest(t *testing.T) {
	e := engine(t)
	st := core.NewState(core.Bindings{"u": "http://example.com"})
	x, err := e.ExecuteOnce(context.Background(), Dwimjs(`{"request":{"url":{"$ref":"u"},"method":"GET"}}`), st, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{"url": "http://example.com", "method": "GET"}
	if !reflect.DeepEqual(x, want) {
		t.Fatalf("got %#v", x)
	}
}
