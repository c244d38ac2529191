package sql

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/base"
	. "github.com/Comcast/scanany/util/testutil"
)

func engine(t *testing.T) *core.Engine {
	e := core.NewEngine(nil)
	if err := e.Register(base.New(), New()); err != nil {
		t.Fatal(err)
	}
	return e
}

func TestQuery(t *testing.T) {
	e := engine(t)
	dsn := filepath.Join(t.TempDir(), "test.db")
	st := core.NewState(core.Bindings{"who": "al"})
	script := Dwimjs(fmt.Sprintf(`{"mysql":{"options":{"dsn":%q},"apply":[
          {"sql.exec":{"sql":"CREATE TABLE people (name TEXT, age INTEGER)"}},
          {"sql.exec":{"sql":"INSERT INTO people VALUES (?, ?), (?, ?)","params":[{"$ref":"who"},40,"bo",3],"into":"inserted"}},
          {"execute":{"sql":"SELECT name, age FROM people WHERE age > ? ORDER BY name","params":[1],"into":"people"}}
        ]}}`, dsn))

	st, err := e.Execute(context.Background(), script, st)
	if err != nil {
		t.Fatal(err)
	}
	people, _ := st.Get("people")
	want := []interface{}{
		map[string]interface{}{"name": "al", "age": int64(40)},
		map[string]interface{}{"name": "bo", "age": int64(3)},
	}
	if !reflect.DeepEqual(people, want) {
		t.Fatalf("people %#v", people)
	}
	if n, _ := st.Get("inserted.rowsAffected"); n != int64(2) {
		t.Fatalf("state %s", st)
	}
	if _, have := st.Resource(PoolResource); have {
		t.Fatal("pool left open")
	}
}

func TestMemory(t *testing.T) {
	e := engine(t)
	script := Dwimjs(`{"sql":{"driver":"sqlite","dsn":":memory:","apply":[
          {"sql.exec":{"sql":"CREATE TABLE t (x TEXT)"}},
          {"sql.exec":{"sql":"INSERT INTO t VALUES ('y')"}},
          {"sql.query":{"sql":"SELECT x FROM t"}},
          {"map":[{"$ref":"$response","into":"rows"}]}
        ]}}`)
	st, err := e.Execute(context.Background(), script, nil)
	if err != nil {
		t.Fatal(err)
	}
	if rows, _ := st.Get("rows"); !reflect.DeepEqual(rows, []interface{}{map[string]interface{}{"x": "y"}}) {
		t.Fatalf("rows %#v", rows)
	}
}

func TestNoPool(t *testing.T) {
	e := engine(t)
	_, err := e.Execute(context.Background(), Dwimjs(`{"execute":{"sql":"SELECT 1"}}`), nil)
	if !errors.Is(err, NoPool) {
		t.Fatalf("err %v", err)
	}
}

func TestBadSQL(t *testing.T) {
	e := engine(t)
	_, err := e.Execute(context.Background(), Dwimjs(`{"sql":{"dsn":":memory:","apply":[{"execute":{"sql":"SELEKT"}}]}}`), nil)
	var hf *core.HandlerFailure
	if !errors.As(err, &hf) {
		t.Fatalf("err %v", err)
	}

	_, err = e.Execute(context.Background(), Dwimjs(`{"sql":{"apply":[]}}`), nil)
	var bc *core.BadCommand
	if !errors.As(err, &bc) {
		t.Fatalf("err %v", err)
	}
}
