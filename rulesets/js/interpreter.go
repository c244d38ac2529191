/* Copyright 2018-2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package js

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/Comcast/scanany/core"
	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)
)

// Interpreter implements core.Interpreter using Goja, which is a Go
// implementation of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
type Interpreter struct {
	// Testing exposes sleep(ms).
	Testing bool

	// Timeout, if positive, limits each execution.
	Timeout time.Duration

	// AllowCommands exposes _.exec(cmd, value), which executes a
	// command with the engine.  Off by default: a script can only
	// see what it's given.
	AllowCommands bool

	// LibraryProvider obtains the source of "requires" libraries.
	// Defaults to a core.Fetcher for the current directory.
	LibraryProvider core.Fetcher
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// ProvideLibrary resolves the library name into a library.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	p := i.LibraryProvider
	if p == nil {
		p = DefaultLibraryProvider
	}
	bs, err := p(ctx, name)
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

// DefaultLibraryProvider is used when an Interpreter doesn't have a
// LibraryProvider.
var DefaultLibraryProvider = core.MakeFetcher(".")

// MakeMapLibraryProvider serves libraries from a map.
func MakeMapLibraryProvider(srcs map[string]string) core.Fetcher {
	return func(ctx context.Context, name string) ([]byte, error) {
		src, have := srcs[name]
		if !have {
			return nil, fmt.Errorf("undefined library '%s'", name)
		}
		return []byte(src), nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// parseSource looks into the given map to try to find "requires" and
// "code" properties.
func parseSource(vv map[string]interface{}) (code string, libs []string, err error) {
	s, is := vv["code"].(string)
	if !is {
		err = errors.New("bad Goja code")
		return
	}
	code = s

	switch vv := vv["requires"].(type) {
	case nil:
	case string:
		libs = []string{vv}
	case []string:
		libs = vv
	case []interface{}:
		libs = make([]string, 0, len(vv))
		for _, x := range vv {
			s, is := x.(string)
			if !is {
				err = errors.New("bad library")
				return
			}
			libs = append(libs, s)
		}
	default:
		err = fmt.Errorf("bad requires (%T)", vv)
	}

	return
}

// AsSource accepts either a string (just code) or a map with "code"
// and optional "requires".
func AsSource(src interface{}) (code string, libs []string, err error) {
	if s, is := src.(string); is {
		return s, nil, nil
	}
	if m, is := core.AsMap(src); is {
		return parseSource(m)
	}
	return "", nil, fmt.Errorf("bad Goja source (%T)", src)
}

// Compile wraps the code in a function and prepends any required
// libraries.
//
// This method can block if the interpreter's LibraryProvider blocks
// in order to obtain external libraries.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (interface{}, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	code = wrapSrc(code)

	var libsSrc string
	for _, lib := range libs {
		libSrc, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		libsSrc += libSrc + "\n"
	}

	code = libsSrc + code

	obj, err := goja.Compile("", code, true)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + code)
	}

	return obj, nil
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

func export(x interface{}) interface{} {
	if v, is := x.(goja.Value); is {
		return v.Export()
	}
	return x
}

// Exec implements core.Interpreter.
//
// The following properties are available from the runtime at _.
//
//	bindings: a copy of the current bindings.
//	value: the carried value.
//	payload: the command's payload.
//
// Some useful utilities:
//
//	gensym(): generate a random string.
//	esc(s): URL query-escape the given string.
//	cronNext(expr): the next time matching the cron expression.
//	log(x): log the JSON representation of x.
//	exec(cmd, value): execute a command (only with AllowCommands).
//
// The result is whatever the code returns, canonicalized as JSON when
// possible.
func (i *Interpreter) Exec(ctx context.Context, rt core.Runtime, st *core.State, payload, carried interface{}, src interface{}, compiled interface{}) (interface{}, error) {
	if compiled == nil {
		var err error
		if compiled, err = i.Compile(ctx, src); err != nil {
			return nil, err
		}
	}
	p, is := compiled.(*goja.Program)
	if !is {
		return nil, fmt.Errorf("Goja bad compilation: %T %#v", compiled, compiled)
	}

	if st == nil {
		st = core.NewState(nil)
	}

	env := map[string]interface{}{
		"bindings": map[string]interface{}(st.Bs.Copy()),
		"value":    carried,
		"payload":  payload,
	}

	o := goja.New()

	o.Set("_", env)

	if i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}

	env["gensym"] = func() interface{} {
		return core.Gensym(32)
	}

	env["cronNext"] = func(x interface{}) interface{} {
		cronExpr, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}

		c, err := cronexpr.Parse(cronExpr)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	env["esc"] = func(x interface{}) interface{} {
		s, is := export(x).(string)
		if !is {
			protest(o, "not a string")
		}
		return url.QueryEscape(s)
	}

	env["log"] = func(x interface{}) interface{} {
		x = export(x)
		js, err := json.Marshal(&x)
		if err != nil {
			log.Println("js.log (can't marshal: " + err.Error() + ")")
		} else {
			log.Println(string(js))
		}
		return x
	}

	if i.AllowCommands && rt != nil {
		env["exec"] = func(cmd, v goja.Value) interface{} {
			var carried interface{}
			if v != nil {
				carried = v.Export()
			}
			x, err := rt.ExecuteOnce(ctx, cmd.Export(), st, carried)
			if err != nil {
				protest(o, err.Error())
			}
			if next, is := x.(*core.State); is {
				return map[string]interface{}(next.Bs)
			}
			return x
		}
	}

	if 0 < i.Timeout {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.Timeout)
		defer cancel()
	}

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If this Exec method calls cancel() after RunProgram
		// returns, then we'll never see this
		// InterruptedMessage, which is actually the behavior
		// we want.  In this case, we weren't actually interrupted.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return nil, Interrupted
		}
		return nil, err
	}

	x := v.Export()
	if x == nil {
		return nil, nil
	}
	if y, err := core.Canonicalize(x); err == nil {
		x = y
	}
	return x, nil
}
