package core

import (
	"encoding/json"
	"io"
	"strings"
)

// ResourceMarker starts the first segment of any path that addresses
// a State's resources rather than its Bindings.
const ResourceMarker = "$"

// State is the context threaded through a script.
//
// Bs holds user data.  Transient resources (open connections, loaded
// documents, the current element of an iteration) live in a separate
// table so they can't collide with user keys.  A path whose first
// segment starts with ResourceMarker addresses that table.
//
// A State is owned by one in-flight execution.  Nested executions
// share the same State.
type State struct {
	Bs Bindings `json:"bs"`

	resources map[string]interface{}
}

// NewState makes a State with the given Bindings, which can be nil.
func NewState(bs Bindings) *State {
	if bs == nil {
		bs = NewBindings()
	}
	return &State{
		Bs:        bs,
		resources: make(map[string]interface{}, 4),
	}
}

func (s *State) String() string {
	if s == nil {
		return "nil"
	}
	js, err := json.Marshal(s.Bs)
	if err != nil {
		return "{*}"
	}
	return string(js)
}

// MarshalJSON renders only the Bindings.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Bs)
}

func isResourcePath(segs []interface{}) bool {
	s, is := segs[0].(string)
	return is && strings.HasPrefix(s, ResourceMarker)
}

func (s *State) table(segs []interface{}) map[string]interface{} {
	if isResourcePath(segs) {
		if s.resources == nil {
			s.resources = make(map[string]interface{}, 4)
		}
		return s.resources
	}
	if s.Bs == nil {
		s.Bs = NewBindings()
	}
	return s.Bs
}

// Get follows the path into the Bindings or, for a path starting with
// ResourceMarker, into the resources.
func (s *State) Get(path interface{}) (interface{}, bool) {
	segs, err := ParsePath(path)
	if err != nil {
		return nil, false
	}
	return getIn(s.table(segs), segs)
}

// Set writes the value at the path.  See Get.
func (s *State) Set(path interface{}, v interface{}) error {
	segs, err := ParsePath(path)
	if err != nil {
		return err
	}
	_, err = setIn(s.table(segs), segs, v)
	return err
}

// Acquire registers a transient resource.  The name should start with
// ResourceMarker so that scripts can reach the resource with a $ref.
func (s *State) Acquire(name string, r interface{}) {
	if s.resources == nil {
		s.resources = make(map[string]interface{}, 4)
	}
	s.resources[name] = r
}

// Resource returns the named resource, if any.
func (s *State) Resource(name string) (interface{}, bool) {
	r, have := s.resources[name]
	return r, have
}

// Release removes the named resource and closes it if it's an
// io.Closer.
func (s *State) Release(name string) error {
	r, have := s.resources[name]
	if !have {
		return nil
	}
	delete(s.resources, name)
	if c, is := r.(io.Closer); is {
		return c.Close()
	}
	return nil
}

// Forget removes whatever is at the path, which can be a resource
// or a binding, without closing anything.  Only map entries are
// removed; an array element stays put.
func (s *State) Forget(path interface{}) {
	segs, err := ParsePath(path)
	if err != nil {
		return
	}
	parent, have := getIn(s.table(segs), segs[:len(segs)-1])
	if !have {
		return
	}
	k := key(segs[len(segs)-1])
	switch vv := parent.(type) {
	case map[string]interface{}:
		delete(vv, k)
	case Bindings:
		delete(vv, k)
	case map[interface{}]interface{}:
		delete(vv, k)
	}
}

// Resources lists the names of the current resources.
func (s *State) Resources() []string {
	acc := make([]string, 0, len(s.resources))
	for name := range s.resources {
		acc = append(acc, name)
	}
	return acc
}

// merge copies the top-level keys of the given context into this
// State.  The given keys win.
func (s *State) merge(other *State) {
	if other == nil || other == s {
		return
	}
	for k, v := range other.Bs {
		s.Bs[k] = v
	}
	for k, v := range other.resources {
		s.Acquire(k, v)
	}
}

// WithResource acquires the resource, calls f, and then releases the
// resource even if f fails.  A previous resource with the same name is
// restored (without being closed) afterwards.
func WithResource(s *State, name string, r interface{}, f func() error) (err error) {
	prev, had := s.resources[name]
	s.Acquire(name, r)
	defer func() {
		if rerr := s.Release(name); err == nil {
			err = rerr
		}
		if had {
			s.Acquire(name, prev)
		}
	}()
	return f()
}
