/* Copyright 2019 Comcast Cable Communications Management, LLC
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

package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Loader makes a fresh RuleSet for an Engine.
type Loader func(ctx context.Context) (*RuleSet, error)

// Catalog maps short rule-set names (and their aliases) to Loaders.
type Catalog struct {
	sync.RWMutex
	loaders map[string]Loader
	aliases map[string]string
}

func NewCatalog() *Catalog {
	return &Catalog{
		loaders: make(map[string]Loader),
		aliases: make(map[string]string),
	}
}

// Add adds a Loader under the given name and aliases.  All of them
// resolve to the same rule-set, so loading via one and then another
// loads the rule-set only once.
func (c *Catalog) Add(name string, l Loader, aliases ...string) {
	c.Lock()
	defer c.Unlock()
	c.loaders[name] = l
	c.aliases[name] = name
	for _, a := range aliases {
		c.aliases[a] = name
	}
}

// Resolve returns the canonical name and the Loader for the given name
// or alias.
func (c *Catalog) Resolve(name string) (string, Loader, bool) {
	c.RLock()
	defer c.RUnlock()
	canonical, have := c.aliases[name]
	if !have {
		return "", nil, false
	}
	return canonical, c.loaders[canonical], true
}

// Names lists the canonical names.
func (c *Catalog) Names() []string {
	c.RLock()
	defer c.RUnlock()
	acc := make([]string, 0, len(c.loaders))
	for name := range c.loaders {
		acc = append(acc, name)
	}
	return acc
}

// Ref is a reference to a rule-set.
type Ref struct {
	// Name is a Catalog name, or the name that a fetched document
	// is cached under.
	Name string `json:"name,omitempty"`

	// URL, if given, is where to fetch a rule-set document.
	URL string `json:"url,omitempty"`

	// NoCache skips the Cache for both reading and writing.
	NoCache bool `json:"nocache,omitempty"`
}

func (r Ref) String() string {
	if r.URL != "" {
		if r.Name != "" && r.Name != r.URL {
			return r.Name + "@" + r.URL
		}
		return r.URL
	}
	return r.Name
}

func looksLikeURL(s string) bool {
	return strings.Contains(s, "://") ||
		strings.HasSuffix(s, ".json") ||
		strings.HasSuffix(s, ".yaml") ||
		strings.HasSuffix(s, ".yml")
}

// ParseRefs decodes a "use" or "install" payload.  A payload can be a
// string (a name or a URL), a map with "name", "url", and "nocache"
// (or "no-cache"), or a list of those.
func ParseRefs(x interface{}) ([]Ref, error) {
	if s, is := x.([]interface{}); is {
		acc := make([]Ref, 0, len(s))
		for _, y := range s {
			refs, err := ParseRefs(y)
			if err != nil {
				return nil, err
			}
			acc = append(acc, refs...)
		}
		return acc, nil
	}
	if ss, is := x.([]string); is {
		acc := make([]Ref, 0, len(ss))
		for _, s := range ss {
			refs, _ := ParseRefs(s)
			acc = append(acc, refs...)
		}
		return acc, nil
	}

	switch vv := x.(type) {
	case Ref:
		return []Ref{vv}, nil
	case string:
		if vv == "" {
			return nil, errors.New("empty rule-set reference")
		}
		if looksLikeURL(vv) {
			return []Ref{{Name: vv, URL: vv}}, nil
		}
		return []Ref{{Name: vv}}, nil
	}

	m, is := AsMap(x)
	if !is {
		return nil, fmt.Errorf("bad rule-set reference %#v", x)
	}
	var ref Ref
	if s, is := m["name"].(string); is {
		ref.Name = s
	}
	if s, is := m["url"].(string); is {
		ref.URL = s
	}
	for _, k := range []string{"nocache", "no-cache", "noCache"} {
		if b, is := m[k].(bool); is {
			ref.NoCache = b
		}
	}
	if ref.Name == "" {
		ref.Name = ref.URL
	}
	if ref.Name == "" {
		return nil, fmt.Errorf("rule-set reference %#v has no name or url", x)
	}
	return []Ref{ref}, nil
}

// Fetcher obtains the bytes at a URL.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// FetchTimeout limits each HTTP request made by a Fetcher from
// MakeFetcher.
var FetchTimeout = 30 * time.Second

// MakeFetcher returns a Fetcher that supports "file", "http", and
// "https" URLs.  A URL without a protocol is a file path.  Relative
// file paths are relative to the given directory.
func MakeFetcher(dir string) Fetcher {
	client := &http.Client{Timeout: FetchTimeout}
	return func(ctx context.Context, name string) ([]byte, error) {
		parts := strings.SplitN(name, "://", 2)
		if len(parts) == 1 {
			parts = []string{"file", name}
		}
		switch parts[0] {
		case "file":
			filename := parts[1]
			if !filepath.IsAbs(filename) {
				filename = filepath.Join(dir, filename)
			}
			return os.ReadFile(filename)
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, "GET", name, nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("rule-set fetch status %s", resp.Status)
			}
			return io.ReadAll(resp.Body)
		default:
			return nil, fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

// Cache keeps rule-set documents by name.
//
// Get returns nil (and no error) when there's nothing cached under
// the name.
type Cache interface {
	Get(ctx context.Context, name string) ([]byte, error)
	Put(ctx context.Context, name string, bs []byte) error
}

// Use loads and registers the referenced rule-sets.
//
// A Ref without a URL names a Catalog entry or, failing that, a
// document previously installed in the Cache.  A Ref with a URL is
// fetched (or taken from the Cache) and decoded as a rule-set
// document.
//
// Each rule-set is loaded at most once per Engine.  Using it again is
// a no-op.
func (e *Engine) Use(ctx context.Context, refs ...Ref) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	for _, ref := range refs {
		id, load, err := e.resolve(ctx, ref)
		if err != nil {
			return &LoadFailure{Ref: ref.String(), Err: err}
		}
		ids := []string{id}
		if ref.URL != "" && ref.Name != ref.URL {
			// Also known by its URL.
			ids = append(ids, "doc:"+ref.URL)
		}
		if e.anyLoaded(ids) {
			e.logf("Use %s already loaded", id)
		} else {
			set, err := load(ctx)
			if err != nil {
				return &LoadFailure{Ref: ref.String(), Err: err}
			}
			if err = e.Register(set); err != nil {
				return &LoadFailure{Ref: ref.String(), Err: err}
			}
		}
		for _, id := range ids {
			e.loaded[id] = true
		}
	}
	return nil
}

func (e *Engine) anyLoaded(ids []string) bool {
	for _, id := range ids {
		if e.loaded[id] {
			return true
		}
	}
	return false
}

// Loaded reports whether the rule-set with the given id (either
// "catalog:NAME" or "doc:NAME") has been loaded.  A document's name
// defaults to its URL.
func (e *Engine) Loaded(id string) bool {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()
	return e.loaded[id]
}

// docID identifies a rule-set document by its name, so that the same
// document reached from the cache or from its URL loads once.
func docID(ref Ref) string {
	if ref.Name != "" {
		return "doc:" + ref.Name
	}
	return "doc:" + ref.URL
}

// resolve finds the identity and the Loader for the Ref.
func (e *Engine) resolve(ctx context.Context, ref Ref) (string, Loader, error) {
	if ref.URL == "" {
		if name, l, have := e.Catalog.Resolve(ref.Name); have {
			return "catalog:" + name, l, nil
		}
		if e.Cache != nil && !ref.NoCache {
			bs, err := e.Cache.Get(ctx, ref.Name)
			if err != nil {
				return "", nil, err
			}
			if bs != nil {
				return docID(ref), func(ctx context.Context) (*RuleSet, error) {
					return e.decodeRuleSet(ctx, ref.Name, bs)
				}, nil
			}
		}
		return "", nil, UnknownRuleSet
	}

	return docID(ref), func(ctx context.Context) (*RuleSet, error) {
		bs, err := e.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		return e.decodeRuleSet(ctx, ref.Name, bs)
	}, nil
}

func (e *Engine) fetch(ctx context.Context, ref Ref) ([]byte, error) {
	caching := e.Cache != nil && !ref.NoCache && ref.Name != ""
	if caching {
		bs, err := e.Cache.Get(ctx, ref.Name)
		if err != nil {
			return nil, err
		}
		if bs != nil {
			e.logf("fetch %s from cache", ref.Name)
			return bs, nil
		}
	}
	if e.Fetcher == nil {
		return nil, errors.New("no fetcher")
	}
	bs, err := e.Fetcher(ctx, ref.URL)
	if err != nil {
		return nil, err
	}
	if caching {
		if err = e.Cache.Put(ctx, ref.Name, bs); err != nil {
			return nil, err
		}
	}
	return bs, nil
}

// Install fetches the referenced rule-set document and writes it to
// the Cache, so that a later Use of the Ref's name finds it.  Install
// always fetches.  Nothing is registered.
func (e *Engine) Install(ctx context.Context, ref Ref) error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	if e.Cache == nil {
		return &LoadFailure{Ref: ref.String(), Err: NoCache}
	}
	if ref.URL == "" {
		return &LoadFailure{Ref: ref.String(), Err: errors.New("no url")}
	}
	if e.Fetcher == nil {
		return &LoadFailure{Ref: ref.String(), Err: errors.New("no fetcher")}
	}
	bs, err := e.Fetcher(ctx, ref.URL)
	if err != nil {
		return &LoadFailure{Ref: ref.String(), Err: err}
	}
	// Check that what we're installing is usable.
	if _, err = e.parseDocument(bs); err != nil {
		return &LoadFailure{Ref: ref.String(), Err: err}
	}
	name := ref.Name
	if name == "" {
		name = ref.URL
	}
	if err = e.Cache.Put(ctx, name, bs); err != nil {
		return &LoadFailure{Ref: ref.String(), Err: err}
	}
	e.logf("Install %s", ref)
	return nil
}
