// Package rulesets assembles the bundled rule-sets into a Catalog and
// builds Engines that are ready to run scripts.
package rulesets

import (
	"context"
	"log"

	"github.com/Comcast/scanany/config"
	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/base"
	"github.com/Comcast/scanany/rulesets/cast"
	"github.com/Comcast/scanany/rulesets/dom"
	"github.com/Comcast/scanany/rulesets/file"
	"github.com/Comcast/scanany/rulesets/http"
	"github.com/Comcast/scanany/rulesets/js"
	"github.com/Comcast/scanany/rulesets/mqtt"
	"github.com/Comcast/scanany/rulesets/sql"
	"github.com/Comcast/scanany/rulesets/transform"
	"github.com/Comcast/scanany/rulesets/ws"
	"github.com/Comcast/scanany/storage"
	"github.com/Comcast/scanany/storage/bolt"
)

// Preloaded rule-sets are used by every Engine from NewEngine.
var Preloaded = []string{base.Name, cast.Name}

// Interpreter makes the JavaScript interpreter that the "js" rules
// and "interpreter: js" document rules share.
func Interpreter(cfg *config.Config) *js.Interpreter {
	i := js.NewInterpreter()
	i.Timeout = cfg.JSTimeout
	i.LibraryProvider = core.MakeFetcher(cfg.LibDir)
	return i
}

// Standard returns a Catalog of all the bundled rule-sets.
func Standard(cfg *config.Config, i *js.Interpreter) *core.Catalog {
	c := core.NewCatalog()
	c.Add(base.Name, base.Load, "core")
	c.Add(cast.Name, cast.Load, "cast")
	c.Add(transform.Name, transform.Load, "transform")
	c.Add(http.Name, http.Loader(cfg.HTTPTimeout), "http-plugin", "http")
	c.Add(dom.Name, dom.Load, "dom-plugin", "dom")
	c.Add(js.Name, js.Loader(i), "js")
	c.Add(file.Name, file.Loader(cfg.FileDir), "file")
	c.Add(sql.Name, sql.Load, "sql-plugin", "sql")
	c.Add(mqtt.Name, mqtt.Load, "mqtt")
	c.Add(ws.Name, ws.Load, "ws")
	return c
}

// cache returns the rule-set document cache that cfg calls for.
func cache(cfg *config.Config) (core.Cache, func() error, error) {
	nop := func() error { return nil }
	if cfg.NoCache {
		return nil, nop, nil
	}
	if cfg.CacheFile == "" {
		return storage.NewMem(), nop, nil
	}
	s, err := bolt.NewStorage(cfg.CacheFile)
	if err != nil {
		return nil, nil, err
	}
	s.Debug = cfg.Debug
	if err = s.Open(); err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

// NewEngine makes an Engine with the Standard catalog, a document
// cache, YAML rule-set documents, and the JavaScript interpreter.
// The Preloaded rule-sets are already in use.
//
// Call the returned function when done with the Engine.
func NewEngine(ctx context.Context, cfg *config.Config) (*core.Engine, func() error, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c, closer, err := cache(cfg)
	if err != nil {
		return nil, nil, err
	}

	i := Interpreter(cfg)
	e := core.NewEngine(Standard(cfg, i))
	e.Debug = cfg.Debug
	e.Cache = c
	e.Fetcher = core.MakeFetcher(cfg.LibDir)
	e.Decoder = transform.DecodeYAML
	e.Interpreters["js"] = i

	for _, name := range Preloaded {
		if err := e.Use(ctx, core.Ref{Name: name}); err != nil {
			closer()
			return nil, nil, err
		}
	}
	if cfg.Debug {
		log.Printf("rulesets.NewEngine catalog %v", e.Catalog.Names())
	}
	return e, closer, nil
}
