// Package file is the "file-plugin" rule-set: reading local files.
package file

import (
	"context"
	"os"
	"path/filepath"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"
)

// Name is the catalog name of this rule-set.
const Name = "file-plugin"

// ContentResource is the default destination of a file's content.
const ContentResource = "$content"

type rules struct {
	rt  core.Runtime
	dir string
}

// New makes a fresh instance of the rule-set.  Relative paths are
// relative to the given directory.
func New(dir string) *core.RuleSet {
	if dir == "" {
		dir = "."
	}
	r := &rules{dir: dir}
	return &core.RuleSet{
		Name: "file",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: []*core.Rule{
			{Names: []string{"file", "file.read"}, Kind: core.ContextRule, Exec: r.read},
		},
	}
}

// Loader makes a core.Loader for this rule-set.
func Loader(dir string) core.Loader {
	return func(ctx context.Context) (*core.RuleSet, error) {
		return New(dir), nil
	}
}

// read reads the file at "path", runs any "transform" on its content,
// and stores the result.  The content is a string unless "encoding"
// is "binary".
func (r *rules) read(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	path := ruleutil.String(r.rt, st, payload, "", "path")
	if path == "" {
		return nil, &core.BadCommand{
			Command: payload,
			Reason:  "file needs a path",
		}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.dir, path)
	}
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var result interface{} = string(bs)
	if ruleutil.String(r.rt, st, payload, "", "encoding") == "binary" {
		result = bs
	}
	if t := ruleutil.Resolved(r.rt, st, payload, "transform"); t != nil {
		if result, err = r.rt.ExecuteOnce(ctx, core.Keyed("transform", t), st, result); err != nil {
			return nil, err
		}
	}
	return ruleutil.Into(ctx, r.rt, st, payload, ContentResource, result)
}
