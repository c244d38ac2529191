// Package sql is the "mysql-plugin" rule-set, generalized to any
// database/sql driver.  SQLite (modernc.org/sqlite) is built in.
//
// The "sql" command (also "mysql") opens a database, runs its
// "apply" with the database available as $pool, and closes it.
// Within that, "execute" runs a query and stores the rows.
package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/Comcast/scanany/core"
	"github.com/Comcast/scanany/rulesets/ruleutil"

	_ "modernc.org/sqlite"
)

// Name is the catalog name of this rule-set.
const Name = "mysql-plugin"

const (
	// PoolResource holds the open database.
	PoolResource = "$pool"

	// ResponseResource is the default destination of query
	// results.
	ResponseResource = "$response"

	// DefaultDriver is used when the options don't name one.
	DefaultDriver = "sqlite"
)

// NoPool is returned by queries outside of a "sql" command.
var NoPool = errors.New("no database (use within a sql command)")

type rules struct {
	rt core.Runtime
}

// New makes a fresh instance of the rule-set.
func New() *core.RuleSet {
	r := &rules{}
	return &core.RuleSet{
		Name: "sql",
		Register: func(rt core.Runtime) {
			r.rt = rt
		},
		Rules: []*core.Rule{
			{Names: []string{"sql", "mysql"}, Kind: core.ContextRule, Exec: r.engine},
			{Names: []string{"execute", "sql.query"}, Kind: core.ContextRule, Exec: r.query},
			{Names: []string{"sql.exec"}, Kind: core.ContextRule, Exec: r.exec},
		},
	}
}

// Load is a core.Loader for this rule-set.
func Load(ctx context.Context) (*core.RuleSet, error) {
	return New(), nil
}

// open uses the "options" (or the payload itself) for "driver" and
// "dsn".
func (r *rules) open(ctx context.Context, payload interface{}, st *core.State) (*sql.DB, error) {
	opts := ruleutil.Resolved(r.rt, st, payload, "options")
	if opts == nil {
		opts = payload
	}
	driver := ruleutil.String(r.rt, st, opts, DefaultDriver, "driver")
	dsn := ruleutil.String(r.rt, st, opts, "", "dsn")
	if dsn == "" {
		return nil, &core.BadCommand{
			Command: payload,
			Reason:  "sql needs a dsn",
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if strings.Contains(dsn, ":memory:") {
		// Every connection would get its own database.
		db.SetMaxOpenConns(1)
	}
	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

func (r *rules) engine(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	db, err := r.open(ctx, payload, st)
	if err != nil {
		return nil, err
	}
	apply := ruleutil.Resolved(r.rt, st, payload, "apply")
	err = core.WithResource(st, PoolResource, db, func() error {
		st, err = ruleutil.Apply(ctx, r.rt, st, apply, carried)
		return err
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (r *rules) pool(st *core.State) (*sql.DB, error) {
	x, _ := st.Resource(PoolResource)
	db, is := x.(*sql.DB)
	if !is {
		return nil, NoPool
	}
	return db, nil
}

// statement gets the "sql" and its "params".
func (r *rules) statement(payload interface{}, st *core.State) (string, []interface{}, error) {
	q := ruleutil.String(r.rt, st, payload, "", "sql")
	if q == "" {
		return "", nil, &core.BadCommand{
			Command: payload,
			Reason:  "need sql",
		}
	}
	var params []interface{}
	if x := ruleutil.Resolved(r.rt, st, payload, "params", "values"); x != nil {
		for _, p := range core.AsList(x) {
			params = append(params, r.rt.ResolveValue(p, st))
		}
	}
	return q, params, nil
}

// query stores the rows as a list of maps.
func (r *rules) query(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	db, err := r.pool(st)
	if err != nil {
		return nil, err
	}
	q, params, err := r.statement(payload, st)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	acc := make([]interface{}, 0, 8)
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err = rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			if bs, is := vals[i].([]byte); is {
				row[col] = string(bs)
			} else {
				row[col] = vals[i]
			}
		}
		acc = append(acc, row)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return ruleutil.Into(ctx, r.rt, st, payload, ResponseResource, acc)
}

// exec runs a statement that doesn't return rows.
func (r *rules) exec(ctx context.Context, payload interface{}, st *core.State, carried interface{}) (interface{}, error) {
	db, err := r.pool(st)
	if err != nil {
		return nil, err
	}
	q, params, err := r.statement(payload, st)
	if err != nil {
		return nil, err
	}
	res, err := db.ExecContext(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	result := map[string]interface{}{}
	if n, err := res.RowsAffected(); err == nil {
		result["rowsAffected"] = n
	}
	if id, err := res.LastInsertId(); err == nil {
		result["lastInsertId"] = id
	}
	return ruleutil.Into(ctx, r.rt, st, payload, ResponseResource, result)
}
