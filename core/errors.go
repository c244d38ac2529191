package core

// These errors are fatal to the current Execute.  The engine never
// retries and never suppresses them.

import (
	"errors"
	"fmt"
	"strings"
)

// NotImplemented occurs when no registered rule claims a command
// name.
type NotImplemented struct {
	Name string
}

func (e *NotImplemented) Error() string {
	return `"` + e.Name + `" command not implemented`
}

// AmbiguousCommand occurs when two or more registered rules claim the
// same alias.  Groups holds the full alias sets of all the
// conflicting rules, so a script author can pick a more specific
// alias.
type AmbiguousCommand struct {
	Name   string
	Groups [][]string
}

func (e *AmbiguousCommand) Error() string {
	groups := make([]string, len(e.Groups))
	for i, g := range e.Groups {
		groups[i] = "(" + strings.Join(g, ", ") + ")"
	}
	return `multiple determination of "` + e.Name + `"; command aliases ` +
		strings.Join(groups, " ") + ` required`
}

// HandlerFailure wraps an error returned by a rule's handler.
//
// Use errors.As or errors.Is to get at the original error.
type HandlerFailure struct {
	Name string
	Err  error
}

func (e *HandlerFailure) Error() string {
	return `"` + e.Name + `" failed: ` + e.Err.Error()
}

func (e *HandlerFailure) Unwrap() error {
	return e.Err
}

// LoadFailure occurs when a rule-set reference can't be resolved,
// fetched, decoded, or installed.
type LoadFailure struct {
	Ref string
	Err error
}

func (e *LoadFailure) Error() string {
	return `can't load "` + e.Ref + `": ` + e.Err.Error()
}

func (e *LoadFailure) Unwrap() error {
	return e.Err
}

// BadCommand occurs when a value can't be decoded as a Command.
type BadCommand struct {
	Command interface{}
	Reason  string
}

func (e *BadCommand) Error() string {
	return fmt.Sprintf("bad command %#v: %s", e.Command, e.Reason)
}

// BadResult occurs when a ContextRule returns something that isn't a
// context.
type BadResult struct {
	Name   string
	Result interface{}
}

func (e *BadResult) Error() string {
	return fmt.Sprintf(`context rule "%s" returned a %T`, e.Name, e.Result)
}

// BadRule occurs when a RuleSet contributes a rule without names or
// without a handler.
type BadRule struct {
	RuleSet string
	Names   []string
}

func (e *BadRule) Error() string {
	return `rule-set "` + e.RuleSet + `" has a bad rule (` + strings.Join(e.Names, ", ") + `)`
}

var (
	// UnknownRuleSet is the cause of a LoadFailure for a name
	// that's neither in the Catalog nor in the Cache.
	UnknownRuleSet = errors.New("unknown rule-set")

	// NoCache is the cause of a LoadFailure when Install is
	// called on an Engine without a Cache.
	NoCache = errors.New("no cache")

	// BadPath occurs when a path can't be parsed or can't be
	// followed for a Set.
	BadPath = errors.New("bad path")
)

// isCoreError reports whether the error was already produced by the
// dispatcher, in which case it should travel up unchanged.
func isCoreError(err error) bool {
	switch err.(type) {
	case *NotImplemented, *AmbiguousCommand, *HandlerFailure, *LoadFailure, *BadCommand, *BadResult:
		return true
	}
	return false
}
