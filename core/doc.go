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

// Package core provides the engine for declarative pipelines.  A
// pipeline is a Script: an ordered sequence of named Commands, each
// of which is dispatched to a Rule.
//
// The primary type is Engine, and the primary methods are Execute and
// ExecuteOnce.  Execute threads a State (the script's context) through
// the Commands one by one.  ExecuteOnce finds the one Rule that claims
// a Command's name and calls that Rule's Handler with the Command's
// payload, the State, and a carried value.
//
// Rules come from RuleSets.  A RuleSet can be registered directly
// (Register) or loaded by name or URL (Use).  When a RuleSet is
// registered, it gets a Runtime, which it can use to resolve values
// and to execute other commands (including commands from other
// RuleSets).  That's how composite behavior ("fetch, transform,
// store") gets built without the engine knowing anything about
// fetching, transforming, or storing.
//
// Payloads can contain two sentinels: {"$ref": PATH} refers to a value
// in the State, and {"$const": X} is the literal X.  ResolveValue only
// looks at the outermost value.
//
// A Rule is either a ContextRule, whose result is the next context, or
// a ValueRule, whose result is a plain value that goes back to the
// caller.  Typically a value gets stored with a following "into".
//
// Execution is sequential.  A Handler can block (on IO, say), and the
// Engine waits for it.  There are no retries and no timeouts here;
// those belong to the RuleSets that do IO.
package core
