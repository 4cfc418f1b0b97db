// Package api defines the shared data model for the reagent agent:
// messages, tool calls and results, runs, artifacts, identifiers, and
// the error taxonomy. Every other package depends on api; api depends
// on nothing but the standard library.
package api
