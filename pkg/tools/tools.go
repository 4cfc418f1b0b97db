// Package tools defines the closed tool set the oracle may call and the
// dispatcher that executes calls against a session's environment. The set is
// deliberately enumerated rather than a plugin table: the loop's correctness
// depends on knowing every tool's failure modes.
package tools

import (
	"encoding/json"

	"github.com/reagent-dev/reagent/pkg/oracle"
)

// Name identifies a tool. The set is closed; unknown names produce an
// error-bearing result at dispatch time.
type Name string

const (
	// NameExecuteCode runs Python code in the session's environment.
	NameExecuteCode Name = "execute_code"

	// NameInstallPackage installs a Python package into the sandbox
	// environment. Not applicable to the local variant.
	NameInstallPackage Name = "install_package"

	// NameWebSearch queries the web-search collaborator.
	NameWebSearch Name = "web_search"
)

// executeCodeArgs is the argument mapping for execute_code.
type executeCodeArgs struct {
	Code string `json:"code"`
}

// installPackageArgs is the argument mapping for install_package.
type installPackageArgs struct {
	Package string `json:"package"`
}

// webSearchArgs is the argument mapping for web_search.
type webSearchArgs struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

// Specs returns the tool schemas attached to every oracle request.
func Specs() []oracle.ToolSpec {
	return []oracle.ToolSpec{
		{
			Name: string(NameExecuteCode),
			Description: "Execute Python code and return its stdout, stderr, and any files it produces. " +
				"Variables persist between calls within the session.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"code": {"type": "string", "description": "Python source to execute"}
				},
				"required": ["code"]
			}`),
		},
		{
			Name: string(NameInstallPackage),
			Description: "Install a Python package by its pip name so subsequent code can import it. " +
				"Installation persists for the rest of the session.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"package": {"type": "string", "description": "pip package name, e.g. \"pandas\""}
				},
				"required": ["package"]
			}`),
		},
		{
			Name:        string(NameWebSearch),
			Description: "Search the web and return ranked results with titles, URLs, and snippets.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"query": {"type": "string", "description": "search query"},
					"max_results": {"type": "integer", "description": "maximum results to return"}
				},
				"required": ["query"]
			}`),
		},
	}
}
