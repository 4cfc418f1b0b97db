// Package websearch wraps the external web-search collaborator behind a
// small Adapter interface, with backends for Tavily (hosted, API key) and
// SearXNG (self-hosted).
package websearch

import (
	"context"
	"fmt"
	"strings"
)

// Result is one ranked search result.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Adapter is the search collaborator interface. Implementations are
// black boxes to the rest of the system.
type Adapter interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Format renders results as the ranked text block handed back to the
// oracle as an observation.
func Format(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   URL: %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}
