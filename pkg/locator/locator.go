// Package locator builds and parses share locators. The canonical form
// keeps the code in a URL fragment, which browsers never send to any
// server, so the raw code cannot end up in request logs. A query
// parameter form is accepted on parse for compatibility, but is never
// generated.
package locator

import (
	"net/url"
	"strings"
)

const codeParam = "code"

// Build returns the canonical fragment-style locator for a code, of the
// form origin/#code=CODE.
func Build(origin, code string) string {
	origin = strings.TrimRight(origin, "/")
	return origin + "/#" + codeParam + "=" + url.QueryEscape(code)
}

// Parse extracts the share code from a locator. The fragment form wins
// over the legacy query form when both are present. A bare code (no URL
// structure at all) is returned as-is.
func Parse(raw string) (code string, ok bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	if u.Fragment != "" {
		if vals, err := url.ParseQuery(u.Fragment); err == nil {
			if c := vals.Get(codeParam); c != "" {
				return c, true
			}
		}
	}

	if c := u.Query().Get(codeParam); c != "" {
		return c, true
	}

	// Not a URL at all: treat the input as a code typed directly.
	if u.Scheme == "" && u.Host == "" && !strings.ContainsAny(raw, "/?#=") {
		return raw, true
	}

	return "", false
}
