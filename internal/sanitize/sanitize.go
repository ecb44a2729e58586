// Package sanitize reduces user-supplied text to plain text before it is
// stored or rate-limit checked.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var policy = bluemonday.StrictPolicy()

// Text strips null bytes and all HTML markup, unescapes the remaining
// entities back to plain text and trims surrounding whitespace.
func Text(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = policy.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}
