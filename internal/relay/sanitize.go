package relay

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// textPolicy strips every tag; chat bodies are plain text.
var textPolicy = bluemonday.StrictPolicy()

// stripMarkup removes HTML from s while leaving ordinary punctuation such as
// "<3" or "a & b" untouched.
func stripMarkup(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

// hasMarkup reports whether sanitizing would change s.
func hasMarkup(s string) bool {
	return stripMarkup(s) != strings.TrimSpace(s)
}
