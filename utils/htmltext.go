package utils

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	scriptOrStyle = regexp.MustCompile(`(?is)<(script|style)\b[^>]*>.*?</(script|style)\s*>`)
	stripAll      = textPolicy()
)

// textPolicy strips every tag. Only script and style lose their content, and those are removed
// before the policy runs.
func textPolicy() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AllowElementsContent("noscript", "title", "iframe", "object", "noembed", "noframes", "nostyle", "frame", "frameset")
	return p
}

// HTMLToText derives the plain text of an HTML body: script and style elements are dropped with
// their content, remaining tags are stripped, entities decoded and whitespace collapsed.
func HTMLToText(body string) string {
	if body == "" {
		return ""
	}
	text := scriptOrStyle.ReplaceAllString(body, "")
	text = stripAll.Sanitize(text)
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}
