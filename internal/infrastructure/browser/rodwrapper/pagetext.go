// Package rodwrapper holds page-content helpers shared by the rod driver.
package rodwrapper

import (
	"strings"

	"golang.org/x/net/html"
)

// maxTextSize caps the extracted text; readiness probes only scan the
// beginning of a page anyway.
const maxTextSize = 100_000

var skippedTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"svg":      true,
	"iframe":   true,
	"head":     true,
	"title":    true,
}

// ExtractText reduces raw HTML to whitespace-normalized visible text, used
// to detect login walls and readiness markers.
func ExtractText(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	collectText(doc, &sb)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if len(text) > maxTextSize {
		text = text[:maxTextSize]
	}
	return text
}

func collectText(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode && skippedTags[n.Data] {
		return
	}
	if n.Type == html.TextNode {
		sb.WriteString(n.Data)
		sb.WriteByte(' ')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, sb)
	}
}
