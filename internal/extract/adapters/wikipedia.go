package adapters

import (
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// citationMarker matches leftover "[12]", "[a]" and "[citation needed]" markers
var citationMarker = regexp.MustCompile(`\[(\d+|[a-z]|citation needed|edit)\]`)

// WikipediaAdapter extracts the article body of Wikipedia pages
type WikipediaAdapter struct {
	BaseAdapter
	stopSections []string
}

// NewWikipediaAdapter creates a new Wikipedia adapter
func NewWikipediaAdapter() *WikipediaAdapter {
	return &WikipediaAdapter{
		stopSections: []string{
			"references", "notes", "see also", "external links",
			"further reading", "bibliography", "sources",
		},
	}
}

// Name returns the adapter name
func (a *WikipediaAdapter) Name() string {
	return "wikipedia"
}

// CanHandle accepts article pages on any language or mobile Wikipedia host
func (a *WikipediaAdapter) CanHandle(rawURL string, contentType string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != "wikipedia.org" && !strings.HasSuffix(host, ".wikipedia.org") {
		return false
	}
	return strings.HasPrefix(u.Path, "/wiki/")
}

// ExtractText returns the article prose up to the reference sections.
// Infoboxes, navboxes, edit links and citation markers are dropped.
func (a *WikipediaAdapter) ExtractText(doc *html.Node, rawURL string) string {
	content := a.FindFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "div" &&
			(a.HasClass(n, "mw-parser-output") || a.GetAttribute(n, "id") == "mw-content-text")
	})
	if content == nil {
		content = doc
	}

	stopped := false
	text := a.VisibleText(content, func(n *html.Node) bool {
		if stopped {
			return true
		}
		if (n.Data == "h2" || n.Data == "h3") && a.isStopSection(n) {
			stopped = true
			return true
		}
		switch n.Data {
		case "sup", "style":
			return true
		case "table":
			return a.HasClass(n, "infobox") || a.HasClass(n, "navbox") ||
				a.HasClass(n, "sidebar") || a.HasClass(n, "metadata")
		}
		return a.HasClass(n, "mw-editsection") || a.HasClass(n, "navbox") ||
			a.HasClass(n, "hatnote") || a.HasClass(n, "reflist") ||
			a.HasClass(n, "toc") || a.HasClass(n, "thumb")
	})

	return strings.TrimSpace(citationMarker.ReplaceAllString(text, ""))
}

// isStopSection reports whether a header opens the trailing reference sections
func (a *WikipediaAdapter) isStopSection(header *html.Node) bool {
	title := strings.ToLower(citationMarker.ReplaceAllString(a.BaseAdapter.ExtractText(header), ""))
	title = strings.TrimSpace(title)
	for _, stop := range a.stopSections {
		if title == stop {
			return true
		}
	}
	return false
}
