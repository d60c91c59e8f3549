package adapters

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// DocsAdapter handles official documentation and standards pages, whose
// sidebars and tables of contents otherwise drown the body text
type DocsAdapter struct {
	BaseAdapter
	docsHosts     []string
	chromeClasses []string
}

// NewDocsAdapter creates a new documentation adapter
func NewDocsAdapter() *DocsAdapter {
	return &DocsAdapter{
		docsHosts: []string{
			"readthedocs.io", "rfc-editor.org", "developer.mozilla.org",
			"learn.microsoft.com", "docs.github.com", "pkg.go.dev",
		},
		chromeClasses: []string{
			"toc", "sidebar", "breadcrumb", "breadcrumbs", "navbar",
			"edit-page", "feedback", "pagination",
		},
	}
}

// Name returns the adapter name
func (a *DocsAdapter) Name() string {
	return "docs"
}

// CanHandle matches known documentation hosts, docs.* subdomains and /docs/ paths
func (a *DocsAdapter) CanHandle(rawURL string, contentType string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())

	if strings.HasPrefix(host, "docs.") {
		return true
	}
	for _, docsHost := range a.docsHosts {
		if host == docsHost || strings.HasSuffix(host, "."+docsHost) {
			return true
		}
	}
	return strings.HasPrefix(strings.ToLower(parsed.Path), "/docs/")
}

// ExtractText returns the main content without navigation chrome
func (a *DocsAdapter) ExtractText(doc *html.Node, rawURL string) string {
	return a.VisibleText(a.mainContent(doc), func(n *html.Node) bool {
		if a.GetAttribute(n, "role") == "navigation" {
			return true
		}
		for _, class := range a.chromeClasses {
			if a.HasClass(n, class) {
				return true
			}
		}
		return false
	})
}
