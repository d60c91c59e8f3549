package adapters

import "golang.org/x/net/html"

// GenericAdapter is the fallback adapter for unknown domains
type GenericAdapter struct {
	BaseAdapter
}

// NewGenericAdapter creates a new generic adapter
func NewGenericAdapter() *GenericAdapter {
	return &GenericAdapter{}
}

// Name returns the adapter name
func (a *GenericAdapter) Name() string {
	return "generic"
}

// CanHandle always returns true (fallback adapter)
func (a *GenericAdapter) CanHandle(url string, contentType string) bool {
	return true
}

// ExtractText prefers the main/article element and falls back to the whole page
func (a *GenericAdapter) ExtractText(doc *html.Node, url string) string {
	return a.VisibleText(a.mainContent(doc), nil)
}
