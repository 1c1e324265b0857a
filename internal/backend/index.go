package backend

import (
	"io"
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
)

// indexLink is one child found on a directory index page.
type indexLink struct {
	// Name is the unescaped child name without a trailing slash.
	Name string

	// Dir is true if the link ended in "/".
	Dir bool
}

// parseIndex extracts the children of page from an autoindex HTML document.
//
// Only links that resolve to a direct child of page on the same host are
// kept. Sort links ("?C=N;O=D"), the parent link and absolute links to other
// sites are dropped.
//
// Design decision: We use golang.org/x/net/html for parsing rather than
// regex because:
//  1. Index pages generated by different servers vary in markup
//  2. It correctly handles malformed HTML
//  3. Attribute values are unescaped for us
func parseIndex(content io.Reader, page *url.URL) ([]indexLink, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	dirPath := page.Path
	if !strings.HasSuffix(dirPath, "/") {
		dirPath += "/"
	}

	var links []indexLink
	seen := make(map[string]bool)

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if link, ok := childLink(getAttr(n, "href"), page, dirPath); ok && !seen[link.Name] {
				seen[link.Name] = true
				links = append(links, link)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

// childLink resolves href against page and reports whether it names a
// direct child of dirPath.
func childLink(href string, page *url.URL, dirPath string) (indexLink, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "?") {
		return indexLink{}, false
	}
	for _, scheme := range []string{"javascript:", "mailto:", "data:"} {
		if strings.HasPrefix(strings.ToLower(href), scheme) {
			return indexLink{}, false
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return indexLink{}, false
	}
	resolved := page.ResolveReference(u)
	if !strings.EqualFold(resolved.Host, page.Host) || resolved.RawQuery != "" {
		return indexLink{}, false
	}

	p := resolved.Path
	if !strings.HasPrefix(p, dirPath) {
		return indexLink{}, false
	}
	rest := strings.TrimPrefix(p, dirPath)
	isDir := strings.HasSuffix(rest, "/")
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" || strings.Contains(rest, "/") || rest == "." || rest == ".." {
		return indexLink{}, false
	}

	return indexLink{Name: path.Clean(rest), Dir: isDir}, true
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}
