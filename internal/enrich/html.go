package enrich

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

// pageMeta holds the name candidates found in one document.
type pageMeta struct {
	siteName string
	ogTitle  string
	title    string
}

// DisplayName reads at most maxBytes of an HTML page and returns its best
// display name. contentType may carry a charset; otherwise the document is
// sniffed.
func DisplayName(r io.Reader, contentType string, maxBytes int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	decoded, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		decoded = bytes.NewReader(data)
	}

	doc, err := html.Parse(decoded)
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	var meta pageMeta
	collectMeta(doc, &meta)

	switch {
	case meta.siteName != "":
		return strings.Join(strings.Fields(meta.siteName), " "), nil
	case meta.ogTitle != "":
		return cleanName(meta.ogTitle), nil
	case meta.title != "":
		return cleanName(meta.title), nil
	}
	return "", ErrNoDisplayName
}

// collectMeta walks the tree once, keeping the first value of each kind.
func collectMeta(n *html.Node, meta *pageMeta) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Meta:
			prop := strings.ToLower(attr(n, "property"))
			if prop == "" {
				prop = strings.ToLower(attr(n, "name"))
			}
			content := strings.TrimSpace(attr(n, "content"))
			switch {
			case prop == "og:site_name" && meta.siteName == "":
				meta.siteName = content
			case prop == "og:title" && meta.ogTitle == "":
				meta.ogTitle = content
			}
		case atom.Title:
			if meta.title == "" && n.FirstChild != nil {
				meta.title = strings.TrimSpace(n.FirstChild.Data)
			}
		case atom.Body, atom.Script, atom.Style:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectMeta(c, meta)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
