package markup

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// ParseHTML parses an HTML document or fragment into a Document. Text nodes
// are folded into their parent element's Text field; comments and doctype
// nodes are dropped. The returned root is the <html> element for full
// documents, or a synthetic container for fragments.
func ParseHTML(r io.Reader) (*Document, error) {
	node, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	root := convertNode(node)
	if root == nil {
		return nil, fmt.Errorf("parse html: no element content")
	}
	return &Document{Root: root}, nil
}

// convertNode maps an html.Node subtree onto our element tree. Document
// nodes collapse to their first element child.
func convertNode(n *html.Node) *Element {
	if n.Type == html.DocumentNode {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if el := convertNode(c); el != nil {
				return el
			}
		}
		return nil
	}
	if n.Type != html.ElementNode {
		return nil
	}

	el := NewElement(n.Data)
	for _, a := range n.Attr {
		el.SetAttr(a.Key, a.Val)
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			text.WriteString(c.Data)
		case html.ElementNode:
			if child := convertNode(c); child != nil {
				el.AppendChild(child)
			}
		}
	}
	el.Text = strings.TrimSpace(text.String())
	return el
}
