// Package htmlhost implements browser.Host over a parsed HTML document. It
// drives the tracking engine outside a browser: the session simulator and
// engine tests dispatch events on a Page the way a user would.
package htmlhost

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"github.com/okian/convtrack/internal/domain/browser"
	"golang.org/x/net/html"
)

// Document is a parsed HTML document with a selector cache.
type Document struct {
	root *html.Node

	mu        sync.Mutex
	selectors map[string]cascadia.Matcher
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root, selectors: make(map[string]cascadia.Matcher)}, nil
}

// ParseString parses an HTML document held in a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// matcher compiles selector once. Invalid selectors yield nil.
func (d *Document) matcher(selector string) cascadia.Matcher {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.selectors[selector]; ok {
		return m
	}
	var m cascadia.Matcher
	if g, err := cascadia.ParseGroup(selector); err == nil {
		m = g
	}
	d.selectors[selector] = m
	return m
}

// Query returns every element matching selector in document order.
func (d *Document) Query(selector string) []*Element {
	m := d.matcher(selector)
	if m == nil {
		return nil
	}
	nodes := cascadia.QueryAll(d.root, m)
	out := make([]*Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, &Element{n: n, doc: d})
	}
	return out
}

// First returns the first element matching selector, or nil.
func (d *Document) First(selector string) *Element {
	m := d.matcher(selector)
	if m == nil {
		return nil
	}
	n := cascadia.Query(d.root, m)
	if n == nil {
		return nil
	}
	return &Element{n: n, doc: d}
}

// Element wraps an element node. A nil *Element behaves as a detached
// element with no attributes and no ancestors.
type Element struct {
	n   *html.Node
	doc *Document
}

var _ browser.Element = (*Element)(nil)

// TagName returns the lowercase tag name.
func (e *Element) TagName() string {
	if e == nil {
		return ""
	}
	return strings.ToLower(e.n.Data)
}

// Attr returns the value of attribute name.
func (e *Element) Attr(name string) (string, bool) {
	if e == nil {
		return "", false
	}
	for _, a := range e.n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets or replaces attribute name, the way UI code flips
// aria-expanded after a toggle.
func (e *Element) SetAttr(name, value string) {
	for i, a := range e.n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, name) {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
}

// Text returns the concatenated text content.
func (e *Element) Text() string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.n)
	return strings.TrimSpace(sb.String())
}

// Closest returns the nearest inclusive ancestor matching selector.
func (e *Element) Closest(selector string) browser.Element {
	if e == nil {
		return nil
	}
	m := e.doc.matcher(selector)
	if m == nil {
		return nil
	}
	for n := e.n; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && m.Match(n) {
			return &Element{n: n, doc: e.doc}
		}
	}
	return nil
}

// Parent returns the parent element.
func (e *Element) Parent() browser.Element {
	if e == nil {
		return nil
	}
	for n := e.n.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode {
			return &Element{n: n, doc: e.doc}
		}
	}
	return nil
}

// Matches reports whether the element matches selector.
func (e *Element) Matches(selector string) bool {
	m := e.doc.matcher(selector)
	return m != nil && m.Match(e.n)
}

// Same reports whether two elements wrap the same node.
func (e *Element) Same(o *Element) bool { return o != nil && e.n == o.n }
