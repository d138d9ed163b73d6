package formbridge

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Page is a parsed HTML document. Reads and writes through its elements are
// serialized by the page lock.
type Page struct {
	mu   sync.Mutex
	root *html.Node
}

// Element is a handle to one node of a Page.
type Element struct {
	page *Page
	node *html.Node
	id   string
}

func ParsePage(r io.Reader) (*Page, error) {
	root, err := htmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{root: root}, nil
}

func ParsePageString(s string) (*Page, error) {
	return ParsePage(strings.NewReader(s))
}

// Element resolves the element carrying the given id attribute.
func (p *Page) Element(id string) (*Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	node, err := p.findByID(id)
	if err != nil {
		return nil, err
	}
	return &Element{page: p, node: node, id: id}, nil
}

func (p *Page) findByID(id string) (*html.Node, error) {
	node, err := htmlquery.Query(p.root, "//*[@id="+xpathLiteral(id)+"]")
	if err != nil {
		return nil, fmt.Errorf("query element %q: %w", id, err)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: #%s", ErrElementNotFound, id)
	}
	return node, nil
}

func (p *Page) Render(w io.Writer) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return html.Render(w, p.root)
}

func (p *Page) String() string {
	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	for i, part := range parts {
		parts[i] = "'" + part + "'"
	}
	return "concat(" + strings.Join(parts, `, "'", `) + ")"
}

func (e *Element) ID() string {
	return e.id
}

func (e *Element) Tag() string {
	return e.node.Data
}

func (e *Element) Text() string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return htmlquery.InnerText(e.node)
}

func (e *Element) SetText(text string) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	setText(e.node, text)
}

func (e *Element) Attr(name string) (string, bool) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	return attr(e.node, name)
}

func (e *Element) SetAttr(name, value string) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	setAttr(e.node, name, value)
}

func (e *Element) RemoveAttr(name string) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	removeAttr(e.node, name)
}

// Style returns one property of the inline style attribute.
func (e *Element) Style(property string) string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	style, _ := attr(e.node, "style")
	for _, decl := range parseStyle(style) {
		if decl.name == property {
			return decl.value
		}
	}
	return ""
}

func (e *Element) SetStyle(property, value string) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	setStyle(e.node, property, value)
}

// Apply performs every change in the patch under a single page lock.
func (e *Element) Apply(p Patch) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()
	p.apply(e.node)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, name string) bool {
	_, ok := attr(n, name)
	return ok
}

func setAttr(n *html.Node, name, value string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			n.Attr[i].Val = value
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: name, Val: value})
}

func removeAttr(n *html.Node, name string) {
	kept := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == name {
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
}

func setText(n *html.Node, text string) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

type styleDecl struct {
	name  string
	value string
}

func parseStyle(style string) []styleDecl {
	var decls []styleDecl
	for _, part := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		decls = append(decls, styleDecl{name: name, value: strings.TrimSpace(value)})
	}
	return decls
}

func setStyle(n *html.Node, property, value string) {
	style, _ := attr(n, "style")
	decls := parseStyle(style)
	found := false
	for i := range decls {
		if decls[i].name == property {
			decls[i].value = value
			found = true
		}
	}
	if !found {
		decls = append(decls, styleDecl{name: property, value: value})
	}
	parts := make([]string, 0, len(decls))
	for _, d := range decls {
		if d.value == "" {
			continue
		}
		parts = append(parts, d.name+": "+d.value+";")
	}
	if len(parts) == 0 {
		removeAttr(n, "style")
		return
	}
	setAttr(n, "style", strings.Join(parts, " "))
}

// Patch is the set of changes one render step makes to its target.
type Patch struct {
	text    *string
	attrs   []styleDecl
	styles  []styleDecl
	removes []string
}

func TextPatch(text string) Patch {
	return Patch{text: &text}
}

func (p Patch) WithAttr(name, value string) Patch {
	p.attrs = append(append([]styleDecl(nil), p.attrs...), styleDecl{name: name, value: value})
	return p
}

func (p Patch) WithStyle(property, value string) Patch {
	p.styles = append(append([]styleDecl(nil), p.styles...), styleDecl{name: property, value: value})
	return p
}

func (p Patch) WithoutAttr(name string) Patch {
	p.removes = append(append([]string(nil), p.removes...), name)
	return p
}

func (p Patch) apply(n *html.Node) {
	if p.text != nil {
		setText(n, *p.text)
	}
	for _, a := range p.attrs {
		setAttr(n, a.name, a.value)
	}
	for _, name := range p.removes {
		removeAttr(n, name)
	}
	for _, s := range p.styles {
		setStyle(n, s.name, s.value)
	}
}
