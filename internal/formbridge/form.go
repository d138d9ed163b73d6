package formbridge

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

const controlsXPath = "//*[self::input or self::select or self::textarea or self::button]"

// FormValues collects the form's current entries the way a browser builds
// FormData for a submit without a submitter.
func (e *Element) FormValues() (*Submission, error) {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()

	if e.node.Data != "form" {
		return nil, fmt.Errorf("%w: #%s is <%s>", ErrNotForm, e.id, e.node.Data)
	}
	controls, err := e.page.formControls(e.node)
	if err != nil {
		return nil, err
	}

	sub := NewSubmission()
	for _, c := range controls {
		name, _ := attr(c, "name")
		if name == "" || isDisabled(c) {
			continue
		}
		switch c.Data {
		case "input":
			value, ok := inputEntry(c, name)
			if ok {
				sub.Set(name, value)
			}
		case "select":
			for _, opt := range selectedOptions(c) {
				sub.Set(name, optionValue(opt))
			}
		case "textarea":
			sub.Set(name, htmlquery.InnerText(c))
		}
	}
	return sub, nil
}

// Fill writes posted values back into the form controls so the page shows
// what was submitted.
func (e *Element) Fill(values url.Values) error {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()

	if e.node.Data != "form" {
		return fmt.Errorf("%w: #%s is <%s>", ErrNotForm, e.id, e.node.Data)
	}
	controls, err := e.page.formControls(e.node)
	if err != nil {
		return err
	}

	used := map[string]int{}
	for _, c := range controls {
		name, _ := attr(c, "name")
		if name == "" {
			continue
		}
		posted, present := values[name]
		switch c.Data {
		case "input":
			switch inputType(c) {
			case "checkbox", "radio":
				if contains(posted, checkableValue(c)) {
					setAttr(c, "checked", "")
				} else {
					removeAttr(c, "checked")
				}
			case "submit", "reset", "button", "image", "file":
			default:
				if !present {
					continue
				}
				idx := used[name]
				if idx < len(posted) {
					setAttr(c, "value", posted[idx])
					used[name] = idx + 1
				}
			}
		case "select":
			if !present {
				continue
			}
			multiple := hasAttr(c, "multiple")
			matched := false
			for _, opt := range options(c) {
				if contains(posted, optionValue(opt)) && (multiple || !matched) {
					setAttr(opt, "selected", "")
					matched = true
					continue
				}
				removeAttr(opt, "selected")
			}
		case "textarea":
			if !present {
				continue
			}
			idx := used[name]
			if idx < len(posted) {
				setText(c, posted[idx])
				used[name] = idx + 1
			}
		}
	}
	return nil
}

// Names lists the named controls of the form in tree order.
func (e *Element) Names() []string {
	e.page.mu.Lock()
	defer e.page.mu.Unlock()

	controls, err := e.page.formControls(e.node)
	if err != nil {
		return nil
	}
	var names []string
	seen := map[string]bool{}
	for _, c := range controls {
		name, _ := attr(c, "name")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func (p *Page) formControls(form *html.Node) ([]*html.Node, error) {
	all, err := htmlquery.QueryAll(p.root, controlsXPath)
	if err != nil {
		return nil, fmt.Errorf("query form controls: %w", err)
	}
	var owned []*html.Node
	for _, c := range all {
		if p.formOwner(c) == form {
			owned = append(owned, c)
		}
	}
	return owned, nil
}

func (p *Page) formOwner(control *html.Node) *html.Node {
	if ref, ok := attr(control, "form"); ok {
		node, err := p.findByID(ref)
		if err != nil || node.Data != "form" {
			return nil
		}
		return node
	}
	for n := control.Parent; n != nil; n = n.Parent {
		if n.Type == html.ElementNode && n.Data == "form" {
			return n
		}
	}
	return nil
}

func isDisabled(c *html.Node) bool {
	if hasAttr(c, "disabled") {
		return true
	}
	child := c
	for n := c.Parent; n != nil; child, n = n, n.Parent {
		if n.Type != html.ElementNode || n.Data != "fieldset" || !hasAttr(n, "disabled") {
			continue
		}
		if legend := firstLegend(n); legend != nil && legend == child {
			continue
		}
		return true
	}
	return false
}

func firstLegend(fieldset *html.Node) *html.Node {
	for c := fieldset.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "legend" {
			return c
		}
	}
	return nil
}

func inputType(c *html.Node) string {
	t, _ := attr(c, "type")
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "" {
		return "text"
	}
	return t
}

func inputEntry(c *html.Node, name string) (string, bool) {
	switch inputType(c) {
	case "submit", "reset", "button", "image", "file":
		return "", false
	case "checkbox", "radio":
		if !hasAttr(c, "checked") {
			return "", false
		}
		return checkableValue(c), true
	case "hidden":
		if name == "_charset_" {
			return "UTF-8", true
		}
	}
	value, _ := attr(c, "value")
	return value, true
}

func checkableValue(c *html.Node) string {
	if value, ok := attr(c, "value"); ok {
		return value
	}
	return "on"
}

func options(sel *html.Node) []*html.Node {
	opts, _ := htmlquery.QueryAll(sel, ".//option")
	return opts
}

func selectedOptions(sel *html.Node) []*html.Node {
	opts := options(sel)
	var picked []*html.Node
	if hasAttr(sel, "multiple") {
		for _, opt := range opts {
			if hasAttr(opt, "selected") {
				picked = append(picked, opt)
			}
		}
	} else {
		var last *html.Node
		for _, opt := range opts {
			if hasAttr(opt, "selected") {
				last = opt
			}
		}
		if last == nil {
			for _, opt := range opts {
				if !hasAttr(opt, "disabled") {
					last = opt
					break
				}
			}
		}
		if last != nil {
			picked = append(picked, last)
		}
	}

	enabled := picked[:0]
	for _, opt := range picked {
		if optionDisabled(opt) {
			continue
		}
		enabled = append(enabled, opt)
	}
	return enabled
}

func optionDisabled(opt *html.Node) bool {
	if hasAttr(opt, "disabled") {
		return true
	}
	parent := opt.Parent
	return parent != nil && parent.Data == "optgroup" && hasAttr(parent, "disabled")
}

func optionValue(opt *html.Node) string {
	if value, ok := attr(opt, "value"); ok {
		return value
	}
	return strings.Join(strings.Fields(htmlquery.InnerText(opt)), " ")
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
