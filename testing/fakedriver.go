// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright_testing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/stepwright/stepwright"
)

// Node is one element of a fake DOM. Tests build small trees of these
// and run real templates against them without a browser.
type Node struct {
	Tag      string
	ID       string
	Class    string
	Text     string
	HTML     string
	Value    string
	Attrs    map[string]string
	Children []*Node

	// OnClick mutates the page, standing in for whatever script the
	// real element would run.
	OnClick func(p *FakePage)

	// TargetURL is where an open lands when this node is clicked
	// through OpenViaClick. DownloadData is served through the
	// browser-download path when this node triggers a download.
	TargetURL    string
	DownloadData []byte
}

// Attr reads an attribute, with id, class, and value folded in.
func (n *Node) Attr(name string) (string, bool) {
	switch name {
	case "id":
		if n.ID != "" {
			return n.ID, true
		}
	case "class":
		if n.Class != "" {
			return n.Class, true
		}
	case "value":
		if n.Value != "" {
			return n.Value, true
		}
	}
	v, ok := n.Attrs[name]
	return v, ok
}

func (n *Node) hasClass(cls string) bool {
	for _, tok := range strings.Fields(n.Class) {
		if tok == cls {
			return true
		}
	}
	return false
}

// Site is a fake web site: URLs to page roots plus the out-of-band
// data the capture paths serve.
type Site struct {
	Pages   map[string]*Node
	Cookies []stepwright.Cookie

	// PDFData is returned by PrintToPDF and by CaptureResponse when
	// the matcher accepts an application/pdf response.
	PDFData []byte
}

// FakeBrowser implements stepwright.Browser over a Site.
type FakeBrowser struct {
	Site   *Site
	Opened []*FakePage
}

func NewFakeBrowser(site *Site) *FakeBrowser {
	return &FakeBrowser{Site: site}
}

func (b *FakeBrowser) NewPage(ctx context.Context) (stepwright.Page, error) {
	p := &FakePage{site: b.Site}
	b.Opened = append(b.Opened, p)
	return p, nil
}

func (b *FakeBrowser) Close(ctx context.Context) error {
	return nil
}

// FakePage implements stepwright.Page against one Site page at a time.
// It records navigations, scrolls, and closure so tests can assert on
// interpreter behavior, not just extracted data.
type FakePage struct {
	site *Site
	url  string
	root *Node

	NavigatedURLs []string
	Reloads       int
	ScrollCalls   int
	Closed        bool

	pendingDownload []byte
}

// SetRoot points the page at a detached DOM, bypassing navigation.
func (p *FakePage) SetRoot(url string, root *Node) {
	p.url = url
	p.root = root
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	root, ok := p.site.Pages[url]
	if !ok {
		return fmt.Errorf("no such page %q", url)
	}
	p.url = url
	p.root = root
	p.NavigatedURLs = append(p.NavigatedURLs, url)
	return nil
}

func (p *FakePage) Reload(ctx context.Context) error {
	p.Reloads++
	if root, ok := p.site.Pages[p.url]; ok {
		p.root = root
	}
	return nil
}

func (p *FakePage) Location(ctx context.Context) (string, error) {
	return p.url, nil
}

func (p *FakePage) Find(ctx context.Context, sel stepwright.Selector, scope stepwright.Element) ([]stepwright.Element, error) {
	start := p.root
	if scope != nil {
		node, ok := scope.(*Node)
		if !ok {
			return nil, fmt.Errorf("element %T is not a fake node", scope)
		}
		start = node
	}
	if start == nil {
		return []stepwright.Element{}, nil
	}

	match := compileMatcher(sel)
	var out []stepwright.Element
	var walk func(n *Node, isRoot bool)
	walk = func(n *Node, isRoot bool) {
		// a scoped query matches descendants, not the scope itself
		if !isRoot || scope == nil {
			if match(n) {
				out = append(out, n)
			}
		}
		for _, c := range n.Children {
			walk(c, false)
		}
	}
	walk(start, true)
	if out == nil {
		out = []stepwright.Element{}
	}
	return out, nil
}

// compileMatcher supports the selector shapes the engine emits: #id,
// .class, bare tags, [attr], tag[attr='value'] fragments, and the
// //tag form of XPath. Enough for templates under test; not a real
// query engine.
func compileMatcher(sel stepwright.Selector) func(*Node) bool {
	q, isXPath := sel.Query()
	if isXPath {
		tag := strings.TrimPrefix(q, "//")
		if i := strings.IndexAny(tag, "[/"); i >= 0 {
			tag = tag[:i]
		}
		return func(n *Node) bool { return tag == "*" || n.Tag == tag }
	}

	switch {
	case strings.HasPrefix(q, "#"):
		id := q[1:]
		return func(n *Node) bool { return n.ID == id }
	case strings.HasPrefix(q, "."):
		cls := q[1:]
		return func(n *Node) bool { return n.hasClass(cls) }
	case strings.HasPrefix(q, "["):
		attr := strings.Trim(q, "[]")
		return func(n *Node) bool { _, ok := n.Attr(attr); return ok }
	}

	tag := q
	var attr, attrVal string
	if i := strings.IndexByte(q, '['); i >= 0 {
		tag = q[:i]
		inner := strings.Trim(q[i:], "[]")
		if j := strings.IndexAny(inner, "*$^"); j >= 0 && j+1 < len(inner) && inner[j+1] == '=' {
			// substring operators degrade to presence checks
			attr = inner[:j]
		} else if j := strings.IndexByte(inner, '='); j >= 0 {
			attr = inner[:j]
			attrVal = strings.Trim(inner[j+1:], "'\"")
		} else {
			attr = inner
		}
	}
	if i := strings.IndexByte(tag, '#'); i >= 0 {
		id := tag[i+1:]
		base := tag[:i]
		return func(n *Node) bool { return (base == "" || n.Tag == base) && n.ID == id }
	}
	return func(n *Node) bool {
		if tag != "" && tag != "*" && n.Tag != tag {
			return false
		}
		if attr != "" {
			v, ok := n.Attr(attr)
			if !ok {
				return false
			}
			if attrVal != "" && v != attrVal {
				return false
			}
		}
		return true
	}
}

func (p *FakePage) Click(ctx context.Context, el stepwright.Element) error {
	node, err := asNode(el)
	if err != nil {
		return err
	}
	if node.DownloadData != nil {
		p.pendingDownload = node.DownloadData
	}
	if node.OnClick != nil {
		node.OnClick(p)
	}
	return nil
}

func (p *FakePage) Type(ctx context.Context, el stepwright.Element, text string) error {
	node, err := asNode(el)
	if err != nil {
		return err
	}
	node.Value = text
	return nil
}

func (p *FakePage) Text(ctx context.Context, el stepwright.Element) (string, error) {
	node, err := asNode(el)
	if err != nil {
		return "", err
	}
	return node.Text, nil
}

func (p *FakePage) HTML(ctx context.Context, el stepwright.Element) (string, error) {
	node, err := asNode(el)
	if err != nil {
		return "", err
	}
	return node.HTML, nil
}

func (p *FakePage) FormValue(ctx context.Context, el stepwright.Element) (string, error) {
	node, err := asNode(el)
	if err != nil {
		return "", err
	}
	return node.Value, nil
}

func (p *FakePage) Attribute(ctx context.Context, el stepwright.Element, name string) (string, bool, error) {
	node, err := asNode(el)
	if err != nil {
		return "", false, err
	}
	v, ok := node.Attr(name)
	return v, ok, nil
}

func (p *FakePage) ScrollIntoView(ctx context.Context, el stepwright.Element) error {
	p.ScrollCalls++
	return nil
}

func (p *FakePage) ScrollBy(ctx context.Context, offsetPx int) error {
	p.ScrollCalls++
	return nil
}

func (p *FakePage) Cookies(ctx context.Context, url string) ([]stepwright.Cookie, error) {
	return p.site.Cookies, nil
}

func (p *FakePage) PrintToPDF(ctx context.Context, opts stepwright.PDFOptions) ([]byte, error) {
	if p.site.PDFData == nil {
		return nil, fmt.Errorf("no pdf data configured")
	}
	return p.site.PDFData, nil
}

func (p *FakePage) Download(ctx context.Context, trigger func(context.Context) error) (string, error) {
	p.pendingDownload = nil
	if err := trigger(ctx); err != nil {
		return "", err
	}
	if p.pendingDownload == nil {
		return "", fmt.Errorf("click did not trigger a download")
	}
	f, err := os.CreateTemp("", "fake-download-")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(p.pendingDownload); err != nil {
		f.Close()
		return "", err
	}
	return f.Name(), f.Close()
}

func (p *FakePage) CaptureResponse(ctx context.Context, match func(url, contentType string) bool, action func(context.Context) error) ([]byte, error) {
	if err := action(ctx); err != nil {
		return nil, err
	}
	if p.site.PDFData != nil && match(p.url, "application/pdf") {
		return p.site.PDFData, nil
	}
	return nil, fmt.Errorf("no matching response observed")
}

func (p *FakePage) OpenURL(ctx context.Context, url string) (stepwright.Page, error) {
	child := &FakePage{site: p.site}
	if err := child.Navigate(ctx, url); err != nil {
		return nil, err
	}
	return child, nil
}

func (p *FakePage) OpenViaClick(ctx context.Context, el stepwright.Element) (stepwright.Page, error) {
	node, err := asNode(el)
	if err != nil {
		return nil, err
	}
	if node.TargetURL == "" {
		return nil, fmt.Errorf("node has no target page")
	}
	if node.OnClick != nil {
		node.OnClick(p)
	}
	return p.OpenURL(ctx, node.TargetURL)
}

func (p *FakePage) Close(ctx context.Context) error {
	p.Closed = true
	return nil
}

func asNode(el stepwright.Element) (*Node, error) {
	node, ok := el.(*Node)
	if !ok {
		return nil, fmt.Errorf("element %T is not a fake node", el)
	}
	return node, nil
}
