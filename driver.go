// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"strings"
)

// SelectorKind names the location strategy for a selector string.
// An empty kind means the raw selector string is used as-is.
type SelectorKind string

const (
	SelectorID    SelectorKind = "id"
	SelectorClass SelectorKind = "class"
	SelectorTag   SelectorKind = "tag"
	SelectorXPath SelectorKind = "xpath"
	SelectorRaw   SelectorKind = ""
)

// Selector pairs a location strategy with its selector string.
type Selector struct {
	Kind  SelectorKind
	Value string
}

// Query translates the selector into a driver-native query string and
// reports whether it is an XPath query. This is a pure mapping with no
// fallback logic; existence checking is the caller's responsibility.
func (s Selector) Query() (string, bool) {
	switch s.Kind {
	case SelectorID:
		return "#" + s.Value, false
	case SelectorClass:
		return "." + s.Value, false
	case SelectorXPath:
		return s.Value, true
	default:
		// tag and raw selectors pass through as generic CSS queries
		return s.Value, false
	}
}

// splitAttrSelector splits a trailing "/@attr" attribute suffix off an
// XPath selector. The base selector is used for the existence probe and
// the attribute name is reapplied for extraction. Returns the input
// unchanged with an empty attribute when no suffix is present.
func splitAttrSelector(sel string) (base, attr string) {
	if i := strings.LastIndex(sel, "/@"); i >= 0 {
		return sel[:i], sel[i+2:]
	}
	return sel, ""
}

// Element is an opaque handle to a located DOM node. Handles are only
// meaningful to the Page that produced them.
type Element any

// Cookie is the minimal cookie shape the download strategies replicate
// onto out-of-band fetches.
type Cookie struct {
	Name  string
	Value string
}

// PDFOptions configures print-to-PDF rendering. Zero values fall back
// to driver defaults (A4 portrait, standard margins).
type PDFOptions struct {
	Landscape    bool
	PaperWidth   float64 // inches
	PaperHeight  float64 // inches
	MarginTop    float64 // inches
	MarginBottom float64 // inches
	MarginLeft   float64 // inches
	MarginRight  float64 // inches
}

// Page is the browser-driver capability the interpreter issues commands
// to. Every call is a suspension point: implementations must not return
// before the underlying browser interaction completes or times out.
//
// Find returns all matches in document order, optionally scoped to a
// previously located element; zero matches is an empty slice, not an
// error. Navigate and Reload wait for the driver's load milestone.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	Location(ctx context.Context) (string, error)

	Find(ctx context.Context, sel Selector, scope Element) ([]Element, error)

	Click(ctx context.Context, el Element) error
	Type(ctx context.Context, el Element, text string) error
	Text(ctx context.Context, el Element) (string, error)
	HTML(ctx context.Context, el Element) (string, error)
	FormValue(ctx context.Context, el Element) (string, error)
	Attribute(ctx context.Context, el Element, name string) (string, bool, error)

	ScrollIntoView(ctx context.Context, el Element) error
	// ScrollBy scrolls the viewport vertically by offsetPx pixels; zero
	// scrolls by one viewport height.
	ScrollBy(ctx context.Context, offsetPx int) error

	Cookies(ctx context.Context, url string) ([]Cookie, error)

	PrintToPDF(ctx context.Context, opts PDFOptions) ([]byte, error)

	// Download runs trigger and waits for the resulting driver-level
	// download event, returning the path of the saved file.
	Download(ctx context.Context, trigger func(context.Context) error) (string, error)

	// CaptureResponse registers a response listener, runs action, and
	// returns the body of the first response matched by match. The
	// listener is always unregistered before CaptureResponse returns so
	// it cannot leak onto subsequent steps.
	CaptureResponse(ctx context.Context, match func(url, contentType string) bool, action func(context.Context) error) ([]byte, error)

	// OpenURL opens url in a new page sharing this page's browser
	// context (cookies, storage). OpenViaClick simulates a modified
	// click on el and attaches to the new page it opens.
	OpenURL(ctx context.Context, url string) (Page, error)
	OpenViaClick(ctx context.Context, el Element) (Page, error)

	Close(ctx context.Context) error
}

// Browser creates pages within one shared browser context.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}
