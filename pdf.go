// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// savePDFLadder is the ordered strategy set for capturing the PDF a
// page is displaying. In-browser PDF viewers vary wildly, so the
// ladder works from the cheapest signal (the location bar) down to
// brute force (re-requesting the page and sniffing the response).
var savePDFLadder = []saveStrategy{
	{"location-url", runPDFFromLocation},
	{"viewer-dom", runPDFFromViewerDOM},
	{"response-capture", runPDFFromResponse},
	{"viewer-download-control", runPDFFromDownloadControl},
}

// viewerSelectors are the DOM shapes browser PDF viewers and embedding
// pages commonly use, probed in order. Each pairs a raw selector with
// the attribute carrying the document URL.
var viewerSelectors = []struct {
	selector string
	attr     string
}{
	{"embed[type='application/pdf']", "src"},
	{"object[type='application/pdf']", "data"},
	{"iframe[src*='.pdf']", "src"},
	{"embed[src]", "src"},
}

// downloadControlSelectors are the download buttons PDF viewers expose,
// including the shadow-piercing chrome viewer control.
var downloadControlSelectors = []string{
	"cr-icon-button#download",
	"#download",
	"[download]",
	"a[href$='.pdf']",
}

// handleSavePDF captures the PDF the current page displays (or the one
// behind the step's selector) into the destination in value. Like the
// download family, total failure records nil and continues.
func (s *Scraper) handleSavePDF(ctx context.Context, sc stepScope, step Step) error {
	key := step.outputKey("pdf")

	dest := ResolveDataPlaceholders(step.Value, sc.collector)
	if dest == "" {
		return configErrorf(step, "savePDF requires a destination path in value")
	}

	sv := &saveContext{page: sc.page, step: step, dest: dest}

	// an explicit selector names the viewer or link element, letting
	// the DOM stage skip the generic probe list
	if step.SelectorValue != "" {
		el, err := s.findOne(ctx, sc, step.Selector())
		if err == nil && el != nil {
			sv.el = el
		}
	}

	if s.runLadder(ctx, savePDFLadder, sv) {
		sc.collector.Set(key, dest)
		return nil
	}

	sc.collector.Set(key, nil)
	return s.softFail(step, fmt.Errorf("every savePDF strategy failed"))
}

// runPDFFromLocation fetches the document when the location bar itself
// points at a PDF, directly or through a query parameter (the shape
// viewer frames like ?file=...pdf use).
func runPDFFromLocation(ctx context.Context, s *Scraper, sv *saveContext) (bool, error) {
	loc, err := sv.page.Location(ctx)
	if err != nil {
		return false, err
	}
	target := pdfURLFromLocation(loc)
	if target == "" {
		return false, nil
	}
	data, err := s.fetchAs(ctx, sv.page, target, loc)
	if err != nil {
		return false, err
	}
	return true, writeFile(sv.dest, data)
}

// pdfURLFromLocation returns the PDF URL embedded in loc, or "".
func pdfURLFromLocation(loc string) string {
	u, err := url.Parse(loc)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
		return loc
	}
	for _, vals := range u.Query() {
		for _, v := range vals {
			if strings.Contains(strings.ToLower(v), ".pdf") {
				if abs, err := ResolveHref(loc, v); err == nil {
					return abs
				}
			}
		}
	}
	return ""
}

// runPDFFromViewerDOM extracts the document URL out of an embedded
// viewer element and fetches it.
func runPDFFromViewerDOM(ctx context.Context, s *Scraper, sv *saveContext) (bool, error) {
	loc, err := sv.page.Location(ctx)
	if err != nil {
		return false, err
	}

	probe := func(el Element, attr string) (bool, error) {
		raw, ok, err := sv.page.Attribute(ctx, el, attr)
		if err != nil || !ok || raw == "" {
			return false, err
		}
		abs, err := ResolveHref(loc, raw)
		if err != nil {
			return false, err
		}
		data, err := s.fetchAs(ctx, sv.page, abs, loc)
		if err != nil {
			return false, err
		}
		return true, writeFile(sv.dest, data)
	}

	// a step-supplied element is probed across both URL attributes
	if sv.el != nil {
		for _, attr := range []string{"src", "data", "href"} {
			if done, err := probe(sv.el, attr); done || err != nil {
				return done, err
			}
		}
	}

	for _, vs := range viewerSelectors {
		matches, err := sv.page.Find(ctx, Selector{Value: vs.selector}, nil)
		if err != nil || len(matches) == 0 {
			continue
		}
		if done, err := probe(matches[0], vs.attr); done {
			return true, nil
		} else if err != nil {
			s.log.Debug("savePDF viewer probe %s failed: %v", vs.selector, err)
		}
	}
	return false, nil
}

// runPDFFromResponse reloads the page with a response listener armed
// and captures the first PDF body that comes over the wire. This is
// the rung that works when the viewer hides the document URL entirely.
func runPDFFromResponse(ctx context.Context, s *Scraper, sv *saveContext) (bool, error) {
	body, err := sv.page.CaptureResponse(ctx,
		func(respURL, contentType string) bool {
			return strings.Contains(strings.ToLower(contentType), "application/pdf") ||
				strings.Contains(strings.ToLower(respURL), ".pdf")
		},
		func(c context.Context) error {
			return sv.page.Reload(c)
		})
	if err != nil {
		return false, err
	}
	if len(body) == 0 {
		return false, nil
	}
	return true, writeFile(sv.dest, body)
}

// runPDFFromDownloadControl clicks through the viewer's download
// button and rides the browser download event.
func runPDFFromDownloadControl(ctx context.Context, s *Scraper, sv *saveContext) (bool, error) {
	candidates := []Element{}
	if sv.el != nil {
		candidates = append(candidates, sv.el)
	}
	for _, sel := range downloadControlSelectors {
		matches, err := sv.page.Find(ctx, Selector{Value: sel}, nil)
		if err == nil && len(matches) > 0 {
			candidates = append(candidates, matches[0])
		}
	}

	for _, el := range candidates {
		el := el
		spooled, err := sv.page.Download(ctx, func(c context.Context) error {
			return sv.page.Click(c, el)
		})
		if err != nil {
			s.log.Debug("savePDF download control failed: %v", err)
			continue
		}
		return true, moveFile(spooled, sv.dest)
	}
	return false, nil
}

// handlePrintToPDF renders the current page to PDF via the browser's
// print pipeline. An optional selector names an element to click first
// (a print-view toggle). Unlike savePDF this produces a rendering of
// the page, not the original document, so it never participates in the
// savePDF ladder.
func (s *Scraper) handlePrintToPDF(ctx context.Context, sc stepScope, step Step) error {
	key := step.outputKey("pdf")

	dest := ResolveDataPlaceholders(step.Value, sc.collector)
	if dest == "" {
		return configErrorf(step, "printToPDF requires a destination path in value")
	}

	if step.SelectorValue != "" {
		el, err := s.findOne(ctx, sc, step.Selector())
		if err == nil && el != nil {
			if err := sc.page.Click(ctx, el); err != nil {
				s.log.Debug("printToPDF pre-click failed: %v", err)
			}
		}
	}

	data, err := sc.page.PrintToPDF(ctx, PDFOptions{})
	if err != nil {
		sc.collector.Set(key, nil)
		return s.softFail(step, fmt.Errorf("printing to PDF: %w", err))
	}
	if err := writeFile(dest, data); err != nil {
		sc.collector.Set(key, nil)
		return s.softFail(step, err)
	}
	sc.collector.Set(key, dest)
	return nil
}
