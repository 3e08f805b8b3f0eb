// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// saveContext is the shared state a strategy ladder works against: the
// page, the step that requested the save, the element it targets (nil
// for savePDF without a selector), and the placeholder-resolved
// destination path.
type saveContext struct {
	page Page
	step Step
	el   Element
	dest string
}

// saveStrategy is one rung of a fallback ladder. run reports whether
// the file landed at dest; a false return or an error means the ladder
// moves on to the next rung.
type saveStrategy struct {
	name string
	run  func(ctx context.Context, s *Scraper, sv *saveContext) (bool, error)
}

// downloadLadder is the ordered strategy set shared by the whole
// download family: the cheap direct fetch first, then the new-tab
// capture for script-driven links, then the browser download event as
// the last resort.
var downloadLadder = []saveStrategy{
	{"direct-href", runDirectHref},
	{"new-tab-capture", runNewTabCapture},
	{"download-event", runDownloadEvent},
}

// handleDownload saves the binary behind the step's element to the
// destination in value. The collector records the destination path on
// success and nil when every strategy failed; a failed download never
// aborts the run unless the step asked for that.
func (s *Scraper) handleDownload(ctx context.Context, sc stepScope, step Step) error {
	key := step.outputKey("download")

	dest := ResolveDataPlaceholders(step.Value, sc.collector)
	if dest == "" {
		return configErrorf(step, "%s requires a destination path in value", step.Action)
	}

	el, err := s.findOne(ctx, sc, step.Selector())
	if err != nil {
		sc.collector.Set(key, nil)
		return s.softFail(step, err)
	}
	if el == nil {
		sc.collector.Set(key, nil)
		return s.softFail(step, fmt.Errorf("download target %q not found", step.SelectorValue))
	}

	sv := &saveContext{page: sc.page, step: step, el: el, dest: dest}
	if s.runLadder(ctx, downloadLadder, sv) {
		sc.collector.Set(key, dest)
		return nil
	}

	sc.collector.Set(key, nil)
	return s.softFail(step, fmt.Errorf("every download strategy failed for %q", step.SelectorValue))
}

// runLadder tries strategies in order until one lands the file.
func (s *Scraper) runLadder(ctx context.Context, ladder []saveStrategy, sv *saveContext) bool {
	for _, strat := range ladder {
		if ctx.Err() != nil {
			return false
		}
		done, err := strat.run(ctx, s, sv)
		if err != nil {
			s.log.Debug("strategy %s failed for %s: %v", strat.name, stepLabel(sv.step), err)
			continue
		}
		if done {
			s.log.Info("saved %s via %s", sv.dest, strat.name)
			return true
		}
		s.log.Debug("strategy %s not applicable for %s", strat.name, stepLabel(sv.step))
	}
	return false
}

// runDirectHref fetches the element's href out-of-band, replicating
// the page's cookies and referer so session-protected files resolve.
func runDirectHref(ctx context.Context, s *Scraper, sv *saveContext) (bool, error) {
	href, ok, err := sv.page.Attribute(ctx, sv.el, "href")
	if err != nil {
		return false, err
	}
	if !ok || href == "" || isJavascriptHref(href) {
		return false, nil
	}

	base, err := sv.page.Location(ctx)
	if err != nil {
		return false, err
	}
	abs, err := ResolveHref(base, href)
	if err != nil {
		return false, err
	}

	data, err := s.fetchAs(ctx, sv.page, abs, base)
	if err != nil {
		return false, err
	}
	return true, writeFile(sv.dest, data)
}

// runNewTabCapture clicks the element into a fresh page and fetches
// whatever URL that page lands on. Covers script-driven links that
// compute the file URL on click.
func runNewTabCapture(ctx context.Context, s *Scraper, sv *saveContext) (bool, error) {
	child, err := sv.page.OpenViaClick(ctx, sv.el)
	if err != nil {
		return false, err
	}
	defer child.Close(ctx)

	loc, err := child.Location(ctx)
	if err != nil {
		return false, err
	}
	if loc == "" || loc == "about:blank" {
		return false, nil
	}

	data, err := s.fetchAs(ctx, child, loc, loc)
	if err != nil {
		return false, err
	}
	return true, writeFile(sv.dest, data)
}

// runDownloadEvent clicks the element and waits for the browser-level
// download it triggers, then moves the spooled file to dest.
func runDownloadEvent(ctx context.Context, s *Scraper, sv *saveContext) (bool, error) {
	spooled, err := sv.page.Download(ctx, func(c context.Context) error {
		return sv.page.Click(c, sv.el)
	})
	if err != nil {
		return false, err
	}
	return true, moveFile(spooled, sv.dest)
}

// fetchAs fetches url with the page's cookie jar replicated onto the
// request.
func (s *Scraper) fetchAs(ctx context.Context, page Page, url, referer string) ([]byte, error) {
	cookies, err := page.Cookies(ctx, url)
	if err != nil {
		s.log.Debug("cookie replication failed for %s: %v", url, err)
	}
	return s.fetcher.fetch(ctx, url, referer, cookies)
}

// writeFile writes data to dest, creating parent directories. A
// zero-length body is rejected so a failed strategy never leaves an
// empty file masquerading as a download.
func writeFile(dest string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("refusing to write empty file to %s", dest)
	}
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(dest, data, 0o644)
}

// moveFile relocates a spooled download to dest, falling back to a
// copy when rename crosses filesystems.
func moveFile(src, dest string) error {
	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
