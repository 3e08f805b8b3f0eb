// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// stepScope carries everything one step execution needs: the page it
// runs against, the collector of its scope, the streaming sink (nil in
// batch-only phases), the tab's topology, and the element its selector
// queries are scoped to (nil at page level).
type stepScope struct {
	page      Page
	collector *Collector
	sink      *resultSink
	topo      *stepTopology
	element   Element
	parentEv  string
}

// withElement narrows the scope to one matched element.
func (sc stepScope) withElement(el Element, collector *Collector) stepScope {
	out := sc
	out.element = el
	out.collector = collector
	return out
}

// executeStepList runs steps sequentially, building step paths rooted
// at listPath. The first hard error aborts the remainder of the list.
func (s *Scraper) executeStepList(ctx context.Context, sc stepScope, steps []Step, listPath string) error {
	for i, step := range steps {
		path := fmt.Sprintf("%s[%d]", listPath, i)
		if err := s.executeStep(ctx, sc, step, path); err != nil {
			return err
		}
	}
	return nil
}

// executeStep dispatches one step to its handler. Soft failures (an
// element not found, a click that bounced) are contained inside the
// handlers and surface only through the log and nil collector fields;
// an error return here is either a ConfigurationError or a soft
// failure promoted by terminateOnError.
func (s *Scraper) executeStep(ctx context.Context, sc stepScope, step Step, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ev := s.prof.begin(path, sc.parentEv, step)
	sc.parentEv = ev.ID

	var err error
	switch step.Action {
	case ActionNavigate:
		err = s.handleNavigate(ctx, sc, step)
	case ActionInput:
		err = s.handleInput(ctx, sc, step)
	case ActionClick:
		err = s.handleClick(ctx, sc, step)
	case ActionData:
		err = s.handleData(ctx, sc, step)
	case ActionScroll:
		err = s.handleScroll(ctx, sc, step)
	case ActionReload:
		err = s.handleReload(ctx, sc, step)
	case ActionWait:
		err = s.handleWait(ctx, sc, step)
	case ActionForeach:
		err = s.handleForeach(ctx, sc, step, path)
	case ActionOpen:
		err = s.handleOpen(ctx, sc, step, path)
	case ActionEventDownload, ActionDownloadFile, ActionDownloadPDF:
		err = s.handleDownload(ctx, sc, step)
	case ActionSavePDF:
		err = s.handleSavePDF(ctx, sc, step)
	case ActionPrintToPDF:
		err = s.handlePrintToPDF(ctx, sc, step)
	default:
		err = configErrorf(step, "unknown action '%s'", step.Action)
	}
	s.prof.end(ev, err)
	if err != nil {
		return err
	}

	// wait steps consume waitAfterMs as their own duration
	if step.WaitAfterMs > 0 && step.Action != ActionWait {
		if err := sleepCtx(ctx, time.Duration(step.WaitAfterMs)*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

// softFail contains a step failure: logged, never returned, unless the
// step opted into promotion via terminateOnError.
func (s *Scraper) softFail(step Step, err error) error {
	if step.TerminateOnError {
		return err
	}
	s.log.Warning("step %s failed, continuing: %v", stepLabel(step), err)
	return nil
}

func stepLabel(step Step) string {
	if step.ID != "" {
		return fmt.Sprintf("'%s' (%s)", step.ID, step.Action)
	}
	return string(step.Action)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// findOne locates the step's selector within scope and returns the
// first match, or nil when nothing matched.
func (s *Scraper) findOne(ctx context.Context, sc stepScope, sel Selector) (Element, error) {
	matches, err := sc.page.Find(ctx, sel, sc.element)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (s *Scraper) handleNavigate(ctx context.Context, sc stepScope, step Step) error {
	if step.Value == "" {
		return configErrorf(step, "navigate requires a target URL in value")
	}
	if err := sc.page.Navigate(ctx, step.Value); err != nil {
		return s.softFail(step, fmt.Errorf("navigating to %s: %w", step.Value, err))
	}
	return nil
}

func (s *Scraper) handleInput(ctx context.Context, sc stepScope, step Step) error {
	el, err := s.findOne(ctx, sc, step.Selector())
	if err != nil {
		return s.softFail(step, err)
	}
	if el == nil {
		return s.softFail(step, fmt.Errorf("input target %q not found", step.SelectorValue))
	}
	if err := sc.page.Type(ctx, el, step.Value); err != nil {
		return s.softFail(step, fmt.Errorf("typing into %q: %w", step.SelectorValue, err))
	}
	return nil
}

func (s *Scraper) handleClick(ctx context.Context, sc stepScope, step Step) error {
	el, err := s.findOne(ctx, sc, step.Selector())
	if err != nil {
		return s.softFail(step, err)
	}
	if el == nil {
		return s.softFail(step, fmt.Errorf("click target %q not found", step.SelectorValue))
	}
	if err := sc.page.Click(ctx, el); err != nil {
		return s.softFail(step, fmt.Errorf("clicking %q: %w", step.SelectorValue, err))
	}
	return nil
}

// handleData extracts one value into the collector. Every failure mode
// short of a driver breakdown records nil under the output key, so a
// record always carries the key and downstream consumers see explicit
// absence instead of a missing column.
func (s *Scraper) handleData(ctx context.Context, sc stepScope, step Step) error {
	key := step.outputKey("data")
	sel := step.Selector()

	// an xpath trailing /@attr probes the base node and reads the
	// attribute off it
	attr := ""
	if sel.Kind == SelectorXPath {
		sel.Value, attr = splitAttrSelector(sel.Value)
	}

	el, err := s.findOne(ctx, sc, sel)
	if err != nil {
		sc.collector.Set(key, nil)
		return s.softFail(step, err)
	}
	if el == nil {
		s.log.Debug("data step %s: %q not found, recording null", stepLabel(step), step.SelectorValue)
		sc.collector.Set(key, nil)
		return nil
	}

	value, err := s.extract(ctx, sc.page, el, step, attr)
	if err != nil {
		sc.collector.Set(key, nil)
		return s.softFail(step, fmt.Errorf("extracting %q: %w", step.SelectorValue, err))
	}
	sc.collector.Set(key, value)
	return nil
}

// extract pulls the configured representation off an element. The
// attribute suffix wins over dataKind; a missing attribute yields nil.
func (s *Scraper) extract(ctx context.Context, page Page, el Element, step Step, attr string) (any, error) {
	if attr == "" && step.DataKind == DataAttribute {
		attr = step.Value
	}
	if attr != "" {
		v, ok, err := page.Attribute(ctx, el, attr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, nil
		}
		return v, nil
	}

	switch step.DataKind {
	case DataHTML:
		return page.HTML(ctx, el)
	case DataFormValue:
		return page.FormValue(ctx, el)
	default: // text and default
		return page.Text(ctx, el)
	}
}

func (s *Scraper) handleScroll(ctx context.Context, sc stepScope, step Step) error {
	offset := 0
	if step.Value != "" {
		n, err := strconv.Atoi(step.Value)
		if err != nil {
			return configErrorf(step, "scroll value must be a pixel offset: %v", err)
		}
		offset = n
	}
	if err := sc.page.ScrollBy(ctx, offset); err != nil {
		return s.softFail(step, err)
	}
	return nil
}

func (s *Scraper) handleReload(ctx context.Context, sc stepScope, step Step) error {
	if err := sc.page.Reload(ctx); err != nil {
		return s.softFail(step, fmt.Errorf("reloading: %w", err))
	}
	return nil
}

func (s *Scraper) handleWait(ctx context.Context, sc stepScope, step Step) error {
	ms := step.WaitAfterMs
	if step.Value != "" {
		n, err := strconv.Atoi(step.Value)
		if err != nil {
			return configErrorf(step, "wait value must be an integer millisecond count: %v", err)
		}
		ms = n
	}
	if ms <= 0 {
		s.log.Debug("wait step %s has no duration, skipping", stepLabel(step))
		return nil
	}
	return sleepCtx(ctx, time.Duration(ms)*time.Millisecond)
}

// handleForeach iterates every element the selector matches, running
// the substeps once per element with index placeholders substituted
// and selector queries scoped to that element. Each iteration collects
// into its own item; at a streaming emission point completed items are
// flushed to the sink immediately.
func (s *Scraper) handleForeach(ctx context.Context, sc stepScope, step Step, path string) error {
	if step.SelectorValue == "" {
		return configErrorf(step, "foreach requires a selector")
	}
	if len(step.SubSteps) == 0 {
		return configErrorf(step, "foreach requires subSteps")
	}

	matches, err := sc.page.Find(ctx, step.Selector(), sc.element)
	if err != nil {
		return s.softFail(step, fmt.Errorf("locating foreach matches %q: %w", step.SelectorValue, err))
	}
	if len(matches) == 0 {
		s.log.Debug("foreach %s: no matches for %q", stepLabel(step), step.SelectorValue)
		return nil
	}

	token := step.indexToken()
	emits := sc.sink != nil && sc.topo != nil && sc.topo.emitsAt(path)
	subListPath := path + ".subSteps"

	for idx, el := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if step.autoScroll() {
			if err := sc.page.ScrollIntoView(ctx, el); err != nil {
				s.log.Debug("foreach %s: scroll into view failed for match %d: %v", stepLabel(step), idx, err)
			}
		}

		item := sc.collector.NewItem()
		itemScope := sc.withElement(el, item)

		var hardErr error
		for j, sub := range step.SubSteps {
			clone := cloneStepWithIndex(sub, idx, token)
			subPath := fmt.Sprintf("%s[%d]", subListPath, j)
			if err := s.executeStep(ctx, itemScope, clone, subPath); err != nil {
				hardErr = err
				break
			}
		}

		itemIdx := -1
		if !item.IsEmpty() {
			itemIdx = sc.collector.adopt(item)
		}

		if hardErr != nil {
			var cfgErr *ConfigurationError
			if errors.As(hardErr, &cfgErr) || step.TerminateOnError {
				return hardErr
			}
			s.log.Warning("foreach %s: match %d failed, stopping iteration: %v", stepLabel(step), idx, hardErr)
			break
		}

		if emits && itemIdx >= 0 {
			for _, rec := range item.Flatten() {
				sc.sink.emit(rec)
			}
			sc.collector.markEmitted(itemIdx)
		}
	}
	return nil
}

// handleOpen drills into a linked document: it resolves the first
// match's href into a fresh page in the same browser context (falling
// back to a simulated click for script-driven links), runs the
// substeps there against a child collector seeded with the parent's
// context, and merges the child's results back. Failure to reach the
// linked document is fatal to the open step itself; the substeps
// cannot meaningfully run against a page that never opened. It is a
// page condition, not a template defect, so an enclosing foreach
// contains it like any other hard step failure.
func (s *Scraper) handleOpen(ctx context.Context, sc stepScope, step Step, path string) error {
	if step.SelectorValue == "" {
		return configErrorf(step, "open requires a selector")
	}
	if len(step.SubSteps) == 0 {
		return configErrorf(step, "open requires subSteps")
	}

	el, err := s.findOne(ctx, sc, step.Selector())
	if err != nil {
		return fmt.Errorf("locating open target %q: %w", step.SelectorValue, err)
	}
	if el == nil {
		return fmt.Errorf("open target %q not found", step.SelectorValue)
	}

	child, err := s.openFrom(ctx, sc.page, el)
	if err != nil {
		return fmt.Errorf("open %s: %w", stepLabel(step), err)
	}
	defer child.Close(ctx)

	childCol := sc.collector.NewItem()
	childScope := stepScope{
		page:      child,
		collector: childCol,
		sink:      sc.sink,
		topo:      sc.topo,
		parentEv:  sc.parentEv,
	}

	if err := s.executeStepList(ctx, childScope, step.SubSteps, path+".subSteps"); err != nil {
		var cfgErr *ConfigurationError
		if errors.As(err, &cfgErr) || step.TerminateOnError {
			return err
		}
		s.log.Warning("open %s: substeps failed, keeping partial results: %v", stepLabel(step), err)
	}

	sc.collector.mergeChild(childCol)
	return nil
}

// openFrom opens the document behind el: via its absolute href when
// one resolves, otherwise by simulating the click and attaching to the
// page it spawns.
func (s *Scraper) openFrom(ctx context.Context, page Page, el Element) (Page, error) {
	href, ok, err := page.Attribute(ctx, el, "href")
	if err == nil && ok && href != "" && !isJavascriptHref(href) {
		base, locErr := page.Location(ctx)
		if locErr == nil {
			if abs, resErr := ResolveHref(base, href); resErr == nil {
				return page.OpenURL(ctx, abs)
			}
		}
	}
	return page.OpenViaClick(ctx, el)
}

func isJavascriptHref(href string) bool {
	return strings.HasPrefix(strings.TrimSpace(strings.ToLower(href)), "javascript:")
}
