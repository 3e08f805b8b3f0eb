// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// paginator drives one tab's page-iteration loop. It tracks how many
// pages have been collected and decides, between collections, whether
// to advance to the next page or stop.
//
// Contract: advance reports false when no further page exists. A
// missing or disabled next control is an expected terminal state, not
// an error. Only collected and advance mutate the paginator.
type paginator struct {
	cfg      *PaginationConfig
	log      Logger
	pageNum  int
	stopped  bool
	stopProg *vm.Program
}

func newPaginator(cfg *PaginationConfig, log Logger) (*paginator, error) {
	p := &paginator{cfg: cfg, log: log}
	if cfg != nil && cfg.StopExpression != "" {
		prog, err := expr.Compile(cfg.StopExpression, expr.Env(map[string]any{"pageNum": 0}), expr.AsBool())
		if err != nil {
			return nil, err
		}
		p.stopProg = prog
	}
	return p, nil
}

// collected records that one page's worth of steps has run.
func (p *paginator) collected() {
	p.pageNum++
}

// shouldStop reports whether pagination is exhausted. Without a
// pagination config a tab is single-page, so it stops after the first
// collection.
func (p *paginator) shouldStop() bool {
	if p.cfg == nil {
		return p.pageNum >= 1
	}
	if p.stopped {
		return true
	}
	if p.cfg.MaxPages > 0 && p.pageNum >= p.cfg.MaxPages {
		return true
	}
	if p.stopProg != nil {
		out, err := expr.Run(p.stopProg, map[string]any{"pageNum": p.pageNum})
		if err != nil {
			p.log.Warning("pagination stop expression failed, stopping: %v", err)
			return true
		}
		if stop, ok := out.(bool); ok && stop {
			return true
		}
	}
	return false
}

// advance moves the page to the next pagination state and reports
// whether a next page exists. For the "next" strategy a missing,
// disabled, or unclickable control stops pagination quietly. The
// "scroll" strategy never stops on its own.
func (p *paginator) advance(ctx context.Context, page Page) (bool, error) {
	if p.cfg == nil {
		return false, nil
	}

	switch p.cfg.strategy() {
	case "scroll":
		if err := page.ScrollBy(ctx, p.cfg.ScrollOffset); err != nil {
			p.log.Warning("pagination scroll failed, stopping: %v", err)
			p.stopped = true
			return false, nil
		}
	default: // "next"
		sel := Selector{Kind: p.cfg.SelectorKind, Value: p.cfg.SelectorValue}
		matches, err := page.Find(ctx, sel, nil)
		if err != nil {
			return false, err
		}
		if len(matches) == 0 {
			p.log.Debug("pagination: next control not found, stopping")
			p.stopped = true
			return false, nil
		}
		control := matches[0]
		if p.controlDisabled(ctx, page, control) {
			p.log.Debug("pagination: next control disabled, stopping")
			p.stopped = true
			return false, nil
		}
		if err := page.Click(ctx, control); err != nil {
			p.log.Warning("pagination: next control not clickable, stopping: %v", err)
			p.stopped = true
			return false, nil
		}
	}

	if p.cfg.WaitMs > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(time.Duration(p.cfg.WaitMs) * time.Millisecond):
		}
	}
	return true, nil
}

// controlDisabled checks the common idioms sites use to mark an
// exhausted next control: a disabled attribute, aria-disabled, or a
// "disabled" class token.
func (p *paginator) controlDisabled(ctx context.Context, page Page, el Element) bool {
	if _, ok, err := page.Attribute(ctx, el, "disabled"); err == nil && ok {
		return true
	}
	if v, ok, err := page.Attribute(ctx, el, "aria-disabled"); err == nil && ok && v == "true" {
		return true
	}
	if cls, ok, err := page.Attribute(ctx, el, "class"); err == nil && ok {
		for _, token := range whitespaceRe.Split(cls, -1) {
			if token == "disabled" {
				return true
			}
		}
	}
	return false
}
