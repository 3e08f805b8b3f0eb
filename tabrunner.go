// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/time/rate"
)

// ResultFunc receives each finalized record together with its 0-based
// position in the run's overall emission order.
type ResultFunc func(record Record, index int)

// resultSink is the single emission path for finalized records. Both
// streaming and batch runs go through it, so transformation, indexing,
// and accumulation behave identically in either mode.
type resultSink struct {
	fn        ResultFunc
	transform *compiledJQ
	log       Logger
	records   []Record
	index     int
}

func (rs *resultSink) emit(rec Record) {
	if rs.transform != nil {
		out, err := rs.transform.transformRecord(rec)
		if err != nil {
			rs.log.Warning("result transformer failed, emitting raw record: %v", err)
		} else {
			rec = out
		}
	}
	if rs.fn != nil {
		rs.fn(rec, rs.index)
	} else {
		rs.records = append(rs.records, rec)
	}
	rs.index++
}

// Scraper executes tab templates against a browser. One Scraper can
// run many times; each run opens its own pages.
type Scraper struct {
	browser Browser
	log     Logger
	fetcher *fetchClient
	prof    *profiler
	runVars map[string]any
}

// ScraperOption configures a Scraper at construction.
type ScraperOption func(*scraperConfig)

type scraperConfig struct {
	log        Logger
	httpClient *http.Client
	limiter    *rate.Limiter
	auth       Authenticator
	runVars    map[string]any
}

// WithLogger replaces the default stdout logger.
func WithLogger(log Logger) ScraperOption {
	return func(c *scraperConfig) { c.log = log }
}

// WithHTTPClient replaces the client used for out-of-band binary
// fetches (downloads, PDFs). The browser's own traffic is unaffected.
func WithHTTPClient(hc *http.Client) ScraperOption {
	return func(c *scraperConfig) { c.httpClient = hc }
}

// WithRateLimit throttles out-of-band fetches to rps requests per
// second with the given burst.
func WithRateLimit(rps float64, burst int) ScraperOption {
	return func(c *scraperConfig) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithAuthenticator decorates out-of-band fetches with credentials.
func WithAuthenticator(auth Authenticator) ScraperOption {
	return func(c *scraperConfig) { c.auth = auth }
}

// WithRunVars seeds every page's root collector with external
// variables, available to {{placeholder}} resolution like any
// collected field.
func WithRunVars(vars map[string]any) ScraperOption {
	return func(c *scraperConfig) { c.runVars = vars }
}

// NewScraper builds a scraper over an existing browser. The browser's
// lifecycle stays with the caller.
func NewScraper(browser Browser, opts ...ScraperOption) *Scraper {
	cfg := scraperConfig{log: NewDefaultLogger()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Scraper{
		browser: browser,
		log:     cfg.log,
		fetcher: newFetchClient(cfg.httpClient, cfg.limiter, cfg.auth, cfg.log),
		runVars: cfg.runVars,
	}
}

// EnableProfiler turns on step profiling and returns the event
// channel. The channel is closed when the next run finishes.
func (s *Scraper) EnableProfiler(buffer int) <-chan StepEvent {
	if buffer <= 0 {
		buffer = 64
	}
	s.prof = &profiler{ch: make(chan StepEvent, buffer)}
	return s.prof.ch
}

// Run executes the templates and returns every record in emission
// order once all tabs complete.
func (s *Scraper) Run(ctx context.Context, tabs []TabTemplate) ([]Record, error) {
	return s.run(ctx, tabs, nil)
}

// RunWithCallback executes the templates in streaming mode: records
// reach fn as soon as their subtree completes, which for paginated
// foreach scrapes means long before the run ends. fn is called from
// the run's goroutine, never concurrently.
func (s *Scraper) RunWithCallback(ctx context.Context, tabs []TabTemplate, fn ResultFunc) error {
	if fn == nil {
		return fmt.Errorf("RunWithCallback requires a non-nil callback")
	}
	_, err := s.run(ctx, tabs, fn)
	return err
}

func (s *Scraper) run(ctx context.Context, tabs []TabTemplate, fn ResultFunc) ([]Record, error) {
	if verrs := ValidateTemplates(tabs); len(verrs) > 0 {
		joined := make([]error, len(verrs))
		for i, ve := range verrs {
			joined[i] = ve
		}
		return nil, fmt.Errorf("invalid templates: %w", errors.Join(joined...))
	}

	if s.prof.enabled() {
		defer func() {
			s.prof.close()
			s.prof = nil
		}()
	}

	sink := &resultSink{fn: fn, log: s.log}
	for i, tab := range tabs {
		if err := s.runTab(ctx, tab, sink); err != nil {
			name := tab.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return sink.records, fmt.Errorf("tab %s: %w", name, err)
		}
	}
	return sink.records, nil
}

// runTab executes one template: init steps once, then the per-page
// steps under the paginator's loop shape, assembling and emitting each
// page's collector before the next page loads.
func (s *Scraper) runTab(ctx context.Context, tab TabTemplate, sink *resultSink) error {
	transform, err := compileJQ(tab.ResultTransformer)
	if err != nil {
		return err
	}
	sink.transform = transform

	pag, err := newPaginator(tab.Pagination, s.log)
	if err != nil {
		return err
	}

	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("opening page: %w", err)
	}
	defer page.Close(ctx)

	// init steps run once, outside pagination and outside streaming;
	// anything they collect becomes ambient context for every page
	initCol := NewCollector()
	for k, v := range s.runVars {
		initCol.Set(k, v)
	}
	if len(tab.InitSteps) > 0 {
		initScope := stepScope{page: page, collector: initCol, topo: newStepTopology(tab.InitSteps, "initSteps")}
		if err := s.executeStepList(ctx, initScope, tab.InitSteps, "initSteps"); err != nil {
			return fmt.Errorf("init steps: %w", err)
		}
	}

	steps := tab.pageSteps()
	if len(steps) == 0 {
		return nil
	}
	listName := "perPageSteps"
	if len(tab.PerPageSteps) == 0 {
		listName = "steps"
	}
	topo := newStepTopology(steps, listName)

	collect := func() error {
		// the page's root collector inherits run vars and init-step
		// fields as context, not as own data
		rootCol := initCol.NewItem()
		scope := stepScope{page: page, collector: rootCol, sink: sink, topo: topo}
		if err := s.executeStepList(ctx, scope, steps, listName); err != nil {
			return err
		}
		s.assemble(rootCol, sink)
		return nil
	}

	cfg := tab.Pagination
	switch {
	case cfg != nil && cfg.PaginateAllFirst:
		// exhaust pagination first, then collect once against the
		// final page state (infinite-scroll feeds)
		for !pag.shouldStop() {
			more, err := pag.advance(ctx, page)
			if err != nil {
				return err
			}
			if !more {
				break
			}
			pag.collected()
		}
		return collect()

	case cfg != nil && cfg.PaginationFirst:
		for {
			more, err := pag.advance(ctx, page)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
			if err := collect(); err != nil {
				return err
			}
			pag.collected()
			if pag.shouldStop() {
				return nil
			}
		}

	default:
		for {
			if err := collect(); err != nil {
				return err
			}
			pag.collected()
			if pag.shouldStop() {
				return nil
			}
			more, err := pag.advance(ctx, page)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
}

// assemble flushes a page's root collector: foreach items that were
// not already streamed become records (root fields merged in), and an
// item-less collector with its own fields becomes a single record.
func (s *Scraper) assemble(col *Collector, sink *resultSink) {
	if col.HasItems() {
		for i, item := range col.Items() {
			if col.Emitted(i) || item.IsEmpty() {
				continue
			}
			for _, rec := range item.Flatten() {
				for k, v := range col.fields {
					if _, ok := rec[k]; !ok {
						rec[k] = v
					}
				}
				sink.emit(rec)
			}
		}
		return
	}
	if len(col.ownKeys()) > 0 {
		sink.emit(col.record())
	}
}
