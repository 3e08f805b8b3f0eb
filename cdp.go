// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// CDPOptions configures the Chrome DevTools Protocol driver.
type CDPOptions struct {
	Headless  bool
	ExecPath  string
	UserAgent string

	// DownloadDir is where browser-level downloads spool before the
	// download handlers move them to their destinations. Empty means a
	// fresh temp directory.
	DownloadDir string

	// OpTimeout bounds individual DOM operations; NavTimeout bounds
	// navigations, reloads, and download waits.
	OpTimeout  time.Duration
	NavTimeout time.Duration
}

func (o *CDPOptions) withDefaults() CDPOptions {
	out := *o
	if out.OpTimeout <= 0 {
		out.OpTimeout = 15 * time.Second
	}
	if out.NavTimeout <= 0 {
		out.NavTimeout = 30 * time.Second
	}
	return out
}

// CDPBrowser drives a real Chrome or Chromium over CDP via chromedp.
// All pages opened from one CDPBrowser share a browser context, so
// cookies and storage carry across open steps.
type CDPBrowser struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	opts          CDPOptions
}

// NewCDPBrowser launches the browser. The supplied context bounds the
// browser's whole lifetime, not individual operations.
func NewCDPBrowser(ctx context.Context, opts CDPOptions) (*CDPBrowser, error) {
	opts = opts.withDefaults()

	if opts.DownloadDir == "" {
		dir, err := os.MkdirTemp("", "stepwright-downloads-")
		if err != nil {
			return nil, fmt.Errorf("creating download spool dir: %w", err)
		}
		opts.DownloadDir = dir
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// start the browser process now so a broken install fails here
	// rather than on the first step
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &CDPBrowser{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		opts:          opts,
	}, nil
}

// NewPage opens a fresh tab with download spooling armed.
func (b *CDPBrowser) NewPage(ctx context.Context) (Page, error) {
	pageCtx, cancel := chromedp.NewContext(b.browserCtx)
	p := &cdpPage{ctx: pageCtx, cancel: cancel, opts: b.opts}
	err := p.run(ctx, b.opts.OpTimeout,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(b.opts.DownloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("preparing page: %w", err)
	}
	return p, nil
}

func (b *CDPBrowser) Close(ctx context.Context) error {
	b.browserCancel()
	b.allocCancel()
	return nil
}

// cdpPage implements Page over one chromedp tab context.
type cdpPage struct {
	ctx    context.Context
	cancel context.CancelFunc
	opts   CDPOptions
}

// run executes actions against the tab, bounded by timeout and by the
// caller's context. chromedp actions run on the tab's own context, so
// caller cancellation is bridged over.
func (p *cdpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	tctx, tcancel := context.WithTimeout(p.ctx, timeout)
	defer tcancel()
	stop := context.AfterFunc(ctx, tcancel)
	defer stop()
	if err := chromedp.Run(tctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *cdpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, p.opts.NavTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *cdpPage) Reload(ctx context.Context) error {
	return p.run(ctx, p.opts.NavTimeout,
		chromedp.Reload(),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (p *cdpPage) Location(ctx context.Context) (string, error) {
	var loc string
	err := p.run(ctx, p.opts.OpTimeout, chromedp.Location(&loc))
	return loc, err
}

// Find maps the selector onto chromedp node queries. CSS-shaped
// selectors use querySelectorAll, optionally rooted at the scope node;
// XPath goes through DOM search, with scoped queries rewritten against
// the scope node's absolute path.
func (p *cdpPage) Find(ctx context.Context, sel Selector, scope Element) ([]Element, error) {
	q, isXPath := sel.Query()
	if q == "" {
		return nil, nil
	}

	opts := []chromedp.QueryOption{chromedp.AtLeast(0)}
	if isXPath {
		if scope != nil && strings.HasPrefix(q, "//") {
			node, err := nodeOf(scope)
			if err != nil {
				return nil, err
			}
			q = node.FullXPath() + q[1:]
		}
		opts = append(opts, chromedp.BySearch)
	} else {
		opts = append(opts, chromedp.ByQueryAll)
		if scope != nil {
			node, err := nodeOf(scope)
			if err != nil {
				return nil, err
			}
			opts = append(opts, chromedp.FromNode(node))
		}
	}

	var nodes []*cdp.Node
	if err := p.run(ctx, p.opts.OpTimeout, chromedp.Nodes(q, &nodes, opts...)); err != nil {
		return nil, err
	}
	out := make([]Element, len(nodes))
	for i, n := range nodes {
		out[i] = n
	}
	return out, nil
}

func (p *cdpPage) Click(ctx context.Context, el Element) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return p.run(ctx, p.opts.OpTimeout, chromedp.MouseClickNode(node))
}

func (p *cdpPage) Type(ctx context.Context, el Element, text string) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return p.run(ctx, p.opts.OpTimeout,
		chromedp.MouseClickNode(node),
		chromedp.KeyEventNode(node, text),
	)
}

func (p *cdpPage) Text(ctx context.Context, el Element) (string, error) {
	node, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	var out string
	err = p.run(ctx, p.opts.OpTimeout, chromedp.Text(node.FullXPath(), &out, chromedp.BySearch))
	return strings.TrimSpace(out), err
}

func (p *cdpPage) HTML(ctx context.Context, el Element) (string, error) {
	node, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	var out string
	err = p.run(ctx, p.opts.OpTimeout, chromedp.InnerHTML(node.FullXPath(), &out, chromedp.BySearch))
	return out, err
}

func (p *cdpPage) FormValue(ctx context.Context, el Element) (string, error) {
	node, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	var out string
	err = p.run(ctx, p.opts.OpTimeout, chromedp.Value(node.FullXPath(), &out, chromedp.BySearch))
	return out, err
}

func (p *cdpPage) Attribute(ctx context.Context, el Element, name string) (string, bool, error) {
	node, err := nodeOf(el)
	if err != nil {
		return "", false, err
	}
	var val string
	var ok bool
	err = p.run(ctx, p.opts.OpTimeout,
		chromedp.AttributeValue(node.FullXPath(), name, &val, &ok, chromedp.BySearch))
	return val, ok, err
}

func (p *cdpPage) ScrollIntoView(ctx context.Context, el Element) error {
	node, err := nodeOf(el)
	if err != nil {
		return err
	}
	return p.run(ctx, p.opts.OpTimeout,
		chromedp.ScrollIntoView(node.FullXPath(), chromedp.BySearch))
}

func (p *cdpPage) ScrollBy(ctx context.Context, offsetPx int) error {
	script := "window.scrollBy(0, window.innerHeight)"
	if offsetPx != 0 {
		script = fmt.Sprintf("window.scrollBy(0, %d)", offsetPx)
	}
	return p.run(ctx, p.opts.OpTimeout, chromedp.Evaluate(script, nil))
}

func (p *cdpPage) Cookies(ctx context.Context, url string) ([]Cookie, error) {
	var out []Cookie
	err := p.run(ctx, p.opts.OpTimeout, chromedp.ActionFunc(func(c context.Context) error {
		cookies, err := network.GetCookies().WithUrls([]string{url}).Do(c)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			out = append(out, Cookie{Name: ck.Name, Value: ck.Value})
		}
		return nil
	}))
	return out, err
}

func (p *cdpPage) PrintToPDF(ctx context.Context, opts PDFOptions) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, p.opts.NavTimeout, chromedp.ActionFunc(func(c context.Context) error {
		params := cdppage.PrintToPDF().
			WithLandscape(opts.Landscape).
			WithPrintBackground(true)
		if opts.PaperWidth > 0 {
			params = params.WithPaperWidth(opts.PaperWidth)
		}
		if opts.PaperHeight > 0 {
			params = params.WithPaperHeight(opts.PaperHeight)
		}
		if opts.MarginTop > 0 {
			params = params.WithMarginTop(opts.MarginTop)
		}
		if opts.MarginBottom > 0 {
			params = params.WithMarginBottom(opts.MarginBottom)
		}
		if opts.MarginLeft > 0 {
			params = params.WithMarginLeft(opts.MarginLeft)
		}
		if opts.MarginRight > 0 {
			params = params.WithMarginRight(opts.MarginRight)
		}
		var err error
		buf, _, err = params.Do(c)
		return err
	}))
	return buf, err
}

// Download arms a browser-level download listener, runs trigger, and
// waits for the spooled file. SetDownloadBehavior with AllowAndName
// (armed in NewPage) names spooled files by their download GUID.
func (p *cdpPage) Download(ctx context.Context, trigger func(context.Context) error) (string, error) {
	done := make(chan string, 1)
	lctx, lcancel := context.WithCancel(p.ctx)
	defer lcancel()

	chromedp.ListenBrowser(lctx, func(ev any) {
		if e, ok := ev.(*browser.EventDownloadProgress); ok &&
			e.State == browser.DownloadProgressStateCompleted {
			select {
			case done <- e.GUID:
			default:
			}
		}
	})

	if err := trigger(ctx); err != nil {
		return "", err
	}

	select {
	case guid := <-done:
		return filepath.Join(p.opts.DownloadDir, guid), nil
	case <-time.After(p.opts.NavTimeout):
		return "", fmt.Errorf("timed out waiting for download event")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CaptureResponse listens for network responses during action and
// returns the first matching body. The listener context is canceled on
// return, so no matcher outlives its step.
func (p *cdpPage) CaptureResponse(ctx context.Context, match func(url, contentType string) bool, action func(context.Context) error) ([]byte, error) {
	hit := make(chan network.RequestID, 1)
	lctx, lcancel := context.WithCancel(p.ctx)
	defer lcancel()

	chromedp.ListenTarget(lctx, func(ev any) {
		if e, ok := ev.(*network.EventResponseReceived); ok {
			if match(e.Response.URL, e.Response.MimeType) {
				select {
				case hit <- e.RequestID:
				default:
				}
			}
		}
	})

	if err := p.run(ctx, p.opts.OpTimeout, network.Enable()); err != nil {
		return nil, err
	}
	if err := action(ctx); err != nil {
		return nil, err
	}

	var reqID network.RequestID
	select {
	case reqID = <-hit:
	case <-time.After(p.opts.NavTimeout):
		return nil, fmt.Errorf("no matching response observed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var body []byte
	err := p.run(ctx, p.opts.OpTimeout, chromedp.ActionFunc(func(c context.Context) error {
		b, err := network.GetResponseBody(reqID).Do(c)
		if err != nil {
			return err
		}
		body = b
		return nil
	}))
	return body, err
}

func (p *cdpPage) OpenURL(ctx context.Context, url string) (Page, error) {
	childCtx, cancel := chromedp.NewContext(p.ctx)
	child := &cdpPage{ctx: childCtx, cancel: cancel, opts: p.opts}
	if err := child.Navigate(ctx, url); err != nil {
		cancel()
		return nil, err
	}
	return child, nil
}

// OpenViaClick ctrl-clicks the element so the link opens in a new tab,
// then attaches to that tab. Needed for links that compute their
// destination in script and expose no usable href.
func (p *cdpPage) OpenViaClick(ctx context.Context, el Element) (Page, error) {
	node, err := nodeOf(el)
	if err != nil {
		return nil, err
	}

	targets := chromedp.WaitNewTarget(p.ctx, func(info *target.Info) bool {
		return info.Type == "page"
	})

	err = p.run(ctx, p.opts.OpTimeout,
		chromedp.MouseClickNode(node, chromedp.ButtonModifiers(input.ModifierCtrl)))
	if err != nil {
		return nil, err
	}

	var id target.ID
	select {
	case id = <-targets:
	case <-time.After(p.opts.NavTimeout):
		return nil, fmt.Errorf("click did not open a new page")
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	childCtx, cancel := chromedp.NewContext(p.ctx, chromedp.WithTargetID(id))
	child := &cdpPage{ctx: childCtx, cancel: cancel, opts: p.opts}
	if err := child.run(ctx, p.opts.NavTimeout, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		cancel()
		return nil, err
	}
	return child, nil
}

func (p *cdpPage) Close(ctx context.Context) error {
	err := chromedp.Cancel(p.ctx)
	p.cancel()
	return err
}

func nodeOf(el Element) (*cdp.Node, error) {
	node, ok := el.(*cdp.Node)
	if !ok {
		return nil, fmt.Errorf("element %T is not a CDP node", el)
	}
	return node, nil
}
