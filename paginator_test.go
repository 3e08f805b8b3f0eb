// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPage satisfies Page with inert defaults; paginator tests embed it
// and override the few calls the paginator makes.
type stubPage struct{}

func (stubPage) Navigate(context.Context, string) error { return nil }
func (stubPage) Reload(context.Context) error           { return nil }
func (stubPage) Location(context.Context) (string, error) {
	return "https://stub.test", nil
}
func (stubPage) Find(context.Context, Selector, Element) ([]Element, error) {
	return []Element{}, nil
}
func (stubPage) Click(context.Context, Element) error        { return nil }
func (stubPage) Type(context.Context, Element, string) error { return nil }
func (stubPage) Text(context.Context, Element) (string, error) {
	return "", nil
}
func (stubPage) HTML(context.Context, Element) (string, error) {
	return "", nil
}
func (stubPage) FormValue(context.Context, Element) (string, error) {
	return "", nil
}
func (stubPage) Attribute(context.Context, Element, string) (string, bool, error) {
	return "", false, nil
}
func (stubPage) ScrollIntoView(context.Context, Element) error { return nil }
func (stubPage) ScrollBy(context.Context, int) error           { return nil }
func (stubPage) Cookies(context.Context, string) ([]Cookie, error) {
	return nil, nil
}
func (stubPage) PrintToPDF(context.Context, PDFOptions) ([]byte, error) {
	return nil, nil
}
func (stubPage) Download(context.Context, func(context.Context) error) (string, error) {
	return "", nil
}
func (stubPage) CaptureResponse(context.Context, func(string, string) bool, func(context.Context) error) ([]byte, error) {
	return nil, nil
}
func (stubPage) OpenURL(context.Context, string) (Page, error)     { return nil, nil }
func (stubPage) OpenViaClick(context.Context, Element) (Page, error) { return nil, nil }
func (stubPage) Close(context.Context) error                       { return nil }

type nextControlPage struct {
	stubPage
	present  bool
	disabled bool
	clicks   int
}

func (p *nextControlPage) Find(context.Context, Selector, Element) ([]Element, error) {
	if !p.present {
		return []Element{}, nil
	}
	return []Element{"next"}, nil
}

func (p *nextControlPage) Attribute(_ context.Context, _ Element, name string) (string, bool, error) {
	if p.disabled && name == "disabled" {
		return "", true, nil
	}
	return "", false, nil
}

func (p *nextControlPage) Click(context.Context, Element) error {
	p.clicks++
	return nil
}

type scrollCountPage struct {
	stubPage
	scrolls int
}

func (p *scrollCountPage) ScrollBy(context.Context, int) error {
	p.scrolls++
	return nil
}

func TestPaginatorNoConfigSinglePage(t *testing.T) {
	p, err := newPaginator(nil, NewNoopLogger())
	require.NoError(t, err)

	assert.False(t, p.shouldStop())
	p.collected()
	assert.True(t, p.shouldStop())

	more, err := p.advance(context.Background(), stubPage{})
	require.NoError(t, err)
	assert.False(t, more)
}

func TestPaginatorMaxPages(t *testing.T) {
	cfg := &PaginationConfig{Strategy: "next", SelectorKind: SelectorID, SelectorValue: "next", MaxPages: 2}
	p, err := newPaginator(cfg, NewNoopLogger())
	require.NoError(t, err)

	p.collected()
	assert.False(t, p.shouldStop())
	p.collected()
	assert.True(t, p.shouldStop())
}

func TestPaginatorStopExpression(t *testing.T) {
	cfg := &PaginationConfig{Strategy: "scroll", StopExpression: "pageNum >= 3"}
	p, err := newPaginator(cfg, NewNoopLogger())
	require.NoError(t, err)

	p.collected()
	p.collected()
	assert.False(t, p.shouldStop())
	p.collected()
	assert.True(t, p.shouldStop())
}

func TestPaginatorAdvanceNext(t *testing.T) {
	cfg := &PaginationConfig{Strategy: "next", SelectorKind: SelectorID, SelectorValue: "next"}
	ctx := context.Background()

	page := &nextControlPage{present: true}
	p, err := newPaginator(cfg, NewNoopLogger())
	require.NoError(t, err)

	more, err := p.advance(ctx, page)
	require.NoError(t, err)
	assert.True(t, more)
	assert.Equal(t, 1, page.clicks)

	// control gone: stop quietly and stay stopped
	page.present = false
	more, err = p.advance(ctx, page)
	require.NoError(t, err)
	assert.False(t, more)
	assert.True(t, p.shouldStop())
}

func TestPaginatorAdvanceDisabledControl(t *testing.T) {
	cfg := &PaginationConfig{Strategy: "next", SelectorKind: SelectorID, SelectorValue: "next"}
	page := &nextControlPage{present: true, disabled: true}

	p, err := newPaginator(cfg, NewNoopLogger())
	require.NoError(t, err)

	more, err := p.advance(context.Background(), page)
	require.NoError(t, err)
	assert.False(t, more)
	assert.Equal(t, 0, page.clicks)
}

func TestPaginatorAdvanceScroll(t *testing.T) {
	cfg := &PaginationConfig{Strategy: "scroll", ScrollOffset: 400, MaxPages: 5}
	page := &scrollCountPage{}

	p, err := newPaginator(cfg, NewNoopLogger())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		more, err := p.advance(context.Background(), page)
		require.NoError(t, err)
		assert.True(t, more)
	}
	assert.Equal(t, 3, page.scrolls)
}
