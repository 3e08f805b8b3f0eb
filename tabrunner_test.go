// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stepwright/stepwright"
	swtest "github.com/stepwright/stepwright/testing"
)

// paginatedSite builds n listing pages of two rows each, chained by a
// #next control that navigates the page on click. The last page has no
// control.
func paginatedSite(n int) *swtest.Site {
	site := &swtest.Site{Pages: map[string]*swtest.Node{}}
	for i := 1; i <= n; i++ {
		page := &swtest.Node{Tag: "body"}
		for j := 1; j <= 2; j++ {
			page.Children = append(page.Children, &swtest.Node{
				Tag: "div", Class: "row",
				Children: []*swtest.Node{{Tag: "h2", Text: fmt.Sprintf("P%d R%d", i, j)}},
			})
		}
		if i < n {
			nextURL := fmt.Sprintf("https://site.test/p%d", i+1)
			page.Children = append(page.Children, &swtest.Node{
				Tag: "a", ID: "next",
				OnClick: func(p *swtest.FakePage) {
					p.Navigate(context.Background(), nextURL)
				},
			})
		}
		site.Pages[fmt.Sprintf("https://site.test/p%d", i)] = page
	}
	return site
}

func paginatedTemplate(pagination *stepwright.PaginationConfig) []stepwright.TabTemplate {
	return []stepwright.TabTemplate{{
		Name: "rows",
		InitSteps: []stepwright.Step{
			{Action: stepwright.ActionNavigate, Value: "https://site.test/p1"},
		},
		PerPageSteps: []stepwright.Step{
			{
				Action: stepwright.ActionForeach, SelectorKind: stepwright.SelectorClass, SelectorValue: "row",
				SubSteps: []stepwright.Step{
					{ID: "heading", Action: stepwright.ActionData, SelectorKind: stepwright.SelectorTag, SelectorValue: "h2"},
				},
			},
		},
		Pagination: pagination,
	}}
}

func headings(records []stepwright.Record) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i], _ = rec["heading"].(string)
	}
	return out
}

func TestPaginationStopsWhenControlMissing(t *testing.T) {
	scraper := newTestScraper(paginatedSite(3))

	tabs := paginatedTemplate(&stepwright.PaginationConfig{
		Strategy: "next", SelectorKind: stepwright.SelectorID, SelectorValue: "next",
	})

	records, err := scraper.Run(context.Background(), tabs)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"P1 R1", "P1 R2", "P2 R1", "P2 R2", "P3 R1", "P3 R2"},
		headings(records))
}

func TestPaginationMaxPagesCapsTheWalk(t *testing.T) {
	scraper := newTestScraper(paginatedSite(5))

	tabs := paginatedTemplate(&stepwright.PaginationConfig{
		Strategy: "next", SelectorKind: stepwright.SelectorID, SelectorValue: "next",
		MaxPages: 2,
	})

	records, err := scraper.Run(context.Background(), tabs)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"P1 R1", "P1 R2", "P2 R1", "P2 R2"},
		headings(records))
}

func TestPaginationStopExpression(t *testing.T) {
	scraper := newTestScraper(paginatedSite(5))

	tabs := paginatedTemplate(&stepwright.PaginationConfig{
		Strategy: "next", SelectorKind: stepwright.SelectorID, SelectorValue: "next",
		StopExpression: "pageNum >= 3",
	})

	records, err := scraper.Run(context.Background(), tabs)
	require.NoError(t, err)
	assert.Len(t, records, 6)
}

func TestPaginationFirstSkipsTheLandingPage(t *testing.T) {
	scraper := newTestScraper(paginatedSite(3))

	tabs := paginatedTemplate(&stepwright.PaginationConfig{
		Strategy: "next", SelectorKind: stepwright.SelectorID, SelectorValue: "next",
		PaginationFirst: true,
	})

	records, err := scraper.Run(context.Background(), tabs)
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"P2 R1", "P2 R2", "P3 R1", "P3 R2"},
		headings(records))
}

func TestStreamingMatchesBatch(t *testing.T) {
	batchScraper := newTestScraper(paginatedSite(3))
	tabs := paginatedTemplate(&stepwright.PaginationConfig{
		Strategy: "next", SelectorKind: stepwright.SelectorID, SelectorValue: "next",
	})

	batch, err := batchScraper.Run(context.Background(), tabs)
	require.NoError(t, err)

	var streamed []stepwright.Record
	var indexes []int
	streamScraper := newTestScraper(paginatedSite(3))
	err = streamScraper.RunWithCallback(context.Background(), tabs, func(rec stepwright.Record, index int) {
		streamed = append(streamed, rec)
		indexes = append(indexes, index)
	})
	require.NoError(t, err)

	assert.Equal(t, batch, streamed, "streaming and batch must emit the same records")
	for i, idx := range indexes {
		assert.Equal(t, i, idx, "indexes must be sequential from zero")
	}
}

func TestRunWithCallbackRejectsNilCallback(t *testing.T) {
	scraper := newTestScraper(articlesSite())
	err := scraper.RunWithCallback(context.Background(), articlesTemplate(), nil)
	require.Error(t, err)
}

func TestResultTransformerReshapesRecords(t *testing.T) {
	scraper := newTestScraper(articlesSite())

	tabs := articlesTemplate()
	tabs[0].ResultTransformer = "{title: .heading}"

	records, err := scraper.Run(context.Background(), tabs)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("Article %d", i+1), rec["title"])
		_, ok := rec["pageTitle"]
		assert.False(t, ok, "transformer output replaces the raw record")
	}
}

func TestRunVarsFlowIntoEveryRecord(t *testing.T) {
	scraper := newTestScraper(articlesSite(),
		stepwright.WithRunVars(map[string]any{"source": "unit"}))

	records, err := scraper.Run(context.Background(), articlesTemplate())
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.Equal(t, "unit", rec["source"])
	}
}

func TestInitStepsSeedPageContext(t *testing.T) {
	site := articlesSite()
	site.Pages["https://site.test/list"].Children = append(
		site.Pages["https://site.test/list"].Children,
		&swtest.Node{Tag: "span", ID: "run-id", Text: "run-77"})

	tabs := articlesTemplate()
	tabs[0].InitSteps = []stepwright.Step{
		{Action: stepwright.ActionNavigate, Value: "https://site.test/list"},
		{ID: "runID", Action: stepwright.ActionData, SelectorKind: stepwright.SelectorID, SelectorValue: "run-id"},
	}
	tabs[0].PerPageSteps = tabs[0].Steps[1:] // navigation moved to init
	tabs[0].Steps = nil

	scraper := newTestScraper(site)
	records, err := scraper.Run(context.Background(), tabs)
	require.NoError(t, err)
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.Equal(t, "run-77", rec["runID"])
	}
}

func TestProfilerEmitsStepEvents(t *testing.T) {
	scraper := newTestScraper(articlesSite())
	events := scraper.EnableProfiler(128)

	_, err := scraper.Run(context.Background(), articlesTemplate())
	require.NoError(t, err)

	var actions []stepwright.Action
	for ev := range events {
		assert.NotEmpty(t, ev.ID)
		assert.NotEmpty(t, ev.Path)
		actions = append(actions, ev.Action)
	}
	assert.Contains(t, actions, stepwright.ActionNavigate)
	assert.Contains(t, actions, stepwright.ActionForeach)
	assert.Contains(t, actions, stepwright.ActionData)
}
