// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTemplatesYAML(t *testing.T) {
	data := []byte(`
- name: articles
  steps:
    - action: navigate
      value: https://example.test/list
    - id: title
      action: data
      selectorKind: id
      selectorValue: page-title
  pagination:
    strategy: next
    selectorKind: id
    selectorValue: next
    maxPages: 3
`)
	tabs, verrs, err := ParseTemplates(data)
	require.NoError(t, err)
	require.Empty(t, verrs)
	require.Len(t, tabs, 1)

	assert.Equal(t, "articles", tabs[0].Name)
	require.Len(t, tabs[0].pageSteps(), 2)
	assert.Equal(t, ActionNavigate, tabs[0].pageSteps()[0].Action)
	require.NotNil(t, tabs[0].Pagination)
	assert.Equal(t, 3, tabs[0].Pagination.MaxPages)
}

func TestParseTemplatesJSON(t *testing.T) {
	// JSON is a YAML subset, one decoder covers both
	data := []byte(`[{"name":"x","steps":[{"action":"navigate","value":"https://a.test"}]}]`)
	tabs, verrs, err := ParseTemplates(data)
	require.NoError(t, err)
	require.Empty(t, verrs)
	require.Len(t, tabs, 1)
	assert.Equal(t, "https://a.test", tabs[0].pageSteps()[0].Value)
}

func TestValidateTemplateErrors(t *testing.T) {
	tabs := []TabTemplate{{
		Name: "broken",
		Steps: []Step{
			{Action: "explode"},
			{Action: ActionNavigate},
			{Action: ActionForeach, SelectorKind: SelectorClass, SelectorValue: "row"},
			{Action: ActionData, SelectorKind: SelectorXPath, SelectorValue: "//td[{{i}}]"},
			{Action: ActionClick, SelectorKind: SelectorID, SelectorValue: "ok", SubSteps: []Step{{Action: ActionReload}}},
			{Action: ActionScroll, Value: "fast"},
		},
	}}

	errs := ValidateTemplates(tabs)
	locations := make([]string, len(errs))
	for i, e := range errs {
		locations[i] = e.Location
	}

	assert.Contains(t, locations, "tabs[0].steps[0].action")
	assert.Contains(t, locations, "tabs[0].steps[1].value")
	assert.Contains(t, locations, "tabs[0].steps[2].subSteps")
	// {{i}} outside any foreach
	assert.Contains(t, locations, "tabs[0].steps[3].selectorValue")
	assert.Contains(t, locations, "tabs[0].steps[4].subSteps")
	assert.Contains(t, locations, "tabs[0].steps[5].value")
}

func TestValidateIndexTokenScoping(t *testing.T) {
	tabs := []TabTemplate{{
		Steps: []Step{{
			Action:        ActionForeach,
			SelectorKind:  SelectorClass,
			SelectorValue: "row",
			SubSteps: []Step{
				{Action: ActionData, SelectorKind: SelectorXPath, SelectorValue: "//td[{{i}}]"},
				{Action: ActionData, SelectorKind: SelectorXPath, SelectorValue: "//td[{{j}}]"},
			},
		}},
	}}

	errs := ValidateTemplates(tabs)
	require.Len(t, errs, 1)
	assert.Equal(t, "tabs[0].steps[0].subSteps[1].selectorValue", errs[0].Location)
}

func TestValidatePagination(t *testing.T) {
	errs := validatePagination(PaginationConfig{Strategy: "warp"}, "p")
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "warp")

	errs = validatePagination(PaginationConfig{Strategy: "next"}, "p")
	require.Len(t, errs, 1)
	assert.Equal(t, "p.selectorValue", errs[0].Location)

	errs = validatePagination(PaginationConfig{
		Strategy: "scroll", PaginationFirst: true, PaginateAllFirst: true,
	}, "p")
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "mutually exclusive")

	errs = validatePagination(PaginationConfig{
		Strategy: "scroll", StopExpression: "pageNum >=",
	}, "p")
	require.Len(t, errs, 1)
	assert.Equal(t, "p.stopExpression", errs[0].Location)
}

func TestValidateResultTransformer(t *testing.T) {
	tabs := []TabTemplate{{
		Steps:             []Step{{Action: ActionReload}},
		ResultTransformer: ".title |= !!!",
	}}
	errs := ValidateTemplates(tabs)
	require.Len(t, errs, 1)
	assert.Equal(t, "tabs[0].resultTransformer", errs[0].Location)
}

func TestStepDefaults(t *testing.T) {
	s := Step{}
	assert.True(t, s.autoScroll())
	assert.Equal(t, "i", s.indexToken())
	assert.Equal(t, "data", s.outputKey("data"))

	off := false
	s = Step{ID: "x", Key: "y", AutoScroll: &off, IndexTokenName: "j"}
	assert.False(t, s.autoScroll())
	assert.Equal(t, "j", s.indexToken())
	assert.Equal(t, "y", s.outputKey("data"))

	s = Step{ID: "x"}
	assert.Equal(t, "x", s.outputKey("data"))
}
