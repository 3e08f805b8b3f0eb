// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveIndexPlaceholders(t *testing.T) {
	assert.Equal(t, "//div[3]/a", ResolveIndexPlaceholders("//div[{{i}}]/a", 3, "i"))
	assert.Equal(t, "row 4", ResolveIndexPlaceholders("row {{i_plus1}}", 3, "i"))
	assert.Equal(t, "", ResolveIndexPlaceholders("", 3, "i"))

	// empty token falls back to "i"
	assert.Equal(t, "item-0", ResolveIndexPlaceholders("item-{{i}}", 0, ""))

	// other tokens survive for a later clone stage
	assert.Equal(t, "0-{{j}}", ResolveIndexPlaceholders("{{i}}-{{j}}", 0, "i"))

	// idempotent once no token matches
	once := ResolveIndexPlaceholders("cell {{i}}", 2, "i")
	assert.Equal(t, once, ResolveIndexPlaceholders(once, 5, "i"))
}

func TestResolveDataPlaceholders(t *testing.T) {
	c := NewCollector()
	c.Set("title", "Annual Report: 2024/25")
	c.Set("empty", nil)

	out := ResolveDataPlaceholders("docs/{{title}}.pdf", c)
	assert.Equal(t, "docs/Annual_Report_202425.pdf", out)

	// unresolved and nil-valued tokens stay verbatim
	assert.Equal(t, "x/{{missing}}.pdf", ResolveDataPlaceholders("x/{{missing}}.pdf", c))
	assert.Equal(t, "x/{{empty}}.pdf", ResolveDataPlaceholders("x/{{empty}}.pdf", c))
	assert.Equal(t, "plain.pdf", ResolveDataPlaceholders("plain.pdf", c))
}

func TestSanitizeForPath(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeForPath("  a / b : c  "))
	assert.Equal(t, "report_2024", sanitizeForPath("report (2024)"))
}

func TestPlaceholderTokens(t *testing.T) {
	tokens := placeholderTokens("{{i}}-{{j_plus1}}-{{i}}")
	assert.Equal(t, []string{"i", "j"}, tokens)
	assert.Nil(t, placeholderTokens("no tokens"))
}

func TestCloneStepWithIndex(t *testing.T) {
	step := Step{
		Action:        ActionForeach,
		SelectorKind:  SelectorXPath,
		SelectorValue: "//table[{{i}}]//tr",
		SubSteps: []Step{
			{
				Action:        ActionData,
				Key:           "cell_{{i}}_{{j}}",
				SelectorKind:  SelectorXPath,
				SelectorValue: "//td[{{j}}]",
			},
		},
	}

	outer := cloneStepWithIndex(step, 1, "i")
	require.Len(t, outer.SubSteps, 1)
	assert.Equal(t, "//table[1]//tr", outer.SelectorValue)
	assert.Equal(t, "cell_1_{{j}}", outer.SubSteps[0].Key)
	assert.Equal(t, "//td[{{j}}]", outer.SubSteps[0].SelectorValue)

	inner := cloneStepWithIndex(outer.SubSteps[0], 2, "j")
	assert.Equal(t, "cell_1_2", inner.Key)
	assert.Equal(t, "//td[2]", inner.SelectorValue)

	// the input tree is never mutated
	assert.Equal(t, "//table[{{i}}]//tr", step.SelectorValue)
	assert.Equal(t, "cell_{{i}}_{{j}}", step.SubSteps[0].Key)
}
