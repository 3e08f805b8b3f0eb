// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{\{([A-Za-z_][A-Za-z0-9_]*)\}\}`)
	unsafePathRe  = regexp.MustCompile(`[^A-Za-z0-9 _-]+`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// ResolveIndexPlaceholders replaces every {{token}} occurrence with the
// 0-based index and every {{token_plus1}} occurrence with index+1. The
// substituted value is a plain integer, never sanitized. Empty input is
// a no-op, and the function is idempotent when no token matches.
func ResolveIndexPlaceholders(s string, index int, token string) string {
	if s == "" {
		return s
	}
	if token == "" {
		token = "i"
	}
	s = strings.ReplaceAll(s, "{{"+token+"_plus1}}", strconv.Itoa(index+1))
	return strings.ReplaceAll(s, "{{"+token+"}}", strconv.Itoa(index))
}

// ResolveDataPlaceholders replaces every {{key}} occurrence with the
// stringified, filesystem-safe value of the corresponding collector
// field. Unresolved tokens are left verbatim. Used for file-path
// contexts, hence the sanitization.
func ResolveDataPlaceholders(s string, c *Collector) string {
	if s == "" || c == nil || !strings.Contains(s, "{{") {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		key := m[2 : len(m)-2]
		v, ok := c.Field(key)
		if !ok || v == nil {
			return m
		}
		return sanitizeForPath(fmt.Sprintf("%v", v))
	})
}

// sanitizeForPath strips characters outside [A-Za-z0-9 _-], trims, and
// collapses whitespace runs to single underscores.
func sanitizeForPath(s string) string {
	s = unsafePathRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	return whitespaceRe.ReplaceAllString(s, "_")
}

// placeholderTokens returns the unique token names referenced in s,
// with any _plus1 suffix removed. Used by validation to check that
// index tokens referenced inside a loop are declared by an enclosing
// foreach.
func placeholderTokens(s string) []string {
	if !strings.Contains(s, "{{") {
		return nil
	}
	seen := make(map[string]bool)
	var tokens []string
	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		name := strings.TrimSuffix(m[1], "_plus1")
		if !seen[name] {
			seen[name] = true
			tokens = append(tokens, name)
		}
	}
	return tokens
}

// cloneStepWithIndex instantiates a step subtree for one loop
// iteration: it substitutes the index token across every string field,
// recursively over children, and returns a deep copy. The input step is
// never mutated. Tokens other than the
// supplied one (e.g. an inner loop's "j") are left verbatim for a later
// clone stage.
func cloneStepWithIndex(step Step, index int, token string) Step {
	out := step
	out.SelectorValue = ResolveIndexPlaceholders(step.SelectorValue, index, token)
	out.Value = ResolveIndexPlaceholders(step.Value, index, token)
	out.Key = ResolveIndexPlaceholders(step.Key, index, token)
	if len(step.SubSteps) > 0 {
		out.SubSteps = make([]Step, len(step.SubSteps))
		for i, sub := range step.SubSteps {
			out.SubSteps[i] = cloneStepWithIndex(sub, index, token)
		}
	}
	return out
}
