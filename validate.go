// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"fmt"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/itchyny/gojq"
)

type ValidationError struct {
	Message  string
	Location string // optional, e.g. "tabs[0].perPageSteps[2].subSteps[0]"
}

func (e ValidationError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s: %s", e.Location, e.Message)
	}
	return e.Message
}

// ConfigurationError is a run-time structural defect in a template that
// validation could not catch statically (e.g. a placeholder resolving
// to an empty destination). It always aborts the run regardless of
// terminateOnError.
type ConfigurationError struct {
	StepID  string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("step %q: %s", e.StepID, e.Message)
	}
	return e.Message
}

func configErrorf(step Step, format string, args ...any) error {
	return &ConfigurationError{StepID: step.ID, Message: fmt.Sprintf(format, args...)}
}

// ValidateTemplates checks every tab template structurally and
// pre-compiles all embedded expressions so a bad template fails before
// a browser is ever launched. It returns all problems found, not just
// the first.
func ValidateTemplates(tabs []TabTemplate) []ValidationError {
	var errs []ValidationError

	if len(tabs) == 0 {
		errs = append(errs, ValidationError{"at least one tab template is required", "tabs"})
		return errs
	}

	for i, tab := range tabs {
		loc := fmt.Sprintf("tabs[%d]", i)

		if len(tab.InitSteps) == 0 && len(tab.pageSteps()) == 0 {
			errs = append(errs, ValidationError{"template has no steps", loc})
		}
		if len(tab.PerPageSteps) > 0 && len(tab.Steps) > 0 {
			errs = append(errs, ValidationError{"perPageSteps and steps are mutually exclusive", loc + ".steps"})
		}

		tokens := map[string]bool{}
		for j, step := range tab.InitSteps {
			errs = append(errs, validateStep(step, fmt.Sprintf("%s.initSteps[%d]", loc, j), tokens)...)
		}
		listName := "perPageSteps"
		if len(tab.PerPageSteps) == 0 && len(tab.Steps) > 0 {
			listName = "steps"
		}
		for j, step := range tab.pageSteps() {
			errs = append(errs, validateStep(step, fmt.Sprintf("%s.%s[%d]", loc, listName, j), tokens)...)
		}

		if tab.Pagination != nil {
			errs = append(errs, validatePagination(*tab.Pagination, loc+".pagination")...)
		}

		if tab.ResultTransformer != "" {
			if _, err := gojq.Parse(tab.ResultTransformer); err != nil {
				errs = append(errs, ValidationError{fmt.Sprintf("resultTransformer does not parse: %v", err), loc + ".resultTransformer"})
			}
		}
	}

	return errs
}

// validateStep checks one step and its subtree. declared holds the
// index tokens introduced by enclosing foreach steps; selector strings
// may only reference those, since nothing else substitutes into them.
func validateStep(step Step, location string, declared map[string]bool) []ValidationError {
	var errs []ValidationError

	switch step.Action {
	case ActionNavigate:
		if step.Value == "" {
			errs = append(errs, ValidationError{"navigate requires value (the target URL)", location + ".value"})
		}

	case ActionInput:
		if step.SelectorValue == "" {
			errs = append(errs, ValidationError{"input requires a selector", location + ".selectorValue"})
		}

	case ActionClick, ActionData:
		if step.SelectorValue == "" {
			errs = append(errs, ValidationError{fmt.Sprintf("%s requires a selector", step.Action), location + ".selectorValue"})
		}

	case ActionScroll:
		if step.Value != "" {
			if _, err := strconv.Atoi(step.Value); err != nil {
				errs = append(errs, ValidationError{"scroll value must be an integer pixel offset", location + ".value"})
			}
		}

	case ActionReload:
		// no structural requirements

	case ActionWait:
		if step.Value != "" {
			if _, err := strconv.Atoi(step.Value); err != nil {
				errs = append(errs, ValidationError{"wait value must be an integer millisecond count", location + ".value"})
			}
		}

	case ActionForeach, ActionOpen:
		if step.SelectorValue == "" {
			errs = append(errs, ValidationError{fmt.Sprintf("%s requires a selector", step.Action), location + ".selectorValue"})
		}
		if len(step.SubSteps) == 0 {
			errs = append(errs, ValidationError{fmt.Sprintf("%s requires subSteps", step.Action), location + ".subSteps"})
		}

	case ActionEventDownload, ActionDownloadFile, ActionDownloadPDF:
		if step.SelectorValue == "" {
			errs = append(errs, ValidationError{fmt.Sprintf("%s requires a selector", step.Action), location + ".selectorValue"})
		}
		if step.Value == "" {
			errs = append(errs, ValidationError{fmt.Sprintf("%s requires value (the destination path)", step.Action), location + ".value"})
		}

	case ActionSavePDF:
		if step.Value == "" {
			errs = append(errs, ValidationError{"savePDF requires value (the destination path)", location + ".value"})
		}

	case ActionPrintToPDF:
		if step.Value == "" {
			errs = append(errs, ValidationError{"printToPDF requires value (the destination path)", location + ".value"})
		}

	default:
		errs = append(errs, ValidationError{fmt.Sprintf("unknown action '%s'", step.Action), location + ".action"})
		return errs
	}

	// Selector strings only ever receive index substitution, so every
	// token in them must be declared by an enclosing foreach.
	for _, tok := range placeholderTokens(step.SelectorValue) {
		if !declared[tok] {
			errs = append(errs, ValidationError{fmt.Sprintf("selector references undeclared index token '%s'", tok), location + ".selectorValue"})
		}
	}

	if len(step.SubSteps) > 0 && step.Action != ActionForeach && step.Action != ActionOpen {
		errs = append(errs, ValidationError{fmt.Sprintf("%s does not accept subSteps", step.Action), location + ".subSteps"})
	}

	if step.Action == ActionForeach {
		tok := step.indexToken()
		child := make(map[string]bool, len(declared)+1)
		for k := range declared {
			child[k] = true
		}
		child[tok] = true
		for i, sub := range step.SubSteps {
			errs = append(errs, validateStep(sub, fmt.Sprintf("%s.subSteps[%d]", location, i), child)...)
		}
	} else {
		for i, sub := range step.SubSteps {
			errs = append(errs, validateStep(sub, fmt.Sprintf("%s.subSteps[%d]", location, i), declared)...)
		}
	}

	return errs
}

func validatePagination(p PaginationConfig, location string) []ValidationError {
	var errs []ValidationError

	switch p.strategy() {
	case "next":
		if p.SelectorValue == "" {
			errs = append(errs, ValidationError{"pagination strategy 'next' requires a selector for the next control", location + ".selectorValue"})
		}
	case "scroll":
		// unbounded scroll is permitted; stopping is the caller's contract
	default:
		errs = append(errs, ValidationError{fmt.Sprintf("pagination strategy must be 'next' or 'scroll', got '%s'", p.Strategy), location + ".strategy"})
	}

	if p.MaxPages < 0 {
		errs = append(errs, ValidationError{"pagination maxPages must be >= 0", location + ".maxPages"})
	}
	if p.PaginationFirst && p.PaginateAllFirst {
		errs = append(errs, ValidationError{"paginationFirst and paginateAllFirst are mutually exclusive", location})
	}

	if p.StopExpression != "" {
		if _, err := expr.Compile(p.StopExpression, expr.Env(map[string]any{"pageNum": 0}), expr.AsBool()); err != nil {
			errs = append(errs, ValidationError{fmt.Sprintf("stopExpression does not compile: %v", err), location + ".stopExpression"})
		}
	}

	return errs
}
