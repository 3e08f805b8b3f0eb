// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Action identifies what a step does when interpreted against a page.
type Action string

const (
	ActionNavigate      Action = "navigate"
	ActionInput         Action = "input"
	ActionClick         Action = "click"
	ActionData          Action = "data"
	ActionScroll        Action = "scroll"
	ActionReload        Action = "reload"
	ActionWait          Action = "wait"
	ActionForeach       Action = "foreach"
	ActionOpen          Action = "open"
	ActionEventDownload Action = "eventBaseDownload"
	ActionDownloadFile  Action = "downloadFile"
	ActionDownloadPDF   Action = "downloadPDF"
	ActionSavePDF       Action = "savePDF"
	ActionPrintToPDF    Action = "printToPDF"
)

// DataKind selects what a data step extracts from the matched element.
type DataKind string

const (
	DataText      DataKind = "text"
	DataHTML      DataKind = "html"
	DataFormValue DataKind = "formValue"
	DataAttribute DataKind = "attribute"
	DataDefault   DataKind = "default"
)

// Step is one node in the automation tree. Steps are data-only
// descriptors: they carry no executable code and round-trip through
// YAML/JSON without loss.
type Step struct {
	ID               string       `yaml:"id,omitempty" json:"id,omitempty"`
	Action           Action       `yaml:"action" json:"action"`
	SelectorKind     SelectorKind `yaml:"selectorKind,omitempty" json:"selectorKind,omitempty"`
	SelectorValue    string       `yaml:"selectorValue,omitempty" json:"selectorValue,omitempty"`
	Value            string       `yaml:"value,omitempty" json:"value,omitempty"`
	Key              string       `yaml:"key,omitempty" json:"key,omitempty"`
	DataKind         DataKind     `yaml:"dataKind,omitempty" json:"dataKind,omitempty"`
	WaitAfterMs      int          `yaml:"waitAfterMs,omitempty" json:"waitAfterMs,omitempty"`
	TerminateOnError bool         `yaml:"terminateOnError,omitempty" json:"terminateOnError,omitempty"`
	SubSteps         []Step       `yaml:"subSteps,omitempty" json:"subSteps,omitempty"`

	// AutoScroll controls whether foreach scrolls each matched element
	// into view before processing it. Defaults to true when absent.
	AutoScroll *bool `yaml:"autoScroll,omitempty" json:"autoScroll,omitempty"`

	// IndexTokenName is the placeholder token substituted with the loop
	// index by foreach. Defaults to "i"; nested loops use distinct
	// tokens (outer "i", inner "j") to avoid collisions.
	IndexTokenName string `yaml:"indexTokenName,omitempty" json:"indexTokenName,omitempty"`
}

// Selector returns the step's selector pair.
func (s Step) Selector() Selector {
	return Selector{Kind: s.SelectorKind, Value: s.SelectorValue}
}

func (s Step) autoScroll() bool {
	return s.AutoScroll == nil || *s.AutoScroll
}

func (s Step) indexToken() string {
	if s.IndexTokenName == "" {
		return "i"
	}
	return s.IndexTokenName
}

// outputKey resolves the collector key for this step's result:
// explicit key, then id, then the supplied literal fallback.
func (s Step) outputKey(fallback string) string {
	if s.Key != "" {
		return s.Key
	}
	if s.ID != "" {
		return s.ID
	}
	return fallback
}

// PaginationConfig drives the per-tab page-iteration loop.
type PaginationConfig struct {
	// Strategy is "next" (locate and click a next control) or "scroll"
	// (scroll by an offset). Empty defaults to "next".
	Strategy      string       `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	SelectorKind  SelectorKind `yaml:"selectorKind,omitempty" json:"selectorKind,omitempty"`
	SelectorValue string       `yaml:"selectorValue,omitempty" json:"selectorValue,omitempty"`
	WaitMs        int          `yaml:"waitMs,omitempty" json:"waitMs,omitempty"`
	ScrollOffset  int          `yaml:"scrollOffset,omitempty" json:"scrollOffset,omitempty"`

	// MaxPages caps the number of page collections; 0 means unbounded.
	// A scroll strategy without MaxPages (or a StopExpression) never
	// terminates on its own; bounding it is the caller's job, not
	// something rejected statically.
	MaxPages int `yaml:"maxPages,omitempty" json:"maxPages,omitempty"`

	// PaginationFirst advances before collecting for every page after
	// the first. PaginateAllFirst advances to exhaustion first, then
	// collects exactly once against the final page state.
	PaginationFirst  bool `yaml:"paginationFirst,omitempty" json:"paginationFirst,omitempty"`
	PaginateAllFirst bool `yaml:"paginateAllFirst,omitempty" json:"paginateAllFirst,omitempty"`

	// StopExpression is an optional expr-lang expression evaluated
	// before each advance with {pageNum} in scope; a true result stops
	// pagination.
	StopExpression string `yaml:"stopExpression,omitempty" json:"stopExpression,omitempty"`
}

func (p *PaginationConfig) strategy() string {
	if p.Strategy == "" {
		return "next"
	}
	return p.Strategy
}

// TabTemplate declares one browser tab's program.
type TabTemplate struct {
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	InitSteps []Step `yaml:"initSteps,omitempty" json:"initSteps,omitempty"`

	// PerPageSteps run once per pagination iteration. Steps is the
	// legacy single-sequence form, used identically when PerPageSteps
	// is absent.
	PerPageSteps []Step `yaml:"perPageSteps,omitempty" json:"perPageSteps,omitempty"`
	Steps        []Step `yaml:"steps,omitempty" json:"steps,omitempty"`

	Pagination *PaginationConfig `yaml:"pagination,omitempty" json:"pagination,omitempty"`

	// ResultTransformer is an optional jq expression applied to each
	// record before it is emitted.
	ResultTransformer string `yaml:"resultTransformer,omitempty" json:"resultTransformer,omitempty"`
}

// pageSteps returns the per-page step sequence, honoring the legacy
// Steps field.
func (t TabTemplate) pageSteps() []Step {
	if len(t.PerPageSteps) > 0 {
		return t.PerPageSteps
	}
	return t.Steps
}

// ParseTemplates decodes a sequence of tab templates from YAML or JSON
// (JSON being a YAML subset, one decoder covers both) and validates it.
func ParseTemplates(data []byte) ([]TabTemplate, []ValidationError, error) {
	var tabs []TabTemplate
	if err := yaml.Unmarshal(data, &tabs); err != nil {
		return nil, nil, err
	}
	errs := ValidateTemplates(tabs)
	if len(errs) != 0 {
		return tabs, errs, nil
	}
	return tabs, nil, nil
}

// LoadTemplates reads and parses a template file.
func LoadTemplates(path string) ([]TabTemplate, []ValidationError, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return ParseTemplates(data)
}
