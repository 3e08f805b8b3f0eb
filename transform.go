// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"fmt"

	"github.com/itchyny/gojq"
)

// compiledJQ is a pre-compiled jq expression. Compilation happens once
// per tab at run start so a bad transformer fails before any browser
// work, and records pay only the execution cost.
type compiledJQ struct {
	code *gojq.Code
	src  string
}

func compileJQ(src string) (*compiledJQ, error) {
	if src == "" {
		return nil, nil
	}
	q, err := gojq.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing jq '%s': %w", src, err)
	}
	code, err := gojq.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("compiling jq '%s': %w", src, err)
	}
	return &compiledJQ{code: code, src: src}, nil
}

// runSingle executes the expression and expects at most one result.
func (c *compiledJQ) runSingle(input any) (any, error) {
	if c == nil || c.code == nil {
		return input, nil
	}
	iter := c.code.Run(input)
	var result any
	count := 0
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, fmt.Errorf("jq error in '%s': %w", c.src, err)
		}
		count++
		if count > 1 {
			return nil, fmt.Errorf("expression '%s' produced %d results, expected 1", c.src, count)
		}
		result = v
	}
	return result, nil
}

// transformRecord applies the expression to one record. The expression
// must map an object to an object; anything else is a template defect.
// A nil compiledJQ passes the record through untouched.
func (c *compiledJQ) transformRecord(rec Record) (Record, error) {
	if c == nil || c.code == nil {
		return rec, nil
	}
	out, err := c.runSingle(map[string]any(rec))
	if err != nil {
		return nil, err
	}
	m, ok := out.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expression '%s' produced %T, expected an object", c.src, out)
	}
	return Record(m), nil
}
