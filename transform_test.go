// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileJQEmpty(t *testing.T) {
	c, err := compileJQ("")
	require.NoError(t, err)
	assert.Nil(t, c)

	// nil transformer passes records through
	rec := Record{"a": "b"}
	out, err := c.transformRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, rec, out)
}

func TestTransformRecord(t *testing.T) {
	c, err := compileJQ(`{title: .title, upper: (.title | ascii_upcase)}`)
	require.NoError(t, err)

	out, err := c.transformRecord(Record{"title": "hello", "dropped": "x"})
	require.NoError(t, err)
	assert.Equal(t, Record{"title": "hello", "upper": "HELLO"}, out)
}

func TestTransformRecordNonObject(t *testing.T) {
	c, err := compileJQ(`.title`)
	require.NoError(t, err)

	_, err = c.transformRecord(Record{"title": "hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected an object")
}

func TestCompileJQInvalid(t *testing.T) {
	_, err := compileJQ(`.title |= !!!`)
	require.Error(t, err)
}
