// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorItemInheritance(t *testing.T) {
	root := NewCollector()
	root.Set("page", "1")

	item := root.NewItem()
	v, ok := item.Field("page")
	require.True(t, ok)
	assert.Equal(t, "1", v)

	// inherited fields alone do not make an item non-empty
	assert.True(t, item.IsEmpty())
	item.Set("title", "a")
	assert.False(t, item.IsEmpty())

	// items are copies, not views
	root.Set("page", "2")
	v, _ = item.Field("page")
	assert.Equal(t, "1", v)
}

func TestCollectorFlatten(t *testing.T) {
	root := NewCollector()
	root.Set("site", "example")

	for _, title := range []string{"a", "b"} {
		item := root.NewItem()
		item.Set("title", title)
		root.adopt(item)
	}

	recs := root.Flatten()
	require.Len(t, recs, 2)
	assert.Equal(t, Record{"site": "example", "title": "a"}, recs[0])
	assert.Equal(t, Record{"site": "example", "title": "b"}, recs[1])
}

func TestCollectorFlattenNested(t *testing.T) {
	root := NewCollector()
	outer := root.NewItem()
	outer.Set("row", 0)

	inner := outer.NewItem()
	inner.Set("cell", "x")
	outer.adopt(inner)
	root.adopt(outer)

	recs := root.Flatten()
	require.Len(t, recs, 1)
	assert.Equal(t, Record{"row": 0, "cell": "x"}, recs[0])
}

func TestCollectorFlattenNoItems(t *testing.T) {
	c := NewCollector()
	c.Set("k", "v")
	recs := c.Flatten()
	require.Len(t, recs, 1)
	assert.Equal(t, Record{"k": "v"}, recs[0])

	// flattening returns copies
	recs[0]["k"] = "mutated"
	v, _ := c.Field("k")
	assert.Equal(t, "v", v)
}

func TestCollectorEmittedFlags(t *testing.T) {
	root := NewCollector()
	a := root.NewItem()
	a.Set("n", 1)
	b := root.NewItem()
	b.Set("n", 2)

	ia := root.adopt(a)
	ib := root.adopt(b)
	root.markEmitted(ia)

	assert.True(t, root.Emitted(ia))
	assert.False(t, root.Emitted(ib))
	assert.False(t, root.Emitted(99))
}

func TestCollectorMergeChild(t *testing.T) {
	parent := NewCollector()
	parent.Set("site", "example")

	child := parent.NewItem()
	child.Set("detail", "d1")
	item := child.NewItem()
	item.Set("n", 1)
	idx := child.adopt(item)
	child.markEmitted(idx)

	parent.mergeChild(child)

	// own fields come across, inherited ones do not clobber
	v, ok := parent.Field("detail")
	require.True(t, ok)
	assert.Equal(t, "d1", v)

	require.Len(t, parent.Items(), 1)
	assert.True(t, parent.Emitted(0))
}

func TestCollectorSetOverridesInherited(t *testing.T) {
	root := NewCollector()
	root.Set("k", "parent")

	item := root.NewItem()
	assert.True(t, item.IsEmpty())
	item.Set("k", "own")
	assert.False(t, item.IsEmpty())
}
