// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

// Record is one finalized output row: extracted scalar fields, nil for
// failed extractions.
type Record map[string]any

// Collector is the mutable, scope-local accumulator threaded through
// step execution. Scalar fields hold context data (values extracted in
// this scope); items hold the ordered per-element collectors produced
// by a foreach. Keeping the two apart makes flattening a total function
// instead of a key-prefix convention.
//
// Collectors are never shared mutably across sibling iterations: each
// foreach match gets its own item collector, seeded with a by-value
// copy of the ancestor context fields.
type Collector struct {
	fields    map[string]any
	inherited map[string]bool
	items     []*Collector
	emitted   []bool
}

// NewCollector returns an empty collector.
func NewCollector() *Collector {
	return &Collector{fields: make(map[string]any)}
}

// Set records a scalar field in this scope. Setting a key that was
// inherited makes it this scope's own.
func (c *Collector) Set(key string, v any) {
	c.fields[key] = v
	delete(c.inherited, key)
}

// Field returns the scalar field for key.
func (c *Collector) Field(key string) (any, bool) {
	v, ok := c.fields[key]
	return v, ok
}

// Context returns a by-value copy of the scalar fields: the data child
// scopes inherit.
func (c *Collector) Context() map[string]any {
	out := make(map[string]any, len(c.fields))
	for k, v := range c.fields {
		out[k] = v
	}
	return out
}

// NewItem creates an item collector inheriting every ancestor context
// field, so nested and sibling steps can reference ancestor-extracted
// values via placeholders. The item is not attached until adopt.
func (c *Collector) NewItem() *Collector {
	ctx := c.Context()
	inh := make(map[string]bool, len(ctx))
	for k := range ctx {
		inh[k] = true
	}
	return &Collector{fields: ctx, inherited: inh}
}

// adopt appends an item collector in match order and returns its index.
func (c *Collector) adopt(item *Collector) int {
	c.items = append(c.items, item)
	c.emitted = append(c.emitted, false)
	return len(c.items) - 1
}

// HasItems reports whether this collector holds foreach results.
func (c *Collector) HasItems() bool {
	return len(c.items) > 0
}

// Items returns the ordered item collectors.
func (c *Collector) Items() []*Collector {
	return c.items
}

// IsEmpty reports whether nothing was collected in this scope beyond
// inherited context. Inherited fields don't count: an item that only
// carries its ancestors' data produced nothing of its own.
func (c *Collector) IsEmpty() bool {
	return len(c.ownKeys()) == 0 && len(c.items) == 0
}

func (c *Collector) ownKeys() []string {
	var keys []string
	for k := range c.fields {
		if c.inherited == nil || !c.inherited[k] {
			keys = append(keys, k)
		}
	}
	return keys
}

// markEmitted flags an item as already delivered through a streaming
// sink, so the per-page assembly does not deliver it a second time.
func (c *Collector) markEmitted(index int) {
	if index >= 0 && index < len(c.emitted) {
		c.emitted[index] = true
	}
}

// Emitted reports whether the item at index was already streamed.
func (c *Collector) Emitted(index int) bool {
	return index >= 0 && index < len(c.emitted) && c.emitted[index]
}

// Flatten converts the collector into an ordered sequence of merged
// records. A collector without items is itself one record; a collector
// with items yields, per item and recursively, the item's records with
// this scope's context fields merged in wherever the item did not set
// the key itself.
func (c *Collector) Flatten() []Record {
	if len(c.items) == 0 {
		return []Record{c.record()}
	}
	var out []Record
	for _, item := range c.items {
		for _, rec := range item.Flatten() {
			for k, v := range c.fields {
				if _, ok := rec[k]; !ok {
					rec[k] = v
				}
			}
			out = append(out, rec)
		}
	}
	return out
}

// mergeChild folds a child scope's results back into this collector:
// the child's own fields become fields here, and the child's items are
// adopted in order, emitted flags intact.
func (c *Collector) mergeChild(child *Collector) {
	for _, k := range child.ownKeys() {
		c.Set(k, child.fields[k])
	}
	for i, item := range child.items {
		idx := c.adopt(item)
		if child.emitted[i] {
			c.markEmitted(idx)
		}
	}
}

// record copies the scalar fields into a fresh Record.
func (c *Collector) record() Record {
	rec := make(Record, len(c.fields))
	for k, v := range c.fields {
		rec[k] = v
	}
	return rec
}
