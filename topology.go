// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"fmt"
)

// stepNode is one step in the execution topology tree. Built before a
// tab runs so the interpreter can make structural decisions (where to
// stream records from) without re-walking the template mid-run.
type stepNode struct {
	path     string // unique path, e.g. "perPageSteps[0].subSteps[1]"
	step     *Step
	parent   *stepNode
	children []*stepNode
	depth    int
}

// isForeach reports whether this node iterates matched elements.
func (n *stepNode) isForeach() bool {
	return n != nil && n.step.Action == ActionForeach
}

// hasForeachAncestor reports whether any enclosing step is a foreach.
func (n *stepNode) hasForeachAncestor() bool {
	for p := n.parent; p != nil; p = p.parent {
		if p.isForeach() {
			return true
		}
	}
	return false
}

// stepTopology indexes a step tree by path.
type stepTopology struct {
	roots  []*stepNode
	byPath map[string]*stepNode
}

// newStepTopology builds the topology for one step list. listName is
// the template field the list came from ("perPageSteps", "initSteps",
// "steps"); paths are rooted there so they match interpreter step
// paths exactly.
func newStepTopology(steps []Step, listName string) *stepTopology {
	t := &stepTopology{byPath: make(map[string]*stepNode)}
	for i := range steps {
		path := fmt.Sprintf("%s[%d]", listName, i)
		t.roots = append(t.roots, t.build(&steps[i], nil, path, 0))
	}
	return t
}

func (t *stepTopology) build(step *Step, parent *stepNode, path string, depth int) *stepNode {
	node := &stepNode{path: path, step: step, parent: parent, depth: depth}
	t.byPath[path] = node
	for i := range step.SubSteps {
		childPath := fmt.Sprintf("%s.subSteps[%d]", path, i)
		node.children = append(node.children, t.build(&step.SubSteps[i], node, childPath, depth+1))
	}
	return node
}

// emitsAt reports whether the foreach at path is a streaming emission
// point. Only the outermost foreach of a nesting streams: its items are
// complete records once their subtree finishes, whereas an inner
// foreach's items still await the enclosing iteration's fields.
func (t *stepTopology) emitsAt(path string) bool {
	n := t.byPath[path]
	return n.isForeach() && !n.hasForeachAncestor()
}
