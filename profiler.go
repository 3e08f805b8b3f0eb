// SPDX-FileCopyrightText: 2025 StepWright contributors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package stepwright

import (
	"time"

	"github.com/google/uuid"
)

// StepEvent is one profiled step execution. Events form a tree via
// ParentID, mirroring the step nesting at run time (one event per
// foreach iteration, not per template node).
type StepEvent struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"`
	Path     string `json:"path"`
	StepID   string `json:"stepId,omitempty"`
	Action   Action `json:"action"`

	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`

	Err string `json:"error,omitempty"`
}

// profiler fans step events out to an observer channel. A nil profiler
// (or one without a channel) is valid and free: every method is a
// no-op, so the interpreter never branches on whether profiling is on.
type profiler struct {
	ch chan StepEvent
}

func (p *profiler) enabled() bool {
	return p != nil && p.ch != nil
}

// begin opens an event for a step about to execute.
func (p *profiler) begin(path, parentID string, step Step) StepEvent {
	if !p.enabled() {
		return StepEvent{}
	}
	return StepEvent{
		ID:        uuid.New().String(),
		ParentID:  parentID,
		Path:      path,
		StepID:    step.ID,
		Action:    step.Action,
		StartedAt: time.Now(),
	}
}

// end stamps the duration and outcome and emits the event. Emission
// never blocks: if the observer falls behind, events are dropped rather
// than stalling the run.
func (p *profiler) end(ev StepEvent, err error) {
	if !p.enabled() || ev.ID == "" {
		return
	}
	ev.DurationMs = time.Since(ev.StartedAt).Milliseconds()
	if err != nil {
		ev.Err = err.Error()
	}
	select {
	case p.ch <- ev:
	default:
	}
}

func (p *profiler) close() {
	if p.enabled() {
		close(p.ch)
	}
}
