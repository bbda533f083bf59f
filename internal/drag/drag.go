// Package drag models a drag-and-drop gesture over a board as a small state
// machine that is independent of any pointer or gesture library.
package drag

import (
	"fmt"

	"taskboard/internal/models"
	"taskboard/internal/reorder"
)

// Phase is the state of a drag gesture.
type Phase int

const (
	// Idle means no gesture is in progress.
	Idle Phase = iota
	// Dragging means a task is picked up but nothing is under the pointer.
	Dragging
	// Hovering means a task is picked up over a task or list target.
	Hovering
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Hovering:
		return "hovering"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// TargetKind says what kind of element sits under the pointer.
type TargetKind int

const (
	// TargetTask is another task card.
	TargetTask TargetKind = iota + 1
	// TargetList is a list column or its empty area.
	TargetList
)

// Target is a drop target under the pointer.
type Target struct {
	Kind TargetKind
	ID   string
}

// TaskTarget returns a target for the task with the given ID.
func TaskTarget(id string) *Target { return &Target{Kind: TargetTask, ID: id} }

// ListTarget returns a target for the list with the given ID.
func ListTarget(id string) *Target { return &Target{Kind: TargetList, ID: id} }

// State is a snapshot of the machine.
type State struct {
	Phase  Phase
	TaskID string
	Over   *Target
}

// Machine tracks one drag gesture at a time. The zero value is idle and
// ready to use. A Machine is not safe for concurrent use; it is driven from
// the goroutine that receives input events.
type Machine struct {
	phase  Phase
	taskID string
	over   *Target
}

// State returns the current state.
func (m *Machine) State() State {
	var over *Target
	if m.over != nil {
		t := *m.over
		over = &t
	}
	return State{Phase: m.phase, TaskID: m.taskID, Over: over}
}

// Start begins dragging taskID. Any gesture already in progress is dropped.
func (m *Machine) Start(taskID string) {
	m.phase = Dragging
	m.taskID = taskID
	m.over = nil
}

// Over records the element currently under the pointer. Only the most
// recent target is kept; nil means the pointer left every target.
func (m *Machine) Over(target *Target) {
	if m.phase == Idle {
		return
	}
	if target == nil {
		m.phase = Dragging
		m.over = nil
		return
	}
	t := *target
	m.phase = Hovering
	m.over = &t
}

// Cancel abandons the gesture without side effects.
func (m *Machine) Cancel() {
	m.reset()
}

// Drop ends the gesture over target and resolves it against snap into a
// move. ok is false when nothing should be sent: no target, a target that
// no longer exists, or a drop that leaves the task where it already is.
//
// Dropping on a task places the dragged task at that task's current index,
// whether the drag runs up or down the list.
func (m *Machine) Drop(snap models.Snapshot, target *Target) (reorder.Move, bool) {
	taskID := m.taskID
	active := m.phase != Idle
	m.reset()

	if !active || target == nil {
		return reorder.Move{}, false
	}

	srcList, srcIdx, found := reorder.Locate(snap, taskID)
	if !found {
		return reorder.Move{}, false
	}
	currentListID := snap.Lists[srcList].ID

	switch target.Kind {
	case TargetList:
		dst := snap.FindList(target.ID)
		if dst < 0 || snap.Lists[dst].ID == currentListID {
			return reorder.Move{}, false
		}
		return reorder.Move{TaskID: taskID, ListID: target.ID, Index: len(snap.Lists[dst].Tasks)}, true

	case TargetTask:
		if target.ID == taskID {
			return reorder.Move{}, false
		}
		overList, overIdx, ok := reorder.Locate(snap, target.ID)
		if !ok {
			return reorder.Move{}, false
		}
		listID := snap.Lists[overList].ID
		if listID == currentListID && overIdx == srcIdx {
			return reorder.Move{}, false
		}
		return reorder.Move{TaskID: taskID, ListID: listID, Index: overIdx}, true
	}

	return reorder.Move{}, false
}

// Release drops over the most recent hover target.
func (m *Machine) Release(snap models.Snapshot) (reorder.Move, bool) {
	return m.Drop(snap, m.over)
}

func (m *Machine) reset() {
	m.phase = Idle
	m.taskID = ""
	m.over = nil
}
