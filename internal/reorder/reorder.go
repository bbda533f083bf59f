// Package reorder computes task moves between and within the lists of a
// board snapshot.
//
// All functions are pure: they never modify the snapshot they are given.
// Lists a move does not touch are carried over with their original Tasks
// slice, so callers can detect unchanged lists by comparing slice pointers.
package reorder

import (
	"fmt"
	"sort"

	"taskboard/internal/models"
)

// Move describes a request to place a task at Index within list ListID.
type Move struct {
	TaskID string `json:"task_id"`
	ListID string `json:"list_id"`
	Index  int    `json:"index"`
}

// Clamp limits i to the closed range [lo, hi].
func Clamp(i, lo, hi int) int {
	if i < lo {
		return lo
	}
	if i > hi {
		return hi
	}
	return i
}

// Locate finds the list holding taskID and the task's position within that
// list's order. ok is false when no list holds the task.
func Locate(snap models.Snapshot, taskID string) (listIdx, taskIdx int, ok bool) {
	for li := range snap.Lists {
		tasks := sortedTasks(snap.Lists[li].Tasks)
		for ti := range tasks {
			if tasks[ti].ID == taskID {
				return li, ti, true
			}
		}
	}
	return -1, -1, false
}

// ComputeMove returns a new snapshot in which taskID sits at targetIndex of
// targetListID, with every affected list renumbered 0..n-1.
//
// Unknown tasks or lists leave the snapshot unchanged. Out of range indexes
// are clamped: within the same list to [0, n-1], into another list to
// [0, len(target)] so the task may be appended.
func ComputeMove(snap models.Snapshot, taskID, targetListID string, targetIndex int) models.Snapshot {
	srcIdx, fromIdx, ok := Locate(snap, taskID)
	if !ok {
		return snap
	}
	dstIdx := snap.FindList(targetListID)
	if dstIdx < 0 {
		return snap
	}

	if srcIdx == dstIdx {
		return moveWithinList(snap, srcIdx, fromIdx, targetIndex)
	}
	return moveAcrossLists(snap, srcIdx, fromIdx, dstIdx, targetIndex)
}

// Apply is ComputeMove for a Move value.
func Apply(snap models.Snapshot, m Move) models.Snapshot {
	return ComputeMove(snap, m.TaskID, m.ListID, m.Index)
}

func moveWithinList(snap models.Snapshot, listIdx, fromIdx, targetIndex int) models.Snapshot {
	tasks := sortedTasks(snap.Lists[listIdx].Tasks)
	to := Clamp(targetIndex, 0, len(tasks)-1)
	if to == fromIdx {
		return snap
	}

	moved := tasks[fromIdx]
	rest := make([]models.Task, 0, len(tasks))
	rest = append(rest, tasks[:fromIdx]...)
	rest = append(rest, tasks[fromIdx+1:]...)

	out := make([]models.Task, 0, len(tasks))
	out = append(out, rest[:to]...)
	out = append(out, moved)
	out = append(out, rest[to:]...)
	renumber(out)

	return withLists(snap, map[int][]models.Task{listIdx: out})
}

func moveAcrossLists(snap models.Snapshot, srcIdx, fromIdx, dstIdx, targetIndex int) models.Snapshot {
	src := sortedTasks(snap.Lists[srcIdx].Tasks)
	dst := sortedTasks(snap.Lists[dstIdx].Tasks)

	moved := src[fromIdx]
	moved.ListID = snap.Lists[dstIdx].ID

	remaining := make([]models.Task, 0, len(src)-1)
	remaining = append(remaining, src[:fromIdx]...)
	remaining = append(remaining, src[fromIdx+1:]...)
	renumber(remaining)

	to := Clamp(targetIndex, 0, len(dst))
	inserted := make([]models.Task, 0, len(dst)+1)
	inserted = append(inserted, dst[:to]...)
	inserted = append(inserted, moved)
	inserted = append(inserted, dst[to:]...)
	renumber(inserted)

	return withLists(snap, map[int][]models.Task{srcIdx: remaining, dstIdx: inserted})
}

// withLists copies snap, replacing the Tasks of the lists named in changed.
func withLists(snap models.Snapshot, changed map[int][]models.Task) models.Snapshot {
	lists := make([]models.List, len(snap.Lists))
	copy(lists, snap.Lists)
	for i, tasks := range changed {
		lists[i].Tasks = tasks
	}
	return models.Snapshot{Board: snap.Board, Lists: lists}
}

// sortedTasks returns tasks ordered by Order. The input is returned as is
// when already sorted, otherwise a sorted copy is made.
func sortedTasks(tasks []models.Task) []models.Task {
	if sort.SliceIsSorted(tasks, func(i, j int) bool { return tasks[i].Order < tasks[j].Order }) {
		return tasks
	}
	out := make([]models.Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// renumber assigns Order = index. tasks must be owned by the caller.
func renumber(tasks []models.Task) {
	for i := range tasks {
		tasks[i].Order = i
	}
}

// CheckContiguous verifies that each list's task orders are exactly 0..n-1.
func CheckContiguous(snap models.Snapshot) error {
	for _, l := range snap.Lists {
		seen := make([]bool, len(l.Tasks))
		for _, t := range l.Tasks {
			if t.Order < 0 || t.Order >= len(l.Tasks) {
				return fmt.Errorf("list %s: task %s has order %d outside 0..%d", l.ID, t.ID, t.Order, len(l.Tasks)-1)
			}
			if seen[t.Order] {
				return fmt.Errorf("list %s: duplicate order %d", l.ID, t.Order)
			}
			seen[t.Order] = true
		}
	}
	return nil
}

// Changed returns the tasks of after whose list or order differ from before,
// keyed by task ID. It is used to persist only the rows a move touched.
func Changed(before, after models.Snapshot) []models.Task {
	prev := make(map[string]models.Task, before.TaskCount())
	for _, l := range before.Lists {
		for _, t := range l.Tasks {
			prev[t.ID] = t
		}
	}

	var out []models.Task
	for _, l := range after.Lists {
		for _, t := range l.Tasks {
			old, ok := prev[t.ID]
			if !ok || old.ListID != t.ListID || old.Order != t.Order {
				out = append(out, t)
			}
		}
	}
	return out
}
