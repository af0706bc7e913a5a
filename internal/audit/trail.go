// Package audit provides pure projections over an inspection's workflow
// history: free-text and set filters, and a sortable view with the
// three-click sort cycle. Nothing here mutates stored history.
package audit

import (
	"sort"
	"strings"

	"github.com/ecogov/be-inspections/internal/workflow"
)

// Query narrows a history listing. Zero-valued fields match everything.
type Query struct {
	// Text matches case-insensitively against action, actor name, comment,
	// and resulting stage.
	Text string
	// Stages restricts to entries whose resulting stage is in the set.
	Stages []workflow.Stage
	// Roles restricts to entries performed by one of the roles.
	Roles []workflow.Role
}

// Filter returns the entries matching q, preserving insertion order. The
// input slice is never modified.
func Filter(entries []workflow.HistoryEntry, q Query) []workflow.HistoryEntry {
	text := strings.ToLower(strings.TrimSpace(q.Text))

	stageSet := make(map[workflow.Stage]bool, len(q.Stages))
	for _, s := range q.Stages {
		stageSet[s] = true
	}
	roleSet := make(map[workflow.Role]bool, len(q.Roles))
	for _, r := range q.Roles {
		roleSet[r] = true
	}

	out := make([]workflow.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if len(stageSet) > 0 && !stageSet[e.Stage] {
			continue
		}
		if len(roleSet) > 0 && !roleSet[e.ActorRole] {
			continue
		}
		if text != "" && !matchesText(e, text) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesText(e workflow.HistoryEntry, text string) bool {
	for _, field := range []string{
		string(e.Action),
		e.ActorName,
		e.Comment,
		e.Stage.String(),
	} {
		if strings.Contains(strings.ToLower(field), text) {
			return true
		}
	}
	return false
}

// SortKey selects the column a sorted view orders by.
type SortKey string

const (
	SortByTimestamp SortKey = "timestamp"
	SortByActor     SortKey = "actor"
	SortByAction    SortKey = "action"
	SortByStatus    SortKey = "status"
)

// Direction is the current sort direction; Unsorted preserves insertion order.
type Direction int

const (
	Unsorted Direction = iota
	Ascending
	Descending
)

// SortState tracks the three-state sort cycle per key: a click on a new key
// sorts ascending, a second click flips to descending, a third clears the
// sort entirely.
type SortState struct {
	Key       SortKey
	Direction Direction
}

// Click advances the cycle for key and returns the new state.
func (s SortState) Click(key SortKey) SortState {
	if s.Key != key || s.Direction == Unsorted {
		return SortState{Key: key, Direction: Ascending}
	}
	if s.Direction == Ascending {
		return SortState{Key: key, Direction: Descending}
	}
	return SortState{}
}

// Sort returns entries ordered per state. Unsorted returns a copy in
// insertion order; the input slice is never modified. Sorting is stable so
// equal keys keep their insertion order.
func Sort(entries []workflow.HistoryEntry, state SortState) []workflow.HistoryEntry {
	out := make([]workflow.HistoryEntry, len(entries))
	copy(out, entries)

	if state.Direction == Unsorted {
		return out
	}

	less := lessFunc(state.Key)
	sort.SliceStable(out, func(i, j int) bool {
		if state.Direction == Descending {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func lessFunc(key SortKey) func(a, b workflow.HistoryEntry) bool {
	switch key {
	case SortByActor:
		return func(a, b workflow.HistoryEntry) bool { return a.ActorName < b.ActorName }
	case SortByAction:
		return func(a, b workflow.HistoryEntry) bool { return a.Action < b.Action }
	case SortByStatus:
		return func(a, b workflow.HistoryEntry) bool { return a.Stage < b.Stage }
	default:
		return func(a, b workflow.HistoryEntry) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}
}
