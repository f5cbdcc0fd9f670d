// Package history derives the bounded slice of prior turns used as model context.
package history

import (
	"sort"

	"doni-bot/internal/model"
)

// Window returns the max most recent turns in chronological order, oldest
// first. Sequence ids define the order; unsaved turns (equal ids) are ordered
// by timestamp. The input slice is left untouched.
func Window(turns []model.Turn, max int) []model.Turn {
	if max <= 0 || len(turns) == 0 {
		return []model.Turn{}
	}

	sorted := make([]model.Turn, len(turns))
	copy(sorted, turns)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ID != sorted[j].ID {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	if len(sorted) > max {
		sorted = sorted[len(sorted)-max:]
	}
	return sorted
}
