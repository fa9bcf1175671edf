package engine

import (
	"math"
	"time"

	"coordline/internal/domain"
)

// computeLoad derives the load state from a registry snapshot. The dominant
// category counts unfinished items; ties go to the earlier category in
// canonical order.
func computeLoad(items []domain.WorkItem, loadMetric float64, now time.Time) domain.LoadState {
	state := domain.LoadState{LoadMetric: loadMetric}
	counts := map[domain.Category]int{}
	for _, w := range items {
		switch {
		case w.Status == domain.StatusInProgress:
			state.ActiveWorkCount++
		case w.Status == domain.StatusCompleted && w.CompletedAt != nil && sameDay(*w.CompletedAt, now):
			state.CompletedToday++
		}
		if !w.Status.Terminal() {
			counts[w.Category]++
		}
	}
	state.DominantCategory, _ = dominant(counts)
	state.Rhythm = domain.PaceFor(state.ActiveWorkCount)
	return state
}

func dominant(counts map[domain.Category]int) (domain.Category, int) {
	var best domain.Category
	top := 0
	for _, c := range domain.Categories() {
		if counts[c] > top {
			best, top = c, counts[c]
		}
	}
	return best, top
}

func sameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func clampLoad(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
