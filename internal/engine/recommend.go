package engine

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"coordline/internal/capacity"
	"coordline/internal/domain"
)

const maxRecommendations = 3

type Recommendation struct {
	Work   domain.WorkItem `json:"work"`
	Score  int             `json:"score"`
	Reason string          `json:"reason"`
}

// GetRecommendations ranks pending work not already assigned to workerID
// and returns at most three.
func (e *Engine) GetRecommendations(ctx context.Context, workerID string) []Recommendation {
	e.mu.RLock()
	defer e.mu.RUnlock()

	window := e.scheduler.CurrentWindow()
	dominant := e.loadState().DominantCategory

	var recs []Recommendation
	for _, item := range e.registry.ByStatus(domain.StatusPending) {
		if item.Assignee == workerID {
			continue
		}
		score := item.Priority.Weight()
		var reasons []string
		if item.Priority == domain.PriorityHigh {
			reasons = append(reasons, "high priority")
		}
		if e.scheduler.Aligned(item, window) {
			score += 2
			reasons = append(reasons, "aligned with "+window.Name)
		}
		if dominant != "" && item.Category == dominant {
			score++
			reasons = append(reasons, "matches dominant category")
		}
		if item.Elevated {
			score++
			reasons = append(reasons, "elevated work")
		}
		reason := strings.Join(reasons, ", ")
		if reason == "" {
			reason = "general recommendation"
		}
		recs = append(recs, Recommendation{Work: item, Score: score, Reason: reason})
	}
	// ByStatus is already in creation order, so a stable sort keeps ties there.
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Score > recs[j].Score })
	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

type Velocity struct {
	Today     int     `json:"today"`
	ThisWeek  int     `json:"this_week"`
	AvgPerDay float64 `json:"avg_per_day"`
}

type Stats struct {
	Total                    int                     `json:"total"`
	ByStatus                 map[domain.Status]int   `json:"by_status"`
	ByPriority               map[domain.Priority]int `json:"by_priority"`
	ByCategory               map[domain.Category]int `json:"by_category"`
	Velocity                 Velocity                `json:"velocity"`
	AvgCompletionSeconds     float64                 `json:"avg_completion_seconds"`
	LoadState                domain.LoadState        `json:"load_state"`
	ElevatedCount            int                     `json:"elevated_count"`
	AvgImpact                float64                 `json:"avg_impact"`
	CategoryAlignmentPercent float64                 `json:"category_alignment_percent"`
}

func (e *Engine) GetStatistics(ctx context.Context) Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	now := e.now()
	items := e.registry.All()
	return computeStats(items, computeLoad(items, e.load, now), now)
}

func computeStats(items []domain.WorkItem, load domain.LoadState, now time.Time) Stats {
	st := Stats{
		Total:      len(items),
		ByStatus:   map[domain.Status]int{},
		ByPriority: map[domain.Priority]int{},
		ByCategory: map[domain.Category]int{},
		LoadState:  load,
	}
	for _, s := range domain.Statuses() {
		st.ByStatus[s] = 0
	}
	weekAgo := now.Add(-7 * 24 * time.Hour)
	var completionTotal time.Duration
	completed := 0
	impactTotal := 0.0
	for _, w := range items {
		st.ByStatus[w.Status]++
		st.ByPriority[w.Priority]++
		st.ByCategory[w.Category]++
		impactTotal += w.ImpactScore
		if w.Elevated {
			st.ElevatedCount++
		}
		if w.Status != domain.StatusCompleted || w.CompletedAt == nil {
			continue
		}
		done := *w.CompletedAt
		if sameDay(done, now) {
			st.Velocity.Today++
		}
		if done.After(weekAgo) {
			st.Velocity.ThisWeek++
		}
		completionTotal += done.Sub(w.CreatedAt)
		completed++
	}
	st.Velocity.AvgPerDay = round1(float64(st.Velocity.ThisWeek) / 7)
	if completed > 0 {
		st.AvgCompletionSeconds = (completionTotal / time.Duration(completed)).Seconds()
	}
	if len(items) > 0 {
		st.AvgImpact = round1(impactTotal / float64(len(items)))
		_, top := dominant(st.ByCategory)
		st.CategoryAlignmentPercent = round1(float64(top) / float64(len(items)) * 100)
	}
	return st
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func (e *Engine) GetFieldHealth(ctx context.Context) capacity.Health {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return capacity.FieldHealth(e.loadState())
}

// CanAccept reports the admission decision for a candidate without
// creating it.
func (e *Engine) CanAccept(ctx context.Context, params CreateParams) (capacity.Admission, error) {
	p, err := params.normalize()
	if err != nil {
		return capacity.Admission{}, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	candidate := domain.WorkItem{
		Title: p.Title, Assignee: p.Assignee, Priority: p.Priority,
		Category: p.Category, Elevated: p.Elevated, Status: domain.StatusPending,
	}
	return capacity.CanAcceptWork(e.loadState(), candidate), nil
}

func (e *Engine) RestorationPlan(ctx context.Context) capacity.Plan {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return capacity.CreateRestorationPlan(e.loadState())
}

// Distribute pairs pending work with workers. Each worker's active count is
// taken from the registry.
func (e *Engine) Distribute(ctx context.Context, workers []capacity.Worker) []capacity.Assignment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	pool := make([]capacity.Worker, len(workers))
	for i, w := range workers {
		w.ActiveCount = 0
		for _, it := range e.registry.ByAssignee(w.ID) {
			if it.Status == domain.StatusInProgress {
				w.ActiveCount++
			}
		}
		pool[i] = w
	}
	return capacity.RecommendDistribution(e.registry.ByStatus(domain.StatusPending), pool, e.loadState())
}
