package capacity

import (
	"math"
	"sort"

	"coordline/internal/domain"
)

type Worker struct {
	ID          string          `json:"id"`
	Specialty   domain.Category `json:"specialty,omitempty"`
	ActiveCount int             `json:"active_count"`
	Experience  float64         `json:"experience" minimum:"0" maximum:"1"`
}

type Assignment struct {
	WorkID   string `json:"work_id"`
	WorkerID string `json:"worker_id"`
	Score    int    `json:"score"`
}

// RecommendDistribution ranks every item/worker pair and claims pairs greedily
// from the top. Greedy matching is not optimal; inputs are small.
func RecommendDistribution(items []domain.WorkItem, workers []Worker, state domain.LoadState) []Assignment {
	pairs := make([]Assignment, 0, len(items)*len(workers))
	for _, it := range items {
		for _, w := range workers {
			pairs = append(pairs, Assignment{WorkID: it.ID, WorkerID: w.ID, Score: pairScore(it, w, state)})
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Score > pairs[j].Score })

	claimedItems := make(map[string]bool)
	claimedWorkers := make(map[string]bool)
	var out []Assignment
	for _, p := range pairs {
		if claimedItems[p.WorkID] || claimedWorkers[p.WorkerID] {
			continue
		}
		claimedItems[p.WorkID] = true
		claimedWorkers[p.WorkerID] = true
		out = append(out, p)
	}
	return out
}

func pairScore(it domain.WorkItem, w Worker, state domain.LoadState) int {
	score := 0
	if w.Specialty != "" && it.Category == w.Specialty {
		score += 3
	}
	if w.ActiveCount < 3 {
		score += 2
	}
	if it.Elevated && w.Experience > 0.5 {
		score += 2
	}
	if state.LoadMetric < 50 && it.ImpactScore > 3 {
		score++
	}
	return score
}

const (
	PlanUrgent = "urgent"
	PlanHigh   = "high"
	PlanNormal = "normal"
)

type Action struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Minutes     int    `json:"minutes"`
	Target      int    `json:"target,omitempty"`
}

type Plan struct {
	Level        Level    `json:"level"`
	Priority     string   `json:"priority" enum:"urgent,high,normal"`
	Actions      []Action `json:"actions"`
	TotalMinutes int      `json:"total_minutes"`
}

func CreateRestorationPlan(state domain.LoadState) Plan {
	level := LevelFor(state.LoadMetric)
	plan := Plan{Level: level, Priority: PlanNormal, Actions: []Action{}}
	switch level {
	case LevelCritical:
		plan.Priority = PlanUrgent
		plan.Actions = append(plan.Actions,
			Action{Kind: "pause", Description: "mandatory pause for all active work", Minutes: 15},
			Action{Kind: "ceremony", Description: "recovery ceremony", Minutes: 30},
		)
	case LevelLow:
		plan.Priority = PlanHigh
		plan.Actions = append(plan.Actions,
			Action{Kind: "reduce", Description: "reduce active work", Minutes: 10, Target: 3},
			Action{Kind: "homogenize", Description: "focus active work on one category", Minutes: 10},
		)
	}
	if state.ActiveWorkCount > 7 {
		plan.Actions = append(plan.Actions,
			Action{Kind: "redistribute", Description: "redistribute active work across workers", Minutes: 20, Target: 5})
	}
	for _, a := range plan.Actions {
		plan.TotalMinutes += a.Minutes
	}
	return plan
}

const (
	HealthCritical    = "critical"
	HealthStressed    = "stressed"
	HealthStable      = "stable"
	HealthThriving    = "thriving"
	HealthOptimal     = "optimal"
	HealthFluctuating = "fluctuating"
)

type Health struct {
	Status          string      `json:"status" enum:"critical,stressed,stable,thriving,optimal,fluctuating"`
	Level           Level       `json:"level"`
	LoadMetric      float64     `json:"load_metric"`
	Peak            bool        `json:"peak"`
	Capacity        int         `json:"capacity"`
	ActiveWorkCount int         `json:"active_work_count"`
	Utilization     float64     `json:"utilization"`
	Rhythm          domain.Pace `json:"rhythm"`
}

func FieldHealth(state domain.LoadState) Health {
	level := LevelFor(state.LoadMetric)
	capacity := CapacityFor(level)
	util := float64(state.ActiveWorkCount) / float64(capacity) * 100

	var status string
	switch {
	case level == LevelCritical || util > 100:
		status = HealthCritical
	case level == LevelLow || util > 80:
		status = HealthStressed
	case level == LevelModerate && util < 70:
		status = HealthStable
	case level == LevelHigh && util < 60:
		status = HealthThriving
	case level == LevelUnified:
		status = HealthOptimal
	default:
		status = HealthFluctuating
	}
	return Health{
		Status:          status,
		Level:           level,
		LoadMetric:      state.LoadMetric,
		Peak:            state.LoadMetric >= PeakThreshold,
		Capacity:        capacity,
		ActiveWorkCount: state.ActiveWorkCount,
		Utilization:     roundTenth(util),
		Rhythm:          state.Rhythm,
	}
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
