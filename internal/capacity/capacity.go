// Package capacity turns the process-wide load metric into a capacity ceiling
// and scores candidate work. Every function is pure; callers own the load state.
package capacity

import (
	"fmt"
	"math"

	"coordline/internal/domain"
)

type Level string

const (
	LevelCritical Level = "critical"
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelUnified  Level = "unified"
)

// PeakThreshold is the top breakpoint. It does not change the level or the
// capacity; health reports it as a peak marker.
const PeakThreshold = 95.0

var breakpoints = []struct {
	below float64
	level Level
}{
	{20, LevelCritical},
	{40, LevelLow},
	{60, LevelModerate},
	{80, LevelHigh},
}

func LevelFor(loadMetric float64) Level {
	for _, bp := range breakpoints {
		if loadMetric < bp.below {
			return bp.level
		}
	}
	return LevelUnified
}

// CapacityFor is the number of concurrently active items a level sustains.
func CapacityFor(level Level) int {
	switch level {
	case LevelCritical:
		return 3
	case LevelLow:
		return 5
	case LevelModerate:
		return 7
	case LevelHigh:
		return 9
	default:
		return 12
	}
}

var categoryWeights = map[domain.Category]float64{
	domain.CategoryCoherence:    2.5,
	domain.CategoryResonance:    2.2,
	domain.CategoryAgency:       2.0,
	domain.CategoryMutuality:    2.0,
	domain.CategoryVitality:     1.8,
	domain.CategoryTransparency: 1.7,
	domain.CategoryNovelty:      1.5,
}

func CategoryWeight(c domain.Category) float64 {
	if w, ok := categoryWeights[c]; ok {
		return w
	}
	return 1.5
}

// CalculateWorkImpact is an incentive score, not a cost: low load amplifies
// it and high load dampens it.
func CalculateWorkImpact(priority domain.Priority, category domain.Category, elevated bool, loadMetric float64) float64 {
	impact := float64(priority.Weight()) * CategoryWeight(category)
	if elevated {
		impact *= 1.5
	}
	switch {
	case loadMetric < 40:
		impact *= 1.5
	case loadMetric > 80:
		impact *= 0.8
	}
	return math.Round(impact*10) / 10
}

var complements = map[domain.Category]domain.Category{
	domain.CategoryCoherence:    domain.CategoryResonance,
	domain.CategoryResonance:    domain.CategoryCoherence,
	domain.CategoryAgency:       domain.CategoryNovelty,
	domain.CategoryNovelty:      domain.CategoryAgency,
	domain.CategoryMutuality:    domain.CategoryTransparency,
	domain.CategoryTransparency: domain.CategoryMutuality,
}

// Strain measures how far a category pulls from the dominant one.
func Strain(candidate, dominant domain.Category) float64 {
	switch {
	case candidate == dominant:
		return 0
	case complements[candidate] == dominant:
		return 0.1
	default:
		return 0.5
	}
}

type Admission struct {
	CanAccept       bool     `json:"can_accept"`
	Reason          string   `json:"reason,omitempty"`
	Level           Level    `json:"level" enum:"critical,low,moderate,high,unified"`
	Capacity        int      `json:"capacity"`
	Recommendations []string `json:"recommendations"`
}

// CanAcceptWork decides whether the candidate may be admitted under state.
// Category strain only annotates the result.
func CanAcceptWork(state domain.LoadState, candidate domain.WorkItem) Admission {
	level := LevelFor(state.LoadMetric)
	adm := Admission{
		CanAccept:       true,
		Level:           level,
		Capacity:        CapacityFor(level),
		Recommendations: []string{},
	}
	if state.ActiveWorkCount >= adm.Capacity {
		adm.CanAccept = false
		adm.Reason = fmt.Sprintf("capacity %d reached at %s load", adm.Capacity, level)
		adm.Recommendations = append(adm.Recommendations, "complete or cancel active work before admitting more")
	}
	if level == LevelCritical {
		if adm.CanAccept {
			adm.Reason = fmt.Sprintf("load metric %.1f is critical", state.LoadMetric)
		}
		adm.CanAccept = false
		adm.Recommendations = append(adm.Recommendations, "follow the restoration plan before admitting work")
	}
	if state.DominantCategory != "" && candidate.Category != state.DominantCategory {
		if s := Strain(candidate.Category, state.DominantCategory); s > 0.3 {
			adm.Recommendations = append(adm.Recommendations,
				fmt.Sprintf("%s work strains the dominant %s focus (%.1f)", candidate.Category, state.DominantCategory, s))
		}
	}
	return adm
}
