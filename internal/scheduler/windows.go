package scheduler

import (
	"time"

	"coordline/internal/domain"
)

// WorkType is a coarse label for the kind of effort an item needs.
type WorkType string

const (
	WorkPlanning    WorkType = "planning"
	WorkCreation    WorkType = "creation"
	WorkReview      WorkType = "review"
	WorkTeamwork    WorkType = "teamwork"
	WorkRest        WorkType = "rest"
	WorkReflection  WorkType = "reflection"
	WorkIntegration WorkType = "integration"
)

const (
	WindowDawn      = "dawn"
	WindowMorning   = "morning"
	WindowMidday    = "midday"
	WindowAfternoon = "afternoon"
	WindowTwilight  = "twilight"
	WindowEvening   = "evening"
	WindowNight     = "night"
)

// Window is a named period of the day. EndHour may be lower than StartHour
// when the window wraps past midnight.
type Window struct {
	Name       string
	StartHour  int
	EndHour    int
	Categories []domain.Category
	WorkTypes  []WorkType
}

// Contains reports whether hour (0-23) falls inside the window.
func (w Window) Contains(hour int) bool {
	if w.StartHour < w.EndHour {
		return hour >= w.StartHour && hour < w.EndHour
	}
	return hour >= w.StartHour || hour < w.EndHour
}

func (w Window) hasCategory(c domain.Category) bool {
	for _, wc := range w.Categories {
		if wc == c {
			return true
		}
	}
	return false
}

func (w Window) hasAnyWorkType(types []WorkType) bool {
	for _, t := range types {
		for _, wt := range w.WorkTypes {
			if t == wt {
				return true
			}
		}
	}
	return false
}

// nextStart is the first occurrence of the window start strictly after now.
func (w Window) nextStart(now time.Time) time.Time {
	start := time.Date(now.Year(), now.Month(), now.Day(), w.StartHour, 0, 0, 0, now.Location())
	if !start.After(now) {
		start = start.AddDate(0, 0, 1)
	}
	return start
}

// DefaultWindows is the fixed table, in tie-break order.
func DefaultWindows() []Window {
	return []Window{
		{
			Name: WindowDawn, StartHour: 6, EndHour: 9,
			Categories: []domain.Category{domain.CategoryCoherence, domain.CategoryResonance},
			WorkTypes:  []WorkType{WorkPlanning, WorkReflection},
		},
		{
			Name: WindowMorning, StartHour: 9, EndHour: 12,
			Categories: []domain.Category{domain.CategoryAgency, domain.CategoryNovelty},
			WorkTypes:  []WorkType{WorkPlanning, WorkCreation},
		},
		{
			Name: WindowMidday, StartHour: 12, EndHour: 13,
			Categories: []domain.Category{domain.CategoryVitality},
			WorkTypes:  []WorkType{WorkRest, WorkTeamwork},
		},
		{
			Name: WindowAfternoon, StartHour: 13, EndHour: 17,
			Categories: []domain.Category{domain.CategoryAgency, domain.CategoryMutuality, domain.CategoryNovelty},
			WorkTypes:  []WorkType{WorkCreation, WorkTeamwork},
		},
		{
			Name: WindowTwilight, StartHour: 17, EndHour: 20,
			Categories: []domain.Category{domain.CategoryResonance, domain.CategoryCoherence, domain.CategoryTransparency},
			WorkTypes:  []WorkType{WorkReview, WorkIntegration},
		},
		{
			Name: WindowEvening, StartHour: 20, EndHour: 22,
			Categories: []domain.Category{domain.CategoryTransparency, domain.CategoryMutuality},
			WorkTypes:  []WorkType{WorkReview, WorkReflection},
		},
		{
			Name: WindowNight, StartHour: 22, EndHour: 6,
			Categories: []domain.Category{domain.CategoryVitality},
			WorkTypes:  []WorkType{WorkRest},
		},
	}
}
