// Package scheduler recommends a time-window and a work/rest rhythm for an
// item by scoring it against a fixed table of windows, and keeps the
// resulting recommendations in a queue ordered by start time.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"coordline/internal/domain"
)

var (
	highRhythm     = domain.Rhythm{WorkPeriod: 45 * time.Minute, RestPeriod: 15 * time.Minute}
	elevatedRhythm = domain.Rhythm{WorkPeriod: 90 * time.Minute, RestPeriod: 20 * time.Minute}
	defaultRhythm  = domain.Rhythm{WorkPeriod: 25 * time.Minute, RestPeriod: 10 * time.Minute}
)

type Scheduler struct {
	Now        func() time.Time
	Classifier Classifier

	windows []Window
	mu      sync.Mutex
	queue   []domain.Schedule
}

// New builds a scheduler over the default window table. A nil classifier
// selects the keyword classifier.
func New(classifier Classifier) *Scheduler {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	return &Scheduler{
		Now:        time.Now,
		Classifier: classifier,
		windows:    DefaultWindows(),
	}
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Scheduler) Windows() []Window {
	return append([]Window(nil), s.windows...)
}

// WindowAt returns the window containing t. The table covers all 24 hours.
func (s *Scheduler) WindowAt(t time.Time) Window {
	hour := t.Hour()
	for _, w := range s.windows {
		if w.Contains(hour) {
			return w
		}
	}
	return s.windows[len(s.windows)-1]
}

func (s *Scheduler) CurrentWindow() Window {
	return s.WindowAt(s.now())
}

// Aligned reports whether the item's category or inferred work types fit w.
func (s *Scheduler) Aligned(item domain.WorkItem, w Window) bool {
	return w.hasCategory(item.Category) || w.hasAnyWorkType(s.Classifier.Classify(item))
}

// ScheduleWork scores every window for item and queues the best one.
func (s *Scheduler) ScheduleWork(item domain.WorkItem) (domain.Schedule, error) {
	if item.ID == "" {
		return domain.Schedule{}, errors.New("schedule: work id required")
	}
	if len(s.windows) == 0 {
		return domain.Schedule{}, errors.New("schedule: no time windows configured")
	}
	now := s.now()
	current := s.WindowAt(now)
	types := s.Classifier.Classify(item)

	best, bestScore := 0, -1
	for i, w := range s.windows {
		score := 0
		if w.hasCategory(item.Category) {
			score += 3
		}
		if w.hasAnyWorkType(types) {
			score += 2
		}
		if item.Elevated && (w.Name == WindowDawn || w.Name == WindowTwilight) {
			score += 2
		}
		if item.Priority == domain.PriorityHigh && w.Name == current.Name {
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	win := s.windows[best]

	sched := domain.Schedule{
		WorkID:           item.ID,
		RecommendedStart: win.nextStart(now),
		Window:           win.Name,
		Rhythm:           rhythmFor(item),
		Alignment:        alignment(item, win, types),
		Reason:           reason(item, win, types, current),
	}
	if sched.RecommendedStart.After(now) {
		s.enqueue(sched)
	}
	return sched, nil
}

// Upcoming drops past-due entries and returns the rest in start order.
func (s *Scheduler) Upcoming() []domain.Schedule {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := s.queue[:0]
	for _, sc := range s.queue {
		if sc.RecommendedStart.After(now) {
			keep = append(keep, sc)
		}
	}
	s.queue = keep
	return append([]domain.Schedule(nil), s.queue...)
}

func (s *Scheduler) enqueue(sc domain.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.queue {
		if existing.WorkID == sc.WorkID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	i := sort.Search(len(s.queue), func(i int) bool {
		return s.queue[i].RecommendedStart.After(sc.RecommendedStart)
	})
	s.queue = append(s.queue, domain.Schedule{})
	copy(s.queue[i+1:], s.queue[i:])
	s.queue[i] = sc
}

func rhythmFor(item domain.WorkItem) domain.Rhythm {
	switch {
	case item.Priority == domain.PriorityHigh:
		return highRhythm
	case item.Elevated:
		return elevatedRhythm
	default:
		return defaultRhythm
	}
}

func alignment(item domain.WorkItem, w Window, types []WorkType) int {
	score := 0
	if w.hasCategory(item.Category) {
		score += 50
	}
	if w.hasAnyWorkType(types) {
		score += 30
	}
	if item.Elevated {
		score += 20
	}
	if score > 100 {
		score = 100
	}
	return score
}

func reason(item domain.WorkItem, w Window, types []WorkType, current Window) string {
	var parts []string
	if w.hasCategory(item.Category) {
		parts = append(parts, fmt.Sprintf("%s work fits %s", item.Category, w.Name))
	}
	if w.hasAnyWorkType(types) {
		parts = append(parts, fmt.Sprintf("%s suits %s work types", w.Name, joinTypes(types)))
	}
	if item.Elevated && (w.Name == WindowDawn || w.Name == WindowTwilight) {
		parts = append(parts, "elevated work favours "+w.Name)
	}
	if item.Priority == domain.PriorityHigh && w.Name == current.Name {
		parts = append(parts, "high priority in the current window")
	}
	if len(parts) == 0 {
		return "no affinity; earliest table window"
	}
	return strings.Join(parts, "; ")
}

func joinTypes(types []WorkType) string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return strings.Join(names, ",")
}
