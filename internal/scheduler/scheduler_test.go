package scheduler_test

import (
	"testing"
	"time"

	"coordline/internal/domain"
	"coordline/internal/scheduler"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newScheduler(now time.Time) *scheduler.Scheduler {
	s := scheduler.New(nil)
	s.Now = fixedClock(now)
	return s
}

func TestWindowAtCoversEveryHour(t *testing.T) {
	s := newScheduler(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	want := map[int]string{
		0: "night", 5: "night", 6: "dawn", 8: "dawn", 9: "morning", 11: "morning",
		12: "midday", 13: "afternoon", 16: "afternoon", 17: "twilight", 19: "twilight",
		20: "evening", 21: "evening", 22: "night", 23: "night",
	}
	for hour, name := range want {
		got := s.WindowAt(time.Date(2024, 3, 1, hour, 30, 0, 0, time.UTC))
		if got.Name != name {
			t.Fatalf("hour %d: expected %s, got %s", hour, name, got.Name)
		}
	}
	if s.CurrentWindow().Name != "morning" {
		t.Fatalf("current window should follow the injected clock")
	}
}

func TestScheduleIsDeterministic(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	item := domain.WorkItem{
		ID:       "w1",
		Title:    "stretch",
		Priority: domain.PriorityHigh,
		Category: domain.CategoryVitality,
		Elevated: true,
	}
	first, err := newScheduler(now).ScheduleWork(item)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := newScheduler(now).ScheduleWork(item)
		if err != nil {
			t.Fatalf("schedule: %v", err)
		}
		if again != first {
			t.Fatalf("schedule changed between runs: %+v vs %+v", first, again)
		}
	}
	// midday and night both score 3; midday comes first in the table.
	if first.Window != "midday" {
		t.Fatalf("expected midday, got %s", first.Window)
	}
	if first.Rhythm.WorkPeriod != 45*time.Minute || first.Rhythm.RestPeriod != 15*time.Minute {
		t.Fatalf("high priority rhythm should win over elevated: %+v", first.Rhythm)
	}
	if first.Alignment != 70 {
		t.Fatalf("expected alignment 70, got %d", first.Alignment)
	}
	wantStart := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	if !first.RecommendedStart.Equal(wantStart) {
		t.Fatalf("expected start %v, got %v", wantStart, first.RecommendedStart)
	}
}

func TestScheduleUsesWorkTypeAndRollsToTomorrow(t *testing.T) {
	now := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)
	s := newScheduler(now)
	sched, err := s.ScheduleWork(domain.WorkItem{
		ID:       "w2",
		Title:    "Plan the quarter",
		Priority: domain.PriorityLow,
		Category: domain.CategoryCoherence,
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	// dawn: category 3 + planning 2.
	if sched.Window != "dawn" {
		t.Fatalf("expected dawn, got %s", sched.Window)
	}
	if sched.Alignment != 80 {
		t.Fatalf("expected alignment 80, got %d", sched.Alignment)
	}
	want := time.Date(2024, 3, 2, 6, 0, 0, 0, time.UTC)
	if !sched.RecommendedStart.Equal(want) {
		t.Fatalf("expected tomorrow dawn %v, got %v", want, sched.RecommendedStart)
	}
	if sched.Rhythm.WorkPeriod != 25*time.Minute {
		t.Fatalf("expected default rhythm, got %+v", sched.Rhythm)
	}
}

func TestUpcomingOrdersAndPrunes(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newScheduler(now)
	if _, err := s.ScheduleWork(domain.WorkItem{ID: "late", Title: "review", Category: domain.CategoryTransparency, Priority: domain.PriorityLow}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := s.ScheduleWork(domain.WorkItem{ID: "soon", Title: "lunch", Category: domain.CategoryVitality, Priority: domain.PriorityLow}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	up := s.Upcoming()
	if len(up) != 2 || up[0].WorkID != "soon" || up[1].WorkID != "late" {
		t.Fatalf("unexpected queue order: %+v", up)
	}

	s.Now = fixedClock(now.Add(3 * time.Hour))
	up = s.Upcoming()
	if len(up) != 1 || up[0].WorkID != "late" {
		t.Fatalf("expected past-due entry pruned: %+v", up)
	}
}

func TestRescheduleReplacesQueueEntry(t *testing.T) {
	s := newScheduler(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	item := domain.WorkItem{ID: "w", Title: "x", Category: domain.CategoryAgency, Priority: domain.PriorityMedium}
	_, _ = s.ScheduleWork(item)
	_, _ = s.ScheduleWork(item)
	if n := len(s.Upcoming()); n != 1 {
		t.Fatalf("expected one entry per work id, got %d", n)
	}
}

func TestScheduleRequiresID(t *testing.T) {
	s := newScheduler(time.Now())
	if _, err := s.ScheduleWork(domain.WorkItem{}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

type fixedClassifier []scheduler.WorkType

func (f fixedClassifier) Classify(domain.WorkItem) []scheduler.WorkType { return f }

func TestClassifierIsPluggable(t *testing.T) {
	s := scheduler.New(fixedClassifier{scheduler.WorkIntegration})
	s.Now = fixedClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	item := domain.WorkItem{ID: "w", Title: "anything", Category: domain.CategoryAgency}
	if !s.Aligned(item, s.Windows()[4]) {
		t.Fatalf("integration work should align with twilight")
	}
	kw := scheduler.DefaultClassifier().Classify(domain.WorkItem{Title: "Team design REVIEW"})
	if len(kw) != 3 {
		t.Fatalf("expected planning, review and teamwork, got %v", kw)
	}
}
