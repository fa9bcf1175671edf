package engine_test

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"coordline/internal/capacity"
	"coordline/internal/config"
	"coordline/internal/domain"
	"coordline/internal/engine"
	"coordline/internal/events"
	"coordline/internal/registry"
)

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last(t events.Type) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return events.Event{}, false
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	Engine *engine.Engine
	Events *recorder
	Clock  *clock
	Ctx    context.Context
}

func newTestEnv(t *testing.T, tweak ...func(*config.EngineConfig)) testEnv {
	t.Helper()
	cfg := config.Default().Engine
	for _, f := range tweak {
		f(&cfg)
	}
	rec := &recorder{}
	clk := &clock{t: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)}
	eng := engine.New(engine.Options{Config: &cfg, Publisher: rec, Now: clk.Now})
	return testEnv{Engine: eng, Events: rec, Clock: clk, Ctx: context.Background()}
}

func (env testEnv) create(t *testing.T, title string) domain.WorkItem {
	t.Helper()
	w, err := env.Engine.CreateWork(env.Ctx, engine.CreateParams{Title: title, Assignee: "w1"})
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return w
}

func (env testEnv) move(t *testing.T, id string, statuses ...domain.Status) domain.WorkItem {
	t.Helper()
	var w domain.WorkItem
	var err error
	for _, s := range statuses {
		w, err = env.Engine.UpdateStatus(env.Ctx, id, s, engine.TransitionContext{Reason: "test"})
		if err != nil {
			t.Fatalf("move %s to %s: %v", id, s, err)
		}
	}
	return w
}

func hasLog(w domain.WorkItem, kind domain.LogKind) int {
	n := 0
	for _, e := range w.Log {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func TestCreateWorkScenarioA(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWork(env.Ctx, engine.CreateParams{
		Title:    "Plan launch",
		Assignee: "w1",
		Priority: domain.PriorityHigh,
		Category: domain.CategoryAgency,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.Status != domain.StatusPending || w.Progress != 0 {
		t.Fatalf("unexpected initial state: %+v", w)
	}
	if w.ImpactScore != 6.0 {
		t.Fatalf("expected impact 6.0, got %v", w.ImpactScore)
	}
	if env.Events.count(events.WorkCreated) != 1 {
		t.Fatalf("expected one work-created event")
	}
	if w.Metadata["created_during"] != "morning" {
		t.Fatalf("expected created_during=morning, got %q", w.Metadata["created_during"])
	}
	if hasLog(w, domain.LogEmergence) != 1 {
		t.Fatalf("expected emergence entry: %+v", w.Log)
	}
	if len(env.Engine.Upcoming(env.Ctx)) != 1 {
		t.Fatalf("expected the item to be scheduled")
	}
}

func TestCreateWorkDefaultsAndValidation(t *testing.T) {
	env := newTestEnv(t)
	w, err := env.Engine.CreateWork(env.Ctx, engine.CreateParams{Title: "t", Assignee: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if w.Priority != domain.PriorityMedium || w.Category != domain.CategoryCoherence || w.Elevated {
		t.Fatalf("unexpected defaults: %+v", w)
	}
	bad := []engine.CreateParams{
		{Title: "  ", Assignee: "a"},
		{Title: "t"},
		{Title: "t", Assignee: "a", Priority: "urgent"},
		{Title: "t", Assignee: "a", Category: "chaos"},
	}
	for _, p := range bad {
		_, err := env.Engine.CreateWork(env.Ctx, p)
		var verr engine.ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("%+v: expected ValidationError, got %v", p, err)
		}
	}
	if got := len(env.Engine.Search(env.Ctx, registry.Criteria{})); got != 1 {
		t.Fatalf("rejected creates must not store items, have %d", got)
	}
}

func TestCompleteScenarioB(t *testing.T) {
	env := newTestEnv(t)
	w, _ := env.Engine.CreateWork(env.Ctx, engine.CreateParams{
		Title: "Plan launch", Assignee: "w1", Priority: domain.PriorityHigh, Category: domain.CategoryAgency,
	})
	before := env.Engine.LoadState(env.Ctx)

	w = env.move(t, w.ID, domain.StatusInProgress, domain.StatusCompleted)
	if len(w.Transitions) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(w.Transitions))
	}
	if w.Transitions[0].Impact != 3 || w.Transitions[1].Impact != 5 {
		t.Fatalf("unexpected impacts: %+v", w.Transitions)
	}
	if w.Progress != 100 || w.CompletedAt == nil || w.StartedAt == nil {
		t.Fatalf("completion not stamped: %+v", w)
	}
	if hasLog(w, domain.LogCelebration) != 1 {
		t.Fatalf("expected celebration entry: %+v", w.Log)
	}
	after := env.Engine.LoadState(env.Ctx)
	if after.CompletedToday != before.CompletedToday+1 {
		t.Fatalf("completedToday not incremented: %d -> %d", before.CompletedToday, after.CompletedToday)
	}
	if after.LoadMetric != before.LoadMetric+w.ImpactScore {
		t.Fatalf("load metric not raised by impact: %v -> %v", before.LoadMetric, after.LoadMetric)
	}
	pause, ok := env.Events.last(events.PauseAdvised)
	if !ok || pause.Data["minutes"] != 3 || pause.Data["duration"] != "3m0s" {
		t.Fatalf("expected pause-advised with 3 minutes: %+v", pause)
	}
}

func TestLoadMetricCapsAtHundred(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ObserveLoad(env.Ctx, 98); err != nil {
		t.Fatalf("observe: %v", err)
	}
	w := env.create(t, "x")
	env.move(t, w.ID, domain.StatusInProgress, domain.StatusCompleted)
	if got := env.Engine.LoadState(env.Ctx).LoadMetric; got != 100 {
		t.Fatalf("expected load capped at 100, got %v", got)
	}
}

func TestObserveLoadRejectsNaN(t *testing.T) {
	env := newTestEnv(t)
	before := env.Engine.LoadState(env.Ctx).LoadMetric
	_, err := env.Engine.ObserveLoad(env.Ctx, math.NaN())
	var verr engine.ValidationError
	if !errors.As(err, &verr) || verr.Field != "load_metric" {
		t.Fatalf("expected load_metric validation error, got %v", err)
	}
	if got := env.Engine.LoadState(env.Ctx).LoadMetric; got != before {
		t.Fatalf("load metric changed to %v", got)
	}
	if h := env.Engine.GetFieldHealth(env.Ctx); h.Level != capacity.LevelModerate {
		t.Fatalf("expected moderate level unchanged, got %+v", h)
	}
	if n := env.Events.count(events.FieldUpdated); n != 0 {
		t.Fatalf("expected no field-updated event, got %d", n)
	}
}

func TestSkippingInProgressScenarioC(t *testing.T) {
	env := newTestEnv(t)
	w := env.create(t, "x")
	_, err := env.Engine.UpdateStatus(env.Ctx, w.ID, domain.StatusCompleted, engine.TransitionContext{})
	var terr engine.TransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if terr.From != domain.StatusPending || terr.To != domain.StatusCompleted {
		t.Fatalf("error should name the pair: %+v", terr)
	}
	got, _ := env.Engine.Get(env.Ctx, w.ID)
	if got.Status != domain.StatusPending || len(got.Transitions) != 0 {
		t.Fatalf("rejected transition mutated the item: %+v", got)
	}
}

func TestUpdateStatusNotFound(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.UpdateStatus(env.Ctx, "missing", domain.StatusInProgress, engine.TransitionContext{})
	var nf engine.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "missing" {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestBlocksFlowScenarioD(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A")
	b := env.create(t, "B")

	if _, err := env.Engine.CreateWorkFlow(env.Ctx, a.ID, b.ID, domain.RelBlocks); err != nil {
		t.Fatalf("flow: %v", err)
	}
	b, _ = env.Engine.Get(env.Ctx, b.ID)
	if b.Status != domain.StatusBlocked {
		t.Fatalf("expected B blocked, got %s", b.Status)
	}
	last := b.Transitions[len(b.Transitions)-1]
	if !strings.Contains(last.Context["reason"], a.ID) || last.Context["blocker_id"] != a.ID {
		t.Fatalf("reason should reference A: %+v", last.Context)
	}
	if hasLog(b, domain.LogBoundary) != 1 {
		t.Fatalf("expected boundary entry: %+v", b.Log)
	}
	if env.Events.count(events.WorkflowCreated) != 1 {
		t.Fatalf("expected workflow-created event")
	}

	_, err := env.Engine.UpdateStatus(env.Ctx, b.ID, domain.StatusInProgress, engine.TransitionContext{})
	var terr engine.TransitionError
	if !errors.As(err, &terr) || !strings.Contains(terr.Reason, a.ID) {
		t.Fatalf("expected gating error naming A, got %v", err)
	}

	env.move(t, a.ID, domain.StatusInProgress, domain.StatusCompleted)
	cleared, ok := env.Events.last(events.DependencyCleared)
	if !ok || cleared.WorkID != b.ID {
		t.Fatalf("expected dependency-cleared for B: %+v", cleared)
	}
	b = env.move(t, b.ID, domain.StatusInProgress)
	if hasLog(b, domain.LogTransmission) != 1 {
		t.Fatalf("expected transmission entry on clear: %+v", b.Log)
	}
}

func TestFlowFromCompletedDoesNotBlock(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A")
	env.move(t, a.ID, domain.StatusInProgress, domain.StatusCompleted)
	b := env.create(t, "B")
	if _, err := env.Engine.CreateWorkFlow(env.Ctx, a.ID, b.ID, domain.RelBlocks); err != nil {
		t.Fatalf("flow: %v", err)
	}
	b, _ = env.Engine.Get(env.Ctx, b.ID)
	if b.Status != domain.StatusPending {
		t.Fatalf("completed blocker must not block: %s", b.Status)
	}
}

func TestFlowCyclesRejected(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A")
	b := env.create(t, "B")
	c := env.create(t, "C")
	var cerr engine.CycleError

	if _, err := env.Engine.CreateWorkFlow(env.Ctx, a.ID, a.ID, domain.RelRelates); !errors.As(err, &cerr) {
		t.Fatalf("expected self edge rejected, got %v", err)
	}
	if _, err := env.Engine.CreateWorkFlow(env.Ctx, a.ID, b.ID, domain.RelBlocks); err != nil {
		t.Fatalf("a->b: %v", err)
	}
	if _, err := env.Engine.CreateWorkFlow(env.Ctx, b.ID, c.ID, domain.RelBlocks); err != nil {
		t.Fatalf("b->c: %v", err)
	}
	if _, err := env.Engine.CreateWorkFlow(env.Ctx, c.ID, a.ID, domain.RelBlocks); !errors.As(err, &cerr) {
		t.Fatalf("expected cycle rejected, got %v", err)
	}
	if _, err := env.Engine.CreateWorkFlow(env.Ctx, c.ID, a.ID, domain.RelRelates); err != nil {
		t.Fatalf("relates edges may loop: %v", err)
	}
	if _, err := env.Engine.CreateWorkFlow(env.Ctx, a.ID, b.ID, domain.RelBlocks); err != nil {
		t.Fatalf("repeat edge: %v", err)
	}
	if n := len(env.Engine.Edges(env.Ctx, "")); n != 3 {
		t.Fatalf("expected 3 edges, got %d", n)
	}
	if _, err := env.Engine.CreateWorkFlow(env.Ctx, a.ID, "nope", domain.RelBlocks); !errors.As(err, new(engine.NotFoundError)) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestCapacityCeiling(t *testing.T) {
	env := newTestEnv(t)
	var active []domain.WorkItem
	for i := 0; i < 7; i++ {
		w := env.create(t, "active")
		active = append(active, env.move(t, w.ID, domain.StatusInProgress))
	}
	_, err := env.Engine.CreateWork(env.Ctx, engine.CreateParams{Title: "eighth", Assignee: "w1"})
	var cerr engine.CapacityError
	if !errors.As(err, &cerr) || cerr.Active != 7 || cerr.Limit != 7 {
		t.Fatalf("expected CapacityError 7/7, got %v", err)
	}
	env.move(t, active[0].ID, domain.StatusCompleted)
	if _, err := env.Engine.CreateWork(env.Ctx, engine.CreateParams{Title: "eighth", Assignee: "w1"}); err != nil {
		t.Fatalf("expected admission after completion: %v", err)
	}
}

func TestCriticalLoadScenarioE(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ObserveLoad(env.Ctx, 15); err != nil {
		t.Fatalf("observe: %v", err)
	}
	adm, err := env.Engine.CanAccept(env.Ctx, engine.CreateParams{Title: "x", Assignee: "w1"})
	if err != nil {
		t.Fatalf("can accept: %v", err)
	}
	if adm.CanAccept || adm.Level != capacity.LevelCritical {
		t.Fatalf("expected rejection at critical load: %+v", adm)
	}
	if plan := env.Engine.RestorationPlan(env.Ctx); plan.Priority != capacity.PlanUrgent {
		t.Fatalf("expected urgent plan: %+v", plan)
	}
	if h := env.Engine.GetFieldHealth(env.Ctx); h.Status != capacity.HealthCritical {
		t.Fatalf("expected critical health: %+v", h)
	}
}

func TestTransitionTableIsClosed(t *testing.T) {
	env := newTestEnv(t, func(c *config.EngineConfig) { c.MaxActiveWork = 100 })
	paths := map[domain.Status][]domain.Status{
		domain.StatusPending:    nil,
		domain.StatusInProgress: {domain.StatusInProgress},
		domain.StatusBlocked:    {domain.StatusInProgress, domain.StatusBlocked},
		domain.StatusCompleted:  {domain.StatusInProgress, domain.StatusCompleted},
		domain.StatusCancelled:  {domain.StatusCancelled},
	}
	for _, from := range domain.Statuses() {
		for _, to := range domain.Statuses() {
			w := env.create(t, string(from)+"->"+string(to))
			env.move(t, w.ID, paths[from]...)
			_, err := env.Engine.UpdateStatus(env.Ctx, w.ID, to, engine.TransitionContext{})
			if engine.Allowed(from, to) {
				if err != nil {
					t.Fatalf("%s -> %s should be allowed: %v", from, to, err)
				}
				continue
			}
			var terr engine.TransitionError
			if !errors.As(err, &terr) {
				t.Fatalf("%s -> %s should be rejected, got %v", from, to, err)
			}
		}
	}
}

func TestProgressMilestonesFireOnCrossing(t *testing.T) {
	env := newTestEnv(t)
	w := env.create(t, "x")
	env.move(t, w.ID, domain.StatusInProgress)

	first, err := env.Engine.UpdateProgress(env.Ctx, w.ID, 50, "")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	second, err := env.Engine.UpdateProgress(env.Ctx, w.ID, 50, "")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated update changed state:\n%+v\n%+v", first, second)
	}
	if n := hasLog(second, domain.LogIntegration); n != 2 {
		t.Fatalf("expected 25 and 50 milestones once each, got %d", n)
	}
	third, _ := env.Engine.UpdateProgress(env.Ctx, w.ID, 80, "almost")
	if n := hasLog(third, domain.LogIntegration); n != 3 {
		t.Fatalf("expected 75 milestone, got %d integration entries", n)
	}
	if len(third.ProgressNotes) != 1 || third.ProgressNotes[0].Notes != "almost" {
		t.Fatalf("notes not recorded: %+v", third.ProgressNotes)
	}
	lowered, _ := env.Engine.UpdateProgress(env.Ctx, w.ID, 10, "")
	if n := hasLog(lowered, domain.LogIntegration); n != 3 {
		t.Fatalf("downward move should not fire milestones")
	}
}

func TestProgressToHundredCompletes(t *testing.T) {
	env := newTestEnv(t)
	w := env.create(t, "x")

	_, err := env.Engine.UpdateProgress(env.Ctx, w.ID, 100, "")
	if !errors.As(err, new(engine.TransitionError)) {
		t.Fatalf("pending item cannot complete through progress, got %v", err)
	}
	if got, _ := env.Engine.Get(env.Ctx, w.ID); got.Progress != 0 {
		t.Fatalf("rejected update mutated progress: %d", got.Progress)
	}

	env.move(t, w.ID, domain.StatusInProgress)
	done, err := env.Engine.UpdateProgress(env.Ctx, w.ID, 100, "")
	if err != nil {
		t.Fatalf("progress 100: %v", err)
	}
	if done.Status != domain.StatusCompleted {
		t.Fatalf("expected completion, got %s", done.Status)
	}
	last := done.Transitions[len(done.Transitions)-1]
	if last.Context["reason"] != "progress reached 100%" {
		t.Fatalf("unexpected reason: %+v", last.Context)
	}

	_, err = env.Engine.UpdateProgress(env.Ctx, w.ID, 40, "")
	if !errors.As(err, new(engine.ValidationError)) {
		t.Fatalf("finished work should reject progress, got %v", err)
	}
	_, err = env.Engine.UpdateProgress(env.Ctx, w.ID, 101, "")
	if !errors.As(err, new(engine.ValidationError)) {
		t.Fatalf("out of range progress should be rejected, got %v", err)
	}
}

func TestAssignWork(t *testing.T) {
	env := newTestEnv(t)
	w := env.create(t, "x")
	got, err := env.Engine.AssignWork(env.Ctx, w.ID, "w2")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if got.Assignee != "w2" || hasLog(got, domain.LogTransmission) != 1 {
		t.Fatalf("unexpected assignment: %+v", got)
	}
	messages := env.Events.count(events.WorkMessage)
	again, _ := env.Engine.AssignWork(env.Ctx, w.ID, "w2")
	if hasLog(again, domain.LogTransmission) != 1 || env.Events.count(events.WorkMessage) != messages {
		t.Fatalf("same assignee should not log again")
	}
	if env.Events.count(events.WorkAssigned) != 2 {
		t.Fatalf("expected work-assigned on every call, got %d", env.Events.count(events.WorkAssigned))
	}
	if ev, _ := env.Events.last(events.WorkAssigned); ev.Data["changed"] != false {
		t.Fatalf("expected unchanged assignment flagged: %+v", ev.Data)
	}
	if _, err := env.Engine.AssignWork(env.Ctx, "missing", "w2"); !errors.As(err, new(engine.NotFoundError)) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestRecommendations(t *testing.T) {
	env := newTestEnv(t)
	mk := func(title, assignee string, p domain.Priority, c domain.Category, elevated bool) domain.WorkItem {
		env.Clock.Advance(time.Minute)
		w, err := env.Engine.CreateWork(env.Ctx, engine.CreateParams{
			Title: title, Assignee: assignee, Priority: p, Category: c, Elevated: elevated,
		})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return w
	}
	mk("rest", "w2", domain.PriorityLow, domain.CategoryVitality, false)
	r2 := mk("Plan launch", "w2", domain.PriorityHigh, domain.CategoryAgency, false)
	r3 := mk("sync", "w2", domain.PriorityMedium, domain.CategoryCoherence, true)
	mk("mine", "w1", domain.PriorityHigh, domain.CategoryNovelty, false)
	r5 := mk("x", "w2", domain.PriorityMedium, domain.CategoryNovelty, false)

	recs := env.Engine.GetRecommendations(env.Ctx, "w1")
	if len(recs) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(recs))
	}
	want := []string{r2.ID, r5.ID, r3.ID}
	for i, id := range want {
		if recs[i].Work.ID != id {
			t.Fatalf("position %d: expected %s, got %s (%+v)", i, id, recs[i].Work.Title, recs)
		}
	}
	if recs[0].Score != 5 || recs[0].Reason != "high priority, aligned with morning" {
		t.Fatalf("unexpected first recommendation: %+v", recs[0])
	}
	if !strings.Contains(recs[1].Reason, "matches dominant category") {
		t.Fatalf("expected dominant category term: %q", recs[1].Reason)
	}
	if recs[2].Reason != "elevated work" {
		t.Fatalf("unexpected reason: %q", recs[2].Reason)
	}
}

func TestStatistics(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "a")
	env.create(t, "b")
	env.move(t, a.ID, domain.StatusInProgress)
	env.Clock.Advance(30 * time.Minute)
	env.move(t, a.ID, domain.StatusCompleted)

	st := env.Engine.GetStatistics(env.Ctx)
	if st.Total != 2 || st.ByStatus[domain.StatusCompleted] != 1 || st.ByStatus[domain.StatusPending] != 1 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	if st.Velocity.Today != 1 || st.Velocity.ThisWeek != 1 || st.Velocity.AvgPerDay != 0.1 {
		t.Fatalf("unexpected velocity: %+v", st.Velocity)
	}
	if st.AvgCompletionSeconds != 1800 {
		t.Fatalf("expected 1800s completion, got %v", st.AvgCompletionSeconds)
	}
	if st.CategoryAlignmentPercent != 100 || st.ByCategory[domain.CategoryCoherence] != 2 {
		t.Fatalf("unexpected alignment: %+v", st)
	}
	if st.LoadState.CompletedToday != 1 {
		t.Fatalf("expected load state in stats: %+v", st.LoadState)
	}
}

func TestCompletionTimeCountsFromCreation(t *testing.T) {
	env := newTestEnv(t)
	w := env.create(t, "queued first")
	env.Clock.Advance(time.Hour)
	env.move(t, w.ID, domain.StatusInProgress)
	env.Clock.Advance(time.Hour)
	env.move(t, w.ID, domain.StatusCompleted)

	st := env.Engine.GetStatistics(env.Ctx)
	if st.AvgCompletionSeconds != 7200 {
		t.Fatalf("expected 7200s from creation to completion, got %v", st.AvgCompletionSeconds)
	}
}

func TestDistributeUsesRegistryActiveCounts(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		w := env.create(t, "busy")
		env.move(t, w.ID, domain.StatusInProgress)
	}
	p := env.create(t, "pending")
	got := env.Engine.Distribute(env.Ctx, []capacity.Worker{{ID: "w1"}, {ID: "w9"}})
	if len(got) != 1 || got[0].WorkID != p.ID || got[0].WorkerID != "w9" {
		t.Fatalf("expected pending work on the idle worker: %+v", got)
	}
}

func TestRestoreLoadsSnapshotSilently(t *testing.T) {
	src := newTestEnv(t)
	a := src.create(t, "A")
	b := src.create(t, "B")
	if _, err := src.Engine.CreateWorkFlow(src.Ctx, a.ID, b.ID, domain.RelBlocks); err != nil {
		t.Fatalf("flow: %v", err)
	}
	items := src.Engine.Search(src.Ctx, registry.Criteria{})
	edges := append(src.Engine.Edges(src.Ctx, ""), domain.Edge{From: "ghost", To: a.ID, Relationship: domain.RelBlocks})
	load := 42.0

	dst := newTestEnv(t)
	if err := dst.Engine.Restore(dst.Ctx, engine.Snapshot{Items: items, Edges: edges, LoadMetric: &load}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(dst.Events.events) != 0 {
		t.Fatalf("restore must not emit events")
	}
	if n := len(dst.Engine.Edges(dst.Ctx, "")); n != 1 {
		t.Fatalf("expected dangling edge skipped, have %d", n)
	}
	if dst.Engine.LoadState(dst.Ctx).LoadMetric != 42 {
		t.Fatalf("load metric not restored")
	}
	_, err := dst.Engine.UpdateStatus(dst.Ctx, b.ID, domain.StatusInProgress, engine.TransitionContext{})
	if !errors.As(err, new(engine.TransitionError)) {
		t.Fatalf("restored edge should still gate B, got %v", err)
	}
	if err := dst.Engine.Restore(dst.Ctx, engine.Snapshot{Items: items[:1]}); !errors.Is(err, registry.ErrDuplicate) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
}

func TestConcurrentMutationsKeepCounts(t *testing.T) {
	env := newTestEnv(t, func(c *config.EngineConfig) { c.MaxActiveWork = 1000 })
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := env.Engine.CreateWork(env.Ctx, engine.CreateParams{Title: "c", Assignee: "w1"})
			if err != nil {
				return
			}
			_, _ = env.Engine.UpdateStatus(env.Ctx, w.ID, domain.StatusInProgress, engine.TransitionContext{})
			_ = env.Engine.GetStatistics(env.Ctx)
		}()
	}
	wg.Wait()
	if got := env.Engine.LoadState(env.Ctx).ActiveWorkCount; got != 20 {
		t.Fatalf("expected 20 active, got %d", got)
	}
}
