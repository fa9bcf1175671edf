package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coordline/internal/capacity"
	"coordline/internal/config"
	"coordline/internal/domain"
	"coordline/internal/events"
	"coordline/internal/registry"
	"coordline/internal/scheduler"
)

var milestones = []int{25, 50, 75}

// Options configures an Engine. Zero values fall back to defaults.
type Options struct {
	Config     *config.EngineConfig
	Publisher  events.Publisher
	Logger     *slog.Logger
	Classifier scheduler.Classifier
	Now        func() time.Time
}

// Engine is the single coordinating authority over the registry, the
// dependency graph and the load metric. One RWMutex serializes mutations;
// events are published while it is held.
type Engine struct {
	Now func() time.Time

	mu        sync.RWMutex
	cfg       config.EngineConfig
	registry  *registry.Registry
	scheduler *scheduler.Scheduler
	graph     *graph
	load      float64
	publisher events.Publisher
	logger    *slog.Logger
	metrics   engineMetrics
}

func New(opts Options) *Engine {
	cfg := config.Default().Engine
	if opts.Config != nil {
		cfg = *opts.Config
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")
	pub := opts.Publisher
	if pub == nil {
		pub = discard{}
	}
	e := &Engine{
		Now:       opts.Now,
		cfg:       cfg,
		registry:  registry.New(),
		graph:     newGraph(),
		load:      clampLoad(cfg.InitialLoadMetric),
		publisher: pub,
		logger:    logger,
		metrics:   newMetrics(logger),
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	e.scheduler = scheduler.New(opts.Classifier)
	e.scheduler.Now = e.now
	return e
}

type discard struct{}

func (discard) Publish(events.Event) {}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// CreateParams are the inputs of CreateWork. Title and Assignee are
// required; Priority and Category default to medium and coherence.
type CreateParams struct {
	Title       string
	Description string
	Assignee    string
	Priority    domain.Priority
	Category    domain.Category
	Elevated    bool
	Metadata    map[string]string
}

func (p CreateParams) normalize() (CreateParams, error) {
	p.Title = strings.TrimSpace(p.Title)
	p.Assignee = strings.TrimSpace(p.Assignee)
	if p.Title == "" {
		return p, ValidationError{Field: "title", Reason: "required"}
	}
	if p.Assignee == "" {
		return p, ValidationError{Field: "assignee", Reason: "required"}
	}
	if p.Priority == "" {
		p.Priority = domain.PriorityMedium
	}
	if !p.Priority.Valid() {
		return p, ValidationError{Field: "priority", Value: p.Priority, Reason: "must be high, medium or low"}
	}
	if p.Category == "" {
		p.Category = domain.CategoryCoherence
	}
	if !p.Category.Valid() {
		return p, ValidationError{Field: "category", Value: p.Category, Reason: "unknown category"}
	}
	return p, nil
}

// TransitionContext annotates a status change. BlockerID names the item
// that caused a block, when there is one.
type TransitionContext struct {
	Reason    string
	BlockerID string
}

func (tc TransitionContext) fields() map[string]string {
	out := map[string]string{}
	if tc.Reason != "" {
		out["reason"] = tc.Reason
	}
	if tc.BlockerID != "" {
		out["blocker_id"] = tc.BlockerID
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (e *Engine) CreateWork(ctx context.Context, params CreateParams) (domain.WorkItem, error) {
	p, err := params.normalize()
	if err != nil {
		return domain.WorkItem{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.registry.CountByStatus(domain.StatusInProgress)
	if active >= e.cfg.MaxActiveWork {
		e.metrics.recordRejected(ctx)
		return domain.WorkItem{}, CapacityError{Active: active, Limit: e.cfg.MaxActiveWork}
	}

	now := e.now()
	window := e.scheduler.WindowAt(now)
	meta := make(map[string]string, len(p.Metadata)+1)
	for k, v := range p.Metadata {
		meta[k] = v
	}
	meta["created_during"] = window.Name

	item := domain.WorkItem{
		ID:          uuid.NewString(),
		Title:       p.Title,
		Description: p.Description,
		Assignee:    p.Assignee,
		Priority:    p.Priority,
		Category:    p.Category,
		Elevated:    p.Elevated,
		Status:      domain.StatusPending,
		ImpactScore: capacity.CalculateWorkImpact(p.Priority, p.Category, p.Elevated, e.load),
		CreatedAt:   now,
		UpdatedAt:   now,
		Transitions: []domain.Transition{},
		Log:         []domain.LogEntry{},
		Metadata:    meta,
	}
	entry := appendLog(&item, domain.LogEmergence, "new work: "+item.Title, now)
	if err := e.registry.Add(item); err != nil {
		return domain.WorkItem{}, fmt.Errorf("register work: %w", err)
	}

	data := map[string]any{
		"title":          item.Title,
		"priority":       string(item.Priority),
		"category":       string(item.Category),
		"impact_score":   item.ImpactScore,
		"created_during": window.Name,
		"high_impact":    item.ImpactScore >= e.cfg.FieldImpactThreshold,
	}
	if e.cfg.CeremonyAlignment {
		sched, err := e.scheduler.ScheduleWork(item)
		if err != nil {
			e.logger.Warn("scheduling failed", "work_id", item.ID, "error", err)
		} else {
			data["scheduled_window"] = sched.Window
			data["recommended_start"] = sched.RecommendedStart
		}
	}

	e.metrics.recordCreated(ctx, item)
	e.emitWork(events.WorkCreated, item, now, data)
	e.emitMessage(item, entry)
	e.emitLoad(now)
	e.logger.Debug("work created", "work_id", item.ID, "impact", item.ImpactScore)
	return item.Clone(), nil
}

func (e *Engine) UpdateStatus(ctx context.Context, id string, status domain.Status, tc TransitionContext) (domain.WorkItem, error) {
	if !status.Valid() {
		return domain.WorkItem{}, ValidationError{Field: "status", Value: status, Reason: "unknown status"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	item, ok := e.registry.Get(id)
	if !ok {
		return domain.WorkItem{}, NotFoundError{ID: id}
	}
	return e.transition(ctx, item, status, tc, false)
}

// checkTransition runs every precondition of a move without mutating.
func (e *Engine) checkTransition(item domain.WorkItem, to domain.Status, force bool) error {
	if err := ensureTransition(item.ID, item.Status, to, force); err != nil {
		return err
	}
	if to == domain.StatusInProgress && !force {
		if open := e.unresolvedBlockers(item.ID); len(open) > 0 {
			return TransitionError{
				ID: item.ID, From: item.Status, To: to,
				Reason: "blocked by " + strings.Join(open, ", "),
			}
		}
	}
	return nil
}

// transition is the single status path. Callers hold the write lock.
func (e *Engine) transition(ctx context.Context, item domain.WorkItem, to domain.Status, tc TransitionContext, force bool) (domain.WorkItem, error) {
	if err := e.checkTransition(item, to, force); err != nil {
		return domain.WorkItem{}, err
	}

	now := e.now()
	from := item.Status
	impact := TransitionImpact(from, to)
	item.Status = to
	item.UpdatedAt = now
	item.Transitions = append(item.Transitions, domain.Transition{
		From: from, To: to, At: now, Context: tc.fields(), Impact: impact,
	})

	logStart := len(item.Log)
	switch to {
	case domain.StatusInProgress:
		if item.StartedAt == nil {
			started := now
			item.StartedAt = &started
		}
		appendLog(&item, domain.LogEmergence, "work started: "+item.Title, now)
	case domain.StatusCompleted:
		done := now
		item.CompletedAt = &done
		item.Progress = 100
		appendLog(&item, domain.LogCelebration, "work completed: "+item.Title, now)
		e.load = clampLoad(e.load + item.ImpactScore)
	case domain.StatusBlocked:
		reason := tc.Reason
		if reason == "" {
			reason = "no reason given"
		}
		appendLog(&item, domain.LogBoundary, "work blocked: "+reason, now)
	}
	e.registry.Update(item)
	e.metrics.recordTransition(ctx, from, to, force)

	data := map[string]any{"from": string(from), "to": string(to), "impact": impact, "forced": force}
	for k, v := range tc.fields() {
		data[k] = v
	}
	e.emitWork(events.WorkTransitioned, item, now, data)
	for _, entry := range item.Log[logStart:] {
		e.emitMessage(item, entry)
	}
	if to == domain.StatusCompleted && e.cfg.PauseMinutes > 0 {
		e.publisher.Publish(events.Event{
			Type:   events.PauseAdvised,
			WorkID: item.ID,
			At:     now,
			Data: map[string]any{
				"minutes":  e.cfg.PauseMinutes,
				"duration": e.cfg.PauseDuration().String(),
				"reason":   "celebrating completion of: " + item.Title,
			},
		})
	}
	if to.Terminal() {
		e.announceCleared(item, now)
	}
	e.emitLoad(now)
	return item.Clone(), nil
}

func (e *Engine) unresolvedBlockers(id string) []string {
	var open []string
	for _, b := range e.graph.blockers(id) {
		blocker, ok := e.registry.Get(b)
		if ok && !blocker.Status.Terminal() {
			open = append(open, b)
		}
	}
	return open
}

// announceCleared tells dependents of a resolved item whose blockers are all
// resolved that they may resume.
func (e *Engine) announceCleared(resolved domain.WorkItem, now time.Time) {
	for _, depID := range e.graph.dependents(resolved.ID) {
		dep, ok := e.registry.Get(depID)
		if !ok || dep.Status.Terminal() || len(e.unresolvedBlockers(depID)) > 0 {
			continue
		}
		entry := appendLog(&dep, domain.LogTransmission, "dependencies cleared by "+resolved.Title, now)
		dep.UpdatedAt = now
		e.registry.Update(dep)
		e.emitWork(events.DependencyCleared, dep, now, map[string]any{"cleared_by": resolved.ID})
		e.emitMessage(dep, entry)
	}
}

func (e *Engine) UpdateProgress(ctx context.Context, id string, progress int, notes string) (domain.WorkItem, error) {
	if progress < 0 || progress > 100 {
		return domain.WorkItem{}, ValidationError{Field: "progress", Value: progress, Reason: "must be within 0..100"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	item, ok := e.registry.Get(id)
	if !ok {
		return domain.WorkItem{}, NotFoundError{ID: id}
	}
	if item.Status.Terminal() {
		return domain.WorkItem{}, ValidationError{Field: "status", Value: item.Status, Reason: "progress cannot change on finished work"}
	}
	if progress == 100 {
		if err := e.checkTransition(item, domain.StatusCompleted, false); err != nil {
			return domain.WorkItem{}, err
		}
	}

	now := e.now()
	old := item.Progress
	item.Progress = progress
	item.UpdatedAt = now
	if notes != "" {
		item.ProgressNotes = append(item.ProgressNotes, domain.ProgressNote{Progress: progress, Notes: notes, At: now})
	}
	logStart := len(item.Log)
	for _, m := range milestones {
		if old < m && progress >= m {
			appendLog(&item, domain.LogIntegration, fmt.Sprintf("reached %d%% milestone", m), now)
		}
	}
	e.registry.Update(item)

	e.emitWork(events.ProgressUpdated, item, now, map[string]any{"from": old, "to": progress, "notes": notes})
	for _, entry := range item.Log[logStart:] {
		e.emitMessage(item, entry)
	}
	if progress == 100 {
		return e.transition(ctx, item, domain.StatusCompleted, TransitionContext{Reason: "progress reached 100%"}, false)
	}
	return item.Clone(), nil
}

func (e *Engine) AssignWork(ctx context.Context, id, assignee string) (domain.WorkItem, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return domain.WorkItem{}, ValidationError{Field: "assignee", Reason: "required"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	item, ok := e.registry.Get(id)
	if !ok {
		return domain.WorkItem{}, NotFoundError{ID: id}
	}
	now := e.now()
	previous := item.Assignee
	if previous == assignee {
		e.emitWork(events.WorkAssigned, item, now, map[string]any{"from": previous, "to": assignee, "changed": false})
		return item.Clone(), nil
	}
	item.Assignee = assignee
	item.UpdatedAt = now
	entry := appendLog(&item, domain.LogTransmission, fmt.Sprintf("work passed from %s to %s", previous, assignee), now)
	e.registry.Update(item)

	e.emitWork(events.WorkAssigned, item, now, map[string]any{"from": previous, "to": assignee, "changed": true})
	e.emitMessage(item, entry)
	return item.Clone(), nil
}

// CreateWorkFlow records a directed edge. A blocks edge from unfinished work
// forces the target into blocked. Self edges and blocks cycles are refused;
// repeating an existing edge returns it unchanged.
func (e *Engine) CreateWorkFlow(ctx context.Context, fromID, toID string, rel domain.Relationship) (domain.Edge, error) {
	if rel == "" {
		rel = domain.RelBlocks
	}
	if !rel.Valid() {
		return domain.Edge{}, ValidationError{Field: "relationship", Value: rel, Reason: "must be blocks or relates"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	from, ok := e.registry.Get(fromID)
	if !ok {
		return domain.Edge{}, NotFoundError{ID: fromID}
	}
	to, ok := e.registry.Get(toID)
	if !ok {
		return domain.Edge{}, NotFoundError{ID: toID}
	}
	if fromID == toID {
		return domain.Edge{}, CycleError{From: fromID, To: toID}
	}
	if rel == domain.RelBlocks && e.graph.wouldCycle(fromID, toID) {
		return domain.Edge{}, CycleError{From: fromID, To: toID}
	}
	if existing, ok := e.graph.find(fromID, toID, rel); ok {
		return existing, nil
	}

	now := e.now()
	edge := domain.Edge{From: fromID, To: toID, Relationship: rel, CreatedAt: now}
	e.graph.add(edge)
	e.publisher.Publish(events.Event{
		Type:   events.WorkflowCreated,
		WorkID: toID,
		At:     now,
		Edge:   &edge,
		Data:   map[string]any{"from": fromID, "to": toID, "relationship": string(rel)},
	})

	if rel == domain.RelBlocks && from.Status != domain.StatusCompleted {
		switch to.Status {
		case domain.StatusPending, domain.StatusInProgress:
			tc := TransitionContext{
				Reason:    fmt.Sprintf("blocked by %s (%s)", from.Title, from.ID),
				BlockerID: from.ID,
			}
			if _, err := e.transition(ctx, to, domain.StatusBlocked, tc, true); err != nil {
				return domain.Edge{}, err
			}
		}
	}
	return edge, nil
}

// ObserveLoad replaces the load metric, clamped to 0..100. NaN is refused.
func (e *Engine) ObserveLoad(ctx context.Context, metric float64) (domain.LoadState, error) {
	if math.IsNaN(metric) {
		return domain.LoadState{}, ValidationError{Field: "load_metric", Value: metric, Reason: "must be a number"}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.load = clampLoad(metric)
	now := e.now()
	e.emitLoad(now)
	return computeLoad(e.registry.All(), e.load, now), nil
}

// Snapshot is the persisted state Restore loads.
type Snapshot struct {
	Items      []domain.WorkItem
	Edges      []domain.Edge
	LoadMetric *float64
}

// Restore loads previously persisted items and edges without emitting
// events. Edges naming unknown items are skipped.
func (e *Engine) Restore(ctx context.Context, snap Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, it := range snap.Items {
		if err := e.registry.Add(it); err != nil {
			return fmt.Errorf("restore %s: %w", it.ID, err)
		}
	}
	skipped := 0
	for _, edge := range snap.Edges {
		_, okFrom := e.registry.Get(edge.From)
		_, okTo := e.registry.Get(edge.To)
		if !okFrom || !okTo {
			skipped++
			continue
		}
		e.graph.add(edge)
	}
	if snap.LoadMetric != nil {
		e.load = clampLoad(*snap.LoadMetric)
	}
	e.logger.Info("state restored", "items", len(snap.Items), "edges", len(snap.Edges)-skipped, "skipped_edges", skipped)
	return nil
}

func (e *Engine) Get(ctx context.Context, id string) (domain.WorkItem, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	item, ok := e.registry.Get(id)
	if !ok {
		return domain.WorkItem{}, NotFoundError{ID: id}
	}
	return item, nil
}

func (e *Engine) Search(ctx context.Context, c registry.Criteria) []domain.WorkItem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.registry.Search(c)
}

// Edges lists every edge, or only those touching id when id is set.
func (e *Engine) Edges(ctx context.Context, id string) []domain.Edge {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if id == "" {
		return e.graph.all()
	}
	return e.graph.touching(id)
}

func (e *Engine) LoadState(ctx context.Context) domain.LoadState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loadState()
}

func (e *Engine) loadState() domain.LoadState {
	return computeLoad(e.registry.All(), e.load, e.now())
}

func (e *Engine) Upcoming(ctx context.Context) []domain.Schedule {
	return e.scheduler.Upcoming()
}

func (e *Engine) CurrentWindow(ctx context.Context) scheduler.Window {
	return e.scheduler.CurrentWindow()
}

func appendLog(item *domain.WorkItem, kind domain.LogKind, text string, at time.Time) domain.LogEntry {
	entry := domain.LogEntry{Kind: kind, Text: text, At: at}
	item.Log = append(item.Log, entry)
	return entry
}

func (e *Engine) emitWork(t events.Type, item domain.WorkItem, at time.Time, data map[string]any) {
	snap := item.Clone()
	e.publisher.Publish(events.Event{Type: t, WorkID: item.ID, At: at, Data: data, Work: &snap})
}

func (e *Engine) emitMessage(item domain.WorkItem, entry domain.LogEntry) {
	e.publisher.Publish(events.Event{
		Type:   events.WorkMessage,
		WorkID: item.ID,
		At:     entry.At,
		Data:   map[string]any{"kind": string(entry.Kind), "text": entry.Text},
	})
}

func (e *Engine) emitLoad(now time.Time) {
	state := computeLoad(e.registry.All(), e.load, now)
	e.publisher.Publish(events.Event{
		Type: events.FieldUpdated,
		At:   now,
		Data: map[string]any{
			"active_work_count": state.ActiveWorkCount,
			"completed_today":   state.CompletedToday,
			"load_metric":       state.LoadMetric,
			"dominant_category": string(state.DominantCategory),
			"rhythm":            string(state.Rhythm),
		},
	})
}
