package app_test

import (
	"context"
	"fmt"
	"testing"

	"coordline/internal/app"
	"coordline/internal/config"
	"coordline/internal/domain"
	"coordline/internal/engine"
	"coordline/internal/registry"
)

func TestRuntimeSurvivesRestart(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Workspace = t.TempDir()
	ctx := context.Background()

	rt, err := app.Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	w, err := rt.Engine.CreateWork(ctx, engine.CreateParams{Title: "Persist me", Assignee: "a"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := rt.Engine.UpdateStatus(ctx, w.ID, domain.StatusInProgress, engine.TransitionContext{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := app.Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	got, err := again.Engine.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get after restart: %v", err)
	}
	if got.Status != domain.StatusInProgress || len(got.Transitions) != 1 {
		t.Fatalf("unexpected restored item: %+v", got)
	}
	if again.Engine.LoadState(ctx).ActiveWorkCount != 1 {
		t.Fatalf("expected one active item after restart")
	}
}

func TestRuntimeRestoresBurstLargerThanEventBuffer(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Workspace = t.TempDir()
	cfg.Engine.EventBuffer = 4
	ctx := context.Background()

	rt, err := app.Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	const n = 300
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		w, err := rt.Engine.CreateWork(ctx, engine.CreateParams{Title: fmt.Sprintf("burst %d", i), Assignee: "a"})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		ids = append(ids, w.ID)
	}
	last := ids[n-1]
	if _, err := rt.Engine.UpdateStatus(ctx, last, domain.StatusInProgress, engine.TransitionContext{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := rt.Engine.UpdateProgress(ctx, last, 100, ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	again, err := app.Open(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	restored := again.Engine.Search(ctx, registry.Criteria{})
	if len(restored) != n {
		t.Fatalf("expected %d restored items, got %d", n, len(restored))
	}
	for _, id := range ids {
		if _, err := again.Engine.Get(ctx, id); err != nil {
			t.Fatalf("item %s missing after restart: %v", id, err)
		}
	}
	got, _ := again.Engine.Get(ctx, last)
	if got.Status != domain.StatusCompleted || got.Progress != 100 {
		t.Fatalf("expected last item completed after restart, got %s at %d%%", got.Status, got.Progress)
	}
}

func TestRuntimeWithoutJournal(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Journal = false
	rt, err := app.Open(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if rt.Store != nil {
		t.Fatalf("expected no store without journal")
	}
}
