// Package app assembles a coordination runtime from config: the event bus,
// the optional SQLite journal and an engine restored from it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"coordline/internal/config"
	"coordline/internal/db"
	"coordline/internal/engine"
	"coordline/internal/events"
	"coordline/internal/migrate"
	"coordline/internal/store"
)

type Runtime struct {
	Config *config.Config
	Engine *engine.Engine
	Bus    *events.Bus
	// Store is nil when the journal is disabled.
	Store *store.Store

	conn    *sql.DB
	journal *store.Journal
	logger  *slog.Logger
}

// Open builds a runtime. With the journal enabled it opens the workspace
// database, migrates it and restores the engine from the last snapshot
// before any new event is published.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	rt := &Runtime{
		Config: cfg,
		Bus:    events.NewBus(cfg.Engine.EventBuffer, logger),
		logger: logger.With("component", "app"),
	}
	engineCfg := cfg.Engine
	rt.Engine = engine.New(engine.Options{Config: &engineCfg, Publisher: rt.Bus, Logger: logger})
	if !cfg.Storage.Journal {
		rt.logger.Info("journal disabled; state is in memory only")
		return rt, nil
	}

	conn, err := db.Open(db.Config{Workspace: cfg.Storage.Workspace})
	if err != nil {
		rt.Bus.Close()
		return nil, err
	}
	rt.conn = conn
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	st := store.Store{DB: conn}
	rt.Store = &st
	items, edges, metric, err := st.LoadSnapshot(ctx)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	if err := rt.Engine.Restore(ctx, engine.Snapshot{Items: items, Edges: edges, LoadMetric: metric}); err != nil {
		rt.Close()
		return nil, err
	}
	rt.journal = store.NewJournal(st, logger)
	rt.journal.Attach(rt.Bus)
	rt.logger.Info("runtime ready", "db", db.Path(cfg.Storage.Workspace), "schema_version", version, "items", len(items))
	return rt, nil
}

// Close drains the bus so every published event reaches the journal, then
// closes the database. It reports journal writes that failed during the run.
func (rt *Runtime) Close() error {
	rt.Bus.Close()
	if rt.Bus.Dropped() > 0 {
		rt.logger.Warn("advisory events dropped during run", "dropped", rt.Bus.Dropped())
	}
	var failed uint64
	if rt.journal != nil {
		failed = rt.journal.Failed()
	}
	if rt.conn != nil {
		if err := rt.conn.Close(); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("journal failed to record %d events", failed)
	}
	return nil
}
