package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"coordline/internal/events"
)

// Journal is a bus subscriber that writes every event, plus the work or
// edge snapshot it carries, in one transaction.
type Journal struct {
	Store  Store
	Writer events.Writer
	Logger *slog.Logger

	failed atomic.Uint64
}

func NewJournal(s Store, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{Store: s, Logger: logger.With("component", "journal")}
}

// Attach subscribes the journal to every event type. The subscription is
// reliable, so a burst slows publishers down rather than losing rows.
func (j *Journal) Attach(bus *events.Bus) func() {
	return bus.SubscribeReliable(events.All, j.Handle)
}

// Handle records ev. Failures are logged and counted; the bus keeps
// delivering.
func (j *Journal) Handle(ev events.Event) {
	if err := j.Record(context.Background(), ev); err != nil {
		n := j.failed.Add(1)
		j.Logger.Error("journal write failed", "type", ev.Type, "seq", ev.Seq, "work_id", ev.WorkID, "failed_total", n, "error", err)
	}
}

// Failed is the number of events that could not be written.
func (j *Journal) Failed() uint64 {
	return j.failed.Load()
}

func (j *Journal) Record(ctx context.Context, ev events.Event) error {
	tx, err := j.Store.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := j.Writer.Append(ctx, tx, ev); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	if ev.Work != nil {
		if err := j.Store.SaveWork(ctx, tx, *ev.Work); err != nil {
			return fmt.Errorf("save work: %w", err)
		}
	}
	if ev.Edge != nil {
		if err := j.Store.SaveEdge(ctx, tx, *ev.Edge); err != nil {
			return fmt.Errorf("save edge: %w", err)
		}
	}
	return tx.Commit()
}
