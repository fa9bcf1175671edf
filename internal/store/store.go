// Package store persists work-item snapshots, dependency edges and the event
// journal in SQLite so a restarted server can restore the engine.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"coordline/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

// EventRecord is one journal row.
type EventRecord struct {
	ID      int64  `json:"id"`
	Seq     int64  `json:"seq"`
	TS      string `json:"ts"`
	Type    string `json:"type"`
	WorkID  string `json:"work_id,omitempty"`
	Payload string `json:"payload"`
}

type EventFilters struct {
	Type   string
	WorkID string
	Cursor int64
	Limit  int
}

func (s Store) SaveWork(ctx context.Context, tx *sql.Tx, w domain.WorkItem) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal work %s: %w", w.ID, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO work_items(id,status,assignee,item_json,created_at,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET status=excluded.status, assignee=excluded.assignee, item_json=excluded.item_json, updated_at=excluded.updated_at`,
		w.ID, string(w.Status), w.Assignee, string(data), formatTime(w.CreatedAt), formatTime(w.UpdatedAt))
	return err
}

func (s Store) GetWork(ctx context.Context, id string) (domain.WorkItem, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT item_json FROM work_items WHERE id=?`, id).Scan(&raw)
	if err == sql.ErrNoRows {
		return domain.WorkItem{}, ErrNotFound
	}
	if err != nil {
		return domain.WorkItem{}, err
	}
	return decodeWork(raw)
}

// ListWork returns every stored item in creation order, optionally filtered
// by status.
func (s Store) ListWork(ctx context.Context, status domain.Status) ([]domain.WorkItem, error) {
	query := `SELECT item_json FROM work_items`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkItem
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		w, err := decodeWork(raw)
		if err != nil {
			return nil, err
		}
		res = append(res, w)
	}
	return res, rows.Err()
}

func (s Store) SaveEdge(ctx context.Context, tx *sql.Tx, e domain.Edge) error {
	_, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO edges(from_id,to_id,relationship,created_at) VALUES (?,?,?,?)`,
		e.From, e.To, string(e.Relationship), formatTime(e.CreatedAt))
	return err
}

func (s Store) ListEdges(ctx context.Context) ([]domain.Edge, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT from_id,to_id,relationship,created_at FROM edges ORDER BY created_at ASC, from_id ASC, to_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Edge
	for rows.Next() {
		var e domain.Edge
		var rel, created string
		if err := rows.Scan(&e.From, &e.To, &rel, &created); err != nil {
			return nil, err
		}
		e.Relationship = domain.Relationship(rel)
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("edge %s->%s: %w", e.From, e.To, err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// LatestEvents returns journal rows newest first. A positive cursor returns
// rows older than it.
func (s Store) LatestEvents(ctx context.Context, f EventFilters) ([]EventRecord, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.WorkID != "" {
		clauses = append(clauses, "work_id=?")
		args = append(args, f.WorkID)
	}
	if f.Cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Cursor)
	}
	query := fmt.Sprintf(`SELECT id,seq,ts,type,COALESCE(work_id,''),payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, f.Limit)
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.Seq, &e.TS, &e.Type, &e.WorkID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EventsAfter returns up to limit journal rows with id greater than after,
// oldest first.
func (s Store) EventsAfter(ctx context.Context, limit int, after int64) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.DB.QueryContext(ctx, `SELECT id,seq,ts,type,COALESCE(work_id,''),payload_json FROM events WHERE id>? ORDER BY id ASC LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.Seq, &e.TS, &e.Type, &e.WorkID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (s Store) LatestEventID(ctx context.Context) (int64, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx, `SELECT COALESCE(MAX(id),0) FROM events`).Scan(&id)
	return id, err
}

// LatestLoadMetric reads the load metric from the newest field-updated
// event. Returns ErrNotFound on an empty journal.
func (s Store) LatestLoadMetric(ctx context.Context) (float64, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx, `SELECT payload_json FROM events WHERE type='field-updated' ORDER BY id DESC LIMIT 1`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	var payload struct {
		LoadMetric *float64 `json:"load_metric"`
	}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return 0, fmt.Errorf("decode field-updated payload: %w", err)
	}
	if payload.LoadMetric == nil {
		return 0, ErrNotFound
	}
	return *payload.LoadMetric, nil
}

// LoadSnapshot reads everything a restart needs. The load metric is nil
// when the journal holds no field-updated event.
func (s Store) LoadSnapshot(ctx context.Context) ([]domain.WorkItem, []domain.Edge, *float64, error) {
	items, err := s.ListWork(ctx, "")
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list work: %w", err)
	}
	edges, err := s.ListEdges(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("list edges: %w", err)
	}
	metric, err := s.LatestLoadMetric(ctx)
	if errors.Is(err, ErrNotFound) {
		return items, edges, nil, nil
	}
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load metric: %w", err)
	}
	return items, edges, &metric, nil
}

func decodeWork(raw string) (domain.WorkItem, error) {
	var w domain.WorkItem
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return w, fmt.Errorf("decode work item: %w", err)
	}
	return w, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
