package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends events to the SQLite events table inside a caller-owned
// transaction.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, ev Event) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	at := ev.At
	if at.IsZero() {
		at = w.Now()
	}
	payload := ev.Data
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(seq,ts,type,work_id,payload_json) VALUES (?,?,?,?,?)`,
		int64(ev.Seq), at.UTC().Format(time.RFC3339Nano), string(ev.Type), nullable(ev.WorkID), string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
