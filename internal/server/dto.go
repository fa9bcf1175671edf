package server

import (
	"encoding/json"
	"time"

	"coordline/internal/capacity"
	"coordline/internal/domain"
	"coordline/internal/engine"
	"coordline/internal/scheduler"
	"coordline/internal/store"
)

// Request payloads

type CreateWorkRequest struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Assignee    string            `json:"assignee"`
	Priority    string            `json:"priority,omitempty" enum:"high,medium,low"`
	Category    string            `json:"category,omitempty" enum:"coherence,agency,mutuality,resonance,vitality,novelty,transparency"`
	Elevated    bool              `json:"elevated,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func (r CreateWorkRequest) params() engine.CreateParams {
	return engine.CreateParams{
		Title:       r.Title,
		Description: r.Description,
		Assignee:    r.Assignee,
		Priority:    domain.Priority(r.Priority),
		Category:    domain.Category(r.Category),
		Elevated:    r.Elevated,
		Metadata:    r.Metadata,
	}
}

type UpdateStatusRequest struct {
	Status    string `json:"status" enum:"pending,in_progress,blocked,completed,cancelled"`
	Reason    string `json:"reason,omitempty"`
	BlockerID string `json:"blocker_id,omitempty"`
}

type UpdateProgressRequest struct {
	Progress int    `json:"progress"`
	Notes    string `json:"notes,omitempty"`
}

type AssignRequest struct {
	Assignee string `json:"assignee"`
}

type CreateFlowRequest struct {
	From         string `json:"from"`
	To           string `json:"to"`
	Relationship string `json:"relationship,omitempty" enum:"blocks,relates"`
}

type ObserveLoadRequest struct {
	Metric float64 `json:"metric"`
}

type DistributeRequest struct {
	Workers []capacity.Worker `json:"workers"`
}

// Response payloads

type WorkList struct {
	Items []domain.WorkItem `json:"items"`
}

type EdgeList struct {
	Items []domain.Edge `json:"items"`
}

type RecommendationList struct {
	Items []engine.Recommendation `json:"items"`
}

type DistributionList struct {
	Items []capacity.Assignment `json:"items"`
}

type ScheduleResponse struct {
	WorkID           string    `json:"work_id"`
	RecommendedStart time.Time `json:"recommended_start" format:"date-time"`
	Window           string    `json:"time_window"`
	WorkMinutes      int       `json:"work_minutes"`
	RestMinutes      int       `json:"rest_minutes"`
	Alignment        int       `json:"field_alignment"`
	Reason           string    `json:"reason"`
}

type ScheduleList struct {
	Items []ScheduleResponse `json:"items"`
}

type WindowResponse struct {
	Name       string            `json:"name"`
	StartHour  int               `json:"start_hour"`
	EndHour    int               `json:"end_hour"`
	Categories []domain.Category `json:"categories"`
	WorkTypes  []string          `json:"work_types"`
}

type EventResponse struct {
	ID         int64           `json:"id"`
	Seq        int64           `json:"seq"`
	TS         string          `json:"ts"`
	Type       string          `json:"type"`
	WorkID     string          `json:"work_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	PayloadRaw string          `json:"payload_raw,omitempty"`
}

type EventList struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Outputs

type workPath struct {
	ID string `path:"id"`
}

type WorkOutput struct {
	Body domain.WorkItem `json:"body"`
}

type WorkListOutput struct {
	Body WorkList `json:"body"`
}

type EdgeOutput struct {
	Body domain.Edge `json:"body"`
}

type EdgeListOutput struct {
	Body EdgeList `json:"body"`
}

type AdmissionOutput struct {
	Body capacity.Admission `json:"body"`
}

type RecommendationsOutput struct {
	Body RecommendationList `json:"body"`
}

type DistributionOutput struct {
	Body DistributionList `json:"body"`
}

type LoadOutput struct {
	Body domain.LoadState `json:"body"`
}

type HealthOutput struct {
	Body capacity.Health `json:"body"`
}

type PlanOutput struct {
	Body capacity.Plan `json:"body"`
}

type StatsOutput struct {
	Body engine.Stats `json:"body"`
}

type ScheduleListOutput struct {
	Body ScheduleList `json:"body"`
}

type WindowOutput struct {
	Body WindowResponse `json:"body"`
}

type EventListOutput struct {
	Body EventList `json:"body"`
}

func scheduleResponse(s domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		WorkID:           s.WorkID,
		RecommendedStart: s.RecommendedStart,
		Window:           s.Window,
		WorkMinutes:      int(s.Rhythm.WorkPeriod / time.Minute),
		RestMinutes:      int(s.Rhythm.RestPeriod / time.Minute),
		Alignment:        s.Alignment,
		Reason:           s.Reason,
	}
}

func windowResponse(w scheduler.Window) WindowResponse {
	types := make([]string, 0, len(w.WorkTypes))
	for _, t := range w.WorkTypes {
		types = append(types, string(t))
	}
	cats := w.Categories
	if cats == nil {
		cats = []domain.Category{}
	}
	return WindowResponse{Name: w.Name, StartHour: w.StartHour, EndHour: w.EndHour, Categories: cats, WorkTypes: types}
}

func eventResponse(evt store.EventRecord) EventResponse {
	resp := EventResponse{
		ID:      evt.ID,
		Seq:     evt.Seq,
		TS:      evt.TS,
		Type:    evt.Type,
		WorkID:  evt.WorkID,
		Payload: json.RawMessage("{}"),
	}
	if evt.Payload != "" {
		if json.Valid([]byte(evt.Payload)) {
			resp.Payload = json.RawMessage(evt.Payload)
		} else {
			resp.PayloadRaw = evt.Payload
		}
	}
	return resp
}
