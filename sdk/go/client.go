package coordlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Coordline HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type LogEntry struct {
	Kind string    `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

type Transition struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	At      time.Time         `json:"at"`
	Impact  int               `json:"impact"`
	Context map[string]string `json:"context,omitempty"`
}

// WorkItem represents the API work model.
type WorkItem struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Assignee    string            `json:"assignee"`
	Priority    string            `json:"priority"`
	Category    string            `json:"category"`
	Elevated    bool              `json:"elevated"`
	Status      string            `json:"status"`
	Progress    int               `json:"progress"`
	ImpactScore float64           `json:"impact_score"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Transitions []Transition      `json:"transitions"`
	Log         []LogEntry        `json:"log"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Edge struct {
	From         string    `json:"from"`
	To           string    `json:"to"`
	Relationship string    `json:"relationship"`
	CreatedAt    time.Time `json:"created_at"`
}

type LoadState struct {
	ActiveWorkCount  int     `json:"active_work_count"`
	CompletedToday   int     `json:"completed_today"`
	LoadMetric       float64 `json:"load_metric"`
	DominantCategory string  `json:"dominant_category,omitempty"`
	Rhythm           string  `json:"rhythm"`
}

type Health struct {
	Status          string  `json:"status"`
	Level           string  `json:"level"`
	LoadMetric      float64 `json:"load_metric"`
	Peak            bool    `json:"peak"`
	Capacity        int     `json:"capacity"`
	ActiveWorkCount int     `json:"active_work_count"`
	Utilization     float64 `json:"utilization"`
	Rhythm          string  `json:"rhythm"`
}

type Action struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	Minutes     int    `json:"minutes"`
	Target      int    `json:"target,omitempty"`
}

type Plan struct {
	Level        string   `json:"level"`
	Priority     string   `json:"priority"`
	Actions      []Action `json:"actions"`
	TotalMinutes int      `json:"total_minutes"`
}

type Admission struct {
	CanAccept       bool     `json:"can_accept"`
	Reason          string   `json:"reason,omitempty"`
	Level           string   `json:"level"`
	Capacity        int      `json:"capacity"`
	Recommendations []string `json:"recommendations"`
}

type Recommendation struct {
	Work   WorkItem `json:"work"`
	Score  int      `json:"score"`
	Reason string   `json:"reason"`
}

type Velocity struct {
	Today     int     `json:"today"`
	ThisWeek  int     `json:"this_week"`
	AvgPerDay float64 `json:"avg_per_day"`
}

type Stats struct {
	Total                    int            `json:"total"`
	ByStatus                 map[string]int `json:"by_status"`
	ByPriority               map[string]int `json:"by_priority"`
	ByCategory               map[string]int `json:"by_category"`
	Velocity                 Velocity       `json:"velocity"`
	AvgCompletionSeconds     float64        `json:"avg_completion_seconds"`
	LoadState                LoadState      `json:"load_state"`
	ElevatedCount            int            `json:"elevated_count"`
	AvgImpact                float64        `json:"avg_impact"`
	CategoryAlignmentPercent float64        `json:"category_alignment_percent"`
}

type Schedule struct {
	WorkID           string    `json:"work_id"`
	RecommendedStart time.Time `json:"recommended_start"`
	Window           string    `json:"time_window"`
	WorkMinutes      int       `json:"work_minutes"`
	RestMinutes      int       `json:"rest_minutes"`
	Alignment        int       `json:"field_alignment"`
	Reason           string    `json:"reason"`
}

type Window struct {
	Name       string   `json:"name"`
	StartHour  int      `json:"start_hour"`
	EndHour    int      `json:"end_hour"`
	Categories []string `json:"categories"`
	WorkTypes  []string `json:"work_types"`
}

type Worker struct {
	ID         string  `json:"id"`
	Specialty  string  `json:"specialty,omitempty"`
	Experience float64 `json:"experience"`
}

type Assignment struct {
	WorkID   string `json:"work_id"`
	WorkerID string `json:"worker_id"`
	Score    int    `json:"score"`
}

// Event represents a journal row.
type Event struct {
	ID      int64          `json:"id"`
	Seq     int64          `json:"seq"`
	TS      string         `json:"ts"`
	Type    string         `json:"type"`
	WorkID  string         `json:"work_id,omitempty"`
	Payload map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateWork are the inputs of CreateWork; empty fields take server defaults.
type CreateWork struct {
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Assignee    string            `json:"assignee"`
	Priority    string            `json:"priority,omitempty"`
	Category    string            `json:"category,omitempty"`
	Elevated    bool              `json:"elevated,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// WorkFilter narrows ListWork. Empty fields do not filter.
type WorkFilter struct {
	Status   string
	Priority string
	Category string
	Assignee string
	Elevated *bool
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateWork(ctx context.Context, in CreateWork) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, "work", in, &resp)
	return resp, err
}

func (c *Client) ListWork(ctx context.Context, f WorkFilter) ([]WorkItem, error) {
	q := url.Values{}
	setQuery(q, "status", f.Status)
	setQuery(q, "priority", f.Priority)
	setQuery(q, "category", f.Category)
	setQuery(q, "assignee", f.Assignee)
	if f.Elevated != nil {
		q.Set("elevated", fmt.Sprintf("%t", *f.Elevated))
	}
	var resp struct {
		Items []WorkItem `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("work", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) GetWork(ctx context.Context, id string) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodGet, "work/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// UpdateStatus transitions a work item. blockerID is optional.
func (c *Client) UpdateStatus(ctx context.Context, id, status, reason, blockerID string) (WorkItem, error) {
	body := map[string]any{"status": status}
	if reason != "" {
		body["reason"] = reason
	}
	if blockerID != "" {
		body["blocker_id"] = blockerID
	}
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("work/%s/status", url.PathEscape(id)), body, &resp)
	return resp, err
}

func (c *Client) UpdateProgress(ctx context.Context, id string, progress int, notes string) (WorkItem, error) {
	body := map[string]any{"progress": progress}
	if notes != "" {
		body["notes"] = notes
	}
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("work/%s/progress", url.PathEscape(id)), body, &resp)
	return resp, err
}

func (c *Client) AssignWork(ctx context.Context, id, assignee string) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("work/%s/assign", url.PathEscape(id)), map[string]any{"assignee": assignee}, &resp)
	return resp, err
}

// CreateFlow declares from -> to. An empty relationship means blocks.
func (c *Client) CreateFlow(ctx context.Context, from, to, relationship string) (Edge, error) {
	body := map[string]any{"from": from, "to": to}
	if relationship != "" {
		body["relationship"] = relationship
	}
	var resp Edge
	err := c.do(ctx, http.MethodPost, "flows", body, &resp)
	return resp, err
}

// Edges lists every edge, or those touching workID when set.
func (c *Client) Edges(ctx context.Context, workID string) ([]Edge, error) {
	endpoint := "flows"
	if workID != "" {
		endpoint = fmt.Sprintf("work/%s/edges", url.PathEscape(workID))
	}
	var resp struct {
		Items []Edge `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) Recommendations(ctx context.Context, workerID string) ([]Recommendation, error) {
	q := url.Values{}
	setQuery(q, "worker_id", workerID)
	var resp struct {
		Items []Recommendation `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, withQuery("recommendations", q), nil, &resp)
	return resp.Items, err
}

func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var resp Stats
	err := c.do(ctx, http.MethodGet, "stats", nil, &resp)
	return resp, err
}

func (c *Client) FieldHealth(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "field/health", nil, &resp)
	return resp, err
}

func (c *Client) Load(ctx context.Context) (LoadState, error) {
	var resp LoadState
	err := c.do(ctx, http.MethodGet, "field/load", nil, &resp)
	return resp, err
}

func (c *Client) ObserveLoad(ctx context.Context, metric float64) (LoadState, error) {
	var resp LoadState
	err := c.do(ctx, http.MethodPut, "field/load", map[string]any{"metric": metric}, &resp)
	return resp, err
}

func (c *Client) RestorationPlan(ctx context.Context) (Plan, error) {
	var resp Plan
	err := c.do(ctx, http.MethodGet, "field/restoration-plan", nil, &resp)
	return resp, err
}

func (c *Client) CanAccept(ctx context.Context, in CreateWork) (Admission, error) {
	var resp Admission
	err := c.do(ctx, http.MethodPost, "work/admission", in, &resp)
	return resp, err
}

func (c *Client) Distribute(ctx context.Context, workers []Worker) ([]Assignment, error) {
	var resp struct {
		Items []Assignment `json:"items"`
	}
	err := c.do(ctx, http.MethodPost, "distribution", map[string]any{"workers": workers}, &resp)
	return resp.Items, err
}

func (c *Client) Schedules(ctx context.Context) ([]Schedule, error) {
	var resp struct {
		Items []Schedule `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "schedules", nil, &resp)
	return resp.Items, err
}

func (c *Client) CurrentWindow(ctx context.Context) (Window, error) {
	var resp Window
	err := c.do(ctx, http.MethodGet, "schedules/window", nil, &resp)
	return resp, err
}

// EventsPage returns a page of journaled events, newest first.
func (c *Client) EventsPage(ctx context.Context, workID string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	setQuery(q, "work_id", workID)
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	setQuery(q, "cursor", cursor)
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	basePath := strings.Trim(c.BasePath, "/")
	root := strings.TrimRight(c.BaseURL, "/")
	if basePath == "" {
		return root
	}
	return root + "/" + basePath
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
