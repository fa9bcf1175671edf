package domain

import "time"

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Weight is the base score of a priority: high 3, medium 2, low 1.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	default:
		return 1
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Category classifies the domain of a work item.
type Category string

const (
	CategoryCoherence    Category = "coherence"
	CategoryAgency       Category = "agency"
	CategoryMutuality    Category = "mutuality"
	CategoryResonance    Category = "resonance"
	CategoryVitality     Category = "vitality"
	CategoryNovelty      Category = "novelty"
	CategoryTransparency Category = "transparency"
)

// Categories lists every category in canonical order. Tie-breaks that pick a
// single category follow this order.
func Categories() []Category {
	return []Category{
		CategoryCoherence,
		CategoryAgency,
		CategoryMutuality,
		CategoryResonance,
		CategoryVitality,
		CategoryNovelty,
		CategoryTransparency,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled}
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusBlocked, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type LogKind string

const (
	LogEmergence    LogKind = "emergence"
	LogCelebration  LogKind = "celebration"
	LogBoundary     LogKind = "boundary"
	LogIntegration  LogKind = "integration"
	LogTransmission LogKind = "transmission"
)

type Relationship string

const (
	RelBlocks  Relationship = "blocks"
	RelRelates Relationship = "relates"
)

func (r Relationship) Valid() bool {
	return r == RelBlocks || r == RelRelates
}

type Transition struct {
	From    Status            `json:"from"`
	To      Status            `json:"to"`
	At      time.Time         `json:"at" format:"date-time"`
	Context map[string]string `json:"context,omitempty"`
	Impact  int               `json:"impact"`
}

type LogEntry struct {
	Kind LogKind   `json:"kind" enum:"emergence,celebration,boundary,integration,transmission"`
	Text string    `json:"text"`
	At   time.Time `json:"at" format:"date-time"`
}

type ProgressNote struct {
	Progress int       `json:"progress"`
	Notes    string    `json:"notes"`
	At       time.Time `json:"at" format:"date-time"`
}

type WorkItem struct {
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	Assignee      string            `json:"assignee"`
	Priority      Priority          `json:"priority" enum:"high,medium,low"`
	Category      Category          `json:"category" enum:"coherence,agency,mutuality,resonance,vitality,novelty,transparency"`
	Elevated      bool              `json:"elevated"`
	Status        Status            `json:"status" enum:"pending,in_progress,blocked,completed,cancelled"`
	Progress      int               `json:"progress" minimum:"0" maximum:"100"`
	ImpactScore   float64           `json:"impact_score"`
	CreatedAt     time.Time         `json:"created_at" format:"date-time"`
	UpdatedAt     time.Time         `json:"updated_at" format:"date-time"`
	StartedAt     *time.Time        `json:"started_at,omitempty" format:"date-time"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" format:"date-time"`
	Transitions   []Transition      `json:"transitions"`
	Log           []LogEntry        `json:"log"`
	ProgressNotes []ProgressNote    `json:"progress_notes,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so stored items never share slices or maps with callers.
func (w WorkItem) Clone() WorkItem {
	out := w
	if w.StartedAt != nil {
		t := *w.StartedAt
		out.StartedAt = &t
	}
	if w.CompletedAt != nil {
		t := *w.CompletedAt
		out.CompletedAt = &t
	}
	if w.Transitions != nil {
		out.Transitions = make([]Transition, len(w.Transitions))
		for i, tr := range w.Transitions {
			tr.Context = cloneStringMap(tr.Context)
			out.Transitions[i] = tr
		}
	}
	if w.Log != nil {
		out.Log = append([]LogEntry(nil), w.Log...)
	}
	if w.ProgressNotes != nil {
		out.ProgressNotes = append([]ProgressNote(nil), w.ProgressNotes...)
	}
	out.Metadata = cloneStringMap(w.Metadata)
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type Rhythm struct {
	WorkPeriod time.Duration `json:"work_period"`
	RestPeriod time.Duration `json:"rest_period"`
}

type Schedule struct {
	WorkID           string    `json:"work_id"`
	RecommendedStart time.Time `json:"recommended_start" format:"date-time"`
	Window           string    `json:"time_window"`
	Rhythm           Rhythm    `json:"rhythm"`
	Alignment        int       `json:"field_alignment" minimum:"0" maximum:"100"`
	Reason           string    `json:"reason"`
}

// Pace names the overall tempo of the system derived from the number of active items.
type Pace string

const (
	PaceRest    Pace = "rest"
	PaceNatural Pace = "natural"
	PaceFlowing Pace = "flowing"
	PaceIntense Pace = "intense"
)

// PaceFor maps an active item count to a pace: 0 rest, up to 3 natural,
// up to 5 flowing, above that intense.
func PaceFor(active int) Pace {
	switch {
	case active == 0:
		return PaceRest
	case active <= 3:
		return PaceNatural
	case active <= 5:
		return PaceFlowing
	default:
		return PaceIntense
	}
}

type LoadState struct {
	ActiveWorkCount  int      `json:"active_work_count"`
	CompletedToday   int      `json:"completed_today"`
	LoadMetric       float64  `json:"load_metric" minimum:"0" maximum:"100"`
	DominantCategory Category `json:"dominant_category,omitempty"`
	Rhythm           Pace     `json:"rhythm" enum:"rest,natural,flowing,intense"`
}

type Edge struct {
	From         string       `json:"from"`
	To           string       `json:"to"`
	Relationship Relationship `json:"relationship" enum:"blocks,relates"`
	CreatedAt    time.Time    `json:"created_at" format:"date-time"`
}
