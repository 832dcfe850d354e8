package domain

import (
	"time"
)

const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// DateLayout is the storage format for start/end dates.
const DateLayout = "2006-01-02"

// Entity is the contract shared by orderable, archivable rows (tasks, projects).
type Entity[T any] interface {
	EntityID() string
	Owner() string
	Scope() string
	Order() *int
	Archived() bool
	Created() time.Time
	WithOrder(idx int) T
	WithArchived(archived bool, at *string) T
}

type Task struct {
	ID          string   `json:"id"`
	OwnerID     string   `json:"owner_id"`
	ProjectID   *string  `json:"project_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	StartDate   string   `json:"start_date,omitempty" format:"date"`
	EndDate     string   `json:"end_date,omitempty" format:"date"`
	Status      string   `json:"status" enum:"pending,completed"`
	Assignees   []string `json:"assignees,omitempty"`
	OrderIndex  *int     `json:"order_index,omitempty"`
	IsArchived  bool     `json:"is_archived"`
	ArchivedAt  *string  `json:"archived_at,omitempty" format:"date-time"`
	CompletedAt *string  `json:"completed_at,omitempty" format:"date-time"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

func (t Task) EntityID() string   { return t.ID }
func (t Task) Owner() string      { return t.OwnerID }
func (t Task) Order() *int        { return t.OrderIndex }
func (t Task) Archived() bool     { return t.IsArchived }
func (t Task) Created() time.Time { return ParseTime(t.CreatedAt) }

func (t Task) Scope() string {
	if t.ProjectID == nil {
		return ""
	}
	return *t.ProjectID
}

func (t Task) WithOrder(idx int) Task {
	t.OrderIndex = &idx
	return t
}

func (t Task) WithArchived(archived bool, at *string) Task {
	t.IsArchived = archived
	t.ArchivedAt = at
	return t
}

// Start returns the parsed start date, zero if unset or malformed.
func (t Task) Start() time.Time { return ParseDate(t.StartDate) }

// End returns the parsed end date, zero if unset or malformed.
func (t Task) End() time.Time { return ParseDate(t.EndDate) }

type Project struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Color       string  `json:"color,omitempty"`
	OrderIndex  *int    `json:"order_index,omitempty"`
	IsArchived  bool    `json:"is_archived"`
	ArchivedAt  *string `json:"archived_at,omitempty" format:"date-time"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

func (p Project) EntityID() string   { return p.ID }
func (p Project) Owner() string      { return p.OwnerID }
func (p Project) Scope() string      { return "" }
func (p Project) Order() *int        { return p.OrderIndex }
func (p Project) Archived() bool     { return p.IsArchived }
func (p Project) Created() time.Time { return ParseTime(p.CreatedAt) }

func (p Project) WithOrder(idx int) Project {
	p.OrderIndex = &idx
	return p
}

func (p Project) WithArchived(archived bool, at *string) Project {
	p.IsArchived = archived
	p.ArchivedAt = at
	return p
}

// SalesTarget is a monthly revenue goal shown next to the board.
type SalesTarget struct {
	ID           string  `json:"id"`
	OwnerID      string  `json:"owner_id"`
	Period       string  `json:"period" example:"2024-07"`
	TargetAmount float64 `json:"target_amount"`
	ActualAmount float64 `json:"actual_amount"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
	UpdatedAt    string  `json:"updated_at" format:"date-time"`
}

// Achievement returns actual/target as a percentage; 0 when no target is set.
func (s SalesTarget) Achievement() float64 {
	if s.TargetAmount <= 0 {
		return 0
	}
	return s.ActualAmount / s.TargetAmount * 100
}

// FocusMode tracks a single goal the owner is concentrating on.
type FocusMode struct {
	ID             string  `json:"id"`
	OwnerID        string  `json:"owner_id"`
	Title          string  `json:"title"`
	Goal           string  `json:"goal,omitempty"`
	TargetCount    int     `json:"target_count"`
	CompletedCount int     `json:"completed_count"`
	IsActive       bool    `json:"is_active"`
	StartedAt      string  `json:"started_at" format:"date-time"`
	EndedAt        *string `json:"ended_at,omitempty" format:"date-time"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// Progress returns completion in [0,100].
func (f FocusMode) Progress() int {
	if f.TargetCount <= 0 {
		return 0
	}
	p := f.CompletedCount * 100 / f.TargetCount
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// TabOrder is a persisted Sequence for one owner and optional scope.
type TabOrder struct {
	OwnerID   string   `json:"owner_id"`
	Scope     string   `json:"scope,omitempty"`
	IDs       []string `json:"ids"`
	UpdatedAt string   `json:"updated_at" format:"date-time"`
}

// Sequence is a user-chosen display order of entity ids.
type Sequence []string

func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseTime parses an RFC3339 timestamp, returning the zero time on failure.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func ParseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
