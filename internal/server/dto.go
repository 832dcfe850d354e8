package server

import (
	"net/http"

	"taskdeck/internal/domain"
)

// Request payloads. Server-managed fields (owner_id, timestamps) are accepted
// so a stored row can be sent back as-is, and are overwritten.

type TaskRequest struct {
	ID          string   `json:"id,omitempty"`
	OwnerID     string   `json:"owner_id,omitempty"`
	ProjectID   *string  `json:"project_id,omitempty"`
	Title       string   `json:"title" minLength:"1"`
	Description string   `json:"description,omitempty"`
	StartDate   string   `json:"start_date,omitempty" format:"date"`
	EndDate     string   `json:"end_date,omitempty" format:"date"`
	Status      string   `json:"status,omitempty"`
	Assignees   []string `json:"assignees,omitempty"`
	OrderIndex  *int     `json:"order_index,omitempty"`
	IsArchived  bool     `json:"is_archived,omitempty"`
	ArchivedAt  *string  `json:"archived_at,omitempty"`
	CompletedAt *string  `json:"completed_at,omitempty"`
	CreatedAt   string   `json:"created_at,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
}

func (r TaskRequest) toDomain(id, owner string) (domain.Task, error) {
	status := r.Status
	if status == "" {
		status = domain.StatusPending
	}
	if status != domain.StatusPending && status != domain.StatusCompleted {
		return domain.Task{}, newAPIError(http.StatusBadRequest, "bad_request", "status must be pending or completed",
			map[string]any{"field": "status"})
	}
	if r.StartDate != "" && r.EndDate != "" && r.EndDate < r.StartDate {
		return domain.Task{}, newAPIError(http.StatusBadRequest, "bad_request", "end_date before start_date",
			map[string]any{"field": "end_date"})
	}
	if id == "" {
		id = r.ID
	}
	projectID := r.ProjectID
	if projectID != nil && *projectID == "" {
		projectID = nil
	}
	return domain.Task{
		ID:          id,
		OwnerID:     owner,
		ProjectID:   projectID,
		Title:       r.Title,
		Description: r.Description,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Status:      status,
		Assignees:   r.Assignees,
		OrderIndex:  r.OrderIndex,
		IsArchived:  r.IsArchived,
		ArchivedAt:  archivedAt(r.IsArchived, r.ArchivedAt),
		CompletedAt: completedAt(status, r.CompletedAt),
	}, nil
}

type ProjectRequest struct {
	ID          string  `json:"id,omitempty"`
	OwnerID     string  `json:"owner_id,omitempty"`
	Name        string  `json:"name" minLength:"1"`
	Description string  `json:"description,omitempty"`
	Color       string  `json:"color,omitempty" example:"#3b82f6"`
	OrderIndex  *int    `json:"order_index,omitempty"`
	IsArchived  bool    `json:"is_archived,omitempty"`
	ArchivedAt  *string `json:"archived_at,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
	UpdatedAt   string  `json:"updated_at,omitempty"`
}

func (r ProjectRequest) toDomain(id, owner string) (domain.Project, error) {
	if id == "" {
		id = r.ID
	}
	return domain.Project{
		ID:          id,
		OwnerID:     owner,
		Name:        r.Name,
		Description: r.Description,
		Color:       r.Color,
		OrderIndex:  r.OrderIndex,
		IsArchived:  r.IsArchived,
		ArchivedAt:  archivedAt(r.IsArchived, r.ArchivedAt),
	}, nil
}

type SalesTargetRequest struct {
	ID           string  `json:"id,omitempty"`
	OwnerID      string  `json:"owner_id,omitempty"`
	Period       string  `json:"period" pattern:"^[0-9]{4}-[0-9]{2}$" example:"2024-07"`
	TargetAmount float64 `json:"target_amount" minimum:"0"`
	ActualAmount float64 `json:"actual_amount" minimum:"0"`
	CreatedAt    string  `json:"created_at,omitempty"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

func (r SalesTargetRequest) toDomain(id, owner string) (domain.SalesTarget, error) {
	if id == "" {
		id = r.ID
	}
	return domain.SalesTarget{
		ID:           id,
		OwnerID:      owner,
		Period:       r.Period,
		TargetAmount: r.TargetAmount,
		ActualAmount: r.ActualAmount,
	}, nil
}

type FocusModeRequest struct {
	ID             string  `json:"id,omitempty"`
	OwnerID        string  `json:"owner_id,omitempty"`
	Title          string  `json:"title" minLength:"1"`
	Goal           string  `json:"goal,omitempty"`
	TargetCount    int     `json:"target_count" minimum:"0"`
	CompletedCount int     `json:"completed_count" minimum:"0"`
	IsActive       bool    `json:"is_active"`
	StartedAt      string  `json:"started_at,omitempty"`
	EndedAt        *string `json:"ended_at,omitempty"`
	CreatedAt      string  `json:"created_at,omitempty"`
	UpdatedAt      string  `json:"updated_at,omitempty"`
}

func (r FocusModeRequest) toDomain(id, owner string) (domain.FocusMode, error) {
	if id == "" {
		id = r.ID
	}
	return domain.FocusMode{
		ID:             id,
		OwnerID:        owner,
		Title:          r.Title,
		Goal:           r.Goal,
		TargetCount:    r.TargetCount,
		CompletedCount: r.CompletedCount,
		IsActive:       r.IsActive,
		StartedAt:      r.StartedAt,
		EndedAt:        r.EndedAt,
	}, nil
}

type TabOrderRequest struct {
	OwnerID   string   `json:"owner_id,omitempty"`
	Scope     string   `json:"scope,omitempty"`
	IDs       []string `json:"ids"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

func archivedAt(archived bool, at *string) *string {
	if !archived {
		return nil
	}
	return at
}

func completedAt(status string, at *string) *string {
	if status != domain.StatusCompleted {
		return nil
	}
	return at
}
