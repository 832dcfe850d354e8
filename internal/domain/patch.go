package domain

import "time"

// TaskPatch holds a partial task update. Nil fields are left untouched.
type TaskPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	ProjectID   *string   `json:"project_id,omitempty"`
	StartDate   *string   `json:"start_date,omitempty"`
	EndDate     *string   `json:"end_date,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Assignees   *[]string `json:"assignees,omitempty"`
	IsArchived  *bool     `json:"is_archived,omitempty"`
}

// Apply returns t with the patch applied. A pending->completed transition stamps
// CompletedAt; completed->pending clears it.
func (p TaskPatch) Apply(t Task, now time.Time) Task {
	ts := FormatTime(now)
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.ProjectID != nil {
		if *p.ProjectID == "" {
			t.ProjectID = nil
		} else {
			id := *p.ProjectID
			t.ProjectID = &id
		}
	}
	if p.StartDate != nil {
		t.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		t.EndDate = *p.EndDate
	}
	if p.Assignees != nil {
		t.Assignees = append([]string(nil), (*p.Assignees)...)
	}
	if p.Status != nil && *p.Status != t.Status {
		switch {
		case t.Status == StatusPending && *p.Status == StatusCompleted:
			t.CompletedAt = &ts
		case t.Status == StatusCompleted && *p.Status == StatusPending:
			t.CompletedAt = nil
		}
		t.Status = *p.Status
	}
	if p.IsArchived != nil && *p.IsArchived != t.IsArchived {
		t.IsArchived = *p.IsArchived
		if t.IsArchived {
			t.ArchivedAt = &ts
		} else {
			t.ArchivedAt = nil
		}
	}
	t.UpdatedAt = ts
	return t
}

type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsArchived  *bool   `json:"is_archived,omitempty"`
}

func (p ProjectPatch) Apply(pr Project, now time.Time) Project {
	ts := FormatTime(now)
	if p.Name != nil {
		pr.Name = *p.Name
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	if p.Color != nil {
		pr.Color = *p.Color
	}
	if p.IsArchived != nil && *p.IsArchived != pr.IsArchived {
		pr.IsArchived = *p.IsArchived
		if pr.IsArchived {
			pr.ArchivedAt = &ts
		} else {
			pr.ArchivedAt = nil
		}
	}
	pr.UpdatedAt = ts
	return pr
}
