package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

var taskColumns = []string{
	"id", "owner_id", "project_id", "title", "description", "start_date", "end_date", "status",
	"assignees_json", "order_index", "is_archived", "archived_at", "completed_at", "created_at", "updated_at",
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var projectID, description, startDate, endDate, assignees, archivedAt, completedAt sql.NullString
	var orderIndex sql.NullInt64
	err := row.Scan(&t.ID, &t.OwnerID, &projectID, &t.Title, &description, &startDate, &endDate, &t.Status,
		&assignees, &orderIndex, &t.IsArchived, &archivedAt, &completedAt, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return t, err
	}
	if projectID.Valid {
		t.ProjectID = &projectID.String
	}
	t.Description = description.String
	t.StartDate = startDate.String
	t.EndDate = endDate.String
	if assignees.Valid && assignees.String != "" {
		_ = json.Unmarshal([]byte(assignees.String), &t.Assignees)
	}
	if orderIndex.Valid {
		idx := int(orderIndex.Int64)
		t.OrderIndex = &idx
	}
	if archivedAt.Valid {
		t.ArchivedAt = &archivedAt.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func taskValues(t domain.Task) []any {
	return []any{
		t.ID, t.OwnerID, nullableStringPtr(t.ProjectID), t.Title, nullable(t.Description), nullable(t.StartDate),
		nullable(t.EndDate), t.Status, nullableJSON(t.Assignees), nullableIntPtr(t.OrderIndex), t.IsArchived,
		nullableStringPtr(t.ArchivedAt), nullableStringPtr(t.CompletedAt), t.CreatedAt, t.UpdatedAt,
	}
}

// NewTasks returns the tasks collection.
func NewTasks(db *sql.DB) *Table[domain.Task] {
	return newTable(db, codec[domain.Task]{
		table:      remote.Tasks,
		columns:    taskColumns,
		archivable: true,
		scan:       scanTask,
		values:     taskValues,
		id:         func(t domain.Task) string { return t.ID },
		owner:      func(t domain.Task) string { return t.OwnerID },
		created:    func(t domain.Task) string { return t.CreatedAt },
		stamp: func(t domain.Task, id, createdAt, updatedAt string) domain.Task {
			t.ID, t.CreatedAt, t.UpdatedAt = id, createdAt, updatedAt
			if t.Status == "" {
				t.Status = domain.StatusPending
			}
			return t
		},
	})
}

// detachProject clears project_id on every task of a project being deleted and
// logs an update per task, so subscribers rescope them.
func detachProject(tasks *Table[domain.Task]) func(ctx context.Context, tx *sql.Tx, ownerID, projectID string) error {
	return func(ctx context.Context, tx *sql.Tx, ownerID, projectID string) error {
		query := fmt.Sprintf(`SELECT %s FROM tasks WHERE owner_id=? AND project_id=?`, strings.Join(taskColumns, ","))
		rows, err := tx.QueryContext(ctx, query, ownerID, projectID)
		if err != nil {
			return err
		}
		var affected []domain.Task
		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				rows.Close()
				return err
			}
			affected = append(affected, task)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		now := tasks.now()
		for _, task := range affected {
			task.ProjectID = nil
			task.UpdatedAt = now
			if _, err := tx.ExecContext(ctx, `UPDATE tasks SET project_id=NULL, updated_at=? WHERE id=? AND owner_id=?`,
				now, task.ID, task.OwnerID); err != nil {
				return err
			}
			if err := tasks.Events.Append(ctx, tx, remote.ChangeUpdate, remote.Tasks, task.OwnerID, task.ID, task); err != nil {
				return err
			}
		}
		return nil
	}
}
