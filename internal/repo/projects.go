package repo

import (
	"database/sql"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

var projectColumns = []string{
	"id", "owner_id", "name", "description", "color", "order_index", "is_archived", "archived_at", "created_at", "updated_at",
}

func scanProject(row rowScanner) (domain.Project, error) {
	var p domain.Project
	var description, color, archivedAt sql.NullString
	var orderIndex sql.NullInt64
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &description, &color, &orderIndex, &p.IsArchived, &archivedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Description = description.String
	p.Color = color.String
	if orderIndex.Valid {
		idx := int(orderIndex.Int64)
		p.OrderIndex = &idx
	}
	if archivedAt.Valid {
		p.ArchivedAt = &archivedAt.String
	}
	return p, nil
}

// NewProjects returns the projects collection.
func NewProjects(db *sql.DB) *Table[domain.Project] {
	return newTable(db, codec[domain.Project]{
		table:      remote.Projects,
		columns:    projectColumns,
		archivable: true,
		scan:       scanProject,
		values: func(p domain.Project) []any {
			return []any{p.ID, p.OwnerID, p.Name, nullable(p.Description), nullable(p.Color), nullableIntPtr(p.OrderIndex),
				p.IsArchived, nullableStringPtr(p.ArchivedAt), p.CreatedAt, p.UpdatedAt}
		},
		id:      func(p domain.Project) string { return p.ID },
		owner:   func(p domain.Project) string { return p.OwnerID },
		created: func(p domain.Project) string { return p.CreatedAt },
		stamp: func(p domain.Project, id, createdAt, updatedAt string) domain.Project {
			p.ID, p.CreatedAt, p.UpdatedAt = id, createdAt, updatedAt
			return p
		},
	})
}
