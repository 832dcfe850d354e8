package repo

import (
	"database/sql"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

// NewSalesTargets returns the sales_targets collection.
func NewSalesTargets(db *sql.DB) *Table[domain.SalesTarget] {
	return newTable(db, codec[domain.SalesTarget]{
		table:   remote.SalesTargets,
		columns: []string{"id", "owner_id", "period", "target_amount", "actual_amount", "created_at", "updated_at"},
		scan: func(row rowScanner) (domain.SalesTarget, error) {
			var s domain.SalesTarget
			err := row.Scan(&s.ID, &s.OwnerID, &s.Period, &s.TargetAmount, &s.ActualAmount, &s.CreatedAt, &s.UpdatedAt)
			return s, err
		},
		values: func(s domain.SalesTarget) []any {
			return []any{s.ID, s.OwnerID, s.Period, s.TargetAmount, s.ActualAmount, s.CreatedAt, s.UpdatedAt}
		},
		id:      func(s domain.SalesTarget) string { return s.ID },
		owner:   func(s domain.SalesTarget) string { return s.OwnerID },
		created: func(s domain.SalesTarget) string { return s.CreatedAt },
		stamp: func(s domain.SalesTarget, id, createdAt, updatedAt string) domain.SalesTarget {
			s.ID, s.CreatedAt, s.UpdatedAt = id, createdAt, updatedAt
			return s
		},
	})
}

// NewFocusModes returns the focus_modes collection.
func NewFocusModes(db *sql.DB) *Table[domain.FocusMode] {
	return newTable(db, codec[domain.FocusMode]{
		table: remote.FocusModes,
		columns: []string{"id", "owner_id", "title", "goal", "target_count", "completed_count", "is_active",
			"started_at", "ended_at", "created_at", "updated_at"},
		scan: func(row rowScanner) (domain.FocusMode, error) {
			var f domain.FocusMode
			var goal, endedAt sql.NullString
			err := row.Scan(&f.ID, &f.OwnerID, &f.Title, &goal, &f.TargetCount, &f.CompletedCount, &f.IsActive,
				&f.StartedAt, &endedAt, &f.CreatedAt, &f.UpdatedAt)
			if err != nil {
				return f, err
			}
			f.Goal = goal.String
			if endedAt.Valid {
				f.EndedAt = &endedAt.String
			}
			return f, nil
		},
		values: func(f domain.FocusMode) []any {
			return []any{f.ID, f.OwnerID, f.Title, nullable(f.Goal), f.TargetCount, f.CompletedCount, f.IsActive,
				f.StartedAt, nullableStringPtr(f.EndedAt), f.CreatedAt, f.UpdatedAt}
		},
		id:      func(f domain.FocusMode) string { return f.ID },
		owner:   func(f domain.FocusMode) string { return f.OwnerID },
		created: func(f domain.FocusMode) string { return f.CreatedAt },
		stamp: func(f domain.FocusMode, id, createdAt, updatedAt string) domain.FocusMode {
			f.ID, f.CreatedAt, f.UpdatedAt = id, createdAt, updatedAt
			if f.StartedAt == "" {
				f.StartedAt = createdAt
			}
			return f
		},
	})
}
