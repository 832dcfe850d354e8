package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

// Repo bundles the SQLite collections behind one database handle.
type Repo struct {
	DB           *sql.DB
	Tasks        *Table[domain.Task]
	Projects     *Table[domain.Project]
	SalesTargets *Table[domain.SalesTarget]
	FocusModes   *Table[domain.FocusMode]
	Now          func() time.Time
}

var ErrNotFound = remote.ErrNotFound

var _ remote.OrderStore = Repo{}

func New(db *sql.DB) Repo {
	tasks := NewTasks(db)
	projects := NewProjects(db)
	projects.beforeDelete = detachProject(tasks)
	return Repo{
		DB:           db,
		Tasks:        tasks,
		Projects:     projects,
		SalesTargets: NewSalesTargets(db),
		FocusModes:   NewFocusModes(db),
		Now:          time.Now,
	}
}

func (r Repo) now() string {
	if r.Now != nil {
		return domain.FormatTime(r.Now())
	}
	return domain.FormatTime(time.Now())
}

func (r Repo) GetOrder(ctx context.Context, ownerID, scope string) (domain.TabOrder, error) {
	o := domain.TabOrder{OwnerID: ownerID, Scope: scope}
	var ids string
	err := r.DB.QueryRowContext(ctx, `SELECT ids_json,updated_at FROM tab_orders WHERE owner_id=? AND scope=?`, ownerID, scope).
		Scan(&ids, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	if err != nil {
		return o, classify(err)
	}
	if err := json.Unmarshal([]byte(ids), &o.IDs); err != nil {
		return o, fmt.Errorf("decode tab order: %w", err)
	}
	return o, nil
}

func (r Repo) InsertOrder(ctx context.Context, o domain.TabOrder) error {
	if o.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	data, err := json.Marshal(idsOrEmpty(o.IDs))
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO tab_orders(owner_id,scope,ids_json,updated_at) VALUES (?,?,?,?)`,
		o.OwnerID, o.Scope, string(data), r.now())
	return classify(err)
}

func (r Repo) UpdateOrder(ctx context.Context, o domain.TabOrder) error {
	data, err := json.Marshal(idsOrEmpty(o.IDs))
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE tab_orders SET ids_json=?, updated_at=? WHERE owner_id=? AND scope=?`,
		string(data), r.now(), o.OwnerID, o.Scope)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTasksByStatus returns active task counts keyed by status.
func (r Repo) CountTasksByStatus(ctx context.Context, ownerID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks WHERE owner_id=? AND is_archived=0 GROUP BY status`, ownerID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	counts := map[string]int{domain.StatusPending: 0, domain.StatusCompleted: 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func idsOrEmpty(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableJSON(v []string) any {
	if len(v) == 0 {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}
