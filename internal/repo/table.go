package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"taskdeck/internal/domain"
	"taskdeck/internal/events"
	"taskdeck/internal/remote"
)

const defaultPollInterval = 250 * time.Millisecond

type rowScanner interface {
	Scan(dest ...any) error
}

// codec describes how one collection maps onto its SQL table. columns[0] must
// be "id" and columns[1] "owner_id".
type codec[T any] struct {
	table      string
	columns    []string
	archivable bool
	scan       func(rowScanner) (T, error)
	values     func(T) []any
	id         func(T) string
	owner      func(T) string
	created    func(T) string
	stamp      func(row T, id, createdAt, updatedAt string) T
}

// Table is the SQLite-backed remote.Table for one collection.
type Table[T any] struct {
	DB           *sql.DB
	Events       events.Writer
	Now          func() time.Time
	PollInterval time.Duration
	Logger       *slog.Logger
	codec        codec[T]
	// beforeDelete runs inside the delete transaction ahead of the DELETE.
	beforeDelete func(ctx context.Context, tx *sql.Tx, ownerID, id string) error
}

var _ remote.Table[domain.Task] = (*Table[domain.Task])(nil)

func newTable[T any](db *sql.DB, c codec[T]) *Table[T] {
	return &Table[T]{DB: db, Now: time.Now, PollInterval: defaultPollInterval, codec: c}
}

func (t *Table[T]) now() string {
	if t.Now != nil {
		return domain.FormatTime(t.Now())
	}
	return domain.FormatTime(time.Now())
}

func (t *Table[T]) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

// Name returns the collection name.
func (t *Table[T]) Name() string { return t.codec.table }

func (t *Table[T]) selectList() string {
	return strings.Join(t.codec.columns, ",")
}

func (t *Table[T]) hasColumn(col string) bool {
	for _, c := range t.codec.columns {
		if c == col {
			return true
		}
	}
	return false
}

func (t *Table[T]) List(ctx context.Context, ownerID string, q remote.Query) ([]T, error) {
	clauses := []string{"owner_id=?"}
	args := []any{ownerID}
	if t.codec.archivable && !q.IncludeArchived {
		clauses = append(clauses, "is_archived=0")
	}
	for col, val := range q.Filters {
		if !t.hasColumn(col) {
			return nil, fmt.Errorf("invalid filter column %s", col)
		}
		clauses = append(clauses, col+"=?")
		args = append(args, val)
	}
	order := "created_at"
	if q.OrderBy != "" {
		if !t.hasColumn(q.OrderBy) {
			return nil, fmt.Errorf("invalid order column %s", q.OrderBy)
		}
		order = q.OrderBy
	}
	dir := "ASC"
	if q.Descending {
		dir = "DESC"
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s ORDER BY %s %s, id %s`,
		t.selectList(), t.codec.table, strings.Join(clauses, " AND "), order, dir, dir)
	rows, err := t.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []T
	for rows.Next() {
		row, err := t.codec.scan(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, row)
	}
	return res, classify(rows.Err())
}

func (t *Table[T]) Get(ctx context.Context, ownerID, id string) (T, error) {
	return t.get(ctx, t.DB, ownerID, id)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (t *Table[T]) get(ctx context.Context, q querier, ownerID, id string) (T, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id=? AND owner_id=?`, t.selectList(), t.codec.table)
	row, err := t.codec.scan(q.QueryRowContext(ctx, query, id, ownerID))
	if err == sql.ErrNoRows {
		return row, remote.ErrNotFound
	}
	return row, classify(err)
}

func (t *Table[T]) Insert(ctx context.Context, row T) (T, error) {
	var zero T
	if t.codec.owner(row) == "" {
		return zero, errors.New("owner_id is required")
	}
	id := t.codec.id(row)
	if id == "" {
		id = uuid.NewString()
	}
	now := t.now()
	row = t.codec.stamp(row, id, now, now)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(t.codec.columns)), ",")
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()
	query := fmt.Sprintf(`INSERT INTO %s(%s) VALUES (%s)`, t.codec.table, t.selectList(), placeholders)
	if _, err := tx.ExecContext(ctx, query, t.codec.values(row)...); err != nil {
		return zero, classify(err)
	}
	if err := t.Events.Append(ctx, tx, remote.ChangeInsert, t.codec.table, t.codec.owner(row), id, row); err != nil {
		return zero, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return row, nil
}

func (t *Table[T]) Update(ctx context.Context, row T) (T, error) {
	var zero T
	id, owner := t.codec.id(row), t.codec.owner(row)
	if id == "" || owner == "" {
		return zero, errors.New("id and owner_id are required")
	}
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()
	current, err := t.get(ctx, tx, owner, id)
	if err != nil {
		return zero, err
	}
	// created_at is immutable.
	row = t.codec.stamp(row, id, t.codec.created(current), t.now())
	cols := t.codec.columns[2:]
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = c + "=?"
	}
	args := append(t.codec.values(row)[2:], id, owner)
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id=? AND owner_id=?`, t.codec.table, strings.Join(sets, ","))
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return zero, classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return zero, remote.ErrNotFound
	}
	if err := t.Events.Append(ctx, tx, remote.ChangeUpdate, t.codec.table, owner, id, row); err != nil {
		return zero, classify(err)
	}
	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return row, nil
}

func (t *Table[T]) Delete(ctx context.Context, ownerID, id string) error {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if t.beforeDelete != nil {
		if err := t.beforeDelete(ctx, tx, ownerID, id); err != nil {
			return classify(err)
		}
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id=? AND owner_id=?`, t.codec.table), id, ownerID)
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return remote.ErrNotFound
	}
	if err := t.Events.Append(ctx, tx, remote.ChangeDelete, t.codec.table, ownerID, id, nil); err != nil {
		return classify(err)
	}
	return tx.Commit()
}

// Subscribe tails the change log for this collection and owner. Only changes
// committed after the call are delivered. The channel closes when ctx ends.
func (t *Table[T]) Subscribe(ctx context.Context, ownerID string) (<-chan remote.Change[T], error) {
	cursor, err := events.Latest(ctx, t.DB)
	if err != nil {
		return nil, classify(err)
	}
	interval := t.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	out := make(chan remote.Change[T], 16)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			records, err := events.After(ctx, t.DB, t.codec.table, ownerID, cursor, 100)
			if err != nil {
				if ctx.Err() == nil {
					t.logger().Warn("change feed poll failed", "collection", t.codec.table, "error", err)
				}
				continue
			}
			for _, rec := range records {
				ch := remote.Change[T]{
					Seq:        rec.Seq,
					Type:       rec.Type,
					Collection: rec.Collection,
					OwnerID:    rec.OwnerID,
					ID:         rec.RowID,
					At:         rec.At,
				}
				if rec.RowJSON != "" {
					if err := json.Unmarshal([]byte(rec.RowJSON), &ch.Row); err != nil {
						t.logger().Warn("change row decode failed", "collection", t.codec.table, "seq", rec.Seq, "error", err)
					}
				}
				select {
				case out <- ch:
				case <-ctx.Done():
					return
				}
				cursor = rec.Seq
			}
		}
	}()
	return out, nil
}

func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, remote.ErrSchemaUnavailable) || errors.Is(err, remote.ErrNotFound) {
		return err
	}
	if remote.IsSchemaError(err) {
		return fmt.Errorf("%w: %v", remote.ErrSchemaUnavailable, err)
	}
	return err
}
