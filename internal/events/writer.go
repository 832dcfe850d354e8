package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

// Writer appends row-change records to the changes table, inside the caller's
// transaction so a change is visible to subscribers exactly when the row is.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, typ remote.ChangeType, collection, ownerID, rowID string, row any) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	var payload any
	if row != nil {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal change row: %w", err)
		}
		payload = string(data)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO changes(at,type,collection,owner_id,row_id,row_json) VALUES (?,?,?,?,?,?)`,
		domain.FormatTime(now()), string(typ), collection, ownerID, rowID, payload)
	return err
}

// Record is a raw change row as stored.
type Record struct {
	Seq        int64
	At         string
	Type       remote.ChangeType
	Collection string
	OwnerID    string
	RowID      string
	RowJSON    string
}

// After returns up to limit changes for owner+collection with seq > cursor, ascending.
func After(ctx context.Context, db *sql.DB, collection, ownerID string, cursor int64, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `SELECT seq,at,type,collection,owner_id,row_id,COALESCE(row_json,'') FROM changes
WHERE collection=? AND owner_id=? AND seq>? ORDER BY seq ASC LIMIT ?`, collection, ownerID, cursor, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var r Record
		var typ string
		if err := rows.Scan(&r.Seq, &r.At, &typ, &r.Collection, &r.OwnerID, &r.RowID, &r.RowJSON); err != nil {
			return nil, err
		}
		r.Type = remote.ChangeType(typ)
		res = append(res, r)
	}
	return res, rows.Err()
}

// Latest returns the highest change seq, 0 when the log is empty.
func Latest(ctx context.Context, db *sql.DB) (int64, error) {
	var seq int64
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq),0) FROM changes`).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}
