// Package remote defines the contract of the hosted row store the dashboard
// talks to. Implementations live in internal/repo (direct SQLite) and sdk/go
// (HTTP API).
package remote

import (
	"context"
	"errors"
	"strings"

	"taskdeck/internal/domain"
)

// Collection names.
const (
	Tasks        = "tasks"
	Projects     = "projects"
	SalesTargets = "sales_targets"
	FocusModes   = "focus_modes"
	TabOrders    = "tab_orders"
)

var (
	// ErrNotFound is expected and means "empty state", not failure.
	ErrNotFound = errors.New("not found")
	// ErrSchemaUnavailable means the collection is absent or its schema is unusable.
	ErrSchemaUnavailable = errors.New("schema unavailable")
)

// IsSchemaError reports whether err means the backing collection cannot be used.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSchemaUnavailable) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "no such column") ||
		strings.Contains(msg, "schema_unavailable")
}

type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// Change is a push notification for one row. Row is the zero value for deletes.
type Change[T any] struct {
	Seq        int64      `json:"seq"`
	Type       ChangeType `json:"type" enum:"insert,update,delete"`
	Collection string     `json:"collection"`
	OwnerID    string     `json:"owner_id"`
	ID         string     `json:"id"`
	Row        T          `json:"row"`
	At         string     `json:"at" format:"date-time"`
}

// Query narrows a List call. Filters are column equality checks.
type Query struct {
	Filters         map[string]string
	OrderBy         string
	Descending      bool
	IncludeArchived bool
}

// Table is row-level CRUD on one collection, every call scoped by owner.
type Table[T any] interface {
	List(ctx context.Context, ownerID string, q Query) ([]T, error)
	Get(ctx context.Context, ownerID, id string) (T, error)
	Insert(ctx context.Context, row T) (T, error)
	Update(ctx context.Context, row T) (T, error)
	Delete(ctx context.Context, ownerID, id string) error
	Subscribe(ctx context.Context, ownerID string) (<-chan Change[T], error)
}

// OrderStore persists Sequences in the tab_orders collection.
type OrderStore interface {
	GetOrder(ctx context.Context, ownerID, scope string) (domain.TabOrder, error)
	InsertOrder(ctx context.Context, o domain.TabOrder) error
	UpdateOrder(ctx context.Context, o domain.TabOrder) error
}
