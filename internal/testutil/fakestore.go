// Package testutil provides in-memory remote store fakes for tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

type row interface {
	EntityID() string
	Owner() string
}

// FakeTable is an in-memory remote.Table with error injection. Rows keep
// insertion order.
type FakeTable[T row] struct {
	mu     sync.Mutex
	rows   []T
	nextID int
	subs   []chan remote.Change[T]
	assign func(row T, id string) T

	// Error injection
	ListErr   error
	InsertErr error
	UpdateErr error
	DeleteErr error
	// UpdateErrFor fails updates of the given ids only.
	UpdateErrFor map[string]error

	// BeforeUpdate runs before every Update; tests block on it to delay writes.
	BeforeUpdate func(ctx context.Context, row T)

	// Updated records every row passed to Update, successful or not.
	Updated []T
	Lists   int
}

func NewFakeTable[T row](assign func(row T, id string) T) *FakeTable[T] {
	return &FakeTable[T]{assign: assign, UpdateErrFor: map[string]error{}}
}

func NewFakeTasks() *FakeTable[domain.Task] {
	return NewFakeTable(func(t domain.Task, id string) domain.Task {
		t.ID = id
		if t.Status == "" {
			t.Status = domain.StatusPending
		}
		return t
	})
}

func NewFakeProjects() *FakeTable[domain.Project] {
	return NewFakeTable(func(p domain.Project, id string) domain.Project {
		p.ID = id
		return p
	})
}

// Seed stores rows without emitting changes.
func (f *FakeTable[T]) Seed(rows ...T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
}

// Rows returns a copy of the stored rows.
func (f *FakeTable[T]) Rows() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]T(nil), f.rows...)
}

// Row returns the stored row with id.
func (f *FakeTable[T]) Row(id string) (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.EntityID() == id {
			return r, true
		}
	}
	var zero T
	return zero, false
}

// UpdatedRows returns a copy of Updated.
func (f *FakeTable[T]) UpdatedRows() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]T(nil), f.Updated...)
}

func (f *FakeTable[T]) List(ctx context.Context, ownerID string, q remote.Query) ([]T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lists++
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var res []T
	for _, r := range f.rows {
		if r.Owner() == ownerID {
			res = append(res, r)
		}
	}
	return res, nil
}

func (f *FakeTable[T]) Get(ctx context.Context, ownerID, id string) (T, error) {
	r, ok := f.Row(id)
	if !ok || r.Owner() != ownerID {
		var zero T
		return zero, remote.ErrNotFound
	}
	return r, nil
}

func (f *FakeTable[T]) Insert(ctx context.Context, r T) (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertErr != nil {
		var zero T
		return zero, f.InsertErr
	}
	if r.EntityID() == "" {
		f.nextID++
		r = f.assign(r, fmt.Sprintf("id-%d", f.nextID))
	}
	f.rows = append(f.rows, r)
	return r, nil
}

func (f *FakeTable[T]) Update(ctx context.Context, r T) (T, error) {
	if f.BeforeUpdate != nil {
		f.BeforeUpdate(ctx, r)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updated = append(f.Updated, r)
	var zero T
	if f.UpdateErr != nil {
		return zero, f.UpdateErr
	}
	if err := f.UpdateErrFor[r.EntityID()]; err != nil {
		return zero, err
	}
	for i, cur := range f.rows {
		if cur.EntityID() == r.EntityID() && cur.Owner() == r.Owner() {
			f.rows[i] = r
			return r, nil
		}
	}
	return zero, remote.ErrNotFound
}

func (f *FakeTable[T]) Delete(ctx context.Context, ownerID, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	for i, cur := range f.rows {
		if cur.EntityID() == id && cur.Owner() == ownerID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return remote.ErrNotFound
}

func (f *FakeTable[T]) Subscribe(ctx context.Context, ownerID string) (<-chan remote.Change[T], error) {
	ch := make(chan remote.Change[T], 16)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()
	go func() {
		<-ctx.Done()
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, s := range f.subs {
			if s == ch {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// Subscribers returns the number of open subscriptions.
func (f *FakeTable[T]) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Emit delivers c to every subscriber.
func (f *FakeTable[T]) Emit(c remote.Change[T]) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subs {
		s <- c
	}
}

// FakeOrders is an in-memory remote.OrderStore.
type FakeOrders struct {
	mu     sync.Mutex
	orders map[string]domain.TabOrder

	GetErr    error
	InsertErr error
	UpdateErr error

	Gets, Inserts, Updates int
}

func NewFakeOrders() *FakeOrders {
	return &FakeOrders{orders: map[string]domain.TabOrder{}}
}

func orderKey(ownerID, scope string) string { return ownerID + "\x00" + scope }

func (f *FakeOrders) GetOrder(ctx context.Context, ownerID, scope string) (domain.TabOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Gets++
	if f.GetErr != nil {
		return domain.TabOrder{}, f.GetErr
	}
	o, ok := f.orders[orderKey(ownerID, scope)]
	if !ok {
		return domain.TabOrder{}, remote.ErrNotFound
	}
	return o, nil
}

func (f *FakeOrders) InsertOrder(ctx context.Context, o domain.TabOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Inserts++
	if f.InsertErr != nil {
		return f.InsertErr
	}
	f.orders[orderKey(o.OwnerID, o.Scope)] = o
	return nil
}

func (f *FakeOrders) UpdateOrder(ctx context.Context, o domain.TabOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Updates++
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	if _, ok := f.orders[orderKey(o.OwnerID, o.Scope)]; !ok {
		return remote.ErrNotFound
	}
	f.orders[orderKey(o.OwnerID, o.Scope)] = o
	return nil
}
