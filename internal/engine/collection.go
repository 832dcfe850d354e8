package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

// ErrClosed is returned for results that arrive after Close.
var ErrClosed = errors.New("collection closed")

// Move places one entity at a local index.
type Move struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

// Collection is the in-memory view of one owner's rows of a collection and
// the write path to the remote table. Rows are replaced, never mutated in
// place, so a slice returned by Rows stays valid.
type Collection[T domain.Entity[T]] struct {
	table  remote.Table[T]
	owner  string
	now    func() time.Time
	logger *slog.Logger

	// OnChange, if set before Watch, sees every pushed change after it is applied.
	OnChange func(remote.Change[T])

	mu      sync.Mutex
	rows    []T
	closed  bool
	resyncs int

	inflight sync.WaitGroup
}

func NewCollection[T domain.Entity[T]](table remote.Table[T], ownerID string, now func() time.Time, logger *slog.Logger) *Collection[T] {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Collection[T]{table: table, owner: ownerID, now: now, logger: logger}
}

func (c *Collection[T]) Owner() string { return c.owner }

// Load replaces memory with the owner's rows, archived ones included.
func (c *Collection[T]) Load(ctx context.Context) error {
	rows, err := c.table.List(ctx, c.owner, remote.Query{IncludeArchived: true})
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.rows = append([]T(nil), rows...)
	return nil
}

// Rows returns the current rows. The slice is shared and must not be modified.
func (c *Collection[T]) Rows() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rows
}

func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOf(id)
	if i < 0 {
		var zero T
		return zero, false
	}
	return c.rows[i], true
}

func (c *Collection[T]) indexOf(id string) int {
	for i, r := range c.rows {
		if r.EntityID() == id {
			return i
		}
	}
	return -1
}

// replace swaps row in by id, or appends it. Caller holds mu.
func (c *Collection[T]) replace(row T) {
	next := make([]T, 0, len(c.rows)+1)
	found := false
	for _, r := range c.rows {
		if r.EntityID() == row.EntityID() {
			next = append(next, row)
			found = true
			continue
		}
		next = append(next, r)
	}
	if !found {
		next = append(next, row)
	}
	c.rows = next
}

// remove drops id. Caller holds mu.
func (c *Collection[T]) remove(id string) {
	next := make([]T, 0, len(c.rows))
	for _, r := range c.rows {
		if r.EntityID() != id {
			next = append(next, r)
		}
	}
	c.rows = next
}

// NextIndex returns max order index within scope plus one, 1 for an empty scope.
func (c *Collection[T]) NextIndex(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	maxIdx := 0
	for _, r := range c.rows {
		if r.Scope() != scope || r.Order() == nil {
			continue
		}
		if *r.Order() > maxIdx {
			maxIdx = *r.Order()
		}
	}
	return maxIdx + 1
}

// Create inserts row with a provisional order index and shows it once the
// store returns the canonical row.
func (c *Collection[T]) Create(ctx context.Context, row T) (T, error) {
	row = row.WithOrder(c.NextIndex(row.Scope()))
	created, err := c.table.Insert(ctx, row)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("create: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return created, ErrClosed
	}
	c.replace(created)
	return created, nil
}

// Update applies mutate to the current row and writes it. Memory changes only
// after the store accepts the write.
func (c *Collection[T]) Update(ctx context.Context, id string, mutate func(cur T, now time.Time) T) (T, error) {
	var zero T
	cur, ok := c.Get(id)
	if !ok {
		var err error
		cur, err = c.table.Get(ctx, c.owner, id)
		if err != nil {
			return zero, err
		}
	}
	next := mutate(cur, c.now())
	if next.EntityID() != id || next.Owner() != c.owner {
		return zero, fmt.Errorf("update %s: id and owner are immutable", id)
	}
	updated, err := c.table.Update(ctx, next)
	if err != nil {
		return zero, fmt.Errorf("update %s: %w", id, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return updated, ErrClosed
	}
	c.replace(updated)
	return updated, nil
}

func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	if err := c.table.Delete(ctx, c.owner, id); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.remove(id)
	return nil
}

// ToggleArchive flips the archived flag, stamping archived_at when archiving.
func (c *Collection[T]) ToggleArchive(ctx context.Context, id string) (T, error) {
	return c.Update(ctx, id, func(cur T, now time.Time) T {
		if cur.Archived() {
			return cur.WithArchived(false, nil)
		}
		at := domain.FormatTime(now)
		return cur.WithArchived(true, &at)
	})
}

// Reorder sets the order index of each moved row in memory right away and
// writes the changed rows in the background, one update per row. When scope
// is set the stored index is offset into the scope's partition. If any write
// fails the collection is refetched from the store.
func (c *Collection[T]) Reorder(ctx context.Context, moves []Move, scope string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	next := append([]T(nil), c.rows...)
	var changed []T
	for _, m := range moves {
		idx := PersistedIndex(scope, m.Index)
		for i, r := range next {
			if r.EntityID() != m.ID {
				continue
			}
			if r.Order() != nil && *r.Order() == idx {
				break
			}
			next[i] = r.WithOrder(idx)
			changed = append(changed, next[i])
			break
		}
	}
	c.rows = next
	if len(changed) == 0 {
		c.mu.Unlock()
		return
	}
	c.inflight.Add(1)
	c.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer c.inflight.Done()
		var g errgroup.Group
		for _, row := range changed {
			g.Go(func() error {
				_, err := c.table.Update(ctx, row)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			c.logger.Warn("reorder write failed, resyncing", "owner", c.owner, "scope", scope, "error", err)
			if err := c.Resync(ctx); err != nil && !errors.Is(err, ErrClosed) {
				c.logger.Error("resync failed", "owner", c.owner, "error", err)
			}
		}
	}()
}

// Resync replaces memory with the store's rows.
func (c *Collection[T]) Resync(ctx context.Context) error {
	c.mu.Lock()
	c.resyncs++
	c.mu.Unlock()
	return c.Load(ctx)
}

// Resyncs counts refetches triggered since the collection was created.
func (c *Collection[T]) Resyncs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resyncs
}

// Apply merges a pushed change. Inserts of known ids are ignored, updates
// replace by id and deletes remove by id. Other owners' changes are dropped.
func (c *Collection[T]) Apply(ch remote.Change[T]) {
	if ch.OwnerID != c.owner {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	switch ch.Type {
	case remote.ChangeInsert:
		if c.indexOf(ch.ID) >= 0 {
			return
		}
		c.rows = append(append([]T(nil), c.rows...), ch.Row)
	case remote.ChangeUpdate:
		c.replace(ch.Row)
	case remote.ChangeDelete:
		c.remove(ch.ID)
	}
}

// Watch applies the owner's change feed until ctx ends or the feed closes.
func (c *Collection[T]) Watch(ctx context.Context) error {
	feed, err := c.table.Subscribe(ctx, c.owner)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-feed:
			if !ok {
				return nil
			}
			c.logger.Debug("change", "type", ch.Type, "id", ch.ID, "seq", ch.Seq)
			c.Apply(ch)
			if c.OnChange != nil {
				c.OnChange(ch)
			}
		}
	}
}

// Wait blocks until background reorder writes have finished.
func (c *Collection[T]) Wait() {
	c.inflight.Wait()
}

// Close discards results that arrive afterwards. In-flight requests still run.
func (c *Collection[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

// Active returns non-archived rows, indexed rows first by index, then rows
// without an index newest first.
func (c *Collection[T]) Active() []T {
	return SortByOrder(filter(c.Rows(), func(r T) bool { return !r.Archived() }))
}

// Archived returns archived rows, newest first.
func (c *Collection[T]) Archived() []T {
	out := filter(c.Rows(), func(r T) bool { return r.Archived() })
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created().After(out[j].Created()) })
	return out
}

func filter[T any](rows []T, keep func(T) bool) []T {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// SortByOrder sorts a copy of rows by order index, unindexed rows last and
// newest first among themselves.
func SortByOrder[T domain.Entity[T]](rows []T) []T {
	out := append([]T(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Order(), out[j].Order()
		switch {
		case a != nil && b != nil:
			if *a != *b {
				return *a < *b
			}
			return out[i].Created().Before(out[j].Created())
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return out[i].Created().After(out[j].Created())
		}
	})
	return out
}
