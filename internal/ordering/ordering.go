// Package ordering keeps a user-chosen Sequence of entity ids per owner and
// persists it to the remote tab_orders collection, degrading to the local
// cache once that collection proves unusable.
package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"taskdeck/internal/cache"
	"taskdeck/internal/domain"
	"taskdeck/internal/remote"
)

const DefaultPurpose = "tab_order"

type Options struct {
	// Purpose prefixes the cache key. Defaults to "tab_order".
	Purpose string
	// Scope narrows the sequence to one parent, e.g. a project id.
	Scope  string
	Logger *slog.Logger
}

// Manager owns one Sequence for a session. The fallback flag only ever goes
// from false to true.
type Manager struct {
	store    remote.OrderStore
	cache    cache.Cache
	purpose  string
	scope    string
	logger   *slog.Logger
	fallback atomic.Bool
}

func NewManager(store remote.OrderStore, c cache.Cache, opts Options) *Manager {
	if opts.Purpose == "" {
		opts.Purpose = DefaultPurpose
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if c == nil {
		c = cache.NewMemory()
	}
	return &Manager{store: store, cache: c, purpose: opts.Purpose, scope: opts.Scope, logger: opts.Logger}
}

// Fallback reports whether writes are going to the local cache only.
func (m *Manager) Fallback() bool { return m.fallback.Load() }

func (m *Manager) Scope() string { return m.scope }

func (m *Manager) key(ownerID string) string {
	return cache.Key(m.purpose, ownerID, m.scope)
}

func (m *Manager) markFallback(ownerID string, err error) {
	if m.fallback.CompareAndSwap(false, true) {
		m.logger.Warn("remote ordering unavailable, using local cache",
			"owner", ownerID, "scope", m.scope, "error", err)
	}
}

// Load fetches the owner's Sequence. It never fails: a missing row is an empty
// Sequence and any other remote error switches the session to the cache.
func (m *Manager) Load(ctx context.Context, ownerID string) domain.Sequence {
	if m.store == nil {
		m.markFallback(ownerID, remote.ErrSchemaUnavailable)
	}
	if m.Fallback() {
		return m.readCache(ownerID)
	}
	order, err := m.store.GetOrder(ctx, ownerID, m.scope)
	switch {
	case err == nil:
		seq := domain.Sequence(order.IDs)
		m.writeCache(ownerID, seq)
		return seq
	case errors.Is(err, remote.ErrNotFound):
		return domain.Sequence{}
	case remote.IsSchemaError(err):
		m.markFallback(ownerID, err)
	default:
		m.logger.Error("load ordering failed", "owner", ownerID, "scope", m.scope, "error", err)
		m.markFallback(ownerID, err)
	}
	return m.readCache(ownerID)
}

// Save writes seq to the cache, then upserts it remotely unless the session
// has fallen back. Remote failures are logged and never returned.
func (m *Manager) Save(ctx context.Context, ownerID string, seq domain.Sequence) error {
	if err := m.writeCache(ownerID, seq); err != nil {
		return err
	}
	if m.store == nil || m.Fallback() {
		return nil
	}
	order := domain.TabOrder{OwnerID: ownerID, Scope: m.scope, IDs: append([]string{}, seq...)}
	err := m.store.UpdateOrder(ctx, order)
	if errors.Is(err, remote.ErrNotFound) {
		err = m.store.InsertOrder(ctx, order)
	}
	if err != nil {
		m.markFallback(ownerID, err)
	}
	return nil
}

func (m *Manager) readCache(ownerID string) domain.Sequence {
	raw, ok := m.cache.Get(m.key(ownerID))
	if !ok || raw == "" {
		return domain.Sequence{}
	}
	var seq domain.Sequence
	if err := json.Unmarshal([]byte(raw), &seq); err != nil {
		m.logger.Warn("discarding unreadable cached ordering", "owner", ownerID, "error", err)
		return domain.Sequence{}
	}
	return seq
}

func (m *Manager) writeCache(ownerID string, seq domain.Sequence) error {
	if seq == nil {
		seq = domain.Sequence{}
	}
	data, err := json.Marshal(seq)
	if err != nil {
		return err
	}
	return m.cache.Set(m.key(ownerID), string(data))
}

// Item is what DeriveDisplayOrder needs from an entity.
type Item interface {
	EntityID() string
	Created() time.Time
}

// DeriveDisplayOrder returns live ordered by seq. Ids in seq with no live
// entity are skipped; live entities missing from seq follow in their live
// order. An empty seq orders live by creation time, oldest first.
func DeriveDisplayOrder[T Item](seq domain.Sequence, live []T) []T {
	out := make([]T, 0, len(live))
	if len(seq) == 0 {
		out = append(out, live...)
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Created().Before(out[j].Created())
		})
		return out
	}
	byID := make(map[string]int, len(live))
	for i, e := range live {
		if _, dup := byID[e.EntityID()]; !dup {
			byID[e.EntityID()] = i
		}
	}
	used := make(map[string]bool, len(live))
	for _, id := range seq {
		i, ok := byID[id]
		if !ok || used[id] {
			continue
		}
		used[id] = true
		out = append(out, live[i])
	}
	for _, e := range live {
		if used[e.EntityID()] {
			continue
		}
		used[e.EntityID()] = true
		out = append(out, e)
	}
	return out
}

// Memo caches the last DeriveDisplayOrder result. It returns the same slice
// while both inputs are the same slices as the previous call.
type Memo[T Item] struct {
	mu   sync.Mutex
	seq  domain.Sequence
	live []T
	out  []T
	set  bool
}

func (m *Memo[T]) Derive(seq domain.Sequence, live []T) []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set && sameSlice(m.seq, seq) && sameSlice(m.live, live) {
		return m.out
	}
	m.seq, m.live, m.set = seq, live, true
	m.out = DeriveDisplayOrder(seq, live)
	return m.out
}

func sameSlice[E any](a, b []E) bool {
	if len(a) != len(b) || (a == nil) != (b == nil) {
		return false
	}
	return len(a) == 0 || &a[0] == &b[0]
}
