// Package app wires config, the row store, the cache and the engine into one
// dashboard session for the CLI and other front ends.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"taskdeck/internal/cache"
	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
	"taskdeck/internal/remote"
	"taskdeck/internal/repo"
	"taskdeck/internal/timeline"
	taskdecksdk "taskdeck/sdk/go"
)

// ResolveConfig loads taskdeck.yml from workspace (defaults when absent) and
// applies an owner override.
func ResolveConfig(workspace, ownerOverride string) (*config.Config, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if o := strings.TrimSpace(ownerOverride); o != "" {
		cfg.Owner = o
	}
	if cfg.Owner == "" {
		return nil, fmt.Errorf("owner not specified; set owner in %s or use --owner", config.Path(workspace))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type Options struct {
	Workspace string
	Config    *config.Config
	Logger    *slog.Logger
	Now       func() time.Time
	// SkipLoad leaves the engine empty, for commands that only touch the store.
	SkipLoad bool
}

// Session is one owner's open dashboard.
type Session struct {
	Workspace    string
	Config       *config.Config
	Engine       *engine.Engine
	SalesTargets remote.Table[domain.SalesTarget]
	FocusModes   remote.Table[domain.FocusMode]
	// Exactly one of Repo (local store) and Client (hosted store) is set.
	Repo   *repo.Repo
	Client *taskdecksdk.Client

	closers []func() error
}

// Open connects to the configured store and loads the engine.
func Open(ctx context.Context, opts Options) (*Session, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{Workspace: opts.Workspace, Config: cfg}

	var (
		tasks    remote.Table[domain.Task]
		projects remote.Table[domain.Project]
		orders   remote.OrderStore
	)
	if cfg.Remote() {
		c := taskdecksdk.New(cfg.Store.URL, cfg.Store.Token)
		s.Client = c
		tasks, projects, orders = c.Tasks(), c.Projects(), c
		s.SalesTargets, s.FocusModes = c.SalesTargets(), c.FocusModes()
		logger.Debug("using hosted store", "url", cfg.Store.URL)
	} else {
		conn, err := db.Open(db.Config{Workspace: opts.Workspace, Path: cfg.Store.Path})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		s.closers = append(s.closers, conn.Close)
		if err := migrate.Migrate(conn); err != nil {
			s.Close()
			return nil, fmt.Errorf("migrate store: %w", err)
		}
		r := repo.New(conn)
		if opts.Now != nil {
			r.Now = opts.Now
		}
		r.Tasks.Logger, r.Projects.Logger = logger, logger
		r.SalesTargets.Logger, r.FocusModes.Logger = logger, logger
		s.Repo = &r
		tasks, projects, orders = r.Tasks, r.Projects, r
		s.SalesTargets, s.FocusModes = r.SalesTargets, r.FocusModes
	}

	kv, err := cache.OpenSQLite(cfg.CachePath(opts.Workspace))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open cache: %w", err)
	}
	s.closers = append(s.closers, kv.Close)

	s.Engine = engine.New(engine.Options{
		Owner:       cfg.Owner,
		Tasks:       tasks,
		Projects:    projects,
		Orders:      orders,
		Cache:       kv,
		Now:         opts.Now,
		DueSoonDays: cfg.DueSoonDays,
		Logger:      logger,
	})
	if !opts.SkipLoad {
		if err := s.Engine.Load(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("load dashboard: %w", err)
		}
	}
	return s, nil
}

// Stats returns active task counts by status from the store.
func (s *Session) Stats(ctx context.Context) (map[string]int, error) {
	if s.Client != nil {
		return s.Client.Stats(ctx, s.Config.Owner)
	}
	return s.Repo.CountTasksByStatus(ctx, s.Config.Owner)
}

// Timeline returns the configured window around today.
func (s *Session) Timeline(today time.Time) timeline.Window {
	return timeline.New(today, s.Config.Timeline)
}

// Close waits for pending writes, then releases the cache and store.
func (s *Session) Close() error {
	if s.Engine != nil {
		s.Engine.Wait()
		s.Engine.Close()
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
