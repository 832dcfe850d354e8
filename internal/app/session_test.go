package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/config"
	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/engine"
	"taskdeck/internal/migrate"
	"taskdeck/internal/repo"
	"taskdeck/internal/server"
)

func fixedNow() time.Time { return time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC) }

func TestResolveConfig(t *testing.T) {
	ws := t.TempDir()
	_, err := ResolveConfig(ws, "")
	require.Error(t, err)

	cfg, err := ResolveConfig(ws, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Owner)
	assert.Equal(t, 7, cfg.DueSoonDays)
}

func TestLocalSessionPersists(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	cfg := config.Default("alice")

	s, err := Open(ctx, Options{Workspace: ws, Config: cfg, Now: fixedNow})
	require.NoError(t, err)
	p, err := s.Engine.CreateProject(ctx, engine.ProjectCreateOptions{Name: "Launch"})
	require.NoError(t, err)
	_, err = s.Engine.CreateTask(ctx, engine.TaskCreateOptions{Title: "Plan", ProjectID: p.ID, EndDate: "2024-07-03"})
	require.NoError(t, err)
	require.NoError(t, s.Engine.MoveTabs(ctx, []string{p.ID}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.StatusPending])
	require.NoError(t, s.Close())
	assert.FileExists(t, filepath.Join(ws, ".taskdeck", "cache.db"))

	s, err = Open(ctx, Options{Workspace: ws, Config: cfg, Now: fixedNow})
	require.NoError(t, err)
	defer s.Close()
	require.Len(t, s.Engine.Tasks.Rows(), 1)
	assert.Len(t, s.Engine.DueSoon(), 1)
	tabs := s.Engine.ProjectTabs()
	require.Len(t, tabs, 1)
	assert.Equal(t, p.ID, tabs[0].ID)

	w := s.Timeline(fixedNow())
	assert.Equal(t, 30, w.PixelsPerDay)
}

func TestRemoteSession(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, migrate.Migrate(conn))
	handler, err := server.New(server.Config{Repo: repo.New(conn), Auth: server.AuthConfig{JWTSecret: "s"}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()
	token, err := server.IssueToken("s", "bob", time.Hour)
	require.NoError(t, err)

	cfg := config.Default("bob")
	cfg.Store.URL = srv.URL + "/v0"
	cfg.Store.Token = token
	require.NoError(t, cfg.Validate())

	s, err := Open(ctx, Options{Workspace: t.TempDir(), Config: cfg})
	require.NoError(t, err)
	defer s.Close()
	require.NotNil(t, s.Client)
	assert.Nil(t, s.Repo)

	task, err := s.Engine.CreateTask(ctx, engine.TaskCreateOptions{Title: "Remote"})
	require.NoError(t, err)
	assert.Equal(t, "bob", task.OwnerID)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats[domain.StatusPending])
}
