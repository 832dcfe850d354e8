package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default("u1")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30, cfg.Timeline.PixelsPerDay)
	assert.Equal(t, 7, cfg.DueSoonDays)
	assert.Equal(t, "/v0", cfg.Server.BasePath)
	assert.False(t, cfg.Remote())
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := config.FromYAML([]byte("owner: alice\ntimeline:\n  lookback_days: 14\n"))
	require.NoError(t, err)
	assert.Equal(t, "alice", cfg.Owner)
	assert.Equal(t, 14, cfg.Timeline.LookbackDays)
	assert.Equal(t, 30, cfg.Timeline.PixelsPerDay)
	assert.Equal(t, 3, cfg.Timeline.RangeMonths)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"missing owner":  "timeline:\n  range_months: 2\n",
		"both stores":    "owner: a\nstore:\n  path: x.db\n  url: http://localhost:8787\n",
		"bad url":        "owner: a\nstore:\n  url: ftp://example\n",
		"zero ppd":       "owner: a\ntimeline:\n  pixels_per_day: 0\n",
		"due soon":       "owner: a\ndue_soon_days: -1\n",
		"base path":      "owner: a\nserver:\n  base_path: v0\n",
		"bad yaml":       "owner: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	_, err := config.Load(dir)
	require.Error(t, err)

	cfg, err := config.LoadOptional(dir)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Owner)

	require.NoError(t, os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("bob")), 0o644))
	cfg, err = config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Owner)
	assert.Equal(t, filepath.Join(dir, ".taskdeck", "cache.db"), cfg.CachePath(dir))
}
