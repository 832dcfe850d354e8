package cache_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskdeck/internal/cache"
)

func exercise(t *testing.T, c cache.Cache) {
	t.Helper()
	_, ok := c.Get("tab_order_u1")
	assert.False(t, ok)

	require.NoError(t, c.Set("tab_order_u1", `["a","b"]`))
	v, ok := c.Get("tab_order_u1")
	require.True(t, ok)
	assert.Equal(t, `["a","b"]`, v)

	require.NoError(t, c.Set("tab_order_u1", `["b"]`))
	v, _ = c.Get("tab_order_u1")
	assert.Equal(t, `["b"]`, v)

	require.NoError(t, c.Remove("tab_order_u1"))
	_, ok = c.Get("tab_order_u1")
	assert.False(t, ok)
	require.NoError(t, c.Remove("missing"))
}

func TestMemory(t *testing.T) {
	exercise(t, cache.NewMemory())
}

func TestSQLitePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")
	c, err := cache.OpenSQLite(path)
	require.NoError(t, err)
	exercise(t, c)

	require.NoError(t, c.Set("k", "v"))
	require.NoError(t, c.Close())

	reopened, err := cache.OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, ok := reopened.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "tab_order_u1", cache.Key("tab_order", "u1", ""))
	assert.Equal(t, "task_order_u1_p1", cache.Key("task_order", "u1", "p1"))
}
