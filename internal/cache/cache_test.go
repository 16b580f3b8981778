package cache

import (
	"crypto/sha256"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"fim-go/internal/model"
)

var now = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func hashOf(s string) model.Hash {
	return sha256.Sum256([]byte(s))
}

func TestCache_LookupMiss(t *testing.T) {
	c := openTestCache(t)

	got, err := c.Lookup(hashOf("nothing"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCache_InsertLookup(t *testing.T) {
	c := openTestCache(t)

	found := model.NewFoundEntry(100, now)
	notFound := model.NewNotFoundEntry(now)
	require.NoError(t, c.Insert(hashOf("a"), found))
	require.NoError(t, c.Insert(hashOf("b"), notFound))

	got, err := c.Lookup(hashOf("a"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, found, *got)

	got, err = c.Lookup(hashOf("b"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Found)

	// Replacing keeps a single entry.
	require.NoError(t, c.Insert(hashOf("a"), model.NewFoundEntry(50, now)))
	got, err = c.Lookup(hashOf("a"))
	require.NoError(t, err)
	assert.EqualValues(t, 50, got.Score)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCache_LookupIgnoresAge(t *testing.T) {
	c := openTestCache(t)

	old := model.NewNotFoundEntry(now.Add(-365 * 24 * time.Hour))
	require.NoError(t, c.Insert(hashOf("old"), old))

	got, err := c.Lookup(hashOf("old"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, old, *got)
}

func TestCache_PurgeStale(t *testing.T) {
	c := openTestCache(t)
	day := 24 * time.Hour

	entries := map[string]model.CacheEntry{
		"found-fresh":     model.NewFoundEntry(10, now.Add(-29*day)),
		"found-stale":     model.NewFoundEntry(10, now.Add(-31*day)),
		"notfound-fresh":  model.NewNotFoundEntry(now.Add(-6 * day)),
		"notfound-stale":  model.NewNotFoundEntry(now.Add(-8 * day)),
		"notfound-at-ttl": model.NewNotFoundEntry(now.Add(-7 * day)),
	}
	for k, e := range entries {
		require.NoError(t, c.Insert(hashOf(k), e))
	}

	removed, err := c.PurgeStale(now)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for k := range entries {
		got, err := c.Lookup(hashOf(k))
		require.NoError(t, err)
		switch k {
		case "found-stale", "notfound-stale":
			assert.Nil(t, got, k)
		default:
			assert.NotNil(t, got, k)
		}
	}
}

func TestCache_PurgeStaleManyEntries(t *testing.T) {
	c := openTestCache(t)
	stale := model.NewNotFoundEntry(now.Add(-30 * 24 * time.Hour))

	for i := range 2000 {
		require.NoError(t, c.Insert(hashOf(fmt.Sprint(i)), stale))
	}

	removed, err := c.PurgeStale(now)
	require.NoError(t, err)
	assert.Equal(t, 2000, removed)

	n, err := c.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCache_Reopen(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, c.Insert(hashOf("persist"), model.NewFoundEntry(75, now)))
	require.NoError(t, c.Close())

	c, err = Open(dir, nil)
	require.NoError(t, err)
	defer c.Close()

	got, err := c.Lookup(hashOf("persist"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.EqualValues(t, 75, got.Score)
}
