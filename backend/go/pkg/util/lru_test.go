package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c, err := NewLRU[string, int](2, 0)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("b", 2)
	_, _ = c.Get("a")
	c.Put("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Len())
}

func TestLRUExpiresEntries(t *testing.T) {
	c, err := NewLRU[string, string](4, time.Minute)
	require.NoError(t, err)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Put("doc", "summary")
	now = now.Add(2 * time.Minute)
	_, ok := c.Get("doc")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestLRURemoveAndUpdate(t *testing.T) {
	c, err := NewLRU[string, int](2, 0)
	require.NoError(t, err)

	c.Put("a", 1)
	c.Put("a", 5)
	v, _ := c.Get("a")
	assert.Equal(t, 5, v)
	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
}

func TestNewLRURejectsZeroCapacity(t *testing.T) {
	_, err := NewLRU[string, int](0, 0)
	assert.Error(t, err)
}
