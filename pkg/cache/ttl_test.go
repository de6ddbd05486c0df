package cache

import (
	"errors"
	"testing"
	"time"

	"github.com/hugh/dealdesk/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTL_ExpiresAfterTTL(t *testing.T) {
	clock := &util.FixedClock{T: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := NewTTL[string, int](30*time.Second, clock)

	c.Set("seats", 5)
	v, ok := c.Get("seats")
	require.True(t, ok)
	assert.Equal(t, 5, v)

	clock.Advance(29 * time.Second)
	_, ok = c.Get("seats")
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get("seats")
	assert.False(t, ok, "entry must be gone exactly at the TTL boundary")
}

func TestTTL_ZeroTTLDisablesCaching(t *testing.T) {
	c := NewTTL[string, int](0, nil)
	c.Set("k", 1)
	_, ok := c.Get("k")
	assert.False(t, ok)
}

func TestTTL_DeleteAndPurge(t *testing.T) {
	c := NewTTL[string, string](time.Minute, &util.FixedClock{T: time.Now()})
	c.Set("a", "1")
	c.Set("b", "2")

	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)

	c.Purge()
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestTTL_GetOrLoad(t *testing.T) {
	clock := &util.FixedClock{T: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	c := NewTTL[string, bool](time.Minute, clock)

	calls := 0
	load := func() (bool, error) {
		calls++
		return true, nil
	}

	for i := 0; i < 3; i++ {
		v, err := c.GetOrLoad("admin", load)
		require.NoError(t, err)
		assert.True(t, v)
	}
	assert.Equal(t, 1, calls)

	clock.Advance(2 * time.Minute)
	_, err := c.GetOrLoad("admin", load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestTTL_GetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := NewTTL[string, int](time.Minute, nil)
	boom := errors.New("db down")

	_, err := c.GetOrLoad("k", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	v, err := c.GetOrLoad("k", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
