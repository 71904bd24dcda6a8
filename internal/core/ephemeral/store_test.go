package ephemeral_test

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/flow-auth/internal/core/domain"
	"github.com/duynhne/flow-auth/internal/core/ephemeral"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestStore_PutGetRemove(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := ephemeral.New[string](ephemeral.WithClock(clock.Now))

	at := s.Put("a", "one")
	assert.Equal(t, clock.Now(), at)

	e, ok := s.Get("a")
	require.True(t, ok)
	assert.Equal(t, "one", e.Value)
	assert.Equal(t, at, e.StoredAt)

	clock.Advance(time.Minute)
	at2 := s.Put("a", "two")
	assert.Equal(t, at.Add(time.Minute), at2)

	v, ok := s.Remove("a")
	require.True(t, ok)
	assert.Equal(t, "two", v)

	_, ok = s.Get("a")
	assert.False(t, ok)

	_, ok = s.Remove("a")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ForEachMutatesInPlace(t *testing.T) {
	t.Parallel()

	s := ephemeral.New[int]()
	s.Put("a", 3)
	s.Put("b", 7)

	s.ForEach(func(_ string, v *int) { *v = 0 })

	for _, k := range []string{"a", "b"} {
		e, ok := s.Get(k)
		require.True(t, ok)
		assert.Zero(t, e.Value, k)
	}
}

func TestStore_Update(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := ephemeral.New[int](ephemeral.WithClock(clock.Now))

	t.Run("keep on missing key is a no-op", func(t *testing.T) {
		err := s.Update("missing", func(e *ephemeral.Entry[int]) (int, ephemeral.Decision) {
			assert.Nil(t, e)
			return 0, ephemeral.Keep
		})
		require.NoError(t, err)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("replace inserts with fresh timestamp", func(t *testing.T) {
		clock.Advance(time.Second)
		err := s.Update("k", func(*ephemeral.Entry[int]) (int, ephemeral.Decision) {
			return 5, ephemeral.Replace
		})
		require.NoError(t, err)
		e, ok := s.Get("k")
		require.True(t, ok)
		assert.Equal(t, 5, e.Value)
		assert.Equal(t, clock.Now(), e.StoredAt)
	})

	t.Run("keep persists in-place change and timestamp", func(t *testing.T) {
		before, _ := s.Get("k")
		clock.Advance(time.Second)
		err := s.Update("k", func(e *ephemeral.Entry[int]) (int, ephemeral.Decision) {
			e.Value++
			return 0, ephemeral.Keep
		})
		require.NoError(t, err)
		e, _ := s.Get("k")
		assert.Equal(t, 6, e.Value)
		assert.Equal(t, before.StoredAt, e.StoredAt)
	})

	t.Run("delete removes", func(t *testing.T) {
		err := s.Update("k", func(*ephemeral.Entry[int]) (int, ephemeral.Decision) {
			return 0, ephemeral.Delete
		})
		require.NoError(t, err)
		_, ok := s.Get("k")
		assert.False(t, ok)
	})
}

func TestStore_UpdatePanicIsInternalError(t *testing.T) {
	t.Parallel()

	s := ephemeral.New[int]()
	s.Put("k", 1)

	err := s.Update("k", func(e *ephemeral.Entry[int]) (int, ephemeral.Decision) {
		e.Value = 99
		panic("boom")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInternal))
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))

	// Lock was released and the half-applied change discarded.
	e, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 1, e.Value)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	s := ephemeral.New[int]()
	const goroutines = 50
	const perGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := range goroutines {
		go func() {
			defer wg.Done()
			for range perGoroutine {
				_ = s.Update("shared", func(e *ephemeral.Entry[int]) (int, ephemeral.Decision) {
					if e == nil {
						return 1, ephemeral.Replace
					}
					e.Value++
					return 0, ephemeral.Keep
				})
				s.Put("own-"+strconv.Itoa(g), g)
			}
		}()
	}
	wg.Wait()

	e, ok := s.Get("shared")
	require.True(t, ok)
	assert.Equal(t, goroutines*perGoroutine, e.Value)
	assert.Equal(t, goroutines+1, s.Len())
}
