package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRU_Basic(t *testing.T) {
	c := New(Options[string, string]{MaxSize: 3})

	c.Set("a", "value_a")
	c.Set("b", "value_b")
	c.Set("c", "value_c")

	assert.Equal(t, 3, c.Len())

	val, found := c.Get("a")
	require.True(t, found)
	assert.Equal(t, "value_a", val)

	_, found = c.Get("missing")
	assert.False(t, found)
}

func TestLRU_Eviction(t *testing.T) {
	var evicted []string
	c := New(Options[string, int]{
		MaxSize: 3,
		OnEvict: func(key string, _ int) { evicted = append(evicted, key) },
	})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	// Access 'a' to make it most recently used
	c.Get("a")

	// Add new item - should evict 'b' (least recently used)
	c.Set("d", 4)

	assert.Equal(t, 3, c.Len())
	assert.Equal(t, []string{"b"}, evicted)
	assert.Equal(t, []string{"d", "a", "c"}, c.Keys())

	_, found := c.Get("b")
	assert.False(t, found, "b should have been evicted")
}

func TestLRU_UpdateMovesToFront(t *testing.T) {
	c := New(Options[string, int]{MaxSize: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("a", 10)
	c.Set("c", 3)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("b")
	assert.False(t, ok)
}

func TestLRU_DeleteAndClear(t *testing.T) {
	c := New(Options[int, string]{})
	for i := 0; i < 5; i++ {
		c.Set(i, fmt.Sprint(i))
	}
	c.Delete(0)
	c.Delete(4)
	c.Delete(99)
	assert.Equal(t, []int{3, 2, 1}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Empty(t, c.Keys())
}

func TestLRU_GetOrLoad(t *testing.T) {
	c := New(Options[string, int]{MaxSize: 10})
	loads := 0
	load := func() (int, error) {
		loads++
		return 42, nil
	}

	v, err := c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	v, err = c.GetOrLoad("k", load)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, loads)

	boom := errors.New("boom")
	_, err = c.GetOrLoad("bad", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	_, ok := c.Get("bad")
	assert.False(t, ok, "errors are not cached")
}

func TestLRU_Stats(t *testing.T) {
	c := New(Options[string, int]{MaxSize: 1})
	assert.Zero(t, c.Stats().HitRate())

	c.Set("a", 1)
	c.Get("a")
	c.Get("b")
	c.Set("b", 2)

	s := c.Stats()
	assert.Equal(t, Stats{Length: 1, HitCount: 1, MissCount: 1, Evictions: 1}, s)
	assert.InDelta(t, 0.5, s.HitRate(), 0.001)
}

func TestLRU_Concurrent(t *testing.T) {
	c := New(Options[int, int]{MaxSize: 50})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				c.Set(base*100+i, i)
				c.Get(base*100 + i)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 50, c.Len())
}

func BenchmarkLRUGet(b *testing.B) {
	c := New(Options[string, string]{MaxSize: 10000})
	for i := 0; i < 1000; i++ {
		c.Set(fmt.Sprintf("key%d", i), "value")
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Get("key999")
	}
}
