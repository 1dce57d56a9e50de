package querycache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayos/knowledge-core/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCacheHonoursTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	c := New(10, time.Hour, WithClock(clock.Now))

	c.Set("refund policy", domain.ProcessedQuery{RewrittenQuery: "refund policy returns"})

	clock.Advance(59 * time.Minute)
	got, ok := c.Get("refund policy")
	require.True(t, ok)
	assert.Equal(t, "refund policy returns", got.RewrittenQuery)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get("refund policy")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(2, time.Hour)
	c.Set("a", domain.ProcessedQuery{OriginalQuery: "a"})
	c.Set("b", domain.ProcessedQuery{OriginalQuery: "b"})

	_, ok := c.Get("a")
	require.True(t, ok)

	c.Set("c", domain.ProcessedQuery{OriginalQuery: "c"})

	_, ok = c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCacheReplaceResetsInsertTime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	c := New(10, time.Hour, WithClock(clock.Now))

	c.Set("k", domain.ProcessedQuery{RewrittenQuery: "v1"})
	clock.Advance(50 * time.Minute)
	c.Set("k", domain.ProcessedQuery{RewrittenQuery: "v2"})
	clock.Advance(50 * time.Minute)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", got.RewrittenQuery)
	assert.Equal(t, 1, c.Len())
}

func TestCacheDefaultsAndStats(t *testing.T) {
	c := New(0, 0)
	assert.Equal(t, DefaultCapacity, c.capacity)
	assert.Equal(t, DefaultTTL, c.ttl)

	c.Set("x", domain.ProcessedQuery{})
	c.Get("x")
	c.Get("y")
	assert.Equal(t, Stats{Size: 1, Hits: 1, Misses: 1}, c.Stats())
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New(50, time.Hour)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("q-%d", (g*200+i)%75)
				c.Set(key, domain.ProcessedQuery{OriginalQuery: key})
				c.Get(key)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
