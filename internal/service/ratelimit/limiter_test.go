package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLimiter_AllowDrainsAndRefills(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewWithClock(clk.Now)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4", 3, 1), "token %d", i)
	}
	assert.False(t, l.Allow("1.2.3.4", 3, 1))

	clk.Advance(time.Second)
	assert.True(t, l.Allow("1.2.3.4", 3, 1))
	assert.False(t, l.Allow("1.2.3.4", 3, 1))

	// capacity caps the refill
	clk.Advance(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("1.2.3.4", 3, 1))
	}
	assert.False(t, l.Allow("1.2.3.4", 3, 1))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	l := New()
	assert.True(t, l.Allow("a", 1, 0))
	assert.False(t, l.Allow("a", 1, 0))
	assert.True(t, l.Allow("b", 1, 0))
}

func TestLimiter_Prune(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewWithClock(clk.Now)
	l.Allow("old", 1, 1)
	clk.Advance(10 * time.Minute)
	l.Allow("new", 1, 1)

	assert.Equal(t, 1, l.Prune(5*time.Minute))
	assert.Equal(t, 1, l.Len())
}
