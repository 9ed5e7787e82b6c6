package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLimiterBlocksAfterBurst(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(2, time.Minute).WithClock(clock.Now)

	assert.True(t, l.Allow("203.0.113.10"))
	assert.True(t, l.Allow("203.0.113.10"))
	assert.False(t, l.Allow("203.0.113.10"))
	assert.False(t, l.Check("203.0.113.10"))
}

func TestLimiterRefills(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(2, time.Minute).WithClock(clock.Now)

	l.Allow("a")
	l.Allow("a")
	assert.False(t, l.Check("a"))

	clock.Advance(45 * time.Second)
	assert.True(t, l.Check("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestLimiterIsPerKey(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)}
	l := NewLimiter(1, time.Minute).WithClock(clock.Now)

	assert.True(t, l.Allow("203.0.113.30"))
	assert.True(t, l.Allow("203.0.113.31"))
	assert.False(t, l.Allow("203.0.113.30"))
}

func TestLimiterCheckDoesNotSpend(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	for range 5 {
		assert.True(t, l.Check("k"))
	}
	assert.True(t, l.Allow("k"))
}
