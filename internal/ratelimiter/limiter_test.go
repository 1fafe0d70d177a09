package ratelimiter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedLimiterBurstThenDeny(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Unix(1_700_000_000, 0)

	assert.True(t, l.Allow("10.0.0.1|a@example.com", now))
	assert.True(t, l.Allow("10.0.0.1|a@example.com", now))
	assert.False(t, l.Allow("10.0.0.1|a@example.com", now))

	// Other keys have their own bucket.
	assert.True(t, l.Allow("10.0.0.2|a@example.com", now))

	// One token refills after a second.
	assert.True(t, l.Allow("10.0.0.1|a@example.com", now.Add(time.Second)))
}

func TestKeyedLimiterKeysAreCaseInsensitive(t *testing.T) {
	l := New(1, 1, time.Minute)
	now := time.Now()

	assert.True(t, l.Allow("User@Example.com", now))
	assert.False(t, l.Allow("user@example.com ", now))
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	l := New(0, 0, 0)
	assert.Nil(t, l)
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("k", time.Now()))
	}
	assert.Equal(t, 0, l.Len())
}

func TestEmptyKeyIsNotTracked(t *testing.T) {
	l := New(1, 1, time.Minute)
	assert.True(t, l.Allow("   ", time.Now()))
	assert.Equal(t, 0, l.Len())
}

func TestIdleBucketsAreEvicted(t *testing.T) {
	l := New(100, 100, time.Second)
	start := time.Unix(1_700_000_000, 0)
	assert.True(t, l.Allow("stale", start))

	later := start.Add(time.Hour)
	for i := 0; i < 511; i++ {
		l.Allow("fresh", later)
	}
	assert.Equal(t, 1, l.Len())
}
