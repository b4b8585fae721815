package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowBurstThenDeny(t *testing.T) {
	l := New(0.001, 2)
	defer l.Close()

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.Greater(t, l.RetryAfter("a"), time.Duration(0))

	// Keys are independent.
	assert.True(t, l.Allow("b"))
}

func TestReset(t *testing.T) {
	l := New(0.001, 1)
	defer l.Close()

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	l.Reset("a")
	assert.True(t, l.Allow("a"))
}

func TestEvictIdle(t *testing.T) {
	l := New(10, 10)
	defer l.Close()

	l.Allow("a")
	l.Allow("b")
	assert.Equal(t, 2, l.Len())

	l.evictIdle(time.Now().Add(time.Hour))
	assert.Equal(t, 0, l.Len())
	assert.Equal(t, time.Duration(0), l.RetryAfter("a"))
}

func TestCloseIsIdempotent(t *testing.T) {
	l := New(1, 1)
	l.Close()
	l.Close()
}
