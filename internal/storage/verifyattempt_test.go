package storage

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVerifyAttemptLimiter(t *testing.T) {
	l := NewVerifyAttemptLimiter(3, time.Minute)

	for i := 1; i <= 3; i++ {
		n, ok := l.Acquire("bob")
		assert.True(t, ok)
		assert.Equal(t, i, n)
	}

	n, ok := l.Acquire("bob")
	assert.False(t, ok)
	assert.Equal(t, 3, n)

	_, ok = l.Acquire("carol")
	assert.True(t, ok)
}

func TestVerifyAttemptLimiter_ReleaseKeepsFailures(t *testing.T) {
	l := NewVerifyAttemptLimiter(3, time.Minute)

	// two failures
	l.Acquire("bob")
	l.Acquire("bob")

	// a successful attempt only gives back its own reservation
	n, ok := l.Acquire("bob")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	l.Release("bob")

	n, ok = l.Acquire("bob")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = l.Acquire("bob")
	assert.False(t, ok)
}

func TestVerifyAttemptLimiter_ReleaseUnknownUser(t *testing.T) {
	l := NewVerifyAttemptLimiter(1, time.Minute)

	l.Release("bob")

	n, ok := l.Acquire("bob")
	assert.True(t, ok)
	assert.Equal(t, 1, n)
}

func TestVerifyAttemptLimiter_Parallel(t *testing.T) {
	l := NewVerifyAttemptLimiter(10, time.Minute)

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := l.Acquire("bob"); ok {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), accepted.Load())
}

func TestVerifyAttemptLimiter_WindowPasses(t *testing.T) {
	l := NewVerifyAttemptLimiter(1, 100*time.Millisecond)

	l.Acquire("bob")
	_, ok := l.Acquire("bob")
	assert.False(t, ok)

	assert.Eventually(t, func() bool {
		_, ok := l.Acquire("bob")
		return ok
	}, 3*time.Second, 50*time.Millisecond)
}
