package storage

import (
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	maxTrackedVerifiers = 10000
)

// VerifyAttemptLimiter counts invitation code verifications per user.
//
// Every attempt is reserved with Acquire before the code is looked up and
// attempts which did not fail are given back with Release, so only failures
// stay counted. A successful attempt never clears earlier failures. The
// window restarts at every counted attempt.
//
// Counters live in a bounded ristretto cache. With more than
// maxTrackedVerifiers users failing at the same time the admission policy may
// drop a counter, and the limit becomes best effort for that user.
type VerifyAttemptLimiter struct {
	mu     sync.Mutex
	cache  *ristretto.Cache[string, int]
	limit  int
	window time.Duration
}

func NewVerifyAttemptLimiter(limit int, window time.Duration) *VerifyAttemptLimiter {
	c, err := ristretto.NewCache(&ristretto.Config[string, int]{
		NumCounters: maxTrackedVerifiers * 10,
		MaxCost:     maxTrackedVerifiers,
		BufferItems: 64,
	})

	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create verify attempt limiter")
	}

	return &VerifyAttemptLimiter{
		cache:  c,
		limit:  limit,
		window: window,
	}
}

// Acquire reserves an attempt for userID. It returns the attempts counted in
// the window including this one, and false without counting anything when
// the limit is reached. Check and increment happen under one lock.
func (l *VerifyAttemptLimiter) Acquire(userID string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, _ := l.cache.Get(userID)
	if n >= l.limit {
		return n, false
	}
	n++
	l.set(userID, n)
	return n, true
}

// Release gives back an attempt reserved by Acquire which did not fail.
func (l *VerifyAttemptLimiter) Release(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	n, ok := l.cache.Get(userID)
	if !ok {
		return
	}
	n--
	if n <= 0 {
		l.cache.Del(userID)
		l.cache.Wait()
		return
	}
	l.set(userID, n)
}

func (l *VerifyAttemptLimiter) set(userID string, n int) {
	if !l.cache.SetWithTTL(userID, n, 1, l.window) {
		logger.Warn().Str("user_id", userID).Msg("Verify attempt counter dropped by cache")
	}
	l.cache.Wait()
}
