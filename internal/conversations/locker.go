package conversations

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when acquiring a user lock times out.
var ErrLockTimeout = errors.New("conversations: lock acquisition timeout")

// userLock holds the lock token in a cap-1 channel so waiters can select
// against timeouts and context cancellation. refs and lastUsed are guarded
// by UserLocker.mu.
type userLock struct {
	sem      chan struct{}
	refs     int
	lastUsed time.Time
}

func (u *userLock) held() bool { return len(u.sem) > 0 }

// UserLocker serializes direct engine calls for the same user. The run
// supervisor's active-run table is the primary exclusivity mechanism; this
// guard covers the legacy direct-call entry point.
//
// Idle entries are evicted after the configured TTL so the map does not grow
// unbounded across the process lifetime. Held entries and entries with live
// waiters are never evicted.
type UserLocker struct {
	mu    sync.Mutex
	locks map[string]*userLock
	ttl   time.Duration
}

// NewUserLocker creates a locker whose idle entries expire after ttl.
func NewUserLocker(ttl time.Duration) *UserLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	l := &UserLocker{
		locks: make(map[string]*userLock),
		ttl:   ttl,
	}
	go l.cleanupLoop()
	return l
}

func (l *UserLocker) entry(userID string) *userLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	if !ok {
		lock = &userLock{sem: make(chan struct{}, 1)}
		l.locks[userID] = lock
	}
	lock.refs++
	return lock
}

func (l *UserLocker) put(lock *userLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock.refs--
	lock.lastUsed = time.Now()
}

// Acquire blocks until the user's lock is available, the context is
// cancelled, or timeout elapses. It returns a release function.
func (l *UserLocker) Acquire(ctx context.Context, userID string, timeout time.Duration) (func(), error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	lock := l.entry(userID)
	defer l.put(lock)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case lock.sem <- struct{}{}:
		return l.releaseFunc(lock), nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryAcquire acquires the user's lock without waiting; it reports false if
// the lock is already held.
func (l *UserLocker) TryAcquire(userID string) (func(), bool) {
	lock := l.entry(userID)
	defer l.put(lock)

	select {
	case lock.sem <- struct{}{}:
		return l.releaseFunc(lock), true
	default:
		return nil, false
	}
}

func (l *UserLocker) releaseFunc(lock *userLock) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			l.mu.Lock()
			lock.lastUsed = time.Now()
			l.mu.Unlock()
		})
	}
}

// IsHeld reports whether the user's lock is currently held.
func (l *UserLocker) IsHeld(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[userID]
	return ok && lock.held()
}

// Len returns the number of tracked lock entries.
func (l *UserLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *UserLocker) cleanupLoop() {
	interval := l.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		l.evictIdle(time.Now().Add(-l.ttl))
	}
}

func (l *UserLocker) evictIdle(cutoff time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for id, lock := range l.locks {
		if !lock.held() && lock.refs == 0 && lock.lastUsed.Before(cutoff) {
			delete(l.locks, id)
		}
	}
}
