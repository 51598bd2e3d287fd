package conversations

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestUserLockerMutualExclusion(t *testing.T) {
	locker := NewUserLocker(time.Minute)

	release, err := locker.Acquire(context.Background(), "user-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, ok := locker.TryAcquire("user-1"); ok {
		t.Error("TryAcquire should fail while lock is held")
	}
	if !locker.IsHeld("user-1") {
		t.Error("IsHeld should report true")
	}

	release()

	release2, ok := locker.TryAcquire("user-1")
	if !ok {
		t.Fatal("TryAcquire should succeed after release")
	}
	release2()
}

func TestUserLockerIndependentUsers(t *testing.T) {
	locker := NewUserLocker(time.Minute)

	r1, err := locker.Acquire(context.Background(), "user-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire user-1: %v", err)
	}
	defer r1()

	r2, ok := locker.TryAcquire("user-2")
	if !ok {
		t.Fatal("user-2 lock should be independent of user-1")
	}
	r2()
}

func TestUserLockerAcquireTimeout(t *testing.T) {
	locker := NewUserLocker(time.Minute)

	release, err := locker.Acquire(context.Background(), "user-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	_, err = locker.Acquire(context.Background(), "user-1", 50*time.Millisecond)
	if err != ErrLockTimeout {
		t.Errorf("err = %v, want ErrLockTimeout", err)
	}
}

func TestUserLockerTimeoutLeavesLockUsable(t *testing.T) {
	locker := NewUserLocker(time.Minute)

	release, err := locker.Acquire(context.Background(), "user-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Timed-out waiters must not corrupt the lock state.
	for i := 0; i < 2; i++ {
		if _, err := locker.Acquire(context.Background(), "user-1", 30*time.Millisecond); err != ErrLockTimeout {
			t.Fatalf("waiter %d: err = %v, want ErrLockTimeout", i, err)
		}
	}

	release()

	done := make(chan struct{})
	go func() {
		r, err := locker.Acquire(context.Background(), "user-1", time.Second)
		if err != nil {
			t.Errorf("Acquire after timeouts: %v", err)
		} else {
			r()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock unusable after timed-out waiters")
	}
}

func TestUserLockerContextCancel(t *testing.T) {
	locker := NewUserLocker(time.Minute)

	release, err := locker.Acquire(context.Background(), "user-1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := locker.Acquire(ctx, "user-1", time.Second); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestUserLockerEvictsIdleNotHeld(t *testing.T) {
	locker := NewUserLocker(time.Minute)

	held, err := locker.Acquire(context.Background(), "held-user", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer held()

	idle, ok := locker.TryAcquire("idle-user")
	if !ok {
		t.Fatal("TryAcquire idle-user")
	}
	idle()

	// Cutoff in the future: every idle entry qualifies, held ones survive.
	locker.evictIdle(time.Now().Add(time.Hour))

	if locker.Len() != 1 {
		t.Errorf("Len = %d, want 1 (only the held entry survives)", locker.Len())
	}
	if !locker.IsHeld("held-user") {
		t.Error("held entry must never be evicted")
	}
}

func TestUserLockerContention(t *testing.T) {
	locker := NewUserLocker(time.Minute)

	var mu sync.Mutex
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "user-1", 5*time.Second)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			mu.Lock()
			counter++
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	if counter != 20 {
		t.Errorf("counter = %d, want 20", counter)
	}
}
