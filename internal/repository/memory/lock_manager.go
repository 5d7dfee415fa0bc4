package memory

import (
	"context"
	"sync"
	"time"
)

// lockEntry is one held lock. Locks expire so a request that died while
// holding one cannot block the key forever.
type lockEntry struct {
	expiresAt time.Time
}

// LockManager is a single-instance TTL lock table. The SOS service takes a
// per-user lock around "check for an active alert, then create one" so two
// concurrent triggers cannot both pass the check.
//
// Go Learning Note — Channels for Signaling:
// stop is a chan struct{} that is only ever closed, never sent on. A receive
// from a closed channel succeeds immediately, so closing it wakes the sweeper
// goroutine no matter where it is in its loop.
type LockManager struct {
	mu       sync.RWMutex
	locks    map[string]*lockEntry
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

// NewLockManager starts the expiry sweeper, which runs every sweepEvery
// (one second when zero).
func NewLockManager(sweepEvery time.Duration) *LockManager {
	if sweepEvery <= 0 {
		sweepEvery = time.Second
	}
	lm := &LockManager{
		locks: make(map[string]*lockEntry),
		now:   time.Now,
		stop:  make(chan struct{}),
	}
	go lm.sweep(sweepEvery)
	return lm
}

// AcquireLock takes key for ttl. It returns false without error when the key
// is held and not yet expired, the same contract as SET key NX PX ttl.
func (lm *LockManager) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	lm.mu.Lock()
	defer lm.mu.Unlock()

	now := lm.now()
	if entry, ok := lm.locks[key]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}
	lm.locks[key] = &lockEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

func (lm *LockManager) ReleaseLock(ctx context.Context, key string) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	delete(lm.locks, key)
	return nil
}

func (lm *LockManager) IsLocked(ctx context.Context, key string) (bool, error) {
	lm.mu.RLock()
	defer lm.mu.RUnlock()

	entry, ok := lm.locks[key]
	return ok && lm.now().Before(entry.expiresAt), nil
}

// sweep drops expired entries until Stop.
//
// Go Learning Note — select Statement:
// select waits on several channel operations at once and runs whichever is
// ready first. Pairing a ticker with a stop channel is the usual shape of a
// cancellable periodic job.
func (lm *LockManager) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			lm.mu.Lock()
			now := lm.now()
			for key, entry := range lm.locks {
				if !now.Before(entry.expiresAt) {
					delete(lm.locks, key)
				}
			}
			lm.mu.Unlock()
		case <-lm.stop:
			return
		}
	}
}

// Len returns the number of entries, expired ones not yet swept included.
func (lm *LockManager) Len() int {
	lm.mu.RLock()
	defer lm.mu.RUnlock()
	return len(lm.locks)
}

// Stop ends the sweeper. It is safe to call more than once.
func (lm *LockManager) Stop() {
	lm.stopOnce.Do(func() { close(lm.stop) })
}
