package main

import (
	"path/filepath"
	"sync"
	"time"
)

// LockHolder describes the operation currently holding the exclusive lock
// for a target. It is returned to denied callers so they can build a
// conflict message.
type LockHolder struct {
	Kind       string    `json:"kind"`
	Target     string    `json:"target"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// LockRegistry guarantees at most one mutating operation is in flight per
// target. Acquisition is a non-blocking insert-if-absent; there is no queue
// and no retry, a denied caller is told "no" immediately.
type LockRegistry struct {
	mu      sync.RWMutex
	holders map[string]LockHolder
}

// NewLockRegistry creates an empty lock registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{
		holders: make(map[string]LockHolder),
	}
}

// Global lock registry instance used by the tool handlers
var locks = NewLockRegistry()

// normalizeTarget canonicalizes a target path so that every reference to the
// same resource maps to the same lock key. Semantic equivalence (symlinks,
// case folding) is the caller's responsibility.
func normalizeTarget(target string) string {
	abs, err := filepath.Abs(target)
	if err != nil {
		return filepath.Clean(target)
	}
	return abs
}

// TryAcquire attempts to take the exclusive lock for target. It never
// blocks. On success it returns (true, nil). If any operation already holds
// the target, regardless of its kind, it returns (false, holder), where
// holder describes the conflicting operation. Two different mutating
// operations on the same project are just as unsafe as two of the same kind,
// so the kind does not participate in the conflict key.
func (r *LockRegistry) TryAcquire(kind, target string) (bool, *LockHolder) {
	key := normalizeTarget(target)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, held := r.holders[key]; held {
		holder := existing
		return false, &holder
	}

	r.holders[key] = LockHolder{
		Kind:       kind,
		Target:     key,
		AcquiredAt: time.Now(),
	}
	return true, nil
}

// Release removes the lock for target. Releasing a target that is not held
// is a silent no-op, never an error; callers may race with a concurrent
// release on crash-recovery paths. The kind is accepted for call-site
// symmetry with TryAcquire but the normalized target alone is the key.
func (r *LockRegistry) Release(kind, target string) {
	key := normalizeTarget(target)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.holders, key)
}

// Clear removes all held locks unconditionally. Intended for test teardown
// and administrative reset, not the steady-state request path.
func (r *LockRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.holders = make(map[string]LockHolder)
}

// Holders returns a copy of all currently held locks.
func (r *LockRegistry) Holders() []LockHolder {
	r.mu.RLock()
	defer r.mu.RUnlock()

	holders := make([]LockHolder, 0, len(r.holders))
	for _, holder := range r.holders {
		holders = append(holders, holder)
	}
	return holders
}

// Count returns the number of currently held locks.
func (r *LockRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.holders)
}
