//go:build !linux

package memguard

import (
	"crypto/rand"
	"runtime"

	"github.com/Qeltrix/Qeltrix/internal/tlog"
)

// LockMemory is a no-op fallback for platforms without mlock/madvise
// support; it reports failure so callers know the key was not actually
// pinned out of swap.
func (mp *MemoryProtection) LockMemory(key []byte) bool {
	if !mp.enabled || len(key) == 0 {
		return false
	}
	tlog.Debug.Printf("memguard: memory locking not supported on this platform (%d-byte key)", len(key))
	return false
}

// UnlockMemory is a no-op on platforms where LockMemory never locked
// anything.
func (mp *MemoryProtection) UnlockMemory(key []byte) {}

// SecureWipe still overwrites key with random bytes even where the
// platform can't guarantee it was kept out of swap.
func (mp *MemoryProtection) SecureWipe(key []byte) {
	if len(key) == 0 {
		return
	}
	if _, err := rand.Read(key); err != nil {
		for i := range key {
			key[i] = 0
		}
	}
	runtime.KeepAlive(key)
}
