//go:build linux
// +build linux

package memguard

import (
	"crypto/rand"
	"runtime"
	"syscall"
	"unsafe"

	"github.com/Qeltrix/Qeltrix/internal/tlog"
)

// madvDontDump is MADV_DONTDUMP from <linux/mman.h>; the syscall package
// does not export it.
const madvDontDump = 0x10

// LockMemory locks key's backing pages to keep them out of swap and
// marks them MADV_DONTDUMP to keep them out of a core dump. It returns
// false (non-fatally) if either syscall is unavailable, since a
// container must still pack/unpack/seek on a host without CAP_IPC_LOCK.
func (mp *MemoryProtection) LockMemory(key []byte) bool {
	if !mp.enabled || len(key) == 0 {
		return false
	}

	ptr := unsafe.Pointer(&key[0])
	size := uintptr(len(key))

	ok := true
	if err := mlock(ptr, size); err != nil {
		tlog.Debug.Printf("memguard: mlock failed: %v", err)
		ok = false
	}
	// Unlike mlock, madvise rejects a start address that is not
	// page-aligned, so the advice covers every page the key touches.
	start := uintptr(ptr) &^ uintptr(syscall.Getpagesize()-1)
	if err := madvise(start, uintptr(ptr)+size-start, madvDontDump); err != nil {
		tlog.Debug.Printf("memguard: madvise(MADV_DONTDUMP) failed: %v", err)
		ok = false
	}

	if ok {
		tlog.Debug.Printf("memguard: locked %d-byte key at %p", len(key), ptr)
	}
	return ok
}

// UnlockMemory releases a lock taken by LockMemory without touching
// key's contents, for the common case where key is a caller-owned
// UnpackConfig.DataKey that must remain valid for further Seek calls.
func (mp *MemoryProtection) UnlockMemory(key []byte) {
	if len(key) == 0 {
		return
	}
	ptr := unsafe.Pointer(&key[0])
	if err := munlock(ptr, uintptr(len(key))); err != nil {
		tlog.Debug.Printf("memguard: munlock failed: %v", err)
	}
}

// SecureWipe overwrites key with fresh random bytes and unlocks it. Only
// call this on a key the engine generated or unwrapped itself (an
// asymmetric container's unwrapped DEK) — never on a caller-supplied
// UnpackConfig.DataKey, which the caller may reuse across calls.
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
	mp.UnlockMemory(key)
}

func mlock(ptr unsafe.Pointer, size uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_MLOCK, uintptr(ptr), size, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func munlock(ptr unsafe.Pointer, size uintptr) error {
	_, _, errno := syscall.Syscall(syscall.SYS_MUNLOCK, uintptr(ptr), size, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func madvise(addr, size uintptr, advice int) error {
	_, _, errno := syscall.Syscall(syscall.SYS_MADVISE, addr, size, uintptr(advice))
	if errno != 0 {
		return errno
	}
	return nil
}
