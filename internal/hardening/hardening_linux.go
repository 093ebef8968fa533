//go:build linux
// +build linux

package hardening

import (
	"syscall"

	"github.com/Qeltrix/Qeltrix/internal/tlog"
)

// HardenProcess disables core dumps and, via PR_SET_DUMPABLE, stops
// /proc/<pid>/mem and ptrace attachment from exposing this process to
// other users on the same host — both routes a data key could otherwise
// leak through while Pack/Unpack/Seek hold it in memory.
func (ph *ProcessHardening) HardenProcess() {
	if !ph.enabled {
		return
	}

	ph.setDumpable(false)
	ph.disableCoreDumps()

	tlog.Debug.Printf("hardening: process hardened against core dumps and ptrace (linux)")
}

func (ph *ProcessHardening) setDumpable(dumpable bool) {
	_ = prctl(syscall.PR_SET_DUMPABLE, boolToInt(dumpable), 0, 0, 0)
}

func (ph *ProcessHardening) disableCoreDumps() {
	_ = syscall.Setrlimit(syscall.RLIMIT_CORE, &syscall.Rlimit{Cur: 0, Max: 0})
}

func prctl(option int, arg2, arg3, arg4, arg5 uintptr) error {
	_, _, errno := syscall.Syscall6(syscall.SYS_PRCTL, uintptr(option), arg2, arg3, arg4, arg5, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func boolToInt(b bool) uintptr {
	if b {
		return 1
	}
	return 0
}
