//go:build darwin
// +build darwin

package hardening

import (
	"syscall"

	"github.com/Qeltrix/Qeltrix/internal/tlog"
)

// HardenProcess disables core dumps. macOS has no PR_SET_DUMPABLE
// equivalent exposed to an unprivileged process, so this is the one
// lever available here; a data key still benefits from it not landing
// in a core file on a crash during Pack/Unpack/Seek.
func (ph *ProcessHardening) HardenProcess() {
	if !ph.enabled {
		return
	}

	ph.disableCoreDumps()

	tlog.Debug.Printf("hardening: process hardened against core dumps (darwin)")
}

func (ph *ProcessHardening) disableCoreDumps() {
	_ = syscall.Setrlimit(syscall.RLIMIT_CORE, &syscall.Rlimit{Cur: 0, Max: 0})
}
