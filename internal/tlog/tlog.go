// Package tlog provides leveled logging for the Qeltrix engine.
//
// Debug is silent unless Enable(true) is called, so call sites may log
// per-block details (nonce, block index, key derivation inputs length) on
// the hot path without cost in the common case.
package tlog

import (
	"io"
	"log"
	"os"
)

var (
	// Debug logs are discarded unless debugging is enabled with Enable.
	Debug = log.New(io.Discard, "qltx-debug: ", log.Ltime)
	// Info logs go to stderr.
	Info = log.New(os.Stderr, "qltx-info: ", 0)
	// Warn logs go to stderr.
	Warn = log.New(os.Stderr, "qltx-warn: ", 0)
	// Fatal logs go to stderr. Callers decide whether to exit; this logger
	// never calls os.Exit itself.
	Fatal = log.New(os.Stderr, "qltx-fatal: ", 0)
)

// Enable switches Debug output on or off.
func Enable(on bool) {
	if on {
		Debug.SetOutput(os.Stderr)
	} else {
		Debug.SetOutput(io.Discard)
	}
}
