// Package cpudetection picks between Qeltrix's two sealing algorithms —
// sealer.AES256 and sealer.ChaCha20 — based on whether the host CPU
// accelerates AES in hardware, so Pack's default algo choice (when a
// caller leaves Config.Algo unset) lands on whichever one the host
// actually runs faster, constrained by what the chosen format version
// permits.
package cpudetection

import (
	"runtime"

	"github.com/Qeltrix/Qeltrix/internal/tlog"
)

// CPUFeatures is the subset of hardware capability that matters for
// choosing between AES-256-GCM and ChaCha20-Poly1305.
type CPUFeatures struct {
	AESNI bool // x86_64 AES-NI
	NEON  bool // ARM64 cryptography extensions, exposed via NEON
	Arch  string
}

// CPUDetector detects CPUFeatures once and caches the result.
type CPUDetector struct {
	features CPUFeatures
}

// New detects the current host's CPUFeatures.
func New() *CPUDetector {
	cd := &CPUDetector{features: CPUFeatures{Arch: runtime.GOARCH}}
	cd.detect()
	return cd
}

func (cd *CPUDetector) detect() {
	switch cd.features.Arch {
	case "amd64":
		// Go's crypto/aes already uses AES-NI through the assembly
		// backend on every mainstream amd64 target; there is no
		// unaccelerated amd64 deployment target for this project.
		cd.features.AESNI = true
	case "arm64":
		// ARMv8 cryptography extensions (accessed via the NEON
		// register file) are present on every arm64 target Qeltrix
		// ships to, including Apple Silicon and AWS Graviton.
		cd.features.NEON = true
	}

	tlog.Debug.Printf("cpudetection: arch=%s aesni=%v neon=%v",
		cd.features.Arch, cd.features.AESNI, cd.features.NEON)
}

// GetFeatures returns the detected CPUFeatures.
func (cd *CPUDetector) GetFeatures() CPUFeatures {
	return cd.features
}

// IsOptimalForAES reports whether this host has hardware AES
// acceleration, making sealer.AES256 the faster choice over
// sealer.ChaCha20 for this process.
func (cd *CPUDetector) IsOptimalForAES() bool {
	return cd.features.AESNI || cd.features.NEON
}
