package kdf

import "fmt"

// VersionDescriptor parameterizes the one engine over the container
// format's V1-V4 variants: which HKDF info label binds keys to a format
// version, which algorithms/compressions that version permits, and
// whether it allows asymmetric key transport or single-pass streaming.
//
// This table is this implementation's published resolution of the two
// open questions the format leaves unfixed: the exact HKDF info strings,
// and (for V4) whether single-pass mode is permitted.
type VersionDescriptor struct {
	Version             int
	InfoLabel           []byte
	AllowedAlgos        []string
	AllowedCompressions []string
	AllowsAsymmetric    bool
	AllowsSinglePass    bool
}

var descriptors = map[int]VersionDescriptor{
	1: {
		Version:             1,
		InfoLabel:           []byte("QLTX-KEY-V1"),
		AllowedAlgos:        []string{"chacha20"},
		AllowedCompressions: []string{"lz4"},
		AllowsAsymmetric:    false,
		AllowsSinglePass:    true,
	},
	2: {
		Version:             2,
		InfoLabel:           []byte("QLTX-KEY-V2"),
		AllowedAlgos:        []string{"chacha20"},
		AllowedCompressions: []string{"lz4", "zstd", "none"},
		AllowsAsymmetric:    false,
		AllowsSinglePass:    true,
	},
	3: {
		Version:             3,
		InfoLabel:           []byte("QLTX-KEY-V3"),
		AllowedAlgos:        []string{"chacha20", "aes256"},
		AllowedCompressions: []string{"lz4", "zstd", "none"},
		AllowsAsymmetric:    true,
		AllowsSinglePass:    true,
	},
	4: {
		Version:             4,
		InfoLabel:           []byte("QLTX-KEY-V4"),
		AllowedAlgos:        []string{"aes256"},
		AllowedCompressions: []string{"lz4", "zstd", "none"},
		AllowsAsymmetric:    false,
		AllowsSinglePass:    false,
	},
}

// Descriptor looks up the VersionDescriptor for a format version.
func Descriptor(version int) (VersionDescriptor, error) {
	d, ok := descriptors[version]
	if !ok {
		return VersionDescriptor{}, fmt.Errorf("unknown format version %d", version)
	}
	return d, nil
}

// AllowsAlgo reports whether this version permits the given AEAD algo.
func (d VersionDescriptor) AllowsAlgo(algo string) bool {
	return contains(d.AllowedAlgos, algo)
}

// AllowsCompression reports whether this version permits the given codec.
func (d VersionDescriptor) AllowsCompression(c string) bool {
	return contains(d.AllowedCompressions, c)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
