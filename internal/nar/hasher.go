package nar

import (
	"crypto/sha256"
	"encoding/base64"
	"hash"
)

// NarHasher is a write-only sink that accumulates a SHA-256 digest of
// whatever bytes are written to it. It never fails a write, matching the
// §7 error-kind table's "Hash/Encode — never fails" entry, and so is
// write-compatible with any other byte sink Write can target (Write doesn't
// care whether it's writing to a file or a hash).
type NarHasher struct {
	h hash.Hash
}

// NewHasher returns a fresh NarHasher ready to receive a NAR byte stream.
func NewHasher() *NarHasher {
	return &NarHasher{h: sha256.New()}
}

func (nh *NarHasher) Write(p []byte) (int, error) {
	return nh.h.Write(p)
}

// Digest finalizes the hasher and returns the subresource-integrity string
// "sha256-<base64 digest>" consumed by the lockfile manager (spec §4.4,
// §6).
func (nh *NarHasher) Digest() string {
	sum := nh.h.Sum(nil)
	return "sha256-" + base64.StdEncoding.EncodeToString(sum)
}
