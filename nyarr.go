// Package nyarr converts POSIX tar archives into the Nix Archive (NAR)
// format and derives a subresource-integrity digest from the result. See
// SPEC_FULL.md for the full module breakdown; this file is the primary API
// boundary described in spec §6.
package nyarr

import (
	"io"

	"github.com/lf-/nyarr/internal/nar"
	"github.com/lf-/nyarr/internal/tarball"
	"github.com/lf-/nyarr/internal/vfs"
)

// StripRoot re-exports internal/tarball's option so callers never need to
// import the internal package directly.
type StripRoot = tarball.StripRoot

const (
	DontStripRoot      = tarball.DontStripRoot
	StripRootComponent = tarball.StripRootComponent
)

// TarToFsObject decodes tar into the intermediate VFS, exposing it for
// inspection or testing without committing to a NAR byte stream.
func TarToFsObject(tar io.Reader, strip StripRoot) (*vfs.FsObject, error) {
	return tarball.Decode(tar, strip)
}

// TarToNar decodes tar and serializes the canonical NAR encoding to sink.
// Content is fully buffered in memory during decode; bytes are written to
// sink as the serializer walks the resulting tree (spec §6).
func TarToNar(tar io.Reader, sink io.Writer, strip StripRoot) error {
	fso, err := tarball.Decode(tar, strip)
	if err != nil {
		return err
	}
	return nar.Write(sink, fso)
}

// NewHasher returns a write sink that accumulates a NAR-compatible SHA-256
// digest. Pass it as sink to TarToNar, then call Digest.
func NewHasher() *nar.NarHasher {
	return nar.NewHasher()
}
