// Package tarball decodes POSIX tar archives into the in-memory VFS that
// internal/nar knows how to serialize. It streams tar entries but
// materializes each entry's content into an owned buffer, since tar's
// sequential-dependency between entries makes random-access reads unsafe
// once a later header has been consulted (spec §4.2, §9).
package tarball

import (
	"archive/tar"
	"io"

	"github.com/go-errors/errors"

	"github.com/lf-/nyarr/internal/vfs"
)

// StripRoot controls whether the single leading path component is dropped
// from every tar member, used when an archive wraps its contents in a
// versioned top directory (e.g. "pkg-1.0/...").
type StripRoot int

const (
	DontStripRoot StripRoot = iota
	StripRootComponent
)

// Decode reads a full tar archive from r and builds the VFS it describes.
// Per spec §9, the result always wraps the decoded tree in an outer
// Directory, even for a single-file archive — matching `nix-store --dump`'s
// behavior when dumping an extracted tree root.
func Decode(r io.Reader, strip StripRoot) (*vfs.FsObject, error) {
	tr := tar.NewReader(r)
	root := vfs.NewDir()

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapPrefix(err, "reading tar header", 0)
		}

		obj, ok, err := decodeMember(tr, header)
		if err != nil {
			return nil, err
		}
		if !ok {
			// Unknown entry type: silently skipped (spec §4.2, §7).
			continue
		}

		name, err := vfs.NewPath([]byte(header.Name))
		if err != nil {
			// A "./" header entry normalizes to empty. Not fatal (spec §4.2).
			continue
		}

		if strip == StripRootComponent {
			stripped, ok := name.DropFirst()
			if !ok {
				continue
			}
			name = stripped
		}

		if err := root.Insert(name, obj); err != nil {
			return nil, errors.WrapPrefix(err, "inserting "+header.Name, 0)
		}
	}

	return &vfs.FsObject{Kind: vfs.KindDirectory, Dir: root}, nil
}

// decodeMember classifies a single tar header and, for the three kinds NAR
// can express, builds the corresponding FsObject. The bool result is false
// for entry types the decoder silently skips (spec §4.2's "anything else").
func decodeMember(tr *tar.Reader, header *tar.Header) (*vfs.FsObject, bool, error) {
	switch header.Typeflag {
	case tar.TypeDir:
		return vfs.NewDirectory(), true, nil

	case tar.TypeReg, tar.TypeRegA:
		content := make([]byte, header.Size)
		if _, err := io.ReadFull(tr, content); err != nil {
			return nil, false, errors.WrapPrefix(err, "reading file content for "+header.Name, 0)
		}
		exec := vfs.ExecutableFromMode(header.Mode)
		return vfs.NewFile(exec, vfs.Bytes(content)), true, nil

	case tar.TypeSymlink:
		if header.Linkname == "" {
			return nil, false, errors.New("empty link name for " + header.Name)
		}
		target, err := vfs.NewPath([]byte(header.Linkname))
		if err != nil {
			return nil, false, errors.WrapPrefix(err, "parsing symlink target for "+header.Name, 0)
		}
		return vfs.NewSymlink(target), true, nil

	default:
		return nil, false, nil
	}
}
