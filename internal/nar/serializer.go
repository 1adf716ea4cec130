// Package nar implements the canonical Nix Archive wire format: a sequence
// of length-prefixed, 8-byte-aligned byte strings (spec §4.3).
package nar

import (
	"encoding/binary"
	"io"

	"github.com/lf-/nyarr/internal/vfs"
)

// magic is the first string of every NAR byte stream.
const magic = "nix-archive-1"

// str writes s as a NAR string: an 8-byte little-endian length, the bytes
// themselves, then zero-padding out to the next multiple of 8.
func str(w io.Writer, s []byte) error {
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(s); err != nil {
		return err
	}
	return writePadding(w, len(s))
}

// strOfStream writes a ByteStream the same way str writes a []byte, without
// requiring the content to already be a contiguous slice.
func strOfStream(w io.Writer, content vfs.ByteStream) error {
	length := content.Len()
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(length))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if err := content.WriteInto(w); err != nil {
		return err
	}
	return writePadding(w, length)
}

var zeroPad [8]byte

func writePadding(w io.Writer, length int) error {
	pad := (8 - length%8) % 8
	if pad == 0 {
		return nil
	}
	_, err := w.Write(zeroPad[:pad])
	return err
}

// Write serializes root as a complete NAR byte stream: the magic string
// followed by the wrapped root object.
func Write(w io.Writer, root *vfs.FsObject) error {
	if err := str(w, []byte(magic)); err != nil {
		return err
	}
	return writeWrapped(w, root)
}

func writeWrapped(w io.Writer, obj *vfs.FsObject) error {
	if err := str(w, []byte("(")); err != nil {
		return err
	}
	if err := writeOne(w, obj); err != nil {
		return err
	}
	return str(w, []byte(")"))
}

func writeOne(w io.Writer, obj *vfs.FsObject) error {
	switch obj.Kind {
	case vfs.KindFile:
		return writeFile(w, obj)
	case vfs.KindDirectory:
		return writeDirectory(w, obj)
	case vfs.KindSymlink:
		return writeSymlink(w, obj)
	default:
		panic("nar: unreachable FsObject kind")
	}
}

func writeFile(w io.Writer, obj *vfs.FsObject) error {
	if err := str(w, []byte("type")); err != nil {
		return err
	}
	if err := str(w, []byte("regular")); err != nil {
		return err
	}
	if obj.Executable == vfs.IsExecutable {
		// The reference encoder emits the "executable" marker as two
		// strings: the literal and a trailing empty string. Omitting the
		// second produces a non-canonical NAR (spec §4.3, §9).
		if err := str(w, []byte("executable")); err != nil {
			return err
		}
		if err := str(w, []byte("")); err != nil {
			return err
		}
	}
	if err := str(w, []byte("contents")); err != nil {
		return err
	}
	return strOfStream(w, obj.Content)
}

func writeDirectory(w io.Writer, obj *vfs.FsObject) error {
	if err := str(w, []byte("type")); err != nil {
		return err
	}
	if err := str(w, []byte("directory")); err != nil {
		return err
	}
	for _, entry := range obj.Dir.SortedEntries() {
		if err := str(w, []byte("entry")); err != nil {
			return err
		}
		if err := str(w, []byte("(")); err != nil {
			return err
		}
		if err := str(w, []byte("name")); err != nil {
			return err
		}
		if err := str(w, entry.Name); err != nil {
			return err
		}
		if err := str(w, []byte("node")); err != nil {
			return err
		}
		if err := writeWrapped(w, entry.Child); err != nil {
			return err
		}
		if err := str(w, []byte(")")); err != nil {
			return err
		}
	}
	return nil
}

func writeSymlink(w io.Writer, obj *vfs.FsObject) error {
	if err := str(w, []byte("type")); err != nil {
		return err
	}
	if err := str(w, []byte("symlink")); err != nil {
		return err
	}
	if err := str(w, []byte("target")); err != nil {
		return err
	}
	return str(w, obj.SymlinkTarget.ToPath())
}
