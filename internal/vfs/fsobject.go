// Package vfs implements the in-memory virtual filesystem model that sits
// between tar decoding and NAR serialization: a subset of POSIX filesystems
// restricted to exactly what the NAR format can express.
package vfs

import (
	"bytes"
	"io"
	"sort"

	"github.com/go-errors/errors"
)

// Executable tags whether a regular file carries any of the 0o111
// permission bits.
type Executable int

const (
	NotExecutable Executable = iota
	IsExecutable
)

// ExecutableFromMode derives the Executable tag from a tar mode field.
func ExecutableFromMode(mode int64) Executable {
	if mode&0o111 != 0 {
		return IsExecutable
	}
	return NotExecutable
}

// ByteStream is the abstract content holder for a File object: it knows its
// exact length and can write itself into a sink exactly once per call. The
// buffered implementation below (Bytes) is the only one this module
// constructs; the interface exists so a future implementation could stream
// from a seekable tar without materializing contents (see spec §9).
type ByteStream interface {
	Len() int
	WriteInto(w io.Writer) error
}

// Bytes is the owned-buffer ByteStream implementation.
type Bytes []byte

func (b Bytes) Len() int { return len(b) }

func (b Bytes) WriteInto(w io.Writer) error {
	_, err := w.Write(b)
	return err
}

// Kind distinguishes the three FsObject variants.
type Kind int

const (
	KindFile Kind = iota
	KindDirectory
	KindSymlink
)

// FsObject is a tagged variant: exactly one of File, Directory, or Symlink
// is populated, selected by Kind.
type FsObject struct {
	Kind Kind

	// File
	Executable Executable
	Content    ByteStream

	// Directory
	Dir *Directory

	// Symlink: the target path, preserved verbatim (spec I4).
	SymlinkTarget Path
}

// NewFile constructs a File FsObject.
func NewFile(exec Executable, content ByteStream) *FsObject {
	return &FsObject{Kind: KindFile, Executable: exec, Content: content}
}

// NewDirectory constructs an empty Directory FsObject.
func NewDirectory() *FsObject {
	return &FsObject{Kind: KindDirectory, Dir: NewDir()}
}

// NewSymlink constructs a Symlink FsObject pointing at target.
func NewSymlink(target Path) *FsObject {
	return &FsObject{Kind: KindSymlink, SymlinkTarget: target}
}

// Directory is a mapping from a single path component to an owned child
// FsObject. Entries are stored in an ordinary map; ascending lexicographic
// ordering by raw component bytes (spec I3) is imposed explicitly at
// serialization time via SortedEntries rather than maintained continuously,
// since nothing else in this module depends on iteration order.
type Directory struct {
	entries map[string]*FsObject
}

// NewDir returns an empty Directory.
func NewDir() *Directory {
	return &Directory{entries: make(map[string]*FsObject)}
}

// DirEntry is one (component, child) pair, as returned by SortedEntries.
type DirEntry struct {
	Name  PathComponent
	Child *FsObject
}

// SortedEntries returns the directory's entries in ascending raw-byte order
// of the component key (spec I3), regardless of map iteration order.
func (d *Directory) SortedEntries() []DirEntry {
	out := make([]DirEntry, 0, len(d.entries))
	for k, v := range d.entries {
		out = append(out, DirEntry{Name: PathComponent(k), Child: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i].Name, out[j].Name) < 0
	})
	return out
}

// Get returns the child at component, or nil if absent.
func (d *Directory) Get(component []byte) *FsObject {
	return d.entries[string(component)]
}

// Len reports the number of direct children.
func (d *Directory) Len() int {
	return len(d.entries)
}

// Insert places obj at path within d, creating intermediate Directory
// entries as needed (spec I2). A path of length 1 overwrites (or creates)
// the entry directly, except that a directory inserted over an existing
// directory is merged into it, keeping the children already there. That is
// how a tar archive that lists a directory header after an implicitly-created
// child (via an earlier file entry) converges to the same tree shape.
func (d *Directory) Insert(path Path, obj *FsObject) error {
	if path.Len() == 0 {
		// Precondition violation: NewPath/SingletonPath never produce this.
		panic("vfs: attempt to insert at an empty path")
	}

	if path.Len() == 1 {
		name := string(path.FileName())
		if existing, ok := d.entries[name]; ok && existing.Kind == KindDirectory && obj.Kind == KindDirectory {
			for k, v := range obj.Dir.entries {
				existing.Dir.entries[k] = v
			}
			return nil
		}
		d.entries[name] = obj
		return nil
	}

	head, tail := path.Head()
	child, ok := d.entries[string(head)]
	if !ok {
		child = NewDirectory()
		d.entries[string(head)] = child
	}
	if child.Kind != KindDirectory {
		return errors.New("attempt to insert into a non directory")
	}

	return child.Dir.Insert(Path{components: tail}, obj)
}
