// Package unix provides the small set of POSIX mode-bit and errno helpers
// internal/narfs needs, trimmed down from github.com/msg555/hcas's unix
// package. The original also wrapped directory-scanning syscalls (Getdents,
// Openat, Readlinkat, Pread, ...) to support importing a live directory
// tree; this module never reads a live directory (tar is the only decode
// source, spec §1), so that half of the package has no home here and was
// dropped rather than adapted — see DESIGN.md. The mode-bit constants are
// likewise trimmed to the three kinds NAR can express (directory, regular
// file, symlink): there is no block/char/fifo/socket entry type, and no
// setuid/setgid/sticky bit, for a NAR tree to carry, so those constants and
// their S_IS* helpers were dropped along with EACCES (nothing here denies
// access; every mount is unconditionally read-only).
package unix

import (
	"os"

	"golang.org/x/sys/unix"
)

const (
	S_IFMT  = unix.S_IFMT
	S_IFDIR = unix.S_IFDIR
	S_IFLNK = unix.S_IFLNK
	S_IFREG = unix.S_IFREG

	EBADF  = unix.EBADF
	EINVAL = unix.EINVAL
	EIO    = unix.EIO
	EISDIR = unix.EISDIR
	ENOENT = unix.ENOENT
	ENOSYS = unix.ENOSYS
)

type Errno = unix.Errno

func S_ISDIR(mode uint32) bool {
	return (mode & S_IFMT) == S_IFDIR
}

// UnixToFileStatMode converts a POSIX mode word into the os.FileMode bits
// FUSE attribute responses expect.
func UnixToFileStatMode(unixMode uint32) os.FileMode {
	fsMode := os.FileMode(unixMode & 0777)
	switch unixMode & S_IFMT {
	case S_IFDIR:
		fsMode |= os.ModeDir
	case S_IFLNK:
		fsMode |= os.ModeSymlink
	case S_IFREG:
		// nothing to do
	}
	return fsMode
}
