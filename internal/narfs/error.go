package narfs

import (
	"bazil.org/fuse"
	"github.com/go-errors/errors"

	"github.com/lf-/nyarr/unix"
)

// wrappedError pairs an underlying error with the errno FUSE should report
// for it, grounded on fusefs.FuseError. Handlers in this package return one
// of these where a specific errno applies; toFuseError reports any other
// error to the kernel as EIO.
type wrappedError struct {
	source error
	errno  unix.Errno
}

func (e wrappedError) Error() string {
	return e.source.Error()
}

func (e wrappedError) Errno() fuse.Errno {
	return fuse.Errno(e.errno)
}

func errNotFound(what string) error {
	return wrappedError{source: errors.New(what), errno: unix.ENOENT}
}

func errNotDir(what string) error {
	return wrappedError{source: errors.New(what), errno: unix.EISDIR}
}

func errBadHandle() error {
	return wrappedError{source: errors.New("invalid file handle"), errno: unix.EBADF}
}
