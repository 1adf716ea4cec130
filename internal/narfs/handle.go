package narfs

import (
	"bytes"

	"bazil.org/fuse"
	"github.com/go-errors/errors"

	"github.com/lf-/nyarr/internal/vfs"
	"github.com/lf-/nyarr/unix"
)

// FileHandle is an open directory or regular file, adapted from
// fusefs.FileHandle.
type FileHandle interface {
	Read(*fuse.ReadRequest) error
	Release(*fuse.ReleaseRequest) error
}

// FileHandleDir serves READDIR against a snapshot of the directory's sorted
// entries taken at open time; each entry's stable node ID is resolved when
// READDIR packs it.
type FileHandleDir struct {
	srv     *Server
	entries []vfs.DirEntry
}

// FileHandleReg serves READ against content materialized once at open time.
// Every FsObject built by internal/tarball is backed by an in-memory
// vfs.Bytes, so there is no streaming source to preserve across reads; this
// mirrors fusefs.FileHandleReg's os.File handle, just against a byte slice
// instead of a path on disk.
type FileHandleReg struct {
	data []byte
}

func (s *Server) openHandle(h FileHandle) fuse.HandleID {
	s.handleLock.Lock()
	defer s.handleLock.Unlock()
	s.lastHandleID++
	s.handleMap[s.lastHandleID] = h
	return s.lastHandleID
}

func (s *Server) handleOpenRequest(req *fuse.OpenRequest) error {
	obj, err := s.getNode(req.Node)
	if err != nil {
		return err
	}

	var handle FileHandle
	switch obj.Kind {
	case vfs.KindDirectory:
		handle = &FileHandleDir{srv: s, entries: obj.Dir.SortedEntries()}
	case vfs.KindFile:
		var buf bytes.Buffer
		if err := obj.Content.WriteInto(&buf); err != nil {
			return errors.WrapPrefix(err, "materializing file content", 0)
		}
		handle = &FileHandleReg{data: buf.Bytes()}
	default:
		return wrappedError{source: errors.New("open on a symlink"), errno: unix.EINVAL}
	}

	req.Respond(&fuse.OpenResponse{
		Handle: s.openHandle(handle),
		Flags:  fuse.OpenKeepCache,
	})
	return nil
}

func (s *Server) handleReadRequest(req *fuse.ReadRequest) error {
	s.handleLock.RLock()
	handle, ok := s.handleMap[req.Handle]
	s.handleLock.RUnlock()
	if !ok {
		return errBadHandle()
	}
	return handle.Read(req)
}

func (s *Server) handleReleaseRequest(req *fuse.ReleaseRequest) error {
	s.handleLock.Lock()
	handle, ok := s.handleMap[req.Handle]
	delete(s.handleMap, req.Handle)
	s.handleLock.Unlock()
	if !ok {
		return errBadHandle()
	}
	return handle.Release(req)
}

func (h *FileHandleDir) Read(req *fuse.ReadRequest) error {
	if !req.Dir {
		return errNotDir("read on a directory handle without Dir set")
	}

	offset := int(req.Offset)
	if offset >= len(h.entries) {
		req.Respond(&fuse.ReadResponse{})
		return nil
	}

	buf := make([]byte, req.Size)
	bufOffset := 0
	for ; offset < len(h.entries); offset++ {
		entry := h.entries[offset]
		nodeID := h.srv.nodeIDFor(entry.Child)
		size := addDirEntry(
			buf[bufOffset:],
			string(entry.Name),
			uint64(nodeID),
			uint64(offset+1),
			direntType(entry.Child),
		)
		if size == 0 {
			break
		}
		bufOffset += size
	}

	req.Respond(&fuse.ReadResponse{Data: buf[:bufOffset]})
	return nil
}

func (h *FileHandleDir) Release(req *fuse.ReleaseRequest) error {
	return nil
}

func (h *FileHandleReg) Read(req *fuse.ReadRequest) error {
	if req.Offset < 0 || int(req.Offset) >= len(h.data) {
		req.Respond(&fuse.ReadResponse{Data: nil})
		return nil
	}
	end := int(req.Offset) + req.Size
	if end > len(h.data) {
		end = len(h.data)
	}
	req.Respond(&fuse.ReadResponse{Data: h.data[req.Offset:end]})
	return nil
}

func (h *FileHandleReg) Release(req *fuse.ReleaseRequest) error {
	return nil
}
