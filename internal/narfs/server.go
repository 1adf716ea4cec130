// Package narfs mounts an in-memory vfs.FsObject tree as a read-only FUSE
// filesystem, so a pinned repository snapshot can be browsed without ever
// unpacking it to disk (spec §8's "inspection mount" operation).
//
// The server loop, node-ID bookkeeping, and low-level fuse.Request dispatch
// are grounded on github.com/msg555/hcas's fusefs package (server.go's
// serve/handleRequest switch, node.go's inodeMap/RefCount forget bookkeeping
// using bazil.org/fuse's raw protocol types directly rather than its
// higher-level fs package). Unlike fusefs, which pages node data off of a
// reference-counted on-disk object store, every node here is a pointer into
// an already-decoded in-memory tree, so node identity is just the FsObject
// pointer itself: ObjName hex lookups and hcas.NameHex have no analog here.
package narfs

import (
	"io"
	"log"
	"sync"
	"time"

	"bazil.org/fuse"
	"github.com/go-errors/errors"

	"github.com/lf-/nyarr/internal/vfs"
	"github.com/lf-/nyarr/unix"
)

// attrTTL is how long the kernel may cache an inode's attributes before
// re-querying. The tree never mutates after mount, so this could be
// unbounded; an hour matches fusefs's DURATION_DEFAULT.
const attrTTL = time.Hour

// narTimestamp is the timestamp Nix gives every file in its store
// (epoch + 1 second), the canonical "no real timestamp" convention. NAR
// serialization carries no timestamps at all, so reporting this fixed value
// in attr responses keeps the mount free of any time information that the
// tree's hash does not cover.
var narTimestamp = time.Unix(1, 0)

type nodeEntry struct {
	obj      *vfs.FsObject
	refCount int64
}

// Server is one active FUSE mount of a single FsObject tree.
type Server struct {
	conn       *fuse.Conn
	mountPoint string

	nodeLock   sync.RWMutex
	nodeMap    map[fuse.NodeID]*nodeEntry
	objToNode  map[*vfs.FsObject]fuse.NodeID
	nextNodeID fuse.NodeID

	handleLock   sync.RWMutex
	handleMap    map[fuse.HandleID]FileHandle
	lastHandleID fuse.HandleID
}

// Mount mounts root at mountPoint and serves requests in a background
// goroutine until Close is called or the mount is unmounted externally.
func Mount(mountPoint string, root *vfs.FsObject, options ...fuse.MountOption) (*Server, error) {
	options = append(options, fuse.Subtype("narfs"), fuse.ReadOnly())

	conn, err := fuse.Mount(mountPoint, options...)
	if err != nil {
		return nil, errors.WrapPrefix(err, "mounting narfs", 0)
	}

	srv := &Server{
		conn:       conn,
		mountPoint: mountPoint,
		nodeMap:    map[fuse.NodeID]*nodeEntry{1: {obj: root, refCount: 1}},
		objToNode:  map[*vfs.FsObject]fuse.NodeID{root: 1},
		nextNodeID: 2,
		handleMap:  make(map[fuse.HandleID]FileHandle),
	}

	go func() {
		if err := srv.serve(); err == io.EOF {
			log.Printf("narfs: unmounted at %q", mountPoint)
		} else {
			log.Printf("narfs: serve loop at %q stopped: %v", mountPoint, err)
		}
	}()

	return srv, nil
}

// Close unmounts the filesystem, which in turn ends the serve loop.
func (s *Server) Close() error {
	return fuse.Unmount(s.mountPoint)
}

func (s *Server) serve() error {
	for {
		req, err := s.conn.ReadRequest()
		if err != nil {
			return err
		}
		go s.handleRequest(req)
	}
}

func (s *Server) handleRequest(req fuse.Request) {
	var err error

	switch r := req.(type) {
	case *fuse.AccessRequest:
		err = s.handleAccessRequest(r)
	case *fuse.LookupRequest:
		err = s.handleLookupRequest(r)
	case *fuse.GetattrRequest:
		err = s.handleGetattrRequest(r)
	case *fuse.OpenRequest:
		err = s.handleOpenRequest(r)
	case *fuse.ReadRequest:
		err = s.handleReadRequest(r)
	case *fuse.ReleaseRequest:
		err = s.handleReleaseRequest(r)
	case *fuse.ReadlinkRequest:
		err = s.handleReadlinkRequest(r)
	case *fuse.GetxattrRequest:
		r.Respond(&fuse.GetxattrResponse{})
	case *fuse.ListxattrRequest:
		r.Respond(&fuse.ListxattrResponse{})
	case *fuse.ForgetRequest:
		s.forget(r.Node, uint64(r.N))
		r.Respond()
	case *fuse.BatchForgetRequest:
		for _, f := range r.Forget {
			s.forget(f.NodeID, uint64(f.N))
		}
		r.Respond()
	case *fuse.DestroyRequest:
		r.Respond()
	default:
		err = wrappedError{source: errors.New("narfs: unhandled request type"), errno: unix.ENOSYS}
	}

	if err != nil {
		req.RespondError(toFuseError(err))
	}
}

func toFuseError(err error) error {
	if _, ok := err.(wrappedError); ok {
		return err
	}
	return wrappedError{source: err, errno: unix.EIO}
}

func (s *Server) getNode(id fuse.NodeID) (*vfs.FsObject, error) {
	s.nodeLock.RLock()
	defer s.nodeLock.RUnlock()

	n, ok := s.nodeMap[id]
	if !ok {
		return nil, errNotFound("unknown node")
	}
	return n.obj, nil
}

// nodeIDFor returns the stable NodeID for obj, allocating one on first
// sight and bumping its reference count otherwise. Keying by pointer
// identity means two lookups of the same child always resolve to the same
// inode number, which the kernel's attribute cache depends on.
func (s *Server) nodeIDFor(obj *vfs.FsObject) fuse.NodeID {
	s.nodeLock.Lock()
	defer s.nodeLock.Unlock()

	if id, ok := s.objToNode[obj]; ok {
		s.nodeMap[id].refCount++
		return id
	}

	id := s.nextNodeID
	s.nextNodeID++
	s.nodeMap[id] = &nodeEntry{obj: obj, refCount: 1}
	s.objToNode[obj] = id
	return id
}

func (s *Server) forget(id fuse.NodeID, n uint64) {
	s.nodeLock.Lock()
	defer s.nodeLock.Unlock()

	node, ok := s.nodeMap[id]
	if !ok {
		return
	}
	node.refCount -= int64(n)
	if node.refCount <= 0 {
		delete(s.nodeMap, id)
		delete(s.objToNode, node.obj)
	}
}

func direntType(obj *vfs.FsObject) uint32 {
	switch obj.Kind {
	case vfs.KindDirectory:
		return dtDir
	case vfs.KindSymlink:
		return dtLnk
	default:
		return dtReg
	}
}

// posixModeFor derives the POSIX mode word for obj the way a real Nix
// store entry would report it: directories and executable files are
// 0o555, symlinks are 0o777, other regular files are 0o444, matching NAR's own two-state
// executable model (spec §4.1) rather than preserving arbitrary
// permission bits tar happened to carry.
func posixModeFor(obj *vfs.FsObject) uint32 {
	switch obj.Kind {
	case vfs.KindDirectory:
		return unix.S_IFDIR | 0o555
	case vfs.KindSymlink:
		return unix.S_IFLNK | 0o777
	default:
		if obj.Executable == vfs.IsExecutable {
			return unix.S_IFREG | 0o555
		}
		return unix.S_IFREG | 0o444
	}
}

func attrFor(id fuse.NodeID, obj *vfs.FsObject) fuse.Attr {
	posixMode := posixModeFor(obj)

	var size uint64
	switch {
	case unix.S_ISDIR(posixMode):
		size = uint64(obj.Dir.Len())
	case obj.Kind == vfs.KindSymlink:
		size = uint64(len(obj.SymlinkTarget.ToPath()))
	default:
		size = uint64(obj.Content.Len())
	}

	return fuse.Attr{
		Valid:  attrTTL,
		Inode:  uint64(id),
		Size:   size,
		Blocks: (size + 511) >> 9,
		Atime:  narTimestamp,
		Mtime:  narTimestamp,
		Ctime:  narTimestamp,
		Mode:   unix.UnixToFileStatMode(posixMode),
		Nlink:  1,
	}
}

func (s *Server) handleAccessRequest(req *fuse.AccessRequest) error {
	// The mount is always read-only and world-readable; every access check
	// a reader could make already succeeds.
	req.Respond()
	return nil
}

func (s *Server) handleGetattrRequest(req *fuse.GetattrRequest) error {
	obj, err := s.getNode(req.Node)
	if err != nil {
		return err
	}
	req.Respond(&fuse.GetattrResponse{Attr: attrFor(req.Node, obj)})
	return nil
}

func (s *Server) handleLookupRequest(req *fuse.LookupRequest) error {
	parent, err := s.getNode(req.Node)
	if err != nil {
		return err
	}
	if parent.Kind != vfs.KindDirectory {
		return errNotDir("lookup on a non directory")
	}

	child := parent.Dir.Get([]byte(req.Name))
	if child == nil {
		return errNotFound("no such entry")
	}

	id := s.nodeIDFor(child)
	req.Respond(&fuse.LookupResponse{
		Node:       id,
		Generation: 1,
		EntryValid: attrTTL,
		Attr:       attrFor(id, child),
	})
	return nil
}

func (s *Server) handleReadlinkRequest(req *fuse.ReadlinkRequest) error {
	obj, err := s.getNode(req.Node)
	if err != nil {
		return err
	}
	if obj.Kind != vfs.KindSymlink {
		return wrappedError{source: errors.New("readlink on a non symlink"), errno: unix.EINVAL}
	}
	req.Respond(string(obj.SymlinkTarget.ToPath()))
	return nil
}
