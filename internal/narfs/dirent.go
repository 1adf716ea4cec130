package narfs

import "encoding/binary"

// direntAlign and addDirEntry encode a raw fuse_dirent into a READDIR reply
// buffer, adapted from fusefs.addDirEntry (bazil.org/fuse's low-level
// ReadResponse expects this struct pre-packed rather than built from a
// helper type):
//
//	struct fuse_dirent {
//	  u64   ino;
//	  u64   off;
//	  u32   namelen;
//	  u32   type;
//	  char  name[];
//	}
func direntAlign(x int) int {
	return (x + 7) &^ 7
}

const (
	dtDir = 4
	dtReg = 8
	dtLnk = 10
)

func addDirEntry(buf []byte, name string, nodeID uint64, offset uint64, direntType uint32) int {
	entryBaseLen := 24 + len(name)
	entryPadLen := direntAlign(entryBaseLen)
	if len(buf) < entryPadLen {
		return 0
	}

	binary.LittleEndian.PutUint64(buf[0:], nodeID)
	binary.LittleEndian.PutUint64(buf[8:], offset)
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(name)))
	binary.LittleEndian.PutUint32(buf[20:], direntType)
	copy(buf[24:], name)
	for i := entryBaseLen; i < entryPadLen; i++ {
		buf[i] = 0
	}

	return entryPadLen
}
