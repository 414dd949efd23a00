// Package objectfs is the object layer supplementing the core CoW
// index: directories and files keyed by integer inodes, each stored in
// a single fixed-size page. It is adapted from original_source's
// file_system.cpp/.h (FSHeader, Directory, File), reworked as a driver
// over the btree.Engine index rather than direct pointer arithmetic
// over a mapped buffer.
package objectfs

import (
	"encoding/binary"

	"github.com/intellect4all/cowtree/btree"
	"github.com/intellect4all/cowtree/common"
)

// ObjectType tags what a page's payload holds, mirroring the original's
// FSType enum (Unknown/SmallDir/SmallFile).
type ObjectType uint8

const (
	TypeUnknown ObjectType = iota
	TypeDirectory
	TypeFile
)

// RootInode is the hardcoded inode of the filesystem root directory,
// matching the original's "root is hardcoded to key 1" convention.
const RootInode uint64 = 1

const (
	headerTypeOffset = 0
	headerSizeOffset = 1
	headerSize       = 9 // 1 byte type + 8 byte size
)

const maxPayload = btree.PageSize - headerSize

func pageType(data []byte) ObjectType {
	return ObjectType(data[headerTypeOffset])
}

func pageSize(data []byte) uint64 {
	return binary.BigEndian.Uint64(data[headerSizeOffset : headerSizeOffset+8])
}

func setPageHeader(data []byte, typ ObjectType, size uint64) {
	data[headerTypeOffset] = byte(typ)
	binary.BigEndian.PutUint64(data[headerSizeOffset:headerSizeOffset+8], size)
}

func payload(data []byte) []byte {
	return data[headerSize:]
}

// FS is the object-layer driver: it owns no state of its own beyond the
// index it was opened against, matching the index driver's "the engine
// holds no directory-specific state" design (see SPEC_FULL §10).
type FS struct {
	engine *btree.Engine
}

// New wraps an already-open index engine with directory/file
// operations. The caller is responsible for the engine's lifetime.
func New(engine *btree.Engine) *FS {
	return &FS{engine: engine}
}

// lookupInode resolves an inode to its backing page, turning a
// not-found index result into ErrKeyNotFound (the object layer always
// expects the inode it's given to exist).
func (fs *FS) lookupInode(inode uint64) (uint64, error) {
	page, found, err := fs.engine.Lookup(inode)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, common.ErrKeyNotFound
	}
	return page, nil
}

// CreateRoot allocates and installs the root directory (inode
// RootInode) in a freshly created, empty index. Its only guard is that
// the superblock's next_key must hand out RootInode, otherwise it returns
// ErrCorruptEntry; it does not inspect the tree for existing entries.
func (fs *FS) CreateRoot() error {
	reserved, err := fs.engine.NextInode()
	if err != nil {
		return err
	}
	if reserved != RootInode {
		return common.ErrCorruptEntry
	}

	handle, err := fs.engine.AllocatePage()
	if err != nil {
		return err
	}
	setPageHeader(handle.Data(), TypeDirectory, 0)
	handle.SetDirty()
	id := handle.Offset()
	handle.Release()

	if _, _, err := fs.engine.Insert(RootInode, id); err != nil {
		return err
	}
	return nil
}
