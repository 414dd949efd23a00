package objectfs

import (
	"encoding/binary"

	"github.com/intellect4all/cowtree/common"
)

// DirEntry is one decoded entry of a directory page, the Go analogue of
// the original's packed DirEntry struct.
type DirEntry struct {
	Name  string
	Type  ObjectType
	Child uint64
}

func entrySize(name string) int {
	return 8 + 1 + varintSize(uint64(len(name))) + len(name)
}

func decodeEntries(data []byte) ([]DirEntry, error) {
	size := pageSize(data)
	buf := payload(data)
	if size > uint64(len(buf)) {
		return nil, common.ErrCorruptEntry
	}
	buf = buf[:size]

	var entries []DirEntry
	for len(buf) > 0 {
		if len(buf) < 9 {
			return nil, common.ErrCorruptEntry
		}
		child := binary.BigEndian.Uint64(buf[:8])
		typ := ObjectType(buf[8])
		buf = buf[9:]

		nameLen, n, err := decodeUvarintOrErr(buf)
		if err != nil {
			return nil, err
		}
		buf = buf[n:]
		if uint64(len(buf)) < nameLen {
			return nil, common.ErrCorruptEntry
		}
		name := string(buf[:nameLen])
		buf = buf[nameLen:]

		entries = append(entries, DirEntry{Name: name, Type: typ, Child: child})
	}
	return entries, nil
}

func encodeEntries(data []byte, entries []DirEntry) error {
	var total int
	for _, e := range entries {
		total += entrySize(e.Name)
	}
	buf := payload(data)
	if total > len(buf) {
		return common.ErrDirectoryFull
	}

	off := 0
	for _, e := range entries {
		binary.BigEndian.PutUint64(buf[off:off+8], e.Child)
		buf[off+8] = byte(e.Type)
		off += 9
		off += putUvarint(buf[off:], uint64(len(e.Name)))
		off += copy(buf[off:], e.Name)
	}
	for i := off; i < len(buf); i++ {
		buf[i] = 0
	}

	setPageHeader(data, TypeDirectory, uint64(total))
	return nil
}

// Lookup resolves name inside the directory at dirInode, returning the
// matching entry's inode and type.
func (fs *FS) Lookup(dirInode uint64, name string) (uint64, ObjectType, error) {
	entries, err := fs.readDirectory(dirInode)
	if err != nil {
		return 0, TypeUnknown, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Child, e.Type, nil
		}
	}
	return 0, TypeUnknown, common.ErrNameNotFound
}

// List returns every entry in the directory at dirInode, in storage
// order (insertion order, since entries are never reordered in place).
func (fs *FS) List(dirInode uint64) ([]DirEntry, error) {
	return fs.readDirectory(dirInode)
}

func (fs *FS) readDirectory(dirInode uint64) ([]DirEntry, error) {
	page, err := fs.lookupInode(dirInode)
	if err != nil {
		return nil, err
	}
	handle, err := fs.engine.LoadPage(page)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	if pageType(handle.Data()) != TypeDirectory {
		return nil, common.ErrNotDirectory
	}
	return decodeEntries(handle.Data())
}

// AddDirectory creates a new empty directory named name inside the
// directory at parentInode and returns its new inode.
func (fs *FS) AddDirectory(parentInode uint64, name string) (uint64, error) {
	return fs.addChild(parentInode, name, TypeDirectory)
}

// AddFile creates a new empty file named name inside the directory at
// parentInode and returns its new inode.
func (fs *FS) AddFile(parentInode uint64, name string) (uint64, error) {
	return fs.addChild(parentInode, name, TypeFile)
}

func (fs *FS) addChild(parentInode uint64, name string, typ ObjectType) (uint64, error) {
	parentPage, err := fs.lookupInode(parentInode)
	if err != nil {
		return 0, err
	}
	parentHandle, err := fs.engine.LoadPage(parentPage)
	if err != nil {
		return 0, err
	}
	if pageType(parentHandle.Data()) != TypeDirectory {
		parentHandle.Release()
		return 0, common.ErrNotDirectory
	}
	entries, err := decodeEntries(parentHandle.Data())
	parentHandle.Release()
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.Name == name {
			return 0, common.ErrNameExists
		}
	}

	childInode, err := fs.engine.NextInode()
	if err != nil {
		return 0, err
	}

	childHandle, err := fs.engine.AllocatePage()
	if err != nil {
		return 0, err
	}
	setPageHeader(childHandle.Data(), typ, 0)
	childHandle.SetDirty()
	childPage := childHandle.Offset()
	childHandle.Release()

	entries = append(entries, DirEntry{Name: name, Type: typ, Child: childInode})

	// CoW the parent directory page: build the new entry list into a
	// freshly allocated page, then repoint the parent's index entry.
	newParentHandle, err := fs.engine.AllocatePage()
	if err != nil {
		return 0, err
	}
	if err := encodeEntries(newParentHandle.Data(), entries); err != nil {
		newParentHandle.Release()
		return 0, err
	}
	newParentHandle.SetDirty()
	newParentPage := newParentHandle.Offset()
	newParentHandle.Release()

	if _, _, err := fs.engine.Insert(parentInode, newParentPage); err != nil {
		return 0, err
	}
	if err := fs.engine.FreePage(parentPage); err != nil {
		return 0, err
	}
	if _, _, err := fs.engine.Insert(childInode, childPage); err != nil {
		return 0, err
	}

	return childInode, nil
}

// Remove deletes the entry named name from the directory at
// parentInode, freeing its backing page. It does not recurse into
// non-empty subdirectories.
func (fs *FS) Remove(parentInode uint64, name string) error {
	parentPage, err := fs.lookupInode(parentInode)
	if err != nil {
		return err
	}
	parentHandle, err := fs.engine.LoadPage(parentPage)
	if err != nil {
		return err
	}
	if pageType(parentHandle.Data()) != TypeDirectory {
		parentHandle.Release()
		return common.ErrNotDirectory
	}
	entries, err := decodeEntries(parentHandle.Data())
	parentHandle.Release()
	if err != nil {
		return err
	}

	idx := -1
	for i, e := range entries {
		if e.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return common.ErrNameNotFound
	}
	removed := entries[idx]
	entries = append(entries[:idx], entries[idx+1:]...)

	newParentHandle, err := fs.engine.AllocatePage()
	if err != nil {
		return err
	}
	if err := encodeEntries(newParentHandle.Data(), entries); err != nil {
		newParentHandle.Release()
		return err
	}
	newParentHandle.SetDirty()
	newParentPage := newParentHandle.Offset()
	newParentHandle.Release()

	if _, _, err := fs.engine.Insert(parentInode, newParentPage); err != nil {
		return err
	}
	if err := fs.engine.FreePage(parentPage); err != nil {
		return err
	}

	childPage, _, err := fs.engine.Remove(removed.Child)
	if err != nil {
		return err
	}
	return fs.engine.FreePage(childPage)
}
