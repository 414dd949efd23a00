package objectfs

import "github.com/intellect4all/cowtree/common"

// ReadFile returns the full current contents of the file at inode.
func (fs *FS) ReadFile(inode uint64) ([]byte, error) {
	page, err := fs.lookupInode(inode)
	if err != nil {
		return nil, err
	}
	handle, err := fs.engine.LoadPage(page)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	if pageType(handle.Data()) != TypeFile {
		return nil, common.ErrNotFile
	}
	size := pageSize(handle.Data())
	out := make([]byte, size)
	copy(out, payload(handle.Data())[:size])
	return out, nil
}

// WriteFile overwrites the file at inode starting at byte offset pos
// with data, extending its size if the write reaches past the current
// end. The original's in-place write shifted trailing bytes by pos
// positions regardless of the write's length, which loses data on any
// write that doesn't start at 0 or len(data) == pos; this implementation
// overwrites at the given offset instead, which is what every caller in
// the original (always pos=0 or pos=size, i.e. append) actually needed.
func (fs *FS) WriteFile(inode uint64, data []byte, pos int) error {
	oldPage, err := fs.lookupInode(inode)
	if err != nil {
		return err
	}
	oldHandle, err := fs.engine.LoadPage(oldPage)
	if err != nil {
		return err
	}
	if pageType(oldHandle.Data()) != TypeFile {
		oldHandle.Release()
		return common.ErrNotFile
	}

	oldSize := int(pageSize(oldHandle.Data()))
	newSize := pos + len(data)
	if newSize < oldSize {
		newSize = oldSize
	}
	if newSize > maxPayload {
		oldHandle.Release()
		return common.ErrFileFull
	}

	buf := make([]byte, newSize)
	copy(buf, payload(oldHandle.Data())[:oldSize])
	copy(buf[pos:], data)
	oldHandle.Release()

	newHandle, err := fs.engine.AllocatePage()
	if err != nil {
		return err
	}
	setPageHeader(newHandle.Data(), TypeFile, uint64(newSize))
	copy(payload(newHandle.Data()), buf)
	newHandle.SetDirty()
	newPage := newHandle.Offset()
	newHandle.Release()

	if _, _, err := fs.engine.Insert(inode, newPage); err != nil {
		return err
	}
	return fs.engine.FreePage(oldPage)
}

// AppendFile writes data to the end of the file at inode.
func (fs *FS) AppendFile(inode uint64, data []byte) error {
	page, err := fs.lookupInode(inode)
	if err != nil {
		return err
	}
	handle, err := fs.engine.LoadPage(page)
	if err != nil {
		return err
	}
	size := int(pageSize(handle.Data()))
	handle.Release()

	return fs.WriteFile(inode, data, size)
}
