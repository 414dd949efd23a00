package objectfs

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/intellect4all/cowtree/btree"
	"github.com/intellect4all/cowtree/common"
	"github.com/intellect4all/cowtree/common/testutil"
)

func setupTestFS(t *testing.T) *FS {
	t.Helper()
	path := filepath.Join(testutil.TempDir(t), "objectfs.db")

	fs, err := CreateFileSystem(btree.DefaultConfig(path), 4096)
	if err != nil {
		t.Fatalf("CreateFileSystem failed: %v", err)
	}
	t.Cleanup(func() {
		fs.Close()
	})
	return fs
}

func TestCreateFileSystemHasEmptyRoot(t *testing.T) {
	fs := setupTestFS(t)

	entries, err := fs.List(RootInode)
	if err != nil {
		t.Fatalf("List(root) failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("fresh root directory has %d entries, want 0", len(entries))
	}
}

func TestAddDirectoryAndLookup(t *testing.T) {
	fs := setupTestFS(t)

	docsInode, err := fs.AddDirectory(RootInode, "docs")
	if err != nil {
		t.Fatalf("AddDirectory failed: %v", err)
	}

	inode, typ, err := fs.Lookup(RootInode, "docs")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if inode != docsInode || typ != TypeDirectory {
		t.Fatalf("Lookup(docs) = (%d, %v), want (%d, directory)", inode, typ, docsInode)
	}

	if _, _, err := fs.Lookup(RootInode, "missing"); err != common.ErrNameNotFound {
		t.Fatalf("Lookup(missing) = %v, want ErrNameNotFound", err)
	}
}

func TestAddDirectoryRejectsDuplicateName(t *testing.T) {
	fs := setupTestFS(t)

	if _, err := fs.AddDirectory(RootInode, "docs"); err != nil {
		t.Fatalf("first AddDirectory failed: %v", err)
	}
	if _, err := fs.AddDirectory(RootInode, "docs"); err != common.ErrNameExists {
		t.Fatalf("second AddDirectory(docs) = %v, want ErrNameExists", err)
	}
}

func TestAddFileWriteReadAppend(t *testing.T) {
	fs := setupTestFS(t)

	fileInode, err := fs.AddFile(RootInode, "readme.txt")
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	if err := fs.WriteFile(fileInode, []byte("hello "), 0); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fs.AppendFile(fileInode, []byte("world")); err != nil {
		t.Fatalf("AppendFile failed: %v", err)
	}

	data, err := fs.ReadFile(fileInode)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(data, []byte("hello world")) {
		t.Fatalf("ReadFile = %q, want %q", data, "hello world")
	}
}

func TestWriteFileOverwritesAtOffset(t *testing.T) {
	fs := setupTestFS(t)

	fileInode, err := fs.AddFile(RootInode, "f")
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	if err := fs.WriteFile(fileInode, []byte("aaaaaaaaaa"), 0); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fs.WriteFile(fileInode, []byte("BB"), 2); err != nil {
		t.Fatalf("WriteFile at offset failed: %v", err)
	}

	data, err := fs.ReadFile(fileInode)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !bytes.Equal(data, []byte("aaBBaaaaaa")) {
		t.Fatalf("ReadFile = %q, want %q (overwrite-at-offset, not a byte shift)", data, "aaBBaaaaaa")
	}
}

func TestWriteFileTooLargeReturnsErrFileFull(t *testing.T) {
	fs := setupTestFS(t)

	fileInode, err := fs.AddFile(RootInode, "big")
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	oversized := make([]byte, maxPayload+1)
	if err := fs.WriteFile(fileInode, oversized, 0); err != common.ErrFileFull {
		t.Fatalf("WriteFile(oversized) = %v, want ErrFileFull", err)
	}
}

func TestReadFileOnDirectoryReturnsErrNotFile(t *testing.T) {
	fs := setupTestFS(t)

	dirInode, err := fs.AddDirectory(RootInode, "docs")
	if err != nil {
		t.Fatalf("AddDirectory failed: %v", err)
	}

	if _, err := fs.ReadFile(dirInode); err != common.ErrNotFile {
		t.Fatalf("ReadFile(directory) = %v, want ErrNotFile", err)
	}
}

func TestListOnFileReturnsErrNotDirectory(t *testing.T) {
	fs := setupTestFS(t)

	fileInode, err := fs.AddFile(RootInode, "f")
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	if _, err := fs.List(fileInode); err != common.ErrNotDirectory {
		t.Fatalf("List(file) = %v, want ErrNotDirectory", err)
	}
}

func TestRemoveDeletesEntryAndFreesInode(t *testing.T) {
	fs := setupTestFS(t)

	fileInode, err := fs.AddFile(RootInode, "f")
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}

	if err := fs.Remove(RootInode, "f"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if _, _, err := fs.Lookup(RootInode, "f"); err != common.ErrNameNotFound {
		t.Fatalf("Lookup after Remove = %v, want ErrNameNotFound", err)
	}

	if _, err := fs.ReadFile(fileInode); err != common.ErrKeyNotFound {
		t.Fatalf("ReadFile(removed inode) = %v, want ErrKeyNotFound", err)
	}
}

func TestRemoveMissingNameReturnsErrNameNotFound(t *testing.T) {
	fs := setupTestFS(t)

	if err := fs.Remove(RootInode, "nope"); err != common.ErrNameNotFound {
		t.Fatalf("Remove(nope) = %v, want ErrNameNotFound", err)
	}
}

func TestListReflectsMultipleChildren(t *testing.T) {
	fs := setupTestFS(t)

	names := []string{"a", "b", "c", "d"}
	want := make(map[string]ObjectType)
	for i, n := range names {
		var err error
		if i%2 == 0 {
			_, err = fs.AddDirectory(RootInode, n)
			want[n] = TypeDirectory
		} else {
			_, err = fs.AddFile(RootInode, n)
			want[n] = TypeFile
		}
		if err != nil {
			t.Fatalf("add %q failed: %v", n, err)
		}
	}

	entries, err := fs.List(RootInode)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != len(names) {
		t.Fatalf("List returned %d entries, want %d", len(entries), len(names))
	}
	for _, e := range entries {
		if want[e.Name] != e.Type {
			t.Fatalf("entry %q has type %v, want %v", e.Name, e.Type, want[e.Name])
		}
	}
}

func TestReopenPreservesDirectoryTree(t *testing.T) {
	path := filepath.Join(testutil.TempDir(t), "reopen.db")

	fs, err := CreateFileSystem(btree.DefaultConfig(path), 4096)
	if err != nil {
		t.Fatalf("CreateFileSystem failed: %v", err)
	}
	docsInode, err := fs.AddDirectory(RootInode, "docs")
	if err != nil {
		t.Fatalf("AddDirectory failed: %v", err)
	}
	fileInode, err := fs.AddFile(docsInode, "readme.txt")
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if err := fs.WriteFile(fileInode, []byte("persisted"), 0); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if err := fs.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	fs2, err := Open(btree.DefaultConfig(path))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer fs2.Close()

	gotInode, typ, err := fs2.Lookup(RootInode, "docs")
	if err != nil || gotInode != docsInode || typ != TypeDirectory {
		t.Fatalf("Lookup(docs) after reopen = (%d, %v, %v), want (%d, directory, nil)", gotInode, typ, err, docsInode)
	}

	data, err := fs2.ReadFile(fileInode)
	if err != nil || !bytes.Equal(data, []byte("persisted")) {
		t.Fatalf("ReadFile after reopen = (%q, %v), want (\"persisted\", nil)", data, err)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40}
	for _, v := range values {
		buf := make([]byte, 10)
		n := putUvarint(buf, v)
		got, n2, err := decodeUvarintOrErr(buf[:n])
		if err != nil {
			t.Fatalf("decodeUvarintOrErr(%d) returned error: %v", v, err)
		}
		if got != v || n2 != n {
			t.Fatalf("round trip of %d = (%d, %d), want (%d, %d)", v, got, n2, v, n)
		}
	}
}

func TestDecodeUvarintOrErrOnTruncatedInput(t *testing.T) {
	truncated := []byte{0x80, 0x80, 0x80, 0x80, 0x80} // continuation bits set, no terminator
	if _, _, err := decodeUvarintOrErr(truncated); err != common.ErrCorruptEntry {
		t.Fatalf("decodeUvarintOrErr(truncated) = %v, want ErrCorruptEntry", err)
	}
}
