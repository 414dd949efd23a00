package btree

import (
	"path/filepath"
	"testing"

	"github.com/intellect4all/cowtree/common"
	"github.com/intellect4all/cowtree/common/testutil"
)

func setupTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	path := filepath.Join(testutil.TempDir(t), "engine.db")

	eng, err := CreateFileSystem(DefaultConfig(path), 4096)
	if err != nil {
		t.Fatalf("CreateFileSystem failed: %v", err)
	}
	t.Cleanup(func() {
		eng.Close()
	})
	return eng, path
}

func TestEngineInsertLookupRoundTrip(t *testing.T) {
	eng, _ := setupTestEngine(t)

	if _, replaced, err := eng.Insert(1, 100); err != nil || replaced {
		t.Fatalf("Insert(1, 100) = (replaced=%v, err=%v)", replaced, err)
	}

	v, found, err := eng.Lookup(1)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if !found || v != 100 {
		t.Fatalf("Lookup(1) = (%d, %v), want (100, true)", v, found)
	}

	_, found, err = eng.Lookup(2)
	if err != nil {
		t.Fatalf("Lookup(2) returned error: %v", err)
	}
	if found {
		t.Fatalf("Lookup(2) found an entry that was never inserted")
	}
}

func TestEngineInsertReplace(t *testing.T) {
	eng, _ := setupTestEngine(t)

	eng.Insert(5, 50)

	old, replaced, err := eng.Insert(5, 500)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if !replaced || old != 50 {
		t.Fatalf("Insert(5, 500) = (old=%d, replaced=%v), want (50, true)", old, replaced)
	}

	v, found, _ := eng.Lookup(5)
	if !found || v != 500 {
		t.Fatalf("Lookup(5) after replace = (%d, %v), want (500, true)", v, found)
	}
}

func TestEngineSequentialFillForcesSplit(t *testing.T) {
	eng, _ := setupTestEngine(t)

	const n = 64
	for i := uint64(0); i < n; i++ {
		if _, replaced, err := eng.Insert(i, i*10); err != nil || replaced {
			t.Fatalf("Insert(%d, ...) = (replaced=%v, err=%v)", i, replaced, err)
		}
	}

	for i := uint64(0); i < n; i++ {
		v, found, err := eng.Lookup(i)
		if err != nil {
			t.Fatalf("Lookup(%d) failed: %v", i, err)
		}
		if !found || v != i*10 {
			t.Fatalf("Lookup(%d) = (%d, %v), want (%d, true)", i, v, found, i*10)
		}
	}
}

func TestEngineReverseFill(t *testing.T) {
	eng, _ := setupTestEngine(t)

	const n = 64
	for i := uint64(n); i > 0; i-- {
		key := i - 1
		if _, _, err := eng.Insert(key, key); err != nil {
			t.Fatalf("Insert(%d, ...) failed: %v", key, err)
		}
	}

	for i := uint64(0); i < n; i++ {
		v, found, err := eng.Lookup(i)
		if err != nil || !found || v != i {
			t.Fatalf("Lookup(%d) = (%d, %v, %v), want (%d, true, nil)", i, v, found, err, i)
		}
	}
}

func TestEngineRandomFill(t *testing.T) {
	eng, _ := setupTestEngine(t)

	keys := []uint64{42, 7, 99, 1, 1000, 13, 256, 0, 8, 55, 21, 3}
	for _, k := range keys {
		if _, _, err := eng.Insert(k, k+1); err != nil {
			t.Fatalf("Insert(%d, ...) failed: %v", k, err)
		}
	}

	for _, k := range keys {
		v, found, err := eng.Lookup(k)
		if err != nil || !found || v != k+1 {
			t.Fatalf("Lookup(%d) = (%d, %v, %v), want (%d, true, nil)", k, v, found, err, k+1)
		}
	}
}

func TestEngineDeleteShrinksToCollapse(t *testing.T) {
	eng, _ := setupTestEngine(t)

	const n = 64
	for i := uint64(0); i < n; i++ {
		eng.Insert(i, i*10)
	}

	for i := uint64(0); i < n-1; i++ {
		deleted, found, err := eng.Remove(i)
		if err != nil {
			t.Fatalf("Remove(%d) failed: %v", i, err)
		}
		if !found || deleted != i*10 {
			t.Fatalf("Remove(%d) = (%d, %v), want (%d, true)", i, deleted, found, i*10)
		}
	}

	v, found, err := eng.Lookup(n - 1)
	if err != nil {
		t.Fatalf("Lookup(%d) failed: %v", n-1, err)
	}
	if !found || v != (n-1)*10 {
		t.Fatalf("Lookup(%d) after collapse = (%d, %v), want (%d, true)", n-1, v, found, (n-1)*10)
	}

	for i := uint64(0); i < n-1; i++ {
		_, found, err := eng.Lookup(i)
		if err != nil {
			t.Fatalf("Lookup(%d) failed: %v", i, err)
		}
		if found {
			t.Fatalf("Lookup(%d) found a deleted key", i)
		}
	}
}

func TestEngineRemoveMissingKey(t *testing.T) {
	eng, _ := setupTestEngine(t)

	eng.Insert(1, 1)

	_, found, err := eng.Remove(999)
	if err != nil {
		t.Fatalf("Remove of a missing key returned an error: %v", err)
	}
	if found {
		t.Fatalf("Remove of a missing key reported found=true")
	}
}

func TestEngineReopenPreservesData(t *testing.T) {
	eng, path := setupTestEngine(t)

	const n = 64
	for i := uint64(0); i < n; i++ {
		eng.Insert(i, i*10)
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	eng2, err := Open(DefaultConfig(path))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer eng2.Close()

	for i := uint64(0); i < n; i++ {
		v, found, err := eng2.Lookup(i)
		if err != nil || !found || v != i*10 {
			t.Fatalf("Lookup(%d) after reopen = (%d, %v, %v), want (%d, true, nil)", i, v, found, err, i*10)
		}
	}
}

func TestEngineClosedReturnsErrClosed(t *testing.T) {
	eng, _ := setupTestEngine(t)

	if err := eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, _, err := eng.Lookup(1); err != common.ErrClosed {
		t.Fatalf("Lookup after Close = %v, want ErrClosed", err)
	}
	if _, _, err := eng.Insert(1, 1); err != common.ErrClosed {
		t.Fatalf("Insert after Close = %v, want ErrClosed", err)
	}
}

func TestEngineNoPageLeakAfterSplitsAndMerges(t *testing.T) {
	eng, _ := setupTestEngine(t)

	const n = 128
	for i := uint64(0); i < n; i++ {
		eng.Insert(i, i)
	}
	for i := uint64(0); i < n; i++ {
		eng.Remove(i)
	}

	// Every key is gone; the tree should be back to a single empty root
	// leaf, not leaking pages allocated by intermediate splits.
	for i := uint64(0); i < n; i++ {
		if _, found, _ := eng.Lookup(i); found {
			t.Fatalf("Lookup(%d) found a key after the whole range was removed", i)
		}
	}

	// A second, identical fill-and-drain cycle needs the same number of
	// pages at every step, so it must be served entirely from the free
	// list the first cycle left behind: a page leaked by the first cycle
	// would push the bump pointer (TotalDiskSize) further out.
	diskAfterFirstCycle := eng.Stats().TotalDiskSize
	for i := uint64(0); i < n; i++ {
		eng.Insert(i, i)
	}
	for i := uint64(0); i < n; i++ {
		eng.Remove(i)
	}
	if got := eng.Stats().TotalDiskSize; got != diskAfterFirstCycle {
		t.Fatalf("TotalDiskSize after a second identical cycle = %d, want %d (pages leaked)", got, diskAfterFirstCycle)
	}

	newKey, err := eng.NextInode()
	if err != nil {
		t.Fatalf("NextInode failed: %v", err)
	}
	if newKey != 1 {
		t.Fatalf("NextInode on a fresh superblock = %d, want 1", newKey)
	}
}

// TestEngineAllocatePageRespectsResourceLimiter gates page allocation
// through a ResourceLimiter sized for exactly two pages, the budget
// constraint it exists to enforce: the third AllocatePage must be
// rejected before the engine ever touches disk for it, and freeing a
// page must return that headroom.
func TestEngineAllocatePageRespectsResourceLimiter(t *testing.T) {
	eng, _ := setupTestEngine(t)

	limiter := testutil.NewResourceLimiter(2*PageSize, 1<<20)

	alloc := func() (*Handle, error) {
		if err := limiter.AllocDisk(PageSize); err != nil {
			return nil, err
		}
		h, err := eng.AllocatePage()
		if err != nil {
			limiter.FreeDisk(PageSize)
			return nil, err
		}
		return h, nil
	}

	h1, err := alloc()
	if err != nil {
		t.Fatalf("first AllocatePage under budget failed: %v", err)
	}
	h2, err := alloc()
	if err != nil {
		t.Fatalf("second AllocatePage under budget failed: %v", err)
	}

	if _, err := alloc(); err != common.ErrDiskFull {
		t.Fatalf("AllocatePage past budget = %v, want ErrDiskFull", err)
	}
	if got := limiter.DiskUsed(); got != 2*PageSize {
		t.Fatalf("DiskUsed after rejected alloc = %d, want %d", got, 2*PageSize)
	}

	id1 := h1.Offset()
	h1.Release()
	if err := eng.FreePage(id1); err != nil {
		t.Fatalf("FreePage failed: %v", err)
	}
	limiter.FreeDisk(PageSize)

	if _, err := alloc(); err != nil {
		t.Fatalf("AllocatePage after freeing headroom failed: %v", err)
	}
	if got := limiter.DiskUsed(); got != 2*PageSize {
		t.Fatalf("DiskUsed after reclaiming headroom = %d, want %d", got, 2*PageSize)
	}

	h2.Release()
}

func TestEngineAllocateFreePage(t *testing.T) {
	eng, _ := setupTestEngine(t)

	h, err := eng.AllocatePage()
	if err != nil {
		t.Fatalf("AllocatePage failed: %v", err)
	}
	id := h.Offset()
	h.Data()[0] = 0xAB
	h.SetDirty()
	h.Release()

	loaded, err := eng.LoadPage(id)
	if err != nil {
		t.Fatalf("LoadPage failed: %v", err)
	}
	if loaded.Data()[0] != 0xAB {
		t.Fatalf("LoadPage did not see the previously written byte")
	}
	loaded.Release()

	if err := eng.FreePage(id); err != nil {
		t.Fatalf("FreePage failed: %v", err)
	}
}
