package btree

import (
	"os"
	"sync"
	"sync/atomic"

	"github.com/intellect4all/cowtree/common"
)

// defaultTotalPages bounds the free-list + bump region when a caller
// uses New without specifying a file-system size explicitly.
const defaultTotalPages = 1 << 20

// Engine is the index driver: the three entry points (Lookup, Insert,
// Remove) that stitch the allocator, buffer pool, and CoW tree together
// and maintain the superblock. Every public method holds mu for its
// whole call, so calls from several goroutines of one process run one
// at a time; the tree, allocator and pool below it do no locking of
// their own and assume that single caller.
type Engine struct {
	pool   *Pool
	mu     sync.Mutex
	closed atomic.Bool

	stats struct {
		writeCount atomic.Int64
		readCount  atomic.Int64
	}
}

// CreateFileSystem initializes a fresh backing file: page 0 holds a
// superblock with next_key=1 and an empty free list, page 1 holds a new
// empty root leaf.
func CreateFileSystem(config Config, totalPages uint64) (*Engine, error) {
	pool, err := NewPool(config)
	if err != nil {
		return nil, err
	}

	if err := initSuperblock(pool, totalPages); err != nil {
		pool.Close()
		return nil, err
	}

	return &Engine{pool: pool}, nil
}

func initSuperblock(pool *Pool, totalPages uint64) error {
	rootHandle, err := pool.newPage(PageSize)
	if err != nil {
		return err
	}
	newEmptyLeaf().encode(rootHandle.Data())
	rootHandle.SetDirty()
	rootHandle.Release()

	sbHandle, err := pool.newPage(SuperblockPageID)
	if err != nil {
		return err
	}
	sb := &Superblock{
		NextKey: 1,
		Free: FreeList{
			TotalPages:         totalPages,
			Allocated:          0,
			NextFree:           0,
			HighestUnallocated: 2 * PageSize,
		},
		TreeRoot: PageSize,
	}
	sb.encode(sbHandle.Data())
	sbHandle.SetDirty()
	sbHandle.Release()

	return nil
}

// Open reopens a backing file previously initialized by
// CreateFileSystem.
func Open(config Config) (*Engine, error) {
	pool, err := NewPool(config)
	if err != nil {
		return nil, err
	}
	return &Engine{pool: pool}, nil
}

// New opens config.Path, creating and initializing it with
// defaultTotalPages if it does not already exist or is empty.
func New(config Config) (*Engine, error) {
	info, err := os.Stat(config.Path)
	if err == nil && info.Size() > 0 {
		return Open(config)
	}
	return CreateFileSystem(config, defaultTotalPages)
}

// sbUpdate carries the fields a withSuperblock callback wants changed.
// Only these fields are applied; every other field is re-read from
// sbHandle after fn returns, since fn's own tree operations (via
// allocatePage/freePage) mutate the superblock's free-list bytes
// directly as they run, and those changes must not be clobbered by a
// snapshot taken before fn started.
type sbUpdate struct {
	treeRoot *BlockID
	nextKey  *uint64
}

func (e *Engine) withSuperblock(fn func(sbHandle *Handle, rootID BlockID) (*sbUpdate, error)) error {
	sbHandle, err := e.pool.Load(SuperblockPageID)
	if err != nil {
		return err
	}
	defer sbHandle.Release()

	rootID := decodeSuperblock(sbHandle.Data()).TreeRoot
	update, err := fn(sbHandle, rootID)
	if err != nil {
		return err
	}
	if update == nil {
		return nil
	}

	sb := decodeSuperblock(sbHandle.Data())
	if update.treeRoot != nil {
		sb.TreeRoot = *update.treeRoot
	}
	if update.nextKey != nil {
		sb.NextKey = *update.nextKey
	}
	sb.encode(sbHandle.Data())
	sbHandle.SetDirty()
	return nil
}

// Lookup implements SPEC_FULL §4.4: lookup(key).
func (e *Engine) Lookup(key uint64) (uint64, bool, error) {
	if e.closed.Load() {
		return 0, false, common.ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	sbHandle, err := e.pool.Load(SuperblockPageID)
	if err != nil {
		return 0, false, err
	}
	defer sbHandle.Release()

	sb := decodeSuperblock(sbHandle.Data())
	e.stats.readCount.Add(1)

	return search(e.pool, sb.TreeRoot, key)
}

// Insert implements SPEC_FULL §4.4: insert(key, value).
func (e *Engine) Insert(key, value uint64) (uint64, bool, error) {
	if e.closed.Load() {
		return 0, false, common.ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		replaced   uint64
		didReplace bool
	)

	err := e.withSuperblock(func(sbHandle *Handle, rootID BlockID) (*sbUpdate, error) {
		freed := make([]BlockID, 0, 8)
		prop, err := insert(e.pool, sbHandle, rootID, key, value, &freed)
		if err != nil {
			return nil, err
		}

		newRoot := prop.Update
		if prop.IsSplit {
			root := newEmptyInternal()
			root.Count = 2
			root.Pairs[0] = KeyPair{Key: prop.Key, Value: prop.Left}
			root.Pairs[1] = KeyPair{Key: MaxKey, Value: prop.Right}

			id, err := storeNode(e.pool, sbHandle, root)
			if err != nil {
				return nil, err
			}
			newRoot = id
		}

		if err := freeMany(e.pool, sbHandle, freed); err != nil {
			return nil, err
		}

		replaced, didReplace = prop.Replaced, prop.DidReplace
		return &sbUpdate{treeRoot: &newRoot}, nil
	})
	if err != nil {
		return 0, false, err
	}

	e.stats.writeCount.Add(1)
	return replaced, didReplace, nil
}

// Remove implements SPEC_FULL §4.4 and §4.3.4 (root collapse).
func (e *Engine) Remove(key uint64) (uint64, bool, error) {
	if e.closed.Load() {
		return 0, false, common.ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		deletedValue uint64
		found        bool
	)

	err := e.withSuperblock(func(sbHandle *Handle, rootID BlockID) (*sbUpdate, error) {
		freed := make([]BlockID, 0, 8)
		del, err := deleteKey(e.pool, sbHandle, rootID, key, &freed)
		if err != nil {
			return nil, err
		}
		if !del.DidModify {
			return nil, nil
		}

		newRoot := del.NewChild
		rootNode, err := loadNode(e.pool, newRoot)
		if err != nil {
			return nil, err
		}
		if !rootNode.IsLeaf && rootNode.Count == 1 {
			collapsedChild := rootNode.Pairs[0].Value
			freed = append(freed, newRoot)
			newRoot = collapsedChild
		}

		if err := freeMany(e.pool, sbHandle, freed); err != nil {
			return nil, err
		}

		deletedValue, found = del.DeletedValue, true
		return &sbUpdate{treeRoot: &newRoot}, nil
	})
	if err != nil {
		return 0, false, err
	}
	if !found {
		return 0, false, nil
	}

	e.stats.writeCount.Add(1)
	return deletedValue, true, nil
}

// AllocatePage and FreePage expose the allocator to the object layer
// (SPEC_FULL §6, §10), which owns pages outside the tree's reach.
func (e *Engine) AllocatePage() (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sbHandle, err := e.pool.Load(SuperblockPageID)
	if err != nil {
		return nil, err
	}
	defer sbHandle.Release()

	return allocatePage(e.pool, sbHandle)
}

func (e *Engine) FreePage(id BlockID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sbHandle, err := e.pool.Load(SuperblockPageID)
	if err != nil {
		return err
	}
	defer sbHandle.Release()

	return freePage(e.pool, sbHandle, id)
}

func (e *Engine) FreePages(ids []BlockID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	sbHandle, err := e.pool.Load(SuperblockPageID)
	if err != nil {
		return err
	}
	defer sbHandle.Release()

	return freeMany(e.pool, sbHandle, ids)
}

// LoadPage gives the object layer raw, pinned access to any page,
// including ones it allocated itself for directory/file payloads.
func (e *Engine) LoadPage(id BlockID) (*Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Load(id)
}

// NextInode allocates and persists the next opaque object identity from
// the superblock's next_key counter (SPEC_FULL §3); the core treats this
// state as opaque and only the object layer reads/writes it.
func (e *Engine) NextInode() (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var id uint64
	err := e.withSuperblock(func(sbHandle *Handle, _ BlockID) (*sbUpdate, error) {
		sb := decodeSuperblock(sbHandle.Data())
		id = sb.NextKey
		next := sb.NextKey + 1
		return &sbUpdate{nextKey: &next}, nil
	})
	return id, err
}

func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Close()
}

func (e *Engine) Sync() error {
	if e.closed.Load() {
		return common.ErrClosed
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pool.Sync()
}

func (e *Engine) Stats() common.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	reads, writes := e.pool.Stats()
	totalDisk := int64(0)
	if sbHandle, err := e.pool.Load(SuperblockPageID); err == nil {
		sb := decodeSuperblock(sbHandle.Data())
		totalDisk = int64(sb.Free.HighestUnallocated)
		sbHandle.Release()
	}

	return common.Stats{
		NumSegments:   0,
		TotalDiskSize: totalDisk,
		WriteCount:    e.stats.writeCount.Load(),
		ReadCount:     e.stats.readCount.Load(),
		WriteAmp:      float64(writes),
		SpaceAmp:      float64(reads),
	}
}
