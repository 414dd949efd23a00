package btree

import (
	"container/list"
	"encoding/binary"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/intellect4all/cowtree/common"
)

// PageSize is the fixed size of every page and the sole unit of I/O.
const PageSize = 4096

// SuperblockPageID is the byte offset of the superblock, always page 0.
const SuperblockPageID BlockID = 0

// BlockID is a page's byte offset in the backing file; always a
// multiple of PageSize.
type BlockID = uint64

const (
	sbOffsetNextKey            = 0
	sbOffsetTotalPages         = 8
	sbOffsetAllocated          = 16
	sbOffsetNextFree           = 24
	sbOffsetHighestUnallocated = 32
	sbOffsetTreeRoot           = 40
)

// FreeList is the allocator state embedded in the superblock.
type FreeList struct {
	TotalPages         uint64
	Allocated          uint64
	NextFree           BlockID
	HighestUnallocated BlockID
}

// Superblock is the decoded contents of page 0.
type Superblock struct {
	NextKey  uint64
	Free     FreeList
	TreeRoot BlockID
}

func decodeSuperblock(data []byte) *Superblock {
	return &Superblock{
		NextKey: binary.BigEndian.Uint64(data[sbOffsetNextKey:]),
		Free: FreeList{
			TotalPages:         binary.BigEndian.Uint64(data[sbOffsetTotalPages:]),
			Allocated:          binary.BigEndian.Uint64(data[sbOffsetAllocated:]),
			NextFree:           binary.BigEndian.Uint64(data[sbOffsetNextFree:]),
			HighestUnallocated: binary.BigEndian.Uint64(data[sbOffsetHighestUnallocated:]),
		},
		TreeRoot: binary.BigEndian.Uint64(data[sbOffsetTreeRoot:]),
	}
}

func (sb *Superblock) encode(data []byte) {
	binary.BigEndian.PutUint64(data[sbOffsetNextKey:], sb.NextKey)
	binary.BigEndian.PutUint64(data[sbOffsetTotalPages:], sb.Free.TotalPages)
	binary.BigEndian.PutUint64(data[sbOffsetAllocated:], sb.Free.Allocated)
	binary.BigEndian.PutUint64(data[sbOffsetNextFree:], sb.Free.NextFree)
	binary.BigEndian.PutUint64(data[sbOffsetHighestUnallocated:], sb.Free.HighestUnallocated)
	binary.BigEndian.PutUint64(data[sbOffsetTreeRoot:], sb.TreeRoot)
}

// Config holds configuration for the buffer pool, following the
// teacher's Config/DefaultConfig/New idiom.
type Config struct {
	Path     string
	Capacity int // number of page frames held in memory
}

// DefaultConfig returns sensible defaults for a backing file at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		Capacity: 4096,
	}
}

type frame struct {
	offset   BlockID
	data     [PageSize]byte
	pinCount int
	dirty    bool
}

// Pool is the fixed-capacity buffer pool: it owns the backing file and
// every resident page frame. All methods assume a single caller at a
// time (see the engine's own serialization mutex); Pool itself does not
// synchronize internally, matching the single-threaded cooperative
// model this engine targets.
type Pool struct {
	file     *os.File
	capacity int

	frames    []*frame
	freeIdx   []int          // indices never yet made resident
	offsetIdx map[BlockID]int // resident offset -> frame index

	lru     *list.List          // eviction candidates, pinCount == 0
	lruElem map[int]*list.Element

	stats struct {
		pageReads  int64
		pageWrites int64
	}

	closed atomic.Bool
}

// NewPool opens or creates the backing file at config.Path and returns a
// pool with config.Capacity resident frames.
func NewPool(config Config) (*Pool, error) {
	file, err := os.OpenFile(config.Path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open backing file")
	}

	if err := tryExclusiveLock(file); err != nil {
		file.Close()
		return nil, err
	}

	p := &Pool{
		file:      file,
		capacity:  config.Capacity,
		frames:    make([]*frame, config.Capacity),
		offsetIdx: make(map[BlockID]int, config.Capacity),
		lru:       list.New(),
		lruElem:   make(map[int]*list.Element, config.Capacity),
	}
	for i := range p.frames {
		p.frames[i] = &frame{}
		p.freeIdx = append(p.freeIdx, i)
	}

	return p, nil
}

// tryExclusiveLock takes a best-effort advisory flock on the backing
// file to catch the single-writer-only violation the engine itself does
// not guard against internally (see SPEC_FULL §5). Failure to lock (e.g.
// unsupported filesystem) is not fatal: it degrades to "no external
// guard", not to corrupted state.
func tryExclusiveLock(file *os.File) error {
	err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err == nil {
		return nil
	}
	if err == unix.EWOULDBLOCK {
		return errors.New("backing file is already locked by another process")
	}
	return nil
}

// Handle is a pinned accessor to one resident frame. The frame it refers
// to is guaranteed not to be evicted or reused while the handle (or any
// handle retained from it) is live.
type Handle struct {
	pool     *Pool
	frameIdx int
	offset   BlockID
	released atomic.Bool
}

// Offset returns the BlockID this handle is pinning.
func (h *Handle) Offset() BlockID { return h.offset }

// Data returns the mutable 4096-byte region backing this page.
func (h *Handle) Data() []byte {
	return h.pool.frames[h.frameIdx].data[:]
}

// SetDirty marks the pinned page dirty.
func (h *Handle) SetDirty() {
	h.pool.frames[h.frameIdx].dirty = true
}

// Write copies bytes into the page at offsetInPage, bounds-checked, and
// marks the page dirty.
func (h *Handle) Write(offsetInPage int, data []byte) error {
	if offsetInPage < 0 || offsetInPage+len(data) > PageSize {
		return common.ErrOutOfPage
	}
	copy(h.pool.frames[h.frameIdx].data[offsetInPage:], data)
	h.SetDirty()
	return nil
}

// Retain returns a new handle to the same frame, incrementing its pin.
// Use this whenever a second, independently-released reference to the
// same page is needed (e.g. holding a parent pinned while recursing).
func (h *Handle) Retain() *Handle {
	h.pool.frames[h.frameIdx].pinCount++
	return &Handle{pool: h.pool, frameIdx: h.frameIdx, offset: h.offset}
}

// Release drops this handle's pin. Idempotent: releasing an
// already-released handle is a no-op, so a deferred Release paired with
// an earlier explicit Release never double-decrements.
func (h *Handle) Release() {
	if h.released.Swap(true) {
		return
	}
	h.pool.release(h.frameIdx)
}

func (p *Pool) release(frameIdx int) {
	f := p.frames[frameIdx]
	f.pinCount--
	if f.pinCount == 0 {
		elem := p.lru.PushFront(frameIdx)
		p.lruElem[frameIdx] = elem
	}
}

// Load returns a pinned handle to the page at offset, reading it from
// disk if not already resident.
func (p *Pool) Load(offset BlockID) (*Handle, error) {
	if p.closed.Load() {
		return nil, common.ErrClosed
	}

	if idx, ok := p.offsetIdx[offset]; ok {
		f := p.frames[idx]
		if f.pinCount == 0 {
			if elem, ok := p.lruElem[idx]; ok {
				p.lru.Remove(elem)
				delete(p.lruElem, idx)
			}
		}
		f.pinCount++
		return &Handle{pool: p, frameIdx: idx, offset: offset}, nil
	}

	idx, err := p.acquireFrame()
	if err != nil {
		return nil, err
	}

	f := p.frames[idx]
	if _, err := p.file.ReadAt(f.data[:], int64(offset)); err != nil {
		p.freeIdx = append(p.freeIdx, idx)
		return nil, errors.Wrapf(err, "read page at offset %d", offset)
	}
	p.stats.pageReads++

	f.offset = offset
	f.dirty = false
	f.pinCount = 1
	p.offsetIdx[offset] = idx

	return &Handle{pool: p, frameIdx: idx, offset: offset}, nil
}

// newPage acquires a frame for offset WITHOUT reading it from disk: used
// when the allocator hands out a page beyond the current end of file, so
// there is nothing on disk yet to read.
func (p *Pool) newPage(offset BlockID) (*Handle, error) {
	if p.closed.Load() {
		return nil, common.ErrClosed
	}

	idx, err := p.acquireFrame()
	if err != nil {
		return nil, err
	}

	f := p.frames[idx]
	for i := range f.data {
		f.data[i] = 0
	}
	f.offset = offset
	f.dirty = true
	f.pinCount = 1
	p.offsetIdx[offset] = idx

	return &Handle{pool: p, frameIdx: idx, offset: offset}, nil
}

// acquireFrame returns an unused frame index, evicting the least
// recently released unpinned frame (flushing it first if dirty) when the
// pool is at capacity. Fails with ErrPoolExhausted if no frame is free
// and none can be reclaimed.
func (p *Pool) acquireFrame() (int, error) {
	if len(p.freeIdx) > 0 {
		idx := p.freeIdx[len(p.freeIdx)-1]
		p.freeIdx = p.freeIdx[:len(p.freeIdx)-1]
		return idx, nil
	}

	elem := p.lru.Back()
	if elem == nil {
		return 0, common.ErrPoolExhausted
	}
	idx := elem.Value.(int)
	p.lru.Remove(elem)
	delete(p.lruElem, idx)

	f := p.frames[idx]
	if f.dirty {
		if err := p.writeFrame(f); err != nil {
			return 0, err
		}
	}
	delete(p.offsetIdx, f.offset)

	return idx, nil
}

func (p *Pool) writeFrame(f *frame) error {
	if _, err := p.file.WriteAt(f.data[:], int64(f.offset)); err != nil {
		return errors.Wrapf(err, "write page at offset %d", f.offset)
	}
	f.dirty = false
	p.stats.pageWrites++
	return nil
}

// Flush writes back every dirty resident page without evicting it.
func (p *Pool) Flush() error {
	for offset, idx := range p.offsetIdx {
		f := p.frames[idx]
		if f.dirty {
			if err := p.writeFrame(f); err != nil {
				return err
			}
		}
		_ = offset
	}
	return nil
}

// Sync flushes dirty pages and fsyncs the backing file.
func (p *Pool) Sync() error {
	if err := p.Flush(); err != nil {
		return err
	}
	if err := p.file.Sync(); err != nil {
		return errors.Wrap(err, "fsync backing file")
	}
	return nil
}

// Close flushes all dirty pages, syncs, and closes the backing file.
func (p *Pool) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	if err := p.Sync(); err != nil {
		return err
	}
	_ = unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	return p.file.Close()
}

// Stats exposes raw page I/O counters, used by common.Stats derivation
// in the engine layer.
func (p *Pool) Stats() (reads, writes int64) {
	return p.stats.pageReads, p.stats.pageWrites
}
