package btree

import (
	"encoding/binary"

	"github.com/intellect4all/cowtree/common"
)

// allocatePage hands out a zeroed page, preferring the on-disk free
// stack over the bump-pointer region. sbHandle must be a pinned handle
// on the superblock; it is mutated and marked dirty in place.
func allocatePage(pool *Pool, sbHandle *Handle) (*Handle, error) {
	sb := decodeSuperblock(sbHandle.Data())

	if sb.Free.Allocated == sb.Free.TotalPages {
		return nil, common.ErrNoSpace
	}

	var (
		id  BlockID
		h   *Handle
		err error
	)

	if sb.Free.NextFree == 0 {
		id = sb.Free.HighestUnallocated
		sb.Free.HighestUnallocated += PageSize

		h, err = pool.newPage(id)
		if err != nil {
			return nil, err
		}
	} else {
		id = sb.Free.NextFree

		h, err = pool.Load(id)
		if err != nil {
			return nil, err
		}
		next := binary.BigEndian.Uint64(h.Data()[:8])
		sb.Free.NextFree = next

		for i := range h.Data() {
			h.Data()[i] = 0
		}
		h.SetDirty()
	}

	sb.Free.Allocated++
	sb.encode(sbHandle.Data())
	sbHandle.SetDirty()

	return h, nil
}

// freePage pushes id onto the on-disk free stack. sbHandle must be
// pinned on the superblock.
func freePage(pool *Pool, sbHandle *Handle, id BlockID) error {
	h, err := pool.Load(id)
	if err != nil {
		return err
	}
	defer h.Release()

	sb := decodeSuperblock(sbHandle.Data())

	binary.BigEndian.PutUint64(h.Data()[:8], sb.Free.NextFree)
	h.SetDirty()

	sb.Free.NextFree = id
	sb.Free.Allocated--
	sb.encode(sbHandle.Data())
	sbHandle.SetDirty()

	return nil
}

// freeMany frees every distinct id in ids. Duplicates are suppressed so
// the free stack never links a page to itself.
func freeMany(pool *Pool, sbHandle *Handle, ids []BlockID) error {
	seen := make(map[BlockID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := freePage(pool, sbHandle, id); err != nil {
			return err
		}
	}
	return nil
}
