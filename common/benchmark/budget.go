package benchmark

import (
	"sync/atomic"

	"github.com/intellect4all/cowtree/common"
)

// PageBudget is an atomic page-count gate, the same AllocDisk/FreeDisk
// pattern testutil.ResourceLimiter uses for byte budgets, scaled down
// to whole pages so a benchmark can simulate a constrained total_pages
// environment without resizing the backing file between runs.
type PageBudget struct {
	maxPages int64
	used     atomic.Int64
}

func NewPageBudget(maxPages int64) *PageBudget {
	return &PageBudget{maxPages: maxPages}
}

// Alloc reserves one page against the budget, returning
// common.ErrNoSpace once maxPages is reached.
func (b *PageBudget) Alloc() error {
	newUsed := b.used.Add(1)
	if newUsed > b.maxPages {
		b.used.Add(-1)
		return common.ErrNoSpace
	}
	return nil
}

func (b *PageBudget) Free() {
	b.used.Add(-1)
}

func (b *PageBudget) Used() int64 {
	return b.used.Load()
}

func (b *PageBudget) Remaining() int64 {
	return b.maxPages - b.used.Load()
}
