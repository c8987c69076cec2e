package manager

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrCorruptBootstrap is returned when a store with total_allocated_pages
// == 0 nonetheless has a nonzero last_used_page or recycled_pages_list_head
// — an inconsistent "almost fresh" root ConfigPage.
var ErrCorruptBootstrap = errors.New("Database file is corrupted")

// ErrRecycledChainInconsistent is returned when get_free_pages advances
// onto a non-terminal FreeListPage chunk (next != 0) that itself carries
// no live entries — a malformed chain that would otherwise silently read
// as "no more recycled pages" while stranding whatever follows it
// (spec.md §4.4.2).
var ErrRecycledChainInconsistent = errors.New("Error loading recycled pages")

// ErrVersionOutOfRange is returned by GetFreeListPageAt when asked for a
// version newer than the current one.
var ErrVersionOutOfRange = errors.New("manager: requested version is newer than the current version")

// OutOfPagesError is returned when allocating a fresh page would exceed
// total_allocated_pages. Its Error() string matches the exact wording
// spec.md §8 scenario S1 requires.
type OutOfPagesError struct {
	TotalAllocatedPages uint64
	LastUsedPage        uint64
}

func (e *OutOfPagesError) Error() string {
	return fmt.Sprintf("not enough pages! total_allocated_pages: %d, last_used_page: %d",
		e.TotalAllocatedPages, e.LastUsedPage)
}

func outOfPages(total, lastUsed uint64) error {
	return &OutOfPagesError{TotalAllocatedPages: total, LastUsedPage: lastUsed}
}
