// Package manager implements the versioned page allocator built on top of
// pkg/pagestore and pkg/pages: PageManager tracks which pages are free,
// hands them out on request, and durably commits its state to the
// ConfigPage header ring with copy-on-write semantics.
package manager

import (
	"sync"

	"github.com/pkg/errors"

	"vpager/internal/logging"
	"vpager/pkg/pages"
	"vpager/pkg/pagestore"
	"vpager/pkg/u48"
)

var log = logging.With("manager")

const rootConfigIndex = 0

// PageManager is the central allocator. One instance owns a PageStore and
// mirrors the root ConfigPage's live record in memory, along with the
// in-memory view of the recycled-pages chain.
type PageManager struct {
	mu sync.Mutex

	store *pagestore.PageStore

	totalAllocatedPages uint64
	versionNumber       uint64
	lastUsedPage        uint64
	recycledPagesHead   uint64
	previousConfigPage  uint64
	offset              uint64

	// recycledPages mirrors the entries reachable from recycledPagesHead
	// (a single FreeListPage's worth; chain advancement happens lazily in
	// GetFreePages as this buffer empties).
	recycledPages []uint64

	// pendingRecycled holds indices handed to RecyclePages since the last
	// ConsolidateState call. Not usable for allocation until committed.
	pendingRecycled []uint64
}

// New opens a PageManager over store. If the store's root ConfigPage has
// total_allocated_pages == 0, it is treated as freshly created and
// bootstrapped; otherwise the manager resumes from the persisted state.
func New(store *pagestore.PageStore, numPages uint64) (*PageManager, error) {
	buf, err := store.Slice(rootConfigIndex)
	if err != nil {
		return nil, errors.Wrap(err, "manager: reading root config page")
	}
	root := pages.AsConfigPage(buf)
	record := root.Record0()

	pm := &PageManager{store: store}

	if record.TotalAllocatedPages.ToU64() == 0 {
		if record.LastUsedPage.ToU64() != 0 || record.RecycledPagesListHead.ToU64() != 0 {
			return nil, ErrCorruptBootstrap
		}
		if err := pm.bootstrap(numPages); err != nil {
			return nil, err
		}
		log.WithField("total_pages", numPages).Info("bootstrapped page manager")
		return pm, nil
	}

	pm.totalAllocatedPages = record.TotalAllocatedPages.ToU64()
	pm.versionNumber = record.VersionNumber
	pm.lastUsedPage = record.LastUsedPage.ToU64()
	pm.recycledPagesHead = record.RecycledPagesListHead.ToU64()
	pm.previousConfigPage = record.PreviousConfigPage.ToU64()
	pm.offset = record.Offset

	headBuf, err := store.Slice(pm.recycledPagesHead)
	if err != nil {
		return nil, errors.Wrap(err, "manager: reading recycled pages head")
	}
	pm.recycledPages = toUint64Slice(pages.AsFreeListPage(headBuf).CollectNonzero())

	log.WithField("version", pm.versionNumber).Info("resumed page manager")
	return pm, nil
}

// bootstrap initializes a brand-new store: it reserves page 1 as an empty
// recycled-pages head and writes the initial root record directly, without
// going through the general ConsolidateState commit protocol.
func (pm *PageManager) bootstrap(numPages uint64) error {
	pm.totalAllocatedPages = numPages

	freePages, err := pm.GetFreePages(1, true)
	if err != nil {
		return err
	}
	pm.recycledPagesHead = freePages[0]

	headBuf, err := pm.store.Slice(pm.recycledPagesHead)
	if err != nil {
		return errors.Wrap(err, "manager: reading fresh recycled pages head")
	}
	pages.AsFreeListPage(headBuf).SetNext(u48.Zero)

	rootBuf, err := pm.store.Slice(rootConfigIndex)
	if err != nil {
		return errors.Wrap(err, "manager: reading root config page")
	}
	root := pages.AsConfigPage(rootBuf)
	root.SetTotalAllocatedPages(u48.FromU64(pm.totalAllocatedPages))
	root.SetVersionNumber(1)
	root.SetLastUsedPage(u48.FromU64(pm.lastUsedPage))
	root.SetRecycledPagesListHead(u48.FromU64(pm.recycledPagesHead))
	root.SetPreviousConfigPage(u48.Zero)
	root.SetOffset(1)

	if err := pm.store.Flush(); err != nil {
		return errors.Wrap(err, "manager: flushing bootstrap record")
	}

	pm.versionNumber = 1
	pm.previousConfigPage = 0
	pm.offset = 1
	return nil
}

// GetFreePages returns num page indices. When reuse is true, it drains the
// in-memory recycled-pages buffer first (front-drain, FIFO), advancing to
// the next FreeListPage in the chain as the buffer empties, before falling
// back to fresh pages taken from beyond last_used_page.
func (pm *PageManager) GetFreePages(num uint64, reuse bool) ([]uint64, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.getFreePagesLocked(num, reuse)
}

func (pm *PageManager) getFreePagesLocked(num uint64, reuse bool) ([]uint64, error) {
	out := make([]uint64, 0, num)

	for reuse && pm.recycledPagesHead != 0 && uint64(len(out)) < num {
		if len(pm.recycledPages) > 0 {
			out = append(out, pm.recycledPages[0])
			pm.recycledPages = pm.recycledPages[1:]
			continue
		}

		headBuf, err := pm.store.Slice(pm.recycledPagesHead)
		if err != nil {
			return nil, errors.Wrap(err, "manager: reading recycled pages head")
		}
		head := pages.AsFreeListPage(headBuf)
		next := head.GetNext().ToU64()
		if next == 0 {
			break
		}

		nextBuf, err := pm.store.Slice(next)
		if err != nil {
			return nil, errors.Wrap(err, "manager: reading next recycled pages page")
		}
		nextEntries := toUint64Slice(pages.AsFreeListPage(nextBuf).CollectNonzero())
		if len(nextEntries) == 0 {
			// A non-terminal chunk (next != 0) must carry at least one
			// live entry; one with none is a malformed chain rather than
			// legitimately exhausted, and would otherwise be read as "no
			// more recycled pages" while silently stranding whatever
			// comes after it.
			return nil, ErrRecycledChainInconsistent
		}

		pm.recycledPagesHead = next
		pm.recycledPages = nextEntries
	}

	for uint64(len(out)) < num {
		candidate := pm.lastUsedPage + 1
		if candidate >= pm.totalAllocatedPages {
			return nil, outOfPages(pm.totalAllocatedPages, candidate)
		}
		pm.lastUsedPage = candidate
		out = append(out, candidate)
	}

	return out, nil
}

// RecyclePages marks indices as recyclable. They are not usable for
// allocation until the next successful ConsolidateState call.
func (pm *PageManager) RecyclePages(indices []uint64) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.pendingRecycled = append(pm.pendingRecycled, indices...)
}

// ConsolidateState commits the manager's in-memory state to durable
// storage: it stages a new root record into a freshly obtained ConfigPage,
// threads the recycled-pages chain if it changed, then overwrites the root
// with the staged record and flushes.
//
// The staging page (and, on ring overflow, the archival copy page) is
// obtained fresh for every commit and is never itself folded back into the
// recycled pool — it is simply abandoned, the same way old ConfigPage
// snapshots are never freed.
func (pm *PageManager) ConsolidateState() error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	onDiskHeadBuf, err := pm.store.Slice(pm.recycledPagesHead)
	if err != nil {
		return errors.Wrap(err, "manager: reading recycled pages head")
	}
	onDiskRecycled := toUint64Slice(pages.AsFreeListPage(onDiskHeadBuf).CollectNonzero())

	rootBuf, err := pm.store.Slice(rootConfigIndex)
	if err != nil {
		return errors.Wrap(err, "manager: reading root config page")
	}
	root := pages.AsConfigPage(rootBuf)

	nextCfgPages, err := pm.getFreePagesLocked(1, true)
	if err != nil {
		return errors.Wrap(err, "manager: reserving staging config page")
	}
	nextCfg := nextCfgPages[0]

	stagingBuf, err := pm.store.Slice(nextCfg)
	if err != nil {
		return errors.Wrap(err, "manager: reading staging config page")
	}
	staging := pages.AsConfigPage(stagingBuf)

	curVersion := pm.versionNumber
	curOffset := pm.offset
	var newVersion, newOffset, newPrevConfigPage uint64

	if curOffset > pages.RecordCapacity-1 {
		copyPages, err := pm.getFreePagesLocked(1, true)
		if err != nil {
			return errors.Wrap(err, "manager: reserving archival copy page")
		}
		copyPage := copyPages[0]

		copyBuf, err := pm.store.Slice(copyPage)
		if err != nil {
			return errors.Wrap(err, "manager: reading archival copy page")
		}
		pages.AsConfigPage(copyBuf).CopyFrom(root)

		staging.CopyHeaderFrom(root)
		staging.SetOffset(1)
		staging.SetPreviousConfigPage(u48.FromU64(copyPage))
		staging.CopyRecord0To(1)
		staging.SetOffset(2)
		staging.SetVersionNumber(curVersion + 1)

		newVersion = curVersion + 1
		newOffset = 2
		newPrevConfigPage = copyPage

		log.WithFields(map[string]interface{}{
			"copy_page": copyPage,
			"version":   newVersion,
		}).Info("config ring overflowed, spilling to archival copy")
	} else {
		staging.CopyFrom(root)
		staging.CopyRecord0To(int(curOffset))
		staging.SetOffset(curOffset + 1)
		staging.SetVersionNumber(curVersion + 1)

		newVersion = curVersion + 1
		newOffset = curOffset + 1
		newPrevConfigPage = pm.previousConfigPage
	}

	merged := append(append([]uint64(nil), pm.recycledPages...), pm.pendingRecycled...)
	pm.pendingRecycled = nil

	if !equalUint64(merged, onDiskRecycled) {
		if err := pm.rewriteRecycledChain(merged); err != nil {
			return errors.Wrap(err, "manager: rewriting recycled pages chain")
		}
	} else {
		pm.recycledPages = merged
	}

	staging.SetLastUsedPage(u48.FromU64(pm.lastUsedPage))
	staging.SetRecycledPagesListHead(u48.FromU64(pm.recycledPagesHead))
	staging.SetTotalAllocatedPages(u48.FromU64(pm.totalAllocatedPages))

	// The new chain and the staging page must be durable before the root
	// is overwritten.
	if err := pm.store.Flush(); err != nil {
		return errors.Wrap(err, "manager: flushing staged state")
	}

	root.CopyFrom(staging)
	if err := pm.store.Flush(); err != nil {
		return errors.Wrap(err, "manager: flushing committed state")
	}

	pm.versionNumber = newVersion
	pm.offset = newOffset
	pm.previousConfigPage = newPrevConfigPage

	return nil
}

// rewriteRecycledChain threads entries into fresh FreeListPage chunks of up
// to pages.FreeListSlotCount each, obtains those chunk pages using the
// current (pre-merge) recycled-pages buffer, links them head-to-tail, and
// points recycledPagesHead at the first chunk.
func (pm *PageManager) rewriteRecycledChain(entries []uint64) error {
	oldHeadBuf, err := pm.store.Slice(pm.recycledPagesHead)
	if err != nil {
		return errors.Wrap(err, "reading previous recycled pages head")
	}
	tailNext := pages.AsFreeListPage(oldHeadBuf).GetNext()

	numChunks := (len(entries) + pages.FreeListSlotCount - 1) / pages.FreeListSlotCount
	if numChunks == 0 {
		numChunks = 1
	}

	chunkPages, err := pm.getFreePagesLocked(uint64(numChunks), true)
	if err != nil {
		return errors.Wrap(err, "reserving recycled chain chunk pages")
	}

	for i, pageIdx := range chunkPages {
		lo := i * pages.FreeListSlotCount
		hi := lo + pages.FreeListSlotCount
		if hi > len(entries) {
			hi = len(entries)
		}
		if lo > len(entries) {
			lo = len(entries)
		}

		buf, err := pm.store.Slice(pageIdx)
		if err != nil {
			return errors.Wrap(err, "reading recycled chain chunk page")
		}
		chunk := pages.AsFreeListPage(buf)
		chunk.SetPayload(entries[lo:hi])

		if i == len(chunkPages)-1 {
			chunk.SetNext(tailNext)
		} else {
			chunk.SetNext(u48.FromU64(chunkPages[i+1]))
		}
	}

	pm.recycledPagesHead = chunkPages[0]
	headLen := len(entries)
	if headLen > pages.FreeListSlotCount {
		headLen = pages.FreeListSlotCount
	}
	pm.recycledPages = entries[:headLen]
	return nil
}

// GetFreeListPageAt returns the recycled-pages entries visible to the
// ConfigPage record for the given version. A ConfigPage's ring slot for a
// version is version mod (RecordCapacity-1); since that formula is only
// valid within the page that owns the version, each candidate record is
// verified by its own stored version_number before being trusted, falling
// through to previous_config_page on a mismatch (spec.md §4.4 open
// question 3: the reference does not implement this chain walk at all).
func (pm *PageManager) GetFreeListPageAt(version uint64) ([]u48.U48, error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if version > pm.versionNumber {
		return nil, ErrVersionOutOfRange
	}

	cfgPageIndex := uint64(rootConfigIndex)
	for {
		buf, err := pm.store.Slice(cfgPageIndex)
		if err != nil {
			return nil, errors.Wrap(err, "manager: reading config page while resolving version")
		}
		cfg := pages.AsConfigPage(buf)

		if record, ok := findVersionInPage(cfg, version); ok {
			headBuf, err := pm.store.Slice(record.RecycledPagesListHead.ToU64())
			if err != nil {
				return nil, errors.Wrap(err, "manager: reading historical recycled pages head")
			}
			return pages.AsFreeListPage(headBuf).CollectNonzero(), nil
		}

		prev := cfg.GetPreviousConfigPage().ToU64()
		if prev == 0 {
			return nil, ErrVersionOutOfRange
		}
		cfgPageIndex = prev
	}
}

// findVersionInPage checks whether cfg's live record or ring-indexed slot
// holds the given version, verifying by the record's own stored
// version_number rather than trusting the slot formula blindly.
func findVersionInPage(cfg *pages.ConfigPage, version uint64) (pages.Record, bool) {
	if live := cfg.Record0(); live.VersionNumber == version {
		return live, true
	}
	// version mod (RecordCapacity-1) lands on slot 0 for every version
	// that's an exact multiple of 127, but slot 0 is Record0 (already
	// checked above) — the ring's own archived slot for those versions
	// is the last one, 127, not 0.
	slot := int(version % (pages.RecordCapacity - 1))
	if slot == 0 {
		slot = pages.RecordCapacity - 1
	}
	if rec := cfg.RecordAt(slot); rec.VersionNumber == version {
		return rec, true
	}
	return pages.Record{}, false
}

// Stats is a point-in-time snapshot of allocator state, consumed by
// metrics.Collector.
type Stats struct {
	TotalAllocatedPages uint64
	LastUsedPage        uint64
	VersionNumber       uint64
	RecycledPageCount   int
}

// Snapshot returns the manager's current state for observability.
func (pm *PageManager) Snapshot() Stats {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return Stats{
		TotalAllocatedPages: pm.totalAllocatedPages,
		LastUsedPage:        pm.lastUsedPage,
		VersionNumber:       pm.versionNumber,
		RecycledPageCount:   len(pm.recycledPages),
	}
}

func toUint64Slice(in []u48.U48) []uint64 {
	out := make([]uint64, len(in))
	for i, v := range in {
		out[i] = v.ToU64()
	}
	return out
}

func equalUint64(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
