package manager

import (
	"errors"
	"testing"

	"vpager/pkg/pages"
	"vpager/pkg/pagestore"
	"vpager/pkg/u48"
)

func mustStore(t *testing.T, numPages uint64) *pagestore.PageStore {
	t.Helper()
	s, err := pagestore.OpenMemory(numPages)
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	return s
}

func record0(t *testing.T, store *pagestore.PageStore) pages.Record {
	t.Helper()
	buf, err := store.Slice(0)
	if err != nil {
		t.Fatalf("Slice(0): %v", err)
	}
	return pages.AsConfigPage(buf).Record0()
}

func recordAt(t *testing.T, store *pagestore.PageStore, slot int) pages.Record {
	t.Helper()
	buf, err := store.Slice(0)
	if err != nil {
		t.Fatalf("Slice(0): %v", err)
	}
	return pages.AsConfigPage(buf).RecordAt(slot)
}

func wantRecord(t *testing.T, label string, got pages.Record, total, version, lastUsed, recycledHead, prevCfg, offset uint64) {
	t.Helper()
	if got.TotalAllocatedPages.ToU64() != total ||
		got.VersionNumber != version ||
		got.LastUsedPage.ToU64() != lastUsed ||
		got.RecycledPagesListHead.ToU64() != recycledHead ||
		got.PreviousConfigPage.ToU64() != prevCfg ||
		got.Offset != offset {
		t.Errorf("%s = %s, want {total=%d version=%d last_used=%d recycled_head=%d prev_cfg=%d offset=%d}",
			label, got, total, version, lastUsed, recycledHead, prevCfg, offset)
	}
}

// S1 — "not enough pages".
func TestS1NotEnoughPages(t *testing.T) {
	store := mustStore(t, 1)
	_, err := New(store, 1)
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	var oop *OutOfPagesError
	if !errors.As(err, &oop) {
		t.Fatalf("expected *OutOfPagesError, got %T: %v", err, err)
	}
	if got, want := err.Error(), "not enough pages! total_allocated_pages: 1, last_used_page: 1"; got != want {
		t.Errorf("error = %q, want %q", got, want)
	}
}

// S2 — initialization of a 2-page store.
func TestS2Bootstrap(t *testing.T) {
	store := mustStore(t, 2)
	if _, err := New(store, 2); err != nil {
		t.Fatalf("New: %v", err)
	}

	wantRecord(t, "record0", record0(t, store), 2, 1, 1, 1, 0, 1)

	r1 := recordAt(t, store, 1)
	if r1.TotalAllocatedPages.ToU64() != 0 || r1.VersionNumber != 0 {
		t.Errorf("record1 = %s, want all-zero", r1)
	}
}

// S3 — single consolidate on 4 pages.
func TestS3SingleConsolidate(t *testing.T) {
	store := mustStore(t, 4)
	pm, err := New(store, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pm.ConsolidateState(); err != nil {
		t.Fatalf("ConsolidateState: %v", err)
	}

	wantRecord(t, "record0", record0(t, store), 4, 2, 2, 1, 0, 2)
	wantRecord(t, "record1", recordAt(t, store, 1), 4, 1, 1, 1, 0, 1)
}

// S4 — 126 consolidations on 129 pages (fills the ring to its last slot).
func TestS4FillRing(t *testing.T) {
	store := mustStore(t, 129)
	pm, err := New(store, 129)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 126; i++ {
		if err := pm.ConsolidateState(); err != nil {
			t.Fatalf("ConsolidateState #%d: %v", i+1, err)
		}
	}

	wantRecord(t, "record0", record0(t, store), 129, 127, 127, 1, 0, 127)
	for i := uint64(2); i < 127; i++ {
		wantRecord(t, "record", recordAt(t, store, int(i)), 129, i, i, 1, 0, i)
	}
}

// S5 — 254 consolidations on 259 pages (forces spill to previous ConfigPage).
func TestS5Spill(t *testing.T) {
	store := mustStore(t, 259)
	pm, err := New(store, 259)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 254; i++ {
		if err := pm.ConsolidateState(); err != nil {
			t.Fatalf("ConsolidateState #%d: %v", i+1, err)
		}
	}

	root := record0(t, store)
	if root.TotalAllocatedPages.ToU64() != 259 || root.VersionNumber != 255 ||
		root.LastUsedPage.ToU64() != 256 || root.Offset != 128 {
		t.Fatalf("record0 = %s, want {259,255,256,_,_,128}", root)
	}
	p := root.PreviousConfigPage.ToU64()
	if p == 0 {
		t.Fatal("expected a nonzero previous_config_page after spill")
	}

	// Versions below 128 must resolve through the archival copy page.
	entries, err := pm.GetFreeListPageAt(50)
	if err != nil {
		t.Fatalf("GetFreeListPageAt(50): %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("version 50 recycled entries = %v, want none", entries)
	}

	// Versions at or above 128 must resolve from the root's own ring.
	if _, err := pm.GetFreeListPageAt(200); err != nil {
		t.Errorf("GetFreeListPageAt(200): %v", err)
	}
	if _, err := pm.GetFreeListPageAt(255); err != nil {
		t.Errorf("GetFreeListPageAt(255) (current): %v", err)
	}

	// version 127 is an exact multiple of (RecordCapacity-1): a naive
	// `version % 127` formula aliases it to slot 0 (Record0, the live
	// slot) and must not be mistaken for "not found".
	if _, err := pm.GetFreeListPageAt(127); err != nil {
		t.Errorf("GetFreeListPageAt(127): %v", err)
	}
}

// findVersionInPage must not alias an archived version that's an exact
// multiple of (RecordCapacity-1) to slot 0, which belongs to the live
// record. version 127 % 127 == 0; the record actually holding version 127
// lives at slot 127, not slot 0.
func TestFindVersionInPageHandlesModuloCollision(t *testing.T) {
	buf := make([]byte, pages.PageSize)
	cfg := pages.AsConfigPage(buf)

	cfg.SetTotalAllocatedPages(u48.FromU64(999))
	cfg.SetVersionNumber(127)
	cfg.SetLastUsedPage(u48.FromU64(127))
	cfg.SetRecycledPagesListHead(u48.FromU64(42))
	cfg.SetPreviousConfigPage(u48.Zero)
	cfg.SetOffset(1)
	cfg.CopyRecord0To(127)

	// Advance the live record well past 127 so it can only be found, if
	// at all, via the ring slot.
	cfg.SetVersionNumber(500)
	cfg.SetRecycledPagesListHead(u48.FromU64(7))

	rec, ok := findVersionInPage(cfg, 127)
	if !ok {
		t.Fatal("findVersionInPage(127) = not found, want the record stashed at slot 127")
	}
	if rec.RecycledPagesListHead.ToU64() != 42 {
		t.Errorf("resolved recycled_head = %d, want 42 (slot 127's value, not record0's)", rec.RecycledPagesListHead.ToU64())
	}
}

// S6 — recycle and reuse.
func TestS6RecycleAndReuse(t *testing.T) {
	store := mustStore(t, 8)
	pm, err := New(store, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pm.RecyclePages([]uint64{2, 3})
	if err := pm.ConsolidateState(); err != nil {
		t.Fatalf("ConsolidateState: %v", err)
	}

	got, err := pm.GetFreePages(2, true)
	if err != nil {
		t.Fatalf("GetFreePages(2,true): %v", err)
	}
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("GetFreePages(2,true) = %v, want [2 3]", got)
	}

	fresh, err := pm.GetFreePages(1, true)
	if err != nil {
		t.Fatalf("GetFreePages(1,true): %v", err)
	}
	if fresh[0] == 2 || fresh[0] == 3 {
		t.Errorf("expected a fresh page, got recycled page %d", fresh[0])
	}
}

func TestResumeFromExistingStore(t *testing.T) {
	store := mustStore(t, 10)
	pm, err := New(store, 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := pm.ConsolidateState(); err != nil {
		t.Fatalf("ConsolidateState: %v", err)
	}

	resumed, err := New(store, 10)
	if err != nil {
		t.Fatalf("New (resume): %v", err)
	}
	snap := resumed.Snapshot()
	if snap.VersionNumber != 2 || snap.TotalAllocatedPages != 10 {
		t.Errorf("resumed snapshot = %+v, want version=2 total=10", snap)
	}
}

func TestCorruptBootstrapRejected(t *testing.T) {
	store := mustStore(t, 4)
	buf, err := store.Slice(0)
	if err != nil {
		t.Fatalf("Slice(0): %v", err)
	}
	// total_allocated_pages stays 0 but last_used_page is nonzero: inconsistent.
	pages.AsConfigPage(buf).SetLastUsedPage(u48.FromU64(3))

	if _, err := New(store, 4); err != ErrCorruptBootstrap {
		t.Fatalf("New = %v, want ErrCorruptBootstrap", err)
	}
}

// A non-terminal FreeListPage chunk (next != 0) that carries no live
// entries is a malformed chain, not a legitimately exhausted one, and must
// surface as ErrRecycledChainInconsistent rather than being read as "no
// more recycled pages" — which would silently strand whatever follows it.
func TestGetFreePagesDetectsMalformedChain(t *testing.T) {
	store := mustStore(t, 8)
	pm, err := New(store, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	headBuf, err := store.Slice(pm.recycledPagesHead)
	if err != nil {
		t.Fatalf("Slice(head): %v", err)
	}
	pages.AsFreeListPage(headBuf).SetNext(u48.FromU64(5))

	malformedBuf, err := store.Slice(5)
	if err != nil {
		t.Fatalf("Slice(5): %v", err)
	}
	pages.AsFreeListPage(malformedBuf).SetNext(u48.FromU64(6))

	if _, err := pm.GetFreePages(1, true); err != ErrRecycledChainInconsistent {
		t.Fatalf("GetFreePages(1,true) = %v, want ErrRecycledChainInconsistent", err)
	}
}

func TestGetFreeListPageAtRejectsFutureVersion(t *testing.T) {
	store := mustStore(t, 4)
	pm, err := New(store, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := pm.GetFreeListPageAt(99); err != ErrVersionOutOfRange {
		t.Fatalf("GetFreeListPageAt(99) = %v, want ErrVersionOutOfRange", err)
	}
}
