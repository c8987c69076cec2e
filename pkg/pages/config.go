package pages

import (
	"fmt"

	"vpager/pkg/u48"
)

// recordSize is the width, in bytes, of one header record.
const recordSize = 32

// RecordCapacity is the number of header records a single ConfigPage can
// hold: PageSize / recordSize.
const RecordCapacity = PageSize / recordSize // 128

// Header record field layout (spec.md §3.2). Each entry is
// (byte offset within the 32-byte record, width in bytes).
var (
	fieldTotalAllocatedPages   = fieldSpec{offset: 0, width: 6}
	fieldVersionNumber         = fieldSpec{offset: 6, width: 5}
	fieldLastUsedPage          = fieldSpec{offset: 11, width: 6}
	fieldRecycledPagesListHead = fieldSpec{offset: 17, width: 6}
	fieldPreviousConfigPage    = fieldSpec{offset: 23, width: 6}
	fieldOffsetSlot            = fieldSpec{offset: 29, width: 3}
)

type fieldSpec struct {
	offset int
	width  int
}

// ConfigPage is the header ring: up to RecordCapacity fixed-width records
// of allocator state, laid out contiguously from offset 0. Record 0 is
// always the live, most recent record.
type ConfigPage struct {
	data []byte
}

// AsConfigPage wraps a raw 4096-byte page window as a ConfigPage view.
func AsConfigPage(data []byte) *ConfigPage {
	return &ConfigPage{data: data}
}

// Bytes returns the raw backing window.
func (c *ConfigPage) Bytes() []byte { return c.data }

// record returns the byte range for the record at the given in-page slot,
// clamped to the page so a read of the very last record's last field never
// indexes past the end of the 4096-byte buffer.
func (c *ConfigPage) record(slot int) []byte {
	start := slot * recordSize
	if start > len(c.data) {
		start = len(c.data)
	}
	end := start + recordSize
	if end > len(c.data) {
		end = len(c.data)
	}
	return c.data[start:end]
}

func (c *ConfigPage) getU48At(slot int, f fieldSpec) u48.U48 {
	return u48.FromU64(readUintLE(c.record(slot), f.offset, f.width))
}

func (c *ConfigPage) getUintAt(slot int, f fieldSpec) uint64 {
	return readUintLE(c.record(slot), f.offset, f.width)
}

func (c *ConfigPage) set(f fieldSpec, v uint64) {
	writeUintLE(c.record(0), f.offset, f.width, v)
}

// --- total_allocated_pages ---

// GetTotalAllocatedPages reads field F of record 0.
func (c *ConfigPage) GetTotalAllocatedPages() u48.U48 {
	return c.getU48At(0, fieldTotalAllocatedPages)
}

// GetTotalAllocatedPagesAt reads field F of the record at in-page index v.
func (c *ConfigPage) GetTotalAllocatedPagesAt(v int) u48.U48 {
	return c.getU48At(v, fieldTotalAllocatedPages)
}

// SetTotalAllocatedPages writes field F of record 0 only.
func (c *ConfigPage) SetTotalAllocatedPages(value u48.U48) {
	c.set(fieldTotalAllocatedPages, value.ToU64())
}

// --- version_number ---

func (c *ConfigPage) GetVersionNumber() uint64 {
	return c.getUintAt(0, fieldVersionNumber)
}

func (c *ConfigPage) GetVersionNumberAt(v int) uint64 {
	return c.getUintAt(v, fieldVersionNumber)
}

func (c *ConfigPage) SetVersionNumber(value uint64) {
	c.set(fieldVersionNumber, value)
}

// --- last_used_page ---

func (c *ConfigPage) GetLastUsedPage() u48.U48 {
	return c.getU48At(0, fieldLastUsedPage)
}

func (c *ConfigPage) GetLastUsedPageAt(v int) u48.U48 {
	return c.getU48At(v, fieldLastUsedPage)
}

func (c *ConfigPage) SetLastUsedPage(value u48.U48) {
	c.set(fieldLastUsedPage, value.ToU64())
}

// --- recycled_pages_list_head ---

func (c *ConfigPage) GetRecycledPagesListHead() u48.U48 {
	return c.getU48At(0, fieldRecycledPagesListHead)
}

func (c *ConfigPage) GetRecycledPagesListHeadAt(v int) u48.U48 {
	return c.getU48At(v, fieldRecycledPagesListHead)
}

func (c *ConfigPage) SetRecycledPagesListHead(value u48.U48) {
	c.set(fieldRecycledPagesListHead, value.ToU64())
}

// --- previous_config_page ---

func (c *ConfigPage) GetPreviousConfigPage() u48.U48 {
	return c.getU48At(0, fieldPreviousConfigPage)
}

func (c *ConfigPage) GetPreviousConfigPageAt(v int) u48.U48 {
	return c.getU48At(v, fieldPreviousConfigPage)
}

func (c *ConfigPage) SetPreviousConfigPage(value u48.U48) {
	c.set(fieldPreviousConfigPage, value.ToU64())
}

// --- offset (next write slot) ---

func (c *ConfigPage) GetOffset() uint64 {
	return c.getUintAt(0, fieldOffsetSlot)
}

func (c *ConfigPage) GetOffsetAt(v int) uint64 {
	return c.getUintAt(v, fieldOffsetSlot)
}

func (c *ConfigPage) SetOffset(value uint64) {
	c.set(fieldOffsetSlot, value)
}

// CopyRecord0To copies the live record (bytes 0..32) into the slot at
// index slot*32. Used during commit to archive record 0, which still
// holds the previous version, into its ring slot before record 0 is
// advanced to the new version.
func (c *ConfigPage) CopyRecord0To(slot int) {
	copy(c.record(slot), c.record(0))
}

// CopyFrom performs a full 4096-byte copy of other into c.
func (c *ConfigPage) CopyFrom(other *ConfigPage) {
	copy(c.data, other.data)
}

// CopyHeaderFrom copies only the first 32-byte record (record 0) from
// other into c, leaving the rest of c untouched.
func (c *ConfigPage) CopyHeaderFrom(other *ConfigPage) {
	copy(c.record(0), other.record(0))
}

// Record is a decoded snapshot of one 32-byte header record, convenient for
// comparisons in tests and for PageManager's in-memory mirror of record 0.
type Record struct {
	TotalAllocatedPages   u48.U48
	VersionNumber         uint64
	LastUsedPage          u48.U48
	RecycledPagesListHead u48.U48
	PreviousConfigPage    u48.U48
	Offset                uint64
}

// RecordAt decodes the record at in-page index v.
func (c *ConfigPage) RecordAt(v int) Record {
	return Record{
		TotalAllocatedPages:   c.GetTotalAllocatedPagesAt(v),
		VersionNumber:         c.GetVersionNumberAt(v),
		LastUsedPage:          c.GetLastUsedPageAt(v),
		RecycledPagesListHead: c.GetRecycledPagesListHeadAt(v),
		PreviousConfigPage:    c.GetPreviousConfigPageAt(v),
		Offset:                c.GetOffsetAt(v),
	}
}

// Record0 decodes the live record (index 0).
func (c *ConfigPage) Record0() Record {
	return c.RecordAt(0)
}

func (r Record) String() string {
	return fmt.Sprintf(
		"{total=%d version=%d last_used=%d recycled_head=%d prev_cfg=%d offset=%d}",
		r.TotalAllocatedPages.ToU64(), r.VersionNumber, r.LastUsedPage.ToU64(),
		r.RecycledPagesListHead.ToU64(), r.PreviousConfigPage.ToU64(), r.Offset,
	)
}
