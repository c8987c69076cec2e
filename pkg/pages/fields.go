// Package pages implements the on-disk layout and accessors for the
// allocator's two specified page formats: the ConfigPage header ring and
// the FreeListPage chain. Both wrap a 4096-byte window handed out by a
// pagestore.PageStore.
//
// The repeated-field accessors are one-line wrappers over a single field
// table (byte offset + width per field), so the encoding logic for the six
// near-identical fields is written once rather than eighteen times.
package pages

// PageSize is the fixed size of every page the allocator deals in.
const PageSize = 4096

// readUintLE reads width little-endian bytes starting at off within b as a
// zero-extended uint64. If b is shorter than off+width (as happens for the
// last record in a ConfigPage, whose final field ends exactly at the page
// boundary but where a careless wider read would not), the missing bytes
// are treated as zero rather than read out of bounds.
func readUintLE(b []byte, off, width int) uint64 {
	var v uint64
	for i := 0; i < width; i++ {
		idx := off + i
		if idx >= len(b) {
			break
		}
		v |= uint64(b[idx]) << (8 * uint(i))
	}
	return v
}

// writeUintLE writes the low width bytes of v, little-endian, starting at
// off within b.
func writeUintLE(b []byte, off, width int, v uint64) {
	for i := 0; i < width; i++ {
		b[off+i] = byte(v >> (8 * uint(i)))
	}
}
