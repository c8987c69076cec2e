package pagestore

// storage is the byte-addressable backing a PageStore maps its pages onto.
// It abstracts over an mmap'd file (mmapFile) and an in-memory buffer
// (storeMemory) so PageStore itself never branches on backing kind.
type storage interface {
	// size returns the total number of bytes backing the store.
	size() int64

	// slice returns a window into the backing bytes at [offset, offset+length).
	// Returns nil if the window falls outside the backing bytes.
	slice(offset, length int) []byte

	// sync flushes any pending writes to stable storage. A no-op for the
	// in-memory backing.
	sync() error

	// close releases resources held by the backing storage.
	close() error
}

// storeMemory implements storage over a plain byte slice. Used by
// OpenMemory for tests, where no file I/O or real durability is wanted.
type storeMemory struct {
	data []byte
}

func newMemoryStorage(size int64) *storeMemory {
	return &storeMemory{data: make([]byte, size)}
}

func (m *storeMemory) size() int64 { return int64(len(m.data)) }

func (m *storeMemory) slice(offset, length int) []byte {
	if offset < 0 || length < 0 || offset+length > len(m.data) {
		return nil
	}
	return m.data[offset : offset+length]
}

func (m *storeMemory) sync() error { return nil }

func (m *storeMemory) close() error {
	m.data = nil
	return nil
}
