// Package pagestore is the memory-map host named as an external
// collaborator in the allocator's design: it opens a file sized to
// N*4096 bytes, exposes a mutable 4096-byte window of any page by index
// (typed views over it live in pkg/pages), and a
// flush barrier that forces dirty pages to stable storage. Its own
// internals (file I/O, mmap setup, error reporting) are not part of the
// versioned page manager's specification; this package supplies a
// complete working implementation adapted from the teacher's
// pkg/pager mmap/storage code.
package pagestore

import (
	"github.com/pkg/errors"

	"vpager/internal/logging"
)

// PageSize is the fixed page size the whole allocator operates on.
const PageSize = 4096

var log = logging.With("pagestore")

// ErrOutOfRange is returned by Slice when the requested page index falls
// outside the store's fixed capacity.
var ErrOutOfRange = errors.New("pagestore: page index out of range")

// PageStore is a paged, fixed-capacity file store. Page i occupies bytes
// [i*PageSize, (i+1)*PageSize) of the backing storage.
type PageStore struct {
	backing  storage
	numPages uint64
}

// Open opens or creates path as a page store with exactly numPages pages,
// memory-mapping the file for read/write access.
func Open(path string, numPages uint64) (*PageStore, error) {
	size := int64(numPages) * PageSize
	mf, err := openMmapFile(path, size)
	if err != nil {
		log.WithError(err).WithField("path", path).Error("failed to open page store")
		return nil, err
	}
	log.WithFields(map[string]interface{}{"path": path, "num_pages": numPages}).Info("page store opened")
	return &PageStore{backing: mf, numPages: numPages}, nil
}

// OpenMemory creates an in-memory page store with exactly numPages pages
// and no backing file. Used by tests; the vpagerctl CLI has no in-memory
// mode and always opens a file.
func OpenMemory(numPages uint64) (*PageStore, error) {
	size := int64(numPages) * PageSize
	return &PageStore{backing: newMemoryStorage(size), numPages: numPages}, nil
}

// NumPages returns the store's fixed page capacity.
func (s *PageStore) NumPages() uint64 {
	return s.numPages
}

// Slice returns the 4096-byte mutable window backing page index. The
// returned slice aliases the store's backing bytes; writes through it are
// visible to subsequent Slice calls and, for mmap-backed stores, to the
// file once Flush is called.
func (s *PageStore) Slice(index uint64) ([]byte, error) {
	if index >= s.numPages {
		return nil, errors.Wrapf(ErrOutOfRange, "index %d, capacity %d", index, s.numPages)
	}
	b := s.backing.slice(int(index)*PageSize, PageSize)
	if b == nil {
		return nil, errors.Wrapf(ErrOutOfRange, "index %d, capacity %d", index, s.numPages)
	}
	return b, nil
}

// Flush forces all dirty pages to stable storage. The page manager's
// commit protocol (spec.md §4.4.4) relies on Flush being a real barrier:
// every byte written to the new FreeListPage chain and the staging
// ConfigPage must be durable before the final overwrite of the root
// ConfigPage.
func (s *PageStore) Flush() error {
	if err := s.backing.sync(); err != nil {
		log.WithError(err).Error("flush failed")
		return err
	}
	return nil
}

// Close releases the resources backing the store. The store must not be
// used afterward.
func (s *PageStore) Close() error {
	return s.backing.close()
}
