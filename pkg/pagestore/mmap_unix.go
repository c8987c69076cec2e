//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package pagestore

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// openMmapFile maps exactly size bytes of path, creating and sizing the
// file first if needed. The store's capacity is fixed at creation time, so
// unlike the teacher's pager this never grows the mapping after open.
func openMmapFile(path string, size int64) (*mmapFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "pagestore: open %s", path)
	}

	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "pagestore: stat %s", path)
	}
	if stat.Size() != size {
		if err := f.Truncate(size); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "pagestore: truncate %s to %d", path, size)
		}
	}

	if size == 0 {
		f.Close()
		return nil, errors.New("pagestore: cannot mmap an empty file")
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "pagestore: mmap %s", path)
	}

	return &mmapFile{handle: f, data: data, sz: size}, nil
}

// sync forces dirty mapped pages to stable storage. This is the flush
// barrier PageStore.Flush relies on; ConsolidateState must call it before
// the final root-ConfigPage overwrite for the ordering guarantee in
// spec.md §5 to hold on platforms that do not serialize mmap writes.
func (m *mmapFile) sync() error {
	if len(m.data) == 0 {
		return nil
	}
	return errors.Wrap(unix.Msync(m.data, unix.MS_SYNC), "pagestore: msync")
}

func (m *mmapFile) close() error {
	var firstErr error
	if m.data != nil {
		if err := syscall.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "pagestore: munmap")
		}
		m.data = nil
	}
	if f, ok := m.handle.(*os.File); ok && f != nil {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "pagestore: close backing file")
		}
		m.handle = nil
	}
	return firstErr
}
