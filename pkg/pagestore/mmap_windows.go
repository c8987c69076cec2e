//go:build windows

package pagestore

import (
	"os"
	"reflect"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

// mmapHandle carries the Windows-specific handles a mapping needs to stay
// alive and be unmapped cleanly.
type mmapHandle struct {
	file      *os.File
	mapHandle windows.Handle
}

// openMmapFile maps exactly size bytes of path on Windows, via
// CreateFileMapping/MapViewOfFile, mirroring openMmapFile on Unix.
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

	mapHandle, err := windows.CreateFileMapping(
		windows.Handle(f.Fd()),
		nil,
		windows.PAGE_READWRITE,
		uint32(size>>32),
		uint32(size&0xFFFFFFFF),
		nil,
	)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "pagestore: CreateFileMapping")
	}

	addr, err := windows.MapViewOfFile(mapHandle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		windows.CloseHandle(mapHandle)
		f.Close()
		return nil, errors.Wrap(err, "pagestore: MapViewOfFile")
	}

	var data []byte
	header := (*reflect.SliceHeader)(unsafe.Pointer(&data))
	header.Data = addr
	header.Len = int(size)
	header.Cap = int(size)

	return &mmapFile{
		handle: &mmapHandle{file: f, mapHandle: mapHandle},
		data:   data,
		sz:     size,
	}, nil
}

func (m *mmapFile) sync() error {
	if len(m.data) == 0 {
		return nil
	}
	return errors.Wrap(windows.FlushViewOfFile(uintptr(unsafe.Pointer(&m.data[0])), uintptr(len(m.data))), "pagestore: FlushViewOfFile")
}

func (m *mmapFile) close() error {
	var firstErr error

	handle, ok := m.handle.(*mmapHandle)
	if !ok || handle == nil {
		return nil
	}

	if len(m.data) > 0 {
		if err := windows.FlushViewOfFile(uintptr(unsafe.Pointer(&m.data[0])), uintptr(len(m.data))); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "pagestore: flush before close")
		}
		if err := windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&m.data[0]))); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "pagestore: UnmapViewOfFile")
		}
		m.data = nil
	}

	if handle.mapHandle != 0 {
		if err := windows.CloseHandle(handle.mapHandle); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "pagestore: CloseHandle")
		}
		handle.mapHandle = 0
	}

	if handle.file != nil {
		if err := handle.file.Close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, "pagestore: close backing file")
		}
		handle.file = nil
	}

	m.handle = nil
	return firstErr
}
