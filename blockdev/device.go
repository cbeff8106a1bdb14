// Package blockdev defines the abstract block device contract the FAT driver
// sits on top of, plus two concrete implementations: a file-backed device
// for real disk images and a RAM-backed device for tests and small images
// built in memory.
package blockdev

import (
	"io"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

// BlockDevice is the external collaborator the FAT driver reads and writes
// through. Reads and writes are byte-granular but callers conventionally
// align them to SectorSize().
type BlockDevice interface {
	// Size returns the total size of the device, in bytes.
	Size() (uint64, error)
	// ReadAt fills dst starting at offset.
	ReadAt(offset int64, dst []byte) error
	// WriteAt writes src starting at offset.
	WriteAt(offset int64, src []byte) error
	// Flush pushes any buffered writes through to stable storage.
	Flush() error
	// SectorSize returns the device's fundamental I/O granularity, in bytes.
	SectorSize() uint32
	// Close releases the device. Further operations must fail.
	Close() error
	// IsClosed reports whether Close has been called.
	IsClosed() bool
	// IsReadOnly reports whether the device rejects writes.
	IsReadOnly() bool
}

// checkBounds verifies that a [offset, offset+len(buf)) access falls within
// a device of the given size. Negative offsets or ranges past size are
// rejected.
func checkBounds(size uint64, offset int64, bufLen int) error {
	if offset < 0 {
		return fatErrors.ErrInvalidArgument.WithMessage("negative offset")
	}
	if bufLen == 0 {
		return nil
	}
	end := offset + int64(bufLen)
	if end < 0 || uint64(end) > size {
		return fatErrors.ErrInvalidArgument.WithMessage("access extends past end of device")
	}
	return nil
}

// seekerReaderWriter is the minimal stream capability both concrete devices
// below need from their backing store.
type seekerReaderWriter interface {
	io.ReaderAt
	io.WriterAt
}
