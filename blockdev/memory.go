package blockdev

import (
	"io"

	"github.com/xaionaro-go/bytesextra"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

// MemoryDevice is a RAM-backed BlockDevice over a fixed-size byte slice. It's
// the workhorse for tests and for small images built up in memory before
// being persisted elsewhere.
type MemoryDevice struct {
	data       []byte
	stream     io.ReadWriteSeeker
	sectorSize uint32
	readOnly   bool
	closed     bool
}

// NewMemoryDevice wraps `data` (not copied) as a BlockDevice with the given
// sector size. `data`'s length must already be a multiple of sectorSize.
func NewMemoryDevice(data []byte, sectorSize uint32, readOnly bool) *MemoryDevice {
	return &MemoryDevice{
		data:       data,
		stream:     bytesextra.NewReadWriteSeeker(data),
		sectorSize: sectorSize,
		readOnly:   readOnly,
	}
}

func (d *MemoryDevice) Size() (uint64, error) {
	if d.closed {
		return 0, fatErrors.ErrAlreadyClosed
	}
	return uint64(len(d.data)), nil
}

func (d *MemoryDevice) ReadAt(offset int64, dst []byte) error {
	if d.closed {
		return fatErrors.ErrAlreadyClosed
	}
	if err := checkBounds(uint64(len(d.data)), offset, len(dst)); err != nil {
		return err
	}
	if len(dst) == 0 {
		return nil
	}
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.stream, dst)
	return err
}

func (d *MemoryDevice) WriteAt(offset int64, src []byte) error {
	if d.closed {
		return fatErrors.ErrAlreadyClosed
	}
	if d.readOnly {
		return fatErrors.ErrReadOnly
	}
	if err := checkBounds(uint64(len(d.data)), offset, len(src)); err != nil {
		return err
	}
	if len(src) == 0 {
		return nil
	}
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := d.stream.Write(src)
	return err
}

func (d *MemoryDevice) Flush() error {
	if d.closed {
		return fatErrors.ErrAlreadyClosed
	}
	return nil
}

func (d *MemoryDevice) SectorSize() uint32 { return d.sectorSize }

func (d *MemoryDevice) Close() error {
	d.closed = true
	return nil
}

func (d *MemoryDevice) IsClosed() bool   { return d.closed }
func (d *MemoryDevice) IsReadOnly() bool { return d.readOnly }

// Bytes returns the underlying storage slice. Intended for tests that need to
// inspect or snapshot the raw image.
func (d *MemoryDevice) Bytes() []byte {
	return d.data
}
