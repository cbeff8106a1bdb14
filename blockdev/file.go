package blockdev

import (
	"os"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

// FileDevice is a BlockDevice backed by a real file, e.g. a raw disk image or
// a file representing a removable media device node.
type FileDevice struct {
	file       *os.File
	sectorSize uint32
	readOnly   bool
	closed     bool
}

// NewFileDevice wraps an already-open file as a BlockDevice. The caller is
// responsible for opening it with the permissions matching readOnly.
func NewFileDevice(file *os.File, sectorSize uint32, readOnly bool) *FileDevice {
	return &FileDevice{file: file, sectorSize: sectorSize, readOnly: readOnly}
}

func (d *FileDevice) Size() (uint64, error) {
	if d.closed {
		return 0, fatErrors.ErrAlreadyClosed
	}
	info, err := d.file.Stat()
	if err != nil {
		return 0, err
	}
	return uint64(info.Size()), nil
}

func (d *FileDevice) ReadAt(offset int64, dst []byte) error {
	if d.closed {
		return fatErrors.ErrAlreadyClosed
	}
	size, err := d.Size()
	if err != nil {
		return err
	}
	if err := checkBounds(size, offset, len(dst)); err != nil {
		return err
	}
	_, err = d.file.ReadAt(dst, offset)
	return err
}

func (d *FileDevice) WriteAt(offset int64, src []byte) error {
	if d.closed {
		return fatErrors.ErrAlreadyClosed
	}
	if d.readOnly {
		return fatErrors.ErrReadOnly
	}
	size, err := d.Size()
	if err != nil {
		return err
	}
	// Writes are allowed to extend the file (e.g. during mkfs), so only
	// reject negative offsets here; checkBounds' upper-bound check is for
	// reads, which must stay within the current size.
	if offset < 0 {
		return fatErrors.ErrInvalidArgument.WithMessage("negative offset")
	}
	_ = size
	_, err = d.file.WriteAt(src, offset)
	return err
}

func (d *FileDevice) Flush() error {
	if d.closed {
		return fatErrors.ErrAlreadyClosed
	}
	return d.file.Sync()
}

func (d *FileDevice) SectorSize() uint32 { return d.sectorSize }

func (d *FileDevice) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}

func (d *FileDevice) IsClosed() bool   { return d.closed }
func (d *FileDevice) IsReadOnly() bool { return d.readOnly }
