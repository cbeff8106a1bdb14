// Package sector implements the fixed-size, dirty-tracked page through which
// the boot sector and the FS-info sector are loaded and written. The FAT and
// directories do their own bulk reads and writes and do not use it.
package sector

import (
	"github.com/noxer/bytewriter"

	"github.com/gofatfs/fatfs/blockdev"
	"github.com/gofatfs/fatfs/codec"
)

// Sector owns a fixed-size buffer located at a byte offset on a block
// device. Reads load the buffer and clear the dirty flag; writes only touch
// the device if the buffer has been mutated since the last load or flush.
type Sector struct {
	device Reader
	offset int64
	buf    []byte
	dirty  bool
}

// Reader is the subset of blockdev.BlockDevice a Sector needs. Kept narrow so
// Sector can be driven by fakes in tests without standing up a full device.
type Reader interface {
	ReadAt(offset int64, dst []byte) error
	WriteAt(offset int64, src []byte) error
}

var _ Reader = (blockdev.BlockDevice)(nil)

// New creates a Sector of the given size at the given device offset. The
// buffer starts zeroed and clean; call Read to load it from the device.
func New(device Reader, offset int64, size uint32) *Sector {
	return &Sector{
		device: device,
		offset: offset,
		buf:    make([]byte, size),
	}
}

// Read loads the sector's contents from the device, replacing the in-memory
// buffer and clearing the dirty flag.
func (s *Sector) Read() error {
	if err := s.device.ReadAt(s.offset, s.buf); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Write persists the buffer to the device if it has been modified since the
// last Read or Write. A clean sector is a no-op.
func (s *Sector) Write() error {
	if !s.dirty {
		return nil
	}

	// Route the write through a bytewriter.Writer so the sector's own buffer
	// is never exposed to the device as a raw slice it might retain.
	staged := make([]byte, len(s.buf))
	w := bytewriter.New(staged)
	if _, err := w.Write(s.buf); err != nil {
		return err
	}

	if err := s.device.WriteAt(s.offset, staged); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Dirty reports whether the buffer has unwritten modifications.
func (s *Sector) Dirty() bool { return s.dirty }

// Bytes returns the raw backing buffer for direct inspection.
func (s *Sector) Bytes() []byte { return s.buf }

// Offset returns the device byte offset this sector is located at.
func (s *Sector) Offset() int64 { return s.offset }

func (s *Sector) Get8(offset int) uint8 {
	return codec.Uint8(s.buf, offset)
}

func (s *Sector) Set8(offset int, value uint8) {
	codec.PutUint8(s.buf, offset, value)
	s.dirty = true
}

func (s *Sector) Get16(offset int) uint16 {
	return codec.Uint16(s.buf, offset)
}

func (s *Sector) Set16(offset int, value uint16) {
	codec.PutUint16(s.buf, offset, value)
	s.dirty = true
}

func (s *Sector) Get32(offset int) uint32 {
	return codec.Uint32(s.buf, offset)
}

func (s *Sector) Set32(offset int, value uint32) {
	codec.PutUint32(s.buf, offset, value)
	s.dirty = true
}

// SetBytes overwrites a range of the buffer and marks it dirty.
func (s *Sector) SetBytes(offset int, data []byte) {
	copy(s.buf[offset:], data)
	s.dirty = true
}

// MarkDirty forces the dirty flag, useful after mutating Bytes() directly.
func (s *Sector) MarkDirty() { s.dirty = true }
