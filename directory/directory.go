// Package directory implements the abstract, capacity-bounded directory
// vector and its two concrete backings: the fixed-capacity FAT12/16 root
// directory and the growable cluster-chain directory.
package directory

import (
	"github.com/gofatfs/fatfs/dirent"
	fatErrors "github.com/gofatfs/fatfs/errors"
)

// SlotSize is the size, in bytes, of one directory slot (real entry or LFN
// extension entry alike).
const SlotSize = 32

// Backend is what a concrete directory storage strategy (fixed root region,
// cluster chain) must provide; AbstractDirectory drives it.
type Backend interface {
	// ReadRaw returns Capacity()*SlotSize freshly read bytes.
	ReadRaw() ([]byte, error)
	// WriteRaw persists exactly Capacity()*SlotSize bytes.
	WriteRaw(data []byte) error
	// StorageCluster is this directory's own start cluster, or 0 for a
	// fixed-region root directory.
	StorageCluster() int
	// ChangeSize grows or shrinks the backing storage to hold exactly
	// entryCount slots.
	ChangeSize(entryCount int) error
	// Capacity is the current slot count the backend can hold.
	Capacity() int
}

// AbstractDirectory is a mutable, capacity-bounded vector of directory
// slots plus an optional volume-label slot (root directories only). It
// delegates physical storage to a Backend.
type AbstractDirectory struct {
	backend Backend
	slots   [][]byte // in-use slots, in order, 32 bytes each; may be real or LFN
	label   []byte   // optional 32-byte volume-label slot
}

// NewAbstractDirectory wraps a Backend with an (initially empty) entry
// vector. Call Read to populate it from storage.
func NewAbstractDirectory(backend Backend) *AbstractDirectory {
	return &AbstractDirectory{backend: backend}
}

// Backend returns the underlying storage strategy.
func (d *AbstractDirectory) Backend() Backend { return d.backend }

// Slots returns the in-use raw slots (real and LFN alike), in on-disk order.
func (d *AbstractDirectory) Slots() [][]byte { return d.slots }

// Label returns the volume-label slot, or nil if none is present.
func (d *AbstractDirectory) Label() []byte { return d.label }

// SetLabel installs (or replaces) the volume-label slot.
func (d *AbstractDirectory) SetLabel(slot []byte) { d.label = slot }

// Read fills the in-memory slot vector from the backend: reads
// Capacity()*SlotSize bytes and decodes slots until a first-byte-zero
// (end-of-directory) marker. Volume-label slots are pulled into Label
// instead of the slot vector.
func (d *AbstractDirectory) Read() error {
	buf, err := d.backend.ReadRaw()
	if err != nil {
		return err
	}

	d.slots = nil
	d.label = nil

	capacity := d.backend.Capacity()
	for i := 0; i < capacity; i++ {
		slot := buf[i*SlotSize : (i+1)*SlotSize]
		if slot[0] == dirent.EndMarker {
			break
		}
		if slot[0] == dirent.DeletedMarker {
			continue
		}

		cp := make([]byte, SlotSize)
		copy(cp, slot)

		if isVolumeLabelSlot(slot) {
			d.label = cp
			continue
		}
		d.slots = append(d.slots, cp)
	}
	return nil
}

func isVolumeLabelSlot(slot []byte) bool {
	attr := slot[11]
	return attr == dirent.AttrVolumeLabel
}

// Flush writes the in-use slots, then the label slot (if present), then a
// single zero-padded terminating slot, then zero-fills the remaining
// capacity.
func (d *AbstractDirectory) Flush() error {
	capacity := d.backend.Capacity()
	needed := len(d.slots)
	if d.label != nil {
		needed++
	}
	needed++ // terminator
	if needed > capacity {
		if err := d.backend.ChangeSize(needed); err != nil {
			return err
		}
		capacity = d.backend.Capacity()
	}

	buf := make([]byte, capacity*SlotSize)
	pos := 0
	for _, s := range d.slots {
		copy(buf[pos:pos+SlotSize], s)
		pos += SlotSize
	}
	if d.label != nil {
		copy(buf[pos:pos+SlotSize], d.label)
		pos += SlotSize
	}
	// Remainder (terminator + padding) is already zero from make().

	return d.backend.WriteRaw(buf)
}

// AddSlot appends one raw slot, growing storage first if needed.
func (d *AbstractDirectory) AddSlot(slot []byte) error {
	return d.AddSlots([][]byte{slot})
}

// AddSlots appends multiple raw slots atomically, growing storage once for
// the whole batch if needed.
func (d *AbstractDirectory) AddSlots(slots [][]byte) error {
	needed := len(d.slots) + len(slots)
	if d.label != nil {
		needed++
	}
	needed++ // terminator always needs room

	if needed > d.backend.Capacity() {
		if err := d.backend.ChangeSize(needed); err != nil {
			return err
		}
	}

	for _, s := range slots {
		cp := make([]byte, SlotSize)
		copy(cp, s)
		d.slots = append(d.slots, cp)
	}
	return nil
}

// RemoveSlots removes the slots at the given indices (into Slots()), which
// must be given in ascending order.
func (d *AbstractDirectory) RemoveSlots(indices []int) {
	if len(indices) == 0 {
		return
	}
	remove := make(map[int]bool, len(indices))
	for _, i := range indices {
		remove[i] = true
	}

	kept := d.slots[:0:0]
	for i, s := range d.slots {
		if !remove[i] {
			kept = append(kept, s)
		}
	}
	d.slots = kept
}

// StorageCluster delegates to the backend.
func (d *AbstractDirectory) StorageCluster() int { return d.backend.StorageCluster() }

// checkNonEmpty is a shared guard used by backends that forbid a zero-entry
// resize (Open Question #3).
func checkNonEmpty(n int) error {
	if n <= 0 {
		return fatErrors.ErrInvalidArgument.WithMessage("directory entry count must be positive")
	}
	return nil
}
