// Package fat implements the File Allocation Table itself: the packed
// cluster-link array in its three bit widths, chain walking, and the
// allocate/free/grow algorithms over it.
package fat

import (
	"bytes"
	"fmt"

	"github.com/boljen/go-bitmap"
	"github.com/dsoprea/go-logging"
	"github.com/hashicorp/go-multierror"

	"github.com/gofatfs/fatfs/bootsector"
	"github.com/gofatfs/fatfs/codec"
	fatErrors "github.com/gofatfs/fatfs/errors"
)

var allocLogger = log.NewLogger("fatfs.fat")

// FAT is one in-memory copy of the cluster-link table, plus a bitmap shadow
// of "is this entry free" that lets allocation and free-count queries avoid
// a linear scan on every call. The bitmap is rebuilt whenever the table is
// loaded and kept in lockstep by every mutating method.
type FAT struct {
	flavor      bootsector.FatType
	data        []byte
	numEntries  int
	freeBitmap  bitmap.Bitmap
	freeCount   int
	lastAlloc   uint32
}

// New builds a FAT over a raw packed buffer already sized for the flavor and
// entry count (numEntries includes the two reserved entries at indices 0/1).
// The buffer is scanned as-is; use Format to initialize a fresh table.
func New(flavor bootsector.FatType, data []byte, numEntries int) *FAT {
	f := &FAT{
		flavor:     flavor,
		data:       data,
		numEntries: numEntries,
		freeBitmap: bitmap.New(numEntries),
		lastAlloc:  2,
	}
	f.rebuildBitmap()
	return f
}

// Format initializes a brand-new table: entry 0 holds the media descriptor
// in its low byte with the rest of the flavor's mask set to 1, entry 1 is
// the EOF marker, and the rest are free.
func Format(flavor bootsector.FatType, data []byte, numEntries int, mediaDescriptor uint8) *FAT {
	f := New(flavor, data, numEntries)
	f.writeEntryRaw(0, (f.flavor.Mask()&^0xFF)|uint32(mediaDescriptor))
	f.writeEntryRaw(1, f.flavor.EOFMarker())
	f.rebuildBitmap()
	return f
}

func (f *FAT) rebuildBitmap() {
	f.freeBitmap = bitmap.New(f.numEntries)
	f.freeCount = 0
	for i := 2; i < f.numEntries; i++ {
		if f.flavor.IsFree(f.readEntryRaw(i)) {
			f.freeBitmap.Set(i, true)
			f.freeCount++
		}
	}
}

// Flavor returns the FAT flavor this table was built for.
func (f *FAT) Flavor() bootsector.FatType { return f.flavor }

// NumEntries returns the logical entry count, including the two reserved
// entries.
func (f *FAT) NumEntries() int { return f.numEntries }

// Bytes returns the raw packed backing buffer.
func (f *FAT) Bytes() []byte { return f.data }

func (f *FAT) readEntryRaw(index int) uint32 {
	switch f.flavor.EntryBits() {
	case 12:
		return uint32(codec.Read12(f.data, index))
	case 16:
		return uint32(codec.Uint16(f.data, index*2))
	default:
		return codec.Uint32(f.data, index*4) & f.flavor.Mask()
	}
}

func (f *FAT) writeEntryRaw(index int, value uint32) {
	switch f.flavor.EntryBits() {
	case 12:
		codec.Write12(f.data, index, uint16(value&0x0FFF))
	case 16:
		codec.PutUint16(f.data, index*2, uint16(value))
	default:
		// FAT32 entries only use the low 28 bits; preserve the top 4
		// reserved bits already on disk.
		existing := codec.Uint32(f.data, index*4)
		codec.PutUint32(f.data, index*4, (existing&^f.flavor.Mask())|(value&f.flavor.Mask()))
	}
}

// ReadEntry returns the masked value of entry i.
func (f *FAT) ReadEntry(i int) (uint32, error) {
	if err := f.checkIndex(i); err != nil {
		return 0, err
	}
	return f.readEntryRaw(i), nil
}

// WriteEntry sets entry i to v, keeping the free-cluster bitmap/count in
// lockstep.
func (f *FAT) WriteEntry(i int, v uint32) error {
	if err := f.checkIndex(i); err != nil {
		return err
	}
	wasFree := f.flavor.IsFree(f.readEntryRaw(i))
	f.writeEntryRaw(i, v)
	nowFree := f.flavor.IsFree(v)

	switch {
	case wasFree && !nowFree:
		f.freeBitmap.Set(i, false)
		f.freeCount--
	case !wasFree && nowFree:
		f.freeBitmap.Set(i, true)
		f.freeCount++
	}
	return nil
}

func (f *FAT) checkIndex(i int) error {
	if i < 0 || i >= f.numEntries {
		return fatErrors.ErrInvalidArgument.WithMessage("cluster index out of range")
	}
	return nil
}

// IsFree, IsEof, IsReserved classify an already-read entry value per the
// FAT's flavor.
func (f *FAT) IsFree(v uint32) bool     { return f.flavor.IsFree(v) }
func (f *FAT) IsEof(v uint32) bool      { return f.flavor.IsEOF(v) }
func (f *FAT) IsReserved(v uint32) bool { return f.flavor.IsReserved(v) }

// SetEof marks cluster c as the terminal cluster of its chain.
func (f *FAT) SetEof(c int) error {
	return f.WriteEntry(c, f.flavor.EOFMarker())
}

// SetFree marks cluster c as unallocated.
func (f *FAT) SetFree(c int) error {
	return f.WriteEntry(c, 0)
}

// GetChain walks the cluster chain starting at `start`, returning its
// cluster indices in order. A two-pass walk: the first pass counts entries
// while detecting corruption (self-reference, a free or reserved-range
// cluster visited mid-chain, or a chain that never terminates within
// numEntries steps), the second fills the result slice.
func (f *FAT) GetChain(start int) ([]int, error) {
	if start == 0 {
		return nil, nil
	}

	length, err := f.chainLength(start)
	if err != nil {
		return nil, err
	}

	chain := make([]int, 0, length)
	cur := start
	for i := 0; i < length; i++ {
		chain = append(chain, cur)
		v, err := f.ReadEntry(cur)
		if err != nil {
			return nil, err
		}
		if f.IsEof(v) {
			break
		}
		cur = int(v)
	}
	return chain, nil
}

func (f *FAT) chainLength(start int) (int, error) {
	seen := make(map[int]bool, 16)
	cur := start
	length := 0

	for {
		if seen[cur] {
			return 0, fatErrors.ErrInvalidChain.WithMessage("cluster chain contains a cycle")
		}
		seen[cur] = true
		length++

		v, err := f.ReadEntry(cur)
		if err != nil {
			return 0, fatErrors.ErrInvalidChain.WrapError(err)
		}
		if f.IsEof(v) {
			return length, nil
		}
		if f.IsFree(v) || f.IsReserved(v) {
			return 0, fatErrors.ErrInvalidChain.WithMessage("chain visits a free or reserved cluster")
		}
		if int(v) < 2 || int(v) >= f.numEntries {
			return 0, fatErrors.ErrInvalidChain.WithMessage("chain references an out-of-range cluster")
		}
		cur = int(v)

		if length > f.numEntries {
			return 0, fatErrors.ErrInvalidChain.WithMessage("chain longer than the table itself")
		}
	}
}

// AllocNew finds one free cluster, starting the search at the last
// allocation hint and wrapping around to the low end of the table, marks it
// EOF, and returns its index. Fails with ErrFatFull if none are free.
func (f *FAT) AllocNew() (int, error) {
	c, err := f.findFree()
	if err != nil {
		return 0, err
	}
	if err := f.WriteEntry(c, f.flavor.EOFMarker()); err != nil {
		return 0, err
	}
	f.lastAlloc = uint32(c)
	allocLogger.Debugf(nil, "allocated cluster %d, %d free remaining", c, f.freeCount)
	return c, nil
}

func (f *FAT) findFree() (int, error) {
	for i := int(f.lastAlloc); i < f.numEntries; i++ {
		if f.freeBitmap.Get(i) {
			return i, nil
		}
	}
	for i := 2; i < int(f.lastAlloc); i++ {
		if f.freeBitmap.Get(i) {
			return i, nil
		}
	}
	return 0, fatErrors.NewFatFullError(f.numEntries-f.freeCount, f.numEntries-f.freeCount+1)
}

// AllocNewChain allocates a fresh chain of n clusters and returns its start
// cluster. n must be >= 1.
func (f *FAT) AllocNewChain(n int) (int, error) {
	if n < 1 {
		return 0, fatErrors.ErrInvalidArgument.WithMessage("chain length must be at least 1")
	}
	start, err := f.AllocNew()
	if err != nil {
		return 0, err
	}
	last := start
	for i := 1; i < n; i++ {
		last, err = f.AllocAppend(last)
		if err != nil {
			return 0, err
		}
	}
	return start, nil
}

// AllocAppend allocates one new cluster and links it after the real tail of
// the chain containing `anyClusterInChain`, tolerating the caller passing
// any member of the chain, not just its current tail. Returns the new
// cluster's index.
func (f *FAT) AllocAppend(anyClusterInChain int) (int, error) {
	tail, err := f.findTail(anyClusterInChain)
	if err != nil {
		return 0, err
	}

	next, err := f.findFree()
	if err != nil {
		return 0, err
	}
	if err := f.WriteEntry(next, f.flavor.EOFMarker()); err != nil {
		return 0, err
	}
	if err := f.WriteEntry(tail, uint32(next)); err != nil {
		return 0, err
	}
	f.lastAlloc = uint32(next)
	return next, nil
}

func (f *FAT) findTail(start int) (int, error) {
	cur := start
	for i := 0; i < f.numEntries; i++ {
		v, err := f.ReadEntry(cur)
		if err != nil {
			return 0, err
		}
		if f.IsEof(v) {
			return cur, nil
		}
		cur = int(v)
	}
	return 0, fatErrors.ErrInvalidChain.WithMessage("chain has no terminal entry")
}

// FreeChain releases every cluster in the chain starting at `start`.
func (f *FAT) FreeChain(start int) error {
	if start == 0 {
		return nil
	}
	chain, err := f.GetChain(start)
	if err != nil {
		return err
	}
	for _, c := range chain {
		if err := f.SetFree(c); err != nil {
			return err
		}
	}
	return nil
}

// GetFreeClusterCount returns the authoritative free-entry count maintained
// incrementally by the bitmap shadow; equivalent to, but far cheaper than, a
// linear scan of the whole table.
func (f *FAT) GetFreeClusterCount() int {
	return f.freeCount
}

// Equal reports whether two FATs describe the same flavor, entry count, and
// entry values.
func (f *FAT) Equal(other *FAT) bool {
	if f.flavor != other.flavor || f.numEntries != other.numEntries {
		return false
	}
	for i := 0; i < f.numEntries; i++ {
		if f.readEntryRaw(i) != other.readEntryRaw(i) {
			return false
		}
	}
	return true
}

// CompareCopies checks `f` for byte-for-byte agreement against each of
// `others`, aggregating every mismatch (rather than stopping at the first)
// with go-multierror so a caller sees every divergent copy at once.
func (f *FAT) CompareCopies(others []*FAT) error {
	var result *multierror.Error
	for i, other := range others {
		if !f.Equal(other) || !bytes.Equal(f.data, other.data) {
			msg := fmt.Sprintf("FAT copy %d disagrees with the primary copy", i+1)
			allocLogger.Warningf(nil, msg)
			result = multierror.Append(result, fatErrors.ErrCorruptVolume.WithMessage(msg))
		}
	}
	return result.ErrorOrNil()
}
