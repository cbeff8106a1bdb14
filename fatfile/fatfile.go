// Package fatfile implements the thin façade over a cluster chain and its
// directory entry that backs an open file handle.
package fatfile

import (
	"time"

	"github.com/gofatfs/fatfs/clusterchain"
	"github.com/gofatfs/fatfs/dirent"
	fatErrors "github.com/gofatfs/fatfs/errors"
	"github.com/gofatfs/fatfs/fat"
)

// EntryRef gives a FatFile read/write access to the directory entry backing
// it without owning storage itself -- the owning directory's index holds the
// entry and is responsible for persisting it on flush. Invalid reports
// whether the entry has since been unlinked from its directory by a Remove;
// a MoveTo keeps the same entry valid under its new name.
type EntryRef interface {
	Get() dirent.Entry
	Set(dirent.Entry)
	Invalid() bool
}

// Device is the narrow block-device contract a FatFile's chain needs.
type Device interface {
	clusterchain.Reader
	clusterchain.Writer
}

// FatFile is a file's chain plus its directory entry, exposing length,
// read, write, and timestamp-maintaining operations.
type FatFile struct {
	chain       *clusterchain.ClusterChain
	table       *fat.FAT
	device      Device
	clusterSize int
	filesOffset int64
	ref         EntryRef
	readOnly    bool
	closed      bool
	fsClosed    *bool
	now         func() time.Time
}

// New builds a FatFile over the chain described by ref's current entry.
// fsClosed is the filesystem-wide closed flag shared with every object
// reachable from its root; it is checked before every operation so a handle
// obtained before Close() fails once the filesystem has been closed.
func New(table *fat.FAT, device Device, clusterSize int, filesOffset int64, ref EntryRef, readOnly bool, fsClosed *bool) *FatFile {
	entry := ref.Get()
	chain := clusterchain.New(table, int(entry.Cluster), clusterSize, filesOffset)
	return &FatFile{
		chain:       chain,
		table:       table,
		device:      device,
		clusterSize: clusterSize,
		filesOffset: filesOffset,
		ref:         ref,
		readOnly:    readOnly,
		fsClosed:    fsClosed,
		now:         time.Now,
	}
}

// SetClock overrides the timestamp source; intended for deterministic tests.
func (f *FatFile) SetClock(now func() time.Time) { f.now = now }

// GetLength reports the entry's stored file size, not the chain's on-disk
// capacity (which can exceed the logical length by up to one cluster).
func (f *FatFile) GetLength() (int64, error) {
	if err := f.checkOpen(); err != nil {
		return 0, err
	}
	return int64(f.ref.Get().FileSize), nil
}

// SetLength resizes the file to exactly n bytes, possibly changing the
// chain's start cluster (growing from empty), and updates the entry's
// cluster/size/modified fields.
func (f *FatFile) SetLength(n int64) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if n < 0 {
		return fatErrors.ErrInvalidArgument.WithMessage("length cannot be negative")
	}

	if err := f.chain.SetSize(n); err != nil {
		return err
	}

	entry := f.ref.Get()
	entry.FileSize = uint32(n)
	entry.Cluster = uint32(f.chain.StartCluster())
	entry.LastModified = f.now()
	f.ref.Set(entry)
	return nil
}

// Read requires offset+len(dst) <= length, failing with EndOfData otherwise;
// on success it updates the last-accessed timestamp unless the file is
// read-only.
func (f *FatFile) Read(offset int64, dst []byte) error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	entry := f.ref.Get()
	if offset+int64(len(dst)) > int64(entry.FileSize) {
		return fatErrors.ErrEndOfData
	}

	if err := f.chain.ReadData(f.device, offset, dst); err != nil {
		return err
	}

	if !f.readOnly {
		entry.LastAccessed = f.now()
		f.ref.Set(entry)
	}
	return nil
}

// Write grows the file to offset+len(src) if needed, writes through the
// chain, and updates the last-modified and last-accessed timestamps.
func (f *FatFile) Write(offset int64, src []byte) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if len(src) == 0 {
		return nil
	}

	if err := f.chain.WriteData(f.device, offset, src); err != nil {
		return err
	}

	entry := f.ref.Get()
	newLen := offset + int64(len(src))
	if newLen > int64(entry.FileSize) {
		entry.FileSize = uint32(newLen)
	}
	entry.Cluster = uint32(f.chain.StartCluster())
	entry.LastModified = f.now()
	entry.LastAccessed = f.now()
	f.ref.Set(entry)
	return nil
}

// Flush is a no-op beyond the read-only/closed checks: a FatFile has no
// buffered state of its own, only the chain and entry it already wrote
// through to.
func (f *FatFile) Flush() error {
	return f.checkWritable()
}

// Close marks the handle closed; subsequent operations fail with
// AlreadyClosed.
func (f *FatFile) Close() error {
	f.closed = true
	return nil
}

func (f *FatFile) checkOpen() error {
	if f.closed || (f.fsClosed != nil && *f.fsClosed) {
		return fatErrors.ErrAlreadyClosed
	}
	if f.ref.Invalid() {
		return fatErrors.ErrAlreadyInvalid
	}
	return nil
}

func (f *FatFile) checkWritable() error {
	if err := f.checkOpen(); err != nil {
		return err
	}
	if f.readOnly {
		return fatErrors.ErrReadOnly
	}
	return nil
}
