package directory

import (
	fatErrors "github.com/gofatfs/fatfs/errors"
)

// deviceRW is the narrow device contract Fat16RootDirectory needs.
type deviceRW interface {
	ReadAt(offset int64, dst []byte) error
	WriteAt(offset int64, src []byte) error
}

// Fat16RootDirectory is the fixed-capacity root directory of a FAT12/16
// volume, stored at a fixed device offset immediately after the FATs.
type Fat16RootDirectory struct {
	device   deviceRW
	offset   int64
	capacity int
}

// NewFat16RootDirectory builds the backend for a FAT12/16 root directory of
// `entryCount` entries located at `offset` on `device`.
func NewFat16RootDirectory(device deviceRW, offset int64, entryCount int) *Fat16RootDirectory {
	return &Fat16RootDirectory{device: device, offset: offset, capacity: entryCount}
}

func (r *Fat16RootDirectory) ReadRaw() ([]byte, error) {
	buf := make([]byte, r.capacity*SlotSize)
	if err := r.device.ReadAt(r.offset, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *Fat16RootDirectory) WriteRaw(data []byte) error {
	if len(data) != r.capacity*SlotSize {
		return fatErrors.ErrInvalidArgument.WithMessage("root directory write size mismatch")
	}
	return r.device.WriteAt(r.offset, data)
}

// StorageCluster is always 0: the FAT12/16 root directory has no cluster
// chain of its own.
func (r *Fat16RootDirectory) StorageCluster() int { return 0 }

// ChangeSize fails with DirectoryFull if n exceeds the fixed capacity set
// at format time; otherwise it is a no-op, since the region is preallocated.
func (r *Fat16RootDirectory) ChangeSize(n int) error {
	if n > r.capacity {
		return fatErrors.NewDirectoryFullError(r.capacity, n)
	}
	return nil
}

func (r *Fat16RootDirectory) Capacity() int { return r.capacity }
