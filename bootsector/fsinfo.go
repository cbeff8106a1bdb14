package bootsector

import (
	"github.com/go-restruct/restruct"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

const (
	fsInfoLeadSignature  = 0x41615252
	fsInfoStrucSignature = 0x61417272
	fsInfoTrailSignature = 0xAA550000

	// UnknownFreeCount marks FSInfo.FreeClusterCount as "not computed"; a
	// driver must fall back to a linear FAT scan when it sees this value.
	UnknownFreeCount = 0xFFFFFFFF
	// UnknownNextFree marks FSInfo.NextFreeCluster as "no hint available".
	UnknownNextFree = 0xFFFFFFFF
)

// rawFSInfo is the 512-byte FAT32 FS-info sector, laid out exactly as it
// appears on disk.
type rawFSInfo struct {
	LeadSignature  uint32
	Reserved1      [480]byte
	StrucSignature uint32
	FreeCount      uint32
	NextFree       uint32
	Reserved2      [12]byte
	TrailSignature uint32
}

// FSInfo is the parsed FAT32 FS-info sector: a free-cluster-count cache and
// an allocation hint, both advisory and subject to verification against the
// FAT itself.
type FSInfo struct {
	raw rawFSInfo
}

// NewFSInfo builds a fresh FS-info sector with both hints marked unknown.
func NewFSInfo() *FSInfo {
	fsi := &FSInfo{}
	fsi.raw.LeadSignature = fsInfoLeadSignature
	fsi.raw.StrucSignature = fsInfoStrucSignature
	fsi.raw.TrailSignature = fsInfoTrailSignature
	fsi.raw.FreeCount = UnknownFreeCount
	fsi.raw.NextFree = UnknownNextFree
	return fsi
}

// ParseFSInfo decodes a 512-byte FS-info sector buffer, verifying all three
// signatures.
func ParseFSInfo(buf []byte) (*FSInfo, error) {
	if len(buf) != sectorSize {
		return nil, fatErrors.ErrInvalidArgument.WithMessage("FS-info sector must be 512 bytes")
	}

	fsi := &FSInfo{}
	if err := restruct.Unpack(buf, byteOrder, &fsi.raw); err != nil {
		return nil, fatErrors.ErrCorruptVolume.WrapError(err)
	}

	if fsi.raw.LeadSignature != fsInfoLeadSignature ||
		fsi.raw.StrucSignature != fsInfoStrucSignature ||
		fsi.raw.TrailSignature != fsInfoTrailSignature {
		return nil, fatErrors.ErrCorruptVolume.WithMessage("FS-info sector has a bad signature")
	}

	return fsi, nil
}

// Bytes serializes the FS-info sector back into a 512-byte buffer.
func (fsi *FSInfo) Bytes() ([]byte, error) {
	return restruct.Pack(byteOrder, &fsi.raw)
}

// FreeClusterCount returns the cached free-cluster count, or UnknownFreeCount
// if the cache has never been populated. Callers must not trust this value
// without cross-checking it against a FAT scan at mount time.
func (fsi *FSInfo) FreeClusterCount() uint32 { return fsi.raw.FreeCount }

// SetFreeClusterCount updates the cached free-cluster count.
func (fsi *FSInfo) SetFreeClusterCount(count uint32) { fsi.raw.FreeCount = count }

// NextFreeCluster returns the allocator's starting-point hint, or
// UnknownNextFree if none is recorded.
func (fsi *FSInfo) NextFreeCluster() uint32 { return fsi.raw.NextFree }

// SetNextFreeCluster updates the allocator's starting-point hint.
func (fsi *FSInfo) SetNextFreeCluster(cluster uint32) { fsi.raw.NextFree = cluster }

// Verify cross-checks the cached free-cluster count against an authoritative
// count obtained from a full FAT scan: the cache is advisory and must never
// be trusted blind.
func (fsi *FSInfo) Verify(authoritativeFreeCount uint32) error {
	if fsi.raw.FreeCount == UnknownFreeCount {
		return nil
	}
	if fsi.raw.FreeCount != authoritativeFreeCount {
		return fatErrors.ErrCorruptVolume.WithMessage("FS-info free-cluster count disagrees with the FAT")
	}
	return nil
}
