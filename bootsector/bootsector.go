package bootsector

import (
	"encoding/binary"
	"fmt"

	"github.com/go-restruct/restruct"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

// byteOrder is the encoding every raw FAT structure is packed with. Named
// the way go-exfat names its equivalent (defaultEncoding) so the restruct
// call sites read the same across this repo and its sibling on-disk-format
// driver in the example pack.
var byteOrder binary.ByteOrder = binary.LittleEndian

const sectorSize = 512

// rawCommonHeader is the BIOS Parameter Block common to all three FAT
// flavors, laid out exactly as it appears on disk. Struct-tag-free: restruct
// packs/unpacks plain fixed-width fields in declaration order.
type rawCommonHeader struct {
	JmpBoot         [3]byte
	OEMName         [8]byte
	BytesPerSector  uint16
	SectorsPerClus  uint8
	ReservedSectors uint16
	NumFATs         uint8
	RootEntryCount  uint16
	TotalSectors16  uint16
	Media           uint8
	SectorsPerFAT16 uint16
	SectorsPerTrack uint16
	NumHeads        uint16
	HiddenSectors   uint32
	TotalSectors32  uint32
}

// rawFat1216Extension is the FAT12/16-specific tail of the boot sector.
type rawFat1216Extension struct {
	DriveNumber    uint8
	Reserved1      uint8
	BootSignature  uint8
	VolumeID       uint32
	VolumeLabel    [11]byte
	FileSystemType [8]byte
}

// rawFat32Extension is the FAT32-specific tail of the boot sector.
type rawFat32Extension struct {
	SectorsPerFAT32  uint32
	ExtFlags         uint16
	FSVersion        uint16
	RootCluster      uint32
	FSInfoSector     uint16
	BackupBootSector uint16
	Reserved         [12]byte
	DriveNumber      uint8
	Reserved1        uint8
	BootSignature    uint8
	VolumeID         uint32
	VolumeLabel      [11]byte
	FileSystemType   [8]byte
}

// BootSector is the parsed, flavor-resolved view of the boot sector plus the
// geometry computed from it.
type BootSector struct {
	common rawCommonHeader
	fat1216 rawFat1216Extension
	fat32   rawFat32Extension

	Type FatType

	SectorsPerFAT    uint32
	TotalSectors     uint32
	RootDirSectors   uint32
	DataSectors      uint32
	TotalClusters    uint32
	FirstDataSector  uint32
}

// Parse decodes a 512-byte boot sector buffer, verifies its signature, and
// derives its FAT flavor. `buf` must be exactly sectorSize bytes.
func Parse(buf []byte) (*BootSector, error) {
	if len(buf) != sectorSize {
		return nil, fatErrors.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("boot sector must be %d bytes, got %d", sectorSize, len(buf)))
	}
	if buf[510] != 0x55 || buf[511] != 0xAA {
		return nil, fatErrors.ErrCorruptVolume.WithMessage("missing 0x55 0xAA boot signature")
	}

	bs := &BootSector{}
	if err := restruct.Unpack(buf[0:36], byteOrder, &bs.common); err != nil {
		return nil, fatErrors.ErrCorruptVolume.WrapError(err)
	}

	if err := validateGeometry(&bs.common); err != nil {
		return nil, err
	}

	sectorsPerFAT := uint32(bs.common.SectorsPerFAT16)
	totalSectors := uint32(bs.common.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = bs.common.TotalSectors32
	}

	rootDirSectors := (uint32(bs.common.RootEntryCount)*32 + uint32(bs.common.BytesPerSector) - 1) /
		uint32(bs.common.BytesPerSector)

	// A zero SectorsPerFAT16 means this is a FAT32 volume; read the FAT32
	// extension to get the real value and the rest of the FAT32-only fields.
	if sectorsPerFAT == 0 {
		if err := restruct.Unpack(buf[36:90], byteOrder, &bs.fat32); err != nil {
			return nil, fatErrors.ErrCorruptVolume.WrapError(err)
		}
		sectorsPerFAT = bs.fat32.SectorsPerFAT32
	} else {
		if err := restruct.Unpack(buf[36:62], byteOrder, &bs.fat1216); err != nil {
			return nil, fatErrors.ErrCorruptVolume.WrapError(err)
		}
	}

	totalFATSectors := uint32(bs.common.NumFATs) * sectorsPerFAT
	reserved := uint32(bs.common.ReservedSectors)
	dataSectors := totalSectors - (reserved + totalFATSectors + rootDirSectors)
	totalClusters := dataSectors / uint32(bs.common.SectorsPerClus)

	bs.Type = DetermineFatType(totalClusters)
	if bs.Type == FAT32 && rootDirSectors != 0 {
		return nil, fatErrors.ErrCorruptVolume.WithMessage(
			"FAT32 volume has a nonzero root directory region")
	}

	bs.SectorsPerFAT = sectorsPerFAT
	bs.TotalSectors = totalSectors
	bs.RootDirSectors = rootDirSectors
	bs.DataSectors = dataSectors
	bs.TotalClusters = totalClusters
	bs.FirstDataSector = reserved + totalFATSectors + rootDirSectors

	return bs, nil
}

// FormatParams bundles the geometry a freshly created volume needs; Format
// derives the rest (cluster count, FAT flavor, data-region start) from it.
type FormatParams struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16 // must be 0 for FAT32; Format rejects a nonzero value
	TotalSectors      uint32
	SectorsPerFAT     uint32
	Media             uint8
	VolumeLabel       string
	VolumeID          uint32
	RootCluster       uint32 // FAT32 only, conventionally 2
	FSInfoSector      uint16 // FAT32 only, conventionally 1
	BackupBootSector  uint16 // FAT32 only, conventionally 6
}

// Format builds a brand-new boot sector from geometry parameters, deriving
// and validating the FAT flavor the same way Parse does so a freshly
// formatted volume is read back identically to how it was written.
func Format(p FormatParams) (*BootSector, error) {
	bs := &BootSector{}
	bs.common.JmpBoot = [3]byte{0xEB, 0x3C, 0x90}
	copy(bs.common.OEMName[:], "FATFS1.0")
	bs.common.BytesPerSector = p.BytesPerSector
	bs.common.SectorsPerClus = p.SectorsPerCluster
	bs.common.ReservedSectors = p.ReservedSectors
	bs.common.NumFATs = p.NumFATs
	bs.common.Media = p.Media

	rootDirSectors := (uint32(p.RootEntryCount)*32 + uint32(p.BytesPerSector) - 1) / uint32(p.BytesPerSector)
	totalFATSectors := uint32(p.NumFATs) * p.SectorsPerFAT
	reserved := uint32(p.ReservedSectors)
	dataSectors := p.TotalSectors - (reserved + totalFATSectors + rootDirSectors)
	totalClusters := dataSectors / uint32(p.SectorsPerCluster)

	bs.Type = DetermineFatType(totalClusters)
	if bs.Type == FAT32 && p.RootEntryCount != 0 {
		return nil, fatErrors.ErrInvalidArgument.WithMessage("FAT32 volumes have no fixed-size root directory")
	}

	if p.TotalSectors <= 0xFFFF {
		bs.common.TotalSectors16 = uint16(p.TotalSectors)
	} else {
		bs.common.TotalSectors32 = p.TotalSectors
	}
	bs.common.RootEntryCount = p.RootEntryCount

	if bs.Type == FAT32 {
		bs.common.SectorsPerFAT16 = 0
		bs.fat32.SectorsPerFAT32 = p.SectorsPerFAT
		bs.fat32.RootCluster = p.RootCluster
		bs.fat32.FSInfoSector = p.FSInfoSector
		bs.fat32.BackupBootSector = p.BackupBootSector
		bs.fat32.DriveNumber = 0x80
		bs.fat32.BootSignature = 0x29
		bs.fat32.VolumeID = p.VolumeID
		copy(bs.fat32.FileSystemType[:], "FAT32   ")
	} else {
		bs.common.SectorsPerFAT16 = uint16(p.SectorsPerFAT)
		bs.fat1216.DriveNumber = 0x80
		bs.fat1216.BootSignature = 0x29
		bs.fat1216.VolumeID = p.VolumeID
		if bs.Type == FAT12 {
			copy(bs.fat1216.FileSystemType[:], "FAT12   ")
		} else {
			copy(bs.fat1216.FileSystemType[:], "FAT16   ")
		}
	}

	if err := validateGeometry(&bs.common); err != nil {
		return nil, err
	}

	bs.SectorsPerFAT = p.SectorsPerFAT
	bs.TotalSectors = p.TotalSectors
	bs.RootDirSectors = rootDirSectors
	bs.DataSectors = dataSectors
	bs.TotalClusters = totalClusters
	bs.FirstDataSector = reserved + totalFATSectors + rootDirSectors

	bs.SetVolumeLabel(p.VolumeLabel)
	return bs, nil
}

func validateGeometry(common *rawCommonHeader) error {
	switch common.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return fatErrors.ErrCorruptVolume.WithMessage(
			fmt.Sprintf("invalid bytes-per-sector %d", common.BytesPerSector))
	}

	switch common.SectorsPerClus {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return fatErrors.ErrCorruptVolume.WithMessage(
			fmt.Sprintf("invalid sectors-per-cluster %d: must be a power of two", common.SectorsPerClus))
	}

	return nil
}

// Bytes serializes the boot sector back into a 512-byte buffer, including
// the trailing 0x55 0xAA signature.
func (bs *BootSector) Bytes() ([]byte, error) {
	buf := make([]byte, sectorSize)

	common, err := restruct.Pack(byteOrder, &bs.common)
	if err != nil {
		return nil, err
	}
	copy(buf[0:36], common)

	if bs.Type == FAT32 {
		ext, err := restruct.Pack(byteOrder, &bs.fat32)
		if err != nil {
			return nil, err
		}
		copy(buf[36:90], ext)
	} else {
		ext, err := restruct.Pack(byteOrder, &bs.fat1216)
		if err != nil {
			return nil, err
		}
		copy(buf[36:62], ext)
	}

	buf[510] = 0x55
	buf[511] = 0xAA
	return buf, nil
}

// BytesPerSector returns the device sector size this volume was formatted
// with.
func (bs *BootSector) BytesPerSector() uint32 { return uint32(bs.common.BytesPerSector) }

// SectorsPerCluster returns the number of sectors in one allocation unit.
func (bs *BootSector) SectorsPerCluster() uint32 { return uint32(bs.common.SectorsPerClus) }

// BytesPerCluster returns the size of one allocation unit, in bytes.
func (bs *BootSector) BytesPerCluster() uint32 {
	return bs.BytesPerSector() * bs.SectorsPerCluster()
}

// ReservedSectors returns the number of sectors in the reserved region
// (including the boot sector itself).
func (bs *BootSector) ReservedSectors() uint32 { return uint32(bs.common.ReservedSectors) }

// NumFATs returns the number of identical FAT copies on disk.
func (bs *BootSector) NumFATs() uint32 { return uint32(bs.common.NumFATs) }

// RootEntryCount returns the fixed capacity of the FAT12/16 root directory
// (0 for FAT32, where the root is a regular cluster chain).
func (bs *BootSector) RootEntryCount() uint32 { return uint32(bs.common.RootEntryCount) }

// RootCluster returns the FAT32 root directory's start cluster (0 for
// FAT12/16).
func (bs *BootSector) RootCluster() uint32 {
	if bs.Type != FAT32 {
		return 0
	}
	return bs.fat32.RootCluster
}

// FSInfoSectorNumber returns the sector number of the FS-info sector
// (FAT32 only; 0 otherwise).
func (bs *BootSector) FSInfoSectorNumber() uint32 {
	if bs.Type != FAT32 {
		return 0
	}
	return uint32(bs.fat32.FSInfoSector)
}

// BackupBootSectorNumber returns the sector number of the boot-sector copy
// (FAT32 only; 0 otherwise).
func (bs *BootSector) BackupBootSectorNumber() uint32 {
	if bs.Type != FAT32 {
		return 0
	}
	return uint32(bs.fat32.BackupBootSector)
}

// Media returns the media descriptor byte.
func (bs *BootSector) Media() uint8 { return bs.common.Media }

// VolumeLabel returns the 11-byte inline volume label, trimmed of trailing
// spaces.
func (bs *BootSector) VolumeLabel() string {
	var raw [11]byte
	if bs.Type == FAT32 {
		raw = bs.fat32.VolumeLabel
	} else {
		raw = bs.fat1216.VolumeLabel
	}
	return trimTrailingSpaces(raw[:])
}

// SetVolumeLabel writes an 11-byte (padded/truncated) volume label into the
// appropriate flavor-specific field.
func (bs *BootSector) SetVolumeLabel(label string) {
	var raw [11]byte
	for i := range raw {
		raw[i] = ' '
	}
	copy(raw[:], label)

	if bs.Type == FAT32 {
		bs.fat32.VolumeLabel = raw
	} else {
		bs.fat1216.VolumeLabel = raw
	}
}

// SetSectorsPerCluster validates and sets the sectors-per-cluster field. It
// must be a power of two.
func (bs *BootSector) SetSectorsPerCluster(n uint8) error {
	switch n {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return fatErrors.ErrInvalidArgument.WithMessage("sectors-per-cluster must be a power of two")
	}
	bs.common.SectorsPerClus = n
	return nil
}

// SetBytesPerSector validates and sets the bytes-per-sector field. Must be
// one of 512, 1024, 2048, or 4096.
func (bs *BootSector) SetBytesPerSector(n uint16) error {
	switch n {
	case 512, 1024, 2048, 4096:
	default:
		return fatErrors.ErrInvalidArgument.WithMessage("bytes-per-sector must be 512/1024/2048/4096")
	}
	bs.common.BytesPerSector = n
	return nil
}

func trimTrailingSpaces(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}
