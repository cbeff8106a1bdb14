package dirent

import (
	"encoding/binary"
	"time"

	"github.com/go-restruct/restruct"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

// byteOrder is the encoding every raw directory-entry struct is packed
// with, named to match bootsector's identically-purposed variable.
var byteOrder binary.ByteOrder = binary.LittleEndian

// EntrySize is the size, in bytes, of one 32-byte directory entry (short or
// LFN alike).
const EntrySize = 32

// Attribute flags for a directory entry's Attributes byte.
const (
	// AttrReadOnly marks a file as read-only.
	AttrReadOnly = 1 << iota

	// AttrHidden marks an entry as hidden from normal directory listings.
	AttrHidden

	// AttrSystem marks an entry as essential to the operating system.
	AttrSystem

	// AttrVolumeLabel marks an entry as the volume's label rather than a
	// file or directory.
	AttrVolumeLabel

	// AttrDirectory marks an entry as a subdirectory.
	AttrDirectory

	// AttrArchive marks an entry as modified since it was last backed up.
	AttrArchive
)

// DeletedMarker is the first byte of a deleted directory entry.
const DeletedMarker = 0xE5

// EscapedDeletedMarker is the first-byte escape for a real 8.3 name whose
// first character is itself 0xE5.
const EscapedDeletedMarker = 0x05

// EndMarker is the first byte of the entry terminating a directory's
// in-use region.
const EndMarker = 0x00

// rawEntry is the 32-byte on-disk layout of a short directory entry.
type rawEntry struct {
	ShortName        [11]byte
	Attributes       uint8
	NTReserved       uint8
	CreateTimeTenths uint8
	CreateTime       uint16
	CreateDate       uint16
	LastAccessDate   uint16
	ClusterHigh      uint16
	WriteTime        uint16
	WriteDate        uint16
	ClusterLow       uint16
	FileSize         uint32
}

// Entry is the parsed, user-friendly form of a short directory entry.
type Entry struct {
	ShortName    ShortName
	Attributes   uint8
	Created      time.Time
	LastAccessed time.Time
	LastModified time.Time
	Cluster      uint32
	FileSize     uint32
}

// IsLFNAttr reports whether the raw attribute byte marks this as an LFN slot
// rather than a real entry.
func IsLFNAttr(attr uint8) bool { return attr == LongNameAttr }

// IsDirectory reports whether the entry is a subdirectory.
func (e *Entry) IsDirectory() bool { return e.Attributes&AttrDirectory != 0 }

// IsVolumeLabel reports whether the entry is the volume-label pseudo-entry.
func (e *Entry) IsVolumeLabel() bool { return e.Attributes&AttrVolumeLabel != 0 }

// IsReadOnly reports whether the entry's read-only attribute is set.
func (e *Entry) IsReadOnly() bool { return e.Attributes&AttrReadOnly != 0 }

// ParseEntry decodes one 32-byte buffer into an Entry. Returns ok=false if
// the entry is deleted (first byte 0xE5) or marks the end of the directory
// (first byte 0x00); callers must stop iterating on the latter.
func ParseEntry(data []byte) (entry Entry, ok bool, isEnd bool, err error) {
	if len(data) != EntrySize {
		return Entry{}, false, false, fatErrors.ErrInvalidArgument.WithMessage("directory entry must be 32 bytes")
	}

	if data[0] == EndMarker {
		return Entry{}, false, true, nil
	}
	if data[0] == DeletedMarker {
		return Entry{}, false, false, nil
	}

	var raw rawEntry
	if err := restruct.Unpack(data, byteOrder, &raw); err != nil {
		return Entry{}, false, false, fatErrors.ErrCorruptVolume.WrapError(err)
	}

	sn := ParseShortName(raw.ShortName[:])
	if sn[0] == EscapedDeletedMarker {
		sn[0] = DeletedMarker
	}

	entry = Entry{
		ShortName:    sn,
		Attributes:   raw.Attributes,
		Created:      TimestampFromParts(raw.CreateDate, raw.CreateTime, raw.CreateTimeTenths),
		LastAccessed: DateFromInt(raw.LastAccessDate),
		LastModified: TimestampFromParts(raw.WriteDate, raw.WriteTime, 0),
		Cluster:      uint32(raw.ClusterHigh)<<16 | uint32(raw.ClusterLow),
		FileSize:     raw.FileSize,
	}
	return entry, true, false, nil
}

// ToBytes serializes the entry into its 32-byte on-disk form.
func (e *Entry) ToBytes() ([]byte, error) {
	sn := e.ShortName
	if sn[0] == DeletedMarker {
		sn[0] = EscapedDeletedMarker
	}

	createDate, createTime, createTenths := partsFromTimestamp(e.Created)
	writeDate, writeTime, _ := partsFromTimestamp(e.LastModified)
	accessDate, _, _ := partsFromTimestamp(e.LastAccessed)

	raw := rawEntry{
		ShortName:        sn,
		Attributes:       e.Attributes,
		CreateTimeTenths: createTenths,
		CreateTime:       createTime,
		CreateDate:       createDate,
		LastAccessDate:   accessDate,
		ClusterHigh:      uint16(e.Cluster >> 16),
		WriteTime:        writeTime,
		WriteDate:        writeDate,
		ClusterLow:       uint16(e.Cluster),
		FileSize:         e.FileSize,
	}

	return restruct.Pack(byteOrder, &raw)
}

// DateFromInt converts a packed FAT date (day/month/year-since-1980) into a
// time.Time at midnight UTC.
func DateFromInt(value uint16) time.Time {
	day := int(value & 0x001F)
	month := time.Month((value >> 5) & 0x000F)
	year := 1980 + int(value>>9)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TimestampFromParts combines a packed FAT date, time, and (for creation
// timestamps) tenths-of-a-second field into a time.Time.
func TimestampFromParts(datePart, timePart uint16, tenths uint8) time.Time {
	d := DateFromInt(datePart)

	seconds := int(timePart&0x001F) * 2
	minutes := int((timePart >> 5) & 0x003F)
	hours := int(timePart >> 11)

	nanoseconds := 0
	if tenths > 0 {
		if tenths >= 100 {
			seconds++
			tenths -= 100
		}
		nanoseconds = int(tenths) * 10_000_000
	}

	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, nanoseconds, time.UTC)
}

// partsFromTimestamp packs a time.Time into FAT date/time/tenths fields.
func partsFromTimestamp(t time.Time) (date, timePart uint16, tenths uint8) {
	if t.IsZero() {
		return 0, 0, 0
	}
	year := t.Year() - 1980
	if year < 0 {
		year = 0
	}
	date = uint16(year)<<9 | uint16(t.Month())<<5 | uint16(t.Day())
	timePart = uint16(t.Hour())<<11 | uint16(t.Minute())<<5 | uint16(t.Second()/2)
	tenths = uint8((t.Second()%2)*100 + t.Nanosecond()/10_000_000)
	return date, timePart, tenths
}
