package dirent

import (
	"golang.org/x/text/encoding/unicode"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

// LFNEntrySize is the size, in bytes, of one LFN slot -- the same as a real
// directory entry, since LFN slots are disguised as entries with the
// LongNameAttr combination.
const LFNEntrySize = 32

// LongNameAttr is the attribute-byte combination (READONLY|HIDDEN|SYSTEM|
// VOLUME_ID) that marks an entry as an LFN slot rather than a real one.
const LongNameAttr = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeLabel

// lastLongEntryFlag marks the highest-ordinal LFN slot: the one physically
// first on disk, carrying the end of the name.
const lastLongEntryFlag = 0x40

// codeUnitOffsets lists the byte offset of each of the 13 UTF-16 code units
// an LFN slot carries, in on-disk order.
var codeUnitOffsets = [13]int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}

// utf16le is the codec used for the 13 code units per slot.
var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// LFNSlot is one decoded long-name extension entry.
type LFNSlot struct {
	Ordinal  uint8
	Last     bool
	Checksum uint8
	Units    [13]uint16
}

// EncodeLFN splits `name` into the minimal sequence of LFN slots needed to
// hold it (up to 255 UTF-16 code units), each carrying `checksum` (the
// associated short name's checksum). Slots are returned in on-disk order:
// highest ordinal (with the "last" bit set) first.
func EncodeLFN(name string, checksum uint8) ([]LFNSlot, error) {
	units, err := utf16Units(name)
	if err != nil {
		return nil, err
	}
	if len(units) > 255 {
		return nil, fatErrors.ErrNameTooLong
	}

	numSlots := (len(units) + 12) / 13
	if numSlots == 0 {
		numSlots = 1
	}

	slots := make([]LFNSlot, numSlots)
	for i := 0; i < numSlots; i++ {
		var buf [13]uint16
		for j := 0; j < 13; j++ {
			idx := i*13 + j
			switch {
			case idx < len(units):
				buf[j] = units[idx]
			case idx == len(units):
				buf[j] = 0x0000
			default:
				buf[j] = 0xFFFF
			}
		}
		slots[i] = LFNSlot{
			Ordinal:  uint8(i + 1),
			Checksum: checksum,
			Units:    buf,
		}
	}
	slots[numSlots-1].Last = true

	// On-disk order is highest ordinal first.
	ordered := make([]LFNSlot, numSlots)
	for i, s := range slots {
		ordered[numSlots-1-i] = s
	}
	return ordered, nil
}

// DecodeLFN reassembles the name from a sequence of slots in on-disk order
// (highest ordinal, i.e. the "last" one, first) by concatenating the
// 13-code-unit groups in *reverse* disk order.
func DecodeLFN(slots []LFNSlot) (string, error) {
	if len(slots) == 0 {
		return "", nil
	}

	// Reverse back into ordinal order (1..k).
	byOrdinal := make([]LFNSlot, len(slots))
	for i, s := range slots {
		byOrdinal[len(slots)-1-i] = s
	}

	var units []uint16
	for _, s := range byOrdinal {
		for _, u := range s.Units {
			if u == 0x0000 {
				return utf16ToString(units)
			}
			if u == 0xFFFF {
				continue
			}
			units = append(units, u)
		}
	}
	return utf16ToString(units)
}

// ToBytes serializes one LFN slot into its 32-byte on-disk form.
func (s LFNSlot) ToBytes() []byte {
	buf := make([]byte, LFNEntrySize)

	ordinal := s.Ordinal
	if s.Last {
		ordinal |= lastLongEntryFlag
	}
	buf[0] = ordinal
	buf[11] = LongNameAttr
	buf[12] = 0
	buf[13] = s.Checksum
	buf[26] = 0
	buf[27] = 0

	for i, offset := range codeUnitOffsets {
		u := s.Units[i]
		buf[offset] = byte(u)
		buf[offset+1] = byte(u >> 8)
	}
	return buf
}

// ParseLFNSlot decodes one 32-byte LFN entry. Caller must already know
// `data` has the LongNameAttr attribute byte.
func ParseLFNSlot(data []byte) LFNSlot {
	var s LFNSlot
	s.Ordinal = data[0] &^ lastLongEntryFlag
	s.Last = data[0]&lastLongEntryFlag != 0
	s.Checksum = data[13]
	for i, offset := range codeUnitOffsets {
		s.Units[i] = uint16(data[offset]) | uint16(data[offset+1])<<8
	}
	return s
}

func utf16Units(s string) ([]uint16, error) {
	encoded, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, err
	}
	units := make([]uint16, len(encoded)/2)
	for i := range units {
		units[i] = uint16(encoded[2*i]) | uint16(encoded[2*i+1])<<8
	}
	return units, nil
}

func utf16ToString(units []uint16) (string, error) {
	raw := make([]byte, len(units)*2)
	for i, u := range units {
		raw[2*i] = byte(u)
		raw[2*i+1] = byte(u >> 8)
	}
	decoded, err := utf16le.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}
