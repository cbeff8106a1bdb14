// Package dirent implements the 32-byte short directory entry, the 8.3 short
// name it carries, and the Long File Name extension that layers a Unicode
// name across multiple entries ahead of it.
package dirent

import (
	"strings"

	fatErrors "github.com/gofatfs/fatfs/errors"
)

// ShortNameSize is the length, in bytes, of the packed 8.3 name buffer.
const ShortNameSize = 11

// forbiddenShortNameBytes lists bytes that may never appear in a short name,
// beyond the 0x00-0x1F control range (0x05 excepted, since it stands in for
// a literal leading 0xE5).
var forbiddenShortNameBytes = map[byte]bool{
	'"': true, '*': true, '+': true, ',': true, '.': true, '/': true,
	':': true, ';': true, '<': true, '=': true, '>': true, '?': true,
	'[': true, '\\': true, ']': true, '|': true,
}

// ShortName is the fixed 11-byte 8.3 name buffer: 8 bytes of name padded
// with spaces, 3 bytes of extension padded with spaces, always uppercase.
type ShortName [ShortNameSize]byte

// Dot and DotDot are the two distinguished short names used for a
// directory's self- and parent-references.
var (
	Dot    = ShortName{'.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
	DotDot = ShortName{'.', '.', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' '}
)

// NewShortName validates and builds a ShortName from a bare name and
// extension (without the separating dot): uppercased, padded with spaces,
// with name <= 8 bytes and extension <= 3 bytes, first byte not a space,
// and no forbidden byte anywhere.
func NewShortName(name, ext string) (ShortName, error) {
	if len(name) > 8 || len(ext) > 3 {
		return ShortName{}, fatErrors.ErrNameTooLong.WithMessage("short name component too long")
	}
	if len(name) == 0 {
		return ShortName{}, fatErrors.ErrInvalidArgument.WithMessage("short name cannot be empty")
	}

	var sn ShortName
	for i := range sn {
		sn[i] = ' '
	}

	upperName := strings.ToUpper(name)
	upperExt := strings.ToUpper(ext)

	if upperName[0] == ' ' {
		return ShortName{}, fatErrors.ErrInvalidArgument.WithMessage("short name cannot start with a space")
	}

	for i := 0; i < len(upperName); i++ {
		if err := checkShortNameByte(upperName[i]); err != nil {
			return ShortName{}, err
		}
		sn[i] = upperName[i]
	}
	for i := 0; i < len(upperExt); i++ {
		if err := checkShortNameByte(upperExt[i]); err != nil {
			return ShortName{}, err
		}
		sn[8+i] = upperExt[i]
	}

	return sn, nil
}

func checkShortNameByte(b byte) error {
	if b < 0x20 && b != 0x05 {
		return fatErrors.ErrInvalidArgument.WithMessage("control byte not allowed in short name")
	}
	if forbiddenShortNameBytes[b] {
		return fatErrors.ErrInvalidArgument.WithMessage("character not allowed in short name")
	}
	return nil
}

// ParseShortName reads an 11-byte buffer into a ShortName without
// revalidating it (it's assumed to already be on disk in valid form, modulo
// the 0xE5/0x05 deleted-marker escape handled by the caller).
func ParseShortName(buf []byte) ShortName {
	var sn ShortName
	copy(sn[:], buf[:ShortNameSize])
	return sn
}

// AsSimpleString renders the short name as "NAME.EXT" (no extension, no
// dot, if the extension is all spaces), trimming trailing spaces from each
// half.
func (sn ShortName) AsSimpleString() string {
	name := strings.TrimRight(string(sn[0:8]), " ")
	ext := strings.TrimRight(string(sn[8:11]), " ")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// CheckSum implements the LFN checksum over the short name's 11 raw bytes.
func (sn ShortName) CheckSum() uint8 {
	var c uint8
	for _, b := range sn {
		c = ((c & 1) << 7) + ((c & 0xFE) >> 1) + b
	}
	return c
}

// ShortNameFromString parses a "name.ext" (or extension-less "name") string
// into a ShortName, applying the same validity rules as NewShortName.
func ShortNameFromString(s string) (ShortName, error) {
	name, ext, _ := strings.Cut(s, ".")
	return NewShortName(name, ext)
}

// CanConvert reports whether `s` (as a single "name.ext" or "name" string)
// could be losslessly parsed as an 8.3 short name.
func CanConvert(s string) bool {
	_, err := ShortNameFromString(s)
	return err == nil
}

// Equal compares two short names byte-for-byte.
func (sn ShortName) Equal(other ShortName) bool {
	return sn == other
}
