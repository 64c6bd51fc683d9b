package serialdisk

import (
	"bytes"
	"strings"

	"github.com/aligator/serialdisk/checkpoint"
)

// ShortName is an 8.3 name as stored in a directory entry: 8 name and 3 extension
// characters, both padded with spaces.
type ShortName [11]byte

// invalidNameChars may not appear in a short name.
const invalidNameChars = "\"*+,./:;<=>?[\\]|"

// ParseShortName validates name as 8.3 name and returns it in its stored, upper case form.
// The stem may have up to 8 characters, the extension up to 3 and only ASCII is allowed.
func ParseShortName(name string) (ShortName, error) {
	var short ShortName
	for i := range short {
		short[i] = ' '
	}

	if name == "." || name == ".." {
		copy(short[:], name)
		return short, nil
	}

	stem, ext := name, ""
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		stem, ext = name[:dot], name[dot+1:]
	}

	if len(stem) == 0 || len(stem) > 8 || len(ext) > 3 {
		return ShortName{}, checkpoint.Wrapf(ErrInvalidName, "%q does not fit 8.3", name)
	}
	if !validNamePart(stem) || !validNamePart(ext) {
		return ShortName{}, checkpoint.Wrapf(ErrInvalidName, "%q contains invalid characters", name)
	}

	copy(short[:8], strings.ToUpper(stem))
	copy(short[8:], strings.ToUpper(ext))
	return short, nil
}

// IsValidShortName reports whether name can be stored without changes.
func IsValidShortName(name string) bool {
	_, err := ParseShortName(name)
	return err == nil
}

func validNamePart(part string) bool {
	for i := 0; i < len(part); i++ {
		c := part[i]
		if c <= ' ' || c >= 0x7F || strings.IndexByte(invalidNameChars, c) >= 0 {
			return false
		}
	}
	return true
}

// String returns the name in "NAME.EXT" form.
func (n ShortName) String() string {
	stem := strings.TrimRight(string(n[:8]), " ")
	ext := strings.TrimRight(string(n[8:11]), " ")

	if len(stem) > 0 && stem[0] == entryKanjiE5 {
		stem = string(rune(entryDeletedMarker)) + stem[1:]
	}

	if ext != "" {
		stem += "."
	}
	return stem + ext
}

// Equal compares two names case insensitively.
func (n ShortName) Equal(other ShortName) bool {
	return bytes.EqualFold(n[:], other[:])
}

func (n ShortName) isDot() bool {
	return n[0] == '.'
}
