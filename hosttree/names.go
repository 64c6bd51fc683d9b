package hosttree

import (
	"fmt"
	"strings"

	"github.com/aligator/serialdisk"
)

// maxSuffix limits the numeric suffixes tried for one name.
const maxSuffix = 999999

// nameAllocator hands out unique 8.3 names inside of one directory.
type nameAllocator struct {
	used map[serialdisk.ShortName]bool
}

func newNameAllocator() *nameAllocator {
	return &nameAllocator{used: make(map[serialdisk.ShortName]bool)}
}

// allocate turns a host name into a free 8.3 name.
//
// Names which are valid 8.3 names are kept (upper cased). Everything else is sanitized:
// invalid characters become "_", the stem is cut to 8 and the extension to 3 characters.
// If the result is already taken, the stem is shortened and "~N" is appended, counting
// N up from 1 until the name is free, for example "LONGFI~1.TXT".
func (a *nameAllocator) allocate(hostName string) (serialdisk.ShortName, error) {
	stem, ext := sanitize(hostName)

	candidate := stem
	if ext != "" {
		candidate += "." + ext
	}
	short, err := serialdisk.ParseShortName(candidate)
	if err == nil && !a.used[short] {
		a.used[short] = true
		return short, nil
	}

	for n := 1; n <= maxSuffix; n++ {
		suffix := fmt.Sprintf("~%d", n)
		base := stem
		if len(base)+len(suffix) > 8 {
			base = base[:8-len(suffix)]
		}
		candidate = base + suffix
		if ext != "" {
			candidate += "." + ext
		}

		short, err := serialdisk.ParseShortName(candidate)
		if err != nil {
			return serialdisk.ShortName{}, err
		}
		if !a.used[short] {
			a.used[short] = true
			return short, nil
		}
	}
	return serialdisk.ShortName{}, fmt.Errorf("%w: no free name for %q", serialdisk.ErrInvalidName, hostName)
}

// sanitize splits a host name into an upper case 8.3 stem and extension.
func sanitize(name string) (stem, ext string) {
	name = strings.TrimLeft(name, ".")
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		stem, ext = name[:dot], name[dot+1:]
	} else {
		stem = name
	}

	stem = cleanPart(stem, 8)
	ext = cleanPart(ext, 3)
	if stem == "" {
		stem = "_"
	}
	return stem, ext
}

func cleanPart(part string, max int) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(part) {
		if b.Len() == max {
			break
		}
		switch {
		case r == ' ':
			// Spaces are dropped like most FAT drivers do.
		case r < 0x20 || r >= 0x7F || strings.ContainsRune("\"*+,./:;<=>?[\\]|", r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
