package serialdisk

import (
	"os"
	"time"
)

// FileInfo returns the entry as os.FileInfo.
func (e DirectoryEntry) FileInfo() os.FileInfo {
	return entryFileInfo{e}
}

type entryFileInfo struct {
	entry DirectoryEntry
}

func (e entryFileInfo) Name() string {
	if e.entry.IsRoot() {
		return "."
	}
	return e.entry.Name.String()
}

func (e entryFileInfo) Size() int64 {
	if e.IsDir() {
		return 0
	}
	return int64(e.entry.Size)
}

func (e entryFileInfo) Mode() os.FileMode {
	mode := os.FileMode(0o666)
	if e.entry.Attr&AttrReadOnly != 0 {
		mode = 0o444
	}
	if e.IsDir() {
		return os.ModeDir | mode | 0o111
	}
	return mode
}

// ModTime returns the write timestamp. Invalid timestamps return time.Time{}.
func (e entryFileInfo) ModTime() time.Time {
	return e.entry.Modified
}

func (e entryFileInfo) IsDir() bool {
	return e.entry.IsDir()
}

// Sys returns the DirectoryEntry.
func (e entryFileInfo) Sys() interface{} {
	return e.entry
}
