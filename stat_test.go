package serialdisk

import (
	"os"
	"testing"
	"time"
)

func Test_entryFileInfo(t *testing.T) {
	modified := time.Date(2021, 3, 4, 10, 20, 30, 0, time.UTC)
	file, _ := ParseShortName("hello.txt")
	noExt, _ := ParseShortName("README")
	dir, _ := ParseShortName("FOLDER")

	tests := []struct {
		name     string
		entry    DirectoryEntry
		wantName string
		wantSize int64
		wantMode os.FileMode
		wantDir  bool
	}{
		{
			name:     "file",
			entry:    DirectoryEntry{Name: file, Attr: AttrArchive, Size: 42, Modified: modified},
			wantName: "HELLO.TXT",
			wantSize: 42,
			wantMode: 0o666,
		},
		{
			name:     "read-only file without extension",
			entry:    DirectoryEntry{Name: noExt, Attr: AttrReadOnly, Size: 1, Modified: modified},
			wantName: "README",
			wantSize: 1,
			wantMode: 0o444,
		},
		{
			name:     "directory",
			entry:    DirectoryEntry{Name: dir, Attr: AttrDirectory, Size: 99, Modified: modified},
			wantName: "FOLDER",
			wantSize: 0,
			wantMode: os.ModeDir | 0o777,
			wantDir:  true,
		},
		{
			name:     "root directory",
			entry:    rootEntry(),
			wantName: ".",
			wantMode: os.ModeDir | 0o777,
			wantDir:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.entry.FileInfo()
			if got := info.Name(); got != tt.wantName {
				t.Errorf("Name() = %v, want %v", got, tt.wantName)
			}
			if got := info.Size(); got != tt.wantSize {
				t.Errorf("Size() = %v, want %v", got, tt.wantSize)
			}
			if got := info.Mode(); got != tt.wantMode {
				t.Errorf("Mode() = %v, want %v", got, tt.wantMode)
			}
			if got := info.IsDir(); got != tt.wantDir {
				t.Errorf("IsDir() = %v, want %v", got, tt.wantDir)
			}
			if got := info.ModTime(); !got.Equal(tt.entry.Modified) {
				t.Errorf("ModTime() = %v, want %v", got, tt.entry.Modified)
			}
			if got, ok := info.Sys().(DirectoryEntry); !ok || got.Name != tt.entry.Name {
				t.Errorf("Sys() = %v, want the entry", info.Sys())
			}
		})
	}
}
