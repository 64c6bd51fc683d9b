package serialdisk

import (
	"io/fs"
	"sort"
)

// GoFs is the fs.FS view of a volume. Besides Open it serves ReadFile, ReadDir and Stat
// directly from the volume.
type GoFs struct {
	volume *Volume
	view   *Fs
}

// NewGoFS creates the fs.FS view of the volume.
func NewGoFS(v *Volume) *GoFs {
	return &GoFs{volume: v, view: NewFs(v)}
}

// validName checks name like fs.FS requires and reports the error for op.
func validName(op, name string) error {
	if !fs.ValidPath(name) {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return nil
}

func (g *GoFs) Open(name string) (fs.File, error) {
	if err := validName("open", name); err != nil {
		return nil, err
	}

	entry, err := g.volume.FindEntry(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: toPathError(err)}
	}
	return goFile{newFile(g.volume, name, entry)}, nil
}

func (g *GoFs) Stat(name string) (fs.FileInfo, error) {
	if err := validName("stat", name); err != nil {
		return nil, err
	}
	return g.view.Stat(name)
}

func (g *GoFs) ReadFile(name string) ([]byte, error) {
	if err := validName("readfile", name); err != nil {
		return nil, err
	}

	data, err := g.volume.ReadFile(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: toPathError(err)}
	}
	return data, nil
}

// ReadDir returns the entries of a directory sorted by name, without "." and "..".
func (g *GoFs) ReadDir(name string) ([]fs.DirEntry, error) {
	if err := validName("readdir", name); err != nil {
		return nil, err
	}

	entries, err := g.volume.ReadDir(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: toPathError(err)}
	}

	result := make([]fs.DirEntry, len(entries))
	for i, e := range entries {
		result[i] = fs.FileInfoToDirEntry(e.FileInfo())
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result, nil
}

// goFile adds the fs.ReadDirFile method to File.
type goFile struct {
	*File
}

func (f goFile) ReadDir(n int) ([]fs.DirEntry, error) {
	infos, err := f.File.Readdir(n)

	entries := make([]fs.DirEntry, len(infos))
	for i, info := range infos {
		entries[i] = fs.FileInfoToDirEntry(info)
	}
	return entries, err
}
