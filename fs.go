package serialdisk

import (
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/spf13/afero"
)

// Fs is a read-only afero.Fs view of a volume. It is used to dump a volume and to compare
// it with the host tree. All modifying methods return syscall.EROFS.
//
// Like the Volume it must not be used concurrently with changes to the volume.
type Fs struct {
	volume *Volume
}

// NewFs creates the afero view of the volume.
func NewFs(v *Volume) *Fs {
	return &Fs{volume: v}
}

func (fs *Fs) Open(name string) (afero.File, error) {
	entry, err := fs.volume.FindEntry(name)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: toPathError(err)}
	}

	return newFile(fs.volume, name, entry), nil
}

func (fs *Fs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: syscall.EROFS}
	}
	return fs.Open(name)
}

func (fs *Fs) Stat(name string) (os.FileInfo, error) {
	entry, err := fs.volume.FindEntry(name)
	if err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: toPathError(err)}
	}
	return entry.FileInfo(), nil
}

func (fs *Fs) Name() string {
	return "serialdisk"
}

func (fs *Fs) Create(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "create", Path: name, Err: syscall.EROFS}
}

func (fs *Fs) Mkdir(name string, perm os.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: name, Err: syscall.EROFS}
}

func (fs *Fs) MkdirAll(path string, perm os.FileMode) error {
	return &os.PathError{Op: "mkdir", Path: path, Err: syscall.EROFS}
}

func (fs *Fs) Remove(name string) error {
	return &os.PathError{Op: "remove", Path: name, Err: syscall.EROFS}
}

func (fs *Fs) RemoveAll(path string) error {
	return &os.PathError{Op: "remove", Path: path, Err: syscall.EROFS}
}

func (fs *Fs) Rename(oldname, newname string) error {
	return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EROFS}
}

func (fs *Fs) Chmod(name string, mode os.FileMode) error {
	return &os.PathError{Op: "chmod", Path: name, Err: syscall.EROFS}
}

func (fs *Fs) Chown(name string, uid, gid int) error {
	return &os.PathError{Op: "chown", Path: name, Err: syscall.EROFS}
}

func (fs *Fs) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return &os.PathError{Op: "chtimes", Path: name, Err: syscall.EROFS}
}

// toPathError maps volume errors to the errors the os package uses, so that os.IsNotExist
// and fs.ErrNotExist work with the view.
func toPathError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return os.ErrNotExist
	case errors.Is(err, ErrNotDirectory):
		return syscall.ENOTDIR
	default:
		return err
	}
}
