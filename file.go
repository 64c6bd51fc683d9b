package serialdisk

import (
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/aligator/serialdisk/checkpoint"
	"github.com/spf13/afero"
)

// These errors may occur while processing a file.
var (
	ErrReadFile = errors.New("could not read file completely")
	ErrSeekFile = errors.New("could not seek inside of the file")
	ErrReadDir  = errors.New("could not read the directory")
)

// fileBackend provides all methods needed from a volume for File.
// It mainly exists to be able to mock the Volume in tests.
// Generated mock using mockgen:
//
//	mockgen -source=file.go -destination=file_mock_test.go -package serialdisk
type fileBackend interface {
	readFileAt(entry DirectoryEntry, offset int64, size int64) ([]byte, error)
	readDir(entry DirectoryEntry) ([]DirectoryEntry, error)
}

// File is a read-only afero.File of a volume entry.
type File struct {
	fs    fileBackend
	path  string
	entry DirectoryEntry

	offset int64
}

func newFile(fs fileBackend, path string, entry DirectoryEntry) *File {
	return &File{fs: fs, path: path, entry: entry}
}

func (f *File) Close() error {
	f.fs = nil
	f.path = ""
	f.entry = DirectoryEntry{}
	f.offset = 0

	return nil
}

func (f *File) size() int64 {
	if f.entry.IsDir() {
		return 0
	}
	return int64(f.entry.Size)
}

func (f *File) Read(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.entry.IsDir() {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}

	// Reading a file if the size has been already reached, makes no sense.
	if f.size() <= f.offset {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.entry, f.offset, int64(len(p)))
	n = copy(p, data)

	// Seek even if an error occurred, errors from reading are used even if seek also errors.
	_, seekErr := f.Seek(int64(n), io.SeekCurrent)

	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	if seekErr != nil {
		return n, checkpoint.Wrap(seekErr, ErrReadFile)
	}
	return n, nil
}

// ReadAt reads len(p) bytes at off. Reading less than len(p) bytes returns io.EOF.
func (f *File) ReadAt(p []byte, off int64) (n int, err error) {
	if f.entry.IsDir() {
		return 0, checkpoint.Wrap(syscall.EISDIR, ErrReadFile)
	}
	if off < 0 {
		return 0, checkpoint.Wrap(syscall.EINVAL, ErrReadFile)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.size() <= off {
		return 0, io.EOF
	}

	data, err := f.fs.readFileAt(f.entry, off, int64(len(p)))
	n = copy(p, data)

	if err != nil {
		return n, checkpoint.Wrap(err, ErrReadFile)
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Seek jumps to a specific offset in the file. This affects all Read operation except ReadAt.
// May return a syscall.EINVAL error if the whence value is invalid.
// May return an afero.ErrOutOfRange error if the offset is out of range.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset = f.offset + offset
	case io.SeekEnd:
		offset = f.size() + offset
	default:
		return 0, checkpoint.Wrap(ErrSeekFile, fmt.Errorf("%w, offset: %v, whence: %v", syscall.EINVAL, offset, whence))
	}

	if offset < 0 || offset > f.size() {
		return 0, checkpoint.Wrap(afero.ErrOutOfRange, fmt.Errorf("%w, offset: %v, whence: %v", ErrSeekFile, offset, whence))
	}

	f.offset = offset
	return offset, nil
}

func (f *File) Write(p []byte) (n int, err error) {
	return 0, checkpoint.From(syscall.EROFS)
}

func (f *File) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, checkpoint.From(syscall.EROFS)
}

func (f *File) Name() string {
	return f.path
}

// Readdir reads the contents of a directory.
// For directories the offset counts entries instead of bytes.
// May return syscall.ENOTDIR if the current File is no directory.
func (f *File) Readdir(count int) ([]os.FileInfo, error) {
	if !f.entry.IsDir() {
		return nil, checkpoint.Wrap(syscall.ENOTDIR, ErrReadDir)
	}

	content, err := f.fs.readDir(f.entry)
	if err != nil {
		return nil, checkpoint.Wrap(err, ErrReadDir)
	}

	if f.offset > int64(len(content)) {
		f.offset = int64(len(content))
	}
	content = content[f.offset:]

	if count > 0 {
		if len(content) == 0 {
			return nil, io.EOF
		}
		if count < len(content) {
			content = content[:count]
		}
	}
	f.offset += int64(len(content))

	result := make([]os.FileInfo, len(content))
	for i := range content {
		result[i] = content[i].FileInfo()
	}

	return result, nil
}

func (f *File) Readdirnames(count int) ([]string, error) {
	content, err := f.Readdir(count)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(content))
	for i, entry := range content {
		names[i] = entry.Name()
	}

	return names, nil
}

func (f *File) Stat() (os.FileInfo, error) {
	return f.entry.FileInfo(), nil
}

func (f *File) Sync() error {
	return nil
}

func (f *File) Truncate(size int64) error {
	return checkpoint.From(syscall.EROFS)
}

func (f *File) WriteString(s string) (ret int, err error) {
	return f.Write([]byte(s))
}
