// Package checkpoint decorates errors with the file and line they passed through, which
// results in a compact breadcrumb trail similar to a stacktrace.
// Every error added to a checkpoint can still be checked by errors.Is and retrieved by errors.As.
//
// The rendering is kept on one line so that decorated errors can be used as log fields.
package checkpoint

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
)

// From wraps an error by a new checkpoint which adds the caller information to the error.
// It returns nil, if err == nil.
func From(err error) error {
	// io.EOF must be returned as io.EOF directly
	// https://github.com/golang/go/issues/39155
	if err == nil || err == io.EOF || err == io.ErrUnexpectedEOF {
		return err
	}

	return newCheckpoint(nil, err)
}

// Wrap adds a checkpoint to prev and attaches err, which describes the checkpoint further.
// It returns nil if prev == nil.
// This allows to predefine some errors and use them later:
//
//	var ErrSomethingSpecialWentWrong = errors.New("a very bad error")
//
//	func someFunction() error {
//		err := somethingOtherThatThrowsErrors()
//		return checkpoint.Wrap(err, ErrSomethingSpecialWentWrong)
//	}
//
// errors.Is matches both ErrSomethingSpecialWentWrong and the error of somethingOtherThatThrowsErrors().
func Wrap(prev, err error) error {
	if prev == nil {
		return nil
	}
	if prev == io.EOF {
		return io.EOF
	}

	return newCheckpoint(err, prev)
}

// Wrapf is like Wrap but formats the describing error from format and args.
// A %w verb in format keeps the wrapped value matchable by errors.Is.
func Wrapf(prev error, format string, args ...interface{}) error {
	if prev == nil {
		return nil
	}
	if prev == io.EOF {
		return io.EOF
	}

	return newCheckpoint(fmt.Errorf(format, args...), prev)
}

// New creates a checkpoint for a fresh error which has no previous error.
func New(err error) error {
	if err == nil {
		return nil
	}

	return newCheckpoint(err, nil)
}

func newCheckpoint(err, prev error) *checkpoint {
	// Skip newCheckpoint and the exported function.
	_, file, line, ok := runtime.Caller(2)

	return &checkpoint{
		err:  err,
		prev: prev,

		callerOk: ok,
		file:     filepath.Base(file),
		line:     line,
	}
}

type checkpoint struct {
	err  error
	prev error

	callerOk bool
	file     string
	line     int
}

func (e *checkpoint) location() string {
	if e.callerOk {
		return fmt.Sprintf("%s:%d", e.file, e.line)
	}
	return "unknown"
}

func (e *checkpoint) Error() string {
	var parts []string
	if e.err != nil {
		parts = append(parts, e.err.Error())
	}
	if e.prev != nil {
		parts = append(parts, e.prev.Error())
	}

	return "[" + e.location() + "] " + strings.Join(parts, ": ")
}

func (e *checkpoint) Unwrap() error {
	return e.prev
}

func (e *checkpoint) Is(target error) bool {
	return e.err != nil && errors.Is(e.err, target)
}

func (e *checkpoint) As(target interface{}) bool {
	return e.err != nil && errors.As(e.err, target)
}
