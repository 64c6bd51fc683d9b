package serialdisk

import (
	"errors"
	"fmt"
)

// These errors are recoverable: they are reported to the caller (and over the wire) and
// processing continues.
var (
	ErrAddressOutOfRange = errors.New("address out of range")
	ErrOutOfSpace        = errors.New("out of space")
	ErrVolumeTooLarge    = errors.New("content too large for the volume")
	ErrInvalidGeometry   = errors.New("invalid volume geometry")
	ErrNotFound          = errors.New("entry not found")
	ErrExists            = errors.New("entry already exists")
	ErrNotDirectory      = errors.New("not a directory")
	ErrIsDirectory       = errors.New("is a directory")
	ErrDirectoryFull     = errors.New("directory is full")
	ErrDirectoryNotEmpty = errors.New("directory is not empty")
	ErrInvalidName       = errors.New("invalid 8.3 name")
	ErrBrokenChain       = errors.New("cluster chain is broken")
	ErrIncomplete        = errors.New("content is not completely written yet")
	ErrReadOnlyRegion    = errors.New("region cannot be written")
	ErrInvalidSectorData = errors.New("sector data has an invalid size")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// ContractViolation means the in-memory model diverged from its own invariants, for example
// an access to a sector which never got any data or a cycle in the FAT.
// It is never recoverable: whoever receives it has to end the session instead of retrying.
type ContractViolation struct {
	Reason string
}

func (c *ContractViolation) Error() string {
	return "contract violation: " + c.Reason
}

func violationf(format string, args ...interface{}) *ContractViolation {
	return &ContractViolation{Reason: fmt.Sprintf(format, args...)}
}

// IsContractViolation reports whether err carries a ContractViolation.
func IsContractViolation(err error) bool {
	var violation *ContractViolation
	return errors.As(err, &violation)
}

// RecoverViolation turns a ContractViolation panic into an error stored in errp.
// Other panics are passed on. It has to be called deferred:
//
//	defer serialdisk.RecoverViolation(&err)
func RecoverViolation(errp *error) {
	r := recover()
	if r == nil {
		return
	}

	if violation, ok := r.(*ContractViolation); ok {
		*errp = violation
		return
	}
	panic(r)
}
