package hosttree

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// OpKind is the kind of a host operation.
type OpKind uint8

const (
	OpMkdir OpKind = iota
	OpWrite
	OpRename
	OpRemove
)

func (k OpKind) String() string {
	switch k {
	case OpMkdir:
		return "mkdir"
	case OpWrite:
		return "write"
	case OpRename:
		return "rename"
	case OpRemove:
		return "remove"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op is a single change of the host tree. It carries its own copy of the data, so it can be
// applied after the volume changed again.
type Op struct {
	Kind OpKind
	// Path is relative to the host root.
	Path string
	// NewPath is only used by OpRename.
	NewPath string
	// Data and ModTime are only used by OpWrite.
	Data    []byte
	ModTime time.Time
}

func (o Op) String() string {
	if o.Kind == OpRename {
		return fmt.Sprintf("%v %s -> %s", o.Kind, o.Path, o.NewPath)
	}
	return fmt.Sprintf("%v %s", o.Kind, o.Path)
}

// Sink receives the operations planned by the Exporter.
type Sink interface {
	Submit(ops []Op) error
}

// Applier executes operations on a host filesystem.
//
// Failed operations are kept and tried again, in their original order, before the next batch.
// The volume stays the source of truth, so nothing is dropped because of a host failure.
type Applier struct {
	fs     afero.Fs
	failed []Op
}

// NewApplier creates an Applier writing into fs. Use afero.NewBasePathFs to restrict it to
// the mounted folder.
func NewApplier(fs afero.Fs) *Applier {
	return &Applier{fs: fs}
}

// Submit applies the operations. The returned error lists every operation which failed;
// they are retried by the next call.
func (a *Applier) Submit(ops []Op) error {
	queue := append(a.failed, ops...)
	a.failed = nil

	var errs []error
	for _, op := range queue {
		if err := a.apply(op); err != nil {
			log.WithFields(log.Fields{"op": op.Kind, "path": op.Path}).Warnf("Export failed, will retry: %v", err)
			a.failed = append(a.failed, op)
			errs = append(errs, fmt.Errorf("%v: %w", op, err))
			continue
		}
		log.WithFields(log.Fields{"op": op.Kind, "path": op.Path}).Debug("Exported")
	}
	return errors.Join(errs...)
}

// Retry applies only the operations which failed before.
func (a *Applier) Retry() error {
	return a.Submit(nil)
}

// Pending returns how many operations wait for a retry.
func (a *Applier) Pending() int {
	return len(a.failed)
}

func (a *Applier) apply(op Op) error {
	switch op.Kind {
	case OpMkdir:
		return a.fs.MkdirAll(op.Path, 0o755)
	case OpWrite:
		if err := a.fs.MkdirAll(path.Dir(op.Path), 0o755); err != nil {
			return err
		}
		if err := afero.WriteFile(a.fs, op.Path, op.Data, 0o644); err != nil {
			return err
		}
		if !op.ModTime.IsZero() {
			// Not every filesystem supports times, the content is what counts.
			if err := a.fs.Chtimes(op.Path, op.ModTime, op.ModTime); err != nil {
				log.WithField("path", op.Path).Debugf("Could not set the modification time: %v", err)
			}
		}
		return nil
	case OpRename:
		if err := a.fs.MkdirAll(path.Dir(op.NewPath), 0o755); err != nil {
			return err
		}
		return a.fs.Rename(op.Path, op.NewPath)
	case OpRemove:
		err := a.fs.RemoveAll(op.Path)
		if os.IsNotExist(err) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown operation %v", op.Kind)
	}
}
