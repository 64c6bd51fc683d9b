//go:build !linux

package link

import (
	"io"

	"github.com/aligator/serialdisk/checkpoint"
)

func openSerial(name string, baud int) (io.ReadWriteCloser, error) {
	return nil, checkpoint.Wrapf(ErrSerialUnsupported, "%s", name)
}
