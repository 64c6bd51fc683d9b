//go:build linux

package link

import (
	"os"

	"github.com/aligator/serialdisk/checkpoint"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

var baudRates = map[int]uint32{
	1200:   unix.B1200,
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
}

func baudRate(baud int) (uint32, error) {
	rate, ok := baudRates[baud]
	if !ok {
		return 0, checkpoint.Wrapf(ErrUnsupportedBaudRate, "%d", baud)
	}
	return rate, nil
}

// openSerial opens the device in raw 8N1 mode. Reads block until at least one byte arrived.
func openSerial(name string, baud int) (*os.File, error) {
	rate, err := baudRate(baud)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(name, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, checkpoint.From(err)
	}

	if err := setRawMode(f, rate); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func setRawMode(f *os.File, rate uint32) error {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return checkpoint.Wrapf(ErrNotTerminal, "%s", f.Name())
	}

	// No echo, no canonical input, no character translation, reads return after one byte.
	if _, err := term.MakeRaw(fd); err != nil {
		return checkpoint.Wrapf(err, "raw mode for %s", f.Name())
	}

	attr, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return checkpoint.From(err)
	}
	attr.Cflag &^= unix.CSTOPB | unix.CRTSCTS | unix.CBAUD
	attr.Cflag |= unix.CREAD | unix.CLOCAL | rate
	attr.Ispeed = rate
	attr.Ospeed = rate
	attr.Iflag &^= unix.IXOFF

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, attr); err != nil {
		return checkpoint.Wrapf(err, "configure %s", f.Name())
	}
	return nil
}
