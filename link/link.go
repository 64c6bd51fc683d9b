// Package link provides the byte stream to the remote machine: a serial port or, for
// emulators, a TCP connection.
package link

import (
	"errors"
	"io"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/aligator/serialdisk/checkpoint"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// TCPPrefix selects a TCP connection instead of a serial port, for example
// "tcp://localhost:7000".
const TCPPrefix = "tcp://"

var (
	ErrUnsupportedBaudRate = errors.New("unsupported baud rate")
	ErrSerialUnsupported   = errors.New("serial ports are not supported on this platform")
	ErrClosed              = errors.New("link closed")
	ErrNotTerminal         = errors.New("not a terminal device")
)

// chunkSize is the size of a single read of the background reader.
const chunkSize = 4096

// Link is an io.ReadWriteCloser whose reads are done by a background goroutine, so bytes
// are taken from the port as soon as they arrive, independent of frame processing.
type Link struct {
	conn   io.ReadWriteCloser
	chunks chan []byte

	pending []byte
	err     error

	closeOnce sync.Once
	done      chan struct{}
}

// New starts the background reader for conn.
func New(conn io.ReadWriteCloser) *Link {
	l := &Link{
		conn:   conn,
		chunks: make(chan []byte, 64),
		done:   make(chan struct{}),
	}
	go l.readLoop()
	return l
}

// Open opens a serial port with the given baud rate or, with TCPPrefix, a TCP connection.
func Open(name string, baud int) (*Link, error) {
	if strings.HasPrefix(name, TCPPrefix) {
		conn, err := net.Dial("tcp", strings.TrimPrefix(name, TCPPrefix))
		if err != nil {
			return nil, checkpoint.From(err)
		}
		log.WithField("port", name).Debug("Connected")
		return New(conn), nil
	}

	port, err := openSerial(name, baud)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"port": name, "baud": baud}).Debug("Serial port opened")
	return New(port), nil
}

func (l *Link) readLoop() {
	defer close(l.chunks)
	for {
		buf := make([]byte, chunkSize)
		n, err := l.conn.Read(buf)
		if n > 0 {
			select {
			case l.chunks <- buf[:n]:
			case <-l.done:
				return
			}
		}
		if err != nil {
			// The error is delivered after the last chunk.
			l.err = err
			return
		}
	}
}

// Read returns the bytes received so far, blocking until at least one byte arrived.
func (l *Link) Read(p []byte) (int, error) {
	if len(l.pending) == 0 {
		chunk, ok := <-l.chunks
		if !ok {
			select {
			case <-l.done:
				return 0, ErrClosed
			default:
				return 0, l.err
			}
		}
		l.pending = chunk
	}

	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

// Write sends p.
func (l *Link) Write(p []byte) (int, error) {
	return l.conn.Write(p)
}

// Close closes the connection, which also stops the background reader.
func (l *Link) Close() error {
	err := ErrClosed
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.conn.Close()
	})
	return err
}

// portPatterns match the serial devices of Linux and macOS.
var portPatterns = []string{
	"/dev/ttyS*",
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/cu.*",
	"/dev/tty.usbserial*",
}

// ListPorts returns the serial devices found in fs, sorted by name.
func ListPorts(fs afero.Fs) ([]string, error) {
	var ports []string
	for _, pattern := range portPatterns {
		matches, err := afero.Glob(fs, pattern)
		if err != nil {
			return nil, checkpoint.From(err)
		}
		ports = append(ports, matches...)
	}
	sort.Strings(ports)
	return ports, nil
}
