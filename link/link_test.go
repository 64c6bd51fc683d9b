package link

import (
	"io"
	"net"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLink_ReadWrite(t *testing.T) {
	local, remote := net.Pipe()
	l := New(local)
	defer l.Close()

	go func() {
		_, _ = remote.Write([]byte("hello "))
		_, _ = remote.Write([]byte("world"))
	}()

	got := make([]byte, 11)
	_, err := io.ReadFull(l, got)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(got))

	go func() {
		_, _ = l.Write([]byte("reply"))
	}()
	reply := make([]byte, 5)
	_, err = io.ReadFull(remote, reply)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(reply))
}

func TestLink_SmallReads(t *testing.T) {
	local, remote := net.Pipe()
	l := New(local)
	defer l.Close()

	go func() {
		_, _ = remote.Write([]byte("abc"))
	}()

	for _, want := range []byte("abc") {
		b := make([]byte, 1)
		n, err := l.Read(b)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, want, b[0])
	}
}

func TestLink_RemoteClosed(t *testing.T) {
	local, remote := net.Pipe()
	l := New(local)
	defer l.Close()

	go func() {
		_, _ = remote.Write([]byte("last"))
		_ = remote.Close()
	}()

	got, err := io.ReadAll(l)
	require.NoError(t, err)
	assert.Equal(t, "last", string(got))
}

func TestLink_Close(t *testing.T) {
	local, _ := net.Pipe()
	l := New(local)

	require.NoError(t, l.Close())
	assert.ErrorIs(t, l.Close(), ErrClosed)

	_, err := l.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestOpen_TCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		_, _ = conn.Write([]byte("ping"))
		_ = conn.Close()
	}()

	l, err := Open(TCPPrefix+listener.Addr().String(), 0)
	require.NoError(t, err)
	defer l.Close()

	got, err := io.ReadAll(l)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))
}

func TestListPorts(t *testing.T) {
	fs := afero.NewMemMapFs()
	for _, name := range []string{"/dev/ttyUSB1", "/dev/ttyUSB0", "/dev/ttyACM0", "/dev/null", "/dev/tty.usbserial-A1"} {
		require.NoError(t, afero.WriteFile(fs, name, nil, 0o600))
	}

	ports, err := ListPorts(fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"/dev/tty.usbserial-A1", "/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyUSB1"}, ports)
}
