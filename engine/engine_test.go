package engine

import (
	"bytes"
	"context"
	"net"
	"testing"

	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/protocol"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testGeometry has one 512 byte sector per cluster: boot sector 0, FAT 1, root directory 2,
// data from 3 to 18.
func testGeometry() serialdisk.Geometry {
	return serialdisk.Geometry{
		BytesPerSector:    512,
		SectorsPerCluster: 1,
		ReservedSectors:   1,
		FATCount:          1,
		RootEntryCount:    16,
		Clusters:          16,
		Media:             0xF8,
	}
}

func testingVolume(t *testing.T) *serialdisk.Volume {
	t.Helper()
	v, err := serialdisk.NewVolume(testGeometry())
	require.NoError(t, err)
	return v
}

func sectors(count int, fill byte) []byte {
	return bytes.Repeat([]byte{fill}, count*512)
}

func handle(t *testing.T, e *Engine, req protocol.Request) protocol.Reply {
	t.Helper()
	reply, err := e.Handle(req.Marshal())
	require.NoError(t, err)
	assert.Equal(t, req.Op, reply.Op)
	return reply
}

func TestEngine_WriteThenRead(t *testing.T) {
	e := New(testingVolume(t))

	data := append(append(sectors(1, 0xA1), sectors(1, 0xB2)...), sectors(1, 0xC3)...)
	reply := handle(t, e, protocol.Request{Op: protocol.OpWriteSectors, Start: 5, Count: 3, Data: data})
	assert.Equal(t, protocol.StatusOk, reply.Status)
	assert.Empty(t, reply.Body)

	reply = handle(t, e, protocol.Request{Op: protocol.OpReadSectors, Start: 5, Count: 3})
	assert.Equal(t, protocol.StatusOk, reply.Status)
	assert.Equal(t, data, reply.Body)

	reply = handle(t, e, protocol.Request{Op: protocol.OpReadSectors, Start: 6, Count: 1})
	assert.Equal(t, sectors(1, 0xB2), reply.Body)

	assert.Equal(t, 3, e.Commands())
	assert.Equal(t, Executing, e.State())
}

func TestEngine_Errors(t *testing.T) {
	tests := []struct {
		name       string
		req        protocol.Request
		wantStatus protocol.Status
	}{
		{
			name:       "read past the end",
			req:        protocol.Request{Op: protocol.OpReadSectors, Start: 18, Count: 2},
			wantStatus: protocol.StatusAddressOutOfRange,
		},
		{
			name:       "read far past the end",
			req:        protocol.Request{Op: protocol.OpReadSectors, Start: 0xFFFFFFFF, Count: 1},
			wantStatus: protocol.StatusAddressOutOfRange,
		},
		{
			name:       "write past the end",
			req:        protocol.Request{Op: protocol.OpWriteSectors, Start: 17, Count: 3, Data: sectors(3, 1)},
			wantStatus: protocol.StatusAddressOutOfRange,
		},
		{
			name:       "write with missing data",
			req:        protocol.Request{Op: protocol.OpWriteSectors, Start: 5, Count: 3, Data: sectors(2, 1)},
			wantStatus: protocol.StatusUnsupported,
		},
		{
			name:       "write to the boot sector",
			req:        protocol.Request{Op: protocol.OpWriteSectors, Start: 0, Count: 1, Data: sectors(1, 1)},
			wantStatus: protocol.StatusUnsupported,
		},
		{
			name:       "read more sectors than the volume has",
			req:        protocol.Request{Op: protocol.OpReadSectors, Start: 0, Count: 0xFFFF},
			wantStatus: protocol.StatusAddressOutOfRange,
		},
		{
			name:       "read nothing at the end",
			req:        protocol.Request{Op: protocol.OpReadSectors, Start: 19, Count: 0},
			wantStatus: protocol.StatusAddressOutOfRange,
		},
		{
			name:       "read many sectors at the end",
			req:        protocol.Request{Op: protocol.OpReadSectors, Start: 19, Count: 0xFFFF},
			wantStatus: protocol.StatusAddressOutOfRange,
		},
		{
			name:       "write past the end with missing data",
			req:        protocol.Request{Op: protocol.OpWriteSectors, Start: 19, Count: 3, Data: sectors(1, 1)},
			wantStatus: protocol.StatusAddressOutOfRange,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(testingVolume(t))
			reply := handle(t, e, tt.req)
			assert.Equal(t, tt.wantStatus, reply.Status)
			assert.Empty(t, reply.Body)
		})
	}
}

func TestEngine_ReadTooLarge(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	g, err := serialdisk.DefaultGeometry(serialdisk.PartitionGEM, serialdisk.OSVersion100, 4)
	require.NoError(t, err)
	layout, err := serialdisk.NewLayout(g)
	require.NoError(t, err)

	device := NewMockDevice(ctrl)
	device.EXPECT().Layout().Return(layout).AnyTimes()
	// The reply would not fit into a frame, so the volume is not read.

	e := New(device)
	reply := handle(t, e, protocol.Request{Op: protocol.OpReadSectors, Start: 0, Count: 4096})
	assert.Equal(t, protocol.StatusUnsupported, reply.Status)
	assert.Empty(t, reply.Body)
}

func TestEngine_OutOfRangeWriteTouchesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	layout, err := serialdisk.NewLayout(testGeometry())
	require.NoError(t, err)

	device := NewMockDevice(ctrl)
	device.EXPECT().Layout().Return(layout).AnyTimes()
	// No WriteSectors call is expected.

	e := New(device)
	reply := handle(t, e, protocol.Request{Op: protocol.OpWriteSectors, Start: 18, Count: 2, Data: sectors(2, 0)})
	assert.Equal(t, protocol.StatusAddressOutOfRange, reply.Status)
}

func TestEngine_MediaParameters(t *testing.T) {
	v := testingVolume(t)
	e := New(v)

	reply := handle(t, e, protocol.Request{Op: protocol.OpGetMediaParameters})
	require.Equal(t, protocol.StatusOk, reply.Status)

	p, err := protocol.DecodeMediaParameters(reply.Body)
	require.NoError(t, err)
	assert.Equal(t, v.MediaParameters(), p)
	assert.Equal(t, uint32(19), p.TotalSectors)
	assert.Equal(t, uint16(3), p.FirstDataSector)
}

func TestEngine_MediaChangeAck(t *testing.T) {
	e := New(testingVolume(t))

	reply := handle(t, e, protocol.Request{Op: protocol.OpMediaChangeAck})
	assert.Equal(t, []byte{1}, reply.Body)

	reply = handle(t, e, protocol.Request{Op: protocol.OpMediaChangeAck})
	assert.Equal(t, []byte{0}, reply.Body)
}

func TestEngine_Unsupported(t *testing.T) {
	e := New(testingVolume(t))

	reply, err := e.Handle([]byte{0x42})
	require.NoError(t, err)
	assert.Equal(t, protocol.Reply{Op: 0x42, Status: protocol.StatusUnsupported}, reply)

	reply, err = e.Handle([]byte{})
	require.NoError(t, err)
	assert.Equal(t, protocol.Reply{Op: protocol.OpInvalid, Status: protocol.StatusUnsupported}, reply)
}

func TestEngine_ContractViolation(t *testing.T) {
	layout, err := serialdisk.NewLayout(testGeometry())
	require.NoError(t, err)

	tests := []struct {
		name string
		read func(start serialdisk.Sector, count int) ([]byte, error)
	}{
		{
			name: "returned",
			read: func(start serialdisk.Sector, count int) ([]byte, error) {
				return nil, &serialdisk.ContractViolation{Reason: "sector without data"}
			},
		},
		{
			name: "panic",
			read: func(start serialdisk.Sector, count int) ([]byte, error) {
				panic(&serialdisk.ContractViolation{Reason: "FAT slot out of range"})
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			device := NewMockDevice(ctrl)
			device.EXPECT().Layout().Return(layout).AnyTimes()
			device.EXPECT().ReadSectors(serialdisk.Sector(3), 1).DoAndReturn(tt.read)

			e := New(device)
			_, err := e.Handle(protocol.Request{Op: protocol.OpReadSectors, Start: 3, Count: 1}.Marshal())
			assert.True(t, serialdisk.IsContractViolation(err), "error = %v", err)
		})
	}
}

type client struct {
	t   *testing.T
	enc *protocol.Encoder
	dec *protocol.Decoder
}

func (c *client) call(req protocol.Request) protocol.Reply {
	c.t.Helper()
	require.NoError(c.t, c.enc.Encode(req.Marshal()))
	return c.receive()
}

func (c *client) receive() protocol.Reply {
	c.t.Helper()
	msg, err := c.dec.Decode()
	require.NoError(c.t, err)
	reply, err := protocol.ParseReply(msg)
	require.NoError(c.t, err)
	return reply
}

func serve(t *testing.T, device Device) (*client, net.Conn, chan error) {
	t.Helper()
	server, conn := net.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- New(device).Serve(context.Background(), server)
		server.Close()
	}()
	return &client{t: t, enc: protocol.NewEncoder(conn, protocol.DefaultCompressionThreshold), dec: protocol.NewDecoder(conn)}, conn, done
}

func TestEngine_Serve(t *testing.T) {
	c, conn, done := serve(t, testingVolume(t))

	data := bytes.Repeat([]byte("ATARI ST "), 16*512/9+1)[:16*512]
	reply := c.call(protocol.Request{Op: protocol.OpWriteSectors, Start: 3, Count: 16, Data: data})
	assert.Equal(t, protocol.StatusOk, reply.Status)

	reply = c.call(protocol.Request{Op: protocol.OpReadSectors, Start: 3, Count: 16})
	assert.Equal(t, protocol.StatusOk, reply.Status)
	assert.Equal(t, data, reply.Body)

	reply = c.call(protocol.Request{Op: protocol.OpReadSectors, Start: 18, Count: 2})
	assert.Equal(t, protocol.StatusAddressOutOfRange, reply.Status)

	// A damaged frame is answered and the session goes on.
	frame := protocol.AppendFrame(nil, protocol.Request{Op: protocol.OpGetMediaParameters}.Marshal(), protocol.FlagRaw)
	frame[len(frame)-1] ^= 0xFF
	_, err := conn.Write(frame)
	require.NoError(t, err)
	reply = c.receive()
	assert.Equal(t, protocol.Reply{Op: protocol.OpInvalid, Status: protocol.StatusChecksumMismatch}, reply)

	reply = c.call(protocol.Request{Op: protocol.OpGetMediaParameters})
	assert.Equal(t, protocol.StatusOk, reply.Status)
	assert.Len(t, reply.Body, protocol.MediaParametersSize)

	require.NoError(t, conn.Close())
	assert.NoError(t, <-done)
}

func TestEngine_Serve_ContractViolation(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	layout, err := serialdisk.NewLayout(testGeometry())
	require.NoError(t, err)
	device := NewMockDevice(ctrl)
	device.EXPECT().Layout().Return(layout).AnyTimes()
	device.EXPECT().ReadSectors(gomock.Any(), gomock.Any()).Return(nil, &serialdisk.ContractViolation{Reason: "broken"})

	c, conn, done := serve(t, device)
	defer conn.Close()

	require.NoError(t, c.enc.Encode(protocol.Request{Op: protocol.OpReadSectors, Start: 3, Count: 1}.Marshal()))
	err = <-done
	assert.True(t, serialdisk.IsContractViolation(err), "error = %v", err)
}

func TestEngine_Serve_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server, conn := net.Pipe()
	defer conn.Close()
	assert.ErrorIs(t, New(testingVolume(t)).Serve(ctx, server), context.Canceled)
}
