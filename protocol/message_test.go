package protocol

import (
	"testing"

	"github.com/aligator/serialdisk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		msg     []byte
		want    Request
		wantErr error
	}{
		{
			name: "read sectors",
			msg:  []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x00, 0x03},
			want: Request{Op: OpReadSectors, Start: 0x102, Count: 3},
		},
		{
			name: "write sectors",
			msg:  []byte{0x01, 0x00, 0x00, 0x00, 0x05, 0x00, 0x01, 0xAA, 0xBB},
			want: Request{Op: OpWriteSectors, Start: 5, Count: 1, Data: []byte{0xAA, 0xBB}},
		},
		{name: "media parameters", msg: []byte{0x02}, want: Request{Op: OpGetMediaParameters}},
		{name: "media change", msg: []byte{0x03}, want: Request{Op: OpMediaChangeAck}},
		{name: "empty", msg: []byte{}, wantErr: ErrMalformedPayload},
		{name: "short read", msg: []byte{0x00, 0x00, 0x00}, wantErr: ErrMalformedPayload},
		{name: "trailing bytes", msg: []byte{0x02, 0x00}, wantErr: ErrMalformedPayload},
		{name: "unknown opcode", msg: []byte{0x42}, wantErr: ErrUnknownOpcode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.msg, got.Marshal())
		})
	}
}

func TestParseRequest_UnknownOpcodeKeepsIdentity(t *testing.T) {
	r, err := ParseRequest([]byte{0x42, 0x01})
	assert.ErrorIs(t, err, ErrUnknownOpcode)
	assert.Equal(t, Opcode(0x42), r.Op)
}

func TestReply(t *testing.T) {
	r := Reply{Op: OpReadSectors, Status: StatusAddressOutOfRange}
	msg := r.Marshal()
	assert.Equal(t, []byte{0x00, 0x01}, msg)

	got, err := ParseReply(msg)
	require.NoError(t, err)
	assert.Equal(t, OpReadSectors, got.Op)
	assert.Equal(t, StatusAddressOutOfRange, got.Status)
	assert.Empty(t, got.Body)

	_, err = ParseReply([]byte{0x00})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestMediaParameters(t *testing.T) {
	p := serialdisk.MediaParameters{
		BytesPerSector:    512,
		SectorsPerCluster: 4,
		BytesPerCluster:   2048,
		RootDirSectors:    4,
		SectorsPerFAT:     1,
		SecondFATSector:   2,
		FirstDataSector:   7,
		Clusters:          100,
		FATWidth:          12,
		FATCount:          2,
		Media:             0xF8,
		TotalSectors:      407,
	}

	body := EncodeMediaParameters(p)
	assert.Equal(t, []byte{
		0x02, 0x00, 0x00, 0x04, 0x08, 0x00, 0x00, 0x04,
		0x00, 0x01, 0x00, 0x02, 0x00, 0x07, 0x00, 0x64,
		0x0C, 0x02, 0xF8,
		0x00, 0x00, 0x01, 0x97,
	}, body)

	got, err := DecodeMediaParameters(body)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = DecodeMediaParameters(body[1:])
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "ReadSectors(start=5, count=3)", Request{Op: OpReadSectors, Start: 5, Count: 3}.String())
	assert.Equal(t, "MediaChangeAck", Request{Op: OpMediaChangeAck}.String())
	assert.Equal(t, "Opcode(0x42)", Opcode(0x42).String())
	assert.Equal(t, "ChecksumMismatch", StatusChecksumMismatch.String())
	assert.Equal(t, "lz4", FlagLZ4.String())
}
