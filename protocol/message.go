package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/aligator/serialdisk"
	"github.com/aligator/serialdisk/checkpoint"
)

// ErrUnknownOpcode is returned for requests with an opcode this side does not implement.
var ErrUnknownOpcode = errors.New("unknown opcode")

// Opcode identifies a command. Replies echo the opcode of their request.
type Opcode uint8

const (
	// OpReadSectors body: start u32, count u16. Reply body: count sectors.
	OpReadSectors Opcode = 0x00
	// OpWriteSectors body: start u32, count u16, count sectors. Reply body: empty.
	OpWriteSectors Opcode = 0x01
	// OpGetMediaParameters has no body. Reply body: the media parameter block.
	OpGetMediaParameters Opcode = 0x02
	// OpMediaChangeAck has no body. Reply body: 1 if the media changed since the last
	// acknowledgement, 0 otherwise.
	OpMediaChangeAck Opcode = 0x03
	// OpInvalid is used in replies to frames which could not be decoded at all.
	OpInvalid Opcode = 0xFF
)

func (o Opcode) String() string {
	switch o {
	case OpReadSectors:
		return "ReadSectors"
	case OpWriteSectors:
		return "WriteSectors"
	case OpGetMediaParameters:
		return "GetMediaParameters"
	case OpMediaChangeAck:
		return "MediaChangeAck"
	case OpInvalid:
		return "Invalid"
	default:
		return fmt.Sprintf("Opcode(%#02x)", uint8(o))
	}
}

// Status is the result code of a reply.
type Status uint8

const (
	StatusOk                Status = 0
	StatusAddressOutOfRange Status = 1
	StatusOutOfSpace        Status = 2
	StatusChecksumMismatch  Status = 3
	StatusVolumeTooLarge    Status = 4
	StatusUnsupported       Status = 5
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusAddressOutOfRange:
		return "AddressOutOfRange"
	case StatusOutOfSpace:
		return "OutOfSpace"
	case StatusChecksumMismatch:
		return "ChecksumMismatch"
	case StatusVolumeTooLarge:
		return "VolumeTooLarge"
	case StatusUnsupported:
		return "Unsupported"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// sectorRangeSize is the size of start and count.
const sectorRangeSize = 6

// Request is a decoded command.
type Request struct {
	Op    Opcode
	Start uint32
	Count uint16
	// Data holds the sectors of OpWriteSectors.
	Data []byte
}

func (r Request) String() string {
	switch r.Op {
	case OpReadSectors, OpWriteSectors:
		return fmt.Sprintf("%v(start=%d, count=%d)", r.Op, r.Start, r.Count)
	default:
		return r.Op.String()
	}
}

// ParseRequest decodes a request message. The sector data of a write is not checked against
// the sector size here, the volume does that.
func ParseRequest(msg []byte) (Request, error) {
	if len(msg) == 0 {
		return Request{}, checkpoint.Wrapf(ErrMalformedPayload, "empty request")
	}

	r := Request{Op: Opcode(msg[0])}
	body := msg[1:]

	switch r.Op {
	case OpReadSectors, OpWriteSectors:
		if len(body) < sectorRangeSize {
			return Request{}, checkpoint.Wrapf(ErrMalformedPayload, "%v body has %d bytes", r.Op, len(body))
		}
		r.Start = binary.BigEndian.Uint32(body)
		r.Count = binary.BigEndian.Uint16(body[4:])
		body = body[sectorRangeSize:]

		if r.Op == OpWriteSectors {
			r.Data = body
			body = nil
		}
	case OpGetMediaParameters, OpMediaChangeAck:
	default:
		return r, checkpoint.Wrapf(ErrUnknownOpcode, "%v", r.Op)
	}

	if len(body) != 0 {
		return Request{}, checkpoint.Wrapf(ErrMalformedPayload, "%d trailing bytes after %v", len(body), r.Op)
	}
	return r, nil
}

// Marshal encodes the request message.
func (r Request) Marshal() []byte {
	msg := []byte{byte(r.Op)}
	if r.Op == OpReadSectors || r.Op == OpWriteSectors {
		msg = binary.BigEndian.AppendUint32(msg, r.Start)
		msg = binary.BigEndian.AppendUint16(msg, r.Count)
	}
	return append(msg, r.Data...)
}

// Reply is the answer to a request.
type Reply struct {
	Op     Opcode
	Status Status
	Body   []byte
}

// Marshal encodes the reply message.
func (r Reply) Marshal() []byte {
	msg := make([]byte, 0, 2+len(r.Body))
	msg = append(msg, byte(r.Op), byte(r.Status))
	return append(msg, r.Body...)
}

// ParseReply decodes a reply message.
func ParseReply(msg []byte) (Reply, error) {
	if len(msg) < 2 {
		return Reply{}, checkpoint.Wrapf(ErrMalformedPayload, "reply has %d bytes", len(msg))
	}
	return Reply{Op: Opcode(msg[0]), Status: Status(msg[1]), Body: msg[2:]}, nil
}

// MediaParametersSize is the encoded size of the media parameter block.
const MediaParametersSize = 8*2 + 3 + 4

// EncodeMediaParameters encodes the media parameter block in big endian order.
func EncodeMediaParameters(p serialdisk.MediaParameters) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, MediaParametersSize))
	// Writing a struct of fixed size fields into a buffer cannot fail.
	_ = binary.Write(buf, binary.BigEndian, p)
	return buf.Bytes()
}

// DecodeMediaParameters decodes a media parameter block.
func DecodeMediaParameters(body []byte) (serialdisk.MediaParameters, error) {
	if len(body) != MediaParametersSize {
		return serialdisk.MediaParameters{}, checkpoint.Wrapf(ErrMalformedPayload, "media parameters have %d bytes", len(body))
	}

	p := serialdisk.MediaParameters{}
	err := binary.Read(bytes.NewReader(body), binary.BigEndian, &p)
	return p, checkpoint.From(err)
}
