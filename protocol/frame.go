package protocol

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/aligator/serialdisk/checkpoint"
	"github.com/pierrec/lz4/v4"
	log "github.com/sirupsen/logrus"
)

// Magic starts every frame.
var Magic = [4]byte{0x18, 0x03, 0x20, 0x06}

const (
	// headerSize is magic, length and flag.
	headerSize = len(Magic) + 4 + 1

	// MaxPayload is the largest payload a frame may carry. Longer lengths are treated as a
	// framing error.
	MaxPayload = 1<<20 + 64

	// CompressionOverhead is the raw size prefix of a compressed payload.
	CompressionOverhead = 4

	// DefaultCompressionThreshold is the smallest payload worth compressing.
	DefaultCompressionThreshold = 512
)

var (
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	ErrMalformedPayload = errors.New("malformed frame payload")
	ErrPayloadTooLarge  = errors.New("frame payload too large")
)

// Flag tells how the payload of a frame is encoded.
type Flag uint8

const (
	FlagRaw Flag = 0
	// FlagLZ4 means the payload is a big endian uint32 raw size followed by an LZ4 block.
	FlagLZ4 Flag = 1
)

func (f Flag) valid() bool {
	return f == FlagRaw || f == FlagLZ4
}

func (f Flag) String() string {
	switch f {
	case FlagRaw:
		return "raw"
	case FlagLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("flag(%d)", uint8(f))
	}
}

// Decide returns the bytes to transmit for raw and the matching flag.
//
// The payload is compressed only if raw has at least threshold bytes and the compressed
// form, including its size prefix, is smaller than raw. A threshold of 0 or less disables
// compression.
func Decide(raw []byte, threshold int) ([]byte, Flag) {
	if threshold <= 0 || len(raw) < threshold {
		return raw, FlagRaw
	}

	block := make([]byte, CompressionOverhead+lz4.CompressBlockBound(len(raw)))
	written, err := lz4.CompressBlock(raw, block[CompressionOverhead:], nil)
	// 0 means incompressible.
	if err != nil || written == 0 || written+CompressionOverhead >= len(raw) {
		return raw, FlagRaw
	}

	binary.BigEndian.PutUint32(block, uint32(len(raw)))
	return block[:CompressionOverhead+written], FlagLZ4
}

// decompress turns a transmitted payload back into the raw message.
func decompress(payload []byte, flag Flag) ([]byte, error) {
	if flag == FlagRaw {
		return payload, nil
	}

	if len(payload) < CompressionOverhead {
		return nil, checkpoint.Wrapf(ErrMalformedPayload, "compressed payload of %d bytes", len(payload))
	}
	size := binary.BigEndian.Uint32(payload)
	if size > MaxPayload {
		return nil, checkpoint.Wrapf(ErrMalformedPayload, "raw size %d", size)
	}

	raw := make([]byte, size)
	read, err := lz4.UncompressBlock(payload[CompressionOverhead:], raw)
	if err != nil {
		return nil, checkpoint.Wrapf(ErrMalformedPayload, "lz4: %v", err)
	}
	if read != int(size) {
		return nil, checkpoint.Wrapf(ErrMalformedPayload, "lz4: got %d bytes, want %d", read, size)
	}
	return raw, nil
}

// AppendFrame appends a complete frame carrying the already encoded payload to dst.
func AppendFrame(dst []byte, payload []byte, flag Flag) []byte {
	start := len(dst)
	dst = append(dst, Magic[:]...)
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	dst = append(dst, byte(flag))
	dst = append(dst, payload...)

	// Everything after the magic is covered.
	sum := Checksum(dst[start+len(Magic):])
	return binary.BigEndian.AppendUint32(dst, sum)
}

// Encoder writes messages as frames.
type Encoder struct {
	w         io.Writer
	threshold int
}

// NewEncoder creates an Encoder which compresses messages of at least threshold bytes
// when that makes them smaller.
func NewEncoder(w io.Writer, threshold int) *Encoder {
	return &Encoder{w: w, threshold: threshold}
}

// Encode writes a single message.
func (e *Encoder) Encode(raw []byte) error {
	if len(raw) > MaxPayload {
		return checkpoint.Wrapf(ErrPayloadTooLarge, "%d bytes", len(raw))
	}

	payload, flag := Decide(raw, e.threshold)
	frame := AppendFrame(make([]byte, 0, headerSize+len(payload)+ChecksumSize), payload, flag)

	log.WithFields(log.Fields{"raw": len(raw), "sent": len(payload), "flag": flag}).Trace("Sending frame")
	_, err := e.w.Write(frame)
	return checkpoint.From(err)
}

// Decoder reads frames and returns their messages.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder creates a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReaderSize(r, 64*1024)}
}

// Decode returns the next message.
//
// Bytes before a magic and frames with an implausible header are skipped. A frame whose
// checksum does not match returns ErrChecksumMismatch and its payload is dropped; the next
// call continues with the following bytes. Errors of the underlying reader are returned
// unchanged, so io.EOF ends a session.
func (d *Decoder) Decode() ([]byte, error) {
	length, flag, err := d.sync()
	if err != nil {
		return nil, err
	}

	body := make([]byte, 5+int(length)+ChecksumSize)
	binary.BigEndian.PutUint32(body, length)
	body[4] = byte(flag)
	if _, err := io.ReadFull(d.r, body[5:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	covered := body[:len(body)-ChecksumSize]
	want := binary.BigEndian.Uint32(body[len(covered):])
	if got := Checksum(covered); got != want {
		return nil, checkpoint.Wrapf(ErrChecksumMismatch, "got %#08x, frame carries %#08x", got, want)
	}

	return decompress(covered[5:], flag)
}

// sync skips bytes until a plausible frame header and consumes it.
func (d *Decoder) sync() (uint32, Flag, error) {
	skipped := 0
	defer func() {
		if skipped > 0 {
			log.WithField("bytes", skipped).Warn("Lost frame sync, skipped bytes")
		}
	}()

	for {
		header, err := d.r.Peek(headerSize)
		if err != nil {
			if len(header) > 0 && err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, 0, err
		}

		if !bytes.Equal(header[:len(Magic)], Magic[:]) {
			if _, err := d.r.Discard(1); err != nil {
				return 0, 0, err
			}
			skipped++
			continue
		}

		length := binary.BigEndian.Uint32(header[len(Magic):])
		flag := Flag(header[len(Magic)+4])
		if length > MaxPayload || !flag.valid() {
			// Not a real frame start, the magic was part of something else.
			if _, err := d.r.Discard(1); err != nil {
				return 0, 0, err
			}
			skipped++
			continue
		}

		if _, err := d.r.Discard(headerSize); err != nil {
			return 0, 0, err
		}
		return length, flag, nil
	}
}
