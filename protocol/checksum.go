package protocol

import "hash"

// posixPolynomial is the CRC-32 polynomial in normal (MSB first) representation.
const posixPolynomial = 0x04C11DB7

// ChecksumSize is the encoded size of a frame checksum.
const ChecksumSize = 4

var posixTable = makePosixTable()

func makePosixTable() *[256]uint32 {
	var t [256]uint32
	for i := range t {
		crc := uint32(i) << 24
		for bit := 0; bit < 8; bit++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ posixPolynomial
			} else {
				crc <<= 1
			}
		}
		t[i] = crc
	}
	return &t
}

// checksum computes CRC-32/POSIX: initial value 0, not reflected, inverted result and, unlike
// the cksum tool, without the length appended.
type checksum struct {
	crc uint32
}

// NewChecksum returns a hash.Hash32 computing the frame checksum.
func NewChecksum() hash.Hash32 {
	return &checksum{}
}

func (c *checksum) Write(p []byte) (int, error) {
	crc := c.crc
	for _, b := range p {
		crc = crc<<8 ^ posixTable[byte(crc>>24)^b]
	}
	c.crc = crc
	return len(p), nil
}

func (c *checksum) Sum32() uint32 {
	return ^c.crc
}

func (c *checksum) Sum(b []byte) []byte {
	s := c.Sum32()
	return append(b, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}

func (c *checksum) Reset() {
	c.crc = 0
}

func (c *checksum) Size() int {
	return ChecksumSize
}

func (c *checksum) BlockSize() int {
	return 1
}

// Checksum returns the CRC-32/POSIX of data.
func Checksum(data []byte) uint32 {
	c := checksum{}
	_, _ = c.Write(data)
	return c.Sum32()
}
