package ccmixhash

import "hash/crc32"

// CRC32Hash computes a standard IEEE CRC-32 over the input, but a trailing
// partial chunk (1-3 bytes) is padded to 4 bytes by appending the remainder
// count as a byte, then repeating the chunk's first byte to fill out the
// rest, rather than zero-padding. For input whose length is already a
// multiple of 4 this is identical to a plain CRC-32.
type CRC32Hash struct {
	sum     uint32
	scratch [4]byte
	idx     int
}

// NewCRC32 returns a ready-to-use CRC32Hash.
func NewCRC32() *CRC32Hash {
	return &CRC32Hash{}
}

func (h *CRC32Hash) Reset() {
	h.sum = 0
	h.idx = 0
	h.scratch = [4]byte{}
}

func (h *CRC32Hash) Write(p []byte) (int, error) {
	n := len(p)
	for _, b := range p {
		h.scratch[h.idx] = b
		h.idx++
		if h.idx == 4 {
			h.sum = crc32.Update(h.sum, crc32.IEEETable, h.scratch[:])
			h.idx = 0
			h.scratch = [4]byte{}
		}
	}
	return n, nil
}

// Sum32 finalizes a pending partial chunk without mutating further write
// state, and returns the resulting checksum as a signed 32-bit value
// matching the archive's on-disk representation.
//
// A partial chunk of r bytes (r in 1..3) is completed by appending the
// byte value r, then repeating the chunk's first byte until the chunk is
// 4 bytes long. Grounded on extract_ra2/main.go's mixID tail construction.
func (h *CRC32Hash) Sum32() int32 {
	if h.idx == 0 {
		return int32(h.sum)
	}
	r := h.idx
	var tail [4]byte
	copy(tail[:], h.scratch[:r])
	tail[r] = byte(r)
	for i := r + 1; i < 4; i++ {
		tail[i] = h.scratch[0]
	}
	return int32(crc32.Update(h.sum, crc32.IEEETable, tail[:]))
}

// CRC32HashBytes is a one-shot convenience wrapper around CRC32Hash.
func CRC32HashBytes(p []byte) int32 {
	h := NewCRC32()
	h.Write(p)
	return h.Sum32()
}

// CRC32HashName uppercases name and returns its CRC-32 hash.
func CRC32HashName(name string) int32 {
	return CRC32HashBytes([]byte(upperASCII(name)))
}
