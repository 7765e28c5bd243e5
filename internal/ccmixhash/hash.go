// Package ccmixhash implements the two 32-bit filename hash engines used
// by the mix archive format: the Westwood "legacy" hash and a tail-padded
// variant of CRC-32. Both operate on uppercased ASCII filenames.
package ccmixhash

import "encoding/binary"

// Hash32 is like hash.Hash32 but returns a signed sum, matching the
// archive format's on-disk representation and its unsigned bit-pattern
// sort order (see LessUnsigned).
type Hash32 interface {
	Write(p []byte) (n int, err error)
	Sum32() int32
	Reset()
}

// LessUnsigned orders two hash values the way the archive index sorts
// entries: by the bit pattern of the value, read as unsigned.
func LessUnsigned(a, b int32) bool {
	return uint32(a) < uint32(b)
}

// LegacyHash implements Westwood's proprietary "C&C hash": the input is
// absorbed in 4-byte little-endian chunks, each folded into a running
// accumulator by rotating it left one bit and adding the chunk value. A
// trailing partial chunk of 1-3 bytes is zero-padded before the final
// fold. It is not a standard CRC.
type LegacyHash struct {
	acc     int32
	scratch [4]byte
	idx     int
}

// NewLegacy returns a ready-to-use LegacyHash.
func NewLegacy() *LegacyHash {
	return &LegacyHash{}
}

func (h *LegacyHash) Reset() {
	h.acc = 0
	h.idx = 0
	h.scratch = [4]byte{}
}

func (h *LegacyHash) Write(p []byte) (int, error) {
	n := len(p)
	for _, b := range p {
		h.scratch[h.idx] = b
		h.idx++
		if h.idx == 4 {
			h.fold()
		}
	}
	return n, nil
}

func (h *LegacyHash) fold() {
	chunk := int32(binary.LittleEndian.Uint32(h.scratch[:]))
	h.acc = rotl32(h.acc, 1) + chunk
	h.idx = 0
	h.scratch = [4]byte{}
}

// Sum32 finalizes a pending partial chunk (zero-padded) without mutating
// further write state, and returns the resulting hash.
func (h *LegacyHash) Sum32() int32 {
	if h.idx == 0 {
		return h.acc
	}
	var tail [4]byte
	copy(tail[:], h.scratch[:h.idx])
	chunk := int32(binary.LittleEndian.Uint32(tail[:]))
	return rotl32(h.acc, 1) + chunk
}

func rotl32(x int32, n uint) int32 {
	u := uint32(x)
	return int32((u << n) | (u >> (32 - n)))
}

// LegacyHashBytes is a one-shot convenience wrapper around LegacyHash.
func LegacyHashBytes(p []byte) int32 {
	h := NewLegacy()
	h.Write(p)
	return h.Sum32()
}

// LegacyHashName uppercases name and returns its legacy hash.
func LegacyHashName(name string) int32 {
	return LegacyHashBytes([]byte(upperASCII(name)))
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - 'a' + 'A'
		}
	}
	return string(b)
}
