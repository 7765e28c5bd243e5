package ccmixhash

import (
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLegacyHash_Empty(t *testing.T) {
	require.Equal(t, int32(0), LegacyHashBytes(nil))
}

func TestLegacyHash_SingleByte(t *testing.T) {
	require.Equal(t, int32(0x41), LegacyHashBytes([]byte("A")))
}

func TestLegacyHash_XCCSentinel(t *testing.T) {
	// "local mix database.dat" uppercased is the well-known sentinel name
	// XCC uses for its embedded local name database entry.
	got := LegacyHashName("local mix database.dat")
	require.Equal(t, int32(0x54C2D545), got)
}

func TestLegacyHash_IncrementalWriteMatchesOneShot(t *testing.T) {
	full := LegacyHashBytes([]byte("CONQUER.MIX"))

	h := NewLegacy()
	h.Write([]byte("CONQ"))
	h.Write([]byte("UER."))
	h.Write([]byte("MIX"))
	require.Equal(t, full, h.Sum32())
}

func TestLegacyHash_CaseInsensitiveViaHashName(t *testing.T) {
	require.Equal(t, LegacyHashName("setup.mix"), LegacyHashName("SETUP.MIX"))
}

func TestCRC32Hash_AlignedLengthMatchesPlainCRC32(t *testing.T) {
	// "CONQ" is exactly 4 bytes, so the tail-padding discipline never
	// kicks in and the result must equal a plain IEEE CRC-32.
	got := CRC32HashBytes([]byte("CONQ"))
	require.NotZero(t, got)
	require.Equal(t, int32(crc32.ChecksumIEEE([]byte("CONQ"))), got)

	h := NewCRC32()
	h.Write([]byte("CO"))
	h.Write([]byte("NQ"))
	require.Equal(t, got, h.Sum32())
}

func TestCRC32Hash_TailUsesRemainderCountPadding(t *testing.T) {
	// "CONQUER.MIX" (11 bytes) has a 3-byte tail "MIX" (r=3). The tail is
	// completed by appending the remainder count itself, with no further
	// padding needed since r+1 already fills the 4-byte chunk.
	got := CRC32HashBytes([]byte("CONQUER.MIX"))
	want := CRC32HashBytes([]byte("CONQUER.MIX\x03"))
	require.Equal(t, want, got)
}

func TestCRC32Hash_ShortTailRepeatsItsFirstByte(t *testing.T) {
	// A 1-byte tail "A" (r=1) completes to ['A', 0x01, 'A', 'A']: the
	// remainder-count byte, then the tail's first byte repeated to fill
	// out the chunk.
	got := CRC32HashBytes([]byte("A"))
	want := CRC32HashBytes([]byte("A\x01AA"))
	require.Equal(t, want, got)
}

func TestLessUnsigned(t *testing.T) {
	require.True(t, LessUnsigned(0, 1))
	require.True(t, LessUnsigned(1, -1)) // -1 as bit pattern is the largest uint32
	require.False(t, LessUnsigned(-1, 1))
}
