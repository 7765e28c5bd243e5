package mix

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-ccmix/ccmix/internal/ccmixhash"
	"github.com/go-ccmix/ccmix/internal/rsakey"
)

func writeTempFile(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, contents, 0o644))
	return p
}

func TestWriter_PlainRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pA := writeTempFile(t, dir, "A.TXT", bytes.Repeat([]byte("a"), 100))
	pB := writeTempFile(t, dir, "B.TXT", bytes.Repeat([]byte("b"), 250))

	outPath := filepath.Join(dir, "out.mix")
	w := NewWriter(outPath, func() ccmixhash.Hash32 { return ccmixhash.NewLegacy() }, false, false, true, false, nil)
	require.NoError(t, w.AddFile(pA))
	require.NoError(t, w.AddFile(pB))
	require.NoError(t, w.WriteMix(context.Background()))

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	r, err := Open(context.Background(), f, nil)
	require.NoError(t, err)
	require.EqualValues(t, 2, r.FileCount())
	require.Len(t, r.Index(), 2)

	hashA := ccmixhash.LegacyHashName("A.TXT")
	var got bytes.Buffer
	require.NoError(t, r.Extract(context.Background(), hashA, &got))
	require.Equal(t, bytes.Repeat([]byte("a"), 100), got.Bytes())

	hashB := ccmixhash.LegacyHashName("B.TXT")
	got.Reset()
	require.NoError(t, r.Extract(context.Background(), hashB, &got))
	require.Equal(t, bytes.Repeat([]byte("b"), 250), got.Bytes())
}

func TestWriter_ChecksumVerifies(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "ONE.DAT", []byte("some body bytes for checksum"))

	outPath := filepath.Join(dir, "out.mix")
	w := NewWriter(outPath, func() ccmixhash.Hash32 { return ccmixhash.NewCRC32() }, true, false, true, false, nil)
	require.NoError(t, w.AddFile(p))
	require.NoError(t, w.WriteMix(context.Background()))

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	r, err := Open(context.Background(), f, nil)
	require.NoError(t, err)
	require.NoError(t, r.VerifyChecksum())
}

func TestWriter_EncryptedRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "SECRET.BIN", bytes.Repeat([]byte{0xAB}, 500))

	outPath := filepath.Join(dir, "out.mix")
	key := rsakey.Embedded()
	w := NewWriter(outPath, func() ccmixhash.Hash32 { return ccmixhash.NewLegacy() }, true, true, true, false, key)
	require.NoError(t, w.AddFile(p))
	require.NoError(t, w.WriteMix(context.Background()))

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	r, err := Open(context.Background(), f, key)
	require.NoError(t, err)
	require.EqualValues(t, 1, r.FileCount())

	hash := ccmixhash.LegacyHashName("SECRET.BIN")
	var got bytes.Buffer
	require.NoError(t, r.Extract(context.Background(), hash, &got))
	require.Equal(t, bytes.Repeat([]byte{0xAB}, 500), got.Bytes())
	require.NoError(t, r.VerifyChecksum())
}

func TestWriter_HashCollisionSkipsSecondFile(t *testing.T) {
	dir := t.TempDir()
	p1 := writeTempFile(t, dir, "same.txt", []byte("first"))
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.Mkdir(sub, 0o755))
	p2 := writeTempFile(t, sub, "SAME.TXT", []byte("second"))

	outPath := filepath.Join(dir, "out.mix")
	w := NewWriter(outPath, func() ccmixhash.Hash32 { return ccmixhash.NewLegacy() }, false, false, true, false, nil)
	require.NoError(t, w.AddFile(p1))
	require.NoError(t, w.AddFile(p2))
	require.Len(t, w.entries, 1)
}

func TestWriter_RemoveFile(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "X.DAT", []byte("data"))

	w := NewWriter(filepath.Join(dir, "out.mix"), func() ccmixhash.Hash32 { return ccmixhash.NewLegacy() }, false, false, true, false, nil)
	require.NoError(t, w.AddFile(p))
	require.Len(t, w.entries, 1)
	w.RemoveFile("X.DAT")
	require.Len(t, w.entries, 0)
	require.EqualValues(t, 0, w.bodySize)
}

func TestReader_NotFound(t *testing.T) {
	dir := t.TempDir()
	p := writeTempFile(t, dir, "ONLY.DAT", []byte("data"))

	outPath := filepath.Join(dir, "out.mix")
	w := NewWriter(outPath, func() ccmixhash.Hash32 { return ccmixhash.NewLegacy() }, false, false, true, false, nil)
	require.NoError(t, w.AddFile(p))
	require.NoError(t, w.WriteMix(context.Background()))

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	r, err := Open(context.Background(), f, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	err = r.Extract(context.Background(), 0x12345678, &buf)
	require.ErrorIs(t, err, ErrNotFound)
}
