package pipeline

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-ccmix/ccmix/internal/rsakey"
)

func TestFilePipeAndStraw_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	fp := NewFilePipe(&buf)
	n, err := fp.Put([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	fs := NewFileStraw(bytes.NewReader(buf.Bytes()))
	dst := make([]byte, 5)
	n, err = fs.Get(dst)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, "hello", string(dst))
}

func TestSha1Pipe_ForwardsAndDigests(t *testing.T) {
	var out bytes.Buffer
	sha := NewSha1Pipe()
	sha.ChainTo(NewFilePipe(&out))

	_, err := sha.Put([]byte("abc"))
	require.NoError(t, err)
	_, err = sha.Flush()
	require.NoError(t, err)

	require.Equal(t, "abc", out.String())
	digest := sha.Digest()
	require.Equal(t, "a9993e364706816aba3e25717850c26c9cd0d89d", hexDigest(digest))
}

func hexDigest(d [20]byte) string {
	const hex = "0123456789abcdef"
	out := make([]byte, 40)
	for i, b := range d {
		out[i*2] = hex[b>>4]
		out[i*2+1] = hex[b&0xF]
	}
	return string(out)
}

func TestCacheStraw_BuffersSmallReads(t *testing.T) {
	upstream := NewFileStraw(bytes.NewReader([]byte("0123456789ABCDEF")))
	cache := NewCacheStraw(4)
	cache.ChainFrom(upstream)

	var got []byte
	for {
		buf := make([]byte, 3)
		n, err := cache.Get(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	require.Equal(t, "0123456789ABCDEF", string(got))
}

func TestPKPipe_EncryptDecryptRoundTrip(t *testing.T) {
	key := rsakey.Embedded()
	rng := rand.New(rand.NewSource(1))

	var ciphertext bytes.Buffer
	enc := NewPKEncryptPipe(key, rng)
	enc.ChainTo(NewFilePipe(&ciphertext))

	plaintext := []byte("the quick brown fox jumps over the lazy dog, twelve bytes more")
	_, err := enc.Put(plaintext)
	require.NoError(t, err)
	_, err = enc.Flush()
	require.NoError(t, err)

	dec := NewPKDecryptStraw(key)
	dec.ChainFrom(NewFileStraw(bytes.NewReader(ciphertext.Bytes())))

	decrypted := make([]byte, 0, len(plaintext)+blowfishBlkSize)
	for {
		buf := make([]byte, 8)
		n, err := dec.Get(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		decrypted = append(decrypted, buf[:n]...)
	}
	decrypted = decrypted[:len(plaintext)]
	require.Equal(t, plaintext, decrypted)
}

func TestPKPipe_DecryptGetAcceptsUnalignedBufferSizes(t *testing.T) {
	key := rsakey.Embedded()
	rng := rand.New(rand.NewSource(1))

	var ciphertext bytes.Buffer
	enc := NewPKEncryptPipe(key, rng)
	enc.ChainTo(NewFilePipe(&ciphertext))

	plaintext := []byte("six-byte headers and twelve-byte index rows never land on 8-byte boundaries")
	_, err := enc.Put(plaintext)
	require.NoError(t, err)
	_, err = enc.Flush()
	require.NoError(t, err)

	dec := NewPKDecryptStraw(key)
	dec.ChainFrom(NewFileStraw(bytes.NewReader(ciphertext.Bytes())))

	// A 6-byte read (the archive's header size) followed by a 12-byte
	// read (one index entry) exercises exactly the unaligned access
	// pattern Reader.Open performs on an encrypted archive.
	first := make([]byte, 6)
	n, err := dec.Get(first)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	second := make([]byte, 12)
	n, err = dec.Get(second)
	require.NoError(t, err)
	require.Equal(t, 12, n)

	require.Equal(t, plaintext[:18], append(first, second...))
}
