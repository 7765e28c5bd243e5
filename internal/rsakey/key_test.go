package rsakey

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbedded_RoundTrip(t *testing.T) {
	k := Embedded()

	plaintext := make([]byte, BlockSize)
	plaintext[0] = 0x38
	for i := 1; i < 57; i++ {
		plaintext[i] = byte(i * 7)
	}

	ct, err := k.Encrypt(plaintext)
	require.NoError(t, err)
	require.Len(t, ct, BlockSize)

	pt, err := k.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestDecrypt_WrongSize(t *testing.T) {
	k := Embedded()
	_, err := k.Decrypt(make([]byte, BlockSize-1))
	require.Error(t, err)
}
