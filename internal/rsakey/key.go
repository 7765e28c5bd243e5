// Package rsakey holds the embedded RSA key material used to wrap the
// Blowfish session key in an encrypted mix header, and the raw modular
// exponentiation primitives that operate on it.
//
// Westwood's key format has no certificate, no padding scheme beyond a
// single length byte, and a fixed 80-byte block size; none of that is
// compatible with crypto/rsa, so encryption and decryption are done
// directly against math/big.
package rsakey

import (
	"fmt"
	"math/big"
)

// BlockSize is the size in bytes of one RSA block under this key, derived
// from the modulus: ceil(bitlen(N)/8).
const BlockSize = 80

// hex-encoded big-endian key material. Generated offline as a genuine
// two-prime RSA keypair (320-bit primes, e=65537) and verified by a
// roundtrip encrypt/decrypt before being hardcoded here; this package
// never derives or regenerates it.
const (
	nHex = "6665d285b178e42f8baef9d3aec2d5a0c31bd710b2ed6601849b2df188d8092c6f416af49eec8aeb6f9338e9021ab242293cedcee198ef2f1699ab620dd9bc864a5869a11f4adb09adfac2ace33b55fb"
	eHex = "010001"
	dHex = "2b30633d147fc2eef2e19869da5a3f3491569abd665a8f1db0caaaf4271dc7b0c0343d6273ed9d21e987d4e46b3f5695b30c05286f972285c9ae9c9e0a8ccbdcd2d43fecbba762c6a2e6a4d605a81111"
)

var (
	modulus = mustBig(nHex)
	pubExp  = mustBig(eHex)
	privExp = mustBig(dHex)
)

func mustBig(h string) *big.Int {
	n, ok := new(big.Int).SetString(h, 16)
	if !ok {
		panic("rsakey: bad hex constant")
	}
	return n
}

// Key is a single RSA keypair (public and private halves share a modulus).
type Key struct {
	n, e, d *big.Int
}

// Embedded returns the key compiled into this binary.
func Embedded() *Key {
	return &Key{n: modulus, e: pubExp, d: privExp}
}

// Encrypt performs raw public-key modular exponentiation: ciphertext =
// plaintext^e mod n. plaintext is read as a big-endian integer, which must
// be less than the modulus (so at most BlockSize bytes, with a leading
// byte below the modulus's); the result is left-padded to BlockSize bytes.
func (k *Key) Encrypt(plaintext []byte) ([]byte, error) {
	return k.exp(plaintext, k.e)
}

// Decrypt performs raw private-key modular exponentiation: plaintext =
// ciphertext^d mod n. ciphertext must be exactly BlockSize bytes.
func (k *Key) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != BlockSize {
		return nil, fmt.Errorf("rsakey: ciphertext must be %d bytes, got %d", BlockSize, len(ciphertext))
	}
	return k.exp(ciphertext, k.d)
}

func (k *Key) exp(in []byte, exponent *big.Int) ([]byte, error) {
	x := new(big.Int).SetBytes(in)
	if x.Cmp(k.n) >= 0 {
		return nil, fmt.Errorf("rsakey: block value exceeds modulus")
	}
	y := new(big.Int).Exp(x, exponent, k.n)
	out := make([]byte, BlockSize)
	y.FillBytes(out)
	return out, nil
}
