package pipeline

import (
	"crypto/cipher"
	"fmt"
	"io"

	"golang.org/x/crypto/blowfish"

	"github.com/go-ccmix/ccmix/internal/rsakey"
)

const (
	sessionKeySize  = 56
	blowfishBlkSize = 8
	keyLenPrefix    = sessionKeySize // the single length-prefix byte written ahead of the key
)

// PKPipe is the public-key pipe: on first use it wraps (encrypt mode) or
// unwraps (decrypt mode) a 56-byte Blowfish session key inside one
// rsakey.BlockSize RSA block, then streams all subsequent bytes through
// Blowfish in 8-byte ECB blocks, buffering a partial trailing block and
// emitting it zero-padded on Flush.
//
// Grounded on extract_ra2/main.go's decryptKeySource/decryptECB, adapted
// from its two-block RA2 key-source format to the single-block session
// key wrap this archive format uses, and generalized to also support
// encryption (the teacher file only ever decrypts).
type PKPipe struct {
	key       *rsakey.Key
	next      Pipe
	prev      Straw
	cipher    cipher.Block
	keyDone   bool
	clearBuf  [blowfishBlkSize]byte
	clearLen  int
	rng       io.Reader
	sessionKy []byte

	// Decrypt-side read buffer: Get must pull 8-byte-aligned chunks from
	// prev regardless of how the caller sized dst, so decrypted plaintext
	// is staged here and served out in whatever pieces the caller asks
	// for.
	plainBuf []byte
	plainPos int
	plainLen int
}

// pkReadChunk is the size of the aligned chunk PKPipe.Get pulls from its
// upstream straw on each refill.
const pkReadChunk = 4096

// NewPKEncryptPipe returns a PKPipe in encrypt mode. rng supplies the
// random bytes used to generate the Blowfish session key.
func NewPKEncryptPipe(key *rsakey.Key, rng io.Reader) *PKPipe {
	return &PKPipe{key: key, rng: rng}
}

// NewPKDecryptStraw returns a PKPipe configured to run in decrypt mode
// when used as the transform behind ChainFrom/Get.
func NewPKDecryptStraw(key *rsakey.Key) *PKPipe {
	return &PKPipe{key: key}
}

func (p *PKPipe) ChainTo(next Pipe) {
	p.next = next
}

func (p *PKPipe) ChainFrom(prev Straw) {
	p.prev = prev
}

// Put encrypts buf and forwards it to the chained pipe. On the first call
// it generates a session key, wraps it in an RSA block, and writes that
// block to the successor ahead of any ciphertext.
func (p *PKPipe) Put(buf []byte) (int, error) {
	if !p.keyDone {
		if err := p.initEncrypt(); err != nil {
			return 0, err
		}
	}
	accepted := len(buf)
	data := append(p.clearBuf[:p.clearLen], buf...)
	nBlocks := len(data) / blowfishBlkSize
	whole := data[:nBlocks*blowfishBlkSize]
	tail := data[nBlocks*blowfishBlkSize:]

	if len(whole) > 0 {
		enc := make([]byte, len(whole))
		copy(enc, whole)
		encryptECB(p.cipher, enc)
		if p.next != nil {
			if _, err := p.next.Put(enc); err != nil {
				return 0, err
			}
		}
	}
	p.clearLen = copy(p.clearBuf[:], tail)
	return accepted, nil
}

// Flush zero-pads and emits any buffered partial block, then flushes the
// chained pipe.
func (p *PKPipe) Flush() (int, error) {
	if p.clearLen > 0 {
		block := make([]byte, blowfishBlkSize)
		copy(block, p.clearBuf[:p.clearLen])
		encryptECB(p.cipher, block)
		p.clearLen = 0
		if p.next != nil {
			if _, err := p.next.Put(block); err != nil {
				return 0, err
			}
		}
	}
	if p.next == nil {
		return 0, nil
	}
	return p.next.Flush()
}

// Get reads and decrypts bytes from the chained straw. On the first call
// it reads and unwraps the RSA-wrapped session key block. dst may be any
// size; Get refills its internal buffer from prev in pkReadChunk-sized,
// cipher-block-aligned pulls as needed.
func (p *PKPipe) Get(dst []byte) (int, error) {
	if !p.keyDone {
		if err := p.initDecrypt(); err != nil {
			return 0, err
		}
	}
	total := 0
	for len(dst) > 0 {
		if p.plainLen > 0 {
			n := copy(dst, p.plainBuf[p.plainPos:p.plainPos+p.plainLen])
			p.plainPos += n
			p.plainLen -= n
			total += n
			dst = dst[n:]
		}
		if len(dst) == 0 {
			break
		}
		n, err := p.prev.Get(p.plainBuf[:cap(p.plainBuf)])
		whole := (n / blowfishBlkSize) * blowfishBlkSize
		if whole > 0 {
			decryptECB(p.cipher, p.plainBuf[:whole])
		}
		p.plainPos = 0
		p.plainLen = whole
		if n == 0 {
			return total, err
		}
	}
	return total, nil
}

func (p *PKPipe) initEncrypt() error {
	p.sessionKy = make([]byte, sessionKeySize)
	if _, err := io.ReadFull(p.rng, p.sessionKy); err != nil {
		return fmt.Errorf("pkpipe: generate session key: %w", err)
	}
	block := make([]byte, rsakey.BlockSize)
	block[0] = keyLenPrefix
	copy(block[1:1+sessionKeySize], p.sessionKy)
	ct, err := p.key.Encrypt(block)
	if err != nil {
		return fmt.Errorf("pkpipe: wrap session key: %w", err)
	}
	c, err := blowfish.NewCipher(p.sessionKy)
	if err != nil {
		return fmt.Errorf("pkpipe: blowfish init: %w", err)
	}
	p.cipher = c
	p.keyDone = true
	if p.next != nil {
		if _, err := p.next.Put(ct); err != nil {
			return err
		}
	}
	return nil
}

func (p *PKPipe) initDecrypt() error {
	block := make([]byte, rsakey.BlockSize)
	if _, err := io.ReadFull(&strawReader{s: p.prev}, block); err != nil {
		return fmt.Errorf("pkpipe: read key block: %w", err)
	}
	pt, err := p.key.Decrypt(block)
	if err != nil {
		return fmt.Errorf("pkpipe: unwrap session key: %w", err)
	}
	if pt[0] != keyLenPrefix {
		return fmt.Errorf("pkpipe: unexpected session key length prefix %d", pt[0])
	}
	p.sessionKy = append([]byte(nil), pt[1:1+sessionKeySize]...)
	c, err := blowfish.NewCipher(p.sessionKy)
	if err != nil {
		return fmt.Errorf("pkpipe: blowfish init: %w", err)
	}
	p.cipher = c
	p.keyDone = true
	p.plainBuf = make([]byte, pkReadChunk)
	return nil
}

func encryptECB(c cipher.Block, data []byte) {
	bs := c.BlockSize()
	for i := 0; i+bs <= len(data); i += bs {
		c.Encrypt(data[i:i+bs], data[i:i+bs])
	}
}

func decryptECB(c cipher.Block, data []byte) {
	bs := c.BlockSize()
	for i := 0; i+bs <= len(data); i += bs {
		c.Decrypt(data[i:i+bs], data[i:i+bs])
	}
}

// strawReader adapts a Straw to io.Reader for io.ReadFull.
type strawReader struct {
	s Straw
}

func (r *strawReader) Read(p []byte) (int, error) {
	n, err := r.s.Get(p)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}
