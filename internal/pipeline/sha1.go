package pipeline

import "crypto/sha1"

// Sha1Pipe forwards every byte unchanged to its successor while updating
// an internal SHA-1 state, used to compute the archive body checksum
// transparently. SHA-1 is a primitive operated on directly, not a library
// concern delegated elsewhere, so the standard library is used as-is.
type Sha1Pipe struct {
	next Pipe
	sum  interface {
		Write([]byte) (int, error)
		Sum([]byte) []byte
	}
}

// NewSha1Pipe creates a SHA-1 checksum pipe. Call ChainTo before use.
func NewSha1Pipe() *Sha1Pipe {
	return &Sha1Pipe{sum: sha1.New()}
}

func (p *Sha1Pipe) ChainTo(next Pipe) {
	p.next = next
}

func (p *Sha1Pipe) Put(buf []byte) (int, error) {
	p.sum.Write(buf)
	if p.next == nil {
		return len(buf), nil
	}
	return p.next.Put(buf)
}

func (p *Sha1Pipe) Flush() (int, error) {
	if p.next == nil {
		return 0, nil
	}
	return p.next.Flush()
}

// Digest returns the 20-byte SHA-1 digest of all bytes seen so far.
func (p *Sha1Pipe) Digest() [20]byte {
	var out [20]byte
	copy(out[:], p.sum.Sum(nil))
	return out
}
