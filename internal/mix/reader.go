package mix

import (
	"context"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jellydator/ttlcache/v3"
	"k8s.io/klog/v2"

	"github.com/go-ccmix/ccmix/internal/pipeline"
	"github.com/go-ccmix/ccmix/internal/rsakey"
	"github.com/go-ccmix/ccmix/metrics"
	"github.com/go-ccmix/ccmix/telemetry"
)

// Reader parses an already-open mix archive and exposes read-only,
// random-access views over its index and member bodies.
type Reader struct {
	ra         io.ReaderAt
	bodyStart  int64
	fileCount  uint16
	bodySize   uint32
	index      []IndexEntry
	checksum   *[20]byte
	mounts     map[int32]*Reader
	nestedTTL  *ttlcache.Cache[uint64, *Reader]
	identityID uint64
}

// Open reads and validates a mix archive's header, index, and (when
// encrypted) its RSA-wrapped session key. ra must support random access
// to the full archive body for later Extract calls.
func Open(ctx context.Context, ra io.ReaderAt, rsaKey *rsakey.Key) (*Reader, error) {
	_, span := telemetry.TraceFileOperation(ctx, "open", "")
	defer span.End()

	// A leading 4-byte flag word has its flag bits in the high half (see
	// format.go), so its first two bytes, read alone, are always zero;
	// that is indistinguishable from a flag word that happens to be
	// all-zero, but such a word carries no checksum/encryption bit and
	// behaves identically to "no flag word" either way. A nonzero first
	// two bytes is the literal file_count of an unflagged (legacy
	// TD-style) header, so there is no flag word to read.
	var first4 [flagWordSize]byte
	if _, err := ra.ReadAt(first4[:], 0); err != nil {
		return nil, fmt.Errorf("%w: read leading bytes: %v", ErrCorruptArchive, err)
	}

	hasFlagWord := first4[0] == 0 && first4[1] == 0
	var flags uint32
	var headerOff int64
	if hasFlagWord {
		flags = binary.LittleEndian.Uint32(first4[:])
		headerOff = flagWordSize
	}

	cache := pipeline.NewCacheStraw(cacheStrawSize)
	cache.ChainFrom(&readerAtStraw{ra: ra, pos: headerOff})
	var straw pipeline.Straw = cache

	isEncrypted := flags&flagIsEncrypted != 0
	hasChecksum := flags&flagHasChecksum != 0

	if isEncrypted {
		if rsaKey == nil {
			return nil, fmt.Errorf("%w: archive is encrypted but no RSA key was provided", ErrDecryptionFailed)
		}
		pk := pipeline.NewPKDecryptStraw(rsaKey)
		pk.ChainFrom(straw)
		straw = pk
	}

	var hdr [headerSize]byte
	if err := readFullStraw(straw, hdr[:]); err != nil {
		if isEncrypted {
			// The first read through the PK straw also reads and unwraps
			// the RSA-wrapped session key.
			return nil, fmt.Errorf("%w: read header: %v", ErrDecryptionFailed, err)
		}
		return nil, fmt.Errorf("%w: read header: %v", ErrCorruptArchive, err)
	}
	fileCount := binary.LittleEndian.Uint16(hdr[0:2])
	bodySize := binary.LittleEndian.Uint32(hdr[2:6])
	if fileCount > maxFileCount {
		return nil, fmt.Errorf("%w: file_count %d exceeds max", ErrCorruptArchive, fileCount)
	}

	index := make([]IndexEntry, fileCount)
	idxBuf := make([]byte, int(fileCount)*indexEntrySize)
	if err := readFullStraw(straw, idxBuf); err != nil {
		return nil, fmt.Errorf("%w: read index: %v", ErrCorruptArchive, err)
	}
	var sumSizes uint64
	for i := range index {
		off := i * indexEntrySize
		index[i].Hash = int32(binary.LittleEndian.Uint32(idxBuf[off : off+4]))
		index[i].Offset = binary.LittleEndian.Uint32(idxBuf[off+4 : off+8])
		index[i].Size = binary.LittleEndian.Uint32(idxBuf[off+8 : off+12])
		sumSizes += uint64(index[i].Size)
	}
	if uint64(bodySize) != sumSizes {
		klog.Warningf("mix: body_size header (%d) does not match sum of entry sizes (%d)", bodySize, sumSizes)
	}
	if !sort.SliceIsSorted(index, func(i, j int) bool {
		return lessUnsignedEntry(index[i], index[j])
	}) {
		klog.Warning("mix: index not hash-sorted on disk, re-sorting in memory")
		sort.Slice(index, func(i, j int) bool { return lessUnsignedEntry(index[i], index[j]) })
	}

	// The body always starts immediately after the cleartext header+index
	// an unencrypted archive carries on disk, or after the RSA key block
	// plus the Blowfish-ECB-padded ciphertext an encrypted one carries;
	// either way this is computed from fileCount, not from any straw's
	// internal read position (several straws in the chain may read ahead
	// of what the caller has logically consumed).
	bodyStart := headerOff
	consumedClear := headerSize + int(fileCount)*indexEntrySize
	if isEncrypted {
		blocks := (consumedClear + blowfishBlockSize - 1) / blowfishBlockSize
		bodyStart += int64(rsakey.BlockSize) + int64(blocks*blowfishBlockSize)
	} else {
		bodyStart += int64(consumedClear)
	}

	r := &Reader{
		ra:        ra,
		bodyStart: bodyStart,
		fileCount: fileCount,
		bodySize:  bodySize,
		index:     index,
		mounts:    make(map[int32]*Reader),
		nestedTTL: ttlcache.New[uint64, *Reader](ttlcache.WithTTL[uint64, *Reader](10 * time.Minute)),
	}

	if hasChecksum {
		var tail [checksumTailLen]byte
		if err := readTailAt(ra, bodyStart+int64(bodySize), tail[:]); err != nil {
			return nil, fmt.Errorf("%w: read checksum tail: %v", ErrCorruptArchive, err)
		}
		r.checksum = &tail
	}
	r.identityID = xxhash.Sum64(idxBuf)

	return r, nil
}

const blowfishBlockSize = 8

// FileCount returns the number of members in the archive.
func (r *Reader) FileCount() uint16 { return r.fileCount }

// Index returns the archive's hash-sorted index.
func (r *Reader) Index() []IndexEntry { return r.index }

// Mount attaches child as a nested archive reachable through the member
// identified by hash, so Offset/Extract recurse into it.
func (r *Reader) Mount(hash int32, child *Reader) {
	r.mounts[hash] = child
}

// OpenNested treats the member at hash as a nested mix archive: it opens
// a Reader over that member's byte range and Mounts it, unless an
// equivalent nested Reader is already cached for (this archive, hash),
// in which case the cached Reader is reused and re-Mounted.
func (r *Reader) OpenNested(ctx context.Context, hash int32) (*Reader, error) {
	owner, off, size, ok := r.Offset(hash)
	if !ok {
		return nil, fmt.Errorf("%w: hash %#x", ErrNotFound, uint32(hash))
	}

	key := nestedCacheKey(owner.identityID, hash)
	if item := r.nestedTTL.Get(key); item != nil {
		child := item.Value()
		r.mounts[hash] = child
		return child, nil
	}

	section := io.NewSectionReader(owner.ra, off, int64(size))
	child, err := Open(ctx, section, nil)
	if err != nil {
		return nil, fmt.Errorf("mix: open nested archive at hash %#x: %w", uint32(hash), err)
	}
	r.nestedTTL.Set(key, child, ttlcache.DefaultTTL)
	r.mounts[hash] = child
	return child, nil
}

// Offset binary-searches the index by hash and returns the reader owning
// the member (itself, or a mounted descendant) along with the absolute
// file offset and size of the member's bytes.
func (r *Reader) Offset(hash int32) (owner *Reader, absOffset int64, size uint32, ok bool) {
	i := sort.Search(len(r.index), func(i int) bool {
		return !uint32LessThan(r.index[i].Hash, hash)
	})
	if i < len(r.index) && r.index[i].Hash == hash {
		e := r.index[i]
		return r, r.bodyStart + int64(e.Offset), e.Size, true
	}
	for mountHash, child := range r.mounts {
		if owner, absOffset, size, ok := child.Offset(hash); ok {
			_ = mountHash
			return owner, absOffset, size, true
		}
	}
	return nil, 0, 0, false
}

func uint32LessThan(a, b int32) bool {
	return uint32(a) < uint32(b)
}

// Extract copies the member identified by hash to w.
func (r *Reader) Extract(ctx context.Context, hash int32, w io.Writer) error {
	_, span := telemetry.TraceFileOperation(ctx, "extract", "")
	defer span.End()

	start := time.Now()
	owner, off, size, ok := r.Offset(hash)
	metrics.HashLookupHistogram.WithLabelValues("index").Observe(time.Since(start).Seconds())
	if !ok {
		metrics.ExtractErrors.WithLabelValues("", "not_found").Inc()
		return fmt.Errorf("%w: hash %#x", ErrNotFound, uint32(hash))
	}

	buf := make([]byte, chunkSize)
	remaining := int64(size)
	pos := off
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := owner.ra.ReadAt(buf[:n], pos)
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return fmt.Errorf("%w: write extracted bytes: %v", ErrIO, werr)
			}
			pos += int64(read)
			remaining -= int64(read)
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("%w: read member bytes: %v", ErrIO, err)
		}
		if read == 0 {
			break
		}
	}
	metrics.FilesExtracted.WithLabelValues("").Inc()
	metrics.BytesRead.WithLabelValues("").Add(float64(size))
	return nil
}

// VerifyChecksum recomputes the SHA-1 digest of the body and compares it
// to the stored checksum tail, if present. Returns nil if there is no
// checksum tail to verify.
func (r *Reader) VerifyChecksum() error {
	if r.checksum == nil {
		return nil
	}
	h := sha1.New()
	buf := make([]byte, chunkSize)
	remaining := int64(r.bodySize)
	pos := r.bodyStart
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := r.ra.ReadAt(buf[:n], pos)
		if read > 0 {
			h.Write(buf[:read])
			pos += int64(read)
			remaining -= int64(read)
		}
		if err != nil && err != io.EOF {
			return fmt.Errorf("%w: read body for checksum: %v", ErrIO, err)
		}
		if read == 0 {
			break
		}
	}
	var got [20]byte
	copy(got[:], h.Sum(nil))
	if got != *r.checksum {
		return ErrChecksumMismatch
	}
	return nil
}

func lessUnsignedEntry(a, b IndexEntry) bool {
	return uint32(a.Hash) < uint32(b.Hash)
}

// nestedCacheKey hashes a (parent identity, member hash) pair with
// xxhash so repeatedly extracting the same nested archive doesn't
// re-parse it every time.
func nestedCacheKey(parentID uint64, memberHash int32) uint64 {
	var buf [12]byte
	binary.LittleEndian.PutUint64(buf[0:8], parentID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(memberHash))
	return xxhash.Sum64(buf[:])
}

// readerAtStraw adapts an io.ReaderAt with a cursor to pipeline.Straw.
type readerAtStraw struct {
	ra  io.ReaderAt
	pos int64
}

func (s *readerAtStraw) Get(buf []byte) (int, error) {
	n, err := s.ra.ReadAt(buf, s.pos)
	s.pos += int64(n)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

func readFullStraw(s pipeline.Straw, buf []byte) error {
	for len(buf) > 0 {
		n, err := s.Get(buf)
		if n == 0 && err == nil {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func readTailAt(ra io.ReaderAt, off int64, buf []byte) error {
	for len(buf) > 0 {
		n, err := ra.ReadAt(buf, off)
		if n > 0 {
			buf = buf[n:]
			off += int64(n)
		}
		if err != nil && !(err == io.EOF && len(buf) == 0) {
			return err
		}
		if n == 0 {
			return io.ErrUnexpectedEOF
		}
	}
	return nil
}
