package mix

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"go.uber.org/multierr"
	"k8s.io/klog/v2"

	"github.com/go-ccmix/ccmix/internal/ccmixhash"
	"github.com/go-ccmix/ccmix/internal/pipeline"
	"github.com/go-ccmix/ccmix/internal/rsakey"
	"github.com/go-ccmix/ccmix/metrics"
	"github.com/go-ccmix/ccmix/telemetry"
)

// fileEntry is one member queued for packing, in insertion order.
type fileEntry struct {
	path string
	name string
	hash int32
	size uint32
}

// Writer accumulates member files and serializes them into a single mix
// archive. Operations mutate in-memory state only; all I/O happens inside
// WriteMix.
type Writer struct {
	outputPath string
	hashNew    func() ccmixhash.Hash32

	hasChecksum bool
	isEncrypted bool
	quiet       bool
	forceFlags  bool
	rsaKey      *rsakey.Key
	rng         io.Reader

	entries  []*fileEntry
	byHash   map[int32]*fileEntry
	bodySize uint64

	progress bool
}

// NewWriter constructs a Writer targeting outputPath. hashNew selects the
// hash engine used to identify members (ccmixhash.NewLegacy or
// ccmixhash.NewCRC32). When isEncrypted is true, rsaKey must be non-nil.
func NewWriter(outputPath string, hashNew func() ccmixhash.Hash32, hasChecksum, isEncrypted, quiet, forceFlags bool, rsaKey *rsakey.Key) *Writer {
	return &Writer{
		outputPath:  outputPath,
		hashNew:     hashNew,
		hasChecksum: hasChecksum,
		isEncrypted: isEncrypted,
		quiet:       quiet,
		forceFlags:  forceFlags,
		rsaKey:      rsaKey,
		rng:         rand.Reader,
		byHash:      make(map[int32]*fileEntry),
	}
}

// WithProgress enables an mpb progress bar during WriteMix (makemix turns
// it on unless -q is given). The bar is never shown for a quiet Writer.
func (w *Writer) WithProgress(enabled bool) *Writer {
	w.progress = enabled
	return w
}

func (w *Writer) hashName(name string) int32 {
	h := w.hashNew()
	h.Write([]byte(upperASCII(name)))
	return h.Sum32()
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

// AddFile opens path and queues it as a member named by its uppercased
// basename. Failures (unavailable file, hash collision, file-count or
// body-size limit) are logged as warnings and do not return an error, per
// the archive's "fails silently" add semantics.
func (w *Writer) AddFile(path string) error {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		klog.Warningf("mix: add_file %q: %v", path, err)
		return nil
	}
	if info.IsDir() {
		klog.Warningf("mix: add_file %q: is a directory", path)
		return nil
	}
	if len(w.entries) >= maxFileCount {
		klog.Warningf("mix: add_file %q: file_count limit %d reached", path, maxFileCount)
		return nil
	}
	size := uint64(info.Size())
	if w.bodySize+size > 0xFFFFFFFF {
		klog.Warningf("mix: add_file %q: body_size would exceed 2^32-1", path)
		return nil
	}
	hash := w.hashName(name)
	if existing, dup := w.byHash[hash]; dup {
		klog.Warningf("mix: add_file %q: hash collision with %q, skipped", path, existing.name)
		return nil
	}

	e := &fileEntry{path: path, name: name, hash: hash, size: uint32(size)}
	w.entries = append(w.entries, e)
	w.byHash[hash] = e
	w.bodySize += size
	metrics.FilesPacked.WithLabelValues(w.outputPath).Inc()
	return nil
}

// AddFiles enumerates non-directory entries in dir (one level) and calls
// AddFile on each, in directory-read order. AddFile reports a skipped
// file as a warning rather than an error, so the walk always continues
// and the returned error is non-nil only when dir cannot be read.
func (w *Writer) AddFiles(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("mix: add_files %q: %w", dir, err)
	}
	var errs error
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		if err := w.AddFile(filepath.Join(dir, de.Name())); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// MemberNames returns the names of all queued members, in insertion
// order.
func (w *Writer) MemberNames() []string {
	names := make([]string, len(w.entries))
	for i, e := range w.entries {
		names[i] = e.name
	}
	return names
}

// RemoveFile unlinks the member named by the uppercased basename of name
// from both the index and the insertion-ordered list.
func (w *Writer) RemoveFile(name string) {
	hash := w.hashName(filepath.Base(name))
	e, ok := w.byHash[hash]
	if !ok {
		return
	}
	delete(w.byHash, hash)
	for i, x := range w.entries {
		if x == e {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			break
		}
	}
	w.bodySize -= uint64(e.size)
}

// WriteMix serializes the accumulated members to the writer's output
// path: flag word, header, sorted index, through the configured
// encryption pipe, then the body in insertion order, then an optional
// SHA-1 checksum tail. The archive is written to a temp file alongside
// the destination and renamed into place only on success.
func (w *Writer) WriteMix(ctx context.Context) (err error) {
	ctx, span := telemetry.TraceFileOperation(ctx, "write", w.outputPath)
	defer span.End()

	tmpPath := w.outputPath + ".tmp-" + uuid.New().String()
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrIO, err)
	}
	defer f.Close()

	estSize := int64(4 + headerSize + len(w.entries)*indexEntrySize + int(w.bodySize) + checksumTailLen)
	if err := fallocate(f, 0, estSize); err != nil {
		klog.Warningf("mix: fallocate %q: %v", tmpPath, err)
	}

	bw := bufio.NewWriter(f)
	filePipe := pipeline.NewFilePipe(bw)

	flagWord := uint32(0)
	if w.hasChecksum {
		flagWord |= flagHasChecksum
	}
	if w.isEncrypted {
		flagWord |= flagIsEncrypted
	}
	writeFlags := w.isEncrypted || w.hasChecksum || w.forceFlags
	if writeFlags {
		// The flag bits live in the high half of this word, so its low
		// 16 bits are always zero and Open can tell it apart from a bare
		// file_count without a separate sentinel.
		var fw [flagWordSize]byte
		putLE32(fw[:], flagWord)
		if _, err := filePipe.Put(fw[:]); err != nil {
			return w.abort(f, tmpPath, err)
		}
	}

	var headerPipe pipeline.Pipe = filePipe
	var pk *pipeline.PKPipe
	if w.isEncrypted {
		pk = pipeline.NewPKEncryptPipe(w.rsaKey, w.rng)
		pk.ChainTo(filePipe)
		headerPipe = pk
	}

	sorted := make([]*fileEntry, len(w.entries))
	copy(sorted, w.entries)
	sort.Slice(sorted, func(i, j int) bool {
		return ccmixhash.LessUnsigned(sorted[i].hash, sorted[j].hash)
	})

	var hdr [headerSize]byte
	putLE16(hdr[0:2], uint16(len(w.entries)))
	putLE32(hdr[2:6], uint32(w.bodySize))
	if _, err := headerPipe.Put(hdr[:]); err != nil {
		return w.abort(f, tmpPath, err)
	}

	offsets := make(map[*fileEntry]uint32, len(w.entries))
	var running uint32
	for _, e := range w.entries {
		offsets[e] = running
		running += e.size
	}
	for _, e := range sorted {
		var rec [indexEntrySize]byte
		putLE32(rec[0:4], uint32(e.hash))
		putLE32(rec[4:8], offsets[e])
		putLE32(rec[8:12], e.size)
		if _, err := headerPipe.Put(rec[:]); err != nil {
			return w.abort(f, tmpPath, err)
		}
	}
	if _, err := headerPipe.Flush(); err != nil {
		return w.abort(f, tmpPath, err)
	}

	var bodyPipe pipeline.Pipe = filePipe
	var sha *pipeline.Sha1Pipe
	if w.hasChecksum {
		sha = pipeline.NewSha1Pipe()
		sha.ChainTo(filePipe)
		bodyPipe = sha
	}

	var bar *mpb.Bar
	var progress *mpb.Progress
	if w.progress && !w.quiet {
		progress = mpb.New(mpb.WithWidth(64))
		bar = progress.AddBar(int64(len(w.entries)),
			mpb.PrependDecorators(decor.Name("packing")),
			mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
		)
	}

	buf := make([]byte, chunkSize)
	for _, e := range w.entries {
		if err := w.writeMember(e, bodyPipe, buf); err != nil {
			return w.abort(f, tmpPath, err)
		}
		if bar != nil {
			bar.Increment()
		}
	}
	if progress != nil {
		progress.Wait()
	}

	if w.hasChecksum {
		digest := sha.Digest()
		if _, err := filePipe.Put(digest[:]); err != nil {
			return w.abort(f, tmpPath, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return w.abort(f, tmpPath, err)
	}
	// The preallocation estimate always counts a flag word and a checksum
	// tail, so cut the file back to the bytes actually written.
	end, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return w.abort(f, tmpPath, err)
	}
	if err := f.Truncate(end); err != nil {
		return w.abort(f, tmpPath, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close temp file: %v", ErrIO, err)
	}
	if err := os.Rename(tmpPath, w.outputPath); err != nil {
		return fmt.Errorf("%w: rename into place: %v", ErrIO, err)
	}
	metrics.BytesWritten.WithLabelValues(w.outputPath).Add(float64(w.bodySize))
	return nil
}

func (w *Writer) writeMember(e *fileEntry, dst pipeline.Pipe, buf []byte) error {
	f, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("%w: open %q: %v", ErrIO, e.path, err)
	}
	defer f.Close()

	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if _, werr := dst.Put(buf[:n]); werr != nil {
				return fmt.Errorf("%w: write member %q: %v", ErrIO, e.name, werr)
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("%w: read member %q: %v", ErrIO, e.name, rerr)
		}
	}
}

func (w *Writer) abort(f *os.File, tmpPath string, cause error) error {
	f.Close()
	klog.Warningf("mix: write_mix aborted, leaving temp file %q for inspection: %v", tmpPath, cause)
	return fmt.Errorf("%w: %v", ErrIO, cause)
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
