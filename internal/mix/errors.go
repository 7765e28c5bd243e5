package mix

import "errors"

// Sentinel errors wrapped with %w so errors.Is/errors.As work end-to-end.
var (
	// ErrCorruptArchive is returned when the index, header, or checksum
	// tail doesn't parse or verify.
	ErrCorruptArchive = errors.New("mix: corrupt archive")

	// ErrDecryptionFailed is returned when an archive is encrypted but no
	// RSA key was given, or when its RSA-wrapped session key and the header
	// behind it cannot be read and decrypted. The decrypted header is not
	// otherwise checked for sanity.
	ErrDecryptionFailed = errors.New("mix: decryption failed")

	// ErrChecksumMismatch is returned when the body's SHA-1 digest
	// doesn't match the stored checksum tail.
	ErrChecksumMismatch = errors.New("mix: checksum mismatch")

	// ErrHashCollision names the case of two members hashing to the same
	// value under the archive's configured hash engine. Writer.AddFile
	// logs that case as a warning and skips the file; it does not return
	// this error.
	ErrHashCollision = errors.New("mix: hash collision")

	// ErrLimitExceeded names the case of an add that would exceed the
	// archive's file-count or body-size limits. Writer.AddFile logs that
	// case as a warning and skips the file; it does not return this error.
	ErrLimitExceeded = errors.New("mix: limit exceeded")

	// ErrNotFound is returned when a requested member hash isn't present
	// in the index.
	ErrNotFound = errors.New("mix: member not found")

	// ErrIO wraps an underlying I/O failure.
	ErrIO = errors.New("mix: io error")
)
