//go:build !linux

package mix

import "os"

// fallocate falls back to a plain truncate on platforms without a native
// preallocation syscall; it reserves the logical size but not necessarily
// the physical blocks.
func fallocate(f *os.File, offset int64, size int64) error {
	return f.Truncate(offset + size)
}
