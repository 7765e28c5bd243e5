//go:build linux

package mix

import (
	"fmt"
	"os"
	"syscall"
)

// fallocate reserves size bytes starting at offset in f using the native
// Linux syscall, so the writer's pipe chain streams into space the
// filesystem has already committed instead of growing the file one write
// at a time.
func fallocate(f *os.File, offset int64, size int64) error {
	if err := syscall.Fallocate(int(f.Fd()), 0, offset, size); err != nil {
		return fmt.Errorf("fallocate: %w", err)
	}
	return nil
}
