//go:build linux

package contentsystem

import (
	"os"

	"golang.org/x/sys/unix"
)

// preallocate reserves size bytes of disk blocks for f using fallocate
// mode 0, which also extends f's length to size when it is shorter (spec
// §5 preallocation). If f is already larger than size, it is truncated
// down to size instead.
func preallocate(f *os.File, size int64) error {
	info, err := f.Stat()
	if err != nil {
		return ioError(err)
	}
	if info.Size() > size {
		if err := f.Truncate(size); err != nil {
			return ioError(err)
		}
		return nil
	}
	if err := unix.Fallocate(int(f.Fd()), 0, 0, size); err != nil {
		return ioError(err)
	}
	return nil
}
